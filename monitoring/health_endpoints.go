package monitoring

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/atomic"

	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/logging"
	"github.com/84adam/zkauth/models"
	"github.com/84adam/zkauth/storage"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// checkTimeout bounds every individual check.
const checkTimeout = 5 * time.Second

// HealthCheck represents a single health check result
type HealthCheck struct {
	Name      string            `json:"name"`
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime"`
	Ready     bool                   `json:"ready"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
	Summary   HealthSummary          `json:"summary"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	AllocBytes   uint64 `json:"alloc_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthSummary provides summary statistics
type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// HealthChecker is one named probe.
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
}

// HealthMonitor runs the registered checks and serves the health endpoints.
type HealthMonitor struct {
	startTime time.Time
	version   string
	checks    []HealthChecker
	ready     atomic.Bool
}

// NewHealthMonitor creates a monitor with the default checks. db may be
// nil when the configured store does not use SQL.
func NewHealthMonitor(db *sql.DB, store storage.Store, groups []crypto.Group, version string) *HealthMonitor {
	hm := &HealthMonitor{
		startTime: time.Now(),
		version:   version,
	}
	if db != nil {
		hm.RegisterCheck(&DatabaseHealthCheck{db: db})
	}
	hm.RegisterCheck(&StorageHealthCheck{store: store})
	hm.RegisterCheck(&ProtocolHealthCheck{groups: groups})
	hm.RegisterCheck(&SystemHealthCheck{})
	return hm
}

// RegisterCheck registers a new health check
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.checks = append(hm.checks, checker)
}

// SetReady flips readiness; the server is marked ready once startup is
// complete and unready while draining for shutdown.
func (hm *HealthMonitor) SetReady(ready bool) bool {
	return hm.ready.Swap(ready)
}

func (hm *HealthMonitor) IsReady() bool {
	return hm.ready.Load()
}

// GetHealthStatus performs all health checks and returns the status
func (hm *HealthMonitor) GetHealthStatus(ctx context.Context) HealthResponse {
	start := time.Now()
	checks := make(map[string]HealthCheck)
	summary := HealthSummary{}

	for _, checker := range hm.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		began := time.Now()
		check := checker.Check(checkCtx)
		cancel()
		check.Name = checker.Name()
		check.Timestamp = began
		check.Duration = time.Since(began)

		checks[check.Name] = check
		summary.Total++
		switch check.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		default:
			summary.Unhealthy++
		}
	}

	overallStatus := StatusHealthy
	if summary.Unhealthy > 0 {
		overallStatus = StatusUnhealthy
	} else if summary.Degraded > 0 {
		overallStatus = StatusDegraded
	}

	return HealthResponse{
		Status:    overallStatus,
		Timestamp: start,
		Version:   hm.version,
		Uptime:    time.Since(hm.startTime),
		Ready:     hm.IsReady(),
		Checks:    checks,
		System:    systemInfo(),
		Summary:   summary,
	}
}

func systemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		AllocBytes:   memStats.Alloc,
		NumGC:        memStats.NumGC,
	}
}

// DatabaseHealthCheck checks database connectivity
type DatabaseHealthCheck struct {
	db *sql.DB
}

func (d *DatabaseHealthCheck) Name() string {
	return "database"
}

func (d *DatabaseHealthCheck) Check(ctx context.Context) HealthCheck {
	if err := d.db.PingContext(ctx); err != nil {
		return HealthCheck{Status: StatusUnhealthy, Message: fmt.Sprintf("Database ping failed: %v", err)}
	}

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM security_events").Scan(&count); err != nil {
		return HealthCheck{Status: StatusDegraded, Message: fmt.Sprintf("Security event table check failed: %v", err)}
	}
	return HealthCheck{
		Status:  StatusHealthy,
		Message: "Database operational",
		Details: map[string]string{"security_events": fmt.Sprintf("%d", count)},
	}
}

// StorageHealthCheck probes the key-value store with a lookup that never
// matches a real record.
type StorageHealthCheck struct {
	store storage.Store
}

func (s *StorageHealthCheck) Name() string {
	return "storage"
}

func (s *StorageHealthCheck) Check(ctx context.Context) HealthCheck {
	if s.store == nil {
		return HealthCheck{Status: StatusUnhealthy, Message: "Store not initialized"}
	}
	probe := models.UserKey("\x00health-probe")
	if _, err := s.store.Exists(ctx, storage.CollectionUsers, probe); err != nil {
		return HealthCheck{Status: StatusUnhealthy, Message: fmt.Sprintf("Store lookup failed: %v", err)}
	}
	return HealthCheck{Status: StatusHealthy, Message: "Store reachable"}
}

// ProtocolHealthCheck runs one interactive round with a throwaway secret
// in every group. It fails if randomness is unavailable or a correct proof
// is rejected.
type ProtocolHealthCheck struct {
	groups []crypto.Group
}

func (p *ProtocolHealthCheck) Name() string {
	return "protocol"
}

func (p *ProtocolHealthCheck) Check(ctx context.Context) HealthCheck {
	details := make(map[string]string)
	for _, group := range p.groups {
		if err := selfTest(ctx, group); err != nil {
			details[group.Name()] = err.Error()
			return HealthCheck{Status: StatusUnhealthy, Message: fmt.Sprintf("Self-test failed for %s", group.Name()), Details: details}
		}
		details[group.Name()] = "ok"
	}
	return HealthCheck{Status: StatusHealthy, Message: "Proof round trip verified", Details: details}
}

func selfTest(ctx context.Context, group crypto.Group) error {
	password := make([]byte, 16)
	if _, err := rand.Read(password); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrRandomnessUnavailable, err)
	}
	cp := crypto.NewChaumPedersen(group)
	x := cp.SecretFromPassword("health-probe", hex.EncodeToString(password))
	y1, y2, err := cp.GeneratePublicKeys(ctx, x)
	if err != nil {
		return err
	}
	commitment, err := cp.Commit(ctx)
	if err != nil {
		return err
	}
	c, err := cp.GenerateChallenge()
	if err != nil {
		return err
	}
	proof := &crypto.Proof{
		Y1: y1, Y2: y2,
		R1: commitment.R1, R2: commitment.R2,
		C: c, S: cp.SolveChallenge(commitment.K, c, x),
	}
	if !cp.Verify(ctx, proof) {
		return fmt.Errorf("valid proof rejected")
	}
	return nil
}

// SystemHealthCheck checks system resources
type SystemHealthCheck struct{}

func (s *SystemHealthCheck) Name() string {
	return "system"
}

func (s *SystemHealthCheck) Check(ctx context.Context) HealthCheck {
	info := systemInfo()
	memUsageMB := info.AllocBytes / 1024 / 1024
	check := HealthCheck{
		Status:  StatusHealthy,
		Message: "System resources normal",
		Details: map[string]string{
			"memory_mb":  fmt.Sprintf("%d", memUsageMB),
			"goroutines": fmt.Sprintf("%d", info.NumGoroutine),
		},
	}
	if memUsageMB > 1024 {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("High memory usage: %d MB", memUsageMB)
	} else if info.NumGoroutine > 1000 {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("High goroutine count: %d", info.NumGoroutine)
	}
	return check
}

// HTTP Handlers

// HealthHandler returns the complete health status
func (hm *HealthMonitor) HealthHandler(c echo.Context) error {
	status := hm.GetHealthStatus(c.Request().Context())
	if status.Status != StatusHealthy {
		logging.WarningLogger.Printf("Health check %s: %d/%d checks unhealthy", status.Status, status.Summary.Unhealthy, status.Summary.Total)
	}

	httpStatus := http.StatusOK
	if status.Status == StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, status)
}

// ReadinessHandler reports whether the server should receive traffic.
func (hm *HealthMonitor) ReadinessHandler(c echo.Context) error {
	if !hm.IsReady() {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"ready":     false,
			"message":   "Not ready",
			"timestamp": time.Now(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ready":     true,
		"message":   "Ready",
		"timestamp": time.Now(),
	})
}

// LivenessHandler returns liveness status (minimal check)
func (hm *HealthMonitor) LivenessHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
		"uptime":    time.Since(hm.startTime).String(),
	})
}

// RegisterRoutes mounts the health endpoints on e.
func (hm *HealthMonitor) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", hm.HealthHandler)
	e.GET("/readyz", hm.ReadinessHandler)
	e.GET("/livez", hm.LivenessHandler)
}
