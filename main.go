package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/84adam/zkauth/auth"
	"github.com/84adam/zkauth/config"
	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/database"
	"github.com/84adam/zkauth/handlers"
	"github.com/84adam/zkauth/logging"
	"github.com/84adam/zkauth/monitoring"
	"github.com/84adam/zkauth/storage"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.InitLogging(&logging.LogConfig{
		LogDir:     cfg.Logging.Directory,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		LogLevel:   logging.ParseLevel(cfg.Logging.Level),
		Stdout:     cfg.Logging.Stdout,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	if err := database.InitDB(cfg); err != nil {
		logging.ErrorLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	if err := logging.InitializeSecurityEventLogger(database.DB, cfg.Security.SecurityEventRetentionDays); err != nil {
		logging.ErrorLogger.Fatalf("Failed to initialize security event logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.InitStore(ctx, cfg, database.DB)
	if err != nil {
		logging.ErrorLogger.Fatalf("Failed to initialize storage: %v", err)
	}

	service, err := auth.NewServiceFromConfig(cfg, store, logging.DefaultSecurityEventLogger)
	if err != nil {
		logging.ErrorLogger.Fatalf("Failed to initialize authentication service: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'",
	}))
	e.Use(middleware.BodyLimit("64K"))

	handlers.Echo = e
	handlers.Service = service
	handlers.RegisterRoutes()

	var groups []crypto.Group
	for _, algorithm := range []string{auth.AlgorithmInteractive, auth.AlgorithmNonInteractive} {
		group, err := service.GroupForAlgorithm(algorithm)
		if err != nil {
			logging.ErrorLogger.Fatalf("Failed to resolve group for %s: %v", algorithm, err)
		}
		groups = append(groups, group)
	}
	health := monitoring.NewHealthMonitor(database.DB, store, groups, Version)
	health.RegisterRoutes(e)

	go sweep(ctx, service, cfg.SweepInterval())

	logging.LogSecurityEvent(logging.EventSystemStartup, nil, nil, map[string]interface{}{
		"version":           Version,
		"storage_backend":   cfg.Storage.Backend,
		"interactive_group": cfg.Protocol.InteractiveGroup,
	})

	address := cfg.Server.Host + ":" + cfg.Server.Port
	go func() {
		logging.InfoLogger.Printf("Starting zkauth %s on %s", Version, address)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLogger.Printf("Failed to start server: %v", err)
			stop()
		}
	}()
	health.SetReady(true)

	<-ctx.Done()
	health.SetReady(false)
	logging.InfoLogger.Printf("Shutting down")
	logging.LogSecurityEvent(logging.EventSystemShutdown, nil, nil, nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Printf("Graceful shutdown failed: %v", err)
	}
}

// sweep drops expired challenges, transcripts and sessions, and trims old
// security events, until ctx is done.
func sweep(ctx context.Context, service *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := service.SweepExpired(ctx); err != nil {
				logging.WarningLogger.Printf("Sweep failed after %d removals: %v", removed, err)
			}
			if _, err := logging.DefaultSecurityEventLogger.CleanupOldEvents(); err != nil {
				logging.WarningLogger.Printf("Security event cleanup failed: %v", err)
			}
		}
	}
}
