package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// SecurityEventType names a protocol or system event worth auditing.
type SecurityEventType string

const (
	EventRegistration     SecurityEventType = "registration"
	EventChallengeIssued  SecurityEventType = "challenge_issued"
	EventProofAccepted    SecurityEventType = "proof_accepted"
	EventProofRejected    SecurityEventType = "proof_rejected"
	EventUnknownIdentity  SecurityEventType = "unknown_identity"
	EventUnknownChallenge SecurityEventType = "unknown_challenge"
	EventReplayDetected   SecurityEventType = "replay_detected"
	EventSessionRevoked   SecurityEventType = "session_revoked"
	EventSystemStartup    SecurityEventType = "system_startup"
	EventSystemShutdown   SecurityEventType = "system_shutdown"
)

type SecurityEventSeverity string

const (
	SeverityInfo     SecurityEventSeverity = "INFO"
	SeverityWarning  SecurityEventSeverity = "WARNING"
	SeverityCritical SecurityEventSeverity = "CRITICAL"
)

type SecurityEvent struct {
	ID         int64                  `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	EventType  SecurityEventType      `json:"event_type"`
	EntityID   string                 `json:"entity_id"`
	TimeWindow string                 `json:"time_window"`
	Identity   *string                `json:"identity,omitempty"`
	Severity   SecurityEventSeverity  `json:"severity"`
	Details    map[string]interface{} `json:"details"`
}

// SecurityEventLogger writes events to the security_events table and the
// leveled log. A nil logger, or one without a database, only logs.
type SecurityEventLogger struct {
	db               *sql.DB
	entityIDs        *EntityIDService
	maxRetentionDays int
}

func NewSecurityEventLogger(db *sql.DB, entityIDs *EntityIDService, maxRetentionDays int) *SecurityEventLogger {
	return &SecurityEventLogger{
		db:               db,
		entityIDs:        entityIDs,
		maxRetentionDays: maxRetentionDays,
	}
}

// LogSecurityEvent records one event. ip may be nil for events without a
// client.
func (sel *SecurityEventLogger) LogSecurityEvent(eventType SecurityEventType, ip net.IP, identity *string, details map[string]interface{}) error {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Identity:  identity,
		Severity:  severityFor(eventType),
		Details:   sanitizeDetails(details),
	}
	if sel != nil && sel.entityIDs != nil && ip != nil {
		event.EntityID = sel.entityIDs.GetEntityID(ip)
		event.TimeWindow = sel.entityIDs.GetCurrentTimeWindow()
	}

	logToFile(event)

	if sel == nil || sel.db == nil {
		return nil
	}
	if err := sel.store(event); err != nil {
		ErrorLogger.Printf("Failed to store security event: %v", err)
		return err
	}
	return nil
}

// SecurityEventFilters narrows GetSecurityEvents; zero fields match all.
type SecurityEventFilters struct {
	EventType SecurityEventType
	EntityID  string
	Identity  string
	Severity  SecurityEventSeverity
	Since     time.Time
	Limit     int
}

// GetSecurityEvents returns matching events, newest first.
func (sel *SecurityEventLogger) GetSecurityEvents(filters SecurityEventFilters) ([]SecurityEvent, error) {
	query := `SELECT id, timestamp, event_type, entity_id, time_window, identity, severity, details FROM security_events WHERE 1=1`
	var args []interface{}

	if filters.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(filters.EventType))
	}
	if filters.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, filters.EntityID)
	}
	if filters.Identity != "" {
		query += " AND identity = ?"
		args = append(args, filters.Identity)
	}
	if filters.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filters.Severity))
	}
	if !filters.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filters.Since.UTC())
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := sel.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var event SecurityEvent
		var identity sql.NullString
		var detailsJSON string
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.EntityID,
			&event.TimeWindow, &identity, &event.Severity, &detailsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if identity.Valid {
			event.Identity = &identity.String
		}
		if err := json.Unmarshal([]byte(detailsJSON), &event.Details); err != nil {
			event.Details = map[string]interface{}{"parse_error": detailsJSON}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CleanupOldEvents removes events older than the retention period.
func (sel *SecurityEventLogger) CleanupOldEvents() (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -sel.maxRetentionDays)
	result, err := sel.db.Exec("DELETE FROM security_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old security events: %w", err)
	}
	n, _ := result.RowsAffected()
	if sel.entityIDs != nil {
		sel.entityIDs.CleanupOldWindows(sel.maxRetentionDays)
	}
	return n, nil
}

func (sel *SecurityEventLogger) store(event SecurityEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = sel.db.Exec(
		`INSERT INTO security_events (timestamp, event_type, entity_id, time_window, identity, severity, details) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp, string(event.EventType), event.EntityID, event.TimeWindow,
		event.Identity, string(event.Severity), string(detailsJSON),
	)
	return err
}

func severityFor(eventType SecurityEventType) SecurityEventSeverity {
	switch eventType {
	case EventUnknownChallenge:
		return SeverityWarning
	case EventReplayDetected:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

var sensitiveDetailKeys = []string{"password", "secret", "token", "ip", "nonce"}

func sanitizeDetails(details map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{}, len(details))
	for key, value := range details {
		lower := strings.ToLower(key)
		redact := false
		for _, s := range sensitiveDetailKeys {
			if strings.Contains(lower, s) {
				redact = true
				break
			}
		}
		if redact {
			sanitized[key] = "[REDACTED]"
		} else {
			sanitized[key] = value
		}
	}
	return sanitized
}

func logToFile(event SecurityEvent) {
	message := fmt.Sprintf("Security Event: %s | Entity: %s | Severity: %s",
		event.EventType, event.EntityID, event.Severity)
	if event.Identity != nil {
		message += fmt.Sprintf(" | Identity: %s", *event.Identity)
	}

	switch event.Severity {
	case SeverityCritical:
		ErrorLogger.Print(message)
	case SeverityWarning:
		WarningLogger.Print(message)
	default:
		InfoLogger.Print(message)
	}
}

// DefaultSecurityEventLogger is the process-wide event logger.
var DefaultSecurityEventLogger *SecurityEventLogger

// InitializeSecurityEventLogger sets DefaultSecurityEventLogger.
func InitializeSecurityEventLogger(db *sql.DB, retentionDays int) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	entityIDs, err := NewEntityIDService(nil)
	if err != nil {
		return err
	}
	DefaultSecurityEventLogger = NewSecurityEventLogger(db, entityIDs, retentionDays)
	InfoLogger.Printf("Security event logger initialized with %d day retention", retentionDays)
	return nil
}

// LogSecurityEvent records through DefaultSecurityEventLogger.
func LogSecurityEvent(eventType SecurityEventType, ip net.IP, identity *string, details map[string]interface{}) error {
	return DefaultSecurityEventLogger.LogSecurityEvent(eventType, ip, identity, details)
}
