package logging

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

const entityIDLength = 16

// EntityIDService replaces client addresses with HMAC identifiers keyed by a
// per-day key, so events from one address correlate within a day only.
type EntityIDService struct {
	mu           sync.RWMutex
	masterSecret []byte
	dailyKeys    map[string][]byte
	now          func() time.Time
}

// NewEntityIDService derives daily keys from masterSecret. A nil secret is
// replaced by 32 random bytes.
func NewEntityIDService(masterSecret []byte) (*EntityIDService, error) {
	if masterSecret == nil {
		masterSecret = make([]byte, 32)
		if _, err := rand.Read(masterSecret); err != nil {
			return nil, fmt.Errorf("failed to generate entity id secret: %w", err)
		}
	}
	return &EntityIDService{
		masterSecret: masterSecret,
		dailyKeys:    make(map[string][]byte),
		now:          time.Now,
	}, nil
}

// GetEntityID returns the identifier of ip in the current time window.
func (e *EntityIDService) GetEntityID(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	mac := hmac.New(sha256.New, e.dailyKey(e.GetCurrentTimeWindow()))
	mac.Write(ip.To16())
	return hex.EncodeToString(mac.Sum(nil))[:entityIDLength]
}

// GetCurrentTimeWindow is the UTC date, YYYY-MM-DD.
func (e *EntityIDService) GetCurrentTimeWindow() string {
	return e.now().UTC().Format("2006-01-02")
}

// CleanupOldWindows forgets daily keys older than retentionDays.
func (e *EntityIDService) CleanupOldWindows(retentionDays int) int {
	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for window := range e.dailyKeys {
		if window < cutoff {
			delete(e.dailyKeys, window)
			removed++
		}
	}
	return removed
}

func (e *EntityIDService) dailyKey(window string) []byte {
	e.mu.RLock()
	key, ok := e.dailyKeys[window]
	e.mu.RUnlock()
	if ok {
		return key
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if key, ok := e.dailyKeys[window]; ok {
		return key
	}
	key = make([]byte, 32)
	// HKDF-SHA256 output of 32 bytes cannot fail
	hkdf.New(sha256.New, e.masterSecret, []byte(window), []byte("zkauth entity id v1")).Read(key)
	e.dailyKeys[window] = key
	return key
}

// ValidateEntityID reports whether s looks like an entity identifier.
func ValidateEntityID(s string) bool {
	if len(s) != entityIDLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
