package models

import (
	"time"
)

// SessionRecord is the server-side copy of an issued session. Deleting it
// revokes the session's access token.
type SessionRecord struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Method    string    `json:"method"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *SessionRecord) Key() []byte {
	return []byte(s.ID)
}

func (s *SessionRecord) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *SessionRecord) Marshal() ([]byte, error) {
	return encode(s)
}

func UnmarshalSessionRecord(b []byte) (*SessionRecord, error) {
	var s SessionRecord
	if err := decode(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
