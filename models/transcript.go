package models

import (
	"encoding/hex"
	"strconv"
	"time"
)

// TranscriptRecord remembers an accepted non-interactive proof until its
// freshness window closes.
type TranscriptRecord struct {
	Identity  string    `json:"identity"`
	Digest    string    `json:"digest"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTranscriptRecord digests the proof values (in their wire encoding).
func NewTranscriptRecord(identity, c, s string, issuedAt int64, expiresAt time.Time) *TranscriptRecord {
	return &TranscriptRecord{
		Identity:  identity,
		Digest:    digest(identity, c, s, strconv.FormatInt(issuedAt, 10)),
		ExpiresAt: expiresAt,
	}
}

func (t *TranscriptRecord) Key() []byte {
	b, _ := hex.DecodeString(t.Digest)
	return b
}

func (t *TranscriptRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *TranscriptRecord) Marshal() ([]byte, error) {
	return encode(t)
}

func UnmarshalTranscriptRecord(b []byte) (*TranscriptRecord, error) {
	var t TranscriptRecord
	if err := decode(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
