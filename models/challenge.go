package models

import (
	"encoding/hex"
	"strconv"
	"time"
)

// ChallengeRecord binds an issued challenge to the commitment it answers
// and to a snapshot of the user it was issued for.
type ChallengeRecord struct {
	Challenge string     `json:"challenge"`
	R1        string     `json:"r1"`
	R2        string     `json:"r2"`
	User      UserRecord `json:"user"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	// Nonce distinguishes records whose other fields coincide.
	Nonce int `json:"nonce,omitempty"`
}

// AuthID is the hex handle the client uses to answer the challenge.
func (c *ChallengeRecord) AuthID() string {
	return digest(
		c.Challenge, c.R1, c.R2,
		c.User.Identity, c.User.Group, c.User.Y1, c.User.Y2,
		strconv.Itoa(c.Nonce),
	)
}

func (c *ChallengeRecord) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func (c *ChallengeRecord) Marshal() ([]byte, error) {
	return encode(c)
}

func UnmarshalChallengeRecord(b []byte) (*ChallengeRecord, error) {
	var c ChallengeRecord
	if err := decode(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// AuthIDKey converts an auth id to its storage key. Anything that is not
// lower-case hex of 32 bytes has no key.
func AuthIDKey(authID string) ([]byte, bool) {
	b, err := hex.DecodeString(authID)
	if err != nil || len(b) != 32 || hex.EncodeToString(b) != authID {
		return nil, false
	}
	return b, true
}
