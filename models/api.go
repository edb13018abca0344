package models

import (
	"time"
)

// Algorithms a client can register for.
const (
	AlgorithmInteractive    = "interactive"
	AlgorithmNonInteractive = "non-interactive"
)

// GroupParams describes a group in its wire encoding.
type GroupParams struct {
	Algorithm string `json:"algorithm"`
	Group     string `json:"group"`
	Order     string `json:"order"`
	G         string `json:"g"`
	H         string `json:"h"`
	Modulus   string `json:"modulus,omitempty"`
}

// RegisterRequest carries a client's public keys.
type RegisterRequest struct {
	Identity  string `json:"identity"`
	Algorithm string `json:"algorithm"`
	Y1        string `json:"y1"`
	Y2        string `json:"y2"`
}

// ChallengeRequest carries the prover's commitment.
type ChallengeRequest struct {
	Identity string `json:"identity"`
	R1       string `json:"r1"`
	R2       string `json:"r2"`
}

// ChallengeResponse is what the prover must answer.
type ChallengeResponse struct {
	C      string `json:"c"`
	AuthID string `json:"auth_id"`
}

// VerifyRequest answers a challenge.
type VerifyRequest struct {
	AuthID string `json:"auth_id"`
	S      string `json:"s"`
}

// AuthenticateRequest carries a non-interactive proof.
type AuthenticateRequest struct {
	Identity string `json:"identity"`
	C        string `json:"c"`
	S        string `json:"s"`
	IssuedAt int64  `json:"issued_at"`
}

// Session is handed to a client after a proof is accepted.
type Session struct {
	ID          string    `json:"session_id"`
	Identity    string    `json:"identity"`
	Method      string    `json:"method"`
	AccessToken string    `json:"access_token"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionInfo describes the authenticated caller.
type SessionInfo struct {
	Identity  string `json:"identity"`
	SessionID string `json:"session_id"`
	Method    string `json:"method"`
}
