package auth

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrInvalidProof      = errors.New("invalid proof")
	ErrReplayedProof     = errors.New("proof already used")
	ErrGroupMismatch     = errors.New("user is not registered for this algorithm")
	ErrMalformedInput    = errors.New("malformed input")
	ErrSessionNotFound   = errors.New("session not found")
)
