package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/84adam/zkauth/auth"
	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/logging"
)

// errorStatus maps service errors to a status and a client-safe message.
// Anything unrecognized is an internal fault.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMalformedInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, auth.ErrChallengeNotFound):
		return http.StatusNotFound, "Challenge not found"
	case errors.Is(err, auth.ErrGroupMismatch):
		return http.StatusConflict, "User is registered for a different algorithm"
	case errors.Is(err, auth.ErrReplayedProof):
		return http.StatusUnauthorized, "Proof already used"
	case errors.Is(err, auth.ErrInvalidProof):
		return http.StatusUnauthorized, "Invalid proof"
	case errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, "Session not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// serviceError writes the response for a failed service call. Faults are
// logged at ERROR, rejections are already recorded as security events.
func serviceError(c echo.Context, op string, err error) error {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		if errors.Is(err, crypto.ErrRandomnessUnavailable) {
			logging.ErrorLogger.Printf("CRITICAL: %s: %v", op, err)
		} else {
			logging.ErrorLogger.Printf("%s failed: %v", op, err)
		}
	}
	return JSONError(c, status, message)
}
