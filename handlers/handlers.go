package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/84adam/zkauth/auth"
	"github.com/84adam/zkauth/logging"
	"github.com/84adam/zkauth/models"
)

var (
	// Echo is the global echo instance used for routing
	Echo *echo.Echo
	// Service is the verifier every handler talks to
	Service *auth.Service
)

func missing(fields map[string]string) string {
	var names []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return "Missing required fields: " + strings.Join(names, ", ")
}

// Register stores the public keys of an identity. Registering again
// replaces the keys.
func Register(c echo.Context) error {
	var request models.RegisterRequest
	if err := c.Bind(&request); err != nil {
		return JSONError(c, http.StatusBadRequest, "Invalid request: malformed body")
	}
	if msg := missing(map[string]string{"identity": request.Identity, "y1": request.Y1, "y2": request.Y2}); msg != "" {
		return JSONError(c, http.StatusBadRequest, msg)
	}

	group, err := Service.GroupForAlgorithm(request.Algorithm)
	if err != nil {
		return serviceError(c, "register", err)
	}
	if err := Service.Register(c.Request().Context(), request.Identity, group.Name(), request.Y1, request.Y2); err != nil {
		return serviceError(c, "register", err)
	}

	return JSONResponse(c, http.StatusCreated, "Registered", map[string]string{
		"identity": request.Identity,
		"group":    group.Name(),
	})
}

// CreateChallenge records a commitment and returns the challenge for it.
func CreateChallenge(c echo.Context) error {
	var request models.ChallengeRequest
	if err := c.Bind(&request); err != nil {
		return JSONError(c, http.StatusBadRequest, "Invalid request: malformed body")
	}
	if msg := missing(map[string]string{"identity": request.Identity, "r1": request.R1, "r2": request.R2}); msg != "" {
		return JSONError(c, http.StatusBadRequest, msg)
	}

	challenge, authID, err := Service.IssueChallenge(c.Request().Context(), request.Identity, request.R1, request.R2)
	if err != nil {
		return serviceError(c, "challenge", err)
	}
	return JSONResponse(c, http.StatusOK, "", models.ChallengeResponse{C: challenge, AuthID: authID})
}

// VerifyAnswer checks the response to an issued challenge and opens a
// session on success.
func VerifyAnswer(c echo.Context) error {
	var request models.VerifyRequest
	if err := c.Bind(&request); err != nil {
		return JSONError(c, http.StatusBadRequest, "Invalid request: malformed body")
	}
	if msg := missing(map[string]string{"auth_id": request.AuthID, "s": request.S}); msg != "" {
		return JSONError(c, http.StatusBadRequest, msg)
	}

	session, err := Service.Resolve(c.Request().Context(), request.AuthID, request.S)
	if err != nil {
		return serviceError(c, "verify", err)
	}
	logging.InfoLogger.Printf("Session opened for %s (interactive)", session.Identity)
	return JSONResponse(c, http.StatusOK, "Authenticated", session)
}

// Authenticate checks a non-interactive proof and opens a session on
// success.
func Authenticate(c echo.Context) error {
	var request models.AuthenticateRequest
	if err := c.Bind(&request); err != nil {
		return JSONError(c, http.StatusBadRequest, "Invalid request: malformed body")
	}
	if msg := missing(map[string]string{"identity": request.Identity, "c": request.C, "s": request.S}); msg != "" {
		return JSONError(c, http.StatusBadRequest, msg)
	}
	if request.IssuedAt <= 0 {
		return JSONError(c, http.StatusBadRequest, "Missing required fields: issued_at")
	}

	session, err := Service.AuthenticateNonInteractive(c.Request().Context(), request.Identity, request.C, request.S, request.IssuedAt)
	if err != nil {
		return serviceError(c, "authenticate", err)
	}
	logging.InfoLogger.Printf("Session opened for %s (non-interactive)", session.Identity)
	return JSONResponse(c, http.StatusOK, "Authenticated", session)
}

// GetSession reports who the bearer token belongs to.
func GetSession(c echo.Context) error {
	record, err := Service.Sessions().Lookup(c.Request().Context(), auth.GetSessionIDFromToken(c))
	if err != nil {
		return serviceError(c, "session", err)
	}
	return JSONResponse(c, http.StatusOK, "", models.SessionInfo{
		Identity:  record.Identity,
		SessionID: record.ID,
		Method:    record.Method,
	})
}

// Logout revokes the session behind the bearer token.
func Logout(c echo.Context) error {
	identity := auth.GetIdentityFromToken(c)
	if err := Service.RevokeSession(c.Request().Context(), identity, auth.GetSessionIDFromToken(c)); err != nil {
		return serviceError(c, "logout", err)
	}
	logging.InfoLogger.Printf("Session closed for %s", identity)
	return JSONResponse(c, http.StatusOK, "Logged out", nil)
}
