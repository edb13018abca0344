package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	tokenIssuer   = "zkauth"
	tokenAudience = "zkauth-api"
)

// Claims are carried by session access tokens. The token id (jti) is the
// session id.
type Claims struct {
	Identity string `json:"identity"`
	Method   string `json:"method"`
	jwt.RegisteredClaims
}

func generateToken(secret []byte, sessionID, identity, method string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		Identity: identity,
		Method:   method,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates an access token signed with secret and returns its
// claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
	)
	if err != nil {
		return nil, err
	}
	return token.Claims.(*Claims), nil
}

// JWTMiddleware requires a valid bearer token signed with secret.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	config := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		SigningKey: secret,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		},
	}
	return echojwt.WithConfig(config)
}

// SessionMiddleware rejects tokens whose session was revoked or has
// expired. It must run after JWTMiddleware.
func SessionMiddleware(issuer *SessionIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := tokenClaims(c)
			if !ok || claims.ID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			if _, err := issuer.Lookup(c.Request().Context(), claims.ID); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Session revoked or expired")
			}
			return next(c)
		}
	}
}

func tokenClaims(c echo.Context) (*Claims, bool) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*Claims)
	return claims, ok
}

// GetIdentityFromToken returns the identity of the authenticated request.
func GetIdentityFromToken(c echo.Context) string {
	claims, ok := tokenClaims(c)
	if !ok {
		return ""
	}
	return claims.Identity
}

// GetSessionIDFromToken returns the session id of the authenticated request.
func GetSessionIDFromToken(c echo.Context) string {
	claims, ok := tokenClaims(c)
	if !ok {
		return ""
	}
	return claims.ID
}
