package handlers

import (
	"net"

	"github.com/labstack/echo/v4"

	"github.com/84adam/zkauth/auth"
)

// ClientContext attaches the caller's address to the request context so
// security events can record an entity id for it.
func ClientContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ip := net.ParseIP(c.RealIP()); ip != nil {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithClientIP(req.Context(), ip)))
		}
		return next(c)
	}
}

// NoStore keeps challenges and tokens out of intermediary caches.
func NoStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return next(c)
	}
}
