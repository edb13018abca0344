package handlers

import (
	"github.com/labstack/echo/v4"
)

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// JSONResponse sends a standard JSON response
func JSONResponse(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, APIResponse{
		Success:   status >= 200 && status < 300,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
	})
}

// JSONError sends a standard JSON error response
func JSONError(c echo.Context, status int, message string) error {
	return c.JSON(status, APIResponse{
		Success:   false,
		Message:   message,
		RequestID: requestID(c),
	})
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
