package handlers

import (
	"github.com/84adam/zkauth/auth"
)

// RegisterRoutes initializes all API routes on Echo
func RegisterRoutes() {
	api := Echo.Group("/api", ClientContext, NoStore)

	// Public parameters
	api.GET("/params", GetParams)

	// Registration and proofs
	api.POST("/register", Register)
	api.POST("/challenge", CreateChallenge)
	api.POST("/verify", VerifyAnswer)
	api.POST("/authenticate", Authenticate)

	// Session management - requires a live session token
	sessions := api.Group("", auth.JWTMiddleware(Service.Sessions().Secret()), auth.SessionMiddleware(Service.Sessions()))
	sessions.GET("/session", GetSession)
	sessions.POST("/logout", Logout)
}
