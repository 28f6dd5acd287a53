package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewCORS lets browser clients on allowOrigins (comma separated, "*" for any)
// call the API.
func NewCORS(allowOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	})
}

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	app.Get("/healthz", h.Health)

	auth := app.Group("/api/v1/auth")
	auth.Post("/register", h.Register)
	auth.Post("/request-otp", h.RequestOTP)
	auth.Post("/verify-otp", h.VerifyOTP)
	auth.Post("/login", h.Login)
}
