package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petalbox/storefront-auth/internal/auth"
)

// RegisterAuthRoutes wires the sign-in endpoints. Only send-code is
// idempotent; replaying verify-code would hand out a stored token.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, idempotency fiber.Handler) {
	group := r.Group("/auth")

	sendChain := []fiber.Handler{}
	verifyChain := []fiber.Handler{}
	if rateLimiter != nil {
		sendChain = append(sendChain, rateLimiter)
		verifyChain = append(verifyChain, rateLimiter)
	}
	if idempotency != nil {
		sendChain = append(sendChain, idempotency)
	}

	group.Post("/send-code", append(sendChain, h.SendCode)...)
	group.Post("/verify-code", append(verifyChain, h.VerifyCode)...)
	group.Get("/session", h.Session)
	group.Get("/me", h.Session)
}
