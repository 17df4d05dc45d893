package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petalbox/storefront-auth/internal/identity"
)

// RegisterIdentityRoutes wires profile and admin listing endpoints behind the
// session guard.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, requireSession, requireAdmin fiber.Handler) {
	users := r.Group("/users", requireSession)
	users.Put("/me", h.UpdateMe)
	users.Get("", requireAdmin, h.List)
}
