package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/identity"
)

// RegisterIdentityRoutes wires registration; the wallet is provisioned by the
// identity service.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

// RegisterProfileRoutes wires endpoints about the authenticated user.
func RegisterProfileRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
}
