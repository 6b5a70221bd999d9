package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Balance)
	r.Get("/wallet/history", h.History)
}
