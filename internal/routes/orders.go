package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/boost"
	"github.com/socialpulse/socialpulse/internal/deposits"
	"github.com/socialpulse/socialpulse/internal/numbers"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/reconcile"
)

// RegisterOrderRoutes wires the generic order endpoints.
func RegisterOrderRoutes(r fiber.Router, h *orders.Handler) {
	r.Get("/orders", h.List)
	r.Get("/orders/:id", h.Get)
	r.Post("/orders/:id/cancel", h.Cancel)
	r.Post("/orders/:id/retry", h.Retry)
}

// RegisterBoostRoutes wires social media boost endpoints.
func RegisterBoostRoutes(r fiber.Router, h *boost.Handler) {
	r.Get("/boost/services", h.Services)
	r.Get("/boost/price", h.Price)
	r.Post("/boost", h.Create)
	r.Get("/boost", h.List)
	r.Post("/boost/:id/status", h.Refresh)
}

// RegisterDepositRoutes wires wallet top-up endpoints.
func RegisterDepositRoutes(r fiber.Router, h *deposits.Handler) {
	r.Post("/deposits", h.Create)
	r.Get("/deposits", h.List)
	r.Get("/deposits/callback", h.Callback)
	r.Get("/deposits/:id", h.Get)
}

// RegisterNumberRoutes wires virtual number rental endpoints.
func RegisterNumberRoutes(r fiber.Router, h *numbers.Handler) {
	r.Get("/numbers/services", h.Services)
	r.Get("/numbers/price", h.Price)
	r.Post("/numbers", h.Purchase)
	r.Get("/numbers", h.List)
	r.Post("/numbers/:id/cancel", h.Cancel)
	r.Get("/numbers/:id/sms", h.SMS)
}

// RegisterReconcileRoutes wires the payment webhook and the manual trigger. The
// webhook is authenticated by its signature, not by a user token.
func RegisterReconcileRoutes(app *fiber.App, api fiber.Router, h *reconcile.Handler, guard, limiter fiber.Handler) {
	app.Post("/webhooks/paystack", h.Webhook)
	app.Post("/webhook", h.Webhook)
	api.Post("/reconcile/:orderId", guard, limiter, h.Reconcile)
}
