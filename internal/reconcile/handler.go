package reconcile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/middleware"
	"github.com/socialpulse/socialpulse/internal/orders"
)

const signatureHeader = "x-paystack-signature"

// Handler exposes the webhook and the manual reconcile trigger.
type Handler struct {
	engine *Engine
	orders *orders.Service
}

func NewHandler(engine *Engine, ordersSvc *orders.Service) *Handler {
	return &Handler{engine: engine, orders: ordersSvc}
}

// Webhook receives payment gateway events. Unknown references are acknowledged
// so the gateway stops retrying them.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	_, outcome, err := h.engine.HandleWebhook(c.UserContext(), c.Body(), c.Get(signatureHeader))
	switch {
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInvalidPayload):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownReference):
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": string(OutcomeUnknown)})
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": string(outcome)})
}

// Reconcile polls the provider for :orderId. Internal callers may reconcile any
// order; users only their own.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	id := c.Params("orderId")
	if !middleware.IsInternal(c) {
		userID := orders.UserID(c)
		if userID == "" {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}
		if _, err := h.orders.Get(c.UserContext(), userID, id); err != nil {
			return orders.HTTPError(err)
		}
	}
	o, err := h.engine.Reconcile(c.UserContext(), id)
	if err != nil {
		return orders.HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(orders.ToResponse(o))
}
