package deposits

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/orders"
)

// Handler exposes deposit HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Email   string          `json:"email"`
	Channel string          `json:"channel"`
}

// Create starts a deposit and returns where the user should pay.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o, err := h.service.Create(c.UserContext(), CreateInput{
		UserID:  orders.UserID(c),
		Email:   req.Email,
		Amount:  req.Amount,
		Channel: req.Channel,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(orders.ToResponse(o))
}

func (h *Handler) Get(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), orders.UserID(c), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(orders.ToResponse(o))
}

func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), orders.UserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": orders.ToResponses(list)})
}

// Callback verifies ?deposit_id= with the gateway after checkout.
func (h *Handler) Callback(c *fiber.Ctx) error {
	id := c.Query("deposit_id")
	if id == "" {
		return fiber.NewError(http.StatusBadRequest, "deposit_id is required")
	}
	o, err := h.service.Verify(c.UserContext(), orders.UserID(c), id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(orders.ToResponse(o))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidChannel):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return orders.HTTPError(err)
	}
}
