package numbers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

// Handler exposes virtual number HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	Country string `json:"country"`
	Service string `json:"service"`
	PoolID  string `json:"pool_id"`
}

type smsResponse struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Price quotes ?country=&service=&pool_id=.
func (h *Handler) Price(c *fiber.Ctx) error {
	q, err := h.service.Quote(c.UserContext(), Request{
		UserID:  orders.UserID(c),
		Country: c.Query("country"),
		Service: c.Query("service"),
		PoolID:  c.Query("pool_id"),
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"amount":            q.Amount.StringFixed(money.FiatPlaces),
		"currency":          q.Currency,
		"provider_price":    q.Base.Amount.StringFixed(money.UnitPlaces),
		"provider_currency": q.Base.Currency,
		"converted":         q.Converted,
	})
}

type poolResponse struct {
	PoolID   string `json:"pool_id"`
	Name     string `json:"name"`
	Service  string `json:"service"`
	Country  string `json:"country"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Stock    int64  `json:"stock"`
}

// Services lists number pools, filtered by ?country=&service=.
func (h *Handler) Services(c *fiber.Ctx) error {
	pools, err := h.service.Pools(c.UserContext(), orders.UserID(c), c.Query("country"), c.Query("service"))
	if err != nil {
		return mapError(err)
	}
	out := make([]poolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolResponse{
			PoolID:   p.ID,
			Name:     p.Name,
			Service:  p.Category,
			Country:  p.Country,
			Amount:   p.Charge.Amount.StringFixed(money.FiatPlaces),
			Currency: p.Charge.Currency,
			Stock:    p.Stock,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"services": out})
}

// Purchase rents a number for the caller.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o, err := h.service.Purchase(c.UserContext(), Request{
		UserID:  orders.UserID(c),
		Country: req.Country,
		Service: req.Service,
		PoolID:  req.PoolID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(orders.ToResponse(o))
}

// Cancel cancels a rented number that has not received any SMS.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	o, err := h.service.Cancel(c.UserContext(), orders.UserID(c), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(orders.ToResponse(o))
}

// SMS polls for and lists received messages.
func (h *Handler) SMS(c *fiber.Ctx) error {
	o, msgs, err := h.service.CheckSMS(c.UserContext(), orders.UserID(c), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	out := make([]smsResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, smsResponse{Text: m.Text, ReceivedAt: m.ReceivedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"order":    orders.ToResponse(o),
		"messages": out,
	})
}

func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), orders.UserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"orders": orders.ToResponses(list)})
}

func mapError(err error) error {
	if errors.Is(err, ErrCountryRequired) || errors.Is(err, ErrServiceRequired) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, provider.ErrNoCatalog) {
		return fiber.NewError(http.StatusNotImplemented, err.Error())
	}
	return orders.HTTPError(err)
}
