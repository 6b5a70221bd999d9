package boost

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

// Handler exposes boost HTTP endpoints.
type Handler struct {
	service    *Service
	reconciler Reconciler
}

// NewHandler builds a boost HTTP handler.
func NewHandler(service *Service, reconciler Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

type createRequest struct {
	ServiceID     string `json:"service_id"`
	ServiceName   string `json:"service_name"`
	Platform      string `json:"platform"`
	Link          string `json:"link"`
	Quantity      int64  `json:"quantity"`
	Audience      string `json:"audience"`
	Quality       string `json:"quality"`
	TrafficSource string `json:"traffic_source"`
	DeliveryTime  string `json:"delivery_time"`
}

// Price quotes ?service_id=&quantity= in the caller's wallet currency.
func (h *Handler) Price(c *fiber.Ctx) error {
	q, err := h.service.Quote(c.UserContext(), QuoteInput{
		UserID:    orders.UserID(c),
		ServiceID: c.Query("service_id"),
		Quantity:  int64(c.QueryInt("quantity")),
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"service_id":        q.ServiceID,
		"quantity":          q.Quantity,
		"provider_price":    q.ProviderPrice.Amount.StringFixed(money.UnitPlaces),
		"provider_currency": q.ProviderPrice.Currency,
		"amount":            q.Amount.StringFixed(money.FiatPlaces),
		"currency":          q.Currency,
		"converted":         q.Converted,
	})
}

type offeringResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Platform        string `json:"platform"`
	RatePerThousand string `json:"rate_per_thousand"`
	Currency        string `json:"currency"`
	Min             int64  `json:"min"`
	Max             int64  `json:"max"`
}

// Services lists what can be bought, filtered by ?platform=.
func (h *Handler) Services(c *fiber.Ctx) error {
	list, err := h.service.Services(c.UserContext(), orders.UserID(c), c.Query("platform"))
	if err != nil {
		return mapError(err)
	}
	out := make([]offeringResponse, 0, len(list))
	for _, o := range list {
		out = append(out, offeringResponse{
			ID:              o.ID,
			Name:            o.Name,
			Platform:        o.Category,
			RatePerThousand: o.RatePerThousand.Amount.StringFixed(money.FiatPlaces),
			Currency:        o.RatePerThousand.Currency,
			Min:             o.Min,
			Max:             o.Max,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"services": out})
}

// Create places a boost order for the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o, err := h.service.Create(c.UserContext(), CreateInput{
		UserID:        orders.UserID(c),
		ServiceID:     req.ServiceID,
		ServiceName:   req.ServiceName,
		Platform:      req.Platform,
		Link:          req.Link,
		Quantity:      req.Quantity,
		Audience:      req.Audience,
		Quality:       req.Quality,
		TrafficSource: req.TrafficSource,
		DeliveryTime:  req.DeliveryTime,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(orders.ToResponse(o))
}

// List returns the caller's boost history.
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), orders.UserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"orders": orders.ToResponses(list)})
}

// Refresh pulls the provider status of a boost order.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), orders.UserID(c), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	o, err = h.reconciler.Reconcile(c.UserContext(), o.ID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(orders.ToResponse(o))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrServiceRequired), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidLink):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrNoCatalog):
		return fiber.NewError(http.StatusNotImplemented, err.Error())
	default:
		return orders.HTTPError(err)
	}
}
