package orders

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/provider"
)

// LocalUserID is the fiber.Ctx local holding the authenticated user id.
const LocalUserID = "user_id"

// UserID returns the authenticated user id set by the auth middleware.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUserID).(string)
	return uid
}

// HTTPError maps domain errors onto HTTP status codes.
func HTTPError(err error) error {
	var rejected *provider.RejectedError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrNotRetryable), errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &rejected):
		return fiber.NewError(http.StatusUnprocessableEntity, rejected.Reason)
	case errors.Is(err, provider.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "provider unavailable, try again later")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Response is the JSON view of an order.
type Response struct {
	ID                string     `json:"id"`
	Kind              Kind       `json:"kind"`
	Status            Status     `json:"status"`
	Amount            string     `json:"amount,omitempty"`
	Currency          string     `json:"currency"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	Held              string     `json:"held"`
	Boost             any        `json:"boost,omitempty"`
	Deposit           any        `json:"deposit,omitempty"`
	Number            any        `json:"number,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// ToResponse renders o for API clients.
func ToResponse(o Order) Response {
	r := Response{
		ID:                o.ID,
		Kind:              o.Kind,
		Status:            o.Status,
		Currency:          o.Currency,
		ProviderReference: o.ProviderReference,
		ErrorMessage:      o.ErrorMessage,
		Held:              o.Held.StringFixed(money.FiatPlaces),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		ConfirmedAt:       o.ConfirmedAt,
		CancelledAt:       o.CancelledAt,
		DeliveredAt:       o.DeliveredAt,
	}
	if o.AmountCharged.Valid {
		r.Amount = o.AmountCharged.Decimal.StringFixed(money.FiatPlaces)
	}
	if o.Details.Boost != nil {
		r.Boost = o.Details.Boost
	}
	if o.Details.Deposit != nil {
		r.Deposit = o.Details.Deposit
	}
	if o.Details.Number != nil {
		r.Number = o.Details.Number
	}
	return r
}

// ToResponses renders a list of orders.
func ToResponses(list []Order) []Response {
	out := make([]Response, 0, len(list))
	for _, o := range list {
		out = append(out, ToResponse(o))
	}
	return out
}

// Handler exposes kind-agnostic order endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get returns one of the caller's orders.
func (h *Handler) Get(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), UserID(c), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(ToResponse(o))
}

// List returns the caller's orders, optionally filtered by ?kind=.
func (h *Handler) List(c *fiber.Ctx) error {
	kind := Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown kind")
	}
	list, err := h.service.ListByUser(c.UserContext(), UserID(c), ListFilter{Kind: kind, Limit: c.QueryInt("limit", 50)})
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"orders": ToResponses(list)})
}

// Cancel cancels one of the caller's orders.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	o, err := h.service.Cancel(c.UserContext(), UserID(c), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(ToResponse(o))
}

// Retry resubmits a pending order to its provider.
func (h *Handler) Retry(c *fiber.Ctx) error {
	o, err := h.service.Resubmit(c.UserContext(), UserID(c), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(ToResponse(o))
}
