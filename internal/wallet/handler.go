package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type entryResponse struct {
	ID            string    `json:"id"`
	Op            string    `json:"op"`
	Amount        string    `json:"amount"`
	Reference     string    `json:"reference"`
	BalanceAfter  string    `json:"balance_after"`
	ReservedAfter string    `json:"reserved_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// Balance returns the caller's wallet.
func (h *Handler) Balance(c *fiber.Ctx) error {
	b, err := h.service.Balance(c.UserContext(), orders.UserID(c))
	if err != nil {
		return orders.HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": b.WalletID,
		"balance":   b.Balance.StringFixed(money.FiatPlaces),
		"reserved":  b.Reserved.StringFixed(money.FiatPlaces),
		"spendable": b.Spendable.StringFixed(money.FiatPlaces),
		"currency":  b.Currency,
		"timestamp": b.AsOf,
	})
}

// History returns the caller's wallet journal.
func (h *Handler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), orders.UserID(c), c.QueryInt("limit", defaultHistoryLimit))
	if err != nil {
		return orders.HTTPError(err)
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:            e.ID,
			Op:            string(e.Op),
			Amount:        e.Amount.StringFixed(money.FiatPlaces),
			Reference:     e.Reference,
			BalanceAfter:  e.BalanceAfter.StringFixed(money.FiatPlaces),
			ReservedAfter: e.ReservedAfter.StringFixed(money.FiatPlaces),
			CreatedAt:     e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}
