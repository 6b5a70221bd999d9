package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedWallet is a test helper that creates a wallet for ownerID holding balance.
func SeedWallet(ctx context.Context, store Store, ownerID, currency string, balance decimal.Decimal) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   balance,
		Reserved:  decimal.Zero,
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}
