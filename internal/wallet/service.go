package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/identity"
	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
)

const defaultHistoryLimit = 50

// Service exposes wallet operations backed by the ledger.
type Service struct {
	ledger          *ledger.Ledger
	defaultCurrency string
}

// NewService builds a wallet service instance.
func NewService(led *ledger.Ledger, defaultCurrency string) *Service {
	return &Service{ledger: led, defaultCurrency: money.NormalizeCurrency(defaultCurrency)}
}

// Provision opens the wallet of a newly registered user. The currency follows
// the user's country. Provisioning an owner twice returns the existing wallet.
func (s *Service) Provision(ctx context.Context, ownerID, country string) (ledger.Wallet, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return ledger.Wallet{}, err
	}
	now := time.Now().UTC()
	w := ledger.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Reserved:  decimal.Zero,
		Currency:  CurrencyFor(country, s.defaultCurrency),
		Status:    ledger.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.ledger.Create(ctx, w)
	if errors.Is(err, ledger.ErrWalletExists) {
		return s.ledger.GetByOwner(ctx, ownerID)
	}
	if err != nil {
		return ledger.Wallet{}, err
	}
	return w, nil
}

// Balance returns the owner's wallet balance.
func (s *Service) Balance(ctx context.Context, ownerID string) (Balance, error) {
	w, err := s.ledger.GetByOwner(ctx, ownerID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		WalletID:  w.ID,
		Balance:   w.Balance,
		Reserved:  w.Reserved,
		Spendable: w.Spendable(),
		Currency:  w.Currency,
		AsOf:      time.Now().UTC(),
	}, nil
}

// History returns the owner's journal, newest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	w, err := s.ledger.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, w.ID, limit)
}

// ProvisionUser opens the wallet of a user created by the identity service.
func (s *Service) ProvisionUser(ctx context.Context, user identity.User) error {
	_, err := s.Provision(ctx, user.ID, user.Country)
	return err
}
