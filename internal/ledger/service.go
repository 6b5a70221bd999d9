package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/logging"
	"github.com/socialpulse/socialpulse/internal/metrics"
)

// Ledger is the entry point for wallet mutations. Every call is one Store.Update,
// that is one locked transaction on a single wallet.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a ledger over store. logger and m may be nil.
func New(store Store, logger *slog.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ledger{store: store, logger: logger, metrics: m}
}

func (l *Ledger) Create(ctx context.Context, w Wallet) error {
	return l.store.Create(ctx, w)
}

func (l *Ledger) Get(ctx context.Context, id string) (Wallet, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return l.store.GetByOwner(ctx, ownerID)
}

func (l *Ledger) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	return l.store.Entries(ctx, walletID, limit)
}

// Update runs fn against the locked wallet and records the applied operations.
func (l *Ledger) Update(ctx context.Context, walletID string, fn UpdateFunc) (Wallet, error) {
	w, err := l.store.Update(ctx, walletID, fn)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			l.metrics.IncWalletOp("update", "insufficient_funds")
		case errors.Is(err, ErrWalletNotFound):
			l.metrics.IncWalletOp("update", "not_found")
		default:
			l.metrics.IncWalletOp("update", "error")
		}
		return Wallet{}, err
	}
	for _, e := range w.Journal() {
		l.metrics.IncWalletOp(string(e.Op), "ok")
		l.logger.Debug("wallet mutated",
			slog.String("wallet_id", e.WalletID),
			slog.String("op", string(e.Op)),
			slog.String("amount", e.Amount.String()),
			slog.String("reference", e.Reference),
			slog.String("balance", e.BalanceAfter.String()),
			slog.String("reserved", e.ReservedAfter.String()),
		)
	}
	return w, nil
}

// Reserve holds amount for ref; fails with ErrInsufficientFunds and no change when
// the spendable balance is too small.
func (l *Ledger) Reserve(ctx context.Context, walletID string, amount decimal.Decimal, ref string) (Wallet, error) {
	return l.Update(ctx, walletID, func(_ context.Context, w *Wallet) error {
		return w.Reserve(amount, ref)
	})
}

func (l *Ledger) Release(ctx context.Context, walletID string, amount decimal.Decimal, ref string) (Wallet, error) {
	return l.Update(ctx, walletID, func(_ context.Context, w *Wallet) error {
		_, err := w.Release(amount, ref)
		return err
	})
}

func (l *Ledger) Capture(ctx context.Context, walletID string, amount decimal.Decimal, ref string) (Wallet, error) {
	return l.Update(ctx, walletID, func(_ context.Context, w *Wallet) error {
		_, err := w.Capture(amount, ref)
		return err
	})
}

func (l *Ledger) Debit(ctx context.Context, walletID string, amount decimal.Decimal, ref string) (Wallet, error) {
	return l.Update(ctx, walletID, func(_ context.Context, w *Wallet) error {
		return w.Debit(amount, ref)
	})
}

func (l *Ledger) Credit(ctx context.Context, walletID string, amount decimal.Decimal, ref string) (Wallet, error) {
	return l.Update(ctx, walletID, func(_ context.Context, w *Wallet) error {
		return w.Credit(amount, ref)
	})
}
