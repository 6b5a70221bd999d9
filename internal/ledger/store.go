package ledger

import "context"

// UpdateFunc mutates a locked wallet. ctx carries the wallet transaction, so
// repositories writing through it commit or roll back with the wallet row.
type UpdateFunc func(ctx context.Context, w *Wallet) error

// Store persists wallets and their journal.
type Store interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (Wallet, error)
	// Update locks the wallet, runs fn and persists the result together with the
	// journal entries fn recorded. Nothing is persisted when fn returns an error.
	Update(ctx context.Context, id string, fn UpdateFunc) (Wallet, error)
	Entries(ctx context.Context, walletID string, limit int) ([]Entry, error)
}
