package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the wallet's spendable balance cannot cover
	// a reservation or debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletExists is returned when the owner already has a wallet.
	ErrWalletExists = errors.New("wallet already exists")
)

const StatusActive = "active"

// Op names a wallet mutation recorded in the journal.
type Op string

const (
	OpReserve Op = "reserve"
	OpRelease Op = "release"
	OpCapture Op = "capture"
	OpDebit   Op = "debit"
	OpCredit  Op = "credit"
)

// Wallet is a user's balance in a single currency. Balance is what the user owns;
// Reserved is the part of it promised to in-flight orders.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Currency  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time

	journal []Entry
}

// Entry is an informational journal row written with every wallet mutation.
type Entry struct {
	ID            string
	WalletID      string
	Op            Op
	Amount        decimal.Decimal
	Reference     string
	BalanceAfter  decimal.Decimal
	ReservedAfter decimal.Decimal
	CreatedAt     time.Time
}

// Spendable is the balance not promised to any order.
func (w *Wallet) Spendable() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}

// Journal returns the entries recorded on w since it was loaded.
func (w *Wallet) Journal() []Entry {
	return w.journal
}

// Reserve promises amount to ref without moving the balance.
func (w *Wallet) Reserve(amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if w.Spendable().LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Reserved = w.Reserved.Add(amount)
	w.record(OpReserve, amount, ref)
	return nil
}

// Release returns up to amount of the reservation to spendable funds and reports
// how much was actually released.
func (w *Wallet) Release(amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	released := decimal.Min(amount, w.Reserved)
	if !released.IsPositive() {
		return decimal.Zero, nil
	}
	w.Reserved = w.Reserved.Sub(released)
	w.record(OpRelease, released, ref)
	return released, nil
}

// Capture settles a reservation: both balance and reserved shrink by amount,
// each clamped at zero. It returns the amount taken from the balance.
func (w *Wallet) Capture(amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	taken := decimal.Min(amount, w.Balance)
	w.Balance = w.Balance.Sub(taken)
	w.Reserved = w.Reserved.Sub(decimal.Min(amount, w.Reserved))
	w.record(OpCapture, taken, ref)
	return taken, nil
}

// Debit takes amount from the balance immediately.
func (w *Wallet) Debit(amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if w.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	w.record(OpDebit, amount, ref)
	return nil
}

// Credit adds amount to the balance. Callers are responsible for idempotency.
func (w *Wallet) Credit(amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Add(amount)
	w.record(OpCredit, amount, ref)
	return nil
}

func (w *Wallet) record(op Op, amount decimal.Decimal, ref string) {
	w.journal = append(w.journal, Entry{
		ID:            uuid.NewString(),
		WalletID:      w.ID,
		Op:            op,
		Amount:        amount,
		Reference:     ref,
		BalanceAfter:  w.Balance,
		ReservedAfter: w.Reserved,
		CreatedAt:     time.Now().UTC(),
	})
}
