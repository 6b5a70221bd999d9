package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/provider"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusPartial, StatusFailed, StatusCancelled, StatusExpired},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the wallet side of the order is settled. Partial is
// settled too: the delivered part was charged and the rest returned.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Change describes what a transition should do. A zero To only applies Update,
// which may touch informational fields but never the wallet.
type Change struct {
	To     Status
	Reason string
	// Amount overrides the credited amount when a credit order completes.
	Amount decimal.Decimal
	// Delivered and Quantity size the charge of a Partial transition.
	Delivered int64
	Quantity  int64
	// Reference is recorded as the provider reference when non-empty.
	Reference string
	// Messages are content the provider delivered, appended once each.
	Messages []provider.Message
	Update   func(o *Order)
}

// Step moves o to c.To and applies the matching wallet effect to w. Both must be
// persisted together by the caller. w must be the order's wallet, already locked.
func Step(o *Order, w *ledger.Wallet, c Change, now time.Time) error {
	if !CanTransition(o.Status, c.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, c.To)
	}
	if w.ID != o.WalletID {
		return fmt.Errorf("order %s does not belong to wallet %s", o.ID, w.ID)
	}

	switch c.To {
	case StatusProcessing:
		if err := charge(o, w); err != nil {
			return err
		}
	case StatusCompleted:
		if err := settle(o, w, c); err != nil {
			return err
		}
		o.ConfirmedAt = &now
	case StatusPartial:
		if err := settlePartial(o, w, c); err != nil {
			return err
		}
		o.ConfirmedAt = &now
	case StatusFailed, StatusCancelled, StatusExpired:
		if err := refund(o, w); err != nil {
			return err
		}
		if c.To == StatusCancelled {
			o.CancelledAt = &now
		}
		if c.Reason != "" {
			o.ErrorMessage = c.Reason
		}
	}

	if c.Reference != "" {
		o.ProviderReference = c.Reference
	}
	if c.Update != nil {
		c.Update(o)
	}
	o.Status = c.To
	o.UpdatedAt = now
	return nil
}

// charge performs the reservation or debit that accompanies acceptance, once.
func charge(o *Order, w *ledger.Wallet) error {
	amount := o.Amount()
	switch o.ChargeMode {
	case ModeReserve:
		if o.Held.IsPositive() || !amount.IsPositive() {
			return nil
		}
		if err := w.Reserve(amount, o.ID); err != nil {
			return err
		}
		o.Held = amount
	case ModeDebit:
		if o.Debited.IsPositive() || !amount.IsPositive() {
			return nil
		}
		// Funds held for other orders are not available to a debit.
		if w.Spendable().LessThan(amount) {
			return ledger.ErrInsufficientFunds
		}
		if err := w.Debit(amount, o.ID); err != nil {
			return err
		}
		o.Debited = amount
	}
	return nil
}

func settle(o *Order, w *ledger.Wallet, c Change) error {
	switch o.ChargeMode {
	case ModeReserve:
		if o.Held.IsPositive() {
			if _, err := w.Capture(o.Held, o.ID); err != nil {
				return err
			}
			o.Held = decimal.Zero
		}
	case ModeCredit:
		amount := o.Amount()
		if c.Amount.IsPositive() {
			amount = c.Amount
		}
		if err := w.Credit(amount, o.ID); err != nil {
			return err
		}
		o.AmountCharged = decimal.NewNullDecimal(amount)
	}
	return nil
}

// settlePartial charges the delivered fraction and returns the rest.
func settlePartial(o *Order, w *ledger.Wallet, c Change) error {
	full := o.Amount()
	due := full
	if c.Quantity > 0 {
		delivered := c.Delivered
		if delivered < 0 {
			delivered = 0
		}
		if delivered > c.Quantity {
			delivered = c.Quantity
		}
		due = money.RoundFiat(full.Mul(decimal.NewFromInt(delivered)).Div(decimal.NewFromInt(c.Quantity)))
	}

	switch o.ChargeMode {
	case ModeReserve:
		due = decimal.Min(due, o.Held)
		if due.IsPositive() {
			if _, err := w.Capture(due, o.ID); err != nil {
				return err
			}
		}
		if rest := o.Held.Sub(due); rest.IsPositive() {
			if _, err := w.Release(rest, o.ID); err != nil {
				return err
			}
		}
		o.Held = decimal.Zero
	case ModeDebit:
		due = decimal.Min(due, o.Debited)
		if rest := o.Debited.Sub(due); rest.IsPositive() {
			if err := w.Credit(rest, o.ID); err != nil {
				return err
			}
		}
		o.Debited = due
	}
	o.AmountCharged = decimal.NewNullDecimal(due)
	return nil
}

// refund returns whatever the order still holds or has taken.
func refund(o *Order, w *ledger.Wallet) error {
	if o.Held.IsPositive() {
		if _, err := w.Release(o.Held, o.ID); err != nil {
			return err
		}
		o.Held = decimal.Zero
	}
	if o.Debited.IsPositive() {
		if err := w.Credit(o.Debited, o.ID); err != nil {
			return err
		}
		o.Debited = decimal.Zero
	}
	return nil
}
