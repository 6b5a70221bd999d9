package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/provider"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrNotCancellable is returned when an order may not be cancelled; nothing changes.
	ErrNotCancellable = errors.New("order cannot be cancelled")
	// ErrNotRetryable is returned when Resubmit is called on an order already
	// known to the provider or no longer pending.
	ErrNotRetryable = errors.New("order cannot be retried")
	// ErrDuplicateReference is returned when another order of the same kind already
	// carries the provider reference.
	ErrDuplicateReference = errors.New("provider reference already recorded")
	// ErrNoChange is returned by a Decider to leave an order untouched.
	ErrNoChange = errors.New("no change")
)

// Kind is the product an order buys.
type Kind string

const (
	KindBoost   Kind = "boost"
	KindDeposit Kind = "deposit"
	KindNumber  Kind = "virtual_number"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBoost, KindDeposit, KindNumber:
		return true
	}
	return false
}

// ChargeMode selects how an order touches the wallet.
type ChargeMode string

const (
	// ModeReserve holds funds at creation and captures them on delivery.
	ModeReserve ChargeMode = "reserve"
	// ModeDebit takes funds as soon as the provider accepts the order.
	ModeDebit ChargeMode = "debit"
	// ModeCredit adds funds on confirmation (deposits).
	ModeCredit ChargeMode = "credit"
)

// Order is a wallet-affecting request fulfilled by a provider.
type Order struct {
	ID                string
	UserID            string
	WalletID          string
	Kind              Kind
	Status            Status
	ChargeMode        ChargeMode
	AmountCharged     decimal.NullDecimal
	Currency          string
	ProviderReference string
	ErrorMessage      string
	// Held is the amount currently reserved on the wallet for this order.
	Held decimal.Decimal
	// Debited is the amount taken from the balance and not yet refunded.
	Debited     decimal.Decimal
	Details     Details
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	DeliveredAt *time.Time
}

// Amount returns the charged amount, zero when not priced yet.
func (o Order) Amount() decimal.Decimal {
	if !o.AmountCharged.Valid {
		return decimal.Zero
	}
	return o.AmountCharged.Decimal
}

// Details holds the kind-specific part of an order. Exactly one of Boost,
// Deposit or Number is set.
type Details struct {
	Selector provider.Selector `json:"selector,omitempty"`
	Target   string            `json:"target,omitempty"`
	Boost    *BoostDetails     `json:"boost,omitempty"`
	Deposit  *DepositDetails   `json:"deposit,omitempty"`
	Number   *NumberDetails    `json:"number,omitempty"`
}

// clone returns a deep copy so stored orders never share mutable state.
func (d Details) clone() Details {
	out := Details{Target: d.Target}
	if d.Selector != nil {
		out.Selector = make(provider.Selector, len(d.Selector))
		for k, v := range d.Selector {
			out.Selector[k] = v
		}
	}
	if d.Boost != nil {
		b := *d.Boost
		out.Boost = &b
	}
	if d.Deposit != nil {
		dep := *d.Deposit
		out.Deposit = &dep
	}
	if d.Number != nil {
		n := *d.Number
		out.Number = &n
	}
	return out
}

type BoostDetails struct {
	Platform         string          `json:"platform"`
	ServiceName      string          `json:"service_name"`
	ServiceID        string          `json:"service_id"`
	Link             string          `json:"link"`
	Quantity         int64           `json:"quantity"`
	Audience         string          `json:"audience,omitempty"`
	Quality          string          `json:"quality,omitempty"`
	TrafficSource    string          `json:"traffic_source,omitempty"`
	DeliveryTime     string          `json:"delivery_time,omitempty"`
	ProviderCharge   decimal.Decimal `json:"provider_charge"`
	ProviderCurrency string          `json:"provider_currency"`
	StartCount       int64           `json:"start_count"`
	Remains          int64           `json:"remains"`
}

type DepositDetails struct {
	Method           string          `json:"method"`
	Channel          string          `json:"channel"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	AccountNumber    string          `json:"account_number,omitempty"`
	AccountName      string          `json:"account_name,omitempty"`
	BankName         string          `json:"bank_name,omitempty"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	PaidCurrency     string          `json:"paid_currency,omitempty"`
}

type NumberDetails struct {
	Country      string `json:"country"`
	Service      string `json:"service"`
	PoolID       string `json:"pool_id,omitempty"`
	Route        string `json:"route,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	ActivationID string `json:"activation_id,omitempty"`
}

// SMS is a message received on a rented number. Append-only.
type SMS struct {
	ID         string
	OrderID    string
	Text       string
	ReceivedAt time.Time
}

// ListFilter narrows ListByUser. A zero Kind lists every kind.
type ListFilter struct {
	Kind  Kind
	Limit int
}
