package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/money"
)

var (
	// ErrUnavailable signals a transient provider failure (network, timeout, 5xx).
	// The order keeps its prior state and may be retried.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrNotCancellable is returned when the provider refuses a cancellation.
	ErrNotCancellable = errors.New("provider refused cancellation")
	// ErrUnknownOrder is returned when the provider has no record of an external id.
	ErrUnknownOrder = errors.New("provider does not know this order")
	// ErrNoGateway is returned by Registry for an unregistered kind.
	ErrNoGateway = errors.New("no gateway registered for kind")
)

// RejectedError is a definitive refusal from the provider.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "provider rejected order: " + e.Reason
}

// Reject builds a *RejectedError.
func Reject(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// Common selector keys.
const (
	KeyService  = "service"
	KeyQuantity = "quantity"
	KeyCountry  = "country"
	KeyPool     = "pool"
	KeyAmount   = "amount"
	KeyCurrency = "currency"
	KeyEmail    = "email"
	KeyChannel  = "channel"
	KeyLink     = "link"
	// KeyOrderID carries the local order id so gateways can echo it back as
	// callback metadata.
	KeyOrderID = "order_id"
)

// Selector identifies what is being bought from a provider.
type Selector map[string]string

func (s Selector) Get(key string) string {
	return strings.TrimSpace(s[key])
}

// With returns a copy of s with key set to value.
func (s Selector) With(key, value string) Selector {
	out := make(Selector, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[key] = value
	return out
}

// Int returns the integer value for key, zero when absent or malformed.
func (s Selector) Int(key string) int64 {
	n, err := strconv.ParseInt(s.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Handle is the provider's acknowledgement of a placed order.
type Handle struct {
	ExternalID   string
	InitialState State
	Raw          map[string]any
}

// Message is content delivered by a provider, such as an SMS.
type Message struct {
	Text       string
	ReceivedAt time.Time
}

// Status is a normalised provider status report.
type Status struct {
	State      State
	Amount     decimal.Decimal
	Currency   string
	Charge     decimal.Decimal
	StartCount int64
	Remains    int64
	Messages   []Message
	Raw        map[string]any
}

// Gateway is the boundary to an external fulfilment or payment provider.
type Gateway interface {
	Quote(ctx context.Context, sel Selector) (money.Price, error)
	PlaceOrder(ctx context.Context, sel Selector, target string) (Handle, error)
	// PollStatus must be idempotent.
	PollStatus(ctx context.Context, externalID string) (Status, error)
	Cancel(ctx context.Context, externalID string) (bool, error)
}
