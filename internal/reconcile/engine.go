package reconcile

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/logging"
	"github.com/socialpulse/socialpulse/internal/metrics"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

var (
	// ErrUnauthorized is returned when a webhook signature is missing or wrong.
	ErrUnauthorized = errors.New("invalid webhook signature")
	// ErrInvalidPayload is returned when a signed webhook body cannot be decoded.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrUnknownReference is returned when no deposit carries the webhook reference.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// Outcome labels what a callback did to its order.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeConflict     Outcome = "conflict"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnknown      Outcome = "unknown_reference"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeInvalid      Outcome = "invalid"
)

const (
	eventChargeSuccess  = "charge.success"
	eventChargeFailed   = "charge.failed"
	eventTransferFailed = "transfer.failed"
	eventPaymentFailed  = "payment.failed"
)

// Engine applies provider callbacks to orders. Webhooks (push) and polling (pull)
// end in the same apply path, so either may arrive any number of times.
type Engine struct {
	orders    *orders.Service
	converter *money.Converter
	secret    []byte
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(ordersSvc *orders.Service, converter *money.Converter, webhookSecret string, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		orders:    ordersSvc,
		converter: converter,
		secret:    []byte(webhookSecret),
		logger:    logger,
		metrics:   m,
	}
}

// webhookEvent keeps data untyped: gateway fields are read defensively and a
// malformed value never rejects an otherwise valid, signed event.
type webhookEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (evt webhookEvent) reference() string {
	switch ref := evt.Data["reference"].(type) {
	case string:
		return strings.TrimSpace(ref)
	case json.Number:
		return ref.String()
	}
	return ""
}

// orderID reads the local order id echoed back in the event metadata.
func (evt webhookEvent) orderID() string {
	meta, _ := evt.Data["metadata"].(map[string]any)
	id, _ := meta[provider.KeyOrderID].(string)
	return strings.TrimSpace(id)
}

// Sign returns the hex HMAC-SHA512 of body under the webhook secret.
func (e *Engine) Sign(body []byte) string {
	mac := hmac.New(sha512.New, e.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleWebhook verifies and applies a payment gateway event. The signature is
// checked before anything is looked up.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature string) (orders.Order, Outcome, error) {
	o, outcome, err := e.handleWebhook(ctx, body, signature)
	label := string(outcome)
	if label == "" {
		label = "error"
	}
	e.metrics.IncWebhook(label)
	return o, outcome, err
}

func (e *Engine) handleWebhook(ctx context.Context, body []byte, signature string) (orders.Order, Outcome, error) {
	if len(e.secret) == 0 || !e.verify(body, signature) {
		logging.FromContext(ctx, e.logger).Warn("webhook rejected: bad signature")
		return orders.Order{}, OutcomeUnauthorized, ErrUnauthorized
	}

	var evt webhookEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&evt); err != nil {
		return orders.Order{}, OutcomeInvalid, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ref := evt.reference()
	if ref == "" {
		return orders.Order{}, OutcomeInvalid, fmt.Errorf("%w: missing reference", ErrInvalidPayload)
	}

	o, err := e.orders.GetByReference(ctx, orders.KindDeposit, ref)
	if errors.Is(err, orders.ErrNotFound) && evt.orderID() != "" {
		o, err = e.adopt(ctx, evt.orderID(), ref)
	}
	if errors.Is(err, orders.ErrNotFound) {
		logging.FromContext(ctx, e.logger).Warn("webhook for unknown reference dropped",
			slog.String("event", evt.Event),
			slog.String("reference", ref),
		)
		return orders.Order{}, OutcomeUnknown, ErrUnknownReference
	}
	if err != nil {
		return orders.Order{}, "", err
	}

	var state provider.State
	switch evt.Event {
	case eventChargeSuccess:
		state = provider.StateCompleted
	case eventChargeFailed, eventTransferFailed, eventPaymentFailed:
		state = provider.StateFailed
	default:
		logging.FromContext(ctx, e.logger).Info("webhook event ignored",
			slog.String("event", evt.Event),
			slog.String("reference", ref),
		)
		return o, OutcomeIgnored, nil
	}

	// The event decides the state; data only contributes amounts. Amounts are
	// in minor units, and a malformed one reads as zero so the recorded amount
	// stands.
	st := provider.StatusFromPayload(evt.Data)
	st.State = state
	st.Amount = st.Amount.Shift(-2)
	if !st.Amount.IsPositive() {
		st.Amount = decimal.Zero
		st.Currency = ""
	}
	st.Raw = map[string]any{"event": evt.Event, "gateway_status": evt.Data["status"]}

	return e.apply(ctx, o, st)
}

// adopt attaches ref to a deposit whose placement has not recorded it yet, as
// happens when the gateway calls back before PlaceOrder returns. Any other
// reference mismatch is reported as ErrNotFound.
func (e *Engine) adopt(ctx context.Context, orderID, ref string) (orders.Order, error) {
	o, err := e.orders.Get(ctx, "", orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Kind != orders.KindDeposit {
		return orders.Order{}, orders.ErrNotFound
	}
	out, changed, err := e.orders.Advance(ctx, o.ID, func(cur orders.Order) (orders.Change, error) {
		if cur.Status != orders.StatusPending || cur.ProviderReference != "" {
			return orders.Change{}, orders.ErrNoChange
		}
		return orders.Change{To: orders.StatusProcessing, Reference: ref}, nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	if !changed && out.ProviderReference != ref {
		return orders.Order{}, orders.ErrNotFound
	}
	if changed {
		logging.FromContext(ctx, e.logger).Info("webhook attached reference to pending deposit",
			slog.String("order_id", out.ID),
			slog.String("reference", ref),
		)
	}
	return out, nil
}

func (e *Engine) verify(body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha512.New, e.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Reconcile polls the provider for an order and applies what it reports.
// Provider failures leave the order as it was.
func (e *Engine) Reconcile(ctx context.Context, orderID string) (orders.Order, error) {
	o, err := e.orders.Get(ctx, "", orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.ProviderReference == "" {
		return o, nil
	}
	// Completed numbers may still receive further codes.
	if o.Status.IsTerminal() && !(o.Kind == orders.KindNumber && o.Status == orders.StatusCompleted) {
		return o, nil
	}

	g, err := e.orders.Gateway(o.Kind)
	if err != nil {
		return o, err
	}
	st, err := g.PollStatus(ctx, o.ProviderReference)
	if errors.Is(err, provider.ErrUnknownOrder) {
		logging.FromContext(ctx, e.logger).Warn("provider has no record of order",
			slog.String("order_id", o.ID),
			slog.String("provider_reference", o.ProviderReference),
		)
		return o, nil
	}
	if err != nil {
		return o, err
	}

	out, _, err := e.apply(ctx, o, st)
	return out, err
}

// apply advances o according to st. Conversions happen before the wallet is
// locked.
func (e *Engine) apply(ctx context.Context, o orders.Order, st provider.Status) (orders.Order, Outcome, error) {
	var decide func(orders.Order) (orders.Change, Outcome)
	switch o.Kind {
	case orders.KindDeposit:
		credit := e.depositAmount(ctx, o, st)
		decide = func(cur orders.Order) (orders.Change, Outcome) { return decideDeposit(cur, st, credit) }
	case orders.KindBoost:
		decide = func(cur orders.Order) (orders.Change, Outcome) { return decideBoost(cur, st) }
	case orders.KindNumber:
		decide = func(cur orders.Order) (orders.Change, Outcome) { return decideNumber(cur, st) }
	default:
		return o, "", fmt.Errorf("unknown order kind %q", o.Kind)
	}

	outcome := OutcomeDuplicate
	out, _, err := e.orders.Advance(ctx, o.ID, func(cur orders.Order) (orders.Change, error) {
		c, oc := decide(cur)
		outcome = oc
		if oc != OutcomeApplied {
			return orders.Change{}, orders.ErrNoChange
		}
		return c, nil
	})
	if err != nil {
		return o, "", err
	}
	if outcome == OutcomeConflict {
		logging.FromContext(ctx, e.logger).Warn("provider state conflicts with settled order",
			slog.String("order_id", out.ID),
			slog.String("kind", string(out.Kind)),
			slog.String("status", string(out.Status)),
			slog.String("provider_state", string(st.State)),
		)
	}
	return out, outcome, nil
}

// depositAmount converts what the gateway reports as paid into the wallet
// currency. Without a reported amount the recorded amount stands.
func (e *Engine) depositAmount(ctx context.Context, o orders.Order, st provider.Status) decimal.Decimal {
	if !st.Amount.IsPositive() {
		return o.Amount()
	}
	paid := st.Currency
	if paid == "" {
		paid = money.NormalizeCurrency(o.Details.Selector.Get(provider.KeyCurrency))
	}
	if paid == "" {
		paid = o.Currency
	}
	return money.RoundFiat(e.converter.Convert(ctx, st.Amount, paid, o.Currency))
}

// settled handles a report for an order that no longer moves.
func settled(cur orders.Order, target orders.Status) Outcome {
	if target == "" || target == cur.Status {
		return OutcomeDuplicate
	}
	return OutcomeConflict
}

func decideDeposit(cur orders.Order, st provider.Status, credit decimal.Decimal) (orders.Change, Outcome) {
	var target orders.Status
	switch st.State {
	case provider.StateCompleted:
		target = orders.StatusCompleted
	case provider.StateFailed, provider.StateCancelled, provider.StateExpired:
		target = orders.StatusFailed
	default:
		return orders.Change{}, OutcomeIgnored
	}
	if cur.Status.IsTerminal() {
		return orders.Change{}, settled(cur, target)
	}

	c := orders.Change{To: target}
	if target == orders.StatusFailed {
		c.Reason = "payment " + string(st.State)
		return c, OutcomeApplied
	}
	c.Amount = credit
	paidAmount, paidCurrency := st.Amount, st.Currency
	c.Update = func(o *orders.Order) {
		if o.Details.Deposit == nil {
			o.Details.Deposit = &orders.DepositDetails{}
		}
		if paidAmount.IsPositive() {
			o.Details.Deposit.PaidAmount = paidAmount
			o.Details.Deposit.PaidCurrency = paidCurrency
		}
	}
	return c, OutcomeApplied
}

func decideBoost(cur orders.Order, st provider.Status) (orders.Change, Outcome) {
	var target orders.Status
	switch st.State {
	case provider.StateCompleted:
		target = orders.StatusCompleted
	case provider.StatePartial:
		target = orders.StatusPartial
	case provider.StateFailed:
		target = orders.StatusFailed
	case provider.StateCancelled:
		target = orders.StatusCancelled
	case provider.StateExpired:
		target = orders.StatusExpired
	}
	if cur.Status.IsTerminal() {
		return orders.Change{}, settled(cur, target)
	}

	update := boostProgress(st)
	if target == "" || cur.Status == orders.StatusPending {
		if !progressChanged(cur, st) {
			return orders.Change{}, OutcomeDuplicate
		}
		return orders.Change{Update: update}, OutcomeApplied
	}

	c := orders.Change{To: target, Update: update}
	switch target {
	case orders.StatusPartial:
		qty := int64(0)
		if cur.Details.Boost != nil {
			qty = cur.Details.Boost.Quantity
		}
		c.Quantity = qty
		c.Delivered = qty - st.Remains
	case orders.StatusFailed:
		c.Reason = "provider reported failure"
	}
	return c, OutcomeApplied
}

func boostProgress(st provider.Status) func(*orders.Order) {
	return func(o *orders.Order) {
		if o.Details.Boost == nil {
			return
		}
		b := o.Details.Boost
		b.Remains = st.Remains
		if st.StartCount > 0 {
			b.StartCount = st.StartCount
		}
		if st.Charge.IsPositive() {
			b.ProviderCharge = st.Charge
			if st.Currency != "" {
				b.ProviderCurrency = st.Currency
			}
		}
	}
}

func progressChanged(cur orders.Order, st provider.Status) bool {
	b := cur.Details.Boost
	if b == nil {
		return false
	}
	return b.Remains != st.Remains ||
		(st.StartCount > 0 && b.StartCount != st.StartCount) ||
		(st.Charge.IsPositive() && !b.ProviderCharge.Equal(st.Charge))
}

func decideNumber(cur orders.Order, st provider.Status) (orders.Change, Outcome) {
	hasMessages := len(st.Messages) > 0

	if cur.Status.IsTerminal() {
		// Further codes on a completed rental are still recorded.
		if cur.Status == orders.StatusCompleted && hasMessages {
			return orders.Change{Messages: st.Messages}, OutcomeApplied
		}
		var target orders.Status
		switch st.State {
		case provider.StateCompleted:
			target = orders.StatusCompleted
		case provider.StateFailed, provider.StateCancelled, provider.StateExpired:
			target = orders.Status(st.State)
		}
		return orders.Change{}, settled(cur, target)
	}
	if cur.Status == orders.StatusPending {
		return orders.Change{}, OutcomeIgnored
	}

	switch {
	case hasMessages, st.State == provider.StateCompleted:
		// The first code delivered settles the rental.
		return orders.Change{To: orders.StatusCompleted, Messages: st.Messages}, OutcomeApplied
	case st.State == provider.StateExpired:
		return orders.Change{To: orders.StatusExpired, Reason: "no sms received"}, OutcomeApplied
	case st.State == provider.StateCancelled:
		return orders.Change{To: orders.StatusCancelled}, OutcomeApplied
	case st.State == provider.StateFailed:
		return orders.Change{To: orders.StatusFailed, Reason: "provider reported failure"}, OutcomeApplied
	}
	return orders.Change{}, OutcomeIgnored
}
