package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/socialpulse/internal/deposits"
	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/metrics"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/notification"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

const testSecret = "sk_test_webhook"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	engine   *Engine
	orders   *orders.Service
	deposits *deposits.Service
	ledger   *ledger.Ledger
	payments *provider.Sandbox
	smm      *provider.Sandbox
	sms      *provider.Sandbox
	notes    *notification.Recorder
	registry *provider.Registry
	userID   string
	walletID string
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	f := &fixture{
		ledger:   ledger.New(store, nil, nil),
		payments: &provider.Sandbox{Prefix: "PSK_", CheckoutURL: "https://checkout.test/"},
		smm:      &provider.Sandbox{Prefix: "smm-"},
		sms:      &provider.Sandbox{Prefix: "act-"},
		notes:    &notification.Recorder{},
		userID:   uuid.NewString(),
	}
	w, err := ledger.SeedWallet(context.Background(), store, f.userID, "NGN", dec(balance))
	require.NoError(t, err)
	f.walletID = w.ID

	reg := provider.NewRegistry()
	reg.Register(string(orders.KindDeposit), f.payments)
	reg.Register(string(orders.KindBoost), f.smm)
	reg.Register(string(orders.KindNumber), f.sms)
	f.registry = reg

	f.orders = orders.NewService(orders.NewMemoryRepository(), f.ledger, reg, orders.Options{Notifier: f.notes})
	converter := money.NewConverter(money.StaticRates{
		"USD": {"NGN": dec("1500")},
		"NGN": {"USD": dec("0.000666")},
	}, nil, time.Hour, nil, nil)
	f.engine = NewEngine(f.orders, converter, testSecret, nil, metrics.New(prometheus.NewRegistry()))
	f.deposits = deposits.NewService(f.orders, f.ledger, converter, f.engine, dec("100"), "NGN")
	return f
}

func (f *fixture) wallet(t *testing.T) ledger.Wallet {
	t.Helper()
	w, err := f.ledger.Get(context.Background(), f.walletID)
	require.NoError(t, err)
	return w
}

func (f *fixture) deposit(t *testing.T, amount string) orders.Order {
	t.Helper()
	o, err := f.deposits.Create(context.Background(), deposits.CreateInput{
		UserID: f.userID,
		Email:  "ada@example.com",
		Amount: dec(amount),
	})
	require.NoError(t, err)
	require.Equal(t, orders.StatusProcessing, o.Status)
	require.NotEmpty(t, o.ProviderReference)
	return o
}

func (f *fixture) boost(t *testing.T, amount string, quantity int64) orders.Order {
	t.Helper()
	o, err := f.orders.Place(context.Background(), orders.PlaceInput{
		UserID:   f.userID,
		Kind:     orders.KindBoost,
		Mode:     orders.ModeReserve,
		Amount:   dec(amount),
		Selector: provider.Selector{provider.KeyService: "101", provider.KeyQuantity: fmt.Sprint(quantity)},
		Target:   "https://instagram.com/p/abc",
		Details:  orders.Details{Boost: &orders.BoostDetails{ServiceID: "101", Quantity: quantity}},
	})
	require.NoError(t, err)
	return o
}

func webhookBody(event, reference string, kobo int64, currency string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"amount":%d,"currency":%q,"status":"success","customer":{"email":"ada@example.com"}}}`,
		event, reference, kobo, currency))
}

func (f *fixture) send(t *testing.T, body []byte) (orders.Order, Outcome, error) {
	t.Helper()
	return f.engine.HandleWebhook(context.Background(), body, f.engine.Sign(body))
}

func TestWebhookReplayCreditsOnce(t *testing.T) {
	f := newFixture(t, "1000")
	dep := f.deposit(t, "500")
	body := webhookBody("charge.success", dep.ProviderReference, 50000, "NGN")

	o, outcome, err := f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.NotNil(t, o.ConfirmedAt)

	_, outcome, err = f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	w := f.wallet(t)
	assert.Equal(t, "1500", w.Balance.String())
	assert.Len(t, f.notes.Sent(notification.KindDepositCredited), 1)
}

func TestWebhookMalformedAmountCreditsRecordedAmount(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")
	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":"n/a","currency":"NGN"}}`, dep.ProviderReference))

	o, outcome, err := f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, "500", f.wallet(t).Balance.String())
}

func TestWebhookStringAmountIsRead(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")
	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":"45000","currency":"NGN"}}`, dep.ProviderReference))

	_, outcome, err := f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "450", f.wallet(t).Balance.String())
}

func TestConcurrentWebhookAndReconcileCreditOnce(t *testing.T) {
	const rounds = 20
	f := newFixture(t, "0")

	for i := 0; i < rounds; i++ {
		dep := f.deposit(t, "500")
		f.payments.SetPaid(dep.ProviderReference, dec("500"), "NGN")
		body := webhookBody("charge.success", dep.ProviderReference, 50000, "NGN")

		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for j := 0; j < 2; j++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, _, err := f.engine.HandleWebhook(context.Background(), body, f.engine.Sign(body)); err != nil {
					errs <- err
				}
			}()
			go func() {
				defer wg.Done()
				if _, err := f.engine.Reconcile(context.Background(), dep.ID); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		o, err := f.orders.Get(context.Background(), f.userID, dep.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCompleted, o.Status)
	}

	assert.Equal(t, dec("500").Mul(decimal.NewFromInt(rounds)).String(), f.wallet(t).Balance.String())
	assert.Len(t, f.notes.Sent(notification.KindDepositCredited), rounds)
}

func TestDepositAndBoostScenario(t *testing.T) {
	f := newFixture(t, "1000")
	b := f.boost(t, "150", 1000)
	w := f.wallet(t)
	assert.Equal(t, "1000", w.Balance.String())
	assert.Equal(t, "150", w.Reserved.String())

	dep := f.deposit(t, "500")
	body := webhookBody("charge.success", dep.ProviderReference, 50000, "NGN")
	for i := 0; i < 2; i++ {
		_, _, err := f.send(t, body)
		require.NoError(t, err)
	}
	w = f.wallet(t)
	assert.Equal(t, "1500", w.Balance.String())
	assert.Equal(t, "150", w.Reserved.String())

	f.smm.SetStatus(b.ProviderReference, provider.StateCompleted)
	done, err := f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, done.Status)

	w = f.wallet(t)
	assert.Equal(t, "1350", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())

	// Polling a settled order again changes nothing.
	_, err = f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "1350", f.wallet(t).Balance.String())
}

func TestWebhookBadSignature(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")
	body := webhookBody("charge.success", dep.ProviderReference, 50000, "NGN")

	_, outcome, err := f.engine.HandleWebhook(context.Background(), body, "deadbeef")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, OutcomeUnauthorized, outcome)

	_, _, err = f.engine.HandleWebhook(context.Background(), body, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, f.wallet(t).Balance.IsZero())
}

func TestWebhookUnknownReferenceDropped(t *testing.T) {
	f := newFixture(t, "0")
	_, outcome, err := f.send(t, webhookBody("charge.success", "PSK_forged", 50000, "NGN"))
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.True(t, f.wallet(t).Balance.IsZero())
}

func TestWebhookMalformedPayload(t *testing.T) {
	f := newFixture(t, "0")
	body := []byte(`{"event":"charge.success","data":`)
	_, _, err := f.send(t, body)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = f.send(t, []byte(`{"event":"charge.success","data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestWebhookFailureThenLateSuccessIsDropped(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")

	o, _, err := f.send(t, webhookBody("charge.failed", dep.ProviderReference, 50000, "NGN"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, o.Status)

	_, outcome, err := f.send(t, webhookBody("charge.success", dep.ProviderReference, 50000, "NGN"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, outcome)
	assert.True(t, f.wallet(t).Balance.IsZero())
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")
	o, outcome, err := f.send(t, webhookBody("subscription.create", dep.ProviderReference, 50000, "NGN"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, orders.StatusProcessing, o.Status)
}

func TestWebhookConvertsForeignCurrency(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")

	o, _, err := f.send(t, webhookBody("charge.success", dep.ProviderReference, 100, "USD"))
	require.NoError(t, err)
	assert.Equal(t, "1500.00", o.Amount().StringFixed(2))
	assert.Equal(t, "USD", o.Details.Deposit.PaidCurrency)
	assert.Equal(t, "1500", f.wallet(t).Balance.String())
}

func TestVerifyPullsDepositStatus(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")

	o, err := f.deposits.Verify(context.Background(), f.userID, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)

	f.payments.SetPaid(dep.ProviderReference, dec("500"), "NGN")
	o, err = f.deposits.Verify(context.Background(), f.userID, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)

	// The webhook arriving afterwards is a replay.
	_, outcome, err := f.send(t, webhookBody("charge.success", dep.ProviderReference, 50000, "NGN"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, "500", f.wallet(t).Balance.String())
}

func TestReconcileBoostPartial(t *testing.T) {
	f := newFixture(t, "1000")
	b := f.boost(t, "150", 1000)

	f.smm.SetRemains(b.ProviderReference, 400)
	o, err := f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.EqualValues(t, 400, o.Details.Boost.Remains)

	f.smm.SetStatus(b.ProviderReference, provider.StatePartial)
	o, err = f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPartial, o.Status)
	assert.Equal(t, "90", o.Amount().String())

	w := f.wallet(t)
	assert.Equal(t, "910", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())
}

func TestPartialBoostIsSettled(t *testing.T) {
	f := newFixture(t, "1000")
	b := f.boost(t, "150", 1000)
	f.smm.SetRemains(b.ProviderReference, 400)
	f.smm.SetStatus(b.ProviderReference, provider.StatePartial)
	_, err := f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)

	// A later report, replayed or contradicting, no longer moves the wallet.
	f.smm.SetStatus(b.ProviderReference, provider.StateCompleted)
	o, err := f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPartial, o.Status)

	_, err = f.orders.Cancel(context.Background(), f.userID, b.ID)
	assert.ErrorIs(t, err, orders.ErrNotCancellable)

	w := f.wallet(t)
	assert.Equal(t, "910", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())
}

func TestReconcileBoostFailureReleases(t *testing.T) {
	f := newFixture(t, "1000")
	b := f.boost(t, "150", 1000)

	f.smm.SetStatus(b.ProviderReference, provider.StateFailed)
	o, err := f.engine.Reconcile(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, o.Status)

	w := f.wallet(t)
	assert.Equal(t, "1000", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())
}

func TestReconcileUnavailableKeepsState(t *testing.T) {
	f := newFixture(t, "1000")
	b := f.boost(t, "150", 1000)

	f.smm.Down = true
	_, err := f.engine.Reconcile(context.Background(), b.ID)
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	o, err := f.orders.Get(context.Background(), f.userID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, "150", f.wallet(t).Reserved.String())
}

func TestReconcileNumberFirstSMSCaptures(t *testing.T) {
	f := newFixture(t, "1000")
	n, err := f.orders.Place(context.Background(), orders.PlaceInput{
		UserID:   f.userID,
		Kind:     orders.KindNumber,
		Mode:     orders.ModeReserve,
		Amount:   dec("200"),
		Selector: provider.Selector{provider.KeyCountry: "ng", provider.KeyService: "wa"},
		Details:  orders.Details{Number: &orders.NumberDetails{Country: "ng", Service: "wa"}},
	})
	require.NoError(t, err)

	f.sms.Deliver(n.ProviderReference, "Your code is 123456")
	o, err := f.engine.Reconcile(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.NotNil(t, o.DeliveredAt)

	f.sms.Deliver(n.ProviderReference, "Your code is 654321")
	_, err = f.engine.Reconcile(context.Background(), n.ID)
	require.NoError(t, err)

	msgs, err := f.orders.Messages(context.Background(), f.userID, n.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	w := f.wallet(t)
	assert.Equal(t, "800", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())
}

func TestReconcileNumberExpiredReleases(t *testing.T) {
	f := newFixture(t, "1000")
	n, err := f.orders.Place(context.Background(), orders.PlaceInput{
		UserID:  f.userID,
		Kind:    orders.KindNumber,
		Mode:    orders.ModeReserve,
		Amount:  dec("200"),
		Details: orders.Details{Number: &orders.NumberDetails{Country: "ng", Service: "wa"}},
	})
	require.NoError(t, err)

	f.sms.SetStatus(n.ProviderReference, provider.StateExpired)
	o, err := f.engine.Reconcile(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExpired, o.Status)

	w := f.wallet(t)
	assert.Equal(t, "1000", w.Balance.String())
	assert.True(t, w.Reserved.IsZero())
}

// callbackGateway delivers the gateway callback before PlaceOrder returns.
type callbackGateway struct {
	*provider.Sandbox
	onPlaced func(h provider.Handle, sel provider.Selector)
}

func (g *callbackGateway) PlaceOrder(ctx context.Context, sel provider.Selector, target string) (provider.Handle, error) {
	h, err := g.Sandbox.PlaceOrder(ctx, sel, target)
	if err == nil {
		g.onPlaced(h, sel)
	}
	return h, err
}

func metadataWebhook(reference, orderID string, kobo int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":%d,"currency":"NGN","metadata":{"order_id":%q}}}`,
		reference, kobo, orderID))
}

func TestWebhookBeforePlacementReturnsIsApplied(t *testing.T) {
	f := newFixture(t, "0")
	var outcome Outcome
	gw := &callbackGateway{Sandbox: f.payments}
	gw.onPlaced = func(h provider.Handle, sel provider.Selector) {
		var err error
		_, outcome, err = f.send(t, metadataWebhook(h.ExternalID, sel.Get(provider.KeyOrderID), 50000))
		require.NoError(t, err)
	}
	f.registry.Register(string(orders.KindDeposit), gw)

	o, err := f.deposits.Create(context.Background(), deposits.CreateInput{UserID: f.userID, Email: "ada@example.com", Amount: dec("500")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	require.NotNil(t, o.Details.Deposit)
	assert.Equal(t, "https://checkout.test/"+o.ProviderReference, o.Details.Deposit.AuthorizationURL)
	assert.Equal(t, "500", f.wallet(t).Balance.String())

	// The late handle must not cancel the payment at the gateway.
	st, err := f.payments.PollStatus(context.Background(), o.ProviderReference)
	require.NoError(t, err)
	assert.NotEqual(t, provider.StateCancelled, st.State)

	_, outcome, err = f.send(t, webhookBody("charge.success", o.ProviderReference, 50000, "NGN"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, "500", f.wallet(t).Balance.String())
}

func TestWebhookMetadataCannotRewriteReference(t *testing.T) {
	f := newFixture(t, "1000")
	dep := f.deposit(t, "500")

	_, outcome, err := f.send(t, metadataWebhook("PSK_other", dep.ID, 50000))
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Equal(t, OutcomeUnknown, outcome)

	o := f.boost(t, "100", 100)
	_, outcome, err = f.send(t, metadataWebhook("PSK_boost", o.ID, 10000))
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Equal(t, "1000", f.wallet(t).Balance.String())
}

func TestUnknownReferenceRecoveredByVerify(t *testing.T) {
	f := newFixture(t, "0")
	dep := f.deposit(t, "500")

	// A callback without metadata for a reference not yet stored is dropped.
	_, outcome, err := f.send(t, webhookBody("charge.success", "PSK_unstored", 50000, "NGN"))
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Equal(t, OutcomeUnknown, outcome)

	f.payments.SetPaid(dep.ProviderReference, dec("500"), "NGN")
	o, err := f.deposits.Verify(context.Background(), f.userID, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, "500", f.wallet(t).Balance.String())
}
