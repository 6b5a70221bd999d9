package numbers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
	"github.com/socialpulse/socialpulse/internal/reconcile"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type numbersFixture struct {
	svc    *Service
	ledger *ledger.Ledger
	sms    *provider.Sandbox
	userID string
	now    time.Time
}

func newNumbersFixture(t *testing.T, balance string) *numbersFixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	f := &numbersFixture{
		ledger: ledger.New(store, nil, nil),
		sms: &provider.Sandbox{
			Prefix:  "act-",
			Default: money.Price{Amount: dec("0.50"), Currency: "USD"},
		},
		userID: uuid.NewString(),
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	_, err := ledger.SeedWallet(context.Background(), store, f.userID, "NGN", dec(balance))
	require.NoError(t, err)

	reg := provider.NewRegistry()
	reg.Register(string(orders.KindNumber), f.sms)
	ordersSvc := orders.NewService(orders.NewMemoryRepository(), f.ledger, reg, orders.Options{
		CancelMinAge: 5 * time.Minute,
		Now:          func() time.Time { return f.now },
	})
	converter := money.NewConverter(money.StaticRates{"USD": {"NGN": dec("1500")}}, nil, time.Hour, nil, nil)
	engine := reconcile.NewEngine(ordersSvc, converter, "sk_test", nil, nil)
	f.svc = NewService(ordersSvc, f.sms, money.NewPricer(converter), f.ledger, engine, dec("0.3"))
	return f
}

func (f *numbersFixture) wallet(t *testing.T) ledger.Wallet {
	t.Helper()
	w, err := f.ledger.GetByOwner(context.Background(), f.userID)
	require.NoError(t, err)
	return w
}

func (f *numbersFixture) purchase(t *testing.T) orders.Order {
	t.Helper()
	o, err := f.svc.Purchase(context.Background(), Request{UserID: f.userID, Country: "ng", Service: "WhatsApp"})
	require.NoError(t, err)
	require.Equal(t, orders.StatusProcessing, o.Status)
	return o
}

func TestPurchaseValidatesRequest(t *testing.T) {
	f := newNumbersFixture(t, "2000")
	_, err := f.svc.Purchase(context.Background(), Request{UserID: f.userID, Service: "whatsapp"})
	assert.ErrorIs(t, err, ErrCountryRequired)
	_, err = f.svc.Purchase(context.Background(), Request{UserID: f.userID, Country: "NG"})
	assert.ErrorIs(t, err, ErrServiceRequired)
}

func TestPurchaseHoldsPrice(t *testing.T) {
	f := newNumbersFixture(t, "2000")

	q, err := f.svc.Quote(context.Background(), Request{UserID: f.userID, Country: "NG", Service: "whatsapp"})
	require.NoError(t, err)
	assert.Equal(t, "975.00", q.Amount.StringFixed(money.FiatPlaces))

	o := f.purchase(t)
	require.NotNil(t, o.Details.Number)
	assert.Equal(t, "NG", o.Details.Number.Country)
	assert.Equal(t, "whatsapp", o.Details.Number.Service)

	w := f.wallet(t)
	assert.True(t, w.Balance.Equal(dec("2000")))
	assert.True(t, w.Reserved.Equal(dec("975")))
}

func TestCancelWaitsForMinimumAge(t *testing.T) {
	f := newNumbersFixture(t, "2000")
	o := f.purchase(t)

	_, err := f.svc.Cancel(context.Background(), f.userID, o.ID)
	require.ErrorIs(t, err, orders.ErrNotCancellable)

	f.now = f.now.Add(6 * time.Minute)
	out, err := f.svc.Cancel(context.Background(), f.userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, out.Status)

	w := f.wallet(t)
	assert.True(t, w.Balance.Equal(dec("2000")))
	assert.True(t, w.Reserved.IsZero())
}

func TestFirstSMSCapturesAndBlocksCancel(t *testing.T) {
	f := newNumbersFixture(t, "2000")
	o := f.purchase(t)

	f.sms.Deliver(o.ProviderReference, "Your code is 123456")
	out, msgs, err := f.svc.CheckSMS(context.Background(), f.userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, out.Status)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Your code is 123456", msgs[0].Text)

	w := f.wallet(t)
	assert.True(t, w.Balance.Equal(dec("1025")), "balance %s", w.Balance)
	assert.True(t, w.Reserved.IsZero())

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.svc.Cancel(context.Background(), f.userID, o.ID)
	assert.ErrorIs(t, err, orders.ErrNotCancellable)
}

func TestCheckSMSToleratesProviderOutage(t *testing.T) {
	f := newNumbersFixture(t, "2000")
	o := f.purchase(t)

	f.sms.Down = true
	out, msgs, err := f.svc.CheckSMS(context.Background(), f.userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, out.Status)
	assert.Empty(t, msgs)
	assert.True(t, f.wallet(t).Reserved.Equal(dec("975")))
}

func TestOtherUsersCannotSeeNumber(t *testing.T) {
	f := newNumbersFixture(t, "2000")
	o := f.purchase(t)

	_, err := f.svc.Get(context.Background(), uuid.NewString(), o.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestPoolsMatchQuotes(t *testing.T) {
	f := newNumbersFixture(t, "0")
	f.sms.Offerings = []provider.Offering{
		{ID: "ng-wa", Name: "Nigeria WhatsApp", Category: "whatsapp", Country: "NG", Price: money.Price{Amount: dec("0.50"), Currency: "USD"}, Stock: 12},
		{ID: "gh-wa", Name: "Ghana WhatsApp", Category: "whatsapp", Country: "GH", Price: money.Price{Amount: dec("0.65"), Currency: "USD"}, Stock: 3},
		{ID: "ng-tg", Name: "Nigeria Telegram", Category: "telegram", Country: "NG", Price: money.Price{Amount: dec("0.40"), Currency: "USD"}, Stock: 7},
	}
	ctx := context.Background()

	pools, err := f.svc.Pools(ctx, f.userID, "ng", "")
	require.NoError(t, err)
	assert.Len(t, pools, 2)

	pools, err = f.svc.Pools(ctx, f.userID, "", "WhatsApp")
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "1267.50", pools[1].Charge.Amount.StringFixed(money.FiatPlaces))

	q, err := f.svc.Quote(ctx, Request{UserID: f.userID, Country: "GH", Service: "whatsapp", PoolID: "gh-wa"})
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(pools[1].Charge.Amount))

	f.sms.Down = true
	_, err = f.svc.Pools(ctx, f.userID, "", "")
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}
