package deposits

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

const (
	ChannelCard         = "card"
	ChannelBankTransfer = "bank_transfer"

	methodPaystack = "paystack"
)

var (
	ErrBelowMinimum   = errors.New("amount is below the minimum deposit")
	ErrInvalidEmail   = errors.New("a valid email is required")
	ErrInvalidChannel = errors.New("channel must be card or bank_transfer")
)

// Reconciler pulls the provider status of an order and applies it.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) (orders.Order, error)
}

// Service tops up wallets through the payment gateway. The wallet is credited
// only when the gateway confirms payment, by webhook or by Verify.
type Service struct {
	orders     *orders.Service
	ledger     *ledger.Ledger
	converter  *money.Converter
	reconciler Reconciler
	minimum    decimal.Decimal
	currency   string
}

// NewService builds the deposit service. minimum is expressed in currency, the
// currency the gateway charges in.
func NewService(ordersSvc *orders.Service, led *ledger.Ledger, converter *money.Converter, reconciler Reconciler, minimum decimal.Decimal, currency string) *Service {
	return &Service{
		orders:     ordersSvc,
		ledger:     led,
		converter:  converter,
		reconciler: reconciler,
		minimum:    minimum,
		currency:   money.NormalizeCurrency(currency),
	}
}

// CreateInput is a deposit request in the gateway currency.
type CreateInput struct {
	UserID  string
	Email   string
	Amount  decimal.Decimal
	Channel string
}

// Create initialises a payment with the gateway. The returned order carries the
// authorization URL or the dedicated transfer account.
func (s *Service) Create(ctx context.Context, in CreateInput) (orders.Order, error) {
	amount := money.RoundFiat(in.Amount)
	if amount.LessThan(s.minimum) {
		return orders.Order{}, fmt.Errorf("%w of %s %s", ErrBelowMinimum, s.minimum.StringFixed(money.FiatPlaces), s.currency)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return orders.Order{}, ErrInvalidEmail
	}
	channel := strings.ToLower(strings.TrimSpace(in.Channel))
	if channel == "" {
		channel = ChannelCard
	}
	if channel != ChannelCard && channel != ChannelBankTransfer {
		return orders.Order{}, ErrInvalidChannel
	}

	w, err := s.ledger.GetByOwner(ctx, in.UserID)
	if err != nil {
		return orders.Order{}, err
	}
	// The order records what the wallet will receive; the gateway is asked for
	// the amount in its own currency.
	credited := money.RoundFiat(s.converter.Convert(ctx, amount, s.currency, w.Currency))

	return s.orders.Place(ctx, orders.PlaceInput{
		UserID: in.UserID,
		Kind:   orders.KindDeposit,
		Mode:   orders.ModeCredit,
		Amount: credited,
		Selector: provider.Selector{
			provider.KeyAmount:   amount.StringFixed(money.FiatPlaces),
			provider.KeyCurrency: s.currency,
			provider.KeyEmail:    strings.TrimSpace(in.Email),
			provider.KeyChannel:  channel,
		},
		Details: orders.Details{Deposit: &orders.DepositDetails{
			Method:  methodPaystack,
			Channel: channel,
		}},
	})
}

// Verify pulls the gateway status of a deposit, the path taken when the user
// returns from checkout. Unavailability leaves the stored state untouched.
func (s *Service) Verify(ctx context.Context, userID, depositID string) (orders.Order, error) {
	o, err := s.Get(ctx, userID, depositID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status.IsTerminal() || o.ProviderReference == "" {
		return o, nil
	}
	refreshed, err := s.reconciler.Reconcile(ctx, o.ID)
	if errors.Is(err, provider.ErrUnavailable) {
		return o, nil
	}
	if err != nil {
		return orders.Order{}, err
	}
	return refreshed, nil
}

func (s *Service) Get(ctx context.Context, userID, depositID string) (orders.Order, error) {
	o, err := s.orders.Get(ctx, userID, depositID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Kind != orders.KindDeposit {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]orders.Order, error) {
	return s.orders.ListByUser(ctx, userID, orders.ListFilter{Kind: orders.KindDeposit, Limit: limit})
}
