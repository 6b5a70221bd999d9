package numbers

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

var (
	ErrCountryRequired = errors.New("country is required")
	ErrServiceRequired = errors.New("service is required")
)

// Reconciler pulls the provider status of an order and applies it.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) (orders.Order, error)
}

// Service rents temporary phone numbers for receiving verification SMS.
// Funds are reserved at purchase and captured when the first SMS arrives.
type Service struct {
	orders     *orders.Service
	gateway    provider.Gateway
	pricer     *money.Pricer
	ledger     *ledger.Ledger
	reconciler Reconciler
	margin     decimal.Decimal
}

func NewService(ordersSvc *orders.Service, gateway provider.Gateway, pricer *money.Pricer, led *ledger.Ledger, reconciler Reconciler, margin decimal.Decimal) *Service {
	return &Service{orders: ordersSvc, gateway: gateway, pricer: pricer, ledger: led, reconciler: reconciler, margin: margin}
}

// Request selects a number by country, service and optional provider pool.
type Request struct {
	UserID  string
	Country string
	Service string
	PoolID  string
}

func (r Request) selector() provider.Selector {
	sel := provider.Selector{
		provider.KeyCountry: strings.ToUpper(strings.TrimSpace(r.Country)),
		provider.KeyService: strings.ToLower(strings.TrimSpace(r.Service)),
	}
	if pool := strings.TrimSpace(r.PoolID); pool != "" {
		sel[provider.KeyPool] = pool
	}
	return sel
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Country) == "" {
		return ErrCountryRequired
	}
	if strings.TrimSpace(r.Service) == "" {
		return ErrServiceRequired
	}
	return nil
}

// Quote prices a number in the user's wallet currency.
func (s *Service) Quote(ctx context.Context, req Request) (money.Quote, error) {
	if err := req.validate(); err != nil {
		return money.Quote{}, err
	}
	w, err := s.ledger.GetByOwner(ctx, req.UserID)
	if err != nil {
		return money.Quote{}, err
	}
	price, err := s.gateway.Quote(ctx, req.selector())
	if err != nil {
		return money.Quote{}, err
	}
	return s.pricer.Charge(ctx, price, s.margin, w.Currency), nil
}

// Pool is a provider number pool priced per rental in the user's wallet
// currency.
type Pool struct {
	provider.Offering
	Charge money.Quote
}

// Pools lists the provider's number pools. Empty country or service match all.
func (s *Service) Pools(ctx context.Context, userID, country, service string) ([]Pool, error) {
	w, err := s.ledger.GetByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := provider.ListServices(ctx, s.gateway, provider.Selector{
		provider.KeyCountry:  strings.ToUpper(strings.TrimSpace(country)),
		provider.KeyCategory: strings.ToLower(strings.TrimSpace(service)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Pool, 0, len(list))
	for _, o := range list {
		out = append(out, Pool{Offering: o, Charge: s.pricer.Charge(ctx, o.Price, s.margin, w.Currency)})
	}
	return out, nil
}

// Purchase rents a number, holding its price on the wallet.
func (s *Service) Purchase(ctx context.Context, req Request) (orders.Order, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return orders.Order{}, err
	}
	sel := req.selector()
	return s.orders.Place(ctx, orders.PlaceInput{
		UserID:   req.UserID,
		Kind:     orders.KindNumber,
		Mode:     orders.ModeReserve,
		Amount:   q.Amount,
		Selector: sel,
		Details: orders.Details{Number: &orders.NumberDetails{
			Country: sel.Get(provider.KeyCountry),
			Service: sel.Get(provider.KeyService),
			PoolID:  sel.Get(provider.KeyPool),
		}},
	})
}

// Cancel returns the number to the provider and releases the held funds.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (orders.Order, error) {
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return orders.Order{}, err
	}
	return s.orders.Cancel(ctx, userID, orderID)
}

// CheckSMS polls the provider for new messages and returns the full log.
// Provider unavailability is not an error here: the stored log is returned.
func (s *Service) CheckSMS(ctx context.Context, userID, orderID string) (orders.Order, []orders.SMS, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	if o.ProviderReference != "" {
		refreshed, err := s.reconciler.Reconcile(ctx, o.ID)
		switch {
		case err == nil:
			o = refreshed
		case errors.Is(err, provider.ErrUnavailable):
		default:
			return orders.Order{}, nil, err
		}
	}
	msgs, err := s.orders.Messages(ctx, userID, orderID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	return o, msgs, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (orders.Order, error) {
	o, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Kind != orders.KindNumber {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]orders.Order, error) {
	return s.orders.ListByUser(ctx, userID, orders.ListFilter{Kind: orders.KindNumber, Limit: limit})
}
