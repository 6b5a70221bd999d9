package boost

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
)

var (
	ErrServiceRequired = errors.New("service_id is required")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidLink     = errors.New("link must be an http(s) url")
)

// Reconciler pulls the provider status of an order and applies it.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) (orders.Order, error)
}

// Service sells social-media engagement bought from an SMM reseller.
type Service struct {
	orders  *orders.Service
	gateway provider.Gateway
	pricer  *money.Pricer
	ledger  *ledger.Ledger
	margin  decimal.Decimal
	mode    orders.ChargeMode
}

// NewService builds the boost service. mode is orders.ModeReserve or orders.ModeDebit.
func NewService(ordersSvc *orders.Service, gateway provider.Gateway, pricer *money.Pricer, led *ledger.Ledger, margin decimal.Decimal, mode orders.ChargeMode) *Service {
	if mode != orders.ModeDebit {
		mode = orders.ModeReserve
	}
	return &Service{orders: ordersSvc, gateway: gateway, pricer: pricer, ledger: led, margin: margin, mode: mode}
}

// QuoteInput selects a reseller service and a quantity.
type QuoteInput struct {
	UserID    string
	ServiceID string
	Quantity  int64
}

// Quote is a priced boost in the user's wallet currency.
type Quote struct {
	ServiceID     string
	Quantity      int64
	ProviderPrice money.Price
	money.Quote
}

// Quote prices a boost without placing it.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	if strings.TrimSpace(in.ServiceID) == "" {
		return Quote{}, ErrServiceRequired
	}
	if in.Quantity <= 0 {
		return Quote{}, ErrInvalidQuantity
	}
	w, err := s.ledger.GetByOwner(ctx, in.UserID)
	if err != nil {
		return Quote{}, err
	}
	price, err := s.gateway.Quote(ctx, selector(in.ServiceID, in.Quantity))
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		ServiceID:     in.ServiceID,
		Quantity:      in.Quantity,
		ProviderPrice: price,
		Quote:         s.pricer.Charge(ctx, price, s.margin, w.Currency),
	}, nil
}

// Offering is a reseller service priced per thousand units in the user's
// wallet currency.
type Offering struct {
	provider.Offering
	RatePerThousand money.Quote
}

// Services lists reseller services, optionally only those for platform.
func (s *Service) Services(ctx context.Context, userID, platform string) ([]Offering, error) {
	w, err := s.ledger.GetByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := provider.ListServices(ctx, s.gateway, provider.Selector{provider.KeyCategory: platform})
	if err != nil {
		return nil, err
	}
	out := make([]Offering, 0, len(list))
	for _, o := range list {
		out = append(out, Offering{Offering: o, RatePerThousand: s.pricer.Charge(ctx, o.Price, s.margin, w.Currency)})
	}
	return out, nil
}

// CreateInput is a boost order request.
type CreateInput struct {
	UserID        string
	ServiceID     string
	ServiceName   string
	Platform      string
	Link          string
	Quantity      int64
	Audience      string
	Quality       string
	TrafficSource string
	DeliveryTime  string
}

// Create prices and places a boost order.
func (s *Service) Create(ctx context.Context, in CreateInput) (orders.Order, error) {
	if err := validateLink(in.Link); err != nil {
		return orders.Order{}, err
	}
	q, err := s.Quote(ctx, QuoteInput{UserID: in.UserID, ServiceID: in.ServiceID, Quantity: in.Quantity})
	if err != nil {
		return orders.Order{}, err
	}

	return s.orders.Place(ctx, orders.PlaceInput{
		UserID:   in.UserID,
		Kind:     orders.KindBoost,
		Mode:     s.mode,
		Amount:   q.Amount,
		Selector: selector(in.ServiceID, in.Quantity),
		Target:   in.Link,
		Details: orders.Details{Boost: &orders.BoostDetails{
			Platform:         in.Platform,
			ServiceName:      in.ServiceName,
			ServiceID:        in.ServiceID,
			Link:             in.Link,
			Quantity:         in.Quantity,
			Audience:         in.Audience,
			Quality:          in.Quality,
			TrafficSource:    in.TrafficSource,
			DeliveryTime:     in.DeliveryTime,
			ProviderCharge:   q.ProviderPrice.Amount.Round(money.UnitPlaces),
			ProviderCurrency: money.NormalizeCurrency(q.ProviderPrice.Currency),
			Remains:          in.Quantity,
		}},
	})
}

// List returns the user's boost orders, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]orders.Order, error) {
	return s.orders.ListByUser(ctx, userID, orders.ListFilter{Kind: orders.KindBoost, Limit: limit})
}

// Get returns one of the user's boost orders.
func (s *Service) Get(ctx context.Context, userID, orderID string) (orders.Order, error) {
	o, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Kind != orders.KindBoost {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func selector(serviceID string, quantity int64) provider.Selector {
	return provider.Selector{
		provider.KeyService:  strings.TrimSpace(serviceID),
		provider.KeyQuantity: strconv.FormatInt(quantity, 10),
	}
}

func validateLink(link string) error {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidLink
	}
	return nil
}
