package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/money"
)

// Sandbox is a deterministic in-process gateway for development and tests.
// Every order is accepted unless Down or RejectReason is set; its status can be
// driven with SetStatus and Deliver.
type Sandbox struct {
	// Prefix is prepended to generated external ids.
	Prefix string
	// Seed follows Prefix so ids from different processes do not collide.
	Seed string
	// Prices maps a service selector to its provider price. Offerings are
	// consulted next, then Default.
	Prices    map[string]money.Price
	Offerings []Offering
	Default   money.Price
	// PerThousand scales the price by quantity/1000 when a quantity is selected.
	PerThousand bool
	// Down makes every call fail with ErrUnavailable.
	Down bool
	// RejectReason, when non-empty, makes PlaceOrder reject.
	RejectReason string
	// CheckoutURL is the base of authorization urls returned for payment orders.
	CheckoutURL string

	mu     sync.Mutex
	seq    int
	orders map[string]*Status
	placed map[string]Selector
}

func (s *Sandbox) Quote(_ context.Context, sel Selector) (money.Price, error) {
	if s.Down {
		return money.Price{}, ErrUnavailable
	}
	price := s.Default
	offer, listed := s.offering(sel)
	if p, ok := s.Prices[sel.Get(KeyService)]; ok {
		price = p
	} else if listed {
		price = offer.Price
	}
	if !price.Amount.IsPositive() {
		return money.Price{}, Reject("service %q is not available", sel.Get(KeyService))
	}
	if s.PerThousand {
		qty := sel.Int(KeyQuantity)
		if qty <= 0 {
			return money.Price{}, Reject("quantity must be positive")
		}
		if listed && (qty < offer.Min || (offer.Max > 0 && qty > offer.Max)) {
			return money.Price{}, Reject("quantity must be between %d and %d", offer.Min, offer.Max)
		}
		price.Amount = money.ScaleByQuantity(price.Amount, qty)
	}
	return price, nil
}

// Services lists the configured offerings matching filter.
func (s *Sandbox) Services(_ context.Context, filter Selector) ([]Offering, error) {
	if s.Down {
		return nil, ErrUnavailable
	}
	out := make([]Offering, 0, len(s.Offerings))
	for _, o := range s.Offerings {
		if o.Matches(filter) {
			out = append(out, o)
		}
	}
	return out, nil
}

// offering finds the listed item a selector refers to: by pool when one is
// given, else by service id, else by service and country.
func (s *Sandbox) offering(sel Selector) (Offering, bool) {
	pool, service, country := sel.Get(KeyPool), sel.Get(KeyService), sel.Get(KeyCountry)
	for _, o := range s.Offerings {
		switch {
		case pool != "":
			if o.ID == pool {
				return o, true
			}
		case o.ID == service:
			return o, true
		case country != "" && strings.EqualFold(o.Category, service) && strings.EqualFold(o.Country, country):
			return o, true
		}
	}
	return Offering{}, false
}

func (s *Sandbox) PlaceOrder(_ context.Context, sel Selector, target string) (Handle, error) {
	if s.Down {
		return Handle{}, ErrUnavailable
	}
	if s.RejectReason != "" {
		return Handle{}, &RejectedError{Reason: s.RejectReason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.seq++
	id := fmt.Sprintf("%s%s%d", s.Prefix, s.Seed, s.seq)
	st := &Status{
		State:    StateProcessing,
		Amount:   money.ToDecimal(sel.Get(KeyAmount)),
		Currency: money.NormalizeCurrency(sel.Get(KeyCurrency)),
		Remains:  sel.Int(KeyQuantity),
	}
	s.orders[id] = st
	s.placed[id] = sel

	raw := map[string]any{"order": id, "target": target}
	if orderID := sel.Get(KeyOrderID); orderID != "" {
		raw["metadata"] = map[string]any{KeyOrderID: orderID}
	}
	if s.CheckoutURL != "" {
		raw["authorization_url"] = s.CheckoutURL + id
	}
	return Handle{ExternalID: id, InitialState: StateProcessing, Raw: raw}, nil
}

func (s *Sandbox) PollStatus(_ context.Context, externalID string) (Status, error) {
	if s.Down {
		return Status{}, ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.orders[externalID]
	if !ok {
		return Status{}, ErrUnknownOrder
	}
	out := *st
	out.Messages = append([]Message(nil), st.Messages...)
	return out, nil
}

func (s *Sandbox) Cancel(_ context.Context, externalID string) (bool, error) {
	if s.Down {
		return false, ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.orders[externalID]
	if !ok {
		return false, ErrUnknownOrder
	}
	if st.State.IsTerminal() || len(st.Messages) > 0 {
		return false, ErrNotCancellable
	}
	st.State = StateCancelled
	return true, nil
}

// SetStatus overrides the state reported for externalID.
func (s *Sandbox) SetStatus(externalID string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	st, ok := s.orders[externalID]
	if !ok {
		st = &Status{}
		s.orders[externalID] = st
	}
	st.State = state
}

// Deliver records an SMS for externalID.
func (s *Sandbox) Deliver(externalID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	st, ok := s.orders[externalID]
	if !ok {
		st = &Status{State: StateProcessing}
		s.orders[externalID] = st
	}
	st.Messages = append(st.Messages, Message{Text: text, ReceivedAt: time.Now().UTC()})
}

// SetRemains sets the undelivered quantity reported for externalID.
func (s *Sandbox) SetRemains(externalID string, remains int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if st, ok := s.orders[externalID]; ok {
		st.Remains = remains
	}
}

// SetPaid marks a payment order paid with amount in currency.
func (s *Sandbox) SetPaid(externalID string, amount decimal.Decimal, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	st, ok := s.orders[externalID]
	if !ok {
		st = &Status{}
		s.orders[externalID] = st
	}
	st.State = StateCompleted
	st.Amount = amount
	st.Currency = money.NormalizeCurrency(currency)
}

// Placed returns the selector an order was placed with.
func (s *Sandbox) Placed(externalID string) (Selector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.placed[externalID]
	return sel, ok
}

func (s *Sandbox) init() {
	if s.orders == nil {
		s.orders = make(map[string]*Status)
		s.placed = make(map[string]Selector)
	}
}
