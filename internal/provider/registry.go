package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/socialpulse/socialpulse/internal/money"
)

// Registry maps an order kind to the gateway that fulfils it.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register binds kind to g, replacing any previous binding.
func (r *Registry) Register(kind string, g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[kind] = g
}

func (r *Registry) Get(kind string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, kind)
	}
	return g, nil
}

// WithTimeout bounds every call to g by d. A call that runs out of time is
// reported as ErrUnavailable.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: d}
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

func (t *timeoutGateway) Quote(ctx context.Context, sel Selector) (money.Price, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	p, err := t.next.Quote(ctx, sel)
	return p, unavailableOnTimeout(err)
}

func (t *timeoutGateway) PlaceOrder(ctx context.Context, sel Selector, target string) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	h, err := t.next.PlaceOrder(ctx, sel, target)
	return h, unavailableOnTimeout(err)
}

func (t *timeoutGateway) PollStatus(ctx context.Context, externalID string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	st, err := t.next.PollStatus(ctx, externalID)
	return st, unavailableOnTimeout(err)
}

func (t *timeoutGateway) Cancel(ctx context.Context, externalID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	ok, err := t.next.Cancel(ctx, externalID)
	return ok, unavailableOnTimeout(err)
}

func unavailableOnTimeout(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
