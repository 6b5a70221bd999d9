package orders

import (
	"context"
	"sort"
	"sync"
)

// Repository persists orders and their received messages. Implementations resolve
// their connection from ctx so writes join an open wallet transaction.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Update(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByReference(ctx context.Context, kind Kind, reference string) (Order, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Order, error)
	AppendSMS(ctx context.Context, sms SMS) error
	Messages(ctx context.Context, orderID string) ([]SMS, error)
}

type memoryRepository struct {
	mu       sync.RWMutex
	orders   map[string]Order
	refs     map[string]string
	messages map[string][]SMS
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		orders:   make(map[string]Order),
		refs:     make(map[string]string),
		messages: make(map[string][]SMS),
	}
}

func refKey(kind Kind, ref string) string {
	return string(kind) + ":" + ref
}

func (r *memoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return ErrDuplicateReference
	}
	if o.ProviderReference != "" {
		if _, taken := r.refs[refKey(o.Kind, o.ProviderReference)]; taken {
			return ErrDuplicateReference
		}
		r.refs[refKey(o.Kind, o.ProviderReference)] = o.ID
	}
	o.Details = o.Details.clone()
	r.orders[o.ID] = o
	return nil
}

func (r *memoryRepository) Update(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if o.ProviderReference != prev.ProviderReference {
		key := refKey(o.Kind, o.ProviderReference)
		if owner, taken := r.refs[key]; taken && owner != o.ID {
			return ErrDuplicateReference
		}
		if prev.ProviderReference != "" {
			delete(r.refs, refKey(prev.Kind, prev.ProviderReference))
		}
		if o.ProviderReference != "" {
			r.refs[key] = o.ID
		}
	}
	o.Details = o.Details.clone()
	r.orders[o.ID] = o
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Details = o.Details.clone()
	return o, nil
}

func (r *memoryRepository) GetByReference(ctx context.Context, kind Kind, reference string) (Order, error) {
	r.mu.RLock()
	id, ok := r.refs[refKey(kind, reference)]
	r.mu.RUnlock()
	if !ok || reference == "" {
		return Order{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string, filter ListFilter) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID != userID {
			continue
		}
		if filter.Kind != "" && o.Kind != filter.Kind {
			continue
		}
		o.Details = o.Details.clone()
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepository) AppendSMS(_ context.Context, sms SMS) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[sms.OrderID]; !ok {
		return ErrNotFound
	}
	r.messages[sms.OrderID] = append(r.messages[sms.OrderID], sms)
	return nil
}

func (r *memoryRepository) Messages(_ context.Context, orderID string) ([]SMS, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.messages[orderID]
	out := make([]SMS, len(src))
	copy(out, src)
	return out, nil
}
