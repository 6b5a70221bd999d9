package ledger

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
	owners  map[string]string
	entries map[string][]Entry
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for tests and
// development. Each wallet has its own mutex, mirroring a row lock.
func NewMemoryStore() Store {
	return &memoryStore{
		wallets: make(map[string]Wallet),
		owners:  make(map[string]string),
		entries: make(map[string][]Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *memoryStore) Create(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.ID]; exists {
		return ErrWalletExists
	}
	if _, exists := s.owners[w.OwnerID]; exists {
		return ErrWalletExists
	}
	w.journal = nil
	s.wallets[w.ID] = w
	s.owners[w.OwnerID] = w.ID
	s.locks[w.ID] = &sync.Mutex{}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *memoryStore) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	s.mu.RLock()
	id, ok := s.owners[ownerID]
	s.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.Get(ctx, id)
}

func (s *memoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (Wallet, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	w, err := s.Get(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	if err := fn(ctx, &w); err != nil {
		return Wallet{}, err
	}
	if len(w.journal) > 0 {
		w.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	stored := w
	stored.journal = nil
	s.wallets[id] = stored
	s.entries[id] = append(s.entries[id], w.journal...)
	s.mu.Unlock()
	return w, nil
}

func (s *memoryStore) Entries(_ context.Context, walletID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	src := s.entries[walletID]
	out := make([]Entry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
