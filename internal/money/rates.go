package money

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultRateTTL is how long a fetched rate table stays valid.
const DefaultRateTTL = time.Hour

// ErrRateUnavailable is returned when no usable rate exists for a currency pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Rates is a rate table for one base currency: 1 Base = Quotes[code] code.
type Rates struct {
	Base      string                     `json:"base"`
	Quotes    map[string]decimal.Decimal `json:"quotes"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Quote returns the positive rate for code, if present.
func (r Rates) Quote(code string) (decimal.Decimal, bool) {
	rate, ok := r.Quotes[NormalizeCurrency(code)]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

// RateSource fetches the latest rate table for a base currency from an external API.
type RateSource interface {
	Latest(ctx context.Context, base string) (Rates, error)
}

// RateCache stores rate tables keyed by base currency with an explicit TTL.
type RateCache interface {
	Get(ctx context.Context, base string) (Rates, bool, error)
	Set(ctx context.Context, base string, rates Rates, ttl time.Duration) error
}

// StaticRates is a fixed in-process RateSource used for development and tests.
type StaticRates map[string]map[string]decimal.Decimal

// Latest returns the configured quotes for base.
func (s StaticRates) Latest(_ context.Context, base string) (Rates, error) {
	base = NormalizeCurrency(base)
	quotes, ok := s[base]
	if !ok {
		return Rates{}, fmt.Errorf("%w: no quotes for %s", ErrRateUnavailable, base)
	}
	out := make(map[string]decimal.Decimal, len(quotes)+1)
	for code, rate := range quotes {
		out[NormalizeCurrency(code)] = rate
	}
	out[base] = decimal.NewFromInt(1)
	return Rates{Base: base, Quotes: out, FetchedAt: time.Now().UTC()}, nil
}

type cachedRates struct {
	rates     Rates
	expiresAt time.Time
}

// MemoryRateCache keeps rate tables in process memory. The clock is injectable so
// tests can expire entries deterministically.
type MemoryRateCache struct {
	mu      sync.RWMutex
	entries map[string]cachedRates
	now     func() time.Time
}

// NewMemoryRateCache builds an empty cache; a nil clock means time.Now.
func NewMemoryRateCache(now func() time.Time) *MemoryRateCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateCache{entries: make(map[string]cachedRates), now: now}
}

func (c *MemoryRateCache) Get(_ context.Context, base string) (Rates, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[NormalizeCurrency(base)]
	if !ok || !c.now().Before(entry.expiresAt) {
		return Rates{}, false, nil
	}
	return entry.rates, true, nil
}

func (c *MemoryRateCache) Set(_ context.Context, base string, rates Rates, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[NormalizeCurrency(base)] = cachedRates{rates: rates, expiresAt: c.now().Add(ttl)}
	return nil
}

const rateKeyPrefix = "fx:rates:v1:"

// RedisRateCache shares rate tables between processes; expiry is Redis' native TTL.
type RedisRateCache struct {
	client *redis.Client
}

// NewRedisRateCache wraps a connected Redis client.
func NewRedisRateCache(client *redis.Client) *RedisRateCache {
	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Get(ctx context.Context, base string) (Rates, bool, error) {
	raw, err := c.client.Get(ctx, rateKeyPrefix+NormalizeCurrency(base)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Rates{}, false, nil
	}
	if err != nil {
		return Rates{}, false, fmt.Errorf("read cached rates: %w", err)
	}
	var rates Rates
	if err := json.Unmarshal(raw, &rates); err != nil {
		return Rates{}, false, fmt.Errorf("decode cached rates: %w", err)
	}
	return rates, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, base string, rates Rates, ttl time.Duration) error {
	payload, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	return c.client.Set(ctx, rateKeyPrefix+NormalizeCurrency(base), payload, ttl).Err()
}
