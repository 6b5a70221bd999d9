package money

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/socialpulse/socialpulse/internal/logging"
	"github.com/socialpulse/socialpulse/internal/metrics"
)

// Conversion is the detailed result of Converter.ConvertDetailed.
type Conversion struct {
	Amount    decimal.Decimal
	From      string
	To        string
	Rate      decimal.Decimal
	Converted bool
}

// Converter converts amounts between currencies using cached rate tables.
//
// When no rate can be obtained the amount is returned unconverted with
// Converted=false; callers decide whether that is acceptable.
type Converter struct {
	source  RateSource
	cache   RateCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewConverter wires a converter. A zero ttl means DefaultRateTTL.
func NewConverter(source RateSource, cache RateCache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Converter {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	if cache == nil {
		cache = NewMemoryRateCache(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Converter{source: source, cache: cache, ttl: ttl, logger: logger, metrics: m}
}

// Convert returns amount expressed in the to currency.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	return c.ConvertDetailed(ctx, amount, from, to).Amount
}

func (c *Converter) ConvertDetailed(ctx context.Context, amount decimal.Decimal, from, to string) Conversion {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	out := Conversion{Amount: amount, From: from, To: to, Rate: decimal.NewFromInt(1)}
	if from == to {
		out.Converted = true
		c.metrics.IncConversion("identity")
		return out
	}

	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		c.metrics.IncConversion("fallback")
		c.logger.Warn("currency conversion fell back to unconverted amount",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
		return out
	}
	c.metrics.IncConversion("converted")
	out.Amount = amount.Mul(rate)
	out.Rate = rate
	out.Converted = true
	return out
}

// Rate returns how many units of to one unit of from buys.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rates, err := c.rates(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := rates.Quote(to)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrRateUnavailable, from, to)
	}
	return rate, nil
}

func (c *Converter) rates(ctx context.Context, base string) (Rates, error) {
	if cached, ok, err := c.cache.Get(ctx, base); err == nil && ok {
		return cached, nil
	} else if err != nil {
		c.logger.Warn("rate cache read failed", slog.String("base", base), slog.String("error", err.Error()))
	}
	if c.source == nil {
		return Rates{}, fmt.Errorf("%w: no rate source configured", ErrRateUnavailable)
	}

	v, err, _ := c.group.Do(base, func() (any, error) {
		if cached, ok, err := c.cache.Get(ctx, base); err == nil && ok {
			return cached, nil
		}
		fresh, err := c.source.Latest(ctx, base)
		if err != nil {
			return Rates{}, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
		}
		if err := c.cache.Set(ctx, base, fresh, c.ttl); err != nil {
			c.logger.Warn("rate cache write failed", slog.String("base", base), slog.String("error", err.Error()))
		}
		return fresh, nil
	})
	if err != nil {
		return Rates{}, err
	}
	return v.(Rates), nil
}
