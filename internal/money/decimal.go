package money

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// FiatPlaces is the scale of every amount shown to users or charged to a wallet.
	FiatPlaces int32 = 2
	// UnitPlaces is the scale of intermediate provider pricing (USD unit rates).
	UnitPlaces int32 = 4
)

// ToDecimal converts numeric-like provider data into a decimal.
//
// Malformed input yields zero instead of an error so that a reconciliation path never
// aborts on bad provider data; callers that need to distinguish "zero" from "garbage"
// must validate before calling.
func ToDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero
		}
		return *val
	case string:
		return parseString(val)
	case []byte:
		return parseString(string(val))
	case json.Number:
		return parseString(val.String())
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int32:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case uint:
		return decimal.NewFromUint64(uint64(val))
	case uint32:
		return decimal.NewFromUint64(uint64(val))
	case uint64:
		return decimal.NewFromUint64(val)
	default:
		return decimal.Zero
	}
}

func parseString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// ApplyMarkup returns base * (1 + margin) rounded half-up to places.
func ApplyMarkup(base, margin decimal.Decimal, places int32) decimal.Decimal {
	return base.Mul(decimal.NewFromInt(1).Add(margin)).Round(places)
}

// RoundFiat rounds half-up to FiatPlaces.
func RoundFiat(d decimal.Decimal) decimal.Decimal {
	return d.Round(FiatPlaces)
}

// NormalizeCurrency upper-cases and trims an ISO-ish currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
