package money

import (
	"context"

	"github.com/shopspring/decimal"
)

// Price is an amount in the currency a provider quotes in.
type Price struct {
	Amount   decimal.Decimal
	Currency string
}

// Quote is a user-facing charge in the wallet currency.
type Quote struct {
	Base      Price
	Marked    decimal.Decimal
	Amount    decimal.Decimal
	Currency  string
	Converted bool
}

// Pricer turns provider prices into wallet charges.
type Pricer struct {
	converter *Converter
}

func NewPricer(converter *Converter) *Pricer {
	return &Pricer{converter: converter}
}

// Charge applies margin at UnitPlaces in the provider currency, converts into
// walletCurrency and rounds to FiatPlaces.
func (p *Pricer) Charge(ctx context.Context, base Price, margin decimal.Decimal, walletCurrency string) Quote {
	marked := ApplyMarkup(base.Amount, margin, UnitPlaces)
	conv := p.converter.ConvertDetailed(ctx, marked, base.Currency, walletCurrency)
	return Quote{
		Base:      base,
		Marked:    marked,
		Amount:    RoundFiat(conv.Amount),
		Currency:  NormalizeCurrency(walletCurrency),
		Converted: conv.Converted,
	}
}

// ScaleByQuantity returns ratePerThousand * quantity / 1000 at UnitPlaces,
// the usual SMM reseller pricing unit.
func ScaleByQuantity(ratePerThousand decimal.Decimal, quantity int64) decimal.Decimal {
	return ratePerThousand.Mul(decimal.NewFromInt(quantity)).Div(decimal.NewFromInt(1000)).Round(UnitPlaces)
}
