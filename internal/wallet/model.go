package wallet

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// countryCurrency maps ISO 3166 alpha-2 codes to the currency a new wallet is
// opened in. Countries not listed get the configured default.
var countryCurrency = map[string]string{
	"NG": "NGN",
	"GH": "GHS",
	"KE": "KES",
	"ZA": "ZAR",
	"UG": "UGX",
	"TZ": "TZS",
	"RW": "RWF",
	"CM": "XAF",
	"CG": "XAF",
	"GA": "XAF",
	"SN": "XOF",
	"CI": "XOF",
	"BJ": "XOF",
	"EG": "EGP",
	"MA": "MAD",
	"US": "USD",
	"GB": "GBP",
	"CA": "CAD",
	"DE": "EUR",
	"FR": "EUR",
	"NL": "EUR",
	"IN": "INR",
}

// CurrencyFor returns the wallet currency for country, or fallback.
func CurrencyFor(country, fallback string) string {
	if cur, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return cur
	}
	return fallback
}

// Balance is the user-facing view of a wallet.
type Balance struct {
	WalletID  string
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Spendable decimal.Decimal
	Currency  string
	AsOf      time.Time
}
