package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/socialpulse/socialpulse/internal/money"
)

// ErrNoCatalog is returned when a gateway does not publish what it sells.
var ErrNoCatalog = errors.New("provider does not publish a catalog")

// KeyCategory filters a catalog by platform (boosts) or service (numbers).
const KeyCategory = "category"

// Offering is one purchasable item in a provider catalog. Boost prices are per
// thousand units; number prices are per rental.
type Offering struct {
	ID       string
	Name     string
	Category string
	Country  string
	Price    money.Price
	Min      int64
	Max      int64
	Stock    int64
}

// Catalog is implemented by gateways that can list their offerings.
type Catalog interface {
	Services(ctx context.Context, filter Selector) ([]Offering, error)
}

// ListServices returns g's offerings matching filter.
func ListServices(ctx context.Context, g Gateway, filter Selector) ([]Offering, error) {
	c, ok := g.(Catalog)
	if !ok {
		return nil, ErrNoCatalog
	}
	return c.Services(ctx, filter)
}

// Matches reports whether o passes filter. Empty filter values match anything.
func (o Offering) Matches(filter Selector) bool {
	if cat := filter.Get(KeyCategory); cat != "" && !strings.EqualFold(cat, o.Category) {
		return false
	}
	if country := filter.Get(KeyCountry); country != "" && !strings.EqualFold(country, o.Country) {
		return false
	}
	return true
}

func (t *timeoutGateway) Services(ctx context.Context, filter Selector) ([]Offering, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	list, err := ListServices(ctx, t.next, filter)
	return list, unavailableOnTimeout(err)
}
