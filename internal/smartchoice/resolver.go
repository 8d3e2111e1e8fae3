package smartchoice

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
)

// ErrNotFound means no candidate for the configured provider had a usable price.
var ErrNotFound = domain.ErrPlanNotFound

// Lookup returns candidate plans for a slot set.
type Lookup interface {
	Lookup(ctx context.Context, slots domain.SlotMap) ([]domain.Plan, error)
}

// Resolver selects the cheapest plan of one provider.
type Resolver struct {
	lookup   Lookup
	provider string
}

// NewResolver creates a resolver restricted to provider (compared case-insensitively).
func NewResolver(lookup Lookup, provider string) *Resolver {
	return &Resolver{lookup: lookup, provider: provider}
}

// Provider returns the provider tag candidates are filtered to.
func (r *Resolver) Provider() string { return r.provider }

// Resolve looks up candidates and returns the minimum-price plan of the
// provider. On ties the first candidate in lookup order wins.
func (r *Resolver) Resolve(ctx context.Context, slots domain.SlotMap) (domain.Recommendation, error) {
	plans, err := r.lookup.Lookup(ctx, slots)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("resolve plan: %w", err)
	}
	best, ok := Cheapest(plans, r.provider)
	if !ok {
		return domain.Recommendation{}, ErrNotFound
	}
	return domain.RecommendationFrom(best), nil
}

// Cheapest filters plans to provider and returns the first minimum-price one.
// Plans with malformed prices are never selected.
func Cheapest(plans []domain.Plan, provider string) (domain.Plan, bool) {
	var (
		best  domain.Plan
		price = math.MaxInt
		found bool
	)
	for _, p := range plans {
		if !strings.EqualFold(strings.TrimSpace(p.Telecom), provider) {
			continue
		}
		v := p.PriceValue()
		if v == math.MaxInt {
			continue
		}
		if !found || v < price {
			best, price, found = p, v, true
		}
	}
	return best, found
}
