package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxPage      = 1000
	maxLimit     = 100
	maxSearchLen = 100
)

// MarketListings returns one page of active listings matching the
// filters. Pure read view: no mutation, no invariants beyond never
// returning inactive listings.
func (s *Service) MarketListings(ctx context.Context, f model.MarketFilters) (*model.MarketPage, error) {
	normalized, err := normalizeFilters(f)
	if err != nil {
		return nil, err
	}
	return s.store.MarketListings(ctx, normalized)
}

// normalizeFilters applies defaults and rejects out-of-range values.
func normalizeFilters(f model.MarketFilters) (model.MarketFilters, error) {
	if f.Page == 0 {
		f.Page = defaultPage
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}

	if f.Page < 1 || f.Page > maxPage {
		return f, fmt.Errorf("%w: page must be between 1 and %d", ErrInvalidFilter, maxPage)
	}
	if f.Limit < 1 || f.Limit > maxLimit {
		return f, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidFilter, maxLimit)
	}
	if f.Position != "" && !f.Position.Valid() {
		return f, fmt.Errorf("%w: unknown position %q", ErrInvalidFilter, f.Position)
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return f, fmt.Errorf("%w: min price must be non-negative", ErrInvalidFilter)
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return f, fmt.Errorf("%w: max price must be non-negative", ErrInvalidFilter)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, fmt.Errorf("%w: min price cannot exceed max price", ErrInvalidFilter)
	}

	f.Search = strings.TrimSpace(f.Search)
	if len(f.Search) > maxSearchLen {
		return f, fmt.Errorf("%w: search term too long", ErrInvalidFilter)
	}

	return f, nil
}
