// Package transfer implements the transfer-market core: the listing
// manager, the settlement engine, and the market query service. All
// state lives behind store.Store; every component takes its dependencies
// explicitly so the composition root owns lifecycles.
package transfer

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fantasyxi/transfer-engine/internal/store"
)

// Notifier receives post-commit events. Delivery is best-effort and
// outside the settlement contract; a nil notifier disables it.
type Notifier interface {
	Notify(ev Event)
}

// Event is an outbound notification emitted after a transaction commits.
type Event struct {
	Type       string `json:"type"` // "listing_created", "listing_retracted", "player_sold"
	ListingID  string `json:"listing_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	Price      int64  `json:"price,omitempty"`
}

// Config carries the market rules.
type Config struct {
	// FeeRate is the markdown applied to the ask price on settlement.
	// The buyer pays floor(ask*(1-FeeRate)) and the seller receives the
	// same amount; the platform keeps nothing.
	FeeRate decimal.Decimal

	// MaxAskPrice rejects absurd listing prices.
	MaxAskPrice int64

	// MaxRetries bounds settlement retries on transaction conflicts.
	MaxRetries int
}

// DefaultConfig returns the observed production rules: 5% markdown,
// 1e9 ask ceiling, 3 conflict retries.
func DefaultConfig() Config {
	return Config{
		FeeRate:     decimal.NewFromFloat(0.05),
		MaxAskPrice: 1_000_000_000,
		MaxRetries:  3,
	}
}

// Service is the transfer-market engine.
type Service struct {
	store    store.Store
	cfg      Config
	notifier Notifier
	log      *slog.Logger
}

// NewService creates the engine. Pass nil for notifier if post-commit
// events are not needed.
func NewService(st store.Store, cfg Config, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAskPrice <= 0 {
		cfg.MaxAskPrice = DefaultConfig().MaxAskPrice
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Service{
		store:    st,
		cfg:      cfg,
		notifier: notifier,
		log:      log,
	}
}

func (s *Service) notify(ev Event) {
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
}

// clearingPrice computes floor(ask * (1 - feeRate)) with exact decimal
// arithmetic; ask prices fit int64 so the product does too.
func (s *Service) clearingPrice(ask int64) int64 {
	one := decimal.NewFromInt(1)
	return decimal.NewFromInt(ask).Mul(one.Sub(s.cfg.FeeRate)).Floor().IntPart()
}
