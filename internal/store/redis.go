package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for player and user lookups. Mutations run against the primary;
// rows touched inside a transaction are invalidated after it commits, so
// the cache never holds state a rolled-back transaction produced.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through ---

func (s *CachedStore) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	data, err := s.rdb.Get(ctx, playerKey(id)).Bytes()
	if err == nil {
		var p model.Player
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, playerKey(id), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(id), data, s.ttl)
	}
	return u, nil
}

// --- Passthrough (listing reads must always see committed truth) ---

func (s *CachedStore) GetOwnership(ctx context.Context, userID, playerID string) (*model.Ownership, error) {
	return s.primary.GetOwnership(ctx, userID, playerID)
}

func (s *CachedStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return s.primary.GetListing(ctx, id)
}

func (s *CachedStore) MarketListings(ctx context.Context, f model.MarketFilters) (*model.MarketPage, error) {
	return s.primary.MarketListings(ctx, f)
}

func (s *CachedStore) SellerListings(ctx context.Context, sellerID string) ([]model.ListingView, error) {
	return s.primary.SellerListings(ctx, sellerID)
}

func (s *CachedStore) TeamPlayers(ctx context.Context, userID string) ([]model.TeamPlayer, error) {
	return s.primary.TeamPlayers(ctx, userID)
}

// --- Transaction ---

// ExecTx delegates to the primary, recording the player and user rows the
// callback wrote. On commit those keys are dropped; the next read
// re-populates from the primary.
func (s *CachedStore) ExecTx(ctx context.Context, fn func(Tx) error) error {
	rec := &recordingTx{}
	err := s.primary.ExecTx(ctx, func(tx Tx) error {
		rec.Tx = tx
		return fn(rec)
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rec.players)+len(rec.users))
	for _, id := range rec.players {
		keys = append(keys, playerKey(id))
	}
	for _, id := range rec.users {
		keys = append(keys, userKey(id))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// recordingTx passes operations through while noting which cached rows
// were mutated.
type recordingTx struct {
	Tx
	players []string
	users   []string
}

func (t *recordingTx) UpdatePlayerPrice(ctx context.Context, id string, price int64) error {
	t.players = append(t.players, id)
	return t.Tx.UpdatePlayerPrice(ctx, id, price)
}

func (t *recordingTx) UpdateUserBudget(ctx context.Context, id string, budget int64) error {
	t.users = append(t.users, id)
	return t.Tx.UpdateUserBudget(ctx, id, budget)
}

// --- Cache keys ---

func playerKey(id string) string { return fmt.Sprintf("player:%s", id) }
func userKey(id string) string   { return fmt.Sprintf("user:%s", id) }
