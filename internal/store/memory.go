package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. ExecTx holds the store mutex for the whole callback and
// restores a snapshot on error, so transactions are serialized and
// all-or-nothing.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*model.User
	players    map[string]*model.Player
	ownerships map[string]*model.Ownership // keyed by player id (exclusive ownership)
	listings   map[string]*model.Listing
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*model.User),
		players:    make(map[string]*model.Player),
		ownerships: make(map[string]*model.Ownership),
		listings:   make(map[string]*model.Listing),
	}
}

// --- Seeding helpers (squad generation is an external collaborator) ---

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// PutPlayer inserts or replaces a player.
func (s *MemoryStore) PutPlayer(p *model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.players[p.ID] = &cp
}

// PutOwnership inserts or replaces the ownership record for a player.
func (s *MemoryStore) PutOwnership(o *model.Ownership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.ownerships[o.PlayerID] = &cp
}

// --- Plain reads ---

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, id string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetOwnership(_ context.Context, userID, playerID string) (*model.Ownership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.ownerships[playerID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) MarketListings(_ context.Context, f model.MarketFilters) (*model.MarketPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]model.ListingView, 0)
	for _, l := range s.listings {
		if l.State != model.StateActive {
			continue
		}
		p, ok := s.players[l.PlayerID]
		if !ok {
			continue
		}
		if f.Position != "" && p.Position != f.Position {
			continue
		}
		if f.MinPrice != nil && l.AskPrice < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && l.AskPrice > *f.MaxPrice {
			continue
		}
		if f.Search != "" && !matchesSearch(p, f.Search) {
			continue
		}
		matches = append(matches, s.listingView(l, p))
	}

	sortListingViews(matches)

	total := len(matches)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	return &model.MarketPage{
		Listings:   matches[start:end],
		TotalCount: total,
		Page:       f.Page,
		Limit:      f.Limit,
	}, nil
}

func (s *MemoryStore) SellerListings(_ context.Context, sellerID string) ([]model.ListingView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]model.ListingView, 0)
	for _, l := range s.listings {
		if l.State != model.StateActive || l.SellerID != sellerID {
			continue
		}
		p, ok := s.players[l.PlayerID]
		if !ok {
			continue
		}
		views = append(views, s.listingView(l, p))
	}
	sortListingViews(views)
	return views, nil
}

func (s *MemoryStore) TeamPlayers(_ context.Context, userID string) ([]model.TeamPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team := make([]model.TeamPlayer, 0)
	for _, o := range s.ownerships {
		if o.UserID != userID {
			continue
		}
		p, ok := s.players[o.PlayerID]
		if !ok {
			continue
		}
		team = append(team, model.TeamPlayer{
			Player:     *p,
			Price:      o.Price,
			AcquiredAt: o.AcquiredAt,
		})
	}
	sort.Slice(team, func(i, j int) bool {
		if team[i].Player.Position != team[j].Player.Position {
			return positionRank(team[i].Player.Position) < positionRank(team[j].Player.Position)
		}
		return team[i].Player.Name < team[j].Player.Name
	})
	return team, nil
}

// --- Transaction ---

func (s *MemoryStore) ExecTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	users      map[string]*model.User
	players    map[string]*model.Player
	ownerships map[string]*model.Ownership
	listings   map[string]*model.Listing
}

func (s *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		users:      cloneMap(s.users),
		players:    cloneMap(s.players),
		ownerships: cloneMap(s.ownerships),
		listings:   cloneMap(s.listings),
	}
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.users = snap.users
	s.players = snap.players
	s.ownerships = snap.ownerships
	s.listings = snap.listings
}

func cloneMap[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

// memTx operates directly on the store maps; the store mutex is already
// held for the duration of ExecTx.
type memTx struct {
	s *MemoryStore
}

func (t *memTx) GetListingForUpdate(_ context.Context, id string) (*model.Listing, error) {
	l, ok := t.s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (t *memTx) GetUserForUpdate(_ context.Context, id string) (*model.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) GetOwnershipForUpdate(_ context.Context, userID, playerID string) (*model.Ownership, error) {
	o, ok := t.s.ownerships[playerID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) GetPlayer(_ context.Context, id string) (*model.Player, error) {
	p, ok := t.s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) HasActiveListing(_ context.Context, playerID string) (bool, error) {
	for _, l := range t.s.listings {
		if l.PlayerID == playerID && l.State == model.StateActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertListing(_ context.Context, l *model.Listing) error {
	if _, exists := t.s.listings[l.ID]; exists {
		return ErrConflict
	}
	for _, existing := range t.s.listings {
		if existing.PlayerID == l.PlayerID && existing.State == model.StateActive {
			return ErrConflict
		}
	}
	cp := *l
	t.s.listings[l.ID] = &cp
	return nil
}

func (t *memTx) UpdateListingState(_ context.Context, id string, state model.ListingState) error {
	l, ok := t.s.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.State = state
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeleteOwnership(_ context.Context, userID, playerID string) error {
	o, ok := t.s.ownerships[playerID]
	if !ok || o.UserID != userID {
		return ErrNotFound
	}
	delete(t.s.ownerships, playerID)
	return nil
}

func (t *memTx) InsertOwnership(_ context.Context, o *model.Ownership) error {
	if _, exists := t.s.ownerships[o.PlayerID]; exists {
		return ErrConflict
	}
	cp := *o
	t.s.ownerships[o.PlayerID] = &cp
	return nil
}

func (t *memTx) UpdateUserBudget(_ context.Context, id string, budget int64) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Budget = budget
	return nil
}

func (t *memTx) UpdatePlayerPrice(_ context.Context, id string, price int64) error {
	p, ok := t.s.players[id]
	if !ok {
		return ErrNotFound
	}
	p.Price = price
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// --- helpers ---

func (s *MemoryStore) listingView(l *model.Listing, p *model.Player) model.ListingView {
	view := model.ListingView{Listing: *l, Player: *p}
	if seller, ok := s.users[l.SellerID]; ok {
		view.Seller = model.SellerRef{ID: seller.ID, Email: seller.Email}
	}
	return view
}

func matchesSearch(p *model.Player, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Team), needle)
}

// sortListingViews orders newest first with a stable id tiebreak so
// pagination is deterministic under equal timestamps.
func sortListingViews(views []model.ListingView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
}

func positionRank(p model.Position) int {
	switch p {
	case model.PositionGK:
		return 0
	case model.PositionDEF:
		return 1
	case model.PositionMID:
		return 2
	case model.PositionATT:
		return 3
	}
	return 4
}
