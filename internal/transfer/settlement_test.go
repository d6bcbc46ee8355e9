package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fantasyxi/transfer-engine/internal/model"
	"github.com/fantasyxi/transfer-engine/internal/store"
)

func newTestEngine(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, DefaultConfig(), nil, log), st
}

func seedUser(st *store.MemoryStore, id string, budget int64) {
	st.PutUser(&model.User{
		ID:        id,
		Email:     id + "@test.local",
		Budget:    budget,
		CreatedAt: time.Now().UTC(),
	})
}

func seedOwnedPlayer(st *store.MemoryStore, userID, playerID string, price int64) {
	st.PutPlayer(&model.Player{
		ID:       playerID,
		Name:     "Player " + playerID,
		Position: model.PositionMID,
		Team:     "Test FC",
		Price:    price,
	})
	st.PutOwnership(&model.Ownership{
		ID:         "own-" + playerID,
		UserID:     userID,
		PlayerID:   playerID,
		Price:      price,
		AcquiredAt: time.Now().UTC(),
	})
}

func TestBuySettlesAtDiscountedPrice(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedUser(st, "buyer", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 800_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 1_000_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	res, err := svc.Buy(ctx, "buyer", listing.ID)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}

	if res.PaidPrice != 950_000 {
		t.Errorf("paid price = %d, want 950000", res.PaidPrice)
	}
	if res.OriginalPrice != 1_000_000 {
		t.Errorf("original price = %d, want 1000000", res.OriginalPrice)
	}
	if res.DiscountApplied != 50_000 {
		t.Errorf("discount = %d, want 50000", res.DiscountApplied)
	}
	if res.NewBuyerBudget != 4_050_000 {
		t.Errorf("new buyer budget = %d, want 4050000", res.NewBuyerBudget)
	}
	if res.Player.Price != 950_000 {
		t.Errorf("player reference price = %d, want 950000", res.Player.Price)
	}

	buyer, _ := st.GetUser(ctx, "buyer")
	if buyer.Budget != 4_050_000 {
		t.Errorf("buyer budget = %d, want 4050000", buyer.Budget)
	}
	seller, _ := st.GetUser(ctx, "seller")
	if seller.Budget != 5_950_000 {
		t.Errorf("seller budget = %d, want 5950000", seller.Budget)
	}

	if _, err := st.GetOwnership(ctx, "buyer", "p1"); err != nil {
		t.Errorf("buyer should own player: %v", err)
	}
	if _, err := st.GetOwnership(ctx, "seller", "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("seller should no longer own player, got err=%v", err)
	}

	sold, _ := st.GetListing(ctx, listing.ID)
	if sold.State != model.StateSold {
		t.Errorf("listing state = %q, want sold", sold.State)
	}

	// The sold listing cannot settle twice.
	if _, err := svc.Buy(ctx, "buyer", listing.ID); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("second buy err = %v, want ErrListingNotFound", err)
	}
}

func TestBuyConservesTotalMoney(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 1_234_567)
	seedUser(st, "buyer", 7_654_321)
	seedOwnedPlayer(st, "seller", "p1", 500_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 999_999)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if _, err := svc.Buy(ctx, "buyer", listing.ID); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	buyer, _ := st.GetUser(ctx, "buyer")
	seller, _ := st.GetUser(ctx, "seller")
	if got := buyer.Budget + seller.Budget; got != 1_234_567+7_654_321 {
		t.Errorf("total money = %d, want %d", got, 1_234_567+7_654_321)
	}
}

func TestClearingPriceRoundsDown(t *testing.T) {
	svc, _ := newTestEngine(t)

	cases := []struct {
		ask  int64
		want int64
	}{
		{1_000_000, 950_000},
		{999, 949},
		{100, 95},
		{20, 19},
		{1, 0},
	}
	for _, tc := range cases {
		if got := svc.clearingPrice(tc.ask); got != tc.want {
			t.Errorf("clearingPrice(%d) = %d, want %d", tc.ask, got, tc.want)
		}
	}
}

func TestBuyRejectsSelfPurchase(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 100_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 100_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if _, err := svc.Buy(ctx, "seller", listing.ID); !errors.Is(err, ErrSelfPurchase) {
		t.Errorf("err = %v, want ErrSelfPurchase", err)
	}

	// Nothing moved; the listing is still on the market.
	l, _ := st.GetListing(ctx, listing.ID)
	if l.State != model.StateActive {
		t.Errorf("listing state = %q, want active", l.State)
	}
	seller, _ := st.GetUser(ctx, "seller")
	if seller.Budget != 5_000_000 {
		t.Errorf("seller budget changed: %d", seller.Budget)
	}
}

func TestBuyInsufficientBudgetLeavesStateUntouched(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedUser(st, "buyer", 949_999)
	seedOwnedPlayer(st, "seller", "p1", 800_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 1_000_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if _, err := svc.Buy(ctx, "buyer", listing.ID); !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("err = %v, want ErrInsufficientBudget", err)
	}

	buyer, _ := st.GetUser(ctx, "buyer")
	if buyer.Budget != 949_999 {
		t.Errorf("buyer budget = %d, want unchanged 949999", buyer.Budget)
	}
	if _, err := st.GetOwnership(ctx, "seller", "p1"); err != nil {
		t.Errorf("seller should still own player: %v", err)
	}
	l, _ := st.GetListing(ctx, listing.ID)
	if l.State != model.StateActive {
		t.Errorf("listing state = %q, want active", l.State)
	}
}

func TestBuyUnknownBuyer(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 100_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 100_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if _, err := svc.Buy(ctx, "ghost", listing.ID); !errors.Is(err, ErrBuyerNotFound) {
		t.Errorf("err = %v, want ErrBuyerNotFound", err)
	}
}

func TestBuyAfterRetract(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedUser(st, "buyer", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 100_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 100_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if err := svc.RetractListing(ctx, "seller", listing.ID); err != nil {
		t.Fatalf("RetractListing: %v", err)
	}

	if _, err := svc.Buy(ctx, "buyer", listing.ID); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("err = %v, want ErrListingNotFound", err)
	}
}

func TestBuyInvalidIDs(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, "", "l1"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("empty buyer: err = %v, want ErrInvalidID", err)
	}
	if _, err := svc.Buy(ctx, "u1", ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("empty listing: err = %v, want ErrInvalidID", err)
	}
}

// Exactly one of N concurrent buyers wins; the rest see the listing as
// gone, and money moves exactly once.
func TestBuyConcurrentSingleWinner(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 800_000)

	const buyers = 8
	ids := make([]string, buyers)
	for i := range ids {
		ids[i] = "buyer-" + string(rune('a'+i))
		seedUser(st, ids[i], 5_000_000)
	}

	listing, err := svc.CreateListing(ctx, "seller", "p1", 1_000_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Buy(ctx, ids[i], listing.ID)
		}(i)
	}
	wg.Wait()

	var wins int
	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			winner = ids[i]
		case errors.Is(err, ErrListingNotFound):
		default:
			t.Errorf("buyer %s: unexpected err %v", ids[i], err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}

	if _, err := st.GetOwnership(ctx, winner, "p1"); err != nil {
		t.Errorf("winner %s should own player: %v", winner, err)
	}
	seller, _ := st.GetUser(ctx, "seller")
	if seller.Budget != 5_950_000 {
		t.Errorf("seller budget = %d, want 5950000 (credited once)", seller.Budget)
	}
	for _, id := range ids {
		u, _ := st.GetUser(ctx, id)
		if id == winner {
			if u.Budget != 4_050_000 {
				t.Errorf("winner budget = %d, want 4050000", u.Budget)
			}
		} else if u.Budget != 5_000_000 {
			t.Errorf("loser %s budget = %d, want unchanged", id, u.Budget)
		}
	}
}

// conflictStore makes every transaction fail with a conflict so the
// retry loop is observable.
type conflictStore struct {
	store.Store
	mu    sync.Mutex
	calls int
}

func (c *conflictStore) ExecTx(_ context.Context, _ func(store.Tx) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return store.ErrConflict
}

func TestBuyRetriesConflictsThenGivesUp(t *testing.T) {
	cs := &conflictStore{}
	cfg := DefaultConfig()
	svc := NewService(cs, cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Buy(context.Background(), "buyer", "l1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if cs.calls != cfg.MaxRetries {
		t.Errorf("attempts = %d, want %d", cs.calls, cfg.MaxRetries)
	}
}

// recordingNotifier captures post-commit events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func TestBuyEmitsSoldEventAfterCommit(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(st, DefaultConfig(), notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	seedUser(st, "seller", 5_000_000)
	seedUser(st, "buyer", 5_000_000)
	seedOwnedPlayer(st, "seller", "p1", 100_000)

	listing, err := svc.CreateListing(ctx, "seller", "p1", 200_000)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if _, err := svc.Buy(ctx, "buyer", listing.ID); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 2 {
		t.Fatalf("events = %d, want 2 (created + sold)", len(notifier.events))
	}
	sold := notifier.events[1]
	if sold.Type != "player_sold" {
		t.Errorf("event type = %q, want player_sold", sold.Type)
	}
	if sold.Price != 190_000 {
		t.Errorf("event price = %d, want 190000", sold.Price)
	}
	if sold.ListingID != listing.ID {
		t.Errorf("event listing = %q, want %q", sold.ListingID, listing.ID)
	}
}
