package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

func TestMemoryExecTxRollsBackOnError(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	st.PutUser(&model.User{ID: "u1", Email: "u1@test.local", Budget: 1000})
	st.PutPlayer(&model.Player{ID: "p1", Name: "P", Position: model.PositionMID, Team: "T", Price: 500})

	boom := errors.New("boom")
	err := st.ExecTx(ctx, func(tx Tx) error {
		if err := tx.UpdateUserBudget(ctx, "u1", 0); err != nil {
			return err
		}
		if err := tx.UpdatePlayerPrice(ctx, "p1", 9999); err != nil {
			return err
		}
		if err := tx.InsertListing(ctx, &model.Listing{
			ID: "l1", SellerID: "u1", PlayerID: "p1", AskPrice: 500, State: model.StateActive,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ExecTx err = %v, want boom", err)
	}

	u, err := st.GetUser(ctx, "u1")
	if err != nil || u.Budget != 1000 {
		t.Errorf("budget = %d (err %v), want rolled back to 1000", u.Budget, err)
	}
	p, err := st.GetPlayer(ctx, "p1")
	if err != nil || p.Price != 500 {
		t.Errorf("price = %d (err %v), want rolled back to 500", p.Price, err)
	}
	if _, err := st.GetListing(ctx, "l1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("listing err = %v, want ErrNotFound after rollback", err)
	}
}

func TestMemoryExecTxCommits(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	st.PutUser(&model.User{ID: "u1", Email: "u1@test.local", Budget: 1000})

	err := st.ExecTx(ctx, func(tx Tx) error {
		return tx.UpdateUserBudget(ctx, "u1", 250)
	})
	if err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	u, _ := st.GetUser(ctx, "u1")
	if u.Budget != 250 {
		t.Errorf("budget = %d, want 250", u.Budget)
	}
}

func TestMemoryGetOwnershipChecksOwner(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	st.PutOwnership(&model.Ownership{ID: "o1", UserID: "u1", PlayerID: "p1", Price: 100})

	if _, err := st.GetOwnership(ctx, "u1", "p1"); err != nil {
		t.Errorf("owner lookup: %v", err)
	}
	if _, err := st.GetOwnership(ctx, "u2", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner lookup err = %v, want ErrNotFound", err)
	}
}

func TestMemoryInsertListingEnforcesSingleActive(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	err := st.ExecTx(ctx, func(tx Tx) error {
		return tx.InsertListing(ctx, &model.Listing{
			ID: "l1", SellerID: "u1", PlayerID: "p1", AskPrice: 100, State: model.StateActive,
		})
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = st.ExecTx(ctx, func(tx Tx) error {
		return tx.InsertListing(ctx, &model.Listing{
			ID: "l2", SellerID: "u2", PlayerID: "p1", AskPrice: 200, State: model.StateActive,
		})
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("second active insert err = %v, want ErrConflict", err)
	}

	// A closed listing for the same player does not block a new one.
	if err := st.ExecTx(ctx, func(tx Tx) error {
		return tx.UpdateListingState(ctx, "l1", model.StateRetracted)
	}); err != nil {
		t.Fatalf("retract: %v", err)
	}
	err = st.ExecTx(ctx, func(tx Tx) error {
		return tx.InsertListing(ctx, &model.Listing{
			ID: "l3", SellerID: "u1", PlayerID: "p1", AskPrice: 300, State: model.StateActive,
		})
	})
	if err != nil {
		t.Errorf("insert after close: %v", err)
	}
}

func TestMemoryMarketListingsSkipsTombstones(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	st.PutUser(&model.User{ID: "u1", Email: "u1@test.local", Budget: 1000})
	st.PutPlayer(&model.Player{ID: "p1", Name: "A", Position: model.PositionGK, Team: "T", Price: 100})
	st.PutPlayer(&model.Player{ID: "p2", Name: "B", Position: model.PositionGK, Team: "T", Price: 100})

	now := time.Now().UTC()
	if err := st.ExecTx(ctx, func(tx Tx) error {
		if err := tx.InsertListing(ctx, &model.Listing{
			ID: "l1", SellerID: "u1", PlayerID: "p1", AskPrice: 100, State: model.StateActive, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertListing(ctx, &model.Listing{
			ID: "l2", SellerID: "u1", PlayerID: "p2", AskPrice: 100, State: model.StateSold, CreatedAt: now,
		})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := st.MarketListings(ctx, model.MarketFilters{Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("MarketListings: %v", err)
	}
	if page.TotalCount != 1 || page.Listings[0].ID != "l1" {
		t.Errorf("got total %d, want only the active listing", page.TotalCount)
	}
}
