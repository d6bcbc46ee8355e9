package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fantasyxi/transfer-engine/internal/metrics"
	"github.com/fantasyxi/transfer-engine/internal/model"
	"github.com/fantasyxi/transfer-engine/internal/store"
)

// CreateListing puts an owned player up for sale at a fixed ask price.
// The ownership check, duplicate check, and insert run in one
// transaction so two concurrent listings of the same player cannot both
// succeed. No funds or ownership move at creation time.
func (s *Service) CreateListing(ctx context.Context, sellerID, playerID string, askPrice int64) (*model.Listing, error) {
	if sellerID == "" || playerID == "" {
		return nil, ErrInvalidID
	}
	if askPrice <= 0 || askPrice > s.cfg.MaxAskPrice {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPrice, askPrice)
	}

	now := time.Now().UTC()
	listing := &model.Listing{
		ID:        uuid.New().String(),
		SellerID:  sellerID,
		PlayerID:  playerID,
		AskPrice:  askPrice,
		State:     model.StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.ExecTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetOwnershipForUpdate(ctx, sellerID, playerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOwnershipNotFound
			}
			return err
		}

		listed, err := tx.HasActiveListing(ctx, playerID)
		if err != nil {
			return err
		}
		if listed {
			return ErrDuplicateListing
		}

		if err := tx.InsertListing(ctx, listing); err != nil {
			// The partial unique index caught a racing listing.
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateListing
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ListingsCreated.Inc()
	s.log.Info("listing created",
		"listing_id", listing.ID,
		"seller", sellerID,
		"player", playerID,
		"ask_price", askPrice,
	)
	s.notify(Event{
		Type:      "listing_created",
		ListingID: listing.ID,
		PlayerID:  playerID,
		Price:     askPrice,
	})

	return listing, nil
}

// RetractListing closes a seller's active listing with no side effects.
// Absence, inactivity, and a seller mismatch are deliberately collapsed
// into ErrListingNotFound; retracting twice fails the second time.
func (s *Service) RetractListing(ctx context.Context, sellerID, listingID string) error {
	if sellerID == "" || listingID == "" {
		return ErrInvalidID
	}

	err := s.store.ExecTx(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if !listing.Active() || listing.SellerID != sellerID {
			return ErrListingNotFound
		}
		return tx.UpdateListingState(ctx, listingID, model.StateRetracted)
	})
	if err != nil {
		return err
	}

	metrics.ListingsRetracted.Inc()
	s.log.Info("listing retracted", "listing_id", listingID, "seller", sellerID)
	s.notify(Event{Type: "listing_retracted", ListingID: listingID})
	return nil
}

// UserListings returns the seller's active listings, newest first.
func (s *Service) UserListings(ctx context.Context, sellerID string) ([]model.ListingView, error) {
	if sellerID == "" {
		return nil, ErrInvalidID
	}
	return s.store.SellerListings(ctx, sellerID)
}

// Team returns the user's squad with acquisition details, remaining
// budget, and per-position counts.
func (s *Service) Team(ctx context.Context, userID string) (*model.Team, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBuyerNotFound
		}
		return nil, err
	}

	players, err := s.store.TeamPlayers(ctx, userID)
	if err != nil {
		return nil, err
	}
	if players == nil {
		players = []model.TeamPlayer{}
	}

	var stats model.TeamStats
	for _, tp := range players {
		switch tp.Player.Position {
		case model.PositionGK:
			stats.Goalkeepers++
		case model.PositionDEF:
			stats.Defenders++
		case model.PositionMID:
			stats.Midfielders++
		case model.PositionATT:
			stats.Attackers++
		}
	}
	stats.TotalPlayers = len(players)

	return &model.Team{
		Players: players,
		Budget:  user.Budget,
		Stats:   stats,
	}, nil
}
