package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fantasyxi/transfer-engine/internal/metrics"
	"github.com/fantasyxi/transfer-engine/internal/model"
	"github.com/fantasyxi/transfer-engine/internal/store"
)

// Buy executes a purchase of a listed player as one atomic transaction:
// validate, transfer ownership, move funds, update the player's
// reference price, and close the listing. Any failure rolls the whole
// transaction back with no visible effect.
//
// Transaction conflicts are retried up to cfg.MaxRetries times before
// ErrConflict is surfaced; retrying the whole call is safe because a buy
// against an already-sold listing returns ErrListingNotFound, never a
// second sale.
func (s *Service) Buy(ctx context.Context, buyerID, listingID string) (*model.SettlementResult, error) {
	if buyerID == "" || listingID == "" {
		return nil, ErrInvalidID
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		res, err := s.settle(ctx, buyerID, listingID)
		if err == nil {
			metrics.SettlementsTotal.WithLabelValues("success").Inc()
			metrics.SettlementLatency.Observe(time.Since(start).Seconds())

			s.log.Info("player sold",
				"listing_id", listingID,
				"buyer", buyerID,
				"player", res.Player.ID,
				"paid_price", res.PaidPrice,
				"ask_price", res.OriginalPrice,
			)
			s.notify(Event{
				Type:       "player_sold",
				ListingID:  listingID,
				PlayerID:   res.Player.ID,
				PlayerName: res.Player.Name,
				Price:      res.PaidPrice,
			})
			return res, nil
		}

		if !errors.Is(err, store.ErrConflict) {
			metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}

		metrics.SettlementConflicts.Inc()
		lastErr = err
		if attempt < s.cfg.MaxRetries {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	metrics.SettlementsTotal.WithLabelValues("conflict").Inc()
	s.log.Warn("settlement gave up after conflicts",
		"listing_id", listingID, "buyer", buyerID, "err", lastErr)
	return nil, ErrConflict
}

// settle is one attempt at the settlement transaction.
func (s *Service) settle(ctx context.Context, buyerID, listingID string) (*model.SettlementResult, error) {
	var res *model.SettlementResult

	err := s.store.ExecTx(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if !listing.Active() {
			return ErrListingNotFound
		}
		if listing.SellerID == buyerID {
			return ErrSelfPurchase
		}

		// Lock the two user rows in id order so crossing purchases
		// between the same pair of users cannot deadlock.
		buyer, seller, err := lockUsers(ctx, tx, buyerID, listing.SellerID)
		if err != nil {
			return err
		}

		clearing := s.clearingPrice(listing.AskPrice)
		if buyer.Budget < clearing {
			return ErrInsufficientBudget
		}

		if err := tx.DeleteOwnership(ctx, seller.ID, listing.PlayerID); err != nil {
			// Ownership and active listing can only diverge if an
			// invariant was already broken; treat as a conflict so the
			// caller does not see a partial state.
			if errors.Is(err, store.ErrNotFound) {
				return store.ErrConflict
			}
			return err
		}
		if err := tx.InsertOwnership(ctx, &model.Ownership{
			ID:         uuid.New().String(),
			UserID:     buyerID,
			PlayerID:   listing.PlayerID,
			Price:      clearing,
			AcquiredAt: time.Now().UTC(),
		}); err != nil {
			return err
		}

		if err := tx.UpdateUserBudget(ctx, buyerID, buyer.Budget-clearing); err != nil {
			return err
		}
		if err := tx.UpdateUserBudget(ctx, seller.ID, seller.Budget+clearing); err != nil {
			return err
		}
		if err := tx.UpdatePlayerPrice(ctx, listing.PlayerID, clearing); err != nil {
			return err
		}
		if err := tx.UpdateListingState(ctx, listingID, model.StateSold); err != nil {
			return err
		}

		player, err := tx.GetPlayer(ctx, listing.PlayerID)
		if err != nil {
			return err
		}
		player.Price = clearing

		res = &model.SettlementResult{
			Player:          *player,
			PaidPrice:       clearing,
			OriginalPrice:   listing.AskPrice,
			DiscountApplied: listing.AskPrice - clearing,
			NewBuyerBudget:  buyer.Budget - clearing,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lockUsers takes FOR UPDATE locks on the buyer and seller rows in a
// deterministic order and returns them as (buyer, seller).
func lockUsers(ctx context.Context, tx store.Tx, buyerID, sellerID string) (*model.User, *model.User, error) {
	firstID, secondID := buyerID, sellerID
	if sellerID < buyerID {
		firstID, secondID = sellerID, buyerID
	}

	first, err := tx.GetUserForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, lockUserErr(firstID == buyerID, err)
	}
	second, err := tx.GetUserForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, lockUserErr(secondID == buyerID, err)
	}

	if first.ID == buyerID {
		return first, second, nil
	}
	return second, first, nil
}

func lockUserErr(isBuyer bool, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		if isBuyer {
			return ErrBuyerNotFound
		}
		// A listing referencing a missing seller should not exist.
		return store.ErrConflict
	}
	return err
}

// backoff grows linearly with the attempt number.
func backoff(attempt int) time.Duration {
	base := 100 * time.Millisecond
	if attempt <= 1 {
		return base
	}
	return base * time.Duration(attempt)
}
