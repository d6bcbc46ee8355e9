// Package store defines the persistence interface for the transfer
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through player cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

// Sentinel errors returned by implementations. The domain layer
// translates these into its own error taxonomy.
var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict means a concurrent transaction won a race on the same
	// rows (serialization failure, deadlock victim, or unique-constraint
	// collision). The whole operation is safe to retry.
	ErrConflict = errors.New("store: transaction conflict")

	// ErrUnavailable means the store could not start or commit a
	// transaction for infrastructure reasons. Not retried by the engine.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the persistence interface. Reads outside a transaction see
// committed state only; all multi-row mutations go through ExecTx.
type Store interface {
	// --- Plain reads ---

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetPlayer retrieves a player by id.
	GetPlayer(ctx context.Context, id string) (*model.Player, error)

	// GetOwnership retrieves the ownership record for (userID, playerID).
	GetOwnership(ctx context.Context, userID, playerID string) (*model.Ownership, error)

	// GetListing retrieves a listing by id regardless of state.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// MarketListings returns one page of active listings matching the
	// filters, newest first (created_at DESC, id DESC), plus the total
	// match count. Filters are assumed normalized by the caller.
	MarketListings(ctx context.Context, f model.MarketFilters) (*model.MarketPage, error)

	// SellerListings returns a seller's active listings, newest first.
	SellerListings(ctx context.Context, sellerID string) ([]model.ListingView, error)

	// TeamPlayers returns all players owned by a user with acquisition
	// details, ordered by position then name.
	TeamPlayers(ctx context.Context, userID string) ([]model.TeamPlayer, error)

	// --- Transactional boundary ---

	// ExecTx runs fn inside one atomic transaction. If fn returns an
	// error the transaction rolls back with no visible effect. Reads
	// performed through the Tx are indivisible from its writes with
	// respect to other transactions on the same rows.
	ExecTx(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the row operations available inside ExecTx. "ForUpdate"
// reads lock the row for the remainder of the transaction.
type Tx interface {
	// GetListingForUpdate loads and locks a listing row.
	GetListingForUpdate(ctx context.Context, id string) (*model.Listing, error)

	// GetUserForUpdate loads and locks a user row.
	GetUserForUpdate(ctx context.Context, id string) (*model.User, error)

	// GetOwnershipForUpdate loads and locks the ownership row for
	// (userID, playerID).
	GetOwnershipForUpdate(ctx context.Context, userID, playerID string) (*model.Ownership, error)

	// GetPlayer loads a player row within the transaction.
	GetPlayer(ctx context.Context, id string) (*model.Player, error)

	// HasActiveListing reports whether the player has an active listing.
	HasActiveListing(ctx context.Context, playerID string) (bool, error)

	// InsertListing persists a new listing row.
	InsertListing(ctx context.Context, l *model.Listing) error

	// UpdateListingState moves a listing out of the active state.
	UpdateListingState(ctx context.Context, id string, state model.ListingState) error

	// DeleteOwnership removes the (userID, playerID) ownership row.
	DeleteOwnership(ctx context.Context, userID, playerID string) error

	// InsertOwnership persists a new ownership row.
	InsertOwnership(ctx context.Context, o *model.Ownership) error

	// UpdateUserBudget sets a user's budget to the given amount.
	UpdateUserBudget(ctx context.Context, id string, budget int64) error

	// UpdatePlayerPrice sets a player's reference price.
	UpdatePlayerPrice(ctx context.Context, id string, price int64) error
}
