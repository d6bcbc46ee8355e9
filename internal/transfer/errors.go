package transfer

import (
	"errors"

	"github.com/fantasyxi/transfer-engine/internal/store"
)

// Domain errors returned by the transfer engine. Callers branch with
// errors.Is; the API layer maps Kind to HTTP status codes.
var (
	// ErrListingNotFound covers absent, inactive, and (for retraction)
	// not-owned listings alike so callers cannot probe for existence.
	ErrListingNotFound = errors.New("transfer listing not found or inactive")

	// ErrOwnershipNotFound means the seller does not currently own the
	// player they tried to list.
	ErrOwnershipNotFound = errors.New("player not found in your team")

	// ErrDuplicateListing means the player already has an active listing.
	ErrDuplicateListing = errors.New("player is already listed for transfer")

	// ErrInvalidPrice means the ask price is non-positive or above the
	// configured maximum.
	ErrInvalidPrice = errors.New("price must be a positive amount within the allowed maximum")

	// ErrInvalidFilter means the market query filters are out of range.
	ErrInvalidFilter = errors.New("invalid market filters")

	// ErrInvalidID means a required identifier is empty.
	ErrInvalidID = errors.New("identifier is required")

	// ErrSelfPurchase means a buyer tried to buy their own listing.
	ErrSelfPurchase = errors.New("cannot buy your own player")

	// ErrBuyerNotFound means the buyer's user record is missing.
	ErrBuyerNotFound = errors.New("buyer not found")

	// ErrInsufficientBudget means the buyer cannot cover the clearing price.
	ErrInsufficientBudget = errors.New("insufficient budget")

	// ErrConflict means concurrent transactions kept colliding after
	// retries; the whole call is safe to retry.
	ErrConflict = errors.New("transfer conflict, retry")
)

// Kind classifies an error for callers that care about category rather
// than identity (primarily the HTTP layer).
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidInput
	KindPreconditionFailed
	KindConflict
	KindUnavailable
)

// Classify returns the Kind for any error produced by the engine.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrListingNotFound),
		errors.Is(err, ErrOwnershipNotFound),
		errors.Is(err, ErrBuyerNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidID):
		return KindInvalidInput
	case errors.Is(err, ErrSelfPurchase),
		errors.Is(err, ErrDuplicateListing),
		errors.Is(err, ErrInsufficientBudget):
		return KindPreconditionFailed
	case errors.Is(err, ErrConflict), errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, store.ErrUnavailable):
		return KindUnavailable
	}
	return KindUnknown
}
