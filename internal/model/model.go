// Package model defines the core domain types shared across the transfer
// engine. All monetary values are int64 amounts in the smallest currency
// unit — budgets and prices are whole units, never float64.
package model

import "time"

// Position is a player's field position.
type Position string

const (
	PositionGK  Position = "GK"
	PositionDEF Position = "DEF"
	PositionMID Position = "MID"
	PositionATT Position = "ATT"
)

// Valid reports whether p is one of the four known positions.
func (p Position) Valid() bool {
	switch p {
	case PositionGK, PositionDEF, PositionMID, PositionATT:
		return true
	}
	return false
}

// ListingState tags a listing's lifecycle stage. Listings are append-only:
// a listing leaves StateActive exactly once and never returns.
type ListingState string

const (
	StateActive    ListingState = "active"
	StateRetracted ListingState = "retracted"
	StateSold      ListingState = "sold"
)

// User holds the budget side of the ledger. Budget never goes negative.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Budget    int64     `json:"budget" db:"budget"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Player is a tradable asset. Price is the reference valuation: it drifts
// to the clearing price of every completed sale.
type Player struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Position  Position  `json:"position" db:"position"`
	Team      string    `json:"team" db:"team"`
	Price     int64     `json:"price" db:"price"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ownership binds one player to one user. A player has at most one
// ownership record at any time; Price is the acquisition price.
type Ownership struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	PlayerID   string    `json:"player_id" db:"player_id"`
	Price      int64     `json:"price" db:"price"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
}

// Listing is a seller's offer to sell one owned player at a fixed ask
// price. Rows are soft-closed via State, never deleted (audit trail).
type Listing struct {
	ID        string       `json:"id" db:"id"`
	SellerID  string       `json:"seller_id" db:"seller_id"`
	PlayerID  string       `json:"player_id" db:"player_id"`
	AskPrice  int64        `json:"ask_price" db:"ask_price"`
	State     ListingState `json:"state" db:"state"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Active reports whether the listing can still be bought or retracted.
func (l *Listing) Active() bool { return l.State == StateActive }

// SellerRef is the public slice of a seller exposed in market views.
type SellerRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ListingView is a listing joined with its player and seller for the
// market read view.
type ListingView struct {
	Listing
	Player Player    `json:"player"`
	Seller SellerRef `json:"seller"`
}

// MarketFilters narrows the market read view. Zero values mean "no
// filter"; MinPrice/MaxPrice are inclusive bounds on the ask price.
type MarketFilters struct {
	Position Position `json:"position,omitempty"`
	Search   string   `json:"search,omitempty"`
	MinPrice *int64   `json:"min_price,omitempty"`
	MaxPrice *int64   `json:"max_price,omitempty"`
	Page     int      `json:"page"`
	Limit    int      `json:"limit"`
}

// MarketPage is one page of active listings plus the total match count
// for pagination UI.
type MarketPage struct {
	Listings   []ListingView `json:"listings"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
}

// SettlementResult is returned from a successful purchase. Player carries
// the post-sale reference price.
type SettlementResult struct {
	Player          Player `json:"player"`
	PaidPrice       int64  `json:"paid_price"`
	OriginalPrice   int64  `json:"original_price"`
	DiscountApplied int64  `json:"discount_applied"`
	NewBuyerBudget  int64  `json:"new_buyer_budget"`
}

// TeamPlayer is an owned player joined with its acquisition record.
type TeamPlayer struct {
	Player     Player    `json:"player"`
	Price      int64     `json:"price"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// TeamStats counts a squad by position.
type TeamStats struct {
	Goalkeepers  int `json:"goalkeepers"`
	Defenders    int `json:"defenders"`
	Midfielders  int `json:"midfielders"`
	Attackers    int `json:"attackers"`
	TotalPlayers int `json:"total_players"`
}

// Team is the read view of one user's squad and remaining budget.
type Team struct {
	Players []TeamPlayer `json:"players"`
	Budget  int64        `json:"budget"`
	Stats   TeamStats    `json:"team_stats"`
}
