package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fantasyxi/transfer-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Settlement correctness relies on row locks: ExecTx callers take the
// listing and user rows FOR UPDATE, so two concurrent buys of the same
// listing serialize and the loser observes the post-commit state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const listingColumns = `id, seller_id, player_id, ask_price, state, created_at, updated_at`
const playerColumns = `id, name, position, team, price, created_at, updated_at`

// --- Plain reads ---

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, budget, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Budget, &u.CreatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("get user %s: %w", id, err), err)
	}
	return &u, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var p model.Player
	err := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Position, &p.Team, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("get player %s: %w", id, err), err)
	}
	return &p, nil
}

func (s *PostgresStore) GetOwnership(ctx context.Context, userID, playerID string) (*model.Ownership, error) {
	var o model.Ownership
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, player_id, price, acquired_at
		 FROM ownerships WHERE user_id = $1 AND player_id = $2`, userID, playerID).
		Scan(&o.ID, &o.UserID, &o.PlayerID, &o.Price, &o.AcquiredAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("get ownership %s/%s: %w", userID, playerID, err), err)
	}
	return &o, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	err := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id).
		Scan(&l.ID, &l.SellerID, &l.PlayerID, &l.AskPrice, &l.State, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("get listing %s: %w", id, err), err)
	}
	return &l, nil
}

func (s *PostgresStore) MarketListings(ctx context.Context, f model.MarketFilters) (*model.MarketPage, error) {
	where, args := marketWhere(f)

	var total int
	countQuery := `SELECT COUNT(*)
		 FROM listings l JOIN players p ON p.id = l.player_id ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, mapPgError(fmt.Errorf("count market listings: %w", err), err)
	}

	offset := (f.Page - 1) * f.Limit
	pageArgs := append(args, f.Limit, offset)
	query := fmt.Sprintf(`SELECT l.id, l.seller_id, l.player_id, l.ask_price, l.state, l.created_at, l.updated_at,
		        p.id, p.name, p.position, p.team, p.price, p.created_at, p.updated_at,
		        u.id, u.email
		 FROM listings l
		 JOIN players p ON p.id = l.player_id
		 JOIN users u ON u.id = l.seller_id
		 %s
		 ORDER BY l.created_at DESC, l.id DESC
		 LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("query market listings: %w", err), err)
	}
	defer rows.Close()

	views, err := scanListingViews(rows)
	if err != nil {
		return nil, err
	}

	return &model.MarketPage{
		Listings:   views,
		TotalCount: total,
		Page:       f.Page,
		Limit:      f.Limit,
	}, nil
}

// marketWhere builds the shared WHERE clause for the page and count
// queries so both see the same filter set.
func marketWhere(f model.MarketFilters) (string, []any) {
	conds := []string{"l.state = 'active'"}
	var args []any

	if f.Position != "" {
		args = append(args, string(f.Position))
		conds = append(conds, fmt.Sprintf("p.position = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		conds = append(conds, fmt.Sprintf("l.ask_price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		conds = append(conds, fmt.Sprintf("l.ask_price <= $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(p.name ILIKE $%d OR p.team ILIKE $%d)", len(args), len(args)))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) SellerListings(ctx context.Context, sellerID string) ([]model.ListingView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.seller_id, l.player_id, l.ask_price, l.state, l.created_at, l.updated_at,
		        p.id, p.name, p.position, p.team, p.price, p.created_at, p.updated_at,
		        u.id, u.email
		 FROM listings l
		 JOIN players p ON p.id = l.player_id
		 JOIN users u ON u.id = l.seller_id
		 WHERE l.seller_id = $1 AND l.state = 'active'
		 ORDER BY l.created_at DESC, l.id DESC`, sellerID)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("query seller listings: %w", err), err)
	}
	defer rows.Close()

	return scanListingViews(rows)
}

func (s *PostgresStore) TeamPlayers(ctx context.Context, userID string) ([]model.TeamPlayer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.position, p.team, p.price, p.created_at, p.updated_at,
		        o.price, o.acquired_at
		 FROM ownerships o
		 JOIN players p ON p.id = o.player_id
		 WHERE o.user_id = $1
		 ORDER BY CASE p.position
		            WHEN 'GK' THEN 0 WHEN 'DEF' THEN 1 WHEN 'MID' THEN 2 ELSE 3
		          END, p.name`, userID)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("query team players: %w", err), err)
	}
	defer rows.Close()

	var team []model.TeamPlayer
	for rows.Next() {
		var tp model.TeamPlayer
		if err := rows.Scan(&tp.Player.ID, &tp.Player.Name, &tp.Player.Position, &tp.Player.Team,
			&tp.Player.Price, &tp.Player.CreatedAt, &tp.Player.UpdatedAt,
			&tp.Price, &tp.AcquiredAt); err != nil {
			return nil, err
		}
		team = append(team, tp)
	}
	return team, rows.Err()
}

// --- Transaction ---

func (s *PostgresStore) ExecTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit: %w", err), err)
	}
	committed = true
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetListingForUpdate(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	err := t.tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id).
		Scan(&l.ID, &l.SellerID, &l.PlayerID, &l.AskPrice, &l.State, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("lock listing %s: %w", id, err), err)
	}
	return &l, nil
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx,
		`SELECT id, email, budget, created_at FROM users WHERE id = $1 FOR UPDATE`, id).
		Scan(&u.ID, &u.Email, &u.Budget, &u.CreatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("lock user %s: %w", id, err), err)
	}
	return &u, nil
}

func (t *pgTx) GetOwnershipForUpdate(ctx context.Context, userID, playerID string) (*model.Ownership, error) {
	var o model.Ownership
	err := t.tx.QueryRow(ctx,
		`SELECT id, user_id, player_id, price, acquired_at
		 FROM ownerships WHERE user_id = $1 AND player_id = $2 FOR UPDATE`, userID, playerID).
		Scan(&o.ID, &o.UserID, &o.PlayerID, &o.Price, &o.AcquiredAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("lock ownership %s/%s: %w", userID, playerID, err), err)
	}
	return &o, nil
}

func (t *pgTx) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var p model.Player
	err := t.tx.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Position, &p.Team, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("get player %s: %w", id, err), err)
	}
	return &p, nil
}

func (t *pgTx) HasActiveListing(ctx context.Context, playerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE player_id = $1 AND state = 'active')`,
		playerID).Scan(&exists)
	if err != nil {
		return false, mapPgError(fmt.Errorf("check active listing: %w", err), err)
	}
	return exists, nil
}

func (t *pgTx) InsertListing(ctx context.Context, l *model.Listing) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO listings (id, seller_id, player_id, ask_price, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.SellerID, l.PlayerID, l.AskPrice, l.State, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return mapPgError(fmt.Errorf("insert listing: %w", err), err)
	}
	return nil
}

func (t *pgTx) UpdateListingState(ctx context.Context, id string, state model.ListingState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE listings SET state = $2, updated_at = now() WHERE id = $1`, id, state)
	if err != nil {
		return mapPgError(fmt.Errorf("update listing state: %w", err), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteOwnership(ctx context.Context, userID, playerID string) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM ownerships WHERE user_id = $1 AND player_id = $2`, userID, playerID)
	if err != nil {
		return mapPgError(fmt.Errorf("delete ownership: %w", err), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertOwnership(ctx context.Context, o *model.Ownership) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ownerships (id, user_id, player_id, price, acquired_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, o.PlayerID, o.Price, o.AcquiredAt)
	if err != nil {
		return mapPgError(fmt.Errorf("insert ownership: %w", err), err)
	}
	return nil
}

func (t *pgTx) UpdateUserBudget(ctx context.Context, id string, budget int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET budget = $2 WHERE id = $1`, id, budget)
	if err != nil {
		return mapPgError(fmt.Errorf("update user budget: %w", err), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdatePlayerPrice(ctx context.Context, id string, price int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE players SET price = $2, updated_at = now() WHERE id = $1`, id, price)
	if err != nil {
		return mapPgError(fmt.Errorf("update player price: %w", err), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

type listingViewRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanListingViews(rows listingViewRows) ([]model.ListingView, error) {
	views := make([]model.ListingView, 0)
	for rows.Next() {
		var v model.ListingView
		if err := rows.Scan(
			&v.Listing.ID, &v.SellerID, &v.Listing.PlayerID, &v.AskPrice, &v.State,
			&v.Listing.CreatedAt, &v.Listing.UpdatedAt,
			&v.Player.ID, &v.Player.Name, &v.Player.Position, &v.Player.Team,
			&v.Player.Price, &v.Player.CreatedAt, &v.Player.UpdatedAt,
			&v.Seller.ID, &v.Seller.Email); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// mapPgError translates driver errors into store sentinels while keeping
// the wrapped detail for logs. Serialization failures (40001), deadlocks
// (40P01), and unique violations (23505) are retryable conflicts.
func mapPgError(wrapped, cause error) error {
	if errors.Is(cause, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, wrapped)
	}
	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %v", ErrConflict, wrapped)
		}
	}
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrConflict, wrapped)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, wrapped)
}
