// Package store provides the SQLite repositories of the batch core.
// Portfolio and Position rows are owned by the external position-entry
// layer: the engines read them but never write them (spec.md §6).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
)

// PortfolioRepository reads Portfolio and Position rows from risk.db.
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository.
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repository", "portfolio").Logger(),
	}
}

// ListPortfolioIDs returns every portfolio id, sorted, so the orchestrator's
// deterministic-by-identifier processing order (spec.md §5) is enforced here
// rather than left to caller discipline.
func (r *PortfolioRepository) ListPortfolioIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM portfolios")
	if err != nil {
		return nil, fmt.Errorf("list portfolio ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan portfolio id: %w", err)
		}
		ids = append(ids, models.EnsureID(id))
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

// Get retrieves a single portfolio by id, or (nil, nil) if it doesn't exist.
func (r *PortfolioRepository) Get(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	portfolioID = models.EnsureID(portfolioID)
	var p models.Portfolio
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_ref, display_name FROM portfolios WHERE id = ?`, portfolioID,
	).Scan(&p.ID, &p.OwnerRef, &p.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", portfolioID, err)
	}
	return &p, nil
}

// Upsert inserts or updates a portfolio. Used by tests and the external
// position-entry layer; the engines never call this.
func (r *PortfolioRepository) Upsert(ctx context.Context, p models.Portfolio) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, owner_ref, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_ref = excluded.owner_ref,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, models.EnsureID(p.ID), p.OwnerRef, p.DisplayName, now, now)
	if err != nil {
		return fmt.Errorf("upsert portfolio %s: %w", p.ID, err)
	}
	return nil
}

// ListPositions returns every position belonging to a portfolio.
func (r *PortfolioRepository) ListPositions(ctx context.Context, portfolioID string) ([]models.Position, error) {
	portfolioID = models.EnsureID(portfolioID)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, symbol, position_type, quantity, entry_price, entry_date,
		       COALESCE(underlying_symbol, ''), COALESCE(strike, 0), COALESCE(expiration_date, '')
		FROM positions WHERE portfolio_id = ?
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list positions for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var positionType string
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Symbol, &positionType, &p.Quantity,
			&p.EntryPrice, &p.EntryDate, &p.UnderlyingSymbol, &p.Strike, &p.ExpirationDate); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Type = models.PositionType(positionType)
		p.ID = models.EnsureID(p.ID)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertPosition inserts or updates a position. Used by tests and the external
// position-entry layer; the engines never call this.
func (r *PortfolioRepository) UpsertPosition(ctx context.Context, p models.Position) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (id, portfolio_id, symbol, position_type, quantity, entry_price,
		                        entry_date, underlying_symbol, strike, expiration_date,
		                        created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			position_type = excluded.position_type,
			quantity = excluded.quantity,
			entry_price = excluded.entry_price,
			entry_date = excluded.entry_date,
			underlying_symbol = excluded.underlying_symbol,
			strike = excluded.strike,
			expiration_date = excluded.expiration_date,
			updated_at = excluded.updated_at
	`, models.EnsureID(p.ID), models.EnsureID(p.PortfolioID), p.Symbol, string(p.Type),
		p.Quantity, p.EntryPrice, p.EntryDate, p.UnderlyingSymbol, p.Strike, p.ExpirationDate, now, now)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ID, err)
	}
	return nil
}
