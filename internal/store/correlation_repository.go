package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/money"
)

// correlationPayload is the msgpack-encoded wire shape for a
// CorrelationCalculation, matching the teacher's use of msgpack for
// compact structured blob columns.
type correlationPayload struct {
	Symbols []string    `msgpack:"symbols"`
	Matrix  [][]float64 `msgpack:"matrix"`
}

// CorrelationRepository persists CorrelationCalculation rows (spec.md §4.H).
type CorrelationRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCorrelationRepository creates a new correlation repository.
func NewCorrelationRepository(db *sql.DB, log zerolog.Logger) *CorrelationRepository {
	return &CorrelationRepository{db: db, log: log.With().Str("repository", "correlation").Logger()}
}

// Upsert writes the msgpack-encoded matrix payload, idempotent per (portfolio, date).
func (r *CorrelationRepository) Upsert(ctx context.Context, c models.CorrelationCalculation) error {
	matrix := make([][]float64, len(c.Matrix))
	for i, row := range c.Matrix {
		rounded := make([]float64, len(row))
		for j, v := range row {
			rounded[j] = money.Round4(v)
		}
		matrix[i] = rounded
	}
	payload, err := msgpack.Marshal(correlationPayload{Symbols: c.Symbols, Matrix: matrix})
	if err != nil {
		return fmt.Errorf("marshal correlation payload: %w", err)
	}

	now := time.Now().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO correlation_calculations (portfolio_id, calculation_date, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, calculation_date) DO UPDATE SET
			payload = excluded.payload, updated_at = excluded.updated_at
	`, models.EnsureID(c.PortfolioID), c.CalculationDate, payload, now)
	if err != nil {
		return fmt.Errorf("upsert correlation %s/%s: %w", c.PortfolioID, c.CalculationDate, err)
	}
	return nil
}

// Get returns the correlation matrix for a portfolio on a date, or (nil, nil) if absent.
func (r *CorrelationRepository) Get(ctx context.Context, portfolioID, date string) (*models.CorrelationCalculation, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM correlation_calculations WHERE portfolio_id = ? AND calculation_date = ?
	`, models.EnsureID(portfolioID), date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get correlation %s/%s: %w", portfolioID, date, err)
	}

	var decoded correlationPayload
	if err := msgpack.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal correlation payload: %w", err)
	}
	return &models.CorrelationCalculation{
		PortfolioID:     models.EnsureID(portfolioID),
		CalculationDate: date,
		Symbols:         decoded.Symbols,
		Matrix:          decoded.Matrix,
	}, nil
}
