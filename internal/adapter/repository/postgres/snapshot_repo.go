package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// snapshotRepository implements domain.SnapshotRepository
type snapshotRepository struct {
	db *DB
}

const snapshotColumns = `id, portfolio_id, date, cash_balance, investment_value, total_value, total_deposits, created_at`

func scanSnapshot(row rowScanner) (*domain.DailySnapshot, error) {
	var s domain.DailySnapshot
	var cashStr, investmentStr, totalStr, depositsStr string

	if err := row.Scan(
		&s.ID,
		&s.PortfolioID,
		&s.Date,
		&cashStr,
		&investmentStr,
		&totalStr,
		&depositsStr,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if s.CashBalance, err = parseDecimal(cashStr, "cash_balance"); err != nil {
		return nil, err
	}
	if s.InvestmentValue, err = parseDecimal(investmentStr, "investment_value"); err != nil {
		return nil, err
	}
	if s.TotalValue, err = parseDecimal(totalStr, "total_value"); err != nil {
		return nil, err
	}
	if s.TotalDeposits, err = parseDecimal(depositsStr, "total_deposits"); err != nil {
		return nil, err
	}
	s.Date = domain.DateOf(s.Date)
	return &s, nil
}

// Upsert inserts the snapshot or replaces the values of the existing one for the date
func (r *snapshotRepository) Upsert(ctx context.Context, s *domain.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (portfolio_id, date) DO UPDATE
		SET cash_balance = EXCLUDED.cash_balance,
		    investment_value = EXCLUDED.investment_value,
		    total_value = EXCLUDED.total_value,
		    total_deposits = EXCLUDED.total_deposits,
		    created_at = EXCLUDED.created_at
		RETURNING id
	`

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := r.db.conn(ctx).QueryRowContext(ctx, query,
		s.ID,
		s.PortfolioID,
		dateArg(s.Date),
		s.CashBalance.StringFixed(2),
		s.InvestmentValue.StringFixed(2),
		s.TotalValue.StringFixed(2),
		s.TotalDeposits.StringFixed(2),
		createdAt,
	).Scan(&s.ID)
	if err != nil {
		return translate(err, "upsert daily snapshot")
	}
	return nil
}

// Get retrieves the snapshot of a portfolio for one date
func (r *snapshotRepository) Get(ctx context.Context, portfolioID uuid.UUID, date time.Time) (*domain.DailySnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM daily_snapshots WHERE portfolio_id = $1 AND date = $2`

	s, err := scanSnapshot(r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID, dateArg(date)))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("get snapshot of %s", portfolioID))
	}
	return s, nil
}

// ListRange returns the snapshots between from and to inclusive, oldest first
func (r *snapshotRepository) ListRange(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.DailySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM daily_snapshots
		WHERE portfolio_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, portfolioID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, translate(err, "list snapshots")
	}
	defer rows.Close()

	var snapshots []*domain.DailySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// ReplaceHoldingSnapshots swaps the per-holding rows of a date for the given ones
func (r *snapshotRepository) ReplaceHoldingSnapshots(ctx context.Context, portfolioID uuid.UUID, date time.Time, rows []*domain.HoldingSnapshot) error {
	day := dateArg(date)

	if _, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM holding_snapshots WHERE portfolio_id = $1 AND date = $2`, portfolioID, day); err != nil {
		return translate(err, "clear holding snapshots")
	}

	query := `
		INSERT INTO holding_snapshots (id, portfolio_id, security_id, date, quantity, average_price, price, price_source, fx_rate, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, h := range rows {
		id := h.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := r.db.conn(ctx).ExecContext(ctx, query,
			id,
			portfolioID,
			h.SecurityID,
			day,
			h.Quantity,
			h.AveragePrice.StringFixed(2),
			h.Price.StringFixed(4),
			string(h.PriceSource),
			h.FXRate.String(),
			h.Value.StringFixed(2),
		)
		if err != nil {
			return translate(err, "insert holding snapshot")
		}
	}
	return nil
}
