package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// realizedPNLRepository implements domain.RealizedPNLRepository
type realizedPNLRepository struct {
	db *DB
}

const realizedColumns = `id, portfolio_id, transaction_id, security_id, quantity, purchase_price, sell_price, pnl, acquisition_date, realized_at`

func scanRealized(row rowScanner) (*domain.RealizedPNL, error) {
	var p domain.RealizedPNL
	var txID, purchaseStr, sellStr, pnlStr string

	if err := row.Scan(
		&p.ID,
		&p.PortfolioID,
		&txID,
		&p.SecurityID,
		&p.Quantity,
		&purchaseStr,
		&sellStr,
		&pnlStr,
		&p.AcquisitionDate,
		&p.RealizedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if p.TransactionID, err = ulid.ParseStrict(txID); err != nil {
		return nil, fmt.Errorf("failed to parse transaction_id: %w", err)
	}
	if p.PurchasePrice, err = parseDecimal(purchaseStr, "purchase_price"); err != nil {
		return nil, err
	}
	if p.SellPrice, err = parseDecimal(sellStr, "sell_price"); err != nil {
		return nil, err
	}
	if p.PNL, err = parseDecimal(pnlStr, "pnl"); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create records the P&L of a sale. A second record for the same sale is
// rejected, as ErrImmutableRecord when it differs from the stored one.
func (r *realizedPNLRepository) Create(ctx context.Context, p *domain.RealizedPNL) error {
	query := `
		INSERT INTO realized_pnl (` + realizedColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		p.ID,
		p.PortfolioID,
		p.TransactionID.String(),
		p.SecurityID,
		p.Quantity,
		p.PurchasePrice.StringFixed(2),
		p.SellPrice.StringFixed(2),
		p.PNL.StringFixed(2),
		p.AcquisitionDate,
		p.RealizedAt,
	)
	if err == nil {
		return nil
	}

	err = translate(err, "insert realized pnl")
	if errors.Is(err, domain.ErrConflict) && !inTx(ctx) {
		if existing, getErr := r.GetByTransactionID(ctx, p.TransactionID); getErr == nil {
			if immErr := p.CheckImmutable(existing); immErr != nil {
				return immErr
			}
		}
	}
	return err
}

// GetByTransactionID retrieves the P&L booked by a sale
func (r *realizedPNLRepository) GetByTransactionID(ctx context.Context, transactionID ulid.ULID) (*domain.RealizedPNL, error) {
	query := `SELECT ` + realizedColumns + ` FROM realized_pnl WHERE transaction_id = $1`

	p, err := scanRealized(r.db.conn(ctx).QueryRowContext(ctx, query, transactionID.String()))
	if err != nil {
		return nil, translate(err, "get realized pnl")
	}
	return p, nil
}

// ListByPortfolio returns a portfolio's realized P&L, newest first
func (r *realizedPNLRepository) ListByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]*domain.RealizedPNL, error) {
	query := `SELECT ` + realizedColumns + ` FROM realized_pnl WHERE portfolio_id = $1 ORDER BY realized_at DESC, transaction_id DESC`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, translate(err, "list realized pnl")
	}
	defer rows.Close()

	var out []*domain.RealizedPNL
	for rows.Next() {
		p, err := scanRealized(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan realized pnl: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating realized pnl: %w", err)
	}
	return out, nil
}

// performanceRepository implements domain.PerformanceRepository
type performanceRepository struct {
	db *DB
}

// GetOrCreate returns the performance row, inserting a zeroed one if missing
func (r *performanceRepository) GetOrCreate(ctx context.Context, portfolioID uuid.UUID) (*domain.PortfolioPerformance, error) {
	insert := `
		INSERT INTO portfolio_performance (portfolio_id)
		VALUES ($1)
		ON CONFLICT (portfolio_id) DO NOTHING
	`
	if _, err := r.db.conn(ctx).ExecContext(ctx, insert, portfolioID); err != nil {
		return nil, translate(err, "create portfolio performance")
	}

	query := `
		SELECT portfolio_id, total_deposits, total_withdrawals, time_weighted_return, last_updated
		FROM portfolio_performance
		WHERE portfolio_id = $1
	`

	var p domain.PortfolioPerformance
	var depositsStr, withdrawalsStr, twrStr string
	err := r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID).Scan(
		&p.PortfolioID,
		&depositsStr,
		&withdrawalsStr,
		&twrStr,
		&p.LastUpdated,
	)
	if err != nil {
		return nil, translate(err, "get portfolio performance")
	}

	if p.TotalDeposits, err = parseDecimal(depositsStr, "total_deposits"); err != nil {
		return nil, err
	}
	if p.TotalWithdrawals, err = parseDecimal(withdrawalsStr, "total_withdrawals"); err != nil {
		return nil, err
	}
	if p.TimeWeightedReturn, err = parseDecimal(twrStr, "time_weighted_return"); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update persists the running totals and the last computed return
func (r *performanceRepository) Update(ctx context.Context, p *domain.PortfolioPerformance) error {
	query := `
		UPDATE portfolio_performance
		SET total_deposits = $2, total_withdrawals = $3, time_weighted_return = $4, last_updated = $5
		WHERE portfolio_id = $1
	`

	lastUpdated := p.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	res, err := r.db.conn(ctx).ExecContext(ctx, query,
		p.PortfolioID,
		p.TotalDeposits.StringFixed(2),
		p.TotalWithdrawals.StringFixed(2),
		p.TimeWeightedReturn.StringFixed(4),
		lastUpdated,
	)
	if err != nil {
		return translate(err, "update portfolio performance")
	}
	return requireAffected(res, "update portfolio performance")
}
