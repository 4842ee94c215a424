package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// holdingRepository implements domain.HoldingRepository
type holdingRepository struct {
	db *DB
}

const holdingColumns = `id, portfolio_id, security_id, quantity, average_purchase_price, is_active, acquired_at, created_at, updated_at`

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var h domain.Holding
	var avgStr string

	if err := row.Scan(
		&h.ID,
		&h.PortfolioID,
		&h.SecurityID,
		&h.Quantity,
		&avgStr,
		&h.IsActive,
		&h.AcquiredAt,
		&h.CreatedAt,
		&h.UpdatedAt,
	); err != nil {
		return nil, err
	}

	avg, err := parseDecimal(avgStr, "average_purchase_price")
	if err != nil {
		return nil, err
	}
	h.AveragePurchasePrice = avg
	return &h, nil
}

// GetForUpdate locks the (portfolio, security) holding row, active or not
func (r *holdingRepository) GetForUpdate(ctx context.Context, portfolioID, securityID uuid.UUID) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE portfolio_id = $1 AND security_id = $2 FOR UPDATE`

	h, err := scanHolding(r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID, securityID))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("lock holding of %s in %s", securityID, portfolioID))
	}
	return h, nil
}

// Create creates a new holding
func (r *holdingRepository) Create(ctx context.Context, h *domain.Holding) error {
	query := `
		INSERT INTO holdings (` + holdingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		h.ID,
		h.PortfolioID,
		h.SecurityID,
		h.Quantity,
		h.AveragePurchasePrice.StringFixed(2),
		h.IsActive,
		h.AcquiredAt,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert holding")
	}
	return nil
}

// Update persists quantity, average price and activity
func (r *holdingRepository) Update(ctx context.Context, h *domain.Holding) error {
	query := `
		UPDATE holdings
		SET quantity = $3, average_purchase_price = $4, is_active = $5, acquired_at = $6, updated_at = $7
		WHERE portfolio_id = $1 AND security_id = $2
	`

	res, err := r.db.conn(ctx).ExecContext(ctx, query,
		h.PortfolioID,
		h.SecurityID,
		h.Quantity,
		h.AveragePurchasePrice.StringFixed(2),
		h.IsActive,
		h.AcquiredAt,
		h.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update holding")
	}
	return requireAffected(res, "update holding")
}

// ListActive retrieves the active holdings of a portfolio
func (r *holdingRepository) ListActive(ctx context.Context, portfolioID uuid.UUID) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE portfolio_id = $1 AND is_active ORDER BY security_id`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, translate(err, "list holdings")
	}
	defer rows.Close()

	var holdings []*domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

// DeactivateAll marks every holding of a portfolio inactive, keeping the rows
func (r *holdingRepository) DeactivateAll(ctx context.Context, portfolioID uuid.UUID) error {
	query := `UPDATE holdings SET is_active = FALSE, updated_at = now() WHERE portfolio_id = $1 AND is_active`

	if _, err := r.db.conn(ctx).ExecContext(ctx, query, portfolioID); err != nil {
		return translate(err, "deactivate holdings")
	}
	return nil
}
