package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// portfolioRepository implements domain.PortfolioRepository
type portfolioRepository struct {
	db *DB
}

const portfolioColumns = `id, owner_id, name, base_currency, cash_balance, is_default, is_deleted, deleted_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var balanceStr string
	var deletedAt sql.NullTime

	if err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.BaseCurrency,
		&balanceStr,
		&p.IsDefault,
		&p.IsDeleted,
		&deletedAt,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	balance, err := parseDecimal(balanceStr, "cash_balance")
	if err != nil {
		return nil, err
	}
	p.CashBalance = balance

	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

// GetByID retrieves a portfolio by its ID
func (r *portfolioRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`

	p, err := scanPortfolio(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("get portfolio %s", id))
	}
	return p, nil
}

// GetForUpdate locks the portfolio row until the enclosing transaction ends
func (r *portfolioRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1 FOR UPDATE`

	p, err := scanPortfolio(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("lock portfolio %s", id))
	}
	return p, nil
}

// Create creates a new portfolio
func (r *portfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, owner_id, name, base_currency, cash_balance, is_default, is_deleted, deleted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		p.ID,
		p.OwnerID,
		p.Name,
		p.BaseCurrency,
		p.CashBalance.StringFixed(2),
		p.IsDefault,
		p.IsDeleted,
		p.DeletedAt,
		p.CreatedAt,
	)
	if err != nil {
		return translate(err, "insert portfolio")
	}
	return nil
}

// Update persists name, default and deletion flags. Cash is left untouched.
func (r *portfolioRepository) Update(ctx context.Context, p *domain.Portfolio) error {
	query := `
		UPDATE portfolios
		SET name = $2, is_default = $3, is_deleted = $4, deleted_at = $5
		WHERE id = $1
	`

	res, err := r.db.conn(ctx).ExecContext(ctx, query, p.ID, p.Name, p.IsDefault, p.IsDeleted, p.DeletedAt)
	if err != nil {
		return translate(err, "update portfolio")
	}
	return requireAffected(res, fmt.Sprintf("update portfolio %s", p.ID))
}

// UpdateCashBalance persists a new cash balance
func (r *portfolioRepository) UpdateCashBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE portfolios SET cash_balance = $2 WHERE id = $1`

	res, err := r.db.conn(ctx).ExecContext(ctx, query, id, balance.StringFixed(2))
	if err != nil {
		return translate(err, "update cash balance")
	}
	return requireAffected(res, fmt.Sprintf("update cash balance of %s", id))
}

// ListActive retrieves every non-deleted portfolio
func (r *portfolioRepository) ListActive(ctx context.Context) ([]*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE NOT is_deleted ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query)
}

// ListByOwner retrieves an owner's non-deleted portfolios, newest first
func (r *portfolioRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE owner_id = $1 AND NOT is_deleted ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, ownerID)
}

func (r *portfolioRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Portfolio, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list portfolios")
	}
	defer rows.Close()

	var portfolios []*domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

func requireAffected(res sql.Result, action string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", action, domain.ErrNotFound)
	}
	return nil
}
