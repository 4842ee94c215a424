package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

const transactionColumns = `id, portfolio_id, idempotency_key, transaction_type, amount, security_id, quantity,
	executed_price, security_currency, fx_rate, fx_rate_type, timestamp`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var idStr string
	var amountStr, priceStr, currency, fxStr, fxType sql.NullString
	var securityID uuid.NullUUID
	var quantity sql.NullInt64

	if err := row.Scan(
		&idStr,
		&t.PortfolioID,
		&t.IdempotencyKey,
		&t.Type,
		&amountStr,
		&securityID,
		&quantity,
		&priceStr,
		&currency,
		&fxStr,
		&fxType,
		&t.Timestamp,
	); err != nil {
		return nil, err
	}

	id, err := ulid.ParseStrict(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction id: %w", err)
	}
	t.ID = id

	if amountStr.Valid {
		if t.Amount, err = parseDecimal(amountStr.String, "amount"); err != nil {
			return nil, err
		}
	}
	if securityID.Valid {
		sid := securityID.UUID
		t.SecurityID = &sid
	}
	t.Quantity = quantity.Int64
	if t.ExecutedPrice, err = parseNullDecimal(priceStr, "executed_price"); err != nil {
		return nil, err
	}
	t.SecurityCurrency = currency.String
	if t.FXRate, err = parseNullDecimal(fxStr, "fx_rate"); err != nil {
		return nil, err
	}
	t.FXRateType = domain.FXRateType(fxType.String)
	return &t, nil
}

// Create appends a transaction to the log
func (r *transactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var amount, securityID, quantity, currency, fxType any
	if t.Type.IsTrade() {
		securityID = t.SecurityID
		quantity = t.Quantity
		currency = t.SecurityCurrency
	} else {
		amount = t.Amount.StringFixed(2)
	}
	if t.FXRate.Valid {
		fxType = string(t.FXRateType)
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		t.ID.String(),
		t.PortfolioID,
		t.IdempotencyKey,
		string(t.Type),
		amount,
		securityID,
		quantity,
		nullDecimalArg(t.ExecutedPrice),
		currency,
		nullDecimalArg(t.FXRate),
		fxType,
		t.Timestamp,
	)
	if err != nil {
		return translate(err, "insert transaction")
	}
	return nil
}

// GetByIdempotencyKey retrieves the transaction recorded under a client key
func (r *transactionRepository) GetByIdempotencyKey(ctx context.Context, portfolioID uuid.UUID, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE portfolio_id = $1 AND idempotency_key = $2`

	t, err := scanTransaction(r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID, key))
	if err != nil {
		return nil, translate(err, "get transaction by idempotency key")
	}
	return t, nil
}

// ListUpTo returns the replay log up to and including asOf
func (r *transactionRepository) ListUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1 AND timestamp <= $2
		ORDER BY timestamp, id
	`
	return r.list(ctx, query, portfolioID, asOf)
}

// LatestIDUpTo returns the ID of the last transaction replayed for asOf
func (r *transactionRepository) LatestIDUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (ulid.ULID, error) {
	query := `
		SELECT id FROM transactions
		WHERE portfolio_id = $1 AND timestamp <= $2
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var idStr string
	err := r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID, asOf).Scan(&idStr)
	if errors.Is(err, sql.ErrNoRows) {
		return ulid.ULID{}, nil
	}
	if err != nil {
		return ulid.ULID{}, translate(err, "get latest transaction id")
	}
	id, err := ulid.ParseStrict(idStr)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("failed to parse transaction id: %w", err)
	}
	return id, nil
}

// ListCashFlows returns deposits and withdrawals strictly between from and to
func (r *transactionRepository) ListCashFlows(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1
		  AND transaction_type IN ('DEPOSIT', 'WITHDRAWAL')
		  AND timestamp > $2 AND timestamp < $3
		ORDER BY timestamp, id
	`
	return r.list(ctx, query, portfolioID, from, to)
}

// LatestBuy returns the portfolio's last purchase of a security at or before asOf
func (r *transactionRepository) LatestBuy(ctx context.Context, portfolioID, securityID uuid.UUID, asOf time.Time) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1 AND security_id = $2 AND transaction_type = 'BUY' AND timestamp <= $3
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	t, err := scanTransaction(r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID, securityID, asOf))
	if err != nil {
		return nil, translate(err, "get latest buy")
	}
	return t, nil
}

// First returns the portfolio's earliest transaction
func (r *transactionRepository) First(ctx context.Context, portfolioID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE portfolio_id = $1 ORDER BY timestamp, id LIMIT 1`

	t, err := scanTransaction(r.db.conn(ctx).QueryRowContext(ctx, query, portfolioID))
	if err != nil {
		return nil, translate(err, "get first transaction")
	}
	return t, nil
}

func (r *transactionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}
