package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// PostgreSQL error codes
const (
	uniqueViolation = "23505"
	raiseException  = "P0001"
)

const dateLayout = "2006-01-02"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool outside an atomic unit
func (db *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// inTx reports whether ctx carries a transaction. An aborted transaction
// rejects every statement after the failing one.
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// Store implements domain.Store on PostgreSQL
type Store struct {
	db *DB
}

// NewStore creates a new store
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ domain.Store = (*Store)(nil)

// Atomic runs fn inside one database transaction.
// A ctx that already carries a transaction is reused so nested calls join it.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if inTx(ctx) {
		return fn(ctx, s)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, dbTx), s); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return translate(err, "commit transaction")
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Portfolios() domain.PortfolioRepository { return &portfolioRepository{db: s.db} }
func (s *Store) Securities() domain.SecurityRepository { return &securityRepository{db: s.db} }
func (s *Store) Holdings() domain.HoldingRepository { return &holdingRepository{db: s.db} }
func (s *Store) Transactions() domain.TransactionRepository { return &transactionRepository{db: s.db} }
func (s *Store) RealizedPNL() domain.RealizedPNLRepository { return &realizedPNLRepository{db: s.db} }
func (s *Store) Performance() domain.PerformanceRepository { return &performanceRepository{db: s.db} }
func (s *Store) Snapshots() domain.SnapshotRepository { return &snapshotRepository{db: s.db} }
func (s *Store) FXRates() domain.FXRateRepository { return &fxRateRepository{db: s.db} }
func (s *Store) Prices() domain.HistoricalPriceRepository { return &priceRepository{db: s.db} }

// translate maps driver errors onto domain errors, wrapping everything else
func translate(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, domain.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %s: %w", action, pqErr.Constraint, domain.ErrConflict)
		case raiseException:
			return fmt.Errorf("%s: %s: %w", action, pqErr.Message, domain.ErrImmutableRecord)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return d, nil
}

func parseNullDecimal(s sql.NullString, field string) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(s.String, field)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func dateArg(t time.Time) string {
	return domain.DateOf(t).Format(dateLayout)
}
