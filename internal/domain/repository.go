package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// PortfolioRepository defines the interface for portfolio persistence operations
type PortfolioRepository interface {
	// GetByID retrieves a portfolio by its ID, deleted or not
	GetByID(ctx context.Context, id uuid.UUID) (*Portfolio, error)

	// GetForUpdate retrieves a portfolio and holds its row lock until the enclosing atomic unit ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Portfolio, error)

	// Create creates a new portfolio
	Create(ctx context.Context, p *Portfolio) error

	// Update persists name, default and deletion flags
	Update(ctx context.Context, p *Portfolio) error

	// UpdateCashBalance persists a new cash balance
	UpdateCashBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error

	// ListActive retrieves every non-deleted portfolio
	ListActive(ctx context.Context) ([]*Portfolio, error)

	// ListByOwner retrieves an owner's non-deleted portfolios, newest first
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Portfolio, error)
}

// SecurityRepository defines the interface for reading securities
type SecurityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Security, error)
	Create(ctx context.Context, s *Security) error
}

// HoldingRepository defines the interface for holding persistence operations
type HoldingRepository interface {
	// GetForUpdate retrieves the holding of a security, active or not, and locks it.
	// Returns ErrNotFound if the portfolio never held the security.
	GetForUpdate(ctx context.Context, portfolioID, securityID uuid.UUID) (*Holding, error)

	Create(ctx context.Context, h *Holding) error
	Update(ctx context.Context, h *Holding) error

	// ListActive retrieves the active holdings of a portfolio
	ListActive(ctx context.Context, portfolioID uuid.UUID) ([]*Holding, error)

	// DeactivateAll marks every holding of a portfolio inactive without changing quantities
	DeactivateAll(ctx context.Context, portfolioID uuid.UUID) error
}

// TransactionRepository defines the interface for the append-only transaction log
type TransactionRepository interface {
	// Create appends a transaction. Returns ErrConflict if the idempotency key is taken.
	Create(ctx context.Context, t *Transaction) error

	// GetByIdempotencyKey returns ErrNotFound if no transaction carries the key
	GetByIdempotencyKey(ctx context.Context, portfolioID uuid.UUID, key string) (*Transaction, error)

	// ListUpTo returns transactions with timestamp <= asOf ordered by timestamp then ID
	ListUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]*Transaction, error)

	// LatestIDUpTo returns the ID of the last transaction at or before asOf, zero when none
	LatestIDUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (ulid.ULID, error)

	// ListCashFlows returns deposits and withdrawals with from < timestamp < to, in order
	ListCashFlows(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*Transaction, error)

	// LatestBuy returns the portfolio's last BUY of a security at or before asOf
	LatestBuy(ctx context.Context, portfolioID, securityID uuid.UUID, asOf time.Time) (*Transaction, error)

	// First returns the portfolio's earliest transaction
	First(ctx context.Context, portfolioID uuid.UUID) (*Transaction, error)
}

// RealizedPNLRepository defines the interface for realized P&L records
type RealizedPNLRepository interface {
	Create(ctx context.Context, r *RealizedPNL) error
	GetByTransactionID(ctx context.Context, transactionID ulid.ULID) (*RealizedPNL, error)

	// ListByPortfolio returns records newest first
	ListByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]*RealizedPNL, error)
}

// PerformanceRepository defines the interface for portfolio performance rows
type PerformanceRepository interface {
	// GetOrCreate returns the performance row, creating a zeroed one if missing
	GetOrCreate(ctx context.Context, portfolioID uuid.UUID) (*PortfolioPerformance, error)
	Update(ctx context.Context, p *PortfolioPerformance) error
}

// SnapshotRepository defines the interface for daily valuation records
type SnapshotRepository interface {
	// Upsert inserts or replaces the snapshot for (portfolio, date)
	Upsert(ctx context.Context, s *DailySnapshot) error
	Get(ctx context.Context, portfolioID uuid.UUID, date time.Time) (*DailySnapshot, error)

	// ListRange returns snapshots with from <= date <= to, oldest first
	ListRange(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*DailySnapshot, error)

	// ReplaceHoldingSnapshots replaces all holding snapshots of (portfolio, date)
	ReplaceHoldingSnapshots(ctx context.Context, portfolioID uuid.UUID, date time.Time, rows []*HoldingSnapshot) error
}

// FXRateRepository defines the interface for published FX quotes
type FXRateRepository interface {
	// Find returns the most recent quote matching q, or ErrNotFound
	Find(ctx context.Context, q FXRateQuery) (*FXRate, error)

	// Add upserts a quote; used by the ingestion collaborator
	Add(ctx context.Context, r *FXRate) error
}

// HistoricalPriceRepository defines the interface for daily closing prices
type HistoricalPriceRepository interface {
	// Add upserts the price of (security, date)
	Add(ctx context.Context, p *HistoricalPrice) error

	GetOn(ctx context.Context, securityID uuid.UUID, date time.Time) (*HistoricalPrice, error)
	LatestBefore(ctx context.Context, securityID uuid.UUID, date time.Time) (*HistoricalPrice, error)
	EarliestAfter(ctx context.Context, securityID uuid.UUID, date time.Time) (*HistoricalPrice, error)
	Latest(ctx context.Context, securityID uuid.UUID) (*HistoricalPrice, error)
}

// Tx gives access to every repository. Inside Store.Atomic all of them share one
// database transaction and row locks taken through GetForUpdate are held until it ends.
type Tx interface {
	Portfolios() PortfolioRepository
	Securities() SecurityRepository
	Holdings() HoldingRepository
	Transactions() TransactionRepository
	RealizedPNL() RealizedPNLRepository
	Performance() PerformanceRepository
	Snapshots() SnapshotRepository
	FXRates() FXRateRepository
	Prices() HistoricalPriceRepository
}

// Store is the unit-of-work boundary.
// Atomic runs fn in one transaction, committing on nil and rolling back on error.
// The ctx passed to fn carries the transaction, so nested Atomic calls join it.
type Store interface {
	Tx
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
