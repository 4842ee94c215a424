// Package memory is an in-process implementation of domain.Store used by
// tests and by the server when REPO_KIND=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

type holdingKey struct {
	portfolioID uuid.UUID
	securityID  uuid.UUID
}

type datedKey struct {
	id   uuid.UUID
	date time.Time
}

type idempotencyKey struct {
	portfolioID uuid.UUID
	key         string
}

// state holds every table. Rows are stored by value so callers never alias them.
type state struct {
	portfolios       map[uuid.UUID]domain.Portfolio
	securities       map[uuid.UUID]domain.Security
	holdings         map[holdingKey]domain.Holding
	transactions     []domain.Transaction
	idempotency      map[idempotencyKey]int
	realized         map[ulid.ULID]domain.RealizedPNL
	performance      map[uuid.UUID]domain.PortfolioPerformance
	snapshots        map[datedKey]domain.DailySnapshot
	holdingSnapshots map[datedKey][]domain.HoldingSnapshot
	fxRates          []domain.FXRate
	prices           map[datedKey]domain.HistoricalPrice
}

func newState() *state {
	return &state{
		portfolios:       make(map[uuid.UUID]domain.Portfolio),
		securities:       make(map[uuid.UUID]domain.Security),
		holdings:         make(map[holdingKey]domain.Holding),
		idempotency:      make(map[idempotencyKey]int),
		realized:         make(map[ulid.ULID]domain.RealizedPNL),
		performance:      make(map[uuid.UUID]domain.PortfolioPerformance),
		snapshots:        make(map[datedKey]domain.DailySnapshot),
		holdingSnapshots: make(map[datedKey][]domain.HoldingSnapshot),
		prices:           make(map[datedKey]domain.HistoricalPrice),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.portfolios {
		c.portfolios[k] = v
	}
	for k, v := range s.securities {
		c.securities[k] = v
	}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	c.transactions = append([]domain.Transaction(nil), s.transactions...)
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.realized {
		c.realized[k] = v
	}
	for k, v := range s.performance {
		c.performance[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.holdingSnapshots {
		c.holdingSnapshots[k] = append([]domain.HoldingSnapshot(nil), v...)
	}
	c.fxRates = append([]domain.FXRate(nil), s.fxRates...)
	for k, v := range s.prices {
		c.prices[k] = v
	}
	return c
}

type atomicKey struct{}

// Store implements domain.Store. An atomic unit holds the store's write lock
// for its whole duration, which serializes it against every other caller the
// way row locks serialize conflicting database transactions.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{st: newState()}
}

var _ domain.Store = (*Store)(nil)

func (s *Store) inAtomic(ctx context.Context) bool {
	owner, _ := ctx.Value(atomicKey{}).(*Store)
	return owner == s
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if !s.inAtomic(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if !s.inAtomic(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

// Atomic runs fn with exclusive access, restoring the previous state if fn fails.
// Goroutines started by fn must not use the store with fn's context.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s.inAtomic(ctx) {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.st.clone()
	if err := fn(context.WithValue(ctx, atomicKey{}, s), s); err != nil {
		s.st = backup
		return err
	}
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Portfolios() domain.PortfolioRepository { return portfolioRepo{s} }
func (s *Store) Securities() domain.SecurityRepository { return securityRepo{s} }
func (s *Store) Holdings() domain.HoldingRepository { return holdingRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository { return transactionRepo{s} }
func (s *Store) RealizedPNL() domain.RealizedPNLRepository { return realizedRepo{s} }
func (s *Store) Performance() domain.PerformanceRepository { return performanceRepo{s} }
func (s *Store) Snapshots() domain.SnapshotRepository { return snapshotRepo{s} }
func (s *Store) FXRates() domain.FXRateRepository { return fxRateRepo{s} }
func (s *Store) Prices() domain.HistoricalPriceRepository { return priceRepo{s} }
