// Package reconstruction replays a portfolio's transaction log to rebuild its
// holdings and cash at any past instant.
package reconstruction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// DefaultCacheSize is used when NewEngine is given a non-positive size
const DefaultCacheSize = 1024

// State is a portfolio as it stood at AsOf
type State struct {
	PortfolioID      uuid.UUID
	AsOf             time.Time
	Holdings         map[uuid.UUID]domain.Position // open positions only, base-currency average
	Cash             decimal.Decimal
	TotalDeposits    decimal.Decimal
	TotalWithdrawals decimal.Decimal
	LatestID         ulid.ULID // last transaction replayed, zero when none
}

// Clone returns a deep copy safe to mutate
func (s *State) Clone() *State {
	c := *s
	c.Holdings = make(map[uuid.UUID]domain.Position, len(s.Holdings))
	for k, v := range s.Holdings {
		c.Holdings[k] = v
	}
	return &c
}

// cacheKey pins a result to the log it was computed from. Any transaction
// added at or before asOf changes latestID, so stale entries are never hit.
type cacheKey struct {
	portfolioID uuid.UUID
	asOf        int64
	latestID    ulid.ULID
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%d|%s", k.portfolioID, k.asOf, k.latestID)
}

// Engine replays transactions. It is read-only and safe for concurrent use.
type Engine struct {
	TransactionRepo domain.TransactionRepository

	cache *lru.Cache[cacheKey, *State]
	group singleflight.Group
	log   zerolog.Logger
}

// NewEngine creates a new Engine instance
func NewEngine(transactionRepo domain.TransactionRepository, cacheSize int, log zerolog.Logger) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, *State](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconstruction cache: %w", err)
	}
	return &Engine{
		TransactionRepo: transactionRepo,
		cache:           cache,
		log:             log.With().Str("service", "reconstruction").Logger(),
	}, nil
}

// StateAt replays every transaction with timestamp <= at.
// Concurrent misses for the same key share one replay.
func (e *Engine) StateAt(ctx context.Context, portfolioID uuid.UUID, at time.Time) (*State, error) {
	latestID, err := e.TransactionRepo.LatestIDUpTo(ctx, portfolioID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest transaction: %w", err)
	}

	key := cacheKey{portfolioID: portfolioID, asOf: at.UnixNano(), latestID: latestID}
	if cached, ok := e.cache.Get(key); ok {
		return cached.Clone(), nil
	}

	v, err, shared := e.group.Do(key.String(), func() (any, error) {
		state, err := e.replay(ctx, portfolioID, at)
		if err != nil {
			return nil, err
		}
		// a transaction may have landed between the two reads; cache under what was replayed
		e.cache.Add(cacheKey{portfolioID: portfolioID, asOf: key.asOf, latestID: state.LatestID}, state)
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.log.Debug().Str("portfolio_id", portfolioID.String()).Time("as_of", at).Msg("Shared reconstruction")
	}
	return v.(*State).Clone(), nil
}

// HoldingsAsOf returns the open positions at the end of date
func (e *Engine) HoldingsAsOf(ctx context.Context, portfolioID uuid.UUID, date time.Time) (map[uuid.UUID]domain.Position, error) {
	state, err := e.StateAt(ctx, portfolioID, domain.EndOfDay(date))
	if err != nil {
		return nil, err
	}
	return state.Holdings, nil
}

// CashAsOf returns the cash balance at the end of date
func (e *Engine) CashAsOf(ctx context.Context, portfolioID uuid.UUID, date time.Time) (decimal.Decimal, error) {
	state, err := e.StateAt(ctx, portfolioID, domain.EndOfDay(date))
	if err != nil {
		return decimal.Zero, err
	}
	return state.Cash, nil
}

// replay folds the log in timestamp order.
// Logic:
//   - BUY/SELL move positions with the same averaging rule as the live ledger,
//     pricing shares at the recorded execution price and FX rate
//   - every transaction moves cash by its recorded base-currency effect
func (e *Engine) replay(ctx context.Context, portfolioID uuid.UUID, at time.Time) (*State, error) {
	log, err := e.TransactionRepo.ListUpTo(ctx, portfolioID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	state := &State{
		PortfolioID: portfolioID,
		AsOf:        at,
		Holdings:    make(map[uuid.UUID]domain.Position),
	}

	for _, t := range log {
		switch t.Type {
		case domain.TransactionTypeBuy, domain.TransactionTypeSell:
			sid := *t.SecurityID
			pos := state.Holdings[sid]
			if t.Type == domain.TransactionTypeBuy {
				pos, err = pos.Buy(t.Quantity, t.BasePrice())
			} else {
				pos, err = pos.Sell(t.Quantity)
			}
			if err != nil {
				return nil, fmt.Errorf("replay of transaction %s failed: %w", t.ID, err)
			}
			if pos.Quantity == 0 {
				delete(state.Holdings, sid)
			} else {
				state.Holdings[sid] = pos
			}
		case domain.TransactionTypeDeposit:
			state.TotalDeposits = state.TotalDeposits.Add(t.Amount)
		case domain.TransactionTypeWithdrawal:
			state.TotalWithdrawals = state.TotalWithdrawals.Add(t.Amount)
		}

		state.Cash = state.Cash.Add(t.CashEffect())
		state.LatestID = t.ID
	}

	e.log.Debug().
		Str("portfolio_id", portfolioID.String()).
		Time("as_of", at).
		Int("transactions", len(log)).
		Msg("Reconstructed portfolio state")
	return state, nil
}
