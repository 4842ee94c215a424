package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/valuation"
)

// errStale means the log moved between valuation and write
var errStale = errors.New("transaction log changed during snapshot")

// Options tunes retries and batch fan-out
type Options struct {
	MaxRetries  int
	Backoff     time.Duration
	Concurrency int
}

// BatchResult summarizes a run over every active portfolio
type BatchResult struct {
	Created int
	Failed  map[uuid.UUID]error
}

// Service persists one valuation per portfolio per calendar date
type Service struct {
	Store  domain.Store
	Valuer *valuation.Valuer
	Clock  func() time.Time

	opts Options
	log  zerolog.Logger
}

// NewService creates a new Service instance
func NewService(store domain.Store, valuer *valuation.Valuer, opts Options, log zerolog.Logger) *Service {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{
		Store:  store,
		Valuer: valuer,
		Clock:  time.Now,
		opts:   opts,
		log:    log.With().Str("service", "snapshot").Logger(),
	}
}

// CreateDailySnapshot values the portfolio at the end of date and upserts the
// (portfolio, date) row together with its per-holding rows.
// Logic:
//  1. Value the reconstructed portfolio at the last instant of date
//  2. Lock the portfolio, check no transaction landed since step 1, upsert
//  3. Uniqueness races and stale valuations are retried with a growing backoff,
//     at most MaxRetries attempts
func (s *Service) CreateDailySnapshot(ctx context.Context, portfolioID uuid.UUID, date time.Time) (*domain.DailySnapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		snap, err := s.create(ctx, portfolioID, date)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrConflict) && !errors.Is(err, errStale) {
			return nil, err
		}

		lastErr = err
		s.log.Warn().Err(err).
			Str("portfolio_id", portfolioID.String()).
			Time("date", domain.DateOf(date)).
			Int("attempt", attempt).
			Msg("Snapshot write raced, retrying")

		if attempt < s.opts.MaxRetries {
			if err := sleep(ctx, s.opts.Backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("snapshot of %s failed after %d attempts: %w", portfolioID, s.opts.MaxRetries, lastErr)
}

func (s *Service) create(ctx context.Context, portfolioID uuid.UUID, date time.Time) (*domain.DailySnapshot, error) {
	portfolio, err := s.Store.Portfolios().GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if !portfolio.Active() {
		return nil, domain.ErrPortfolioDeleted
	}

	day := domain.DateOf(date)
	asOf := domain.EndOfDay(day)
	val, err := s.Valuer.ValueAt(ctx, portfolio, asOf)
	if err != nil {
		return nil, err
	}

	snap := domain.NewDailySnapshot(portfolioID, day, val.Cash, val.InvestmentValue, val.TotalDeposits)
	snap.CreatedAt = s.Clock().UTC()
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	rows := make([]*domain.HoldingSnapshot, 0, len(val.Lines))
	for _, l := range val.Lines {
		rows = append(rows, &domain.HoldingSnapshot{
			ID:           uuid.New(),
			PortfolioID:  portfolioID,
			SecurityID:   l.SecurityID,
			Date:         day,
			Quantity:     l.Quantity,
			AveragePrice: l.AveragePrice,
			Price:        l.Price,
			PriceSource:  l.PriceSource,
			FXRate:       l.FXRate,
			Value:        l.Value,
		})
	}

	err = s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		locked, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}
		if !locked.Active() {
			return domain.ErrPortfolioDeleted
		}

		latest, err := tx.Transactions().LatestIDUpTo(ctx, portfolioID, asOf)
		if err != nil {
			return err
		}
		if latest != val.LatestID {
			return errStale
		}

		if err := tx.Snapshots().Upsert(ctx, snap); err != nil {
			return err
		}
		return tx.Snapshots().ReplaceHoldingSnapshots(ctx, portfolioID, day, rows)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Time("date", day).
		Str("total_value", snap.TotalValue.StringFixed(2)).
		Int("holdings", len(rows)).
		Msg("Daily snapshot stored")
	return snap, nil
}

// CreateForAllActive snapshots every active portfolio for date with bounded concurrency.
// A failing portfolio does not stop the others.
func (s *Service) CreateForAllActive(ctx context.Context, date time.Time) (*BatchResult, error) {
	portfolios, err := s.Store.Portfolios().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active portfolios: %w", err)
	}

	result := &BatchResult{Failed: make(map[uuid.UUID]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, p := range portfolios {
		g.Go(func() error {
			_, err := s.CreateDailySnapshot(gctx, p.ID, date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[p.ID] = err
				s.log.Error().Err(err).Str("portfolio_id", p.ID.String()).Msg("Daily snapshot failed")
				return nil
			}
			result.Created++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	s.log.Info().
		Time("date", domain.DateOf(date)).
		Int("created", result.Created).
		Int("failed", len(result.Failed)).
		Msg("Daily snapshot batch finished")
	return result, nil
}

// Regenerate rebuilds the snapshots of every calendar date from..to inclusive
func (s *Service) Regenerate(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.DailySnapshot, error) {
	start, end := domain.DateOf(from), domain.DateOf(to)
	if start.After(end) {
		return nil, fmt.Errorf("invalid range: %s is after %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	var out []*domain.DailySnapshot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		snap, err := s.CreateDailySnapshot(ctx, portfolioID, day)
		if err != nil {
			return out, fmt.Errorf("failed to regenerate %s: %w", day.Format(time.DateOnly), err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
