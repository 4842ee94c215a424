package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/snapshot"
)

// SnapshotCreator stores daily snapshots of every active portfolio
type SnapshotCreator interface {
	CreateForAllActive(ctx context.Context, date time.Time) (*snapshot.BatchResult, error)
}

// PerformanceRecomputer refreshes the stored return of one portfolio
type PerformanceRecomputer interface {
	Recompute(ctx context.Context, portfolioID uuid.UUID, end time.Time) (*domain.PortfolioPerformance, error)
}

// PortfolioLister lists the portfolios jobs iterate over
type PortfolioLister interface {
	ListActive(ctx context.Context) ([]*domain.Portfolio, error)
}

// SnapshotJob snapshots every active portfolio for the current market date
type SnapshotJob struct {
	Snapshots SnapshotCreator
	Location  *time.Location
	Timeout   time.Duration
	Clock     func() time.Time
	log       zerolog.Logger
}

// NewSnapshotJob creates a new daily snapshot job
func NewSnapshotJob(snapshots SnapshotCreator, loc *time.Location, timeout time.Duration, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		Snapshots: snapshots,
		Location:  loc,
		Timeout:   timeout,
		Clock:     time.Now,
		log:       log.With().Str("job", "daily_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "daily_snapshot"
}

// Run snapshots today's market date. Individual portfolio failures are
// reported in the error but never stop the batch.
func (j *SnapshotJob) Run() error {
	ctx, cancel := withTimeout(j.Timeout)
	defer cancel()

	date := marketDate(j.Clock(), j.Location)
	result, err := j.Snapshots.CreateForAllActive(ctx, date)
	if err != nil {
		return fmt.Errorf("snapshot batch for %s: %w", date.Format(time.DateOnly), err)
	}

	j.log.Info().
		Time("date", date).
		Int("created", result.Created).
		Int("failed", len(result.Failed)).
		Msg("Daily snapshots finished")

	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d snapshots failed for %s", len(result.Failed), result.Created+len(result.Failed), date.Format(time.DateOnly))
	}
	return nil
}

// PerformanceJob recomputes the time-weighted return of every active portfolio
type PerformanceJob struct {
	Portfolios  PortfolioLister
	Performance PerformanceRecomputer
	Timeout     time.Duration
	Clock       func() time.Time
	log         zerolog.Logger
}

// NewPerformanceJob creates a new performance recompute job
func NewPerformanceJob(portfolios PortfolioLister, performance PerformanceRecomputer, timeout time.Duration, log zerolog.Logger) *PerformanceJob {
	return &PerformanceJob{
		Portfolios:  portfolios,
		Performance: performance,
		Timeout:     timeout,
		Clock:       time.Now,
		log:         log.With().Str("job", "performance_recompute").Logger(),
	}
}

// Name returns the job name
func (j *PerformanceJob) Name() string {
	return "performance_recompute"
}

// Run recomputes every portfolio up to now, continuing past failures
func (j *PerformanceJob) Run() error {
	ctx, cancel := withTimeout(j.Timeout)
	defer cancel()

	portfolios, err := j.Portfolios.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active portfolios: %w", err)
	}

	end := j.Clock().UTC()
	var errs []error
	for _, p := range portfolios {
		if _, err := j.Performance.Recompute(ctx, p.ID, end); err != nil {
			j.log.Warn().Err(err).Str("portfolio_id", p.ID.String()).Msg("Performance recompute failed")
			errs = append(errs, fmt.Errorf("portfolio %s: %w", p.ID, err))
		}
	}

	j.log.Info().
		Int("portfolios", len(portfolios)).
		Int("failed", len(errs)).
		Msg("Performance recompute finished")
	return errors.Join(errs...)
}

// marketDate is the calendar date at t in the market's timezone
func marketDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}
