package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/valuation"
)

const (
	daysPerYear = 365
	day         = 24 * time.Hour
)

// Calculator computes time-weighted returns from reconstructed valuations
type Calculator struct {
	Store  domain.Store
	Valuer *valuation.Valuer
	Clock  func() time.Time
	log    zerolog.Logger
}

// NewCalculator creates a new Calculator instance
func NewCalculator(store domain.Store, valuer *valuation.Valuer, log zerolog.Logger) *Calculator {
	return &Calculator{
		Store:  store,
		Valuer: valuer,
		Clock:  time.Now,
		log:    log.With().Str("service", "performance").Logger(),
	}
}

// TimeWeightedReturn returns the annualized time-weighted return between start and end,
// rounded to 4 decimal places.
// Logic:
//  1. Split [start, end] at every deposit and withdrawal strictly inside it
//  2. Value each sub-period; the end value is taken just before the next flow
//  3. Compound (1 + subReturn) over the sub-periods, twr = product - 1
//  4. Annualize when the range spans more than one day
func (c *Calculator) TimeWeightedReturn(ctx context.Context, portfolioID uuid.UUID, start, end time.Time) (decimal.Decimal, error) {
	cumulative, span, err := c.cumulativeReturn(ctx, portfolioID, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	twr, err := annualize(cumulative, span)
	if err != nil {
		return decimal.Zero, fmt.Errorf("portfolio %s from %s to %s: %w", portfolioID, start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	return twr, nil
}

func (c *Calculator) cumulativeReturn(ctx context.Context, portfolioID uuid.UUID, start, end time.Time) (decimal.Decimal, time.Duration, error) {
	if !start.Before(end) {
		return decimal.Zero, 0, nil
	}

	portfolio, err := c.Store.Portfolios().GetByID(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, 0, err
	}

	flows, err := c.Store.Transactions().ListCashFlows(ctx, portfolioID, start, end)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to list cash flows: %w", err)
	}
	boundaries := splitAt(start, end, flows)

	product := decimal.NewFromInt(1)
	for i := 0; i < len(boundaries)-1; i++ {
		from, to := boundaries[i], boundaries[i+1]
		if i+1 < len(boundaries)-1 {
			to = to.Add(-time.Nanosecond)
		}

		startValue, err := c.valueAt(ctx, portfolio, from)
		if err != nil {
			return decimal.Zero, 0, err
		}
		endValue, err := c.valueAt(ctx, portfolio, to)
		if err != nil {
			return decimal.Zero, 0, err
		}

		sub := subReturn(startValue, endValue)
		product = product.Mul(decimal.NewFromInt(1).Add(sub))

		c.log.Debug().
			Str("portfolio_id", portfolioID.String()).
			Time("from", from).
			Time("to", to).
			Str("start_value", startValue.StringFixed(2)).
			Str("end_value", endValue.StringFixed(2)).
			Str("sub_return", sub.String()).
			Msg("Sub-period valued")
	}

	return product.Sub(decimal.NewFromInt(1)), end.Sub(start), nil
}

func (c *Calculator) valueAt(ctx context.Context, portfolio *domain.Portfolio, at time.Time) (decimal.Decimal, error) {
	val, err := c.Valuer.ValueAt(ctx, portfolio, at)
	if err != nil {
		return decimal.Zero, err
	}
	if missing := val.Unreliable(); len(missing) > 0 {
		return decimal.Zero, fmt.Errorf("%w: no price for %s at %s", domain.ErrMissingValuationData, missing[0], at.Format(time.RFC3339))
	}
	return val.TotalValue, nil
}

// Recompute stores the return from the first transaction up to end on the performance row
func (c *Calculator) Recompute(ctx context.Context, portfolioID uuid.UUID, end time.Time) (*domain.PortfolioPerformance, error) {
	twr := decimal.Zero
	first, err := c.Store.Transactions().First(ctx, portfolioID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to get first transaction: %w", err)
	default:
		if twr, err = c.TimeWeightedReturn(ctx, portfolioID, first.Timestamp, end); err != nil {
			return nil, err
		}
	}

	var perf *domain.PortfolioPerformance
	err = c.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if perf, err = tx.Performance().GetOrCreate(ctx, portfolioID); err != nil {
			return err
		}
		perf.TimeWeightedReturn = twr
		perf.LastUpdated = c.Clock().UTC()
		return tx.Performance().Update(ctx, perf)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store performance: %w", err)
	}

	c.log.Info().
		Str("portfolio_id", portfolioID.String()).
		Str("time_weighted_return", twr.StringFixed(4)).
		Msg("Performance recomputed")
	return perf, nil
}

// splitAt returns start, the distinct flow instants, and end in ascending order
func splitAt(start, end time.Time, flows []*domain.Transaction) []time.Time {
	out := []time.Time{start}
	seen := make(map[int64]bool)
	var inner []time.Time
	for _, f := range flows {
		ts := f.Timestamp.UTC()
		if seen[ts.UnixNano()] || !ts.After(start) || !ts.Before(end) {
			continue
		}
		seen[ts.UnixNano()] = true
		inner = append(inner, ts)
	}
	sort.Slice(inner, func(i, j int) bool { return inner[i].Before(inner[j]) })
	out = append(out, inner...)
	return append(out, end)
}

func subReturn(startValue, endValue decimal.Decimal) decimal.Decimal {
	if startValue.IsZero() {
		return decimal.Zero
	}
	return endValue.Sub(startValue).DivRound(startValue, 16)
}

// annualize scales a cumulative return over span to a yearly rate. A total loss stays -1.
// Spans of one day or less are returned as is.
func annualize(twr decimal.Decimal, span time.Duration) (decimal.Decimal, error) {
	if span <= day {
		return domain.Round4(twr), nil
	}
	growth := decimal.NewFromInt(1).Add(twr)
	if !growth.IsPositive() {
		return decimal.NewFromInt(-1), nil
	}
	g, _ := growth.Float64()
	days := span.Hours() / 24
	annual := math.Pow(g, daysPerYear/days) - 1
	if math.IsInf(annual, 0) || math.IsNaN(annual) {
		return decimal.Zero, fmt.Errorf("%w: return %s over %.2f days cannot be annualized", domain.ErrMissingValuationData, twr.StringFixed(4), days)
	}
	return domain.Round4(decimal.NewFromFloat(annual)), nil
}
