package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/fx"
	"github.com/simaogato/portfolio-backend/internal/usecase/pricing"
	"github.com/simaogato/portfolio-backend/internal/usecase/reconstruction"
)

// Line is the valuation of one position
type Line struct {
	SecurityID   uuid.UUID
	Quantity     int64
	AveragePrice decimal.Decimal // base currency
	Price        decimal.Decimal // security currency
	PriceSource  domain.PriceSource
	FXRate       decimal.Decimal
	FXFallback   bool
	Value        decimal.Decimal // base currency
}

// Valuation is a portfolio marked to market at one instant
type Valuation struct {
	PortfolioID     uuid.UUID
	At              time.Time
	Cash            decimal.Decimal
	InvestmentValue decimal.Decimal
	TotalValue      decimal.Decimal
	TotalDeposits   decimal.Decimal
	Lines           []Line
	LatestID        ulid.ULID // last transaction included, zero when none
}

// Unreliable returns the securities that could only be valued by the zero fallback
func (v *Valuation) Unreliable() []uuid.UUID {
	var out []uuid.UUID
	for _, l := range v.Lines {
		if !l.PriceSource.Reliable() {
			out = append(out, l.SecurityID)
		}
	}
	return out
}

// Valuer marks reconstructed portfolios to market with end-of-day prices and mid rates
type Valuer struct {
	Reconstruction *reconstruction.Engine
	Prices         *pricing.Resolver
	FX             *fx.Resolver
	SecurityRepo   domain.SecurityRepository
	log            zerolog.Logger
}

// NewValuer creates a new Valuer instance
func NewValuer(
	reconstructionEngine *reconstruction.Engine,
	prices *pricing.Resolver,
	fxResolver *fx.Resolver,
	securityRepo domain.SecurityRepository,
	log zerolog.Logger,
) *Valuer {
	return &Valuer{
		Reconstruction: reconstructionEngine,
		Prices:         prices,
		FX:             fxResolver,
		SecurityRepo:   securityRepo,
		log:            log.With().Str("service", "valuation").Logger(),
	}
}

// ValueAt values the portfolio as it stood at instant at.
// Logic:
//   - holdings and cash come from replaying the log up to at
//   - each position is priced on the calendar date of at through the price cascade
//   - prices are converted with the mid rate of the closing session
//   - value = round2(quantity * price * rate), total = cash + sum(values)
func (v *Valuer) ValueAt(ctx context.Context, portfolio *domain.Portfolio, at time.Time) (*Valuation, error) {
	state, err := v.Reconstruction.StateAt(ctx, portfolio.ID, at)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(state.Holdings))
	for sid := range state.Holdings {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := &Valuation{
		PortfolioID:     portfolio.ID,
		At:              at,
		Cash:            domain.Round2(state.Cash),
		InvestmentValue: decimal.Zero,
		TotalDeposits:   domain.Round2(state.TotalDeposits),
		Lines:           make([]Line, 0, len(ids)),
		LatestID:        state.LatestID,
	}

	for _, sid := range ids {
		pos := state.Holdings[sid]

		sec, err := v.SecurityRepo.GetByID(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("failed to load security %s: %w", sid, err)
		}

		quote := v.Prices.Resolve(ctx, sid, at, portfolio.ID)
		rate := v.FX.Resolve(ctx, fx.Request{
			Date:     at,
			Base:     portfolio.BaseCurrency,
			Quote:    sec.Currency,
			RateType: domain.FXRateTypeMid,
			Session:  domain.FXSessionCierre,
		})

		line := Line{
			SecurityID:   sid,
			Quantity:     pos.Quantity,
			AveragePrice: pos.AveragePrice,
			Price:        quote.Price,
			PriceSource:  quote.Source,
			FXRate:       rate.Value,
			FXFallback:   rate.Fallback(),
			Value:        domain.Round2(decimal.NewFromInt(pos.Quantity).Mul(quote.Price).Mul(rate.Value)),
		}
		out.Lines = append(out.Lines, line)
		out.InvestmentValue = out.InvestmentValue.Add(line.Value)
	}

	out.TotalValue = out.Cash.Add(out.InvestmentValue)

	if missing := out.Unreliable(); len(missing) > 0 {
		v.log.Warn().
			Str("portfolio_id", portfolio.ID.String()).
			Time("at", at).
			Int("unpriced", len(missing)).
			Msg("Valuation includes zero-priced positions")
	}
	return out, nil
}
