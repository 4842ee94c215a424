package fx

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// Request identifies the quote wanted for converting Quote amounts into Base
type Request struct {
	Date     time.Time
	Base     string
	Quote    string
	RateType domain.FXRateType
	Session  domain.FXSession
}

// Tier numbers reported in Rate.Tier
const (
	TierIdentity = 0
	TierFallback = 7
)

// Rate is a resolved conversion rate, base units per one quote unit
type Rate struct {
	Value decimal.Decimal
	Tier  int
	Quote *domain.FXRate // nil for identity and fallback
}

// Fallback reports whether no quote was found and the rate defaulted to 1
func (r Rate) Fallback() bool {
	return r.Tier == TierFallback
}

// Resolver picks the best available FX quote for a date
type Resolver struct {
	FXRateRepo domain.FXRateRepository
	log        zerolog.Logger
}

// NewResolver creates a new Resolver instance
func NewResolver(fxRateRepo domain.FXRateRepository, log zerolog.Logger) *Resolver {
	return &Resolver{
		FXRateRepo: fxRateRepo,
		log:        log.With().Str("service", "fx_resolver").Logger(),
	}
}

// Resolve returns the conversion rate for req. It never fails: when no quote
// can be found the rate degrades to 1 and the gap is logged.
// Logic: identity, then the first tier that matches:
//  1. exact date, session and rate type
//  2. exact date and rate type, other session
//  3. exact date and session, other rate type
//  4. exact date, any session, other rate type
//  5. most recent prior date, exact rate type, any session
//  6. most recent prior date, anything
func (r *Resolver) Resolve(ctx context.Context, req Request) Rate {
	if req.Base == req.Quote {
		return Rate{Value: decimal.NewFromInt(1), Tier: TierIdentity}
	}

	base := domain.FXRateQuery{
		BaseCurrency:  req.Base,
		QuoteCurrency: req.Quote,
		Date:          domain.DateOf(req.Date),
	}
	tiers := []domain.FXRateQuery{
		withFilters(base, false, req.RateType, "", req.Session, ""),
		withFilters(base, false, req.RateType, "", "", req.Session),
		withFilters(base, false, "", req.RateType, req.Session, ""),
		withFilters(base, false, "", req.RateType, "", ""),
		withFilters(base, true, req.RateType, "", "", ""),
		withFilters(base, true, "", "", "", ""),
	}

	for i, q := range tiers {
		quote, err := r.FXRateRepo.Find(ctx, q)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().Err(err).
					Int("tier", i+1).
					Str("pair", req.Base+"/"+req.Quote).
					Msg("FX lookup failed, trying next tier")
			}
			continue
		}

		if i > 0 {
			r.log.Warn().
				Int("tier", i+1).
				Str("pair", req.Base+"/"+req.Quote).
				Time("date", req.Date).
				Time("quote_date", quote.Date).
				Str("rate_type", string(quote.RateType)).
				Str("session", string(quote.Session)).
				Msg("Resolved FX rate from fallback tier")
		}
		return Rate{Value: quote.Rate, Tier: i + 1, Quote: quote}
	}

	r.log.Error().
		Str("pair", req.Base+"/"+req.Quote).
		Time("date", req.Date).
		Str("rate_type", string(req.RateType)).
		Str("session", string(req.Session)).
		Msg("No FX rate available, defaulting to 1")
	return Rate{Value: decimal.NewFromInt(1), Tier: TierFallback}
}

func withFilters(q domain.FXRateQuery, before bool, rateType, excludeRateType domain.FXRateType, session, excludeSession domain.FXSession) domain.FXRateQuery {
	q.Before = before
	q.RateType = rateType
	q.ExcludeRateType = excludeRateType
	q.Session = session
	q.ExcludeSession = excludeSession
	return q
}
