package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// Quote is a resolved price in the security's currency and the tier that produced it
type Quote struct {
	Price  decimal.Decimal
	Source domain.PriceSource
}

// Resolver finds the price of a security on an arbitrary past date
type Resolver struct {
	PriceRepo       domain.HistoricalPriceRepository
	SecurityRepo    domain.SecurityRepository
	TransactionRepo domain.TransactionRepository
	log             zerolog.Logger
}

// NewResolver creates a new Resolver instance
func NewResolver(
	priceRepo domain.HistoricalPriceRepository,
	securityRepo domain.SecurityRepository,
	transactionRepo domain.TransactionRepository,
	log zerolog.Logger,
) *Resolver {
	return &Resolver{
		PriceRepo:       priceRepo,
		SecurityRepo:    securityRepo,
		TransactionRepo: transactionRepo,
		log:             log.With().Str("service", "price_resolver").Logger(),
	}
}

// Resolve returns the price of securityID on date. portfolioID may be uuid.Nil
// when no portfolio context applies. Resolution never fails; the last tier is a
// zero price tagged error_fallback.
// Logic, first tier with a price wins:
//  1. historical price on date
//  2. latest historical price before date
//  3. the portfolio's own latest BUY at or before date
//  4. nearest historical price either side, ties to the past
//  5. the security's current price
//  6. latest historical price of any date
func (r *Resolver) Resolve(ctx context.Context, securityID uuid.UUID, date time.Time, portfolioID uuid.UUID) Quote {
	day := domain.DateOf(date)
	logger := r.log.With().Str("security_id", securityID.String()).Time("date", day).Logger()

	if p, ok := lookup(logger, "exact", func() (*domain.HistoricalPrice, error) {
		return r.PriceRepo.GetOn(ctx, securityID, day)
	}); ok {
		return Quote{Price: p.Price, Source: domain.PriceSourceExactDate}
	}

	if p, ok := lookup(logger, "latest_before", func() (*domain.HistoricalPrice, error) {
		return r.PriceRepo.LatestBefore(ctx, securityID, day)
	}); ok {
		return Quote{Price: p.Price, Source: domain.PriceSourceLatestHistorical}
	}

	if portfolioID != uuid.Nil {
		buy, err := r.TransactionRepo.LatestBuy(ctx, portfolioID, securityID, domain.EndOfDay(day))
		switch {
		case err == nil && buy.ExecutedPrice.Valid && buy.ExecutedPrice.Decimal.IsPositive():
			logger.Debug().Str("transaction_id", buy.ID.String()).Msg("Priced from portfolio acquisition")
			return Quote{Price: buy.ExecutedPrice.Decimal, Source: domain.PriceSourcePortfolioAcquisition}
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			logger.Warn().Err(err).Msg("Acquisition price lookup failed")
		}
	}

	if p, ok := r.nearest(ctx, logger, securityID, day); ok {
		return Quote{Price: p.Price, Source: domain.PriceSourceNearestHistorical}
	}

	sec, err := r.SecurityRepo.GetByID(ctx, securityID)
	if err == nil && sec.CurrentPrice.IsPositive() {
		logger.Warn().Msg("No historical price, using current price")
		return Quote{Price: sec.CurrentPrice, Source: domain.PriceSourceCurrentPrice}
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn().Err(err).Msg("Security lookup failed")
	}

	if p, ok := lookup(logger, "latest", func() (*domain.HistoricalPrice, error) {
		return r.PriceRepo.Latest(ctx, securityID)
	}); ok {
		logger.Warn().Time("price_date", p.Date).Msg("Using latest historical price of any date")
		return Quote{Price: p.Price, Source: domain.PriceSourceHistoricalFallback}
	}

	logger.Error().Bool("critical", true).Msg("No price data for security, valuing at zero")
	return Quote{Price: decimal.Zero, Source: domain.PriceSourceErrorFallback}
}

func (r *Resolver) nearest(ctx context.Context, logger zerolog.Logger, securityID uuid.UUID, day time.Time) (*domain.HistoricalPrice, bool) {
	before, okBefore := lookup(logger, "nearest_before", func() (*domain.HistoricalPrice, error) {
		return r.PriceRepo.LatestBefore(ctx, securityID, day)
	})
	after, okAfter := lookup(logger, "nearest_after", func() (*domain.HistoricalPrice, error) {
		return r.PriceRepo.EarliestAfter(ctx, securityID, day)
	})

	switch {
	case okBefore && okAfter:
		if after.Date.Sub(day) < day.Sub(before.Date) {
			return after, true
		}
		return before, true
	case okBefore:
		return before, true
	case okAfter:
		return after, true
	}
	return nil, false
}

// lookup runs one repository query, logging anything but a miss
func lookup(logger zerolog.Logger, name string, query func() (*domain.HistoricalPrice, error)) (*domain.HistoricalPrice, bool) {
	p, err := query()
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Err(err).Str("lookup", name).Msg("Price lookup failed")
		}
		return nil, false
	}
	return p, p.Price.IsPositive()
}
