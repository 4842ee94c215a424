package investment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/fx"
)

// HoldingValue is one active holding marked at the security's current price
type HoldingValue struct {
	SecurityID    uuid.UUID
	Symbol        string
	Quantity      int64
	AveragePrice  decimal.Decimal // base currency
	CurrentPrice  decimal.Decimal // base currency
	FXRate        decimal.Decimal
	Value         decimal.Decimal // base currency
	UnrealizedPNL decimal.Decimal // base currency
}

// PortfolioValue is the live value of a portfolio
type PortfolioValue struct {
	PortfolioID     uuid.UUID
	Cash            decimal.Decimal
	InvestmentValue decimal.Decimal
	TotalValue      decimal.Decimal
	CostBasis       decimal.Decimal
	Holdings        []HoldingValue
}

// InvestmentService values live holdings and records closing prices
type InvestmentService struct {
	PortfolioRepo domain.PortfolioRepository
	HoldingRepo   domain.HoldingRepository
	SecurityRepo  domain.SecurityRepository
	PriceRepo     domain.HistoricalPriceRepository
	FX            *fx.Resolver
	Clock         func() time.Time
	Location      *time.Location
	log           zerolog.Logger
}

// NewInvestmentService creates a new InvestmentService instance
func NewInvestmentService(
	portfolioRepo domain.PortfolioRepository,
	holdingRepo domain.HoldingRepository,
	securityRepo domain.SecurityRepository,
	priceRepo domain.HistoricalPriceRepository,
	fxResolver *fx.Resolver,
	location *time.Location,
	log zerolog.Logger,
) *InvestmentService {
	return &InvestmentService{
		PortfolioRepo: portfolioRepo,
		HoldingRepo:   holdingRepo,
		SecurityRepo:  securityRepo,
		PriceRepo:     priceRepo,
		FX:            fxResolver,
		Clock:         time.Now,
		Location:      location,
		log:           log.With().Str("service", "investment").Logger(),
	}
}

// CurrentValue marks the portfolio's active holdings at current prices
// Logic:
//   - each holding is converted with the mid rate of the session in effect now
//   - price in base = round2(current price * rate)
//   - value = round2(quantity * current price * rate)
//   - unrealized P&L = round2((price in base - average price) * quantity)
//   - total = cash + sum(values)
func (s *InvestmentService) CurrentValue(ctx context.Context, portfolioID uuid.UUID) (*PortfolioValue, error) {
	portfolio, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.HoldingRepo.ListActive(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].SecurityID.String() < holdings[j].SecurityID.String()
	})

	now := s.Clock()
	session := domain.SessionAt(now, s.Location)

	out := &PortfolioValue{
		PortfolioID:     portfolio.ID,
		Cash:            portfolio.CashBalance,
		InvestmentValue: decimal.Zero,
		CostBasis:       decimal.Zero,
		Holdings:        make([]HoldingValue, 0, len(holdings)),
	}
	for _, h := range holdings {
		sec, err := s.SecurityRepo.GetByID(ctx, h.SecurityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load security %s: %w", h.SecurityID, err)
		}

		rate := s.FX.Resolve(ctx, fx.Request{
			Date:     now,
			Base:     portfolio.BaseCurrency,
			Quote:    sec.Currency,
			RateType: domain.FXRateTypeMid,
			Session:  session,
		})

		qty := decimal.NewFromInt(h.Quantity)
		basePrice := domain.Round2(sec.CurrentPrice.Mul(rate.Value))
		line := HoldingValue{
			SecurityID:    h.SecurityID,
			Symbol:        sec.Symbol,
			Quantity:      h.Quantity,
			AveragePrice:  h.AveragePurchasePrice,
			CurrentPrice:  basePrice,
			FXRate:        rate.Value,
			Value:         domain.Round2(qty.Mul(sec.CurrentPrice).Mul(rate.Value)),
			UnrealizedPNL: domain.Round2(basePrice.Sub(h.AveragePurchasePrice).Mul(qty)),
		}
		out.Holdings = append(out.Holdings, line)
		out.InvestmentValue = out.InvestmentValue.Add(line.Value)
		out.CostBasis = out.CostBasis.Add(domain.Round2(h.AveragePurchasePrice.Mul(qty)))
	}
	out.TotalValue = out.Cash.Add(out.InvestmentValue)
	return out, nil
}

// UnrealizedPNL returns the open profit or loss of every active holding
func (s *InvestmentService) UnrealizedPNL(ctx context.Context, portfolioID uuid.UUID) ([]HoldingValue, error) {
	value, err := s.CurrentValue(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return value.Holdings, nil
}

// RecordClosingPrice stores the closing price of a security for a calendar date,
// replacing any price already recorded for that date
func (s *InvestmentService) RecordClosingPrice(ctx context.Context, securityID uuid.UUID, date time.Time, price decimal.Decimal) (*domain.HistoricalPrice, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: closing price must be positive", domain.ErrInvalidAmount)
	}

	if _, err := s.SecurityRepo.GetByID(ctx, securityID); err != nil {
		return nil, err
	}

	entry := &domain.HistoricalPrice{
		ID:         uuid.New(),
		SecurityID: securityID,
		Date:       domain.DateOf(date),
		Price:      price,
	}
	if err := s.PriceRepo.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record closing price: %w", err)
	}

	s.log.Debug().
		Str("security_id", securityID.String()).
		Time("date", entry.Date).
		Str("price", price.String()).
		Msg("Closing price recorded")
	return entry, nil
}
