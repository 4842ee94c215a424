package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/investment"
)

// GrowthResult splits a portfolio's value into what was paid in and what it earned
type GrowthResult struct {
	CashContribution decimal.Decimal
	InvestmentGrowth decimal.Decimal
	Total            decimal.Decimal
}

// InvestmentGrowthResult compares holdings at market against their cost, ignoring cash
type InvestmentGrowthResult struct {
	CostBasis     decimal.Decimal
	MarketValue   decimal.Decimal
	Growth        decimal.Decimal
	GrowthPercent decimal.Decimal
}

// LiveValuer values a portfolio at current prices
type LiveValuer interface {
	CurrentValue(ctx context.Context, portfolioID uuid.UUID) (*investment.PortfolioValue, error)
}

// DashboardService handles dashboard-related operations
type DashboardService struct {
	PerformanceRepo domain.PerformanceRepository
	Valuer          LiveValuer
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(performanceRepo domain.PerformanceRepository, valuer LiveValuer) *DashboardService {
	return &DashboardService{
		PerformanceRepo: performanceRepo,
		Valuer:          valuer,
	}
}

// GetGrowth calculates the growth of a portfolio
// Logic:
//   - CashContribution: total deposits - total withdrawals
//   - Total: cash + holdings at current prices
//   - InvestmentGrowth: Total - CashContribution
func (s *DashboardService) GetGrowth(ctx context.Context, portfolioID uuid.UUID) (*GrowthResult, error) {
	value, err := s.Valuer.CurrentValue(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to value portfolio: %w", err)
	}

	perf, err := s.PerformanceRepo.GetOrCreate(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance: %w", err)
	}

	contribution := perf.NetContributions()
	return &GrowthResult{
		CashContribution: contribution,
		InvestmentGrowth: value.TotalValue.Sub(contribution),
		Total:            value.TotalValue,
	}, nil
}

// GetInvestmentGrowth calculates the growth of the holdings alone
// Logic:
//   - CostBasis: sum of average purchase price * quantity
//   - Growth: market value - cost basis
//   - GrowthPercent: growth / cost basis * 100, zero without a cost basis
func (s *DashboardService) GetInvestmentGrowth(ctx context.Context, portfolioID uuid.UUID) (*InvestmentGrowthResult, error) {
	value, err := s.Valuer.CurrentValue(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to value portfolio: %w", err)
	}

	growth := value.InvestmentValue.Sub(value.CostBasis)
	percent := decimal.Zero
	if value.CostBasis.IsPositive() {
		percent = domain.Round2(growth.Mul(decimal.NewFromInt(100)).Div(value.CostBasis))
	}

	return &InvestmentGrowthResult{
		CostBasis:     value.CostBasis,
		MarketValue:   value.InvestmentValue,
		Growth:        growth,
		GrowthPercent: percent,
	}, nil
}
