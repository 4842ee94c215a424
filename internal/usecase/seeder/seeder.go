package seeder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/portfolio"
)

// Default portfolio settings
const (
	DefaultPortfolioName = "Default Portfolio"
	seedKeyPrefix        = "seed-default-"
)

// InitialDeposit funds every seeded portfolio
var InitialDeposit = decimal.NewFromInt(10000)

// PortfolioManager lists, reads and opens portfolios
type PortfolioManager interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Portfolio, error)
	Create(ctx context.Context, in portfolio.CreateInput) (*domain.Portfolio, error)
}

// Executor runs ledger transactions
type Executor interface {
	Execute(ctx context.Context, req domain.TransactionRequest) (*domain.Transaction, error)
}

// DefaultSeeder gives new owners a funded default portfolio
type DefaultSeeder struct {
	Portfolios   PortfolioManager
	Transactions Executor
	BaseCurrency string
	log          zerolog.Logger
}

// NewDefaultSeeder creates a new DefaultSeeder instance
func NewDefaultSeeder(portfolios PortfolioManager, transactions Executor, baseCurrency string, log zerolog.Logger) *DefaultSeeder {
	return &DefaultSeeder{
		Portfolios:   portfolios,
		Transactions: transactions,
		BaseCurrency: baseCurrency,
		log:          log.With().Str("service", "seeder").Logger(),
	}
}

// SeedKey is the idempotency key of an owner's initial deposit
func SeedKey(ownerID uuid.UUID) string {
	return seedKeyPrefix + ownerID.String()
}

// Seed ensures the owner has a default portfolio holding the initial deposit
// Logic:
//   - reuse the owner's default portfolio, creating one if the owner has none
//   - deposit InitialDeposit through the transaction engine under SeedKey,
//     so seeding twice funds the portfolio once
//   - return the portfolio as stored after the deposit
func (s *DefaultSeeder) Seed(ctx context.Context, ownerID uuid.UUID) (*domain.Portfolio, error) {
	existing, err := s.Portfolios.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	var target *domain.Portfolio
	for _, p := range existing {
		if p.IsDefault {
			target = p
			break
		}
	}

	if target == nil {
		target, err = s.Portfolios.Create(ctx, portfolio.CreateInput{
			OwnerID:      ownerID,
			Name:         DefaultPortfolioName,
			BaseCurrency: s.BaseCurrency,
			MakeDefault:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default portfolio: %w", err)
		}
	}

	deposit, err := s.Transactions.Execute(ctx, domain.TransactionRequest{
		PortfolioID:    target.ID,
		IdempotencyKey: SeedKey(ownerID),
		Operation:      domain.Deposit{Amount: InitialDeposit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fund default portfolio: %w", err)
	}
	funded, err := s.Portfolios.Get(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload default portfolio: %w", err)
	}

	s.log.Info().
		Str("owner_id", ownerID.String()).
		Str("portfolio_id", target.ID.String()).
		Str("transaction_id", deposit.ID.String()).
		Str("cash_balance", funded.CashBalance.StringFixed(2)).
		Msg("Default portfolio seeded")
	return funded, nil
}
