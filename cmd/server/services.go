package main

import (
	"github.com/rs/zerolog"

	"github.com/simaogato/portfolio-backend/internal/config"
	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/dashboard"
	"github.com/simaogato/portfolio-backend/internal/usecase/fx"
	"github.com/simaogato/portfolio-backend/internal/usecase/investment"
	"github.com/simaogato/portfolio-backend/internal/usecase/performance"
	"github.com/simaogato/portfolio-backend/internal/usecase/portfolio"
	"github.com/simaogato/portfolio-backend/internal/usecase/pricing"
	"github.com/simaogato/portfolio-backend/internal/usecase/reconstruction"
	"github.com/simaogato/portfolio-backend/internal/usecase/seeder"
	"github.com/simaogato/portfolio-backend/internal/usecase/snapshot"
	"github.com/simaogato/portfolio-backend/internal/usecase/transaction"
	"github.com/simaogato/portfolio-backend/internal/usecase/valuation"
)

// services holds every use case the process exposes
type services struct {
	Portfolios   *portfolio.PortfolioService
	Transactions *transaction.Engine
	Valuer       *valuation.Valuer
	Snapshots    *snapshot.Service
	Performance  *performance.Calculator
	Investments  *investment.InvestmentService
	Dashboard    *dashboard.DashboardService
	Seeder       *seeder.DefaultSeeder
}

func newServices(store domain.Store, cfg *config.Config, log zerolog.Logger) (*services, error) {
	loc := cfg.Location()

	fxResolver := fx.NewResolver(store.FXRates(), log)
	prices := pricing.NewResolver(store.Prices(), store.Securities(), store.Transactions(), log)

	reconstructionEngine, err := reconstruction.NewEngine(store.Transactions(), cfg.ReconstructionCacheSize, log)
	if err != nil {
		return nil, err
	}
	valuer := valuation.NewValuer(reconstructionEngine, prices, fxResolver, store.Securities(), log)

	portfolios := portfolio.NewPortfolioService(store, log)
	engine := transaction.NewEngine(store, fxResolver, loc, log)
	investments := investment.NewInvestmentService(store.Portfolios(), store.Holdings(), store.Securities(), store.Prices(), fxResolver, loc, log)

	return &services{
		Portfolios:   portfolios,
		Transactions: engine,
		Valuer:       valuer,
		Snapshots: snapshot.NewService(store, valuer, snapshot.Options{
			MaxRetries:  cfg.SnapshotMaxRetries,
			Backoff:     cfg.SnapshotBackoff,
			Concurrency: cfg.SnapshotConcurrency,
		}, log),
		Performance: performance.NewCalculator(store, valuer, log),
		Investments: investments,
		Dashboard:   dashboard.NewDashboardService(store.Performance(), investments),
		Seeder:      seeder.NewDefaultSeeder(portfolios, engine, cfg.BaseCurrency, log),
	}, nil
}
