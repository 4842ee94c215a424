package investment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/usecase/fx"
)

// MockPortfolioRepository is a mock implementation of PortfolioRepository for testing
type MockPortfolioRepository struct {
	mock.Mock
}

func (m *MockPortfolioRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPortfolioRepository) Update(ctx context.Context, p *domain.Portfolio) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPortfolioRepository) UpdateCashBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	args := m.Called(ctx, id, balance)
	return args.Error(0)
}

func (m *MockPortfolioRepository) ListActive(ctx context.Context) ([]*domain.Portfolio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Portfolio, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Portfolio), args.Error(1)
}

// MockHoldingRepository is a mock implementation of HoldingRepository for testing
type MockHoldingRepository struct {
	mock.Mock
}

func (m *MockHoldingRepository) GetForUpdate(ctx context.Context, portfolioID, securityID uuid.UUID) (*domain.Holding, error) {
	args := m.Called(ctx, portfolioID, securityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) Create(ctx context.Context, h *domain.Holding) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHoldingRepository) Update(ctx context.Context, h *domain.Holding) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHoldingRepository) ListActive(ctx context.Context, portfolioID uuid.UUID) ([]*domain.Holding, error) {
	args := m.Called(ctx, portfolioID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) DeactivateAll(ctx context.Context, portfolioID uuid.UUID) error {
	args := m.Called(ctx, portfolioID)
	return args.Error(0)
}

// MockSecurityRepository is a mock implementation of SecurityRepository for testing
type MockSecurityRepository struct {
	mock.Mock
}

func (m *MockSecurityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Security), args.Error(1)
}

func (m *MockSecurityRepository) Create(ctx context.Context, s *domain.Security) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// MockHistoricalPriceRepository is a mock implementation of HistoricalPriceRepository for testing
type MockHistoricalPriceRepository struct {
	mock.Mock
}

func (m *MockHistoricalPriceRepository) Add(ctx context.Context, p *domain.HistoricalPrice) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockHistoricalPriceRepository) GetOn(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.price(m.Called(ctx, securityID, date))
}

func (m *MockHistoricalPriceRepository) LatestBefore(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.price(m.Called(ctx, securityID, date))
}

func (m *MockHistoricalPriceRepository) EarliestAfter(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.price(m.Called(ctx, securityID, date))
}

func (m *MockHistoricalPriceRepository) Latest(ctx context.Context, securityID uuid.UUID) (*domain.HistoricalPrice, error) {
	return m.price(m.Called(ctx, securityID))
}

func (m *MockHistoricalPriceRepository) price(args mock.Arguments) (*domain.HistoricalPrice, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HistoricalPrice), args.Error(1)
}

// MockFXRateRepository is a mock implementation of FXRateRepository for testing
type MockFXRateRepository struct {
	mock.Mock
}

func (m *MockFXRateRepository) Find(ctx context.Context, q domain.FXRateQuery) (*domain.FXRate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FXRate), args.Error(1)
}

func (m *MockFXRateRepository) Add(ctx context.Context, r *domain.FXRate) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type mocks struct {
	portfolios *MockPortfolioRepository
	holdings   *MockHoldingRepository
	securities *MockSecurityRepository
	prices     *MockHistoricalPriceRepository
	fxRates    *MockFXRateRepository
}

func newService(now time.Time) (*InvestmentService, mocks) {
	m := mocks{
		portfolios: new(MockPortfolioRepository),
		holdings:   new(MockHoldingRepository),
		securities: new(MockSecurityRepository),
		prices:     new(MockHistoricalPriceRepository),
		fxRates:    new(MockFXRateRepository),
	}
	lima := time.FixedZone("America/Lima", -5*60*60)
	service := NewInvestmentService(
		m.portfolios, m.holdings, m.securities, m.prices,
		fx.NewResolver(m.fxRates, zerolog.Nop()),
		lima,
		zerolog.Nop(),
	)
	service.Clock = func() time.Time { return now }
	return service, m
}

var (
	portfolioID = uuid.MustParse("7b1c8a52-0000-4000-8000-000000000001")
	usdStock    = uuid.MustParse("00000000-0000-4000-8000-00000000000a")
	penStock    = uuid.MustParse("00000000-0000-4000-8000-00000000000b")
)

// 17:00 in Lima, after the intraday session
var afterClose = time.Date(2026, 4, 15, 22, 0, 0, 0, time.UTC)

func setupPortfolio(m mocks) {
	ctx := context.Background()
	m.portfolios.On("GetByID", ctx, portfolioID).Return(&domain.Portfolio{
		ID: portfolioID, BaseCurrency: "PEN", CashBalance: decimal.NewFromInt(1000),
	}, nil)
	m.holdings.On("ListActive", ctx, portfolioID).Return([]*domain.Holding{
		{PortfolioID: portfolioID, SecurityID: penStock, Quantity: 4, AveragePurchasePrice: decimal.NewFromInt(30), IsActive: true},
		{PortfolioID: portfolioID, SecurityID: usdStock, Quantity: 10, AveragePurchasePrice: decimal.NewFromInt(140), IsActive: true},
	}, nil)
	m.securities.On("GetByID", ctx, usdStock).Return(&domain.Security{
		ID: usdStock, Symbol: "AAPL", Currency: "USD", CurrentPrice: decimal.NewFromInt(40), IsActive: true,
	}, nil)
	m.securities.On("GetByID", ctx, penStock).Return(&domain.Security{
		ID: penStock, Symbol: "BAP", Currency: "PEN", CurrentPrice: decimal.NewFromInt(25), IsActive: true,
	}, nil)
}

func midRate(session domain.FXSession) interface{} {
	return mock.MatchedBy(func(q domain.FXRateQuery) bool {
		return !q.Before && q.RateType == domain.FXRateTypeMid && q.Session == session
	})
}

func TestCurrentValue(t *testing.T) {
	ctx := context.Background()
	service, m := newService(afterClose)
	setupPortfolio(m)
	m.fxRates.On("Find", ctx, midRate(domain.FXSessionCierre)).Return(&domain.FXRate{
		BaseCurrency: "PEN", QuoteCurrency: "USD", RateType: domain.FXRateTypeMid,
		Session: domain.FXSessionCierre, Rate: decimal.RequireFromString("3.60"),
	}, nil)

	value, err := service.CurrentValue(ctx, portfolioID)

	require.NoError(t, err)
	assert.Equal(t, "1000.00", value.Cash.StringFixed(2))
	assert.Equal(t, "1540.00", value.InvestmentValue.StringFixed(2))
	assert.Equal(t, "2540.00", value.TotalValue.StringFixed(2))
	assert.Equal(t, "1520.00", value.CostBasis.StringFixed(2))

	require.Len(t, value.Holdings, 2)
	usd := value.Holdings[0]
	assert.Equal(t, usdStock, usd.SecurityID)
	assert.Equal(t, "144.00", usd.CurrentPrice.StringFixed(2))
	assert.Equal(t, "1440.00", usd.Value.StringFixed(2))
	assert.Equal(t, "40.00", usd.UnrealizedPNL.StringFixed(2))

	pen := value.Holdings[1]
	assert.Equal(t, "1", pen.FXRate.String())
	assert.Equal(t, "100.00", pen.Value.StringFixed(2))
	assert.Equal(t, "-20.00", pen.UnrealizedPNL.StringFixed(2))

	m.portfolios.AssertExpectations(t)
	m.holdings.AssertExpectations(t)
	m.fxRates.AssertExpectations(t)
}

func TestCurrentValue_UsesSessionInEffect(t *testing.T) {
	ctx := context.Background()
	// 11:30 in Lima
	service, m := newService(time.Date(2026, 4, 15, 16, 30, 0, 0, time.UTC))
	setupPortfolio(m)
	m.fxRates.On("Find", ctx, midRate(domain.FXSessionIntraday)).Return(&domain.FXRate{
		Rate: decimal.RequireFromString("3.50"),
	}, nil)

	pnl, err := service.UnrealizedPNL(ctx, portfolioID)

	require.NoError(t, err)
	require.Len(t, pnl, 2)
	assert.Equal(t, "140.00", pnl[0].CurrentPrice.StringFixed(2))
	assert.Equal(t, "0.00", pnl[0].UnrealizedPNL.StringFixed(2))
	m.fxRates.AssertExpectations(t)
}

func TestCurrentValue_PortfolioNotFound(t *testing.T) {
	ctx := context.Background()
	service, m := newService(afterClose)
	m.portfolios.On("GetByID", ctx, portfolioID).Return(nil, domain.ErrNotFound)

	_, err := service.CurrentValue(ctx, portfolioID)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	m.holdings.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything)
}

func TestRecordClosingPrice(t *testing.T) {
	ctx := context.Background()
	service, m := newService(afterClose)

	m.securities.On("GetByID", ctx, usdStock).Return(&domain.Security{ID: usdStock}, nil)
	m.prices.On("Add", ctx, mock.MatchedBy(func(p *domain.HistoricalPrice) bool {
		return p.SecurityID == usdStock && p.Date.Equal(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC))
	})).Return(nil)

	entry, err := service.RecordClosingPrice(ctx, usdStock, afterClose, decimal.RequireFromString("41.25"))

	require.NoError(t, err)
	assert.Equal(t, "41.25", entry.Price.String())
	m.prices.AssertExpectations(t)
}

func TestRecordClosingPrice_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		security  error
		expectErr error
	}{
		{name: "zero price", price: "0", expectErr: domain.ErrInvalidAmount},
		{name: "negative price", price: "-3", expectErr: domain.ErrInvalidAmount},
		{name: "unknown security", price: "10", security: domain.ErrNotFound, expectErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			service, m := newService(afterClose)
			if tt.security != nil {
				m.securities.On("GetByID", ctx, usdStock).Return(nil, tt.security)
			}

			_, err := service.RecordClosingPrice(ctx, usdStock, afterClose, decimal.RequireFromString(tt.price))

			assert.ErrorIs(t, err, tt.expectErr)
			m.prices.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
		})
	}
}
