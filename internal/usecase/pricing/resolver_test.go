package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// MockPriceRepository is a mock implementation of HistoricalPriceRepository for testing
type MockPriceRepository struct {
	mock.Mock
}

func (m *MockPriceRepository) Add(ctx context.Context, p *domain.HistoricalPrice) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPriceRepository) result(args mock.Arguments) (*domain.HistoricalPrice, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HistoricalPrice), args.Error(1)
}

func (m *MockPriceRepository) GetOn(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.result(m.Called(ctx, securityID, date))
}

func (m *MockPriceRepository) LatestBefore(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.result(m.Called(ctx, securityID, date))
}

func (m *MockPriceRepository) EarliestAfter(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return m.result(m.Called(ctx, securityID, date))
}

func (m *MockPriceRepository) Latest(ctx context.Context, securityID uuid.UUID) (*domain.HistoricalPrice, error) {
	return m.result(m.Called(ctx, securityID))
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

// MockTransactionRepository is a mock implementation of TransactionRepository for testing
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByIdempotencyKey(ctx context.Context, portfolioID uuid.UUID, key string) (*domain.Transaction, error) {
	args := m.Called(ctx, portfolioID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]*domain.Transaction, error) {
	args := m.Called(ctx, portfolioID, asOf)
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) LatestIDUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (ulid.ULID, error) {
	args := m.Called(ctx, portfolioID, asOf)
	return args.Get(0).(ulid.ULID), args.Error(1)
}

func (m *MockTransactionRepository) ListCashFlows(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.Transaction, error) {
	args := m.Called(ctx, portfolioID, from, to)
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) LatestBuy(ctx context.Context, portfolioID, securityID uuid.UUID, asOf time.Time) (*domain.Transaction, error) {
	args := m.Called(ctx, portfolioID, securityID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) First(ctx context.Context, portfolioID uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, portfolioID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

type fixture struct {
	prices       *MockPriceRepository
	securities   *MockSecurityRepository
	transactions *MockTransactionRepository
	resolver     *Resolver
}

func newFixture() *fixture {
	f := &fixture{
		prices:       new(MockPriceRepository),
		securities:   new(MockSecurityRepository),
		transactions: new(MockTransactionRepository),
	}
	f.resolver = NewResolver(f.prices, f.securities, f.transactions, zerolog.Nop())
	return f
}

var (
	day         = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	securityID  = uuid.New()
	portfolioID = uuid.New()
)

func price(value string, date time.Time) *domain.HistoricalPrice {
	return &domain.HistoricalPrice{ID: uuid.New(), SecurityID: securityID, Date: date, Price: decimal.RequireFromString(value)}
}

func (f *fixture) noHistory() {
	f.prices.On("GetOn", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
	f.prices.On("LatestBefore", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
}

func TestResolve_ExactDate(t *testing.T) {
	f := newFixture()
	f.prices.On("GetOn", mock.Anything, securityID, day).Return(price("101.5", day), nil)

	q := f.resolver.Resolve(context.Background(), securityID, day.Add(15*time.Hour), portfolioID)

	assert.Equal(t, "101.5", q.Price.String())
	assert.Equal(t, domain.PriceSourceExactDate, q.Source)
	f.prices.AssertNotCalled(t, "LatestBefore", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_LatestBefore(t *testing.T) {
	f := newFixture()
	f.prices.On("GetOn", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
	f.prices.On("LatestBefore", mock.Anything, securityID, day).Return(price("99", day.AddDate(0, 0, -3)), nil)

	q := f.resolver.Resolve(context.Background(), securityID, day, portfolioID)

	assert.Equal(t, "99", q.Price.String())
	assert.Equal(t, domain.PriceSourceLatestHistorical, q.Source)
}

func TestResolve_PortfolioAcquisition(t *testing.T) {
	f := newFixture()
	f.noHistory()
	buy := &domain.Transaction{
		Type:          domain.TransactionTypeBuy,
		ExecutedPrice: decimal.NewNullDecimal(decimal.RequireFromString("87.25")),
	}
	f.transactions.On("LatestBuy", mock.Anything, portfolioID, securityID, domain.EndOfDay(day)).Return(buy, nil)

	q := f.resolver.Resolve(context.Background(), securityID, day, portfolioID)

	assert.Equal(t, "87.25", q.Price.String())
	assert.Equal(t, domain.PriceSourcePortfolioAcquisition, q.Source)
}

func TestResolve_NearestPrefersPastOnTie(t *testing.T) {
	tests := []struct {
		name     string
		after    *domain.HistoricalPrice
		expected string
	}{
		{name: "future is closer", after: price("120", day.AddDate(0, 0, 1)), expected: "120"},
		{name: "tie goes to the past", after: price("120", day.AddDate(0, 0, 2)), expected: "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.prices.On("GetOn", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
			// the first before-lookup misses, the nearest tier sees a past price two days back
			f.prices.On("LatestBefore", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound).Once()
			f.prices.On("LatestBefore", mock.Anything, securityID, day).Return(price("80", day.AddDate(0, 0, -2)), nil).Once()
			f.prices.On("EarliestAfter", mock.Anything, securityID, day).Return(tt.after, nil)

			q := f.resolver.Resolve(context.Background(), securityID, day, uuid.Nil)

			assert.Equal(t, tt.expected, q.Price.String())
			assert.Equal(t, domain.PriceSourceNearestHistorical, q.Source)
			f.transactions.AssertNotCalled(t, "LatestBuy", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestResolve_CurrentPriceThenLatestThenZero(t *testing.T) {
	t.Run("current price", func(t *testing.T) {
		f := newFixture()
		f.noHistory()
		f.transactions.On("LatestBuy", mock.Anything, portfolioID, securityID, mock.Anything).Return(nil, domain.ErrNotFound)
		f.prices.On("EarliestAfter", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
		f.securities.On("GetByID", mock.Anything, securityID).
			Return(&domain.Security{ID: securityID, CurrentPrice: decimal.NewFromInt(55)}, nil)

		q := f.resolver.Resolve(context.Background(), securityID, day, portfolioID)

		assert.Equal(t, "55", q.Price.String())
		assert.Equal(t, domain.PriceSourceCurrentPrice, q.Source)
	})

	t.Run("latest of any date", func(t *testing.T) {
		f := newFixture()
		f.noHistory()
		f.prices.On("EarliestAfter", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
		f.securities.On("GetByID", mock.Anything, securityID).
			Return(&domain.Security{ID: securityID, CurrentPrice: decimal.Zero}, nil)
		f.prices.On("Latest", mock.Anything, securityID).Return(price("42", day.AddDate(-1, 0, 0)), nil)

		q := f.resolver.Resolve(context.Background(), securityID, day, uuid.Nil)

		assert.Equal(t, "42", q.Price.String())
		assert.Equal(t, domain.PriceSourceHistoricalFallback, q.Source)
	})

	t.Run("error fallback", func(t *testing.T) {
		f := newFixture()
		f.noHistory()
		f.prices.On("EarliestAfter", mock.Anything, securityID, day).Return(nil, domain.ErrNotFound)
		f.securities.On("GetByID", mock.Anything, securityID).Return(nil, domain.ErrNotFound)
		f.prices.On("Latest", mock.Anything, securityID).Return(nil, domain.ErrNotFound)

		q := f.resolver.Resolve(context.Background(), securityID, day, uuid.Nil)

		assert.True(t, q.Price.IsZero())
		assert.Equal(t, domain.PriceSourceErrorFallback, q.Source)
		assert.False(t, q.Source.Reliable())
	})
}
