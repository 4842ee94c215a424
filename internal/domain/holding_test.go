package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name        string
		oldQuantity int64
		oldAverage  string
		quantity    int64
		price       string
		want        string
	}{
		{"First purchase takes the price", 0, "0", 10, "100.00", "100.00"},
		{"Equal lots average the prices", 10, "100.00", 10, "120.00", "110.00"},
		{"Weighted by quantity", 100, "50.00", 50, "80.00", "60.00"},
		{"Rounded to cents", 2, "10.00", 1, "10.01", "10.00"},
		{"Rounded half up to cents on exact half", 1, "10.00", 1, "10.01", "10.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(tt.oldQuantity, decimal.RequireFromString(tt.oldAverage), tt.quantity, decimal.RequireFromString(tt.price))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestPosition_BuySell(t *testing.T) {
	p, err := Position{}.Buy(10, decimal.NewFromInt(100))
	require.NoError(t, err)
	p, err = p.Buy(30, decimal.NewFromInt(120))
	require.NoError(t, err)
	assert.Equal(t, int64(40), p.Quantity)
	assert.Equal(t, "115.00", p.AveragePrice.StringFixed(2))

	p, err = p.Sell(15)
	require.NoError(t, err)
	assert.Equal(t, int64(25), p.Quantity)
	assert.Equal(t, "115.00", p.AveragePrice.StringFixed(2))

	_, err = p.Sell(26)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = Position{}.Sell(1)
	assert.ErrorIs(t, err, ErrNoSuchHolding)

	_, err = p.Buy(0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestHolding_ApplyPurchaseAndSale(t *testing.T) {
	first := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)
	reopened := later.Add(48 * time.Hour)

	h := &Holding{ID: uuid.New(), PortfolioID: uuid.New(), SecurityID: uuid.New()}
	require.NoError(t, h.ApplyPurchase(10, decimal.NewFromInt(100), first))
	assert.True(t, h.IsActive)
	assert.Equal(t, first, h.AcquiredAt)

	require.NoError(t, h.ApplyPurchase(10, decimal.NewFromInt(200), later))
	assert.Equal(t, first, h.AcquiredAt, "acquisition date stays with the oldest open lot")
	assert.Equal(t, "150.00", h.AveragePurchasePrice.StringFixed(2))

	require.NoError(t, h.ApplySale(20, later))
	assert.False(t, h.IsActive)
	assert.Equal(t, int64(0), h.Quantity)
	assert.Equal(t, "150.00", h.AveragePurchasePrice.StringFixed(2), "average is kept for audit")
	assert.NoError(t, h.Validate())

	assert.ErrorIs(t, h.ApplySale(1, later), ErrInsufficientShares, "a closed holding was held before")

	require.NoError(t, h.ApplyPurchase(5, decimal.NewFromInt(90), reopened))
	assert.True(t, h.IsActive)
	assert.Equal(t, reopened, h.AcquiredAt)
	assert.Equal(t, "90.00", h.AveragePurchasePrice.StringFixed(2), "a reopened position starts a fresh average")
}

func TestHolding_Validate(t *testing.T) {
	h := &Holding{PortfolioID: uuid.New(), SecurityID: uuid.New(), Quantity: 0, IsActive: true}
	assert.Error(t, h.Validate())

	h = &Holding{PortfolioID: uuid.New(), SecurityID: uuid.New(), Quantity: 5, IsActive: true}
	assert.EqualError(t, h.Validate(), "average purchase price must be positive while shares are held")
}
