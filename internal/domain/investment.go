package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// HistoricalPrice is the closing price of a security on a calendar date,
// in the security's own currency. One row per (security, date).
type HistoricalPrice struct {
	ID         uuid.UUID
	SecurityID uuid.UUID
	Date       time.Time
	Price      decimal.Decimal
}

// PriceSource tags which fallback tier produced a historical price
type PriceSource string

const (
	PriceSourceExactDate            PriceSource = "exact_date"
	PriceSourceLatestHistorical     PriceSource = "latest_historical"
	PriceSourcePortfolioAcquisition PriceSource = "portfolio_acquisition"
	PriceSourceNearestHistorical    PriceSource = "nearest_historical"
	PriceSourceCurrentPrice         PriceSource = "current_price_fallback"
	PriceSourceHistoricalFallback   PriceSource = "historical_fallback"
	PriceSourceErrorFallback        PriceSource = "error_fallback"
)

// Reliable reports whether the price came from data rather than the zero fallback
func (s PriceSource) Reliable() bool {
	return s != PriceSourceErrorFallback
}

// RealizedPNL is the immutable profit or loss booked by one SELL.
// Prices are per share in the portfolio's base currency.
type RealizedPNL struct {
	ID              uuid.UUID
	PortfolioID     uuid.UUID
	TransactionID   ulid.ULID
	SecurityID      uuid.UUID
	Quantity        int64
	PurchasePrice   decimal.Decimal
	SellPrice       decimal.Decimal
	PNL             decimal.Decimal
	AcquisitionDate time.Time
	RealizedAt      time.Time
}

// NewRealizedPNL books the result of selling quantity shares at sellPrice against averagePrice.
// Logic: pnl = (sellPrice - averagePrice) * quantity, rounded to cents
func NewRealizedPNL(sale *Transaction, averagePrice decimal.Decimal, acquiredAt time.Time) *RealizedPNL {
	sellPrice := sale.BasePrice()
	return &RealizedPNL{
		ID:              uuid.New(),
		PortfolioID:     sale.PortfolioID,
		TransactionID:   sale.ID,
		SecurityID:      derefUUID(sale.SecurityID),
		Quantity:        sale.Quantity,
		PurchasePrice:   averagePrice,
		SellPrice:       sellPrice,
		PNL:             Round2(sellPrice.Sub(averagePrice).Mul(decimal.NewFromInt(sale.Quantity))),
		AcquisitionDate: acquiredAt,
		RealizedAt:      sale.Timestamp,
	}
}

// CheckImmutable fails if any field differs from the stored record
func (r *RealizedPNL) CheckImmutable(original *RealizedPNL) error {
	same := r.ID == original.ID &&
		r.PortfolioID == original.PortfolioID &&
		r.TransactionID == original.TransactionID &&
		r.SecurityID == original.SecurityID &&
		r.Quantity == original.Quantity &&
		r.PurchasePrice.Equal(original.PurchasePrice) &&
		r.SellPrice.Equal(original.SellPrice) &&
		r.PNL.Equal(original.PNL) &&
		r.AcquisitionDate.Equal(original.AcquisitionDate) &&
		r.RealizedAt.Equal(original.RealizedAt)
	if !same {
		return ErrImmutableRecord
	}
	return nil
}

// PortfolioPerformance holds running cash-flow totals and the last computed return
type PortfolioPerformance struct {
	PortfolioID        uuid.UUID
	TotalDeposits      decimal.Decimal
	TotalWithdrawals   decimal.Decimal
	TimeWeightedReturn decimal.Decimal // annualized, 4 decimal places
	LastUpdated        time.Time
}

// RecordCashFlow adds a deposit or withdrawal to the running totals
func (p *PortfolioPerformance) RecordCashFlow(t *Transaction) {
	switch t.Type {
	case TransactionTypeDeposit:
		p.TotalDeposits = Round2(p.TotalDeposits.Add(t.Amount))
	case TransactionTypeWithdrawal:
		p.TotalWithdrawals = Round2(p.TotalWithdrawals.Add(t.Amount))
	default:
		return
	}
	p.LastUpdated = t.Timestamp
}

// NetContributions is deposits minus withdrawals
func (p *PortfolioPerformance) NetContributions() decimal.Decimal {
	return p.TotalDeposits.Sub(p.TotalWithdrawals)
}
