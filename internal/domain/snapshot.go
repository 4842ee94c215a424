package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailySnapshot is the valuation of a portfolio at the end of one calendar date.
// Re-running a snapshot for the same date replaces the row.
type DailySnapshot struct {
	ID              uuid.UUID
	PortfolioID     uuid.UUID
	Date            time.Time
	CashBalance     decimal.Decimal
	InvestmentValue decimal.Decimal
	TotalValue      decimal.Decimal
	TotalDeposits   decimal.Decimal
	CreatedAt       time.Time
}

// NewDailySnapshot builds a snapshot whose total is always cash plus investments
func NewDailySnapshot(portfolioID uuid.UUID, date time.Time, cash, investment, deposits decimal.Decimal) *DailySnapshot {
	cash = Round2(cash)
	investment = Round2(investment)
	return &DailySnapshot{
		ID:              uuid.New(),
		PortfolioID:     portfolioID,
		Date:            DateOf(date),
		CashBalance:     cash,
		InvestmentValue: investment,
		TotalValue:      cash.Add(investment),
		TotalDeposits:   Round2(deposits),
	}
}

// Validate ensures the snapshot adheres to domain rules
func (s *DailySnapshot) Validate() error {
	if s.PortfolioID == uuid.Nil {
		return errors.New("snapshot requires a portfolio")
	}
	if !s.Date.Equal(DateOf(s.Date)) {
		return errors.New("snapshot date must be a calendar date")
	}
	if !s.TotalValue.Equal(s.CashBalance.Add(s.InvestmentValue)) {
		return errors.New("total value must equal cash balance plus investment value")
	}
	return nil
}

// HoldingSnapshot is the valuation of one position inside a DailySnapshot
type HoldingSnapshot struct {
	ID           uuid.UUID
	PortfolioID  uuid.UUID
	SecurityID   uuid.UUID
	Date         time.Time
	Quantity     int64
	AveragePrice decimal.Decimal // base currency
	Price        decimal.Decimal // security currency
	PriceSource  PriceSource
	FXRate       decimal.Decimal
	Value        decimal.Decimal // base currency
}
