package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is the cost-basis record of one security inside one portfolio.
// Holdings are never deleted: a fully sold position stays with IsActive=false.
type Holding struct {
	ID                   uuid.UUID
	PortfolioID          uuid.UUID
	SecurityID           uuid.UUID
	Quantity             int64
	AveragePurchasePrice decimal.Decimal // base currency
	IsActive             bool
	AcquiredAt           time.Time // first purchase since the position was last opened
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Position is the quantity and average cost of a security, independent of storage.
// The live ledger and historical replay both move positions through Buy and Sell.
type Position struct {
	Quantity     int64
	AveragePrice decimal.Decimal
}

// WeightedAverage returns the average cost after adding quantity shares at price
// to a position of oldQuantity shares at oldAverage.
// Logic: (oldQuantity * oldAverage + quantity * price) / (oldQuantity + quantity), rounded to cents
func WeightedAverage(oldQuantity int64, oldAverage decimal.Decimal, quantity int64, price decimal.Decimal) decimal.Decimal {
	if oldQuantity <= 0 {
		return Round2(price)
	}
	oldCost := decimal.NewFromInt(oldQuantity).Mul(oldAverage)
	newCost := decimal.NewFromInt(quantity).Mul(price)
	total := decimal.NewFromInt(oldQuantity + quantity)
	return Round2(oldCost.Add(newCost).Div(total))
}

// Buy returns the position after purchasing quantity shares at price
func (p Position) Buy(quantity int64, price decimal.Decimal) (Position, error) {
	if quantity <= 0 {
		return p, ErrInvalidQuantity
	}
	return Position{
		Quantity:     p.Quantity + quantity,
		AveragePrice: WeightedAverage(p.Quantity, p.AveragePrice, quantity, price),
	}, nil
}

// Sell returns the position after selling quantity shares. The average is unchanged.
func (p Position) Sell(quantity int64) (Position, error) {
	if quantity <= 0 {
		return p, ErrInvalidQuantity
	}
	if p.Quantity <= 0 {
		return p, ErrNoSuchHolding
	}
	if quantity > p.Quantity {
		return p, ErrInsufficientShares
	}
	return Position{Quantity: p.Quantity - quantity, AveragePrice: p.AveragePrice}, nil
}

// Position returns the holding's current position, empty when inactive
func (h *Holding) Position() Position {
	if !h.IsActive {
		return Position{}
	}
	return Position{Quantity: h.Quantity, AveragePrice: h.AveragePurchasePrice}
}

// ApplyPurchase adds shares bought at price (base currency) at the given time.
// An inactive holding is reopened and its acquisition date reset.
func (h *Holding) ApplyPurchase(quantity int64, price decimal.Decimal, at time.Time) error {
	next, err := h.Position().Buy(quantity, price)
	if err != nil {
		return err
	}
	if !h.IsActive {
		h.AcquiredAt = at
	}
	h.Quantity = next.Quantity
	h.AveragePurchasePrice = next.AveragePrice
	h.IsActive = true
	h.UpdatedAt = at
	return nil
}

// ApplySale removes shares. The holding is deactivated once it reaches zero
// and a closed holding has no shares left to sell.
func (h *Holding) ApplySale(quantity int64, at time.Time) error {
	if !h.IsActive && quantity > 0 {
		return ErrInsufficientShares
	}
	next, err := h.Position().Sell(quantity)
	if err != nil {
		return err
	}
	h.Quantity = next.Quantity
	h.IsActive = next.Quantity > 0
	h.UpdatedAt = at
	return nil
}

// Validate ensures the holding adheres to domain rules
func (h *Holding) Validate() error {
	if h.PortfolioID == uuid.Nil || h.SecurityID == uuid.Nil {
		return errors.New("holding requires a portfolio and a security")
	}
	if h.Quantity < 0 {
		return errors.New("holding quantity cannot be negative")
	}
	if h.IsActive && h.Quantity == 0 {
		return errors.New("an active holding must have a positive quantity")
	}
	if h.Quantity > 0 && !h.AveragePurchasePrice.IsPositive() {
		return errors.New("average purchase price must be positive while shares are held")
	}
	return nil
}
