package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Portfolio is a user's investment account. Its cash balance is held in
// BaseCurrency and is only ever changed through the cash ledger.
type Portfolio struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Name         string
	BaseCurrency string
	CashBalance  decimal.Decimal
	IsDefault    bool
	IsDeleted    bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
}

// Validate ensures the portfolio adheres to domain rules
func (p *Portfolio) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrInvalidPortfolio)
	}
	if p.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner is required", ErrInvalidPortfolio)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPortfolio)
	}
	if err := ValidateCurrency(p.BaseCurrency); err != nil {
		return err
	}
	if p.CashBalance.IsNegative() {
		return fmt.Errorf("%w: cash balance cannot be negative", ErrInvalidPortfolio)
	}
	if p.IsDeleted && p.IsDefault {
		return fmt.Errorf("%w: a deleted portfolio cannot be the default", ErrInvalidPortfolio)
	}
	if p.IsDeleted != (p.DeletedAt != nil) {
		return fmt.Errorf("%w: deleted flag and timestamp must agree", ErrInvalidPortfolio)
	}
	return nil
}

// Active reports whether the portfolio accepts transactions
func (p *Portfolio) Active() bool {
	return !p.IsDeleted
}
