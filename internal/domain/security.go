package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Security is a tradable instrument. CurrentPrice and Currency are maintained
// by the market-data collaborator; the ledger only reads them.
type Security struct {
	ID           uuid.UUID
	Symbol       string
	Name         string
	Currency     string
	CurrentPrice decimal.Decimal
	IsActive     bool
}

// Tradable returns ErrInvalidSecurity unless the security can be bought or sold now
func (s *Security) Tradable() error {
	if !s.IsActive {
		return fmt.Errorf("%w: %s is inactive", ErrInvalidSecurity, s.Symbol)
	}
	if ValidateCurrency(s.Currency) != nil {
		return fmt.Errorf("%w: %s has no valid currency", ErrInvalidSecurity, s.Symbol)
	}
	if !s.CurrentPrice.IsPositive() {
		return fmt.Errorf("%w: %s has no current price", ErrInvalidSecurity, s.Symbol)
	}
	return nil
}
