package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Expected domain errors. Callers match them with errors.Is.
var (
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInsufficientShares         = errors.New("insufficient shares")
	ErrNoSuchHolding              = errors.New("no such holding")
	ErrInvalidSecurity            = errors.New("invalid security")
	ErrInvalidAmount              = errors.New("amount must be positive")
	ErrInvalidQuantity            = errors.New("quantity must be a positive integer")
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")
	ErrMissingValuationData       = errors.New("missing valuation data")
	ErrInvalidCurrency            = errors.New("invalid currency code")
	ErrInvalidPortfolio           = errors.New("invalid portfolio")
	ErrPortfolioDeleted           = errors.New("portfolio is deleted")
	ErrImmutableRecord            = errors.New("record is immutable")
)

// Storage errors surfaced by repositories.
var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("uniqueness conflict")
)

// LedgerError carries the context of a failed ledger operation so the
// request layer can render a message without re-reading state.
type LedgerError struct {
	Op          string
	PortfolioID uuid.UUID
	SecurityID  *uuid.UUID
	Quantity    int64
	Amount      decimal.Decimal
	Err         error
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s portfolio=%s", e.Op, e.PortfolioID)
	if e.SecurityID != nil {
		fmt.Fprintf(&b, " security=%s", e.SecurityID)
	}
	if e.Quantity != 0 {
		fmt.Fprintf(&b, " quantity=%d", e.Quantity)
	}
	if !e.Amount.IsZero() {
		fmt.Fprintf(&b, " amount=%s", e.Amount.StringFixed(2))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}
