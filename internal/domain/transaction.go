package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger operation
type TransactionType string

const (
	TransactionTypeBuy        TransactionType = "BUY"
	TransactionTypeSell       TransactionType = "SELL"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// ParseTransactionType converts a wire value into a TransactionType
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TransactionTypeBuy, TransactionTypeSell, TransactionTypeDeposit, TransactionTypeWithdrawal:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedTransactionType, s)
}

// IsTrade reports whether the type moves shares
func (t TransactionType) IsTrade() bool {
	return t == TransactionTypeBuy || t == TransactionTypeSell
}

// Operation is the closed set of requests the transaction engine executes.
// Only Buy, Sell, Deposit and Withdrawal implement it.
type Operation interface {
	Type() TransactionType
	validate() error
}

// Buy purchases Quantity shares of SecurityID at the current market price
type Buy struct {
	SecurityID uuid.UUID
	Quantity   int64
}

// Sell disposes of Quantity shares of SecurityID at the current market price
type Sell struct {
	SecurityID uuid.UUID
	Quantity   int64
}

// Deposit adds Amount (base currency) to the portfolio's cash
type Deposit struct {
	Amount decimal.Decimal
}

// Withdrawal removes Amount (base currency) from the portfolio's cash
type Withdrawal struct {
	Amount decimal.Decimal
}

func (Buy) Type() TransactionType        { return TransactionTypeBuy }
func (Sell) Type() TransactionType       { return TransactionTypeSell }
func (Deposit) Type() TransactionType    { return TransactionTypeDeposit }
func (Withdrawal) Type() TransactionType { return TransactionTypeWithdrawal }

func (o Buy) validate() error        { return validateTrade(o.SecurityID, o.Quantity) }
func (o Sell) validate() error       { return validateTrade(o.SecurityID, o.Quantity) }
func (o Deposit) validate() error    { return validateCash(o.Amount) }
func (o Withdrawal) validate() error { return validateCash(o.Amount) }

func validateTrade(securityID uuid.UUID, quantity int64) error {
	if securityID == uuid.Nil {
		return fmt.Errorf("%w: security is required for trades", ErrInvalidSecurity)
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func validateCash(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(Round2(amount)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}

// TransactionRequest is what the request layer hands to the transaction engine.
// Prices, rates and timestamps are never part of a request.
type TransactionRequest struct {
	PortfolioID    uuid.UUID
	IdempotencyKey string
	Operation      Operation
}

// Validate performs structural validation only
func (r TransactionRequest) Validate() error {
	if r.PortfolioID == uuid.Nil {
		return fmt.Errorf("%w: portfolio is required", ErrInvalidPortfolio)
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return errors.New("idempotency key is required")
	}
	if len(r.IdempotencyKey) > 255 {
		return errors.New("idempotency key is too long")
	}
	if r.Operation == nil {
		return ErrUnsupportedTransactionType
	}
	return r.Operation.validate()
}

// RequestFields is the loosely typed shape a request arrives in
type RequestFields struct {
	PortfolioID    uuid.UUID
	IdempotencyKey string
	Type           string
	Amount         *decimal.Decimal
	SecurityID     *uuid.UUID
	Quantity       *int64
}

// NewTransactionRequest maps loosely typed fields onto the closed Operation set.
// Cash operations must not carry a security and trades must not carry an amount.
func NewTransactionRequest(f RequestFields) (TransactionRequest, error) {
	txType, err := ParseTransactionType(f.Type)
	if err != nil {
		return TransactionRequest{}, err
	}

	req := TransactionRequest{PortfolioID: f.PortfolioID, IdempotencyKey: f.IdempotencyKey}
	if txType.IsTrade() {
		if f.Amount != nil {
			return TransactionRequest{}, fmt.Errorf("%w: amount is computed for trades", ErrInvalidAmount)
		}
		if f.SecurityID == nil {
			return TransactionRequest{}, fmt.Errorf("%w: security is required for trades", ErrInvalidSecurity)
		}
		if f.Quantity == nil {
			return TransactionRequest{}, ErrInvalidQuantity
		}
		if txType == TransactionTypeBuy {
			req.Operation = Buy{SecurityID: *f.SecurityID, Quantity: *f.Quantity}
		} else {
			req.Operation = Sell{SecurityID: *f.SecurityID, Quantity: *f.Quantity}
		}
	} else {
		if f.SecurityID != nil {
			return TransactionRequest{}, fmt.Errorf("%w: security must be empty for cash transactions", ErrInvalidSecurity)
		}
		if f.Quantity != nil {
			return TransactionRequest{}, fmt.Errorf("%w: quantity must be empty for cash transactions", ErrInvalidQuantity)
		}
		if f.Amount == nil {
			return TransactionRequest{}, ErrInvalidAmount
		}
		if txType == TransactionTypeDeposit {
			req.Operation = Deposit{Amount: *f.Amount}
		} else {
			req.Operation = Withdrawal{Amount: *f.Amount}
		}
	}

	return req, req.Validate()
}

// Transaction is an executed, append-only ledger record.
// Cash transactions carry Amount; trades carry SecurityID, Quantity and ExecutedPrice.
type Transaction struct {
	ID               ulid.ULID
	PortfolioID      uuid.UUID
	IdempotencyKey   string
	Type             TransactionType
	Amount           decimal.Decimal // cash transactions only, base currency
	SecurityID       *uuid.UUID
	Quantity         int64
	ExecutedPrice    decimal.NullDecimal // per share, security currency
	SecurityCurrency string
	FXRate           decimal.NullDecimal // base units per security currency unit
	FXRateType       FXRateType
	Timestamp        time.Time
}

// Validate ensures the transaction is a complete execution record.
// A trade without a captured execution price is rejected, so only the engine can produce valid trades.
func (t *Transaction) Validate() error {
	if t.ID == (ulid.ULID{}) {
		return errors.New("transaction id is required")
	}
	if t.PortfolioID == uuid.Nil {
		return fmt.Errorf("%w: portfolio is required", ErrInvalidPortfolio)
	}
	if strings.TrimSpace(t.IdempotencyKey) == "" {
		return errors.New("idempotency key is required")
	}
	if t.Timestamp.IsZero() {
		return errors.New("transaction timestamp is required")
	}

	switch t.Type {
	case TransactionTypeBuy, TransactionTypeSell:
		if err := validateTrade(derefUUID(t.SecurityID), t.Quantity); err != nil {
			return err
		}
		if !t.Amount.IsZero() {
			return fmt.Errorf("%w: amount is computed for trades", ErrInvalidAmount)
		}
		if !t.ExecutedPrice.Valid || !t.ExecutedPrice.Decimal.IsPositive() {
			return errors.New("executed price must be captured at execution")
		}
		if ValidateCurrency(t.SecurityCurrency) != nil {
			return fmt.Errorf("%w: security currency is required for trades", ErrInvalidSecurity)
		}
	case TransactionTypeDeposit, TransactionTypeWithdrawal:
		if t.SecurityID != nil {
			return fmt.Errorf("%w: security must be empty for cash transactions", ErrInvalidSecurity)
		}
		if t.Quantity != 0 {
			return fmt.Errorf("%w: quantity must be empty for cash transactions", ErrInvalidQuantity)
		}
		if t.ExecutedPrice.Valid {
			return errors.New("cash transactions have no executed price")
		}
		if err := validateCash(t.Amount); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedTransactionType, t.Type)
	}

	if t.FXRate.Valid {
		if !t.FXRate.Decimal.IsPositive() {
			return errors.New("fx rate must be positive")
		}
		if t.FXRateType == "" {
			return errors.New("fx rate type is required when an fx rate is recorded")
		}
	}
	return nil
}

// NativeAmount is the gross trade value in the security's currency
func (t *Transaction) NativeAmount() decimal.Decimal {
	if !t.Type.IsTrade() {
		return t.Amount
	}
	return Round2(decimal.NewFromInt(t.Quantity).Mul(t.ExecutedPrice.Decimal))
}

// Rate returns the recorded conversion rate, 1 when no conversion applied
func (t *Transaction) Rate() decimal.Decimal {
	if t.FXRate.Valid {
		return t.FXRate.Decimal
	}
	return decimal.NewFromInt(1)
}

// BaseAmount is the gross value of the transaction in the portfolio's base currency
func (t *Transaction) BaseAmount() decimal.Decimal {
	if !t.Type.IsTrade() {
		return t.Amount
	}
	return Round2(t.NativeAmount().Mul(t.Rate()))
}

// BasePrice is the per-share execution price in the portfolio's base currency
func (t *Transaction) BasePrice() decimal.Decimal {
	return Round2(t.ExecutedPrice.Decimal.Mul(t.Rate()))
}

// CashEffect is the signed change this transaction made to the cash balance
func (t *Transaction) CashEffect() decimal.Decimal {
	switch t.Type {
	case TransactionTypeDeposit, TransactionTypeSell:
		return t.BaseAmount()
	case TransactionTypeWithdrawal, TransactionTypeBuy:
		return t.BaseAmount().Neg()
	}
	return decimal.Zero
}

// IsCashFlow reports whether the transaction moves money across the portfolio boundary
func (t *Transaction) IsCashFlow() bool {
	return t.Type == TransactionTypeDeposit || t.Type == TransactionTypeWithdrawal
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
