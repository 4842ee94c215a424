package domain

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Round2 rounds a money amount to cents, half away from zero
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Round4 rounds a ratio to four decimal places
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// ValidateCurrency checks that code is a known upper-case ISO 4217 code
func ValidateCurrency(code string) error {
	if code == "" || code != strings.ToUpper(code) {
		return ErrInvalidCurrency
	}
	if money.GetCurrency(code) == nil {
		return ErrInvalidCurrency
	}
	return nil
}

// DateOf returns the UTC calendar date of t at midnight
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last representable instant of the calendar date of t.
// Replays "as of date D" include every transaction up to this instant.
func EndOfDay(t time.Time) time.Time {
	return DateOf(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
