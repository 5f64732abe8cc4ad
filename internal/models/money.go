package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Monetary columns are NUMERIC(15,2).
const (
	Precision = 15
	Scale     = 2
)

// ValidateAmount checks that d is a positive monetary value that fits NUMERIC(15,2).
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return NewValidationError("transaction amount must be greater than zero")
	}
	return checkDigits(d)
}

// ValidateBalance is ValidateAmount with zero allowed.
func ValidateBalance(d decimal.Decimal) error {
	if d.IsNegative() {
		return NewValidationError("balance must not be negative")
	}
	return checkDigits(d)
}

func checkDigits(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(Scale)) {
		return NewValidationError(fmt.Sprintf("amount must have at most %d decimal places", Scale))
	}
	// integer part may use at most Precision-Scale digits
	limit := decimal.New(1, Precision-Scale)
	if d.Abs().GreaterThanOrEqual(limit) {
		return NewValidationError(fmt.Sprintf("amount must have at most %d digits", Precision))
	}
	return nil
}

// Now returns the ledger clock reading: UTC, truncated to what Postgres stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
