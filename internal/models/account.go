package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a customer account. Balance is mutated only by the transaction processor.
type Account struct {
	ID            int64           `json:"id" db:"id"`
	AccountNumber uuid.UUID       `json:"accountNumber" db:"account_number"`
	OwnerName     string          `json:"ownerName" db:"owner_name"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Version       int             `json:"-" db:"version"` // for optimistic locking
	CreatedAt     time.Time       `json:"createDateTime" db:"created_at"`
	UpdatedAt     time.Time       `json:"updateDateTime" db:"updated_at"`
}

// HasSufficientFunds reports whether the account can pay amount.
func (a *Account) HasSufficientFunds(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Debit lowers the balance by amount and stamps now.
func (a *Account) Debit(amount decimal.Decimal, now time.Time) error {
	if !a.HasSufficientFunds(amount) {
		return NewInsufficientFundsError()
	}
	next := a.Balance.Sub(amount)
	if next.IsNegative() {
		return NewInsufficientFundsError()
	}
	a.Balance = next
	a.UpdatedAt = now
	return nil
}

// Credit raises the balance by amount and stamps now.
func (a *Account) Credit(amount decimal.Decimal, now time.Time) error {
	next := a.Balance.Add(amount)
	if err := ValidateBalance(next); err != nil {
		return NewValidationError("resulting balance exceeds the supported range")
	}
	a.Balance = next
	a.UpdatedAt = now
	return nil
}
