package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType names the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer:
		return true
	}
	return false
}

// Transaction is an immutable ledger record. Exactly the account references implied
// by Type are set: DEPOSIT has only To, WITHDRAW only From, TRANSFER both.
type Transaction struct {
	ID                int64           `json:"id" db:"id"`
	AccountNumberTo   *uuid.UUID      `json:"accountNumberTo" db:"account_number_to"`
	AccountNumberFrom *uuid.UUID      `json:"accountNumberFrom" db:"account_number_from"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Type              TransactionType `json:"transactionType" db:"type"`
	CreatedAt         time.Time       `json:"createDateTime" db:"created_at"`
}
