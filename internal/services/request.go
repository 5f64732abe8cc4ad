package services

import (
	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
	"github.com/shopspring/decimal"
)

// MovementRequest is one of DepositRequest, WithdrawRequest or TransferRequest.
type MovementRequest interface {
	Type() models.TransactionType
	Value() decimal.Decimal
	validate() error
}

type DepositRequest struct {
	To     uuid.UUID
	Amount decimal.Decimal
}

type WithdrawRequest struct {
	From   uuid.UUID
	Amount decimal.Decimal
}

type TransferRequest struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount decimal.Decimal
}

func (r DepositRequest) Type() models.TransactionType  { return models.TransactionTypeDeposit }
func (r WithdrawRequest) Type() models.TransactionType { return models.TransactionTypeWithdraw }
func (r TransferRequest) Type() models.TransactionType { return models.TransactionTypeTransfer }

func (r DepositRequest) Value() decimal.Decimal  { return r.Amount }
func (r WithdrawRequest) Value() decimal.Decimal { return r.Amount }
func (r TransferRequest) Value() decimal.Decimal { return r.Amount }

func (r DepositRequest) validate() error {
	if r.To == uuid.Nil {
		return errInvalidCombination
	}
	return models.ValidateAmount(r.Amount)
}

func (r WithdrawRequest) validate() error {
	if r.From == uuid.Nil {
		return errInvalidCombination
	}
	return models.ValidateAmount(r.Amount)
}

func (r TransferRequest) validate() error {
	if r.From == uuid.Nil || r.To == uuid.Nil {
		return errInvalidCombination
	}
	if r.From == r.To {
		return models.NewValidationError("source and target accounts must be different")
	}
	return models.ValidateAmount(r.Amount)
}

var errInvalidCombination = models.NewValidationError("invalid account number combination for type")

// NewMovementRequest builds the typed request for txType from the wire shape.
// Exactly the account references txType needs must be present.
func NewMovementRequest(txType models.TransactionType, from, to *uuid.UUID, amount decimal.Decimal) (MovementRequest, error) {
	var req MovementRequest
	switch txType {
	case models.TransactionTypeDeposit:
		if from != nil || to == nil {
			return nil, errInvalidCombination
		}
		req = DepositRequest{To: *to, Amount: amount}
	case models.TransactionTypeWithdraw:
		if from == nil || to != nil {
			return nil, errInvalidCombination
		}
		req = WithdrawRequest{From: *from, Amount: amount}
	case models.TransactionTypeTransfer:
		if from == nil || to == nil {
			return nil, errInvalidCombination
		}
		req = TransferRequest{From: *from, To: *to, Amount: amount}
	default:
		return nil, models.NewValidationError("invalid transaction type")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}
