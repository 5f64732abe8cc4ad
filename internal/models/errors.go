package models

import "errors"

// Error kinds returned by the ledger core. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStorageFault        = errors.New("storage fault")
)

// LedgerError carries one of the error kinds above plus a caller-facing message.
type LedgerError struct {
	Kind    error
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	return target == e.Kind
}

func NewValidationError(msg string) error {
	return &LedgerError{Kind: ErrValidation, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &LedgerError{Kind: ErrNotFound, Message: msg}
}

func NewInsufficientFundsError() error {
	return &LedgerError{Kind: ErrInsufficientFunds, Message: "insufficient funds"}
}

func NewConcurrencyConflictError(msg string, cause error) error {
	return &LedgerError{Kind: ErrConcurrencyConflict, Message: msg, Err: cause}
}

func NewStorageFault(msg string, cause error) error {
	return &LedgerError{Kind: ErrStorageFault, Message: msg, Err: cause}
}
