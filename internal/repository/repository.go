package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateAccount    = errors.New("account already exists")
	// ErrVersionConflict means the row changed since it was read, or the database
	// aborted the transaction to break a serialization conflict.
	ErrVersionConflict = errors.New("optimistic lock failed")
	ErrWorkClosed      = errors.New("unit of work already closed")
)

// AccountStore persists accounts keyed by account number. It enforces storage
// constraints only; business rules live in the services layer.
type AccountStore interface {
	Find(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error)
	// FindForUpdate reads the account and holds its lock until the unit of work closes.
	FindForUpdate(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	// Save writes a full snapshot, conditioned on account.Version being current.
	Save(ctx context.Context, account *models.Account) (*models.Account, error)
	// SaveBatch saves all accounts or none of them.
	SaveBatch(ctx context.Context, accounts []*models.Account) ([]*models.Account, error)
}

// TransactionLedger is append-only.
type TransactionLedger interface {
	Append(ctx context.Context, record *models.Transaction) (*models.Transaction, error)
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
}

// UnitOfWork groups reads and writes that commit or roll back together.
// Rollback after Commit is a no-op.
type UnitOfWork interface {
	Accounts() AccountStore
	Ledger() TransactionLedger
	Commit() error
	Rollback() error
}

type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
