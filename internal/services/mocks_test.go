package services

import (
	"context"
	"time"

	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockSettlementPublisher struct {
	mock.Mock
}

func (m *MockSettlementPublisher) Publish(ctx context.Context, record *models.Transaction) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// faultyFactory wraps a real factory and injects failures into the units of work
// it begins.
type faultyFactory struct {
	repository.UnitOfWorkFactory
	saveBatchErr error
	appendDelay  time.Duration
	commitErrs   []error
	begun        int
}

func (f *faultyFactory) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	work, err := f.UnitOfWorkFactory.Begin(ctx)
	if err != nil {
		return nil, err
	}
	var commitErr error
	if f.begun < len(f.commitErrs) {
		commitErr = f.commitErrs[f.begun]
	}
	f.begun++
	return &faultyWork{UnitOfWork: work, saveBatchErr: f.saveBatchErr, appendDelay: f.appendDelay, commitErr: commitErr}, nil
}

type faultyWork struct {
	repository.UnitOfWork
	saveBatchErr error
	appendDelay  time.Duration
	commitErr    error
}

func (w *faultyWork) Ledger() repository.TransactionLedger {
	return &slowLedger{TransactionLedger: w.UnitOfWork.Ledger(), delay: w.appendDelay}
}

func (w *faultyWork) Accounts() repository.AccountStore {
	return &faultyAccounts{AccountStore: w.UnitOfWork.Accounts(), saveBatchErr: w.saveBatchErr}
}

func (w *faultyWork) Commit() error {
	if w.commitErr != nil {
		w.UnitOfWork.Rollback()
		return w.commitErr
	}
	return w.UnitOfWork.Commit()
}

type faultyAccounts struct {
	repository.AccountStore
	saveBatchErr error
}

func (a *faultyAccounts) SaveBatch(ctx context.Context, accounts []*models.Account) ([]*models.Account, error) {
	if a.saveBatchErr != nil {
		return nil, a.saveBatchErr
	}
	return a.AccountStore.SaveBatch(ctx, accounts)
}

// slowLedger stalls Append without watching the context, like a storage call that
// does not honour cancellation.
type slowLedger struct {
	repository.TransactionLedger
	delay time.Duration
}

func (l *slowLedger) Append(ctx context.Context, record *models.Transaction) (*models.Transaction, error) {
	time.Sleep(l.delay)
	return l.TransactionLedger.Append(ctx, record)
}
