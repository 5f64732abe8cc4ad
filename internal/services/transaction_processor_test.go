package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openAccount(t *testing.T, store *repository.MemoryStore, balance string) uuid.UUID {
	t.Helper()
	logger, _ := test.NewNullLogger()
	account, err := NewAccountService(store, logger, time.Second).CreateAccount(context.Background(), CreateAccountInput{
		OwnerName: "John Doe",
		Balance:   dec(balance),
	})
	require.NoError(t, err)
	return account.AccountNumber
}

func balanceOf(t *testing.T, store *repository.MemoryStore, number uuid.UUID) decimal.Decimal {
	t.Helper()
	account, ok := store.Account(number)
	require.True(t, ok)
	return account.Balance
}

func newTestProcessor(factory repository.UnitOfWorkFactory) *TransactionProcessor {
	logger, _ := test.NewNullLogger()
	return NewTransactionProcessor(factory, nil, logger, ProcessorOptions{
		OperationTimeout: 2 * time.Second,
		MaxRetries:       3,
	})
}

func TestTransactionProcessor_Deposit(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "0.00")
	processor := newTestProcessor(store)

	record, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("100.00")})
	require.NoError(t, err)

	assert.True(t, balanceOf(t, store, acct).Equal(dec("100.00")))
	require.Len(t, store.Transactions(), 1)
	assert.Equal(t, models.TransactionTypeDeposit, record.Type)
	assert.Equal(t, acct, *record.AccountNumberTo)
	assert.Nil(t, record.AccountNumberFrom)
	assert.True(t, record.Amount.Equal(dec("100.00")))
	assert.NotZero(t, record.ID)
}

func TestTransactionProcessor_Withdraw(t *testing.T) {
	t.Run("successful withdrawal", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "100.00")
		processor := newTestProcessor(store)

		record, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: acct, Amount: dec("40.50")})
		require.NoError(t, err)

		assert.True(t, balanceOf(t, store, acct).Equal(dec("59.50")))
		assert.Equal(t, acct, *record.AccountNumberFrom)
		assert.Nil(t, record.AccountNumberTo)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "100.00")
		processor := newTestProcessor(store)

		record, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: acct, Amount: dec("150.00")})
		assert.Nil(t, record)
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.True(t, balanceOf(t, store, acct).Equal(dec("100.00")))
		assert.Empty(t, store.Transactions())
	})

	t.Run("withdraw whole balance", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "25.00")
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: acct, Amount: dec("25.00")})
		require.NoError(t, err)
		assert.True(t, balanceOf(t, store, acct).IsZero())
	})

	t.Run("unknown source", func(t *testing.T) {
		store := repository.NewMemoryStore()
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: uuid.New(), Amount: dec("1.00")})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.EqualError(t, err, "source account not found")
	})
}

func TestTransactionProcessor_Transfer(t *testing.T) {
	t.Run("conservation", func(t *testing.T) {
		store := repository.NewMemoryStore()
		from := openAccount(t, store, "80.00")
		to := openAccount(t, store, "20.00")
		processor := newTestProcessor(store)

		record, err := processor.CreateTransaction(context.Background(), TransferRequest{From: from, To: to, Amount: dec("30.25")})
		require.NoError(t, err)

		fromAfter, toAfter := balanceOf(t, store, from), balanceOf(t, store, to)
		assert.True(t, fromAfter.Equal(dec("49.75")))
		assert.True(t, toAfter.Equal(dec("50.25")))
		assert.True(t, fromAfter.Add(toAfter).Equal(dec("100.00")))
		assert.Equal(t, models.TransactionTypeTransfer, record.Type)
		assert.Equal(t, from, *record.AccountNumberFrom)
		assert.Equal(t, to, *record.AccountNumberTo)
	})

	t.Run("insufficient funds leaves balances unchanged", func(t *testing.T) {
		store := repository.NewMemoryStore()
		from := openAccount(t, store, "10.00")
		to := openAccount(t, store, "0.00")
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: from, To: to, Amount: dec("10.01")})
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.True(t, balanceOf(t, store, from).Equal(dec("10.00")))
		assert.True(t, balanceOf(t, store, to).IsZero())
		assert.Empty(t, store.Transactions())
	})

	t.Run("missing target is reported before missing source", func(t *testing.T) {
		store := repository.NewMemoryStore()
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: uuid.New(), To: uuid.New(), Amount: dec("1.00")})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.EqualError(t, err, "target account not found")
	})

	t.Run("missing source", func(t *testing.T) {
		store := repository.NewMemoryStore()
		to := openAccount(t, store, "0.00")
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: uuid.New(), To: to, Amount: dec("1.00")})
		assert.EqualError(t, err, "source account not found")
	})

	t.Run("self transfer is rejected", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "50.00")
		processor := newTestProcessor(store)

		_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: acct, To: acct, Amount: dec("10.00")})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.EqualError(t, err, "source and target accounts must be different")
		assert.True(t, balanceOf(t, store, acct).Equal(dec("50.00")))
		assert.Empty(t, store.Transactions())
	})
}

func TestTransactionProcessor_InvalidAmounts(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "50.00")
	processor := newTestProcessor(store)

	for _, amount := range []string{"0", "-5.00", "1.001", "10000000000000.00"} {
		t.Run(amount, func(t *testing.T) {
			_, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec(amount)})
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
	assert.True(t, balanceOf(t, store, acct).Equal(dec("50.00")))
	assert.Empty(t, store.Transactions())
}

func TestTransactionProcessor_LedgerMatchesAccountTimestamps(t *testing.T) {
	store := repository.NewMemoryStore()
	a := openAccount(t, store, "100.00")
	b := openAccount(t, store, "100.00")
	processor := newTestProcessor(store)
	ctx := context.Background()

	_, err := processor.CreateTransaction(ctx, DepositRequest{To: a, Amount: dec("5.00")})
	require.NoError(t, err)
	_, err = processor.CreateTransaction(ctx, WithdrawRequest{From: b, Amount: dec("5.00")})
	require.NoError(t, err)
	last, err := processor.CreateTransaction(ctx, TransferRequest{From: a, To: b, Amount: dec("1.00")})
	require.NoError(t, err)

	accountA, _ := store.Account(a)
	accountB, _ := store.Account(b)
	assert.Equal(t, last.CreatedAt, accountA.UpdatedAt)
	assert.Equal(t, last.CreatedAt, accountB.UpdatedAt)
}

func TestTransactionProcessor_ConcurrentWithdrawals(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "100.00")
	processor := newTestProcessor(store)

	const n = 15
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: acct, Amount: dec("10")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	assert.Equal(t, 5, insufficient)
	assert.True(t, balanceOf(t, store, acct).IsZero())
	assert.Len(t, store.Transactions(), 10)
}

func TestTransactionProcessor_OppositeTransfersDoNotDeadlock(t *testing.T) {
	store := repository.NewMemoryStore()
	a := openAccount(t, store, "100.00")
	b := openAccount(t, store, "100.00")
	processor := newTestProcessor(store)

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: a, To: b, Amount: dec("5")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: b, To: a, Amount: dec("5")})
			errs <- err
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite transfers did not complete")
	}
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.True(t, balanceOf(t, store, a).Equal(dec("100.00")))
	assert.True(t, balanceOf(t, store, b).Equal(dec("100.00")))
	assert.Len(t, store.Transactions(), 2*rounds)
}

func TestTransactionProcessor_FaultLeavesNoPartialState(t *testing.T) {
	store := repository.NewMemoryStore()
	from := openAccount(t, store, "100.00")
	to := openAccount(t, store, "0.00")
	processor := newTestProcessor(&faultyFactory{
		UnitOfWorkFactory: store,
		saveBatchErr:      errors.New("disk on fire"),
	})

	_, err := processor.CreateTransaction(context.Background(), TransferRequest{From: from, To: to, Amount: dec("60.00")})
	assert.ErrorIs(t, err, models.ErrStorageFault)
	assert.True(t, balanceOf(t, store, from).Equal(dec("100.00")))
	assert.True(t, balanceOf(t, store, to).IsZero())
	assert.Empty(t, store.Transactions())
}

func TestTransactionProcessor_Retries(t *testing.T) {
	conflict := fmt.Errorf("account: %w", repository.ErrVersionConflict)

	t.Run("succeeds after a conflict", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "10.00")
		factory := &faultyFactory{UnitOfWorkFactory: store, commitErrs: []error{conflict}}
		processor := newTestProcessor(factory)

		_, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("1.00")})
		require.NoError(t, err)
		assert.Equal(t, 2, factory.begun)
		assert.True(t, balanceOf(t, store, acct).Equal(dec("11.00")))
		assert.Len(t, store.Transactions(), 1)
	})

	t.Run("gives up when the budget is exhausted", func(t *testing.T) {
		store := repository.NewMemoryStore()
		acct := openAccount(t, store, "10.00")
		factory := &faultyFactory{UnitOfWorkFactory: store, commitErrs: []error{conflict, conflict, conflict}}
		processor := newTestProcessor(factory)

		_, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("1.00")})
		assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
		assert.ErrorIs(t, err, repository.ErrVersionConflict)
		assert.Equal(t, 3, factory.begun)
		assert.True(t, balanceOf(t, store, acct).Equal(dec("10.00")))
		assert.Empty(t, store.Transactions())
	})
}

func TestTransactionProcessor_Timeout(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "10.00")
	logger, _ := test.NewNullLogger()
	processor := NewTransactionProcessor(store, nil, logger, ProcessorOptions{OperationTimeout: 50 * time.Millisecond})

	// hold the account lock so the processor cannot acquire it
	work, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = work.Accounts().FindForUpdate(context.Background(), acct)
	require.NoError(t, err)
	defer work.Rollback()

	_, err = processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("1.00")})
	assert.ErrorIs(t, err, models.ErrStorageFault)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionProcessor_StallPastDeadlineRollsBack(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "10.00")
	logger, _ := test.NewNullLogger()
	processor := NewTransactionProcessor(&faultyFactory{
		UnitOfWorkFactory: store,
		appendDelay:       100 * time.Millisecond,
	}, nil, logger, ProcessorOptions{OperationTimeout: 20 * time.Millisecond})

	record, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("1.00")})
	assert.Nil(t, record)
	assert.ErrorIs(t, err, models.ErrStorageFault)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, balanceOf(t, store, acct).Equal(dec("10.00")))
	assert.Empty(t, store.Transactions())
}

func TestTransactionProcessor_PublishesSettlement(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "0.00")
	logger, _ := test.NewNullLogger()

	t.Run("committed record is published", func(t *testing.T) {
		publisher := new(MockSettlementPublisher)
		publisher.On("Publish", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
			return tx.Type == models.TransactionTypeDeposit
		})).Return(nil).Once()
		processor := NewTransactionProcessor(store, publisher, logger, ProcessorOptions{})

		_, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("3.00")})
		require.NoError(t, err)
		publisher.AssertExpectations(t)
	})

	t.Run("publish failure does not fail the transaction", func(t *testing.T) {
		publisher := new(MockSettlementPublisher)
		publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
		processor := NewTransactionProcessor(store, publisher, logger, ProcessorOptions{})

		record, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("3.00")})
		require.NoError(t, err)
		assert.NotNil(t, record)
		publisher.AssertExpectations(t)
	})

	t.Run("rejected request is not published", func(t *testing.T) {
		publisher := new(MockSettlementPublisher)
		processor := NewTransactionProcessor(store, publisher, logger, ProcessorOptions{})

		_, err := processor.CreateTransaction(context.Background(), WithdrawRequest{From: acct, Amount: dec("1000.00")})
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

type unknownRequest struct{ DepositRequest }

func TestTransactionProcessor_UnknownVariantPanics(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "0.00")
	processor := newTestProcessor(store)

	assert.Panics(t, func() {
		processor.CreateTransaction(context.Background(), unknownRequest{DepositRequest{To: acct, Amount: dec("1.00")}})
	})
}

func TestTransactionProcessor_GetTransaction(t *testing.T) {
	store := repository.NewMemoryStore()
	acct := openAccount(t, store, "0.00")
	processor := newTestProcessor(store)

	created, err := processor.CreateTransaction(context.Background(), DepositRequest{To: acct, Amount: dec("7.00")})
	require.NoError(t, err)

	found, err := processor.GetTransaction(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.Amount.Equal(dec("7.00")))

	_, err = processor.GetTransaction(context.Background(), created.ID+100)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
