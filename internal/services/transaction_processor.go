package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/audit"
	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/repository"
	"github.com/sirupsen/logrus"
)

// SettlementPublisher receives committed transactions.
type SettlementPublisher interface {
	Publish(ctx context.Context, record *models.Transaction) error
}

type ProcessorOptions struct {
	OperationTimeout time.Duration
	MaxRetries       int
}

// TransactionProcessor applies deposits, withdrawals and transfers. Each call reads
// the implicated accounts under lock, mutates them and appends the ledger record
// in a single unit of work.
type TransactionProcessor struct {
	uow        repository.UnitOfWorkFactory
	settlement SettlementPublisher
	audit      *audit.Logger
	logger     *logrus.Logger
	timeout    time.Duration
	maxRetries int
	now        func() time.Time
}

func NewTransactionProcessor(uow repository.UnitOfWorkFactory, settlement SettlementPublisher, logger *logrus.Logger, opts ProcessorOptions) *TransactionProcessor {
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TransactionProcessor{
		uow:        uow,
		settlement: settlement,
		audit:      audit.NewLogger(logger),
		logger:     logger,
		timeout:    timeout,
		maxRetries: maxRetries,
		now:        models.Now,
	}
}

// CreateTransaction executes req and returns the committed ledger record.
func (p *TransactionProcessor) CreateTransaction(ctx context.Context, req MovementRequest) (*models.Transaction, error) {
	log := p.logger.WithFields(logrus.Fields{
		"transaction_type": req.Type(),
		"amount":           req.Value().String(),
	})
	log.Info("Creating transaction")

	if err := req.validate(); err != nil {
		p.auditFailure(req, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		record *models.Transaction
		err    error
	)
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		record, err = p.execute(ctx, req)
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}
		log.WithField("attempt", attempt).WithError(err).Warn("Concurrent update detected, retrying")
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		err = models.NewConcurrencyConflictError(
			fmt.Sprintf("gave up after %d attempts", p.maxRetries), err)
	}
	if err != nil {
		log.WithError(err).Error("Transaction failed")
		p.auditFailure(req, err)
		return nil, err
	}

	log.WithField("transaction_id", record.ID).Info("Transaction created successfully")
	p.audit.LogTransaction(record)

	if p.settlement != nil {
		if err := p.settlement.Publish(context.WithoutCancel(ctx), record); err != nil {
			log.WithError(err).Error("Failed to queue transaction for settlement")
		}
	}
	return record, nil
}

// GetTransaction reads a committed ledger record.
func (p *TransactionProcessor) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	work, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, storageFault(err)
	}
	defer work.Rollback()

	record, err := work.Ledger().FindByID(ctx, id)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, models.NewNotFoundError(fmt.Sprintf("transaction with id: %d not found", id))
	}
	if err != nil {
		return nil, storageFault(err)
	}
	return record, nil
}

// execute runs one attempt. A returned ErrVersionConflict means the attempt was
// rolled back and may be retried.
func (p *TransactionProcessor) execute(ctx context.Context, req MovementRequest) (*models.Transaction, error) {
	work, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, storageFault(err)
	}
	defer work.Rollback()

	now := p.now()
	var record *models.Transaction
	switch r := req.(type) {
	case DepositRequest:
		record, err = p.deposit(ctx, work, r, now)
	case WithdrawRequest:
		record, err = p.withdraw(ctx, work, r, now)
	case TransferRequest:
		record, err = p.transfer(ctx, work, r, now)
	default:
		panic(fmt.Sprintf("unsupported movement request %T", req))
	}
	if err != nil {
		return nil, err
	}

	// an expired deadline rolls the unit back, whatever the backend
	if err := ctx.Err(); err != nil {
		return nil, storageFault(err)
	}
	if err := work.Commit(); err != nil {
		return nil, storeError(err)
	}
	return record, nil
}

func (p *TransactionProcessor) deposit(ctx context.Context, work repository.UnitOfWork, r DepositRequest, now time.Time) (*models.Transaction, error) {
	to, err := p.lock(ctx, work, r.To, "target account not found")
	if err != nil {
		return nil, err
	}
	if err := to.Credit(r.Amount, now); err != nil {
		return nil, err
	}
	if _, err := work.Accounts().Save(ctx, to); err != nil {
		return nil, storeError(err)
	}
	return p.append(ctx, work, &models.Transaction{
		AccountNumberTo: &r.To,
		Amount:          r.Amount,
		Type:            models.TransactionTypeDeposit,
		CreatedAt:       now,
	})
}

func (p *TransactionProcessor) withdraw(ctx context.Context, work repository.UnitOfWork, r WithdrawRequest, now time.Time) (*models.Transaction, error) {
	from, err := p.lock(ctx, work, r.From, "source account not found")
	if err != nil {
		return nil, err
	}
	if err := from.Debit(r.Amount, now); err != nil {
		p.logger.WithFields(logrus.Fields{
			"account":   r.From,
			"balance":   from.Balance.String(),
			"requested": r.Amount.String(),
		}).Warn("Insufficient funds for withdrawal")
		return nil, err
	}
	if _, err := work.Accounts().Save(ctx, from); err != nil {
		return nil, storeError(err)
	}
	return p.append(ctx, work, &models.Transaction{
		AccountNumberFrom: &r.From,
		Amount:            r.Amount,
		Type:              models.TransactionTypeWithdraw,
		CreatedAt:         now,
	})
}

// transfer locks both accounts in ascending account-number order, whatever the
// direction of the request, so opposite transfers between one pair cannot deadlock.
// A missing target is reported before a missing source.
func (p *TransactionProcessor) transfer(ctx context.Context, work repository.UnitOfWork, r TransferRequest, now time.Time) (*models.Transaction, error) {
	first, second := r.From, r.To
	if first.String() > second.String() {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*models.Account, 2)
	for _, number := range []uuid.UUID{first, second} {
		account, err := work.Accounts().FindForUpdate(ctx, number)
		if errors.Is(err, repository.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}
		locked[number] = account
	}

	to, ok := locked[r.To]
	if !ok {
		return nil, models.NewNotFoundError("target account not found")
	}
	from, ok := locked[r.From]
	if !ok {
		return nil, models.NewNotFoundError("source account not found")
	}

	if err := from.Debit(r.Amount, now); err != nil {
		p.logger.WithFields(logrus.Fields{
			"account":   r.From,
			"balance":   from.Balance.String(),
			"requested": r.Amount.String(),
		}).Warn("Insufficient funds for transfer")
		return nil, err
	}
	if err := to.Credit(r.Amount, now); err != nil {
		return nil, err
	}

	if _, err := work.Accounts().SaveBatch(ctx, []*models.Account{from, to}); err != nil {
		return nil, storeError(err)
	}
	return p.append(ctx, work, &models.Transaction{
		AccountNumberTo:   &r.To,
		AccountNumberFrom: &r.From,
		Amount:            r.Amount,
		Type:              models.TransactionTypeTransfer,
		CreatedAt:         now,
	})
}

func (p *TransactionProcessor) lock(ctx context.Context, work repository.UnitOfWork, number uuid.UUID, missing string) (*models.Account, error) {
	account, err := work.Accounts().FindForUpdate(ctx, number)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, models.NewNotFoundError(missing)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return account, nil
}

func (p *TransactionProcessor) append(ctx context.Context, work repository.UnitOfWork, record *models.Transaction) (*models.Transaction, error) {
	appended, err := work.Ledger().Append(ctx, record)
	if err != nil {
		return nil, storeError(err)
	}
	return appended, nil
}

func (p *TransactionProcessor) auditFailure(req MovementRequest, err error) {
	var from, to string
	switch r := req.(type) {
	case DepositRequest:
		to = r.To.String()
	case WithdrawRequest:
		from = r.From.String()
	case TransferRequest:
		from, to = r.From.String(), r.To.String()
	}
	p.audit.LogError(req.Type(), from, to, req.Value().String(), err)
}

// storeError keeps version conflicts retryable and turns everything else into a
// StorageFault.
func storeError(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return err
	}
	return storageFault(err)
}

func storageFault(err error) error {
	return models.NewStorageFault("storage operation failed", err)
}
