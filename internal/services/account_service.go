package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
	"github.com/ruralpay/banking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	maxOwnerNameLength       = 100
	maxAccountNumberAttempts = 3
)

type CreateAccountInput struct {
	OwnerName string
	Balance   decimal.Decimal
}

// AccountService opens and reads accounts. Balances change only through the
// TransactionProcessor.
type AccountService struct {
	uow       repository.UnitOfWorkFactory
	logger    *logrus.Logger
	timeout   time.Duration
	now       func() time.Time
	newNumber func() uuid.UUID
}

func NewAccountService(uow repository.UnitOfWorkFactory, logger *logrus.Logger, timeout time.Duration) *AccountService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AccountService{uow: uow, logger: logger, timeout: timeout, now: models.Now, newNumber: uuid.New}
}

func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	owner := strings.TrimSpace(in.OwnerName)
	if owner == "" {
		return nil, models.NewValidationError("owner name must not be blank")
	}
	if len([]rune(owner)) > maxOwnerNameLength {
		return nil, models.NewValidationError(fmt.Sprintf("owner name must be at most %d characters", maxOwnerNameLength))
	}
	if err := models.ValidateBalance(in.Balance); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		created *models.Account
		err     error
	)
	// draw a new account number on collision
	for attempt := 0; attempt < maxAccountNumberAttempts; attempt++ {
		created, err = s.create(ctx, owner, in.Balance)
		if !errors.Is(err, repository.ErrDuplicateAccount) {
			break
		}
		s.logger.WithField("attempt", attempt+1).Warn("Account number collision, drawing a new one")
	}
	if errors.Is(err, repository.ErrDuplicateAccount) {
		return nil, models.NewConcurrencyConflictError("could not allocate a unique account number", err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"account": created.AccountNumber,
		"balance": created.Balance.String(),
	}).Info("Account created")
	return created, nil
}

func (s *AccountService) create(ctx context.Context, owner string, balance decimal.Decimal) (*models.Account, error) {
	work, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, storageFault(err)
	}
	defer work.Rollback()

	now := s.now()
	created, err := work.Accounts().Create(ctx, &models.Account{
		AccountNumber: s.newNumber(),
		OwnerName:     owner,
		Balance:       balance,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, repository.ErrDuplicateAccount) {
		return nil, err
	}
	if err != nil {
		return nil, storageFault(err)
	}
	if err := work.Commit(); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, err
		}
		return nil, storageFault(err)
	}
	return created, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	work, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, storageFault(err)
	}
	defer work.Rollback()

	account, err := work.Accounts().Find(ctx, accountNumber)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, models.NewNotFoundError(fmt.Sprintf("account with account number: %s not found", accountNumber))
	}
	if err != nil {
		return nil, storageFault(err)
	}
	return account, nil
}
