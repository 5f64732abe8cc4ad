package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ruralpay/banking/internal/models"
	"github.com/sirupsen/logrus"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresUnitOfWork opens one database transaction per unit of work.
type PostgresUnitOfWork struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewPostgresUnitOfWork(db *sql.DB, logger *logrus.Logger) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db, logger: logger}
}

func (u *PostgresUnitOfWork) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresWork{
		tx:       tx,
		accounts: &PostgresAccountStore{q: tx, logger: u.logger},
		ledger:   &PostgresLedger{q: tx},
	}, nil
}

type postgresWork struct {
	tx       *sql.Tx
	accounts *PostgresAccountStore
	ledger   *PostgresLedger
	closed   bool
}

func (w *postgresWork) Accounts() AccountStore   { return w.accounts }
func (w *postgresWork) Ledger() TransactionLedger { return w.ledger }

func (w *postgresWork) Commit() error {
	if w.closed {
		return ErrWorkClosed
	}
	w.closed = true
	if err := w.tx.Commit(); err != nil {
		return classify("failed to commit transaction", err)
	}
	return nil
}

func (w *postgresWork) Rollback() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// PostgresAccountStore implements AccountStore over the accounts table.
type PostgresAccountStore struct {
	q      querier
	logger *logrus.Logger
}

// NewPostgresAccountStore returns a store that runs outside any unit of work.
func NewPostgresAccountStore(db *sql.DB, logger *logrus.Logger) *PostgresAccountStore {
	return &PostgresAccountStore{q: db, logger: logger}
}

const accountColumns = `id, account_number, owner_name, balance, version, created_at, updated_at`

func (s *PostgresAccountStore) Find(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error) {
	return s.scanAccount(s.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_number = $1`, accountNumber))
}

func (s *PostgresAccountStore) FindForUpdate(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error) {
	return s.scanAccount(s.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_number = $1
		FOR UPDATE`, accountNumber))
}

func (s *PostgresAccountStore) scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.OwnerName,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, classify("failed to get account", err)
	}
	return &account, nil
}

func (s *PostgresAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	created := *account
	if created.Version == 0 {
		created.Version = 1
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO accounts (account_number, owner_name, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		created.AccountNumber,
		created.OwnerName,
		created.Balance,
		created.Version,
		created.CreatedAt,
		created.UpdatedAt,
	).Scan(&created.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrDuplicateAccount
		}
		return nil, classify("failed to create account", err)
	}
	return &created, nil
}

func (s *PostgresAccountStore) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		account.Balance, account.UpdatedAt, account.ID, account.Version)
	if err != nil {
		return nil, classify("failed to update account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if s.logger != nil {
			s.logger.WithField("account", account.AccountNumber).Warn("optimistic lock failed")
		}
		return nil, fmt.Errorf("account %s: %w", account.AccountNumber, ErrVersionConflict)
	}

	saved := *account
	saved.Version++
	return &saved, nil
}

// SaveBatch relies on the enclosing database transaction for atomicity. Rows are
// written in account-number order so that lock acquisition stays ordered even for
// callers that did not lock up front.
func (s *PostgresAccountStore) SaveBatch(ctx context.Context, accounts []*models.Account) ([]*models.Account, error) {
	ordered := SortByAccountNumber(accounts)
	saved := make(map[uuid.UUID]*models.Account, len(ordered))
	for _, account := range ordered {
		out, err := s.Save(ctx, account)
		if err != nil {
			return nil, err
		}
		saved[account.AccountNumber] = out
	}

	result := make([]*models.Account, len(accounts))
	for i, account := range accounts {
		result[i] = saved[account.AccountNumber]
	}
	return result, nil
}

// PostgresLedger implements TransactionLedger over the transactions table.
type PostgresLedger struct {
	q querier
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{q: db}
}

func (l *PostgresLedger) Append(ctx context.Context, record *models.Transaction) (*models.Transaction, error) {
	appended := *record
	err := l.q.QueryRowContext(ctx, `
		INSERT INTO transactions (account_number_to, account_number_from, amount, type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		nullableUUID(record.AccountNumberTo),
		nullableUUID(record.AccountNumberFrom),
		record.Amount,
		string(record.Type),
		record.CreatedAt,
	).Scan(&appended.ID)
	if err != nil {
		return nil, classify("failed to insert transaction", err)
	}
	return &appended, nil
}

func (l *PostgresLedger) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var (
		record   models.Transaction
		to, from uuid.NullUUID
		txType   string
	)
	err := l.q.QueryRowContext(ctx, `
		SELECT id, account_number_to, account_number_from, amount, type, created_at
		FROM transactions
		WHERE id = $1`, id).Scan(
		&record.ID, &to, &from, &record.Amount, &txType, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, classify("failed to get transaction", err)
	}
	record.Type = models.TransactionType(txType)
	if to.Valid {
		record.AccountNumberTo = &to.UUID
	}
	if from.Valid {
		record.AccountNumberFrom = &from.UUID
	}
	return &record, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// classify maps Postgres conflict codes onto ErrVersionConflict so the caller can retry,
// and use of a finished transaction onto ErrWorkClosed.
func classify(msg string, err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: %w", msg, ErrWorkClosed)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w: %v", msg, ErrVersionConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// SortByAccountNumber returns a copy of accounts in ascending account-number order.
func SortByAccountNumber(accounts []*models.Account) []*models.Account {
	ordered := append([]*models.Account(nil), accounts...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].AccountNumber.String() < ordered[j].AccountNumber.String()
	})
	return ordered
}
