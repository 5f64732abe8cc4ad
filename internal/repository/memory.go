package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
)

// MemoryStore is an in-process AccountStore/TransactionLedger backend. Each account
// has its own lock, taken by FindForUpdate and held until the unit of work closes;
// staged writes become visible on Commit.
type MemoryStore struct {
	mu           sync.Mutex // guards the maps below, never held across a unit of work
	accounts     map[uuid.UUID]models.Account
	locks        map[uuid.UUID]chan struct{}
	transactions []models.Transaction
	nextAcctID   int64
	nextTxID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]models.Account),
		locks:    make(map[uuid.UUID]chan struct{}),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	w := &memoryWork{
		ctx:    ctx,
		store:  s,
		held:   make(map[uuid.UUID]chan struct{}),
		staged: make(map[uuid.UUID]models.Account),
		base:   make(map[uuid.UUID]int),
	}
	return w, nil
}

// Transactions returns a copy of every committed ledger record.
func (s *MemoryStore) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.transactions...)
}

// Account returns the committed snapshot of an account.
func (s *MemoryStore) Account(accountNumber uuid.UUID) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountNumber]
	return a, ok
}

func (s *MemoryStore) lockFor(accountNumber uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[accountNumber]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[accountNumber] = ch
	}
	return ch
}

type memoryWork struct {
	ctx      context.Context // a unit whose context is done cannot commit
	store    *MemoryStore
	held     map[uuid.UUID]chan struct{}
	staged   map[uuid.UUID]models.Account
	base     map[uuid.UUID]int // committed version each staged account was read at
	created  []models.Account
	appended []models.Transaction
	closed   bool
}

func (w *memoryWork) Accounts() AccountStore   { return (*memoryAccounts)(w) }
func (w *memoryWork) Ledger() TransactionLedger { return (*memoryLedger)(w) }

func (w *memoryWork) Commit() error {
	if w.closed {
		return ErrWorkClosed
	}
	w.closed = true
	defer w.release()

	if err := w.ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range w.created {
		if _, exists := s.accounts[a.AccountNumber]; exists {
			return ErrDuplicateAccount
		}
	}
	for num := range w.staged {
		if current, ok := s.accounts[num]; !ok || current.Version != w.base[num] {
			return fmt.Errorf("account %s: %w", num, ErrVersionConflict)
		}
	}
	for _, a := range w.created {
		s.accounts[a.AccountNumber] = a
	}
	for num, a := range w.staged {
		s.accounts[num] = a
	}
	s.transactions = append(s.transactions, w.appended...)
	return nil
}

func (w *memoryWork) Rollback() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.release()
	return nil
}

func (w *memoryWork) release() {
	for num, ch := range w.held {
		<-ch
		delete(w.held, num)
	}
}

func (w *memoryWork) acquire(ctx context.Context, accountNumber uuid.UUID) error {
	if _, ok := w.held[accountNumber]; ok {
		return nil
	}
	ch := w.store.lockFor(accountNumber)
	select {
	case ch <- struct{}{}:
		w.held[accountNumber] = ch
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to lock account %s: %w", accountNumber, ctx.Err())
	}
}

// read prefers this unit's own staged writes over the committed state.
func (w *memoryWork) read(accountNumber uuid.UUID) (*models.Account, error) {
	if a, ok := w.staged[accountNumber]; ok {
		return &a, nil
	}
	a, ok := w.store.Account(accountNumber)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

type memoryAccounts memoryWork

func (m *memoryAccounts) work() *memoryWork { return (*memoryWork)(m) }

func (m *memoryAccounts) Find(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	return m.work().read(accountNumber)
}

func (m *memoryAccounts) FindForUpdate(ctx context.Context, accountNumber uuid.UUID) (*models.Account, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	if err := m.work().acquire(ctx, accountNumber); err != nil {
		return nil, err
	}
	return m.work().read(accountNumber)
}

func (m *memoryAccounts) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	if _, ok := m.store.Account(account.AccountNumber); ok {
		return nil, ErrDuplicateAccount
	}
	s := m.store
	s.mu.Lock()
	s.nextAcctID++
	id := s.nextAcctID
	s.mu.Unlock()

	created := *account
	created.ID = id
	if created.Version == 0 {
		created.Version = 1
	}
	m.created = append(m.created, created)
	return &created, nil
}

func (m *memoryAccounts) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, err := m.work().read(account.AccountNumber)
	if err != nil {
		return nil, err
	}
	if current.ID != account.ID || current.Version != account.Version {
		return nil, fmt.Errorf("account %s: %w", account.AccountNumber, ErrVersionConflict)
	}
	if _, ok := m.staged[account.AccountNumber]; !ok {
		m.base[account.AccountNumber] = account.Version
	}
	saved := *account
	saved.Version++
	m.staged[account.AccountNumber] = saved
	return &saved, nil
}

func (m *memoryAccounts) SaveBatch(ctx context.Context, accounts []*models.Account) ([]*models.Account, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	// check every snapshot before staging any of them
	for _, account := range accounts {
		current, err := m.work().read(account.AccountNumber)
		if err != nil {
			return nil, err
		}
		if current.ID != account.ID || current.Version != account.Version {
			return nil, fmt.Errorf("account %s: %w", account.AccountNumber, ErrVersionConflict)
		}
	}
	saved := make([]*models.Account, len(accounts))
	for i, account := range accounts {
		out, err := m.Save(ctx, account)
		if err != nil {
			return nil, err
		}
		saved[i] = out
	}
	return saved, nil
}

type memoryLedger memoryWork

func (m *memoryLedger) Append(ctx context.Context, record *models.Transaction) (*models.Transaction, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	s := m.store
	s.mu.Lock()
	s.nextTxID++
	id := s.nextTxID
	s.mu.Unlock()

	appended := *record
	appended.ID = id
	if appended.CreatedAt.IsZero() {
		appended.CreatedAt = models.Now()
	}
	m.appended = append(m.appended, appended)
	return &appended, nil
}

func (m *memoryLedger) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	if m.closed {
		return nil, ErrWorkClosed
	}
	for _, record := range m.appended {
		if record.ID == id {
			return &record, nil
		}
	}
	for _, record := range m.store.Transactions() {
		if record.ID == id {
			return &record, nil
		}
	}
	return nil, ErrTransactionNotFound
}
