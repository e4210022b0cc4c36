// Package memstore keeps the ledger in process memory. It honours the same
// contract as the Postgres store: row locks taken by LockAccountsForUpdate are
// held until the unit of work ends, balance writes are version-checked, and a
// unit of work either commits every staged write or none of them.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
	handles  map[string]uuid.UUID
	emails   map[string]uuid.UUID
	txnLog   []models.Transaction
	txnIndex map[string]int
	audit    []models.AuditLog
	idem     map[string]models.IdempotencyKey
	rowLocks map[uuid.UUID]*sync.Mutex
	now      func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]models.Account),
		handles:  make(map[string]uuid.UUID),
		emails:   make(map[string]uuid.UUID),
		txnIndex: make(map[string]int),
		idem:     make(map[string]models.IdempotencyKey),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Queries returns an autocommit query set: every call is its own unit of work.
func (s *Store) Queries() repository.Querier {
	return &queries{store: s}
}

// RunInTx executes fn against a staged unit of work and commits it when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	tx := newTxState()
	defer s.releaseRows(tx)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{store: s, tx: tx}); err != nil {
		return err
	}
	if err := s.commit(tx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping always succeeds; it lets the store stand in for a database in readiness checks.
func (s *Store) Ping(context.Context) error {
	return nil
}

// AuditLogs returns a copy of every committed audit record.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

// Transactions returns every committed transaction in commit order.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, len(s.txnLog))
	copy(out, s.txnLog)
	return out
}

type txState struct {
	accounts map[uuid.UUID]models.Account
	created  map[uuid.UUID]bool
	base     map[uuid.UUID]int64
	txns     []models.Transaction
	audit    []models.AuditLog
	held     []uuid.UUID
	heldSet  map[uuid.UUID]struct{}
}

func newTxState() *txState {
	return &txState{
		accounts: make(map[uuid.UUID]models.Account),
		created:  make(map[uuid.UUID]bool),
		base:     make(map[uuid.UUID]int64),
		heldSet:  make(map[uuid.UUID]struct{}),
	}
}

func (s *Store) rowLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[id] = l
	}
	return l
}

func (s *Store) lockRow(tx *txState, id uuid.UUID) {
	if _, ok := tx.heldSet[id]; ok {
		return
	}
	s.rowLock(id).Lock()
	tx.heldSet[id] = struct{}{}
	tx.held = append(tx.held, id)
}

func (s *Store) releaseRows(tx *txState) {
	for i := len(tx.held) - 1; i >= 0; i-- {
		s.rowLock(tx.held[i]).Unlock()
	}
	tx.held = nil
	tx.heldSet = make(map[uuid.UUID]struct{})
}

func (s *Store) commit(tx *txState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range tx.base {
		current, ok := s.accounts[id]
		if !ok || current.Version != version {
			return domain.ErrVersionConflict
		}
	}
	for id := range tx.created {
		account := tx.accounts[id]
		if s.identityTaken(account) {
			return domain.ErrDuplicateIdentity
		}
	}
	seen := make(map[string]struct{}, len(tx.txns))
	for _, txn := range tx.txns {
		if _, ok := s.txnIndex[txn.TransactionID]; ok {
			return domain.ErrDuplicateTransactionID
		}
		if _, ok := seen[txn.TransactionID]; ok {
			return domain.ErrDuplicateTransactionID
		}
		seen[txn.TransactionID] = struct{}{}
	}

	for id, account := range tx.accounts {
		if tx.created[id] {
			s.handles[account.Handle] = id
			s.emails[account.Email] = id
		}
		s.accounts[id] = account
	}
	for _, txn := range tx.txns {
		s.txnIndex[txn.TransactionID] = len(s.txnLog)
		s.txnLog = append(s.txnLog, txn)
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

// identityTaken reports whether any unique field of account collides; s.mu must be held.
func (s *Store) identityTaken(account models.Account) bool {
	if _, ok := s.accounts[account.ID]; ok {
		return true
	}
	if _, ok := s.handles[account.Handle]; ok {
		return true
	}
	_, ok := s.emails[account.Email]
	return ok
}

func (s *Store) committedAccount(id uuid.UUID) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *Store) committedByIndex(index map[string]uuid.UUID, key string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := index[key]
	if !ok {
		return models.Account{}, false
	}
	a, ok := s.accounts[id]
	return a, ok
}

type queries struct {
	store *Store
	tx    *txState
}

// run executes fn inside the caller's unit of work, or inside a fresh one that
// commits immediately when the query set is autocommit.
func (q *queries) run(fn func(tx *txState) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	tx := newTxState()
	if err := fn(tx); err != nil {
		return err
	}
	return q.store.commit(tx)
}

func (q *queries) account(tx *txState, id uuid.UUID) (models.Account, bool) {
	if tx != nil {
		if a, ok := tx.accounts[id]; ok {
			return a, true
		}
	}
	return q.store.committedAccount(id)
}

func (q *queries) CreateAccount(ctx context.Context, account *models.Account) error {
	return q.run(func(tx *txState) error {
		candidate := *account
		candidate.Email = strings.ToLower(candidate.Email)
		for _, staged := range tx.accounts {
			if staged.ID == candidate.ID || staged.Handle == candidate.Handle || staged.Email == candidate.Email {
				return fmt.Errorf("create account: %w", domain.ErrDuplicateIdentity)
			}
		}
		q.store.mu.Lock()
		taken := q.store.identityTaken(candidate)
		q.store.mu.Unlock()
		if taken {
			return fmt.Errorf("create account: %w", domain.ErrDuplicateIdentity)
		}

		now := q.store.now()
		candidate.Version = 0
		candidate.CreatedAt = now
		candidate.UpdatedAt = now
		tx.accounts[candidate.ID] = candidate
		tx.created[candidate.ID] = true

		account.Email = candidate.Email
		account.Version = candidate.Version
		account.CreatedAt = candidate.CreatedAt
		account.UpdatedAt = candidate.UpdatedAt
		return nil
	})
}

func (q *queries) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := q.account(q.tx, id)
	if !ok {
		return nil, fmt.Errorf("get account by id: %w", domain.ErrAccountNotFound)
	}
	return &a, nil
}

func (q *queries) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	if q.tx != nil {
		for _, a := range q.tx.accounts {
			if a.Handle == handle {
				return &a, nil
			}
		}
	}
	a, ok := q.store.committedByIndex(q.store.handles, handle)
	if !ok {
		return nil, fmt.Errorf("get account by handle: %w", domain.ErrAccountNotFound)
	}
	return q.GetAccountByID(ctx, a.ID)
}

func (q *queries) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = strings.ToLower(email)
	if q.tx != nil {
		for _, a := range q.tx.accounts {
			if a.Email == email {
				return &a, nil
			}
		}
	}
	a, ok := q.store.committedByIndex(q.store.emails, email)
	if !ok {
		return nil, fmt.Errorf("get account by email: %w", domain.ErrAccountNotFound)
	}
	return q.GetAccountByID(ctx, a.ID)
}

func (q *queries) LockAccountsForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	locked := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if _, ok := locked[id]; ok {
			continue
		}
		if q.tx != nil {
			q.store.lockRow(q.tx, id)
		}
		a, ok := q.account(q.tx, id)
		if !ok {
			return nil, fmt.Errorf("lock account: %w", domain.ErrAccountNotFound)
		}
		if q.tx != nil && !q.tx.created[id] {
			if _, seen := q.tx.base[id]; !seen {
				q.tx.base[id] = a.Version
			}
		}
		locked[id] = &a
	}
	return locked, nil
}

func (q *queries) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta domain.Money, expectedVersion int64) (*models.Account, error) {
	if q.tx == nil {
		// An autocommit write still waits for any unit of work holding the row.
		l := q.store.rowLock(id)
		l.Lock()
		defer l.Unlock()
	}

	var updated models.Account
	err := q.run(func(tx *txState) error {
		current, ok := q.account(tx, id)
		if !ok {
			return fmt.Errorf("apply balance delta: %w", domain.ErrAccountNotFound)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("apply balance delta: %w", domain.ErrVersionConflict)
		}
		if current.Balance+delta < 0 {
			return fmt.Errorf("apply balance delta: %w", domain.NewInsufficientFunds(current.Balance))
		}
		if _, seen := tx.base[id]; !seen && !tx.created[id] {
			tx.base[id] = current.Version
		}
		current.Balance += delta
		current.Version++
		current.UpdatedAt = q.store.now()
		tx.accounts[id] = current
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (q *queries) GetLedgerTotals(ctx context.Context) (models.LedgerTotals, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	var totals models.LedgerTotals
	for _, a := range q.store.accounts {
		totals.Accounts++
		totals.TotalBalance += a.Balance
		totals.TotalOpening += a.OpeningBalance
		if a.Balance < 0 {
			totals.NegativeBalances++
		}
	}
	return totals, nil
}

func (q *queries) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	return q.run(func(tx *txState) error {
		for _, staged := range tx.txns {
			if staged.TransactionID == txn.TransactionID {
				return fmt.Errorf("append transaction: %w", domain.ErrDuplicateTransactionID)
			}
		}
		q.store.mu.Lock()
		_, exists := q.store.txnIndex[txn.TransactionID]
		q.store.mu.Unlock()
		if exists {
			return fmt.Errorf("append transaction: %w", domain.ErrDuplicateTransactionID)
		}
		tx.txns = append(tx.txns, *txn)
		return nil
	})
}

func (q *queries) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if q.tx != nil {
		for _, staged := range q.tx.txns {
			if staged.TransactionID == transactionID {
				return &staged, nil
			}
		}
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	idx, ok := q.store.txnIndex[transactionID]
	if !ok {
		return nil, fmt.Errorf("get transaction: %w", domain.ErrNotFound)
	}
	txn := q.store.txnLog[idx]
	return &txn, nil
}

func (q *queries) ListTransactionsBySender(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error) {
	q.store.mu.Lock()
	var out []models.Transaction
	for i := len(q.store.txnLog) - 1; i >= 0; i-- {
		if q.store.txnLog[i].SenderAccountID == accountID {
			out = append(out, q.store.txnLog[i])
		}
	}
	q.store.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.Transaction{}
	}
	return out, nil
}

func (q *queries) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	return q.run(func(tx *txState) error {
		entry.CreatedAt = q.store.now()
		tx.audit = append(tx.audit, entry)
		return nil
	})
}

func (q *queries) GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	rec, ok := q.store.idem[key]
	if !ok {
		return nil, fmt.Errorf("get idempotency key: %w", domain.ErrNotFound)
	}
	return &rec, nil
}

func (q *queries) ReserveIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (bool, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	if _, ok := q.store.idem[key.Key]; ok {
		return false, nil
	}
	key.InProgress = true
	if key.ContentType == "" {
		key.ContentType = "application/json"
	}
	q.store.idem[key.Key] = key
	return true, nil
}

func (q *queries) FinalizeIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.IdempotencyKey, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	rec, ok := q.store.idem[key.Key]
	if !ok || rec.RequestHash != key.RequestHash {
		return nil, fmt.Errorf("finalize idempotency key: %w", domain.ErrNotFound)
	}
	rec.ResponseStatus = key.ResponseStatus
	rec.ResponseBody = append([]byte(nil), key.ResponseBody...)
	rec.ContentType = key.ContentType
	rec.InProgress = false
	q.store.idem[key.Key] = rec
	return &rec, nil
}
