/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Record access (accounts, jobs, advances, received cash, expenses)
  TxStore: Adds WithTx for atomic multi-record mutations

ATOMICITY:
  Every multi-entity mutation in the engine (advance creation, settlement,
  received-cash reconciliation, expense approval) runs inside WithTx.
  Either the whole flow commits or none of it does - there is no state
  where outstandingAdvance moved but a job's paidFromAdvances didn't.

NOT-FOUND CONTRACT:
  Get* methods return the matching sentinel error (ErrWorkerNotFound,
  ErrJobNotFound, ...) for unknown ids, never (nil, nil).

IMPLEMENTATIONS:
  - store/sqlite: Durable store (production)
  - ledger/store: In-memory store (tests, dev)

SEE ALSO:
  - engine.go: The only caller of the write methods
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// QUERY FILTERS
// =============================================================================

// AdvanceFilter narrows advance history queries. Zero values mean "any".
// Search is a free-text match over worker names and job file numbers,
// case-insensitive substring.
type AdvanceFilter struct {
	Kind     WorkerKind
	WorkerID WorkerID
	Search   string
	From     time.Time
	To       time.Time
}

// ReceivedCashFilter narrows received-cash queries. Zero values mean "any".
type ReceivedCashFilter struct {
	WorkerID WorkerID
	From     time.Time
	To       time.Time
}

// ExpenseFilter narrows expense queries. Zero values mean "any".
type ExpenseFilter struct {
	WorkerID WorkerID
	Status   ExpenseStatus
}

// =============================================================================
// STORE - Record persistence
// =============================================================================

type Store interface {
	// Accounts
	GetAccount(ctx context.Context, id WorkerID) (*WorkerAccount, error)
	SaveAccount(ctx context.Context, account WorkerAccount) error

	// Jobs. ListVerifiedJobs returns only verified jobs, already in
	// settlement order (creation time asc, then id).
	GetJob(ctx context.Context, id JobID) (*JobRecord, error)
	SaveJob(ctx context.Context, job JobRecord) error
	ListVerifiedJobs(ctx context.Context, workerID WorkerID) ([]JobRecord, error)

	// Advances. UpdateAdvance mutates an existing record; it is used for
	// the in-place settlement write on the newest record and for zeroing
	// OutstandingAfter on archived ones. Records are never deleted.
	CreateAdvance(ctx context.Context, record AdvanceRecord) error
	UpdateAdvance(ctx context.Context, record AdvanceRecord) error
	ListAdvances(ctx context.Context, filter AdvanceFilter) ([]AdvanceRecord, error)

	// Received cash
	CreateReceivedCash(ctx context.Context, record ReceivedCashRecord) error
	ListReceivedCash(ctx context.Context, filter ReceivedCashFilter) ([]ReceivedCashRecord, error)

	// Expenses
	GetExpense(ctx context.Context, id string) (*ExpenseRecord, error)
	SaveExpense(ctx context.Context, expense ExpenseRecord) error
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]ExpenseRecord, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back, otherwise committed.
// Read-only queries may bypass WithTx and observe a consistent snapshot
// without blocking writers.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
