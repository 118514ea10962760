/*
Package ledger provides the cash-ledger and advance-settlement engine.

PURPOSE:
  This package contains the domain types and algorithms for reconciling a
  field worker's running held cash against salaries earned per completed
  job and cash advances issued by the company. It is the single writer of
  the three money fields on a worker account (held cash, outstanding
  advance, accumulated salary) and of `paidFromAdvances` on jobs.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact decimal quantity (no floating-point drift)
  - WorkerAccount: Per-worker money state (the aggregate root)
  - JobRecord: A verified job with an earned salary owed to the worker
  - AdvanceRecord: One cash top-up with its allocation breakdown
  - ReceivedCashRecord: Cash physically handed back to the company
  - ExpenseRecord: A reimbursable expense awaiting approval

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for worker/job IDs
  3. Auditability: Advance history is archived (zeroed), never deleted
  4. One writer: All mutations flow through Engine, serialized per worker

SEE ALSO:
  - settlement.go: The shared allocation algorithm
  - engine.go: Operation entry points
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal quantity
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

// ParseMoney parses the canonical string form produced by String().
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money          { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money          { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool   { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool      { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool         { return m.Value.Equal(b.Value) }
func (m Money) String() string             { return m.Value.String() }

func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}

// Float64 is for display/DTO use only. Storage always goes through String().
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

// MarshalJSON/UnmarshalJSON delegate to the underlying decimal so a Money
// serializes as a plain quoted number ("500"), not a nested object. The
// persisted allocation breakdown depends on this shape.
func (m Money) MarshalJSON() ([]byte, error) {
	return m.Value.MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Value.UnmarshalJSON(data)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type JobID string

// WorkerKind separates the two ledger populations: employed drivers and
// contracted providers. Advances and jobs carry the kind of their worker.
type WorkerKind string

const (
	KindDriver   WorkerKind = "driver"
	KindProvider WorkerKind = "provider"
)

func (k WorkerKind) Valid() bool {
	return k == KindDriver || k == KindProvider
}

// =============================================================================
// WORKER ACCOUNT - Aggregate root for per-worker money state
// =============================================================================

// WorkerAccount holds the three money fields this engine owns. Identity
// metadata (Name) is mirrored read-only from the worker directory; it is
// carried here because the advance search filter spans worker names.
type WorkerAccount struct {
	ID   WorkerID
	Kind WorkerKind
	Name string

	// HeldCash is company cash currently in the worker's hands. It only
	// goes negative through the documented zero-balance hand-over case.
	HeldCash Money

	// OutstandingAdvance is advance money not yet recovered against job
	// salaries. Always equals the remainder of the latest settlement run.
	OutstandingAdvance Money

	// AccumulatedSalary is written by the booking subsystem; this engine
	// reads it for the net-amount snapshot but never changes it.
	AccumulatedSalary Money

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NetAmount is the pre-transaction figure snapshotted onto received-cash
// records: held cash minus what the worker still owes from advances.
func (a WorkerAccount) NetAmount() Money {
	return a.HeldCash.Sub(a.OutstandingAdvance)
}

// =============================================================================
// JOB RECORD - Settlement-relevant subset of a booking
// =============================================================================

// JobRecord is the slice of a booking this engine sees. The booking
// subsystem is the sole writer of EarnedSalary and Verified; settlement
// only ever increases PaidFromAdvances, up to EarnedSalary.
type JobRecord struct {
	ID                   JobID
	WorkerID             WorkerID
	FileNumber           string
	EarnedSalary         Money
	PaidFromAdvances     Money
	TotalAmount          Money
	ReceivedFromCustomer Money
	Verified             bool
	CreatedAt            time.Time
}

// Due is the unpaid salary on this job. Recomputed from persisted totals,
// never replayed, which is what makes settlement re-runs idempotent.
func (j JobRecord) Due() Money {
	return j.EarnedSalary.Sub(j.PaidFromAdvances)
}

// =============================================================================
// ADVANCE RECORD - One cash top-up with its allocation breakdown
// =============================================================================

// AllocationEntry records how much of one settlement run went to one job.
// JSON tags define the persisted breakdown shape (allocation_json column).
type AllocationEntry struct {
	JobID     JobID  `json:"job_id"`
	JobSalary Money  `json:"job_salary"`
	DueBefore Money  `json:"due_before"`
	PaidNow   Money  `json:"paid_now"`
}

// AdvanceRecord is one advance top-up. On the next top-up the record is
// archived: its OutstandingAfter is folded into the new record and zeroed.
// Archived records are kept for audit, never deleted. Only the newest
// record is mutated in place, during its own settlement run.
type AdvanceRecord struct {
	ID               string
	WorkerID         WorkerID
	Kind             WorkerKind
	AddedAmount      Money
	OutstandingAfter Money
	Remark           string
	Allocation       []AllocationEntry
	CreatedAt        time.Time
}

// =============================================================================
// RECEIVED CASH RECORD - Cash handed back to the company
// =============================================================================

type ReceivedCashRecord struct {
	ID               string
	WorkerID         WorkerID
	AmountHandedOver Money
	ResultingBalance Money

	// NetAmountSnapshot freezes WorkerAccount.NetAmount() as it was
	// immediately before this hand-over, for statements.
	NetAmountSnapshot Money

	Remark    string
	CreatedAt time.Time
}

// =============================================================================
// EXPENSE RECORD - Reimbursable expense awaiting a decision
// =============================================================================

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

type ExpenseRecord struct {
	ID          string
	WorkerID    WorkerID
	Amount      Money
	Description string
	Status      ExpenseStatus
	CreatedAt   time.Time
	DecidedAt   *time.Time
}
