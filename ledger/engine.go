/*
engine.go - Operation entry points for the cash ledger

PURPOSE:
  The Engine is the single mutation entry point per logical operation on a
  worker's ledger. Each operation:
    1. Acquires the worker's exclusive section (no interleaved settlements)
    2. Runs the whole flow inside one store transaction (all-or-nothing)
    3. Retries a bounded number of times on conflict
  Read-only queries skip the lock and observe a consistent snapshot.

OPERATIONS:
  CreateAdvance      - Top up an advance, archive prior outstanding, settle
  RecordReceivedCash - Worker hands cash back to the company
  ApproveExpense     - Deduct held cash, redistribute via settlement
  RejectExpense      - Decline a pending expense
  plus account/job/expense intake and history queries

POLICY FLAGS:
  AllowOverdraftFromZero - A zero held-cash balance may go negative on a
                           hand-over (preserved source behavior, pending
                           product confirmation)
  AllowExpenseOverdraft  - Expense approval may push held cash negative
                           (off: approval fails with InsufficientBalance)

SEE ALSO:
  - settlement.go: The shared allocation routine
  - lock/: Per-worker exclusive sections
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/dispatch-ledger/ledger/lock"
)

// =============================================================================
// POLICY - Named flags for behavior pending product confirmation
// =============================================================================

type Policy struct {
	// AllowOverdraftFromZero exempts a zero held-cash balance from the
	// hand-over overdraft check, permitting a negative resulting balance.
	AllowOverdraftFromZero bool

	// AllowExpenseOverdraft lets expense approval push held cash below
	// zero. Off by default: the engine enforces the floor the source
	// system never checked.
	AllowExpenseOverdraft bool
}

func DefaultPolicy() Policy {
	return Policy{AllowOverdraftFromZero: true}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store      TxStore
	locks      lock.Locker
	policy     Policy
	log        *logrus.Logger
	maxRetries int
	now        func() time.Time
}

type Option func(*Engine)

// WithLocker swaps the per-worker lock implementation, e.g. for a
// Redis-backed lock when running multiple instances.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locks = l }
}

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMaxRetries bounds conflict retries per operation.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithClock swaps the time source, for tests that need deterministic
// record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		locks:      lock.NewKeyedMutex(),
		policy:     DefaultPolicy(),
		log:        logrus.StandardLogger(),
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withWorker runs fn inside the worker's exclusive section and one store
// transaction, retrying on conflict up to maxRetries. Transient conflicts
// are retried while the section is held and never surface unless exhausted.
func (e *Engine) withWorker(ctx context.Context, workerID WorkerID, fn func(Store) error) error {
	release, err := e.locks.Acquire(ctx, string(workerID))
	if err != nil {
		return fmt.Errorf("acquire worker section: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		lastErr = e.store.WithTx(ctx, fn)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		e.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"attempt":   attempt + 1,
		}).Warn("settlement conflict, retrying")
	}
	return lastErr
}

// =============================================================================
// ACCOUNTS & JOBS - Intake from the directory and booking subsystems
// =============================================================================

// CreateAccount registers a worker account at onboarding. Money fields
// start at zero unless the directory carries opening balances.
func (e *Engine) CreateAccount(ctx context.Context, account WorkerAccount) (*WorkerAccount, error) {
	if account.ID == "" {
		return nil, &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if !account.Kind.Valid() {
		return nil, &InvalidRequestError{Field: "kind", Reason: "must be driver or provider"}
	}

	var created WorkerAccount
	err := e.withWorker(ctx, account.ID, func(s Store) error {
		if _, err := s.GetAccount(ctx, account.ID); err == nil {
			return &InvalidRequestError{Field: "workerId", Reason: "already exists"}
		} else if !IsNotFound(err) {
			return err
		}

		account.CreatedAt = e.now()
		account.UpdatedAt = account.CreatedAt
		created = account
		return s.SaveAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id": created.ID,
		"kind":      created.Kind,
	}).Info("worker account created")
	return &created, nil
}

func (e *Engine) GetAccount(ctx context.Context, id WorkerID) (*WorkerAccount, error) {
	if id == "" {
		return nil, &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	return e.store.GetAccount(ctx, id)
}

// AdjustCash applies a signed delta to a worker's held cash, for manual
// corrections and directory-side opening balances. Unlike the hand-over
// flow, the non-negative floor applies uniformly: there is no zero-balance
// exemption here.
func (e *Engine) AdjustCash(ctx context.Context, id WorkerID, delta Money) (*WorkerAccount, error) {
	if id == "" {
		return nil, &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if delta.IsZero() {
		return nil, &InvalidRequestError{Field: "delta", Reason: "must be nonzero"}
	}

	var updated WorkerAccount
	err := e.withWorker(ctx, id, func(s Store) error {
		account, err := s.GetAccount(ctx, id)
		if err != nil {
			return err
		}

		next := account.HeldCash.Add(delta)
		if next.IsNegative() {
			return &InsufficientBalanceError{
				WorkerID:  id,
				HeldCash:  account.HeldCash,
				Requested: delta.Neg(),
			}
		}

		account.HeldCash = next
		account.UpdatedAt = e.now()
		updated = *account
		return s.SaveAccount(ctx, *account)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id": id,
		"delta":     delta.String(),
		"balance":   updated.HeldCash.String(),
	}).Info("cash adjusted")
	return &updated, nil
}

// UpsertJob is the booking subsystem's write path: it owns EarnedSalary
// and Verified. PaidFromAdvances on an existing job is preserved; the
// settlement algorithm is its only writer.
func (e *Engine) UpsertJob(ctx context.Context, job JobRecord) (*JobRecord, error) {
	if job.ID == "" {
		return nil, &InvalidRequestError{Field: "jobId", Reason: "is required"}
	}
	if job.WorkerID == "" {
		return nil, &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if job.EarnedSalary.IsNegative() {
		return nil, &InvalidRequestError{Field: "earnedSalary", Reason: "must not be negative"}
	}

	var saved JobRecord
	err := e.withWorker(ctx, job.WorkerID, func(s Store) error {
		if _, err := s.GetAccount(ctx, job.WorkerID); err != nil {
			return err
		}

		existing, err := s.GetJob(ctx, job.ID)
		switch {
		case err == nil:
			job.PaidFromAdvances = existing.PaidFromAdvances
			job.CreatedAt = existing.CreatedAt
		case IsNotFound(err):
			job.CreatedAt = e.now()
		default:
			return err
		}

		saved = job
		return s.SaveJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// =============================================================================
// ADVANCE LIFECYCLE
// =============================================================================

type CreateAdvanceInput struct {
	WorkerID WorkerID
	Amount   Money
	Remark   string
	Kind     WorkerKind
}

func (in CreateAdvanceInput) validate() error {
	if in.WorkerID == "" {
		return &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if !in.Amount.IsPositive() {
		return &InvalidRequestError{Field: "amount", Reason: "must be positive"}
	}
	if in.Remark == "" {
		return &InvalidRequestError{Field: "remark", Reason: "is required"}
	}
	if !in.Kind.Valid() {
		return &InvalidRequestError{Field: "kind", Reason: "must be driver or provider"}
	}
	return nil
}

// AdvanceResult is the updated state returned from CreateAdvance.
type AdvanceResult struct {
	Account WorkerAccount
	Record  AdvanceRecord
}

// CreateAdvance issues a cash top-up and settles it against job dues:
//  1. Fold every prior record's OutstandingAfter into the new balance,
//     zeroing the archived records (kept for audit, never deleted)
//  2. Create the new record with the merged outstanding balance
//  3. Run settlement over verified jobs in settlement order
//  4. Persist the leftover onto the account and the new record, together
//     with the allocation breakdown - all in one transaction
func (e *Engine) CreateAdvance(ctx context.Context, in CreateAdvanceInput) (*AdvanceResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var result AdvanceResult
	err := e.withWorker(ctx, in.WorkerID, func(s Store) error {
		account, err := s.GetAccount(ctx, in.WorkerID)
		if err != nil {
			return err
		}
		if in.Kind != account.Kind {
			return &InvalidRequestError{Field: "kind", Reason: fmt.Sprintf("does not match worker kind %s", account.Kind)}
		}

		// Merge prior outstanding balances and archive their records.
		prior, err := s.ListAdvances(ctx, AdvanceFilter{WorkerID: in.WorkerID})
		if err != nil {
			return err
		}
		priorOutstanding := Zero()
		for _, rec := range prior {
			if rec.OutstandingAfter.IsZero() {
				continue
			}
			priorOutstanding = priorOutstanding.Add(rec.OutstandingAfter)
			rec.OutstandingAfter = Zero()
			if err := s.UpdateAdvance(ctx, rec); err != nil {
				return err
			}
		}

		newOutstanding := priorOutstanding.Add(in.Amount)
		account.OutstandingAdvance = newOutstanding

		record := AdvanceRecord{
			ID:               uuid.New().String(),
			WorkerID:         in.WorkerID,
			Kind:             in.Kind,
			AddedAmount:      in.Amount,
			OutstandingAfter: newOutstanding,
			Remark:           in.Remark,
			CreatedAt:        e.now(),
		}
		if err := s.CreateAdvance(ctx, record); err != nil {
			return err
		}

		jobs, err := s.ListVerifiedJobs(ctx, in.WorkerID)
		if err != nil {
			return err
		}
		SortJobsForSettlement(jobs)

		settled := Settle(newOutstanding, jobs)
		for _, job := range settled.Settled {
			if err := s.SaveJob(ctx, job); err != nil {
				return err
			}
		}

		record.OutstandingAfter = settled.Remaining
		record.Allocation = settled.Allocation
		if err := s.UpdateAdvance(ctx, record); err != nil {
			return err
		}

		account.OutstandingAdvance = settled.Remaining
		account.UpdatedAt = e.now()
		if err := s.SaveAccount(ctx, *account); err != nil {
			return err
		}

		result = AdvanceResult{Account: *account, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id":   in.WorkerID,
		"added":       in.Amount.String(),
		"outstanding": result.Record.OutstandingAfter.String(),
		"jobs_paid":   len(result.Record.Allocation),
	}).Info("advance created")
	return &result, nil
}

func (e *Engine) ListAdvances(ctx context.Context, filter AdvanceFilter) ([]AdvanceRecord, error) {
	return e.store.ListAdvances(ctx, filter)
}

// =============================================================================
// RECEIVED-CASH RECONCILIATION
// =============================================================================

type ReceivedCashInput struct {
	WorkerID         WorkerID
	AmountHandedOver Money
	Remark           string
}

func (in ReceivedCashInput) validate() error {
	if in.WorkerID == "" {
		return &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if !in.AmountHandedOver.IsPositive() {
		return &InvalidRequestError{Field: "amountHandedOver", Reason: "must be positive"}
	}
	return nil
}

type ReceivedCashResult struct {
	Account WorkerAccount
	Record  ReceivedCashRecord
}

// RecordReceivedCash logs cash a worker physically returned and reduces
// their held cash. A hand-over exceeding a nonzero balance is rejected;
// a zero balance is exempt under AllowOverdraftFromZero and may go
// negative.
func (e *Engine) RecordReceivedCash(ctx context.Context, in ReceivedCashInput) (*ReceivedCashResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var result ReceivedCashResult
	err := e.withWorker(ctx, in.WorkerID, func(s Store) error {
		account, err := s.GetAccount(ctx, in.WorkerID)
		if err != nil {
			return err
		}

		if !account.HeldCash.IsZero() && in.AmountHandedOver.GreaterThan(account.HeldCash) {
			return &InsufficientBalanceError{
				WorkerID:  in.WorkerID,
				HeldCash:  account.HeldCash,
				Requested: in.AmountHandedOver,
			}
		}
		if account.HeldCash.IsZero() && !e.policy.AllowOverdraftFromZero {
			return &InsufficientBalanceError{
				WorkerID:  in.WorkerID,
				HeldCash:  account.HeldCash,
				Requested: in.AmountHandedOver,
			}
		}

		net := account.NetAmount()
		account.HeldCash = account.HeldCash.Sub(in.AmountHandedOver)
		account.UpdatedAt = e.now()
		if err := s.SaveAccount(ctx, *account); err != nil {
			return err
		}

		record := ReceivedCashRecord{
			ID:                uuid.New().String(),
			WorkerID:          in.WorkerID,
			AmountHandedOver:  in.AmountHandedOver,
			ResultingBalance:  account.HeldCash,
			NetAmountSnapshot: net,
			Remark:            in.Remark,
			CreatedAt:         e.now(),
		}
		if err := s.CreateReceivedCash(ctx, record); err != nil {
			return err
		}

		result = ReceivedCashResult{Account: *account, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id": in.WorkerID,
		"amount":    in.AmountHandedOver.String(),
		"balance":   result.Account.HeldCash.String(),
	}).Info("received cash recorded")
	return &result, nil
}

func (e *Engine) ListReceivedCash(ctx context.Context, filter ReceivedCashFilter) ([]ReceivedCashRecord, error) {
	return e.store.ListReceivedCash(ctx, filter)
}

// =============================================================================
// EXPENSE DEDUCTION HOOK
// =============================================================================

type ExpenseInput struct {
	WorkerID    WorkerID
	Amount      Money
	Description string
}

func (in ExpenseInput) validate() error {
	if in.WorkerID == "" {
		return &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}
	if !in.Amount.IsPositive() {
		return &InvalidRequestError{Field: "amount", Reason: "must be positive"}
	}
	if in.Description == "" {
		return &InvalidRequestError{Field: "description", Reason: "is required"}
	}
	return nil
}

// SubmitExpense files a reimbursable expense for review. No money moves
// until approval.
func (e *Engine) SubmitExpense(ctx context.Context, in ExpenseInput) (*ExpenseRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var expense ExpenseRecord
	err := e.withWorker(ctx, in.WorkerID, func(s Store) error {
		if _, err := s.GetAccount(ctx, in.WorkerID); err != nil {
			return err
		}
		expense = ExpenseRecord{
			ID:          uuid.New().String(),
			WorkerID:    in.WorkerID,
			Amount:      in.Amount,
			Description: in.Description,
			Status:      ExpensePending,
			CreatedAt:   e.now(),
		}
		return s.SaveExpense(ctx, expense)
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

// ExpenseResult is the updated state returned from an expense decision.
type ExpenseResult struct {
	Account WorkerAccount
	Expense ExpenseRecord

	// Allocation is the redistribution breakdown from approval; empty for
	// rejections and for workers with no due jobs.
	Allocation []AllocationEntry
}

// ApproveExpense deducts an approved expense from held cash and re-runs
// the same allocation routine used by advance creation over the worker's
// job dues. One routine, two call sites - the flows cannot diverge.
func (e *Engine) ApproveExpense(ctx context.Context, expenseID string) (*ExpenseResult, error) {
	if expenseID == "" {
		return nil, &InvalidRequestError{Field: "expenseId", Reason: "is required"}
	}

	expense, err := e.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	var result ExpenseResult
	err = e.withWorker(ctx, expense.WorkerID, func(s Store) error {
		expense, err := s.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if expense.Status != ExpensePending {
			return &InvalidRequestError{Field: "expenseId", Reason: fmt.Sprintf("already %s", expense.Status)}
		}

		account, err := s.GetAccount(ctx, expense.WorkerID)
		if err != nil {
			return err
		}

		newHeld := account.HeldCash.Sub(expense.Amount)
		if newHeld.IsNegative() && !e.policy.AllowExpenseOverdraft {
			return &InsufficientBalanceError{
				WorkerID:  expense.WorkerID,
				HeldCash:  account.HeldCash,
				Requested: expense.Amount,
			}
		}
		account.HeldCash = newHeld

		var allocation []AllocationEntry
		if expense.Amount.IsPositive() {
			jobs, err := s.ListVerifiedJobs(ctx, expense.WorkerID)
			if err != nil {
				return err
			}
			SortJobsForSettlement(jobs)

			settled := Settle(expense.Amount, jobs)
			for _, job := range settled.Settled {
				if err := s.SaveJob(ctx, job); err != nil {
					return err
				}
			}
			allocation = settled.Allocation
		}

		account.UpdatedAt = e.now()
		if err := s.SaveAccount(ctx, *account); err != nil {
			return err
		}

		decidedAt := e.now()
		expense.Status = ExpenseApproved
		expense.DecidedAt = &decidedAt
		if err := s.SaveExpense(ctx, *expense); err != nil {
			return err
		}

		result = ExpenseResult{Account: *account, Expense: *expense, Allocation: allocation}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id":  result.Expense.WorkerID,
		"expense_id": expenseID,
		"amount":     result.Expense.Amount.String(),
		"jobs_paid":  len(result.Allocation),
	}).Info("expense approved")
	return &result, nil
}

// RejectExpense declines a pending expense. No money moves.
func (e *Engine) RejectExpense(ctx context.Context, expenseID string) (*ExpenseResult, error) {
	if expenseID == "" {
		return nil, &InvalidRequestError{Field: "expenseId", Reason: "is required"}
	}

	expense, err := e.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	var result ExpenseResult
	err = e.withWorker(ctx, expense.WorkerID, func(s Store) error {
		expense, err := s.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if expense.Status != ExpensePending {
			return &InvalidRequestError{Field: "expenseId", Reason: fmt.Sprintf("already %s", expense.Status)}
		}

		account, err := s.GetAccount(ctx, expense.WorkerID)
		if err != nil {
			return err
		}

		decidedAt := e.now()
		expense.Status = ExpenseRejected
		expense.DecidedAt = &decidedAt
		if err := s.SaveExpense(ctx, *expense); err != nil {
			return err
		}

		result = ExpenseResult{Account: *account, Expense: *expense}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *Engine) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]ExpenseRecord, error) {
	return e.store.ListExpenses(ctx, filter)
}

// =============================================================================
// STATEMENTS - Audit/reporting read model
// =============================================================================

// Statement bundles a worker's advance and received-cash history over a
// date range, for audit consumers and the export endpoints.
type Statement struct {
	Account      WorkerAccount
	From, To     time.Time
	Advances     []AdvanceRecord
	ReceivedCash []ReceivedCashRecord
}

func (e *Engine) Statement(ctx context.Context, workerID WorkerID, from, to time.Time) (*Statement, error) {
	if workerID == "" {
		return nil, &InvalidRequestError{Field: "workerId", Reason: "is required"}
	}

	account, err := e.store.GetAccount(ctx, workerID)
	if err != nil {
		return nil, err
	}
	advances, err := e.store.ListAdvances(ctx, AdvanceFilter{WorkerID: workerID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	received, err := e.store.ListReceivedCash(ctx, ReceivedCashFilter{WorkerID: workerID, From: from, To: to})
	if err != nil {
		return nil, err
	}

	return &Statement{
		Account:      *account,
		From:         from,
		To:           to,
		Advances:     advances,
		ReceivedCash: received,
	}, nil
}
