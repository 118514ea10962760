// Package store provides the in-memory TxStore implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	accounts     map[ledger.WorkerID]ledger.WorkerAccount
	jobs         map[ledger.JobID]ledger.JobRecord
	advances     map[string]ledger.AdvanceRecord
	receivedCash map[string]ledger.ReceivedCashRecord
	expenses     map[string]ledger.ExpenseRecord

	// seq disambiguates records created within the same clock tick so
	// list ordering stays deterministic.
	seq     uint64
	seqByID map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[ledger.WorkerID]ledger.WorkerAccount),
		jobs:         make(map[ledger.JobID]ledger.JobRecord),
		advances:     make(map[string]ledger.AdvanceRecord),
		receivedCash: make(map[string]ledger.ReceivedCashRecord),
		expenses:     make(map[string]ledger.ExpenseRecord),
		seqByID:      make(map[string]uint64),
	}
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

func (m *Memory) GetAccount(_ context.Context, id ledger.WorkerID) (*ledger.WorkerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Memory) getAccountLocked(id ledger.WorkerID) (*ledger.WorkerAccount, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, ledger.ErrWorkerNotFound
	}
	return &account, nil
}

func (m *Memory) SaveAccount(_ context.Context, account ledger.WorkerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveAccountLocked(account)
	return nil
}

func (m *Memory) saveAccountLocked(account ledger.WorkerAccount) {
	m.accounts[account.ID] = account
}

// -----------------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------------

func (m *Memory) GetJob(_ context.Context, id ledger.JobID) (*ledger.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getJobLocked(id)
}

func (m *Memory) getJobLocked(id ledger.JobID) (*ledger.JobRecord, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ledger.ErrJobNotFound
	}
	return &job, nil
}

func (m *Memory) SaveJob(_ context.Context, job ledger.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveJobLocked(job)
	return nil
}

func (m *Memory) saveJobLocked(job ledger.JobRecord) {
	m.jobs[job.ID] = job
}

func (m *Memory) ListVerifiedJobs(_ context.Context, workerID ledger.WorkerID) ([]ledger.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listVerifiedJobsLocked(workerID)
}

func (m *Memory) listVerifiedJobsLocked(workerID ledger.WorkerID) ([]ledger.JobRecord, error) {
	var jobs []ledger.JobRecord
	for _, job := range m.jobs {
		if job.WorkerID == workerID && job.Verified {
			jobs = append(jobs, job)
		}
	}
	ledger.SortJobsForSettlement(jobs)
	return jobs, nil
}

// -----------------------------------------------------------------------------
// Advances
// -----------------------------------------------------------------------------

func (m *Memory) CreateAdvance(_ context.Context, record ledger.AdvanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAdvanceLocked(record)
}

func (m *Memory) createAdvanceLocked(record ledger.AdvanceRecord) error {
	m.seq++
	m.seqByID[record.ID] = m.seq
	m.advances[record.ID] = record
	return nil
}

func (m *Memory) UpdateAdvance(_ context.Context, record ledger.AdvanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAdvanceLocked(record)
}

func (m *Memory) updateAdvanceLocked(record ledger.AdvanceRecord) error {
	if _, ok := m.advances[record.ID]; !ok {
		return ledger.ErrAdvanceNotFound
	}
	m.advances[record.ID] = record
	return nil
}

func (m *Memory) ListAdvances(_ context.Context, filter ledger.AdvanceFilter) ([]ledger.AdvanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdvancesLocked(filter)
}

func (m *Memory) listAdvancesLocked(filter ledger.AdvanceFilter) ([]ledger.AdvanceRecord, error) {
	var records []ledger.AdvanceRecord
	for _, rec := range m.advances {
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.WorkerID != "" && rec.WorkerID != filter.WorkerID {
			continue
		}
		if !inRange(rec.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.Search != "" && !m.matchesSearchLocked(rec.WorkerID, filter.Search) {
			continue
		}
		records = append(records, rec)
	}
	sortChronological(records, m.seqByID, func(r ledger.AdvanceRecord) (time.Time, string) { return r.CreatedAt, r.ID })
	return records, nil
}

// matchesSearchLocked implements the free-text advance search: a
// case-insensitive substring match over the worker's name and the file
// numbers of the worker's jobs.
func (m *Memory) matchesSearchLocked(workerID ledger.WorkerID, search string) bool {
	needle := strings.ToLower(search)
	if account, ok := m.accounts[workerID]; ok {
		if strings.Contains(strings.ToLower(account.Name), needle) {
			return true
		}
	}
	for _, job := range m.jobs {
		if job.WorkerID == workerID && strings.Contains(strings.ToLower(job.FileNumber), needle) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Received cash
// -----------------------------------------------------------------------------

func (m *Memory) CreateReceivedCash(_ context.Context, record ledger.ReceivedCashRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createReceivedCashLocked(record)
}

func (m *Memory) createReceivedCashLocked(record ledger.ReceivedCashRecord) error {
	m.seq++
	m.seqByID[record.ID] = m.seq
	m.receivedCash[record.ID] = record
	return nil
}

func (m *Memory) ListReceivedCash(_ context.Context, filter ledger.ReceivedCashFilter) ([]ledger.ReceivedCashRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReceivedCashLocked(filter)
}

func (m *Memory) listReceivedCashLocked(filter ledger.ReceivedCashFilter) ([]ledger.ReceivedCashRecord, error) {
	var records []ledger.ReceivedCashRecord
	for _, rec := range m.receivedCash {
		if filter.WorkerID != "" && rec.WorkerID != filter.WorkerID {
			continue
		}
		if !inRange(rec.CreatedAt, filter.From, filter.To) {
			continue
		}
		records = append(records, rec)
	}
	sortChronological(records, m.seqByID, func(r ledger.ReceivedCashRecord) (time.Time, string) { return r.CreatedAt, r.ID })
	return records, nil
}

// -----------------------------------------------------------------------------
// Expenses
// -----------------------------------------------------------------------------

func (m *Memory) GetExpense(_ context.Context, id string) (*ledger.ExpenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExpenseLocked(id)
}

func (m *Memory) getExpenseLocked(id string) (*ledger.ExpenseRecord, error) {
	expense, ok := m.expenses[id]
	if !ok {
		return nil, ledger.ErrExpenseNotFound
	}
	return &expense, nil
}

func (m *Memory) SaveExpense(_ context.Context, expense ledger.ExpenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveExpenseLocked(expense)
	return nil
}

func (m *Memory) saveExpenseLocked(expense ledger.ExpenseRecord) {
	if _, ok := m.seqByID[expense.ID]; !ok {
		m.seq++
		m.seqByID[expense.ID] = m.seq
	}
	m.expenses[expense.ID] = expense
}

func (m *Memory) ListExpenses(_ context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesLocked(filter)
}

func (m *Memory) listExpensesLocked(filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	var records []ledger.ExpenseRecord
	for _, rec := range m.expenses {
		if filter.WorkerID != "" && rec.WorkerID != filter.WorkerID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		records = append(records, rec)
	}
	sortChronological(records, m.seqByID, func(r ledger.ExpenseRecord) (time.Time, string) { return r.CreatedAt, r.ID })
	return records, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

// sortChronological orders records by creation time, breaking ties by
// insertion sequence (fake clocks in tests produce identical timestamps).
func sortChronological[T any](records []T, seq map[string]uint64, key func(T) (time.Time, string)) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, idi := key(records[i])
		tj, idj := key(records[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return seq[idi] < seq[idj]
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn atomically. For the memory store this is simulated
// with a deep snapshot taken under the write lock and restored on error.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts     map[ledger.WorkerID]ledger.WorkerAccount
	jobs         map[ledger.JobID]ledger.JobRecord
	advances     map[string]ledger.AdvanceRecord
	receivedCash map[string]ledger.ReceivedCashRecord
	expenses     map[string]ledger.ExpenseRecord
	seq          uint64
	seqByID      map[string]uint64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		accounts:     copyMap(m.accounts),
		jobs:         copyMap(m.jobs),
		advances:     copyMap(m.advances),
		receivedCash: copyMap(m.receivedCash),
		expenses:     copyMap(m.expenses),
		seq:          m.seq,
		seqByID:      copyMap(m.seqByID),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.jobs = s.jobs
	m.advances = s.advances
	m.receivedCash = s.receivedCash
	m.expenses = s.expenses
	m.seq = s.seq
	m.seqByID = s.seqByID
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txMemoryView operates on the parent while its write lock is held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetAccount(_ context.Context, id ledger.WorkerID) (*ledger.WorkerAccount, error) {
	return tv.parent.getAccountLocked(id)
}

func (tv *txMemoryView) SaveAccount(_ context.Context, account ledger.WorkerAccount) error {
	tv.parent.saveAccountLocked(account)
	return nil
}

func (tv *txMemoryView) GetJob(_ context.Context, id ledger.JobID) (*ledger.JobRecord, error) {
	return tv.parent.getJobLocked(id)
}

func (tv *txMemoryView) SaveJob(_ context.Context, job ledger.JobRecord) error {
	tv.parent.saveJobLocked(job)
	return nil
}

func (tv *txMemoryView) ListVerifiedJobs(_ context.Context, workerID ledger.WorkerID) ([]ledger.JobRecord, error) {
	return tv.parent.listVerifiedJobsLocked(workerID)
}

func (tv *txMemoryView) CreateAdvance(_ context.Context, record ledger.AdvanceRecord) error {
	return tv.parent.createAdvanceLocked(record)
}

func (tv *txMemoryView) UpdateAdvance(_ context.Context, record ledger.AdvanceRecord) error {
	return tv.parent.updateAdvanceLocked(record)
}

func (tv *txMemoryView) ListAdvances(_ context.Context, filter ledger.AdvanceFilter) ([]ledger.AdvanceRecord, error) {
	return tv.parent.listAdvancesLocked(filter)
}

func (tv *txMemoryView) CreateReceivedCash(_ context.Context, record ledger.ReceivedCashRecord) error {
	return tv.parent.createReceivedCashLocked(record)
}

func (tv *txMemoryView) ListReceivedCash(_ context.Context, filter ledger.ReceivedCashFilter) ([]ledger.ReceivedCashRecord, error) {
	return tv.parent.listReceivedCashLocked(filter)
}

func (tv *txMemoryView) GetExpense(_ context.Context, id string) (*ledger.ExpenseRecord, error) {
	return tv.parent.getExpenseLocked(id)
}

func (tv *txMemoryView) SaveExpense(_ context.Context, expense ledger.ExpenseRecord) error {
	tv.parent.saveExpenseLocked(expense)
	return nil
}

func (tv *txMemoryView) ListExpenses(_ context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	return tv.parent.listExpensesLocked(filter)
}
