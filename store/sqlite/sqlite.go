/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  workers:       Per-worker money state (held cash, outstanding, salary)
  jobs:          Settlement-relevant subset of bookings
  advances:      Advance history with allocation breakdown (JSON column)
  received_cash: Cash hand-over history
  expenses:      Reimbursable expenses with status

MONEY:
  Amounts are stored as TEXT in decimal string form, never as REAL.
  Binary floating point has no place in a cash ledger.

CONCURRENCY:
  WAL mode: multiple readers don't block, single writer at a time.
  Transactions open with BEGIN IMMEDIATE (_txlock=immediate) so write
  intent is declared up front. A busy/locked error maps to
  ledger.ErrConflict, which the engine retries inside the per-worker
  exclusive section.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/dispatch-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pooled connection: keeps :memory: databases coherent and
	// serializes writes at the pool instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		held_cash TEXT NOT NULL,
		outstanding_advance TEXT NOT NULL,
		accumulated_salary TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		file_number TEXT NOT NULL DEFAULT '',
		earned_salary TEXT NOT NULL,
		paid_from_advances TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		received_from_customer TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Hot path: settlement fetches verified jobs per worker in order
	CREATE INDEX IF NOT EXISTS idx_jobs_worker_verified
		ON jobs(worker_id, verified, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_jobs_file_number
		ON jobs(file_number);

	CREATE TABLE IF NOT EXISTS advances (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		kind TEXT NOT NULL,
		added_amount TEXT NOT NULL,
		outstanding_after TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		allocation_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advances_worker
		ON advances(worker_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_advances_kind
		ON advances(kind);

	CREATE TABLE IF NOT EXISTS received_cash (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		amount_handed_over TEXT NOT NULL,
		resulting_balance TEXT NOT NULL,
		net_amount_snapshot TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_received_cash_worker
		ON received_cash(worker_id, created_at);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		decided_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_worker
		ON expenses(worker_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_expenses_status
		ON expenses(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Busy/locked errors
// surface as ledger.ErrConflict for the engine's retry loop.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}

	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

func translateErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
		}
	}
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against a querier, so the same code
// serves direct reads and transactional writes.
type queries struct {
	q querier
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *queries) GetAccount(ctx context.Context, id ledger.WorkerID) (*ledger.WorkerAccount, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, kind, name, held_cash, outstanding_advance, accumulated_salary, created_at, updated_at
		FROM workers WHERE id = ?`, string(id))

	var (
		account              ledger.WorkerAccount
		held, outst, salary  string
		createdAt, updatedAt string
	)
	err := row.Scan(&account.ID, &account.Kind, &account.Name, &held, &outst, &salary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}

	if account.HeldCash, err = ledger.ParseMoney(held); err != nil {
		return nil, fmt.Errorf("worker %s held_cash: %w", id, err)
	}
	if account.OutstandingAdvance, err = ledger.ParseMoney(outst); err != nil {
		return nil, fmt.Errorf("worker %s outstanding_advance: %w", id, err)
	}
	if account.AccumulatedSalary, err = ledger.ParseMoney(salary); err != nil {
		return nil, fmt.Errorf("worker %s accumulated_salary: %w", id, err)
	}
	account.CreatedAt = parseTime(createdAt)
	account.UpdatedAt = parseTime(updatedAt)
	return &account, nil
}

func (s *queries) SaveAccount(ctx context.Context, account ledger.WorkerAccount) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO workers (id, kind, name, held_cash, outstanding_advance, accumulated_salary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			held_cash = excluded.held_cash,
			outstanding_advance = excluded.outstanding_advance,
			accumulated_salary = excluded.accumulated_salary,
			updated_at = excluded.updated_at`,
		string(account.ID), string(account.Kind), account.Name,
		account.HeldCash.String(), account.OutstandingAdvance.String(), account.AccumulatedSalary.String(),
		formatTime(account.CreatedAt), formatTime(account.UpdatedAt))
	return err
}

// =============================================================================
// JOBS
// =============================================================================

const jobColumns = `id, worker_id, file_number, earned_salary, paid_from_advances,
	total_amount, received_from_customer, verified, created_at`

func (s *queries) GetJob(ctx context.Context, id ledger.JobID) (*ledger.JobRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, string(id))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrJobNotFound
	}
	return job, err
}

func (s *queries) SaveJob(ctx context.Context, job ledger.JobRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO jobs (id, worker_id, file_number, earned_salary, paid_from_advances,
			total_amount, received_from_customer, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			worker_id = excluded.worker_id,
			file_number = excluded.file_number,
			earned_salary = excluded.earned_salary,
			paid_from_advances = excluded.paid_from_advances,
			total_amount = excluded.total_amount,
			received_from_customer = excluded.received_from_customer,
			verified = excluded.verified`,
		string(job.ID), string(job.WorkerID), job.FileNumber,
		job.EarnedSalary.String(), job.PaidFromAdvances.String(),
		job.TotalAmount.String(), job.ReceivedFromCustomer.String(),
		boolToInt(job.Verified), formatTime(job.CreatedAt))
	return err
}

func (s *queries) ListVerifiedJobs(ctx context.Context, workerID ledger.WorkerID) ([]ledger.JobRecord, error) {
	// Settlement order is part of the algorithm's contract.
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE worker_id = ? AND verified = 1
		 ORDER BY created_at ASC, id ASC`, string(workerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ledger.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ledger.JobRecord, error) {
	var (
		job                        ledger.JobRecord
		earned, paid, total, recvd string
		verified                   int
		createdAt                  string
	)
	err := row.Scan(&job.ID, &job.WorkerID, &job.FileNumber, &earned, &paid,
		&total, &recvd, &verified, &createdAt)
	if err != nil {
		return nil, err
	}

	if job.EarnedSalary, err = ledger.ParseMoney(earned); err != nil {
		return nil, fmt.Errorf("job %s earned_salary: %w", job.ID, err)
	}
	if job.PaidFromAdvances, err = ledger.ParseMoney(paid); err != nil {
		return nil, fmt.Errorf("job %s paid_from_advances: %w", job.ID, err)
	}
	if job.TotalAmount, err = ledger.ParseMoney(total); err != nil {
		return nil, fmt.Errorf("job %s total_amount: %w", job.ID, err)
	}
	if job.ReceivedFromCustomer, err = ledger.ParseMoney(recvd); err != nil {
		return nil, fmt.Errorf("job %s received_from_customer: %w", job.ID, err)
	}
	job.Verified = verified != 0
	job.CreatedAt = parseTime(createdAt)
	return &job, nil
}

// =============================================================================
// ADVANCES
// =============================================================================

func (s *queries) CreateAdvance(ctx context.Context, record ledger.AdvanceRecord) error {
	allocation, err := json.Marshal(record.Allocation)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO advances (id, worker_id, kind, added_amount, outstanding_after, remark, allocation_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, string(record.WorkerID), string(record.Kind),
		record.AddedAmount.String(), record.OutstandingAfter.String(),
		record.Remark, string(allocation), formatTime(record.CreatedAt))
	return err
}

func (s *queries) UpdateAdvance(ctx context.Context, record ledger.AdvanceRecord) error {
	allocation, err := json.Marshal(record.Allocation)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE advances
		SET added_amount = ?, outstanding_after = ?, remark = ?, allocation_json = ?
		WHERE id = ?`,
		record.AddedAmount.String(), record.OutstandingAfter.String(),
		record.Remark, string(allocation), record.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAdvanceNotFound
	}
	return nil
}

func (s *queries) ListAdvances(ctx context.Context, filter ledger.AdvanceFilter) ([]ledger.AdvanceRecord, error) {
	query := `
		SELECT a.id, a.worker_id, a.kind, a.added_amount, a.outstanding_after,
		       a.remark, a.allocation_json, a.created_at
		FROM advances a
		JOIN workers w ON w.id = a.worker_id`
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "a.kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.WorkerID != "" {
		where = append(where, "a.worker_id = ?")
		args = append(args, string(filter.WorkerID))
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, `(LOWER(w.name) LIKE ? OR EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.worker_id = a.worker_id AND LOWER(j.file_number) LIKE ?))`)
		args = append(args, pattern, pattern)
	}
	if !filter.From.IsZero() {
		where = append(where, "a.created_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "a.created_at <= ?")
		args = append(args, formatTime(filter.To))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at ASC, a.id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.AdvanceRecord
	for rows.Next() {
		var (
			rec                   ledger.AdvanceRecord
			added, outst          string
			allocation, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &rec.Kind, &added, &outst,
			&rec.Remark, &allocation, &createdAt); err != nil {
			return nil, err
		}
		if rec.AddedAmount, err = ledger.ParseMoney(added); err != nil {
			return nil, fmt.Errorf("advance %s added_amount: %w", rec.ID, err)
		}
		if rec.OutstandingAfter, err = ledger.ParseMoney(outst); err != nil {
			return nil, fmt.Errorf("advance %s outstanding_after: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(allocation), &rec.Allocation); err != nil {
			return nil, fmt.Errorf("advance %s allocation: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// RECEIVED CASH
// =============================================================================

func (s *queries) CreateReceivedCash(ctx context.Context, record ledger.ReceivedCashRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO received_cash (id, worker_id, amount_handed_over, resulting_balance, net_amount_snapshot, remark, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, string(record.WorkerID),
		record.AmountHandedOver.String(), record.ResultingBalance.String(), record.NetAmountSnapshot.String(),
		record.Remark, formatTime(record.CreatedAt))
	return err
}

func (s *queries) ListReceivedCash(ctx context.Context, filter ledger.ReceivedCashFilter) ([]ledger.ReceivedCashRecord, error) {
	query := `
		SELECT id, worker_id, amount_handed_over, resulting_balance, net_amount_snapshot, remark, created_at
		FROM received_cash`
	var (
		where []string
		args  []any
	)
	if filter.WorkerID != "" {
		where = append(where, "worker_id = ?")
		args = append(args, string(filter.WorkerID))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(filter.To))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.ReceivedCashRecord
	for rows.Next() {
		var (
			rec                  ledger.ReceivedCashRecord
			amount, balance, net string
			createdAt            string
		)
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &amount, &balance, &net,
			&rec.Remark, &createdAt); err != nil {
			return nil, err
		}
		if rec.AmountHandedOver, err = ledger.ParseMoney(amount); err != nil {
			return nil, fmt.Errorf("received_cash %s amount: %w", rec.ID, err)
		}
		if rec.ResultingBalance, err = ledger.ParseMoney(balance); err != nil {
			return nil, fmt.Errorf("received_cash %s balance: %w", rec.ID, err)
		}
		if rec.NetAmountSnapshot, err = ledger.ParseMoney(net); err != nil {
			return nil, fmt.Errorf("received_cash %s net: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// EXPENSES
// =============================================================================

func (s *queries) GetExpense(ctx context.Context, id string) (*ledger.ExpenseRecord, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, worker_id, amount, description, status, created_at, decided_at
		FROM expenses WHERE id = ?`, id)

	var (
		expense   ledger.ExpenseRecord
		amount    string
		createdAt string
		decidedAt sql.NullString
	)
	err := row.Scan(&expense.ID, &expense.WorkerID, &amount, &expense.Description,
		&expense.Status, &createdAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrExpenseNotFound
	}
	if err != nil {
		return nil, err
	}

	if expense.Amount, err = ledger.ParseMoney(amount); err != nil {
		return nil, fmt.Errorf("expense %s amount: %w", id, err)
	}
	expense.CreatedAt = parseTime(createdAt)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		expense.DecidedAt = &t
	}
	return &expense, nil
}

func (s *queries) SaveExpense(ctx context.Context, expense ledger.ExpenseRecord) error {
	var decidedAt any
	if expense.DecidedAt != nil {
		decidedAt = formatTime(*expense.DecidedAt)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO expenses (id, worker_id, amount, description, status, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			description = excluded.description,
			status = excluded.status,
			decided_at = excluded.decided_at`,
		expense.ID, string(expense.WorkerID), expense.Amount.String(),
		expense.Description, string(expense.Status), formatTime(expense.CreatedAt), decidedAt)
	return err
}

func (s *queries) ListExpenses(ctx context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	query := `
		SELECT id, worker_id, amount, description, status, created_at, decided_at
		FROM expenses`
	var (
		where []string
		args  []any
	)
	if filter.WorkerID != "" {
		where = append(where, "worker_id = ?")
		args = append(args, string(filter.WorkerID))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.ExpenseRecord
	for rows.Next() {
		var (
			expense   ledger.ExpenseRecord
			amount    string
			createdAt string
			decidedAt sql.NullString
		)
		if err := rows.Scan(&expense.ID, &expense.WorkerID, &amount, &expense.Description,
			&expense.Status, &createdAt, &decidedAt); err != nil {
			return nil, err
		}
		if expense.Amount, err = ledger.ParseMoney(amount); err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", expense.ID, err)
		}
		expense.CreatedAt = parseTime(createdAt)
		if decidedAt.Valid {
			t := parseTime(decidedAt.String)
			expense.DecidedAt = &t
		}
		records = append(records, expense)
	}
	return records, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
