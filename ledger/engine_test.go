package ledger_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dispatch-ledger/ledger"
	memstore "github.com/warp/dispatch-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(t *testing.T, opts ...ledger.Option) (*ledger.Engine, *memstore.Memory) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	// Ticking fake clock: every call advances one second, so records
	// created back-to-back still order deterministically.
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Second)
	}

	store := memstore.NewMemory()
	opts = append([]ledger.Option{ledger.WithLogger(log), ledger.WithClock(clock)}, opts...)
	return ledger.NewEngine(store, opts...), store
}

func mustCreateDriver(t *testing.T, e *ledger.Engine, id, name string) {
	t.Helper()
	_, err := e.CreateAccount(context.Background(), ledger.WorkerAccount{
		ID:   ledger.WorkerID(id),
		Kind: ledger.KindDriver,
		Name: name,
	})
	require.NoError(t, err)
}

func mustUpsertJob(t *testing.T, e *ledger.Engine, workerID, jobID, fileNumber string, salary float64) {
	t.Helper()
	_, err := e.UpsertJob(context.Background(), ledger.JobRecord{
		ID:           ledger.JobID(jobID),
		WorkerID:     ledger.WorkerID(workerID),
		FileNumber:   fileNumber,
		EarnedSalary: ledger.NewMoney(salary),
		Verified:     true,
	})
	require.NoError(t, err)
}

func mustAdvance(t *testing.T, e *ledger.Engine, workerID string, amount float64, remark string) *ledger.AdvanceResult {
	t.Helper()
	result, err := e.CreateAdvance(context.Background(), ledger.CreateAdvanceInput{
		WorkerID: ledger.WorkerID(workerID),
		Amount:   ledger.NewMoney(amount),
		Remark:   remark,
		Kind:     ledger.KindDriver,
	})
	require.NoError(t, err)
	return result
}

// =============================================================================
// ACCOUNT TESTS
// =============================================================================

func TestCreateAccount_DuplicateRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")

	_, err := engine.CreateAccount(ctx, ledger.WorkerAccount{ID: "w-1", Kind: ledger.KindDriver})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestAdjustCash_FloorAppliesUniformly(t *testing.T) {
	// GIVEN: A worker holding 200
	// WHEN: Withdrawing 250 via a manual adjustment
	// THEN: Rejected even though the hand-over flow's zero exemption exists

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	account, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(200))
	require.NoError(t, err)
	assert.True(t, account.HeldCash.Equal(ledger.NewMoney(200)))

	_, err = engine.AdjustCash(ctx, "w-1", ledger.NewMoney(-250))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// And from zero too: no exemption on this path.
	mustCreateDriver(t, engine, "w-2", "Binu")
	_, err = engine.AdjustCash(ctx, "w-2", ledger.NewMoney(-10))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

// =============================================================================
// ADVANCE LIFECYCLE TESTS
// =============================================================================

func TestCreateAdvance_SettlesAcrossJobs(t *testing.T) {
	// GIVEN: Two verified jobs, salaries 500 and 300, nothing paid yet
	// WHEN: createAdvance(600)
	// THEN: Job 1 fully settled, job 2 paid 100, outstanding 0

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 500)
	mustUpsertJob(t, engine, "w-1", "job-2", "FN-2", 300)

	result := mustAdvance(t, engine, "w-1", 600, "topup")

	assert.True(t, result.Account.OutstandingAdvance.IsZero(),
		"outstanding = %v, want 0", result.Account.OutstandingAdvance)
	assert.True(t, result.Record.OutstandingAfter.IsZero())

	require.Len(t, result.Record.Allocation, 2)
	assert.Equal(t, ledger.JobID("job-1"), result.Record.Allocation[0].JobID)
	assert.True(t, result.Record.Allocation[0].PaidNow.Equal(ledger.NewMoney(500)))
	assert.Equal(t, ledger.JobID("job-2"), result.Record.Allocation[1].JobID)
	assert.True(t, result.Record.Allocation[1].PaidNow.Equal(ledger.NewMoney(100)))

	job2, err := store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.True(t, job2.PaidFromAdvances.Equal(ledger.NewMoney(100)))
}

func TestCreateAdvance_SecondTopUpArchivesAndCarries(t *testing.T) {
	// GIVEN: The worker from the previous scenario (job 2 still due 200)
	// WHEN: createAdvance(1000)
	// THEN: Job 1 skipped, job 2 settled at 300, outstanding 800,
	//       the first record archived with outstandingAfter zeroed

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 500)
	mustUpsertJob(t, engine, "w-1", "job-2", "FN-2", 300)
	mustAdvance(t, engine, "w-1", 600, "topup")

	result := mustAdvance(t, engine, "w-1", 1000, "topup2")

	assert.True(t, result.Account.OutstandingAdvance.Equal(ledger.NewMoney(800)),
		"outstanding = %v, want 800", result.Account.OutstandingAdvance)

	require.Len(t, result.Record.Allocation, 1)
	assert.Equal(t, ledger.JobID("job-2"), result.Record.Allocation[0].JobID)
	assert.True(t, result.Record.Allocation[0].PaidNow.Equal(ledger.NewMoney(200)))

	job2, err := store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.True(t, job2.PaidFromAdvances.Equal(job2.EarnedSalary), "job 2 fully settled")

	history, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].OutstandingAfter.IsZero(), "archived record zeroed")
	assert.True(t, history[0].AddedAmount.Equal(ledger.NewMoney(600)), "archive keeps the original amount")
	assert.True(t, history[1].OutstandingAfter.Equal(ledger.NewMoney(800)))
}

func TestCreateAdvance_NonZeroPriorOutstandingMerged(t *testing.T) {
	// GIVEN: A worker with no jobs and an unsettled advance of 400
	// WHEN: createAdvance(100)
	// THEN: Outstanding = 500 and the prior record is zeroed

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	mustAdvance(t, engine, "w-1", 400, "first")
	result := mustAdvance(t, engine, "w-1", 100, "second")

	assert.True(t, result.Account.OutstandingAdvance.Equal(ledger.NewMoney(500)))
	assert.True(t, result.Record.OutstandingAfter.Equal(ledger.NewMoney(500)))

	history, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].OutstandingAfter.IsZero())
}

func TestCreateAdvance_MoneyConservation(t *testing.T) {
	// GIVEN: A worker untouched by expense deductions
	// THEN: Σ paidFromAdvances + outstandingAdvance == Σ addedAmount, always

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 450)
	mustUpsertJob(t, engine, "w-1", "job-2", "FN-2", 275)
	mustUpsertJob(t, engine, "w-1", "job-3", "FN-3", 125)

	amounts := []float64{300, 120, 700, 55}
	totalAdded := ledger.Zero()
	for _, amount := range amounts {
		mustAdvance(t, engine, "w-1", amount, "topup")
		totalAdded = totalAdded.Add(ledger.NewMoney(amount))
	}

	account, err := engine.GetAccount(ctx, "w-1")
	require.NoError(t, err)

	totalPaid := ledger.Zero()
	for _, jobID := range []ledger.JobID{"job-1", "job-2", "job-3"} {
		job, err := store.GetJob(ctx, jobID)
		require.NoError(t, err)
		totalPaid = totalPaid.Add(job.PaidFromAdvances)
	}

	assert.True(t, totalPaid.Add(account.OutstandingAdvance).Equal(totalAdded),
		"paid %v + outstanding %v != added %v", totalPaid, account.OutstandingAdvance, totalAdded)
}

func TestCreateAdvance_Validation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	cases := []struct {
		name string
		in   ledger.CreateAdvanceInput
	}{
		{"missing worker", ledger.CreateAdvanceInput{Amount: ledger.NewMoney(100), Remark: "x", Kind: ledger.KindDriver}},
		{"zero amount", ledger.CreateAdvanceInput{WorkerID: "w-1", Remark: "x", Kind: ledger.KindDriver}},
		{"negative amount", ledger.CreateAdvanceInput{WorkerID: "w-1", Amount: ledger.NewMoney(-5), Remark: "x", Kind: ledger.KindDriver}},
		{"missing remark", ledger.CreateAdvanceInput{WorkerID: "w-1", Amount: ledger.NewMoney(100), Kind: ledger.KindDriver}},
		{"bad kind", ledger.CreateAdvanceInput{WorkerID: "w-1", Amount: ledger.NewMoney(100), Remark: "x", Kind: "manager"}},
		{"kind mismatch", ledger.CreateAdvanceInput{WorkerID: "w-1", Amount: ledger.NewMoney(100), Remark: "x", Kind: ledger.KindProvider}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.CreateAdvance(ctx, tc.in)
			assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
		})
	}

	_, err := engine.CreateAdvance(ctx, ledger.CreateAdvanceInput{
		WorkerID: "nobody", Amount: ledger.NewMoney(100), Remark: "x", Kind: ledger.KindDriver,
	})
	assert.ErrorIs(t, err, ledger.ErrWorkerNotFound)
}

func TestConcurrentAdvances_SerializedPerWorker(t *testing.T) {
	// GIVEN: Many goroutines topping up the same worker
	// WHEN: All complete
	// THEN: Conservation holds - no double allocation slipped through

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 900)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CreateAdvance(ctx, ledger.CreateAdvanceInput{
				WorkerID: "w-1",
				Amount:   ledger.NewMoney(100),
				Remark:   "concurrent topup",
				Kind:     ledger.KindDriver,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := engine.GetAccount(ctx, "w-1")
	require.NoError(t, err)
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)

	assert.True(t, job.PaidFromAdvances.Equal(ledger.NewMoney(900)), "job fully settled")
	assert.True(t, account.OutstandingAdvance.Equal(ledger.NewMoney(n*100-900)),
		"outstanding = %v, want %d", account.OutstandingAdvance, n*100-900)
}

// =============================================================================
// RECEIVED-CASH RECONCILIATION TESTS
// =============================================================================

func TestRecordReceivedCash_OverdraftOnNonzeroBalanceRejected(t *testing.T) {
	// GIVEN: heldCash = 200
	// WHEN: Handing over 250
	// THEN: InsufficientBalance, balance unchanged

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")
	_, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(200))
	require.NoError(t, err)

	_, err = engine.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "w-1",
		AmountHandedOver: ledger.NewMoney(250),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	account, err := engine.GetAccount(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, account.HeldCash.Equal(ledger.NewMoney(200)), "balance unchanged after rejection")
}

func TestRecordReceivedCash_ZeroBalanceGoesNegative(t *testing.T) {
	// GIVEN: heldCash = 0 and the default policy
	// WHEN: Handing over 100
	// THEN: Accepted; resultingBalance = -100 (the documented special case)

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	result, err := engine.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "w-1",
		AmountHandedOver: ledger.NewMoney(100),
		Remark:           "collected from customer",
	})
	require.NoError(t, err)

	assert.True(t, result.Account.HeldCash.Equal(ledger.NewMoney(-100)))
	assert.True(t, result.Record.ResultingBalance.Equal(ledger.NewMoney(-100)))
	assert.True(t, result.Record.NetAmountSnapshot.IsZero(), "snapshot taken before the deduction")
}

func TestRecordReceivedCash_ZeroExemptionDisabledByPolicy(t *testing.T) {
	engine, _ := newTestEngine(t, ledger.WithPolicy(ledger.Policy{AllowOverdraftFromZero: false}))
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	_, err := engine.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "w-1",
		AmountHandedOver: ledger.NewMoney(100),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestRecordReceivedCash_SnapshotsNetBeforeTransaction(t *testing.T) {
	// GIVEN: heldCash 500, outstandingAdvance 200 (net 300)
	// WHEN: Handing over 150
	// THEN: Record carries net 300, not the post-deduction figure

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")
	_, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(500))
	require.NoError(t, err)
	mustAdvance(t, engine, "w-1", 200, "unsettled")

	result, err := engine.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "w-1",
		AmountHandedOver: ledger.NewMoney(150),
	})
	require.NoError(t, err)

	assert.True(t, result.Record.NetAmountSnapshot.Equal(ledger.NewMoney(300)),
		"snapshot = %v, want 300", result.Record.NetAmountSnapshot)
	assert.True(t, result.Account.HeldCash.Equal(ledger.NewMoney(350)))
}

// =============================================================================
// EXPENSE TESTS
// =============================================================================

func TestExpenseLifecycle_ApproveDeductsAndRedistributes(t *testing.T) {
	// GIVEN: A funded worker with one due job
	// WHEN: An expense is filed and approved
	// THEN: Held cash drops, the amount is re-allocated over job dues,
	//       the expense is marked approved with a decision time

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 400)
	_, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(500))
	require.NoError(t, err)

	expense, err := engine.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID:    "w-1",
		Amount:      ledger.NewMoney(300),
		Description: "tyre replacement",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.ExpensePending, expense.Status)

	result, err := engine.ApproveExpense(ctx, expense.ID)
	require.NoError(t, err)

	assert.True(t, result.Account.HeldCash.Equal(ledger.NewMoney(200)))
	assert.Equal(t, ledger.ExpenseApproved, result.Expense.Status)
	require.NotNil(t, result.Expense.DecidedAt)

	require.Len(t, result.Allocation, 1)
	assert.True(t, result.Allocation[0].PaidNow.Equal(ledger.NewMoney(300)))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.PaidFromAdvances.Equal(ledger.NewMoney(300)))

	// A decided expense cannot be decided again.
	_, err = engine.ApproveExpense(ctx, expense.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
	_, err = engine.RejectExpense(ctx, expense.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestApproveExpense_FloorEnforcedByDefault(t *testing.T) {
	// GIVEN: heldCash 100, pending expense of 300
	// WHEN: Approving under the default policy
	// THEN: InsufficientBalance; nothing moves

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")
	_, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(100))
	require.NoError(t, err)

	expense, err := engine.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID: "w-1", Amount: ledger.NewMoney(300), Description: "fuel",
	})
	require.NoError(t, err)

	_, err = engine.ApproveExpense(ctx, expense.ID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	account, err := engine.GetAccount(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, account.HeldCash.Equal(ledger.NewMoney(100)))

	got, err := engine.ListExpenses(ctx, ledger.ExpenseFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.ExpensePending, got[0].Status, "expense stays pending after a failed approval")
}

func TestApproveExpense_OverdraftPermittedByPolicy(t *testing.T) {
	engine, _ := newTestEngine(t, ledger.WithPolicy(ledger.Policy{
		AllowOverdraftFromZero: true,
		AllowExpenseOverdraft:  true,
	}))
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")

	expense, err := engine.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID: "w-1", Amount: ledger.NewMoney(300), Description: "fuel",
	})
	require.NoError(t, err)

	result, err := engine.ApproveExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.True(t, result.Account.HeldCash.Equal(ledger.NewMoney(-300)))
}

func TestRejectExpense_NoMoneyMoves(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateDriver(t, engine, "w-1", "Asha")
	_, err := engine.AdjustCash(ctx, "w-1", ledger.NewMoney(500))
	require.NoError(t, err)

	expense, err := engine.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID: "w-1", Amount: ledger.NewMoney(120), Description: "disputed fine",
	})
	require.NoError(t, err)

	result, err := engine.RejectExpense(ctx, expense.ID)
	require.NoError(t, err)

	assert.Equal(t, ledger.ExpenseRejected, result.Expense.Status)
	require.NotNil(t, result.Expense.DecidedAt)
	assert.True(t, result.Account.HeldCash.Equal(ledger.NewMoney(500)), "rejection moves no money")
}

// =============================================================================
// JOB INTAKE TESTS
// =============================================================================

func TestUpsertJob_PreservesSettlementProgress(t *testing.T) {
	// GIVEN: A job partially settled by an advance
	// WHEN: The booking subsystem re-writes its fields
	// THEN: paidFromAdvances survives - settlement is its only writer

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-1", 500)
	mustAdvance(t, engine, "w-1", 200, "partial")

	_, err := engine.UpsertJob(ctx, ledger.JobRecord{
		ID:           "job-1",
		WorkerID:     "w-1",
		FileNumber:   "FN-1-corrected",
		EarnedSalary: ledger.NewMoney(500),
		Verified:     true,
	})
	require.NoError(t, err)

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.PaidFromAdvances.Equal(ledger.NewMoney(200)))
	assert.Equal(t, "FN-1-corrected", job.FileNumber)
}

func TestCreateAdvance_UnverifiedJobsExcluded(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	_, err := engine.UpsertJob(ctx, ledger.JobRecord{
		ID: "job-1", WorkerID: "w-1", EarnedSalary: ledger.NewMoney(500), Verified: false,
	})
	require.NoError(t, err)

	result := mustAdvance(t, engine, "w-1", 300, "topup")

	assert.Empty(t, result.Record.Allocation)
	assert.True(t, result.Account.OutstandingAdvance.Equal(ledger.NewMoney(300)))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.PaidFromAdvances.IsZero())
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestListAdvances_Filters(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha Pillai")
	mustCreateDriver(t, engine, "w-2", "Binu George")
	mustUpsertJob(t, engine, "w-1", "job-1", "FN-7781", 100)
	mustAdvance(t, engine, "w-1", 150, "a")
	mustAdvance(t, engine, "w-2", 250, "b")

	_, err := engine.CreateAccount(ctx, ledger.WorkerAccount{ID: "p-1", Kind: ledger.KindProvider, Name: "Meena Services"})
	require.NoError(t, err)
	_, err = engine.CreateAdvance(ctx, ledger.CreateAdvanceInput{
		WorkerID: "p-1", Amount: ledger.NewMoney(999), Remark: "c", Kind: ledger.KindProvider,
	})
	require.NoError(t, err)

	byKind, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{Kind: ledger.KindProvider})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, ledger.WorkerID("p-1"), byKind[0].WorkerID)

	byWorker, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{WorkerID: "w-2"})
	require.NoError(t, err)
	require.Len(t, byWorker, 1)
	assert.True(t, byWorker[0].AddedAmount.Equal(ledger.NewMoney(250)))

	// Free-text search spans worker names and job file numbers.
	byName, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{Search: "asha"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, ledger.WorkerID("w-1"), byName[0].WorkerID)

	byFile, err := engine.ListAdvances(ctx, ledger.AdvanceFilter{Search: "7781"})
	require.NoError(t, err)
	require.Len(t, byFile, 1)
	assert.Equal(t, ledger.WorkerID("w-1"), byFile[0].WorkerID)
}

func TestStatement_DateRangeAndOrdering(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateDriver(t, engine, "w-1", "Asha")
	mustAdvance(t, engine, "w-1", 100, "first")
	mustAdvance(t, engine, "w-1", 200, "second")
	_, err := engine.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID: "w-1", AmountHandedOver: ledger.NewMoney(50),
	})
	require.NoError(t, err)

	statement, err := engine.Statement(ctx, "w-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, statement.Advances, 2)
	assert.Equal(t, "first", statement.Advances[0].Remark, "history is chronological")
	require.Len(t, statement.ReceivedCash, 1)

	// A range before everything yields an empty statement, not an error.
	past := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	empty, err := engine.Statement(ctx, "w-1", past, past.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty.Advances)
	assert.Empty(t, empty.ReceivedCash)
}
