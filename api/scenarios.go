/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for testing and demos. Each scenario creates workers, jobs,
	advances, and cash hand-overs that demonstrate specific flows.

AVAILABLE SCENARIOS:

	fresh-driver:       One driver, verified jobs, a single advance
	partial-settlement: Advance smaller than total dues, leftover carried
	cash-reconcile:     Driver hands cash back, including the zero-balance case
	expense-review:     Pending and approved expenses with redistribution

HOW SCENARIOS WORK:
 1. Create workers via the engine (IDs are fixed per scenario)
 2. Upsert verified jobs
 3. Issue advances / record hand-overs / file expenses

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-settlement"}

NOTE:

	Scenarios write through the live engine; use fixed IDs so reloading
	the same scenario fails fast instead of duplicating workers. Only use
	in development/demo environments.

SEE ALSO:
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-driver",
		Name:        "Fresh Driver",
		Description: "One driver with verified jobs and a single covering advance",
	},
	{
		ID:          "partial-settlement",
		Name:        "Partial Settlement",
		Description: "Advance smaller than total dues; leftover carried as held cash zero, outstanding remains",
	},
	{
		ID:          "cash-reconcile",
		Name:        "Cash Reconciliation",
		Description: "Driver hands cash back, including the zero-balance collection case",
	},
	{
		ID:          "expense-review",
		Name:        "Expense Review",
		Description: "Provider files expenses; one approved with redistribution, one left pending",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenario seeds the ledger with the requested scenario's data.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-driver":
		err = h.loadFreshDriver(r.Context())
	case "partial-settlement":
		err = h.loadPartialSettlement(r.Context())
	case "cash-reconcile":
		err = h.loadCashReconcile(r.Context())
	case "expense-review":
		err = h.loadExpenseReview(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshDriver(ctx context.Context) error {
	eng := h.Engine

	if _, err := eng.CreateAccount(ctx, ledger.WorkerAccount{
		ID:   "drv-ramesh",
		Kind: ledger.KindDriver,
		Name: "Ramesh Kumar",
	}); err != nil {
		return err
	}

	jobs := []struct {
		id, file string
		salary   float64
	}{
		{"job-1001", "FN-1001", 450},
		{"job-1002", "FN-1002", 300},
	}
	for _, j := range jobs {
		if _, err := eng.UpsertJob(ctx, ledger.JobRecord{
			ID:           ledger.JobID(j.id),
			WorkerID:     "drv-ramesh",
			FileNumber:   j.file,
			EarnedSalary: ledger.NewMoney(j.salary),
			TotalAmount:  ledger.NewMoney(j.salary * 4),
			Verified:     true,
		}); err != nil {
			return err
		}
	}

	// 1000 covers both dues (750); 250 stays outstanding.
	_, err := eng.CreateAdvance(ctx, ledger.CreateAdvanceInput{
		WorkerID: "drv-ramesh",
		Amount:   ledger.NewMoney(1000),
		Remark:   "Week 35 fuel and tolls",
		Kind:     ledger.KindDriver,
	})
	return err
}

func (h *Handler) loadPartialSettlement(ctx context.Context) error {
	eng := h.Engine

	if _, err := eng.CreateAccount(ctx, ledger.WorkerAccount{
		ID:   "drv-sunil",
		Kind: ledger.KindDriver,
		Name: "Sunil Varma",
	}); err != nil {
		return err
	}

	if _, err := eng.UpsertJob(ctx, ledger.JobRecord{
		ID:           "job-2001",
		WorkerID:     "drv-sunil",
		FileNumber:   "FN-2001",
		EarnedSalary: ledger.NewMoney(800),
		TotalAmount:  ledger.NewMoney(3200),
		Verified:     true,
	}); err != nil {
		return err
	}

	// 500 against an 800 due: job absorbs everything, 300 still owed.
	_, err := eng.CreateAdvance(ctx, ledger.CreateAdvanceInput{
		WorkerID: "drv-sunil",
		Amount:   ledger.NewMoney(500),
		Remark:   "Partial top-up",
		Kind:     ledger.KindDriver,
	})
	return err
}

func (h *Handler) loadCashReconcile(ctx context.Context) error {
	eng := h.Engine

	if _, err := eng.CreateAccount(ctx, ledger.WorkerAccount{
		ID:   "drv-imran",
		Kind: ledger.KindDriver,
		Name: "Imran Shaikh",
	}); err != nil {
		return err
	}

	// Opening float recorded by the directory.
	if _, err := eng.AdjustCash(ctx, "drv-imran", ledger.NewMoney(600)); err != nil {
		return err
	}

	// Hands back 400 of the 600 float.
	if _, err := eng.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "drv-imran",
		AmountHandedOver: ledger.NewMoney(400),
		Remark:           "End of shift",
	}); err != nil {
		return err
	}

	// A second driver with nothing on the books hands over customer cash
	// collected directly; balance goes negative by design.
	if _, err := eng.CreateAccount(ctx, ledger.WorkerAccount{
		ID:   "drv-collect",
		Kind: ledger.KindDriver,
		Name: "Pavan Reddy",
	}); err != nil {
		return err
	}
	_, err := eng.RecordReceivedCash(ctx, ledger.ReceivedCashInput{
		WorkerID:         "drv-collect",
		AmountHandedOver: ledger.NewMoney(250),
		Remark:           "Customer cash collected on trip",
	})
	return err
}

func (h *Handler) loadExpenseReview(ctx context.Context) error {
	eng := h.Engine

	if _, err := eng.CreateAccount(ctx, ledger.WorkerAccount{
		ID:   "prv-meena",
		Kind: ledger.KindProvider,
		Name: "Meena Services",
	}); err != nil {
		return err
	}

	if _, err := eng.UpsertJob(ctx, ledger.JobRecord{
		ID:           "job-3001",
		WorkerID:     "prv-meena",
		FileNumber:   "FN-3001",
		EarnedSalary: ledger.NewMoney(1200),
		TotalAmount:  ledger.NewMoney(5000),
		Verified:     true,
	}); err != nil {
		return err
	}

	if _, err := eng.CreateAdvance(ctx, ledger.CreateAdvanceInput{
		WorkerID: "prv-meena",
		Amount:   ledger.NewMoney(2000),
		Remark:   "Monthly retainer advance",
		Kind:     ledger.KindProvider,
	}); err != nil {
		return err
	}

	approved, err := eng.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID:    "prv-meena",
		Amount:      ledger.NewMoney(350),
		Description: "Replacement tyre",
	})
	if err != nil {
		return err
	}
	if _, err := eng.ApproveExpense(ctx, approved.ID); err != nil {
		return err
	}

	// Left pending for the review queue.
	_, err = eng.SubmitExpense(ctx, ledger.ExpenseInput{
		WorkerID:    "prv-meena",
		Amount:      ledger.NewMoney(120),
		Description: "Parking fines - disputed",
	})
	return err
}
