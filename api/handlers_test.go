/*
handlers_test.go - HTTP-level tests for the API surface

Tests for:
- Worker onboarding and lookup
- Advance creation, settlement results in responses, and history filters
- Received-cash overdraft mapping to 409
- Expense decision endpoints
- Statement JSON and Excel export
- Scenario loading
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dispatch-ledger/ledger"
	memstore "github.com/warp/dispatch-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	engine := ledger.NewEngine(memstore.NewMemory(), ledger.WithLogger(log))
	return NewRouter(NewHandler(engine))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func createWorker(t *testing.T, router http.Handler, id, kind, name string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/workers", CreateWorkerRequest{
		ID: id, Kind: kind, Name: name,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func createJob(t *testing.T, router http.Handler, workerID, jobID string, salary float64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/workers/"+workerID+"/jobs", UpsertJobRequest{
		ID: jobID, FileNumber: "FN-" + jobID, EarnedSalary: salary, Verified: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// WORKER ENDPOINTS
// =============================================================================

func TestWorkerEndpoints(t *testing.T) {
	router := newTestRouter(t)

	createWorker(t, router, "w-1", "driver", "Asha Pillai")

	rec := doJSON(t, router, http.MethodGet, "/api/workers/w-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account := decodeBody[AccountDTO](t, rec)
	assert.Equal(t, "driver", account.Kind)
	assert.Equal(t, "Asha Pillai", account.Name)
	assert.Zero(t, account.HeldCash)

	// Unknown worker maps to 404.
	rec = doJSON(t, router, http.MethodGet, "/api/workers/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Duplicate registration maps to 400.
	rec = doJSON(t, router, http.MethodPost, "/api/workers", CreateWorkerRequest{ID: "w-1", Kind: "driver"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Validator rejects an unknown kind before the engine sees it.
	rec = doJSON(t, router, http.MethodPost, "/api/workers", CreateWorkerRequest{ID: "w-2", Kind: "manager"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADVANCE ENDPOINTS
// =============================================================================

func TestAdvanceEndpoints(t *testing.T) {
	router := newTestRouter(t)

	createWorker(t, router, "w-1", "driver", "Asha Pillai")
	createJob(t, router, "w-1", "j1", 500)
	createJob(t, router, "w-1", "j2", 300)

	rec := doJSON(t, router, http.MethodPost, "/api/workers/w-1/advances", CreateAdvanceRequest{
		Amount: 600, Remark: "topup", Kind: "driver",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[AdvanceResponse](t, rec)
	assert.Zero(t, resp.Account.OutstandingAdvance)
	require.Len(t, resp.Advance.Allocation, 2)
	assert.Equal(t, 500.0, resp.Advance.Allocation[0].PaidNow)
	assert.Equal(t, 100.0, resp.Advance.Allocation[1].PaidNow)

	// Missing remark fails validation with a field message.
	rec = doJSON(t, router, http.MethodPost, "/api/workers/w-1/advances", CreateAdvanceRequest{
		Amount: 100, Kind: "driver",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Remark")

	// Malformed JSON body.
	req := httptest.NewRequest(http.MethodPost, "/api/workers/w-1/advances", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	// History with the free-text filter.
	rec = doJSON(t, router, http.MethodGet, "/api/advances?q=asha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]AdvanceDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 600.0, list[0].AddedAmount)

	rec = doJSON(t, router, http.MethodGet, "/api/advances?kind=manager", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RECEIVED-CASH ENDPOINTS
// =============================================================================

func TestReceivedCashEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createWorker(t, router, "w-1", "driver", "Asha")

	// Fund held cash through a manual adjustment.
	rec := doJSON(t, router, http.MethodPost, "/api/workers/w-1/cash-adjustments", AdjustCashRequest{Delta: 200})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Overdraft on a nonzero balance maps to 409.
	rec = doJSON(t, router, http.MethodPost, "/api/workers/w-1/received-cash", CreateReceivedCashRequest{
		Amount: 250, Remark: "too much",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/workers/w-1/received-cash", CreateReceivedCashRequest{
		Amount: 150, Remark: "shift end",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[ReceivedCashResponse](t, rec)
	assert.Equal(t, 50.0, resp.Account.HeldCash)
	assert.Equal(t, 50.0, resp.ReceivedCash.ResultingBalance)

	rec = doJSON(t, router, http.MethodGet, "/api/received-cash?worker_id=w-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ReceivedCashDTO](t, rec)
	require.Len(t, list, 1)
}

// =============================================================================
// EXPENSE ENDPOINTS
// =============================================================================

func TestExpenseEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createWorker(t, router, "w-1", "driver", "Asha")
	createJob(t, router, "w-1", "j1", 400)

	rec := doJSON(t, router, http.MethodPost, "/api/workers/w-1/cash-adjustments", AdjustCashRequest{Delta: 500})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/workers/w-1/expenses", CreateExpenseRequest{
		Amount: 300, Description: "tyre replacement",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	expense := decodeBody[ExpenseDTO](t, rec)
	assert.Equal(t, "pending", expense.Status)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/expenses/%s/approve", expense.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decodeBody[ExpenseResponse](t, rec)
	assert.Equal(t, "approved", decision.Expense.Status)
	assert.Equal(t, 200.0, decision.Account.HeldCash)
	require.Len(t, decision.Allocation, 1)
	assert.Equal(t, 300.0, decision.Allocation[0].PaidNow)

	// A decided expense cannot be decided again.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/expenses/%s/reject", expense.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/expenses/ghost/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/expenses?worker_id=w-1&status=approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ExpenseDTO](t, rec)
	require.Len(t, list, 1)
}

// =============================================================================
// STATEMENT ENDPOINTS
// =============================================================================

func TestStatementEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createWorker(t, router, "w-1", "driver", "Asha")
	createJob(t, router, "w-1", "j1", 500)

	rec := doJSON(t, router, http.MethodPost, "/api/workers/w-1/advances", CreateAdvanceRequest{
		Amount: 600, Remark: "topup", Kind: "driver",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/workers/w-1/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statement := decodeBody[StatementDTO](t, rec)
	require.Len(t, statement.Advances, 1)
	assert.Equal(t, 600.0, statement.Advances[0].AddedAmount)

	// Bad date parameter.
	rec = doJSON(t, router, http.MethodGet, "/api/workers/w-1/statement?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Excel export streams a workbook.
	rec = doJSON(t, router, http.MethodGet, "/api/workers/w-1/statement.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

func TestScenarioEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	assert.NotEmpty(t, list)

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "fresh-driver"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/workers/drv-ramesh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account := decodeBody[AccountDTO](t, rec)
	assert.Equal(t, 250.0, account.OutstandingAdvance)

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
