/*
handlers.go - HTTP API handlers for the cash-ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to the engine.

ENDPOINTS:
  Workers:
    POST   /api/workers                      Register worker account
    GET    /api/workers/{id}                 Get account
    POST   /api/workers/{id}/jobs            Upsert booking subset
    POST   /api/workers/{id}/advances        Create advance (settles)
    POST   /api/workers/{id}/received-cash   Record cash hand-over
    POST   /api/workers/{id}/expenses        File expense
    GET    /api/workers/{id}/statement       Audit statement (JSON)
    GET    /api/workers/{id}/statement.xlsx  Audit statement (Excel)

  History:
    GET    /api/advances       ?kind=&worker_id=&q=&from=&to=
    GET    /api/received-cash  ?worker_id=&from=&to=
    GET    /api/expenses       ?worker_id=&status=

  Expense decisions:
    POST   /api/expenses/{id}/approve
    POST   /api/expenses/{id}/reject

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown worker/job/advance/expense
  - 409: Insufficient balance, conflict after exhausted retries
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	validate *validator.Validate
}

// NewHandler creates a new handler around the given engine.
func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{
		Engine:   engine,
		validate: validator.New(),
	}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// CreateWorker registers a worker account at onboarding.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.Engine.CreateAccount(r.Context(), ledger.WorkerAccount{
		ID:   ledger.WorkerID(req.ID),
		Kind: ledger.WorkerKind(req.Kind),
		Name: req.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountDTO(*account))
}

// GetWorker returns a single worker account.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.Engine.GetAccount(r.Context(), ledger.WorkerID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// AdjustCash applies a signed manual correction to a worker's held cash.
func (h *Handler) AdjustCash(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AdjustCashRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.Engine.AdjustCash(r.Context(), ledger.WorkerID(id), ledger.NewMoney(req.Delta))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// UpsertJob accepts the settlement-relevant subset of a booking.
func (h *Handler) UpsertJob(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req UpsertJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.Engine.UpsertJob(r.Context(), ledger.JobRecord{
		ID:                   ledger.JobID(req.ID),
		WorkerID:             ledger.WorkerID(workerID),
		FileNumber:           req.FileNumber,
		EarnedSalary:         ledger.NewMoney(req.EarnedSalary),
		TotalAmount:          ledger.NewMoney(req.TotalAmount),
		ReceivedFromCustomer: ledger.NewMoney(req.ReceivedFromCustomer),
		Verified:             req.Verified,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobDTO(*job))
}

// =============================================================================
// ADVANCE HANDLERS
// =============================================================================

// CreateAdvance tops up a worker's advance and settles it against jobs.
func (h *Handler) CreateAdvance(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req CreateAdvanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Engine.CreateAdvance(r.Context(), ledger.CreateAdvanceInput{
		WorkerID: ledger.WorkerID(workerID),
		Amount:   ledger.NewMoney(req.Amount),
		Remark:   req.Remark,
		Kind:     ledger.WorkerKind(req.Kind),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AdvanceResponse{
		Account: toAccountDTO(result.Account),
		Advance: toAdvanceDTO(result.Record),
	})
}

// ListAdvances returns advance history, filterable by kind, worker and a
// free-text search over worker names and job file numbers.
func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseAdvanceFilter(w, r)
	if !ok {
		return
	}

	records, err := h.Engine.ListAdvances(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAdvanceDTOs(records))
}

// =============================================================================
// RECEIVED-CASH HANDLERS
// =============================================================================

// CreateReceivedCash records cash a worker physically returned.
func (h *Handler) CreateReceivedCash(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req CreateReceivedCashRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Engine.RecordReceivedCash(r.Context(), ledger.ReceivedCashInput{
		WorkerID:         ledger.WorkerID(workerID),
		AmountHandedOver: ledger.NewMoney(req.Amount),
		Remark:           req.Remark,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReceivedCashResponse{
		Account:      toAccountDTO(result.Account),
		ReceivedCash: toReceivedCashDTO(result.Record),
	})
}

// ListReceivedCash returns hand-over history by worker and date range.
func (h *Handler) ListReceivedCash(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	records, err := h.Engine.ListReceivedCash(r.Context(), ledger.ReceivedCashFilter{
		WorkerID: ledger.WorkerID(r.URL.Query().Get("worker_id")),
		From:     from,
		To:       to,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReceivedCashDTOs(records))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense files a reimbursable expense for review.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	expense, err := h.Engine.SubmitExpense(r.Context(), ledger.ExpenseInput{
		WorkerID:    ledger.WorkerID(workerID),
		Amount:      ledger.NewMoney(req.Amount),
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toExpenseDTO(*expense))
}

// ListExpenses returns expenses by worker and status.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	records, err := h.Engine.ListExpenses(r.Context(), ledger.ExpenseFilter{
		WorkerID: ledger.WorkerID(r.URL.Query().Get("worker_id")),
		Status:   ledger.ExpenseStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ExpenseDTO, len(records))
	for i, rec := range records {
		dtos[i] = toExpenseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveExpense deducts the expense from held cash and redistributes.
func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.Engine.ApproveExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExpenseResponse{
		Account:    toAccountDTO(result.Account),
		Expense:    toExpenseDTO(result.Expense),
		Allocation: toAllocationDTOs(result.Allocation),
	})
}

// RejectExpense declines a pending expense.
func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.Engine.RejectExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExpenseResponse{
		Account: toAccountDTO(result.Account),
		Expense: toExpenseDTO(result.Expense),
	})
}

// =============================================================================
// STATEMENT HANDLER
// =============================================================================

// GetStatement returns a worker's advance and received-cash history over
// a date range for audit consumers.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	statement, err := h.Engine.Statement(r.Context(), ledger.WorkerID(workerID), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatementDTO{
		Account:      toAccountDTO(statement.Account),
		From:         formatTime(statement.From),
		To:           formatTime(statement.To),
		Advances:     toAdvanceDTOs(statement.Advances),
		ReceivedCash: toReceivedCashDTOs(statement.ReceivedCash),
	})
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// decode parses and validates the JSON body, writing a 400 and returning
// false if either step fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, strings.Join(formatValidationErrors(err), "; "), nil)
		return false
	}
	return true
}

// formatValidationErrors renders one message per offending field.
func formatValidationErrors(err error) []string {
	var errs []string

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				errs = append(errs, fmt.Sprintf("%s is required", e.Field()))
			case "gt":
				errs = append(errs, fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param()))
			case "gte":
				errs = append(errs, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "oneof":
				errs = append(errs, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			default:
				errs = append(errs, fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag()))
			}
		}
		return errs
	}
	return []string{"invalid request"}
}

func parseAdvanceFilter(w http.ResponseWriter, r *http.Request) (ledger.AdvanceFilter, bool) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return ledger.AdvanceFilter{}, false
	}

	q := r.URL.Query()
	kind := ledger.WorkerKind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be driver or provider", nil)
		return ledger.AdvanceFilter{}, false
	}

	return ledger.AdvanceFilter{
		Kind:     kind,
		WorkerID: ledger.WorkerID(q.Get("worker_id")),
		Search:   q.Get("q"),
		From:     from,
		To:       to,
	}, true
}

// parseDateRange reads optional from/to query params, accepting either
// RFC3339 timestamps or plain YYYY-MM-DD dates. A bare "to" date is
// widened to the end of that day.
func parseDateRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	var err error
	q := r.URL.Query()

	if raw := q.Get("from"); raw != "" {
		if from, err = parseTimeParam(raw, false); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339 or YYYY-MM-DD)", err)
			return from, to, false
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = parseTimeParam(raw, true); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339 or YYYY-MM-DD)", err)
			return from, to, false
		}
	}
	return from, to, true
}

func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// =============================================================================
// RESPONSE PLUMBING
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorBody{Error: message}
	if err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps engine errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
