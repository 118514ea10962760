/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator tags (go-playground/validator). Handlers
  run them through Handler.validate before touching the engine; field
  errors come back as a 400 with one message per offending field.

MONEY:
  Amounts cross the API as JSON numbers (float64). The engine converts
  to exact decimals at the boundary; nothing downstream computes on
  floats.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateWorkerRequest registers a worker account at onboarding.
type CreateWorkerRequest struct {
	ID   string `json:"id" validate:"required"`
	Kind string `json:"kind" validate:"required,oneof=driver provider"`
	Name string `json:"name"`
}

// UpsertJobRequest is the booking subsystem's write path for the
// settlement-relevant subset of a booking.
type UpsertJobRequest struct {
	ID                   string  `json:"id" validate:"required"`
	FileNumber           string  `json:"file_number"`
	EarnedSalary         float64 `json:"earned_salary" validate:"gte=0"`
	TotalAmount          float64 `json:"total_amount" validate:"gte=0"`
	ReceivedFromCustomer float64 `json:"received_from_customer" validate:"gte=0"`
	Verified             bool    `json:"verified"`
}

// CreateAdvanceRequest tops up a worker's advance.
type CreateAdvanceRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Remark string  `json:"remark" validate:"required"`
	Kind   string  `json:"kind" validate:"required,oneof=driver provider"`
}

// AdjustCashRequest applies a signed manual correction to held cash.
type AdjustCashRequest struct {
	Delta float64 `json:"delta" validate:"required"`
}

// CreateReceivedCashRequest records cash handed back to the company.
type CreateReceivedCashRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Remark string  `json:"remark"`
}

// CreateExpenseRequest files a reimbursable expense for review.
type CreateExpenseRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents a worker account in API responses.
type AccountDTO struct {
	ID                 string  `json:"id"`
	Kind               string  `json:"kind"`
	Name               string  `json:"name,omitempty"`
	HeldCash           float64 `json:"held_cash"`
	OutstandingAdvance float64 `json:"outstanding_advance"`
	AccumulatedSalary  float64 `json:"accumulated_salary"`
	NetAmount          float64 `json:"net_amount"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
}

type JobDTO struct {
	ID                   string  `json:"id"`
	WorkerID             string  `json:"worker_id"`
	FileNumber           string  `json:"file_number,omitempty"`
	EarnedSalary         float64 `json:"earned_salary"`
	PaidFromAdvances     float64 `json:"paid_from_advances"`
	TotalAmount          float64 `json:"total_amount"`
	ReceivedFromCustomer float64 `json:"received_from_customer"`
	Verified             bool    `json:"verified"`
	CreatedAt            string  `json:"created_at,omitempty"`
}

type AllocationEntryDTO struct {
	JobID     string  `json:"job_id"`
	JobSalary float64 `json:"job_salary"`
	DueBefore float64 `json:"due_before"`
	PaidNow   float64 `json:"paid_now"`
}

type AdvanceDTO struct {
	ID               string               `json:"id"`
	WorkerID         string               `json:"worker_id"`
	Kind             string               `json:"kind"`
	AddedAmount      float64              `json:"added_amount"`
	OutstandingAfter float64              `json:"outstanding_after"`
	Remark           string               `json:"remark"`
	Allocation       []AllocationEntryDTO `json:"allocation"`
	CreatedAt        string               `json:"created_at"`
}

type ReceivedCashDTO struct {
	ID                string  `json:"id"`
	WorkerID          string  `json:"worker_id"`
	AmountHandedOver  float64 `json:"amount_handed_over"`
	ResultingBalance  float64 `json:"resulting_balance"`
	NetAmountSnapshot float64 `json:"net_amount_snapshot"`
	Remark            string  `json:"remark"`
	CreatedAt         string  `json:"created_at"`
}

type ExpenseDTO struct {
	ID          string  `json:"id"`
	WorkerID    string  `json:"worker_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	DecidedAt   string  `json:"decided_at,omitempty"`
}

// AdvanceResponse returns the updated account alongside the new record,
// as every mutating call does.
type AdvanceResponse struct {
	Account AccountDTO `json:"account"`
	Advance AdvanceDTO `json:"advance"`
}

type ReceivedCashResponse struct {
	Account      AccountDTO      `json:"account"`
	ReceivedCash ReceivedCashDTO `json:"received_cash"`
}

type ExpenseResponse struct {
	Account    AccountDTO           `json:"account"`
	Expense    ExpenseDTO           `json:"expense"`
	Allocation []AllocationEntryDTO `json:"allocation,omitempty"`
}

type StatementDTO struct {
	Account      AccountDTO        `json:"account"`
	From         string            `json:"from,omitempty"`
	To           string            `json:"to,omitempty"`
	Advances     []AdvanceDTO      `json:"advances"`
	ReceivedCash []ReceivedCashDTO `json:"received_cash"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAccountDTO(a ledger.WorkerAccount) AccountDTO {
	return AccountDTO{
		ID:                 string(a.ID),
		Kind:               string(a.Kind),
		Name:               a.Name,
		HeldCash:           a.HeldCash.Float64(),
		OutstandingAdvance: a.OutstandingAdvance.Float64(),
		AccumulatedSalary:  a.AccumulatedSalary.Float64(),
		NetAmount:          a.NetAmount().Float64(),
		UpdatedAt:          formatTime(a.UpdatedAt),
	}
}

func toJobDTO(j ledger.JobRecord) JobDTO {
	return JobDTO{
		ID:                   string(j.ID),
		WorkerID:             string(j.WorkerID),
		FileNumber:           j.FileNumber,
		EarnedSalary:         j.EarnedSalary.Float64(),
		PaidFromAdvances:     j.PaidFromAdvances.Float64(),
		TotalAmount:          j.TotalAmount.Float64(),
		ReceivedFromCustomer: j.ReceivedFromCustomer.Float64(),
		Verified:             j.Verified,
		CreatedAt:            formatTime(j.CreatedAt),
	}
}

func toAllocationDTOs(entries []ledger.AllocationEntry) []AllocationEntryDTO {
	dtos := make([]AllocationEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AllocationEntryDTO{
			JobID:     string(e.JobID),
			JobSalary: e.JobSalary.Float64(),
			DueBefore: e.DueBefore.Float64(),
			PaidNow:   e.PaidNow.Float64(),
		}
	}
	return dtos
}

func toAdvanceDTO(r ledger.AdvanceRecord) AdvanceDTO {
	return AdvanceDTO{
		ID:               r.ID,
		WorkerID:         string(r.WorkerID),
		Kind:             string(r.Kind),
		AddedAmount:      r.AddedAmount.Float64(),
		OutstandingAfter: r.OutstandingAfter.Float64(),
		Remark:           r.Remark,
		Allocation:       toAllocationDTOs(r.Allocation),
		CreatedAt:        formatTime(r.CreatedAt),
	}
}

func toAdvanceDTOs(records []ledger.AdvanceRecord) []AdvanceDTO {
	dtos := make([]AdvanceDTO, len(records))
	for i, r := range records {
		dtos[i] = toAdvanceDTO(r)
	}
	return dtos
}

func toReceivedCashDTO(r ledger.ReceivedCashRecord) ReceivedCashDTO {
	return ReceivedCashDTO{
		ID:                r.ID,
		WorkerID:          string(r.WorkerID),
		AmountHandedOver:  r.AmountHandedOver.Float64(),
		ResultingBalance:  r.ResultingBalance.Float64(),
		NetAmountSnapshot: r.NetAmountSnapshot.Float64(),
		Remark:            r.Remark,
		CreatedAt:         formatTime(r.CreatedAt),
	}
}

func toReceivedCashDTOs(records []ledger.ReceivedCashRecord) []ReceivedCashDTO {
	dtos := make([]ReceivedCashDTO, len(records))
	for i, r := range records {
		dtos[i] = toReceivedCashDTO(r)
	}
	return dtos
}

func toExpenseDTO(e ledger.ExpenseRecord) ExpenseDTO {
	dto := ExpenseDTO{
		ID:          e.ID,
		WorkerID:    string(e.WorkerID),
		Amount:      e.Amount.Float64(),
		Description: e.Description,
		Status:      string(e.Status),
		CreatedAt:   formatTime(e.CreatedAt),
	}
	if e.DecidedAt != nil {
		dto.DecidedAt = formatTime(*e.DecidedAt)
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
