/*
settlement.go - The allocation algorithm shared by advances and expenses

PURPOSE:
  One pure routine applies an available amount against a worker's unpaid
  per-job salary dues. Advance creation and expense-triggered
  redistribution both call it, so the two flows can never diverge.

ALGORITHM:
  remaining = available
  for each job in settlement order:
      due = earnedSalary - paidFromAdvances   (skip if due <= 0)
      pay = min(due, remaining)
      paidFromAdvances += pay; remaining -= pay
      stop once remaining <= 0
  return remaining + allocation breakdown

GUARANTEES:
  - Total paid in one run never exceeds the available amount
  - paidFromAdvances never exceeds earnedSalary
  - Re-running with unchanged persisted state allocates nothing further
    (due is recomputed from persisted totals, not replayed)
  - No due jobs => empty allocation, remaining == available. Exhaustion
    is a partial result, never an error.

ORDERING:
  Jobs are settled oldest first: creation time ascending, then id. The
  order is part of the contract, passed through SortJobsForSettlement,
  not left to storage iteration order.

SEE ALSO:
  - engine.go: Persists the result inside the per-worker transaction
*/
package ledger

import "sort"

// =============================================================================
// SETTLEMENT - Pure allocation of an amount over job dues
// =============================================================================

// SettlementResult is the outcome of one allocation run.
type SettlementResult struct {
	// Remaining is what's left of the available amount after allocation.
	// It becomes the worker's new OutstandingAdvance.
	Remaining Money

	// Allocation has one entry per job that received a payment.
	Allocation []AllocationEntry

	// Settled holds updated copies of only the jobs that were paid.
	// The caller persists these; untouched jobs are never written.
	Settled []JobRecord
}

// SortJobsForSettlement orders jobs by creation time ascending, then id.
// Settlement input must always pass through here first.
func SortJobsForSettlement(jobs []JobRecord) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

// Settle allocates available money over the given verified jobs.
// Pure: inputs are not mutated, no I/O, deterministic for a given order.
func Settle(available Money, jobs []JobRecord) SettlementResult {
	result := SettlementResult{Remaining: available}

	for _, job := range jobs {
		if !result.Remaining.IsPositive() {
			break
		}

		due := job.Due()
		if !due.IsPositive() {
			continue
		}

		pay := due.Min(result.Remaining)

		updated := job
		updated.PaidFromAdvances = job.PaidFromAdvances.Add(pay)

		result.Allocation = append(result.Allocation, AllocationEntry{
			JobID:     job.ID,
			JobSalary: job.EarnedSalary,
			DueBefore: due,
			PaidNow:   pay,
		})
		result.Settled = append(result.Settled, updated)
		result.Remaining = result.Remaining.Sub(pay)
	}

	return result
}
