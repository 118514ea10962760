/*
export.go - Excel statement export

PURPOSE:
  Renders a worker's statement as an .xlsx workbook for back-office
  audit consumers who live in spreadsheets. Two sheets:

    Advances:      One row per advance, followed by indented rows for
                   each allocation entry of that advance
    Received Cash: One row per hand-over with the balance snapshot

  The workbook is streamed straight to the response; nothing touches
  disk.

SEE ALSO:
  - handlers.go: GetStatement (the JSON twin of this endpoint)
*/
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/warp/dispatch-ledger/ledger"
)

// ExportStatement writes a worker's statement as an Excel workbook.
func (h *Handler) ExportStatement(w http.ResponseWriter, r *http.Request) {
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

	f := excelize.NewFile()
	defer f.Close()

	if err := writeAdvanceSheet(f, statement); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}
	if err := writeReceivedCashSheet(f, statement); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}
	f.DeleteSheet("Sheet1")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="statement-%s.xlsx"`, workerID))
	if err := f.Write(w); err != nil {
		// Headers are gone at this point; log-and-abandon is all we can do.
		return
	}
}

func writeAdvanceSheet(f *excelize.File, statement *ledger.Statement) error {
	const sheet = "Advances"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	headers := []string{"Date", "Added", "Outstanding After", "Remark", "Job", "Job Salary", "Due Before", "Paid Now"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	row := 2
	for _, adv := range statement.Advances {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), adv.CreatedAt.UTC().Format("2006-01-02 15:04"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), adv.AddedAmount.Float64())
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), adv.OutstandingAfter.Float64())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), adv.Remark)
		row++

		for _, entry := range adv.Allocation {
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(entry.JobID))
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), entry.JobSalary.Float64())
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), entry.DueBefore.Float64())
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), entry.PaidNow.Float64())
			row++
		}
	}
	return nil
}

func writeReceivedCashSheet(f *excelize.File, statement *ledger.Statement) error {
	const sheet = "Received Cash"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Date", "Handed Over", "Resulting Balance", "Net Snapshot", "Remark"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, rec := range statement.ReceivedCash {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), rec.CreatedAt.UTC().Format("2006-01-02 15:04"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), rec.AmountHandedOver.Float64())
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), rec.ResultingBalance.Float64())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), rec.NetAmountSnapshot.Float64())
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), rec.Remark)
	}
	return nil
}
