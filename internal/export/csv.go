package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"tally/internal/core"
	"tally/internal/report"
)

// WriteTransactionsCSV streams transactions as CSV with a header row.
func WriteTransactionsCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "date", "kind", "amount", "debit_ledger_id", "credit_ledger_id", "narration", "reference_number"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txs {
		record := []string{
			strconv.FormatInt(t.ID, 10),
			t.Date.String(),
			string(t.Kind),
			t.Amount.String(),
			strconv.FormatInt(t.DebitLedgerID, 10),
			strconv.FormatInt(t.CreditLedgerID, 10),
			t.Narration,
			t.ReferenceNumber,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write transaction %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatementCSV streams an account statement, one row per transaction
// with its running balance.
func WriteStatementCSV(w io.Writer, st *report.Statement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "kind", "narration", "amount", "running_balance"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range st.Rows {
		t := row.Transaction
		signed := core.Money{Cents: t.Delta(st.LedgerID)}
		record := []string{
			t.Date.String(),
			string(t.Kind),
			t.Narration,
			signed.String(),
			row.RunningBalance.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write statement row %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
