// Package export serializes ledger data for external consumers: CSV
// downloads and the spreadsheet mirror fed by the sync worker.
package export

import "context"

// MirrorRow is one transaction rendered for the external mirror.
type MirrorRow struct {
	ID         int64
	Date       string
	Kind       string
	Amount     string
	DebitName  string
	CreditName string
	Narration  string
	Reference  string
}

// Mirror appends posted transactions to an external copy of the books.
// The mirror is write-behind and best-effort; the store stays the source
// of truth.
type Mirror interface {
	Append(ctx context.Context, row MirrorRow) error
}
