// Package storage persists the chart of accounts and the transaction
// ledger. The Store interface is implemented by the SQLite repository and
// by an in-memory backend used for development and tests.
package storage

import (
	"context"

	"tally/internal/core"
)

// LedgerFilter narrows ListLedgers. Zero values mean "no filter".
type LedgerFilter struct {
	GroupID        int64
	Classification core.Classification
	Limit          int
	Offset         int
}

// TransactionFilter narrows ListTransactions. From/To are inclusive.
type TransactionFilter struct {
	LedgerID int64
	From     core.Date
	To       core.Date
	Kind     core.Kind
	Limit    int
	Offset   int
}

// LedgerActivity is the per-ledger posting sums within a date range,
// returned only for ledgers with at least one posting in the range.
type LedgerActivity struct {
	LedgerID       int64
	Name           string
	Classification core.Classification
	Debits         int64
	Credits        int64
}

// PendingTransaction is the minimal record for the export feed sweep.
type PendingTransaction struct {
	ID      int64
	Version int64
}

// Store is the persistence boundary for the bookkeeping engine. Every
// mutation is atomic: multi-row operations either commit entirely or leave
// the books unchanged.
type Store interface {
	// Chart of accounts
	CreateGroup(ctx context.Context, g *core.LedgerGroup) (int64, error)
	GetGroup(ctx context.Context, id int64) (*core.LedgerGroup, error)
	// UpdateGroup rejects a classification change with core.ErrConflict
	// when any ledger in the group already carries transactions.
	UpdateGroup(ctx context.Context, g *core.LedgerGroup) error
	ListGroups(ctx context.Context) ([]core.LedgerGroup, error)
	CountLedgers(ctx context.Context, groupID int64) (int, error)

	CreateLedger(ctx context.Context, l *core.Ledger) (int64, error)
	GetLedger(ctx context.Context, id int64) (*core.Ledger, error)
	UpdateLedger(ctx context.Context, l *core.Ledger) error
	ListLedgers(ctx context.Context, f LedgerFilter) ([]core.Ledger, int, error)

	// Transaction ledger
	//
	// CreateTransaction is idempotent on IdempotencyKey: a replay returns
	// the originally assigned id without posting again.
	CreateTransaction(ctx context.Context, t *core.Transaction) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	UpdateTransaction(ctx context.Context, t *core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	// ListTransactions returns the page in ascending (date, id) order plus
	// the total count matching the filter.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, int, error)

	// Balance inputs
	//
	// SumPostings returns total debit and credit cents posted to the
	// ledger up to and including asOf (all history when asOf is zero).
	SumPostings(ctx context.Context, ledgerID int64, asOf core.Date) (debits, credits int64, err error)
	// ActivityByLedger returns posting sums per ledger for the inclusive
	// range, omitting ledgers with no activity.
	ActivityByLedger(ctx context.Context, from, to core.Date) ([]LedgerActivity, error)

	// Lifecycle. Each call is a single atomic operation.
	DeleteEmptyGroup(ctx context.Context, groupID int64) error
	ReassignAndDeleteGroup(ctx context.Context, groupID, targetGroupID int64) (ledgersMoved int, err error)
	CascadeDeleteGroup(ctx context.Context, groupID int64) (ledgersDeleted, transactionsDeleted int, err error)
	DeleteLedger(ctx context.Context, ledgerID int64, cascade bool) (transactionsDeleted int, err error)

	// Export feed bookkeeping
	PendingSync(ctx context.Context, limit int) ([]PendingTransaction, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
