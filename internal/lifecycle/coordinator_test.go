package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/storage"
	"tally/internal/storage/memory"
)

func newCoordinator(t *testing.T) (*Coordinator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	return NewCoordinator(store, logger), store
}

func seed(t *testing.T, store *memory.Store) (miscID, otherID, l1, l2 int64) {
	t.Helper()
	ctx := context.Background()

	var err error
	miscID, err = store.CreateGroup(ctx, &core.LedgerGroup{Name: "Misc", Classification: core.Asset})
	if err != nil {
		t.Fatalf("create misc: %v", err)
	}
	otherID, err = store.CreateGroup(ctx, &core.LedgerGroup{Name: "Other", Classification: core.Asset})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	l1, err = store.CreateLedger(ctx, &core.Ledger{Name: "One", GroupID: miscID})
	if err != nil {
		t.Fatalf("create ledger one: %v", err)
	}
	l2, err = store.CreateLedger(ctx, &core.Ledger{Name: "Two", GroupID: miscID})
	if err != nil {
		t.Fatalf("create ledger two: %v", err)
	}
	return miscID, otherID, l1, l2
}

func TestDeleteGroupNoPolicyAborts(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)
	miscID, otherID, l1, l2 := seed(t, store)

	out, err := coord.DeleteGroup(ctx, miscID, Policy{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("no policy: got %v, want validation error", err)
	}
	if out.State != StateAborted {
		t.Errorf("state = %s, want Aborted", out.State)
	}
	if _, err := store.GetGroup(ctx, miscID); err != nil {
		t.Errorf("aborted delete must leave the group: %v", err)
	}

	// Retry with reassign moves both ledgers and removes the group.
	out, err = coord.DeleteGroup(ctx, miscID, Policy{ReassignTo: &otherID})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if out.State != StateResolved || out.LedgersMoved != 2 {
		t.Errorf("got state=%s moved=%d, want Resolved and 2", out.State, out.LedgersMoved)
	}
	for _, id := range []int64{l1, l2} {
		l, err := store.GetLedger(ctx, id)
		if err != nil {
			t.Fatalf("ledger %d after reassign: %v", id, err)
		}
		if l.GroupID != otherID {
			t.Errorf("ledger %d group = %d, want %d", id, l.GroupID, otherID)
		}
	}
	if _, err := store.GetGroup(ctx, miscID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted group still listed: %v", err)
	}
}

func TestDeleteGroupBothPoliciesAborts(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)
	miscID, otherID, _, _ := seed(t, store)

	_, err := coord.DeleteGroup(ctx, miscID, Policy{ReassignTo: &otherID, Cascade: true})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("both policies: got %v, want validation error", err)
	}
}

func TestDeleteGroupReassignToSelfAborts(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)
	miscID, _, _, _ := seed(t, store)

	_, err := coord.DeleteGroup(ctx, miscID, Policy{ReassignTo: &miscID})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("self reassign: got %v, want validation error", err)
	}
}

func TestDeleteEmptyGroupResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)

	id, err := store.CreateGroup(ctx, &core.LedgerGroup{Name: "Empty", Classification: core.Expense})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := coord.DeleteGroup(ctx, id, Policy{})
	if err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	if out.State != StateResolved {
		t.Errorf("state = %s, want Resolved", out.State)
	}
}

func TestDeleteGroupCascadeRemovesTransactions(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)
	miscID, otherID, l1, _ := seed(t, store)

	outside, err := store.CreateLedger(ctx, &core.Ledger{Name: "Outside", GroupID: otherID})
	if err != nil {
		t.Fatalf("create outside ledger: %v", err)
	}
	_, err = store.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 4, 1), Kind: core.Contra,
		Amount: core.Money{Cents: 700}, DebitLedgerID: l1, CreditLedgerID: outside,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	out, err := coord.DeleteGroup(ctx, miscID, Policy{Cascade: true})
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if out.LedgersDeleted != 2 || out.TransactionsDeleted != 1 {
		t.Errorf("got ledgers=%d txs=%d, want 2 and 1", out.LedgersDeleted, out.TransactionsDeleted)
	}

	// The surviving counterparty keeps no orphaned postings.
	_, total, err := store.ListTransactions(ctx, storage.TransactionFilter{LedgerID: outside})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Errorf("counterparty still has %d transactions", total)
	}
}

func TestDeleteLedgerPassthrough(t *testing.T) {
	ctx := context.Background()
	coord, store := newCoordinator(t)
	_, _, l1, _ := seed(t, store)

	out, err := coord.DeleteLedger(ctx, l1, false)
	if err != nil {
		t.Fatalf("delete ledger: %v", err)
	}
	if out.State != StateResolved || out.LedgersDeleted != 1 {
		t.Errorf("got state=%s deleted=%d, want Resolved and 1", out.State, out.LedgersDeleted)
	}
}
