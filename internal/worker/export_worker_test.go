package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/log"
	"tally/internal/storage/memory"
)

type fakeMirror struct {
	rows []export.MirrorRow
	fail bool
}

func (m *fakeMirror) Append(ctx context.Context, row export.MirrorRow) error {
	if m.fail {
		return errors.New("sheets unavailable")
	}
	m.rows = append(m.rows, row)
	return nil
}

func setup(t *testing.T) (*ExportWorker, *fakeMirror, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	mirror := &fakeMirror{}
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	w := NewExportWorker(store, mirror, logger, 10)

	assets, err := store.CreateGroup(ctx, &core.LedgerGroup{Name: "Assets", Classification: core.Asset})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	expenses, err := store.CreateGroup(ctx, &core.LedgerGroup{Name: "Expenses", Classification: core.Expense})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	bank, err := store.CreateLedger(ctx, &core.Ledger{Name: "Bank", GroupID: assets})
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	food, err := store.CreateLedger(ctx, &core.Ledger{Name: "Food", GroupID: expenses})
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	id, err := store.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 5, 2), Kind: core.Payment,
		Amount: core.Money{Cents: 2599}, DebitLedgerID: food, CreditLedgerID: bank,
		Narration: "lunch",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return w, mirror, store, id
}

func TestHandleEventMirrorsAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	w, mirror, store, id := setup(t)

	err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventPosted, id, 1))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(mirror.rows) != 1 {
		t.Fatalf("got %d mirrored rows, want 1", len(mirror.rows))
	}
	row := mirror.rows[0]
	if row.DebitName != "Food" || row.CreditName != "Bank" || row.Amount != "25.99" {
		t.Errorf("row = %+v", row)
	}

	tx, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tx.SyncedAt == nil {
		t.Error("transaction not marked synced")
	}

	// Replaying the event is a no-op once synced.
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventPosted, id, 1)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(mirror.rows) != 1 {
		t.Errorf("replay appended a duplicate row")
	}
}

func TestHandleEventSkipsStaleVersion(t *testing.T) {
	ctx := context.Background()
	w, mirror, store, id := setup(t)

	tx, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	tx.Narration = "brunch"
	if err := store.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The version-1 event is now stale; only the version-2 event syncs.
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventPosted, id, 1)); err != nil {
		t.Fatalf("stale event: %v", err)
	}
	if len(mirror.rows) != 0 {
		t.Fatalf("stale event must not mirror")
	}
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventUpdated, id, 2)); err != nil {
		t.Fatalf("current event: %v", err)
	}
	if len(mirror.rows) != 1 {
		t.Errorf("got %d rows, want 1", len(mirror.rows))
	}
}

func TestHandleEventIgnoresMissingTransaction(t *testing.T) {
	ctx := context.Background()
	w, _, _, _ := setup(t)

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventPosted, 9999, 1)); err != nil {
		t.Fatalf("missing transaction should not error: %v", err)
	}
}

func TestProcessPendingSweepsBacklog(t *testing.T) {
	ctx := context.Background()
	w, mirror, _, _ := setup(t)

	n, err := w.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || len(mirror.rows) != 1 {
		t.Errorf("got synced=%d rows=%d, want 1 and 1", n, len(mirror.rows))
	}

	// Nothing left after a successful sweep.
	n, err = w.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep synced %d, want 0", n)
	}
}

func TestProcessPendingContinuesOnFailure(t *testing.T) {
	ctx := context.Background()
	w, mirror, _, _ := setup(t)
	mirror.fail = true

	n, err := w.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("sweep with failing mirror: %v", err)
	}
	if n != 0 {
		t.Errorf("synced = %d, want 0", n)
	}
}
