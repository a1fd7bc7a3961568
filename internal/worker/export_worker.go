// Package worker mirrors posted transactions to the external spreadsheet.
// It consumes the transaction feed and, as a safety net, periodically
// sweeps the store for rows the feed missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/log"
	"tally/internal/storage"
)

type ExportWorker struct {
	store     storage.Store
	mirror    export.Mirror
	logger    *log.Logger
	batchSize int
}

func NewExportWorker(store storage.Store, mirror export.Mirror, logger *log.Logger, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ExportWorker{
		store:     store,
		mirror:    mirror,
		logger:    logger.WithComponent(log.ComponentWorker),
		batchSize: batchSize,
	}
}

// HandleEvent processes one feed event. The worker re-reads the store and
// compares versions, so replaying or reordering events is harmless.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.TransactionEvent) error {
	switch event.Event {
	case amqp.EventPosted, amqp.EventUpdated:
		return w.syncTransaction(ctx, event.ID, event.Version)
	case amqp.EventDeleted:
		// The mirror is append-only; deletions surface on the next full
		// re-export rather than editing mirrored rows in place.
		w.logger.InfoContext(ctx, "skipping mirror removal for deleted transaction",
			log.FieldTxID, event.ID)
		return nil
	}
	w.logger.WarnContext(ctx, "dropping unknown feed event", "event", event.Event)
	return nil
}

func (w *ExportWorker) syncTransaction(ctx context.Context, id, version int64) error {
	t, err := w.store.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted between publish and consume.
		w.logger.InfoContext(ctx, "transaction gone before sync", log.FieldTxID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", id, err)
	}
	if version > 0 && t.Version > version {
		// A newer write already queued its own event.
		w.logger.DebugContext(ctx, "skipping stale feed event",
			log.FieldTxID, id, "event_version", version, "current_version", t.Version)
		return nil
	}
	if t.SyncedAt != nil {
		return nil
	}

	if err := w.mirror.Append(ctx, w.mirrorRow(ctx, t)); err != nil {
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "record sync failure", log.FieldError, markErr, log.FieldTxID, id)
		}
		return fmt.Errorf("mirror transaction %d: %w", id, err)
	}
	if err := w.store.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark transaction %d synced: %w", id, err)
	}

	w.logger.InfoContext(ctx, "transaction mirrored", log.FieldTxID, id, "version", t.Version)
	return nil
}

func (w *ExportWorker) mirrorRow(ctx context.Context, t *core.Transaction) export.MirrorRow {
	row := export.MirrorRow{
		ID:        t.ID,
		Date:      t.Date.String(),
		Kind:      string(t.Kind),
		Amount:    t.Amount.String(),
		Narration: t.Narration,
		Reference: t.ReferenceNumber,
	}
	// Ledger names are cosmetic in the mirror; fall back to ids.
	row.DebitName = w.ledgerName(ctx, t.DebitLedgerID)
	row.CreditName = w.ledgerName(ctx, t.CreditLedgerID)
	return row
}

func (w *ExportWorker) ledgerName(ctx context.Context, id int64) string {
	l, err := w.store.GetLedger(ctx, id)
	if err != nil {
		return fmt.Sprintf("#%d", id)
	}
	return l.Name
}

// ProcessPending sweeps one batch of unsynced transactions. It returns the
// number successfully mirrored; individual failures are recorded and do
// not stop the batch.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	synced := 0
	for _, p := range pending {
		if err := w.syncTransaction(ctx, p.ID, p.Version); err != nil {
			w.logger.ErrorContext(ctx, "sweep sync failed", log.FieldError, err, log.FieldTxID, p.ID)
			continue
		}
		synced++
	}
	return synced, nil
}

// Run sweeps pending transactions on the given interval until ctx is
// cancelled. The feed consumer runs separately; this loop only catches
// rows the feed missed.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "export sweep started", "interval", interval, "batch_size", w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "export sweep stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.ProcessPending(ctx); err != nil {
				w.logger.ErrorContext(ctx, "sweep failed", log.FieldError, err)
			} else if n > 0 {
				w.logger.InfoContext(ctx, "sweep mirrored transactions", "count", n)
			}
		}
	}
}
