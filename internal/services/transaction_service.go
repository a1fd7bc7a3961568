// Package services orchestrates writes across storage and the event feed.
package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/storage"
)

var (
	transactionsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_transactions_posted_total",
		Help: "Transactions written to the ledger, by kind.",
	}, []string{"kind"})

	transactionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_transactions_deleted_total",
		Help: "Transactions removed from the ledger.",
	})

	eventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_event_publish_failures_total",
		Help: "Transaction feed events that could not be published.",
	})
)

// EventPublisher is the feed side of the write path. A nil publisher
// disables the feed without affecting ledger writes.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.TransactionEvent) error
}

// TransactionService validates and persists ledger writes, then announces
// them on the event feed. The store write is the source of truth; a feed
// failure is logged and counted, never propagated.
type TransactionService struct {
	store     storage.Store
	publisher EventPublisher
	logger    *log.Logger
}

func NewTransactionService(store storage.Store, publisher EventPublisher, logger *log.Logger) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent("transactions"),
	}
}

func (s *TransactionService) Create(ctx context.Context, t *core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	transactionsPosted.WithLabelValues(string(t.Kind)).Inc()

	s.logger.InfoContext(ctx, "transaction posted",
		log.FieldTxID, id, log.FieldKind, string(t.Kind),
		log.FieldAmountCents, t.Amount.Cents,
		"debit_ledger_id", t.DebitLedgerID, "credit_ledger_id", t.CreditLedgerID)

	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventPosted, id, t.Version))
	return id, nil
}

func (s *TransactionService) Update(ctx context.Context, t *core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "transaction updated", log.FieldTxID, t.ID)
	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventUpdated, t.ID, t.Version))
	return nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	transactionsDeleted.Inc()

	s.logger.InfoContext(ctx, "transaction deleted", log.FieldTxID, id)
	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventDeleted, id, 0))
	return nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (*core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, int, error) {
	return s.store.ListTransactions(ctx, f)
}

func (s *TransactionService) publish(ctx context.Context, event *amqp.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		eventPublishFailures.Inc()
		s.logger.ErrorContext(ctx, "publish transaction event failed",
			log.FieldError, err, "event", event.Event, log.FieldTxID, event.ID)
	}
}
