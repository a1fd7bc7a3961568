// Package lifecycle coordinates structural deletions in the chart of
// accounts. Group deletion runs as a small state machine: a request either
// resolves through one of the dependent-handling policies or aborts
// leaving the books untouched.
package lifecycle

import (
	"context"
	"fmt"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/storage"
)

// State names the phases of a deletion request.
type State string

const (
	StateRequested     State = "Requested"
	StateNoDependents  State = "NoDependents"
	StateHasDependents State = "HasDependents"
	StateResolved      State = "Resolved"
	StateAborted       State = "Aborted"
)

// Policy says how to handle a group's dependent ledgers. Exactly one of
// ReassignTo or Cascade must be set when dependents exist.
type Policy struct {
	ReassignTo *int64
	Cascade    bool
}

func (p Policy) validate() error {
	if p.ReassignTo != nil && p.Cascade {
		return &core.ValidationError{Field: "policy", Reason: "reassignTo and cascade are mutually exclusive"}
	}
	return nil
}

// Outcome reports what a deletion did.
type Outcome struct {
	State               State
	LedgersMoved        int
	LedgersDeleted      int
	TransactionsDeleted int
}

type Coordinator struct {
	store  storage.Store
	logger *log.Logger
}

func NewCoordinator(store storage.Store, logger *log.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logger.WithComponent(log.ComponentLifecycle),
	}
}

// DeleteGroup removes a group. An empty group is deleted immediately. A
// group with ledgers needs exactly one policy; supplying neither or both
// aborts with a validation error and changes nothing. Either branch runs
// as one atomic storage operation.
func (c *Coordinator) DeleteGroup(ctx context.Context, groupID int64, policy Policy) (*Outcome, error) {
	if err := policy.validate(); err != nil {
		return &Outcome{State: StateAborted}, err
	}
	if _, err := c.store.GetGroup(ctx, groupID); err != nil {
		return &Outcome{State: StateAborted}, err
	}

	dependents, err := c.store.CountLedgers(ctx, groupID)
	if err != nil {
		return &Outcome{State: StateAborted}, fmt.Errorf("count dependents: %w", err)
	}

	if dependents == 0 {
		if err := c.store.DeleteEmptyGroup(ctx, groupID); err != nil {
			return &Outcome{State: StateAborted}, err
		}
		c.logger.InfoContext(ctx, "group deleted",
			log.FieldGroupID, groupID, log.FieldPolicy, "none")
		return &Outcome{State: StateResolved}, nil
	}

	switch {
	case policy.ReassignTo != nil:
		target := *policy.ReassignTo
		if target == groupID {
			return &Outcome{State: StateAborted},
				&core.ValidationError{Field: "policy", Reason: "cannot reassign ledgers to the group being deleted"}
		}
		moved, err := c.store.ReassignAndDeleteGroup(ctx, groupID, target)
		if err != nil {
			return &Outcome{State: StateAborted}, err
		}
		c.logger.InfoContext(ctx, "group deleted",
			log.FieldGroupID, groupID, log.FieldPolicy, "reassign",
			"target_group_id", target, "ledgers_moved", moved)
		return &Outcome{State: StateResolved, LedgersMoved: moved}, nil

	case policy.Cascade:
		ledgers, txs, err := c.store.CascadeDeleteGroup(ctx, groupID)
		if err != nil {
			return &Outcome{State: StateAborted}, err
		}
		c.logger.InfoContext(ctx, "group deleted",
			log.FieldGroupID, groupID, log.FieldPolicy, "cascade",
			"ledgers_deleted", ledgers, "transactions_deleted", txs)
		return &Outcome{State: StateResolved, LedgersDeleted: ledgers, TransactionsDeleted: txs}, nil
	}

	return &Outcome{State: StateAborted},
		&core.ValidationError{Field: "policy", Reason: fmt.Sprintf("group has %d ledgers; a reassignTo or cascade policy is required", dependents)}
}

// DeleteLedger removes a single ledger. A ledger with transactions is
// rejected unless the caller opts into cascading transaction deletion.
func (c *Coordinator) DeleteLedger(ctx context.Context, ledgerID int64, cascade bool) (*Outcome, error) {
	txs, err := c.store.DeleteLedger(ctx, ledgerID, cascade)
	if err != nil {
		return &Outcome{State: StateAborted}, err
	}
	c.logger.InfoContext(ctx, "ledger deleted",
		log.FieldLedgerID, ledgerID, "cascade", cascade, "transactions_deleted", txs)
	return &Outcome{State: StateResolved, LedgersDeleted: 1, TransactionsDeleted: txs}, nil
}
