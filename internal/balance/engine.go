// Package balance derives ledger balances from the transaction history.
// Balances are never stored; the engine computes them on demand and caches
// the result keyed on the ledger's version, so every write that touches a
// ledger makes its cached balances unreachable.
package balance

import (
	"context"
	"fmt"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/storage"
)

// Engine computes raw debit-minus-credit balances.
//
// The raw convention keeps the books additive: asset and expense ledgers
// read positive when money sits in them, liability ledgers read negative
// when drawn. Presentation-side sign flips (income shown positive) happen
// in the reporting layer, never here.
type Engine struct {
	store storage.Store
	cache *cache.LRUCache[int64]
}

// NewEngine wraps the store with a balance cache. The cache is optional;
// pass nil to compute every balance from the store.
func NewEngine(store storage.Store, c *cache.LRUCache[int64]) *Engine {
	return &Engine{store: store, cache: c}
}

func cacheKey(ledgerID, version int64, asOf core.Date) string {
	if asOf.IsZero() {
		return fmt.Sprintf("%d:%d:all", ledgerID, version)
	}
	return fmt.Sprintf("%d:%d:%s", ledgerID, version, asOf)
}

// BalanceOf returns the ledger's balance up to and including asOf, or over
// all history when asOf is zero.
//
//	balance = openingBalance + sum(debits) - sum(credits)
func (e *Engine) BalanceOf(ctx context.Context, ledgerID int64, asOf core.Date) (core.Money, error) {
	ledger, err := e.store.GetLedger(ctx, ledgerID)
	if err != nil {
		return core.Money{}, err
	}
	return e.balanceOfLedger(ctx, ledger, asOf)
}

func (e *Engine) balanceOfLedger(ctx context.Context, ledger *core.Ledger, asOf core.Date) (core.Money, error) {
	key := cacheKey(ledger.ID, ledger.Version, asOf)
	if e.cache != nil {
		if cents, ok := e.cache.Get(key); ok {
			return core.Money{Cents: cents}, nil
		}
	}

	debits, credits, err := e.store.SumPostings(ctx, ledger.ID, asOf)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum postings for ledger %d: %w", ledger.ID, err)
	}
	cents := ledger.OpeningBalance.Cents + debits - credits

	if e.cache != nil {
		e.cache.Set(key, cents)
	}
	return core.Money{Cents: cents}, nil
}

// BalanceOfGroup sums the balances of every ledger in the group.
func (e *Engine) BalanceOfGroup(ctx context.Context, groupID int64, asOf core.Date) (core.Money, error) {
	if _, err := e.store.GetGroup(ctx, groupID); err != nil {
		return core.Money{}, err
	}
	ledgers, _, err := e.store.ListLedgers(ctx, storage.LedgerFilter{GroupID: groupID})
	if err != nil {
		return core.Money{}, fmt.Errorf("list group %d ledgers: %w", groupID, err)
	}

	var total core.Money
	for i := range ledgers {
		b, err := e.balanceOfLedger(ctx, &ledgers[i], asOf)
		if err != nil {
			return core.Money{}, err
		}
		total = total.Add(b)
	}
	return total, nil
}

// NetWorth sums raw balances across every asset and liability ledger.
// Drawn liabilities carry negative raw balances, so plain addition yields
// assets minus liabilities.
func (e *Engine) NetWorth(ctx context.Context, asOf core.Date) (core.Money, error) {
	var total core.Money
	for _, cls := range []core.Classification{core.Asset, core.Liability} {
		ledgers, _, err := e.store.ListLedgers(ctx, storage.LedgerFilter{Classification: cls})
		if err != nil {
			return core.Money{}, fmt.Errorf("list %s ledgers: %w", cls, err)
		}
		for i := range ledgers {
			b, err := e.balanceOfLedger(ctx, &ledgers[i], asOf)
			if err != nil {
				return core.Money{}, err
			}
			total = total.Add(b)
		}
	}
	return total, nil
}
