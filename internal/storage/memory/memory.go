// Package memory provides an in-memory Store for development and tests.
// It mirrors the SQLite backend's semantics, including version bumps and
// idempotent transaction creation, without touching disk.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	groups       map[int64]core.LedgerGroup
	ledgers      map[int64]core.Ledger
	transactions map[int64]core.Transaction

	nextGroupID       int64
	nextLedgerID      int64
	nextTransactionID int64
}

func NewStore() *Store {
	return &Store{
		groups:            make(map[int64]core.LedgerGroup),
		ledgers:           make(map[int64]core.Ledger),
		transactions:      make(map[int64]core.Transaction),
		nextGroupID:       1,
		nextLedgerID:      1,
		nextTransactionID: 1,
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

// --- chart of accounts ---

func (s *Store) CreateGroup(ctx context.Context, g *core.LedgerGroup) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = s.nextGroupID
	s.nextGroupID++
	s.groups[g.ID] = *g
	return g.ID, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*core.LedgerGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", id, core.ErrNotFound)
	}
	return &g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *core.LedgerGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.groups[g.ID]
	if !ok {
		return fmt.Errorf("group %d: %w", g.ID, core.ErrNotFound)
	}
	if g.Classification != current.Classification {
		n := 0
		for _, t := range s.transactions {
			if s.ledgerInGroup(t.DebitLedgerID, g.ID) || s.ledgerInGroup(t.CreditLedgerID, g.ID) {
				n++
			}
		}
		if n > 0 {
			return fmt.Errorf("classification change with %d posted transactions: %w", n, core.ErrConflict)
		}
	}
	s.groups[g.ID] = *g
	return nil
}

func (s *Store) ledgerInGroup(ledgerID, groupID int64) bool {
	l, ok := s.ledgers[ledgerID]
	return ok && l.GroupID == groupID
}

func (s *Store) ListGroups(ctx context.Context) ([]core.LedgerGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]core.LedgerGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *Store) CountLedgers(ctx context.Context, groupID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, l := range s.ledgers {
		if l.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateLedger(ctx context.Context, l *core.Ledger) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[l.GroupID]
	if !ok {
		return 0, fmt.Errorf("group %d: %w", l.GroupID, core.ErrNotFound)
	}
	l.ID = s.nextLedgerID
	s.nextLedgerID++
	l.Classification = g.Classification
	l.Subtype = g.Subtype
	l.Version = 0
	s.ledgers[l.ID] = *l
	return l.ID, nil
}

func (s *Store) GetLedger(ctx context.Context, id int64) (*core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("ledger %d: %w", id, core.ErrNotFound)
	}
	s.joinGroupFields(&l)
	return &l, nil
}

// joinGroupFields refreshes the read-model classification and subtype from
// the owning group. Callers must hold at least the read lock.
func (s *Store) joinGroupFields(l *core.Ledger) {
	if g, ok := s.groups[l.GroupID]; ok {
		l.Classification = g.Classification
		l.Subtype = g.Subtype
	}
}

func (s *Store) UpdateLedger(ctx context.Context, l *core.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ledgers[l.ID]
	if !ok {
		return fmt.Errorf("ledger %d: %w", l.ID, core.ErrNotFound)
	}
	if _, ok := s.groups[l.GroupID]; !ok {
		return fmt.Errorf("group %d: %w", l.GroupID, core.ErrNotFound)
	}
	// Opening balance and version are not client-writable.
	l.OpeningBalance = current.OpeningBalance
	l.Version = current.Version
	s.joinGroupFields(l)
	s.ledgers[l.ID] = *l
	return nil
}

func (s *Store) ListLedgers(ctx context.Context, f storage.LedgerFilter) ([]core.Ledger, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []core.Ledger
	for _, l := range s.ledgers {
		s.joinGroupFields(&l)
		if f.GroupID > 0 && l.GroupID != f.GroupID {
			continue
		}
		if f.Classification != "" && l.Classification != f.Classification {
			continue
		}
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	all = paginate(all, f.Limit, f.Offset)
	return all, total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// --- transaction ledger ---

func (s *Store) bumpVersions(ids ...int64) {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if l, ok := s.ledgers[id]; ok {
			l.Version++
			s.ledgers[id] = l
		}
	}
}

func (s *Store) CreateTransaction(ctx context.Context, t *core.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.IdempotencyKey != "" {
		for _, existing := range s.transactions {
			if existing.IdempotencyKey == t.IdempotencyKey {
				t.ID = existing.ID
				return existing.ID, nil
			}
		}
	}
	if _, ok := s.ledgers[t.DebitLedgerID]; !ok {
		return 0, fmt.Errorf("debit_ledger_id %d: %w", t.DebitLedgerID, core.ErrNotFound)
	}
	if _, ok := s.ledgers[t.CreditLedgerID]; !ok {
		return 0, fmt.Errorf("credit_ledger_id %d: %w", t.CreditLedgerID, core.ErrNotFound)
	}

	t.ID = s.nextTransactionID
	s.nextTransactionID++
	t.Version = 1
	t.SyncedAt = nil
	s.transactions[t.ID] = *t
	s.bumpVersions(t.DebitLedgerID, t.CreditLedgerID)
	return t.ID, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.transactions[t.ID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if _, ok := s.ledgers[t.DebitLedgerID]; !ok {
		return fmt.Errorf("debit_ledger_id %d: %w", t.DebitLedgerID, core.ErrNotFound)
	}
	if _, ok := s.ledgers[t.CreditLedgerID]; !ok {
		return fmt.Errorf("credit_ledger_id %d: %w", t.CreditLedgerID, core.ErrNotFound)
	}

	t.IdempotencyKey = old.IdempotencyKey
	t.Version = old.Version + 1
	t.SyncedAt = nil
	s.transactions[t.ID] = *t
	s.bumpVersions(old.DebitLedgerID, old.CreditLedgerID, t.DebitLedgerID, t.CreditLedgerID)
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	delete(s.transactions, id)
	s.bumpVersions(t.DebitLedgerID, t.CreditLedgerID)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []core.Transaction
	for _, t := range s.transactions {
		if f.LedgerID > 0 && t.DebitLedgerID != f.LedgerID && t.CreditLedgerID != f.LedgerID {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(f.To.Time) {
			continue
		}
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date.Time) {
			return all[i].Date.Before(all[j].Date.Time)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	all = paginate(all, f.Limit, f.Offset)
	return all, total, nil
}

// --- balance inputs ---

func (s *Store) SumPostings(ctx context.Context, ledgerID int64, asOf core.Date) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var debits, credits int64
	for _, t := range s.transactions {
		if !asOf.IsZero() && t.Date.After(asOf.Time) {
			continue
		}
		switch ledgerID {
		case t.DebitLedgerID:
			debits += t.Amount.Cents
		case t.CreditLedgerID:
			credits += t.Amount.Cents
		}
	}
	return debits, credits, nil
}

func (s *Store) ActivityByLedger(ctx context.Context, from, to core.Date) ([]storage.LedgerActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLedger := make(map[int64]*storage.LedgerActivity)
	touch := func(id int64) *storage.LedgerActivity {
		if a, ok := byLedger[id]; ok {
			return a
		}
		l := s.ledgers[id]
		g := s.groups[l.GroupID]
		a := &storage.LedgerActivity{LedgerID: id, Name: l.Name, Classification: g.Classification}
		byLedger[id] = a
		return a
	}
	for _, t := range s.transactions {
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		touch(t.DebitLedgerID).Debits += t.Amount.Cents
		touch(t.CreditLedgerID).Credits += t.Amount.Cents
	}

	out := make([]storage.LedgerActivity, 0, len(byLedger))
	for _, a := range byLedger {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out, nil
}

// --- lifecycle ---

func (s *Store) DeleteEmptyGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}
	n := 0
	for _, l := range s.ledgers {
		if l.GroupID == groupID {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("group %d still has %d ledgers: %w", groupID, n, core.ErrConflict)
	}
	delete(s.groups, groupID)
	return nil
}

func (s *Store) ReassignAndDeleteGroup(ctx context.Context, groupID, targetGroupID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return 0, fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}
	if _, ok := s.groups[targetGroupID]; !ok {
		return 0, fmt.Errorf("target group %d: %w", targetGroupID, core.ErrNotFound)
	}

	moved := 0
	for id, l := range s.ledgers {
		if l.GroupID == groupID {
			l.GroupID = targetGroupID
			s.ledgers[id] = l
			moved++
		}
	}
	delete(s.groups, groupID)
	return moved, nil
}

func (s *Store) CascadeDeleteGroup(ctx context.Context, groupID int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return 0, 0, fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}

	inGroup := make(map[int64]bool)
	for id, l := range s.ledgers {
		if l.GroupID == groupID {
			inGroup[id] = true
		}
	}

	txsDeleted := 0
	var counterparties []int64
	for id, t := range s.transactions {
		switch {
		case inGroup[t.DebitLedgerID] && inGroup[t.CreditLedgerID]:
		case inGroup[t.DebitLedgerID]:
			counterparties = append(counterparties, t.CreditLedgerID)
		case inGroup[t.CreditLedgerID]:
			counterparties = append(counterparties, t.DebitLedgerID)
		default:
			continue
		}
		delete(s.transactions, id)
		txsDeleted++
	}

	for id := range inGroup {
		delete(s.ledgers, id)
	}
	delete(s.groups, groupID)
	s.bumpVersions(counterparties...)
	return len(inGroup), txsDeleted, nil
}

func (s *Store) DeleteLedger(ctx context.Context, ledgerID int64, cascade bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledgers[ledgerID]; !ok {
		return 0, fmt.Errorf("ledger %d: %w", ledgerID, core.ErrNotFound)
	}

	var touching []int64
	for id, t := range s.transactions {
		if t.DebitLedgerID == ledgerID || t.CreditLedgerID == ledgerID {
			touching = append(touching, id)
		}
	}
	if len(touching) > 0 && !cascade {
		return 0, fmt.Errorf("ledger %d has %d transactions: %w", ledgerID, len(touching), core.ErrConflict)
	}

	var counterparties []int64
	for _, id := range touching {
		t := s.transactions[id]
		if t.DebitLedgerID == ledgerID {
			counterparties = append(counterparties, t.CreditLedgerID)
		} else {
			counterparties = append(counterparties, t.DebitLedgerID)
		}
		delete(s.transactions, id)
	}
	delete(s.ledgers, ledgerID)
	s.bumpVersions(counterparties...)
	return len(touching), nil
}

// --- export feed ---

func (s *Store) PendingSync(ctx context.Context, limit int) ([]storage.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []storage.PendingTransaction
	for _, t := range s.transactions {
		if t.SyncedAt == nil {
			pending = append(pending, storage.PendingTransaction{ID: t.ID, Version: t.Version})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	now := time.Now().UTC()
	t.SyncedAt = &now
	s.transactions[id] = t
	return nil
}

func (s *Store) MarkSyncError(ctx context.Context, id int64) error {
	return nil
}
