package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChart(t *testing.T, s *SQLiteStore) (bankID, cardID, groceriesID int64) {
	t.Helper()
	ctx := context.Background()

	assets, err := s.CreateGroup(ctx, &core.LedgerGroup{Name: "Bank Accounts", Classification: core.Asset, Subtype: core.SubtypeBank})
	if err != nil {
		t.Fatalf("create assets group: %v", err)
	}
	cards, err := s.CreateGroup(ctx, &core.LedgerGroup{Name: "Credit Cards", Classification: core.Liability, Subtype: core.SubtypeCreditCard})
	if err != nil {
		t.Fatalf("create cards group: %v", err)
	}
	expenses, err := s.CreateGroup(ctx, &core.LedgerGroup{Name: "Living Expenses", Classification: core.Expense, Subtype: core.SubtypeExpense})
	if err != nil {
		t.Fatalf("create expenses group: %v", err)
	}

	bankID, err = s.CreateLedger(ctx, &core.Ledger{Name: "Checking", GroupID: assets})
	if err != nil {
		t.Fatalf("create bank ledger: %v", err)
	}
	cardID, err = s.CreateLedger(ctx, &core.Ledger{Name: "Visa", GroupID: cards})
	if err != nil {
		t.Fatalf("create card ledger: %v", err)
	}
	groceriesID, err = s.CreateLedger(ctx, &core.Ledger{Name: "Groceries", GroupID: expenses})
	if err != nil {
		t.Fatalf("create groceries ledger: %v", err)
	}
	return bankID, cardID, groceriesID
}

func TestSQLiteIdempotentReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	tx := &core.Transaction{
		Date:           core.NewDate(2025, 3, 10),
		Kind:           core.Payment,
		Amount:         core.Money{Cents: 4500},
		DebitLedgerID:  groceriesID,
		CreditLedgerID: bankID,
		IdempotencyKey: "req-42",
	}
	first, err := s.CreateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	replay := *tx
	replay.ID = 0
	second, err := s.CreateTransaction(ctx, &replay)
	if err != nil {
		t.Fatalf("replayed create: %v", err)
	}
	if second != first {
		t.Errorf("replay returned id %d, want original %d", second, first)
	}

	_, total, err := s.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("got %d transactions after replay, want 1", total)
	}

	// The replay must not touch the ledgers a second time.
	bank, err := s.GetLedger(ctx, bankID)
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if bank.Version != 1 {
		t.Errorf("bank version after replay = %d, want 1", bank.Version)
	}
}

func TestSQLiteConcurrentSameKeyCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	const workers = 8
	ids := make([]int64, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			id, err := s.CreateTransaction(ctx, &core.Transaction{
				Date:           core.NewDate(2025, 3, 10),
				Kind:           core.Payment,
				Amount:         core.Money{Cents: 4500},
				DebitLedgerID:  groceriesID,
				CreditLedgerID: bankID,
				IdempotencyKey: "req-race",
			})
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent create: %v", err)
	}

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %d, want %d", i, ids[i], ids[0])
		}
	}
	_, total, err := s.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("got %d transactions after %d concurrent creates, want 1", total, workers)
	}
}

func TestSQLiteClassificationChangeConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	_, err := s.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 3, 10), Kind: core.Payment,
		Amount: core.Money{Cents: 500}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bank, err := s.GetLedger(ctx, bankID)
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	g, err := s.GetGroup(ctx, bank.GroupID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	g.Classification = core.Liability
	if err := s.UpdateGroup(ctx, g); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("classification change with history: got %v, want ErrConflict", err)
	}

	// Renaming without touching classification stays allowed.
	g.Classification = core.Asset
	g.Name = "Current Accounts"
	if err := s.UpdateGroup(ctx, g); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestSQLiteCascadeDeleteGroupBumpsCounterparties(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	_, err := s.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 3, 10), Kind: core.Payment,
		Amount: core.Money{Cents: 2500}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	groceries, err := s.GetLedger(ctx, groceriesID)
	if err != nil {
		t.Fatalf("get groceries: %v", err)
	}
	ledgersDeleted, txsDeleted, err := s.CascadeDeleteGroup(ctx, groceries.GroupID)
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if ledgersDeleted != 1 || txsDeleted != 1 {
		t.Errorf("deleted ledgers=%d txs=%d, want 1 and 1", ledgersDeleted, txsDeleted)
	}

	if _, err := s.GetLedger(ctx, groceriesID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted ledger lookup: got %v, want ErrNotFound", err)
	}
	// The bank lost a posting; its cached balances must be invalidated.
	bank, err := s.GetLedger(ctx, bankID)
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if bank.Version != 2 {
		t.Errorf("counterparty version = %d, want 2", bank.Version)
	}
}

func TestSQLiteSumPostingsAsOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	post := func(day int, cents int64) {
		t.Helper()
		_, err := s.CreateTransaction(ctx, &core.Transaction{
			Date: core.NewDate(2025, 3, day), Kind: core.Payment,
			Amount: core.Money{Cents: cents}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
		})
		if err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	post(5, 1000)
	post(15, 2000)
	post(25, 4000)

	debits, credits, err := s.SumPostings(ctx, bankID, core.NewDate(2025, 3, 15))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if debits != 0 || credits != 3000 {
		t.Errorf("asOf mid-month: debits=%d credits=%d, want 0 and 3000", debits, credits)
	}

	debits, credits, err = s.SumPostings(ctx, groceriesID, core.Date{})
	if err != nil {
		t.Fatalf("sum all: %v", err)
	}
	if debits != 7000 || credits != 0 {
		t.Errorf("all history: debits=%d credits=%d, want 7000 and 0", debits, credits)
	}
}

func TestSQLiteDeleteLedgerRequiresCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	_, err := s.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 3, 10), Kind: core.Payment,
		Amount: core.Money{Cents: 500}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.DeleteLedger(ctx, bankID, false); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("delete without cascade: got %v, want ErrConflict", err)
	}

	deleted, err := s.DeleteLedger(ctx, bankID, true)
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("transactions deleted = %d, want 1", deleted)
	}
	groceries, err := s.GetLedger(ctx, groceriesID)
	if err != nil {
		t.Fatalf("get groceries: %v", err)
	}
	if groceries.Version != 2 {
		t.Errorf("counterparty version = %d, want 2", groceries.Version)
	}
}
