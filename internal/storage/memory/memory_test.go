package memory

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
	"tally/internal/storage"
)

func seedChart(t *testing.T, s *Store) (bankID, cardID, groceriesID int64) {
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

func TestCreateTransactionIdempotent(t *testing.T) {
	s := NewStore()
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

	_, total, err := s.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("got %d transactions after replay, want 1", total)
	}
}

func TestTransactionWritesBumpLedgerVersions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	bankID, cardID, groceriesID := seedChart(t, s)

	id, err := s.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 3, 10), Kind: core.Payment,
		Amount: core.Money{Cents: 1000}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bank, _ := s.GetLedger(ctx, bankID)
	if bank.Version != 1 {
		t.Errorf("bank version after create = %d, want 1", bank.Version)
	}

	// Moving the credit side bumps old and new credit ledgers.
	updated, _ := s.GetTransaction(ctx, id)
	updated.CreditLedgerID = cardID
	if err := s.UpdateTransaction(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	bank, _ = s.GetLedger(ctx, bankID)
	card, _ := s.GetLedger(ctx, cardID)
	if bank.Version != 2 || card.Version != 1 {
		t.Errorf("versions after rewire: bank=%d card=%d, want 2 and 1", bank.Version, card.Version)
	}
}

func TestSumPostingsAsOf(t *testing.T) {
	s := NewStore()
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

func TestDeleteLedgerRequiresCascade(t *testing.T) {
	s := NewStore()
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
	// The counterparty's cached balance must be invalidated too.
	groceries, _ := s.GetLedger(ctx, groceriesID)
	if groceries.Version != 2 {
		t.Errorf("counterparty version = %d, want 2", groceries.Version)
	}
}

func TestReassignAndDeleteGroup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	bankID, _, _ := seedChart(t, s)

	bank, _ := s.GetLedger(ctx, bankID)
	target, err := s.CreateGroup(ctx, &core.LedgerGroup{Name: "Cash", Classification: core.Asset, Subtype: core.SubtypeCash})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	moved, err := s.ReassignAndDeleteGroup(ctx, bank.GroupID, target)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}
	bank, _ = s.GetLedger(ctx, bankID)
	if bank.GroupID != target {
		t.Errorf("ledger group after reassign = %d, want %d", bank.GroupID, target)
	}
	if _, err := s.GetGroup(ctx, bank.GroupID); err != nil {
		t.Errorf("target group should exist: %v", err)
	}
}

func TestUpdateGroupClassificationConflict(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	bankID, _, groceriesID := seedChart(t, s)

	_, err := s.CreateTransaction(ctx, &core.Transaction{
		Date: core.NewDate(2025, 3, 10), Kind: core.Payment,
		Amount: core.Money{Cents: 500}, DebitLedgerID: groceriesID, CreditLedgerID: bankID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bank, _ := s.GetLedger(ctx, bankID)
	g, _ := s.GetGroup(ctx, bank.GroupID)
	g.Classification = core.Liability
	if err := s.UpdateGroup(ctx, g); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("classification change with history: got %v, want ErrConflict", err)
	}
}
