package core

import (
	"errors"
	"testing"
)

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		Date:           NewDate(2025, 3, 14),
		Kind:           Payment,
		Amount:         Money{Cents: 1500},
		DebitLedgerID:  2,
		CreditLedgerID: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		field  string
	}{
		{"zero amount", func(tx *Transaction) { tx.Amount.Cents = 0 }, "amount"},
		{"negative amount", func(tx *Transaction) { tx.Amount.Cents = -100 }, "amount"},
		{"missing debit", func(tx *Transaction) { tx.DebitLedgerID = 0 }, "debit_ledger_id"},
		{"missing credit", func(tx *Transaction) { tx.CreditLedgerID = 0 }, "credit_ledger_id"},
		{"same ledger both sides", func(tx *Transaction) { tx.CreditLedgerID = tx.DebitLedgerID }, "credit_ledger_id"},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, "date"},
		{"bad kind", func(tx *Transaction) { tx.Kind = "Wire" }, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := valid
			tc.mutate(&tx)
			err := tx.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestTransactionDelta(t *testing.T) {
	tx := Transaction{Amount: Money{Cents: 1500}, DebitLedgerID: 2, CreditLedgerID: 1}
	if got := tx.Delta(2); got != 1500 {
		t.Fatalf("debit delta = %d, want 1500", got)
	}
	if got := tx.Delta(1); got != -1500 {
		t.Fatalf("credit delta = %d, want -1500", got)
	}
	if got := tx.Delta(99); got != 0 {
		t.Fatalf("uninvolved delta = %d, want 0", got)
	}
	// The signed sum of a transaction's two postings is always zero.
	if tx.Delta(2)+tx.Delta(1) != 0 {
		t.Fatal("postings do not sum to zero")
	}
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"Payment", Payment, true},
		{"Receipt", Receipt, true},
		{"Contra", Contra, true},
		{"Transfer", Contra, true}, // alias
		{"Journal", Journal, true},
		{"payment", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestClassificationSign(t *testing.T) {
	for _, c := range []Classification{Asset, Expense} {
		if c.Sign() != 1 {
			t.Fatalf("%s should be debit-normal", c)
		}
	}
	for _, c := range []Classification{Liability, Equity, Income} {
		if c.Sign() != -1 {
			t.Fatalf("%s should be credit-normal", c)
		}
	}
}

func TestLedgerValidate(t *testing.T) {
	limit := Money{Cents: 5000000}
	day := 15
	l := Ledger{Name: "Visa", GroupID: 1, CreditLimit: &limit, DueDay: &day}
	if err := l.Validate(); err != nil {
		t.Fatalf("valid ledger rejected: %v", err)
	}

	badDay := 32
	l.DueDay = &badDay
	if err := l.Validate(); err == nil {
		t.Fatal("expected due_day validation error")
	}
}
