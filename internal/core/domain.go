package core

import (
	"strings"
	"time"
)

// Classification is the chart-of-accounts bucket a group belongs to.
// It determines the normal balance side and the sign in net worth.
type Classification string

const (
	Asset     Classification = "asset"
	Liability Classification = "liability"
	Equity    Classification = "equity"
	Income    Classification = "income"
	Expense   Classification = "expense"
)

// Valid reports whether c is one of the five classifications.
func (c Classification) Valid() bool {
	switch c {
	case Asset, Liability, Equity, Income, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this classification increase on
// the debit side. Asset and expense accounts are debit-normal; liability,
// equity and income accounts are credit-normal.
func (c Classification) DebitNormal() bool {
	return c == Asset || c == Expense
}

// Sign returns +1 for debit-normal classifications and -1 otherwise.
func (c Classification) Sign() int64 {
	if c.DebitNormal() {
		return 1
	}
	return -1
}

// Subtype refines a group for presentation and filtering only; it never
// changes the accounting mechanics.
type Subtype string

const (
	SubtypeBank       Subtype = "bank"
	SubtypeCash       Subtype = "cash"
	SubtypeCreditCard Subtype = "credit_card"
	SubtypeDebtor     Subtype = "debtor"
	SubtypeLoan       Subtype = "loan"
	SubtypeInvestment Subtype = "investment"
	SubtypeIncome     Subtype = "income"
	SubtypeExpense    Subtype = "expense"
	SubtypeOther      Subtype = "other"
)

// Kind classifies a transaction for display and reporting buckets only.
type Kind string

const (
	Payment Kind = "Payment"
	Receipt Kind = "Receipt"
	// Contra covers transfers between own accounts. "Transfer" is accepted
	// as an input alias and normalized to Contra.
	Contra  Kind = "Contra"
	Journal Kind = "Journal"
)

// ParseKind normalizes a kind string, mapping the Transfer alias to Contra.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case Payment:
		return Payment, nil
	case Receipt:
		return Receipt, nil
	case Contra, Kind("Transfer"):
		return Contra, nil
	case Journal:
		return Journal, nil
	}
	return "", &ValidationError{Field: "kind", Reason: "must be one of Payment, Receipt, Contra, Journal"}
}

// Date is a calendar date with day precision, always UTC midnight.
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: "must be a valid YYYY-MM-DD date"}
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Reason: "date cannot be zero"}
	}
	return nil
}

// String renders the date in the wire format.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date {
	y, m, _ := d.Date()
	return Date{Time: time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)}
}

// LedgerGroup is a chart-of-accounts bucket owning ledgers.
type LedgerGroup struct {
	ID             int64
	Name           string
	Classification Classification
	Subtype        Subtype
	Description    string
}

func (g LedgerGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	if !g.Classification.Valid() {
		return &ValidationError{Field: "classification", Reason: "must be one of asset, liability, equity, income, expense"}
	}
	return nil
}

// Ledger is an individual account. Its current balance is never stored as
// the source of truth; it is derived from the transaction history.
type Ledger struct {
	ID             int64
	Name           string
	GroupID        int64
	OpeningBalance Money
	AccountNumber  string
	Notes          string

	// CreditLimit and DueDay feed the credit-card dues report; both are
	// optional and meaningful only for credit_card-subtype groups.
	CreditLimit *Money
	DueDay      *int

	// Classification and Subtype are read-model fields joined from the
	// owning group.
	Classification Classification
	Subtype        Subtype

	// Version increases monotonically on every transaction write touching
	// this ledger; balance caches key on it and can never serve stale data.
	Version int64
}

func (l Ledger) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	if l.GroupID <= 0 {
		return &ValidationError{Field: "group_id", Reason: "group_id is required"}
	}
	if l.CreditLimit != nil && l.CreditLimit.Cents <= 0 {
		return &ValidationError{Field: "credit_limit", Reason: "must be greater than zero"}
	}
	if l.DueDay != nil && (*l.DueDay < 1 || *l.DueDay > 31) {
		return &ValidationError{Field: "due_day", Reason: "must be between 1 and 31"}
	}
	return nil
}

// Transaction is one balanced movement of money between exactly two
// ledgers: it increases the debit ledger's raw balance by Amount and
// decreases the credit ledger's by the same amount, so its signed postings
// always sum to zero.
type Transaction struct {
	ID              int64
	Date            Date
	Kind            Kind
	Amount          Money
	DebitLedgerID   int64
	CreditLedgerID  int64
	Narration       string
	ReferenceNumber string

	// IdempotencyKey makes retried creates safe; replays with the same key
	// return the originally created transaction.
	IdempotencyKey string

	// Version and SyncedAt track the export feed, not accounting state.
	Version  int64
	SyncedAt *time.Time
}

// Validate checks the write-time invariants: positive amount, both ledger
// ids present, debit != credit, valid date and kind. Referential
// existence of the ledgers is checked by the store inside the same write.
func (t Transaction) Validate() error {
	if t.Amount.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if t.DebitLedgerID <= 0 {
		return &ValidationError{Field: "debit_ledger_id", Reason: "debit_ledger_id is required"}
	}
	if t.CreditLedgerID <= 0 {
		return &ValidationError{Field: "credit_ledger_id", Reason: "credit_ledger_id is required"}
	}
	if t.DebitLedgerID == t.CreditLedgerID {
		return &ValidationError{Field: "credit_ledger_id", Reason: "debit and credit ledgers must differ"}
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case Payment, Receipt, Contra, Journal:
	default:
		return &ValidationError{Field: "kind", Reason: "must be one of Payment, Receipt, Contra, Journal"}
	}
	if len(t.Narration) > 500 {
		return &ValidationError{Field: "narration", Reason: "narration too long (max 500 characters)"}
	}
	return nil
}

// Delta returns the signed effect of the transaction on the given ledger's
// raw debit-minus-credit balance, zero when the ledger is not involved.
func (t Transaction) Delta(ledgerID int64) int64 {
	switch ledgerID {
	case t.DebitLedgerID:
		return t.Amount.Cents
	case t.CreditLedgerID:
		return -t.Amount.Cents
	}
	return 0
}
