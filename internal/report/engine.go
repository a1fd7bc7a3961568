// Package report builds presentation-side views on top of the balance
// engine and the posting sums in storage. Reports hold no state of their
// own; every number is derived from the transaction history at query time.
package report

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tally/internal/balance"
	"tally/internal/core"
	"tally/internal/storage"
)

// netWorthSamplers bounds the concurrent as-of queries when sampling a
// net worth time series.
const netWorthSamplers = 4

type Engine struct {
	store    storage.Store
	balances *balance.Engine
}

func NewEngine(store storage.Store, balances *balance.Engine) *Engine {
	return &Engine{store: store, balances: balances}
}

// --- account statement ---

type StatementRow struct {
	Transaction    core.Transaction
	RunningBalance core.Money
}

type Statement struct {
	LedgerID       int64
	LedgerName     string
	Period         Period
	OpeningBalance core.Money
	Rows           []StatementRow
	ClosingBalance core.Money
	Total          int
}

// Statement returns the ledger's transactions in the period with a running
// balance folded chronologically from the balance at the period start.
// Rows come back oldest first; display layers may reverse them.
func (e *Engine) Statement(ctx context.Context, ledgerID int64, p Period, limit, offset int) (*Statement, error) {
	ledger, err := e.store.GetLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	opening := ledger.OpeningBalance
	if !p.From.IsZero() {
		dayBefore := core.Date{Time: p.From.AddDate(0, 0, -1)}
		opening, err = e.balances.BalanceOf(ctx, ledgerID, dayBefore)
		if err != nil {
			return nil, err
		}
	}

	// The running balance needs the full ordered period; pagination slices
	// the annotated rows afterwards.
	txs, total, err := e.store.ListTransactions(ctx, storage.TransactionFilter{
		LedgerID: ledgerID, From: p.From, To: p.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list statement transactions: %w", err)
	}

	rows := make([]StatementRow, 0, len(txs))
	running := opening
	for _, t := range txs {
		running.Cents += t.Delta(ledgerID)
		rows = append(rows, StatementRow{Transaction: t, RunningBalance: running})
	}
	closing := running

	if offset > 0 {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return &Statement{
		LedgerID:       ledgerID,
		LedgerName:     ledger.Name,
		Period:         p,
		OpeningBalance: opening,
		Rows:           rows,
		ClosingBalance: closing,
		Total:          total,
	}, nil
}

// --- income and expense ---

type IncomeExpenseLine struct {
	LedgerID       int64
	Name           string
	Classification core.Classification
	// Amount is presentation-signed: income earned and expenses incurred
	// both read positive.
	Amount core.Money
}

type IncomeExpenseReport struct {
	Period       Period
	Income       []IncomeExpenseLine
	Expenses     []IncomeExpenseLine
	TotalIncome  core.Money
	TotalExpense core.Money
	Net          core.Money
}

// IncomeExpense sums period activity per income and expense ledger. Income
// is credit-normal, so its presentation amount is credits minus debits;
// expenses read debits minus credits. Ledgers without activity are omitted.
func (e *Engine) IncomeExpense(ctx context.Context, p Period) (*IncomeExpenseReport, error) {
	activity, err := e.store.ActivityByLedger(ctx, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("period activity: %w", err)
	}

	rep := &IncomeExpenseReport{Period: p}
	for _, a := range activity {
		line := IncomeExpenseLine{LedgerID: a.LedgerID, Name: a.Name, Classification: a.Classification}
		switch a.Classification {
		case core.Income:
			line.Amount = core.Money{Cents: a.Credits - a.Debits}
			rep.Income = append(rep.Income, line)
			rep.TotalIncome = rep.TotalIncome.Add(line.Amount)
		case core.Expense:
			line.Amount = core.Money{Cents: a.Debits - a.Credits}
			rep.Expenses = append(rep.Expenses, line)
			rep.TotalExpense = rep.TotalExpense.Add(line.Amount)
		}
	}
	rep.Net = rep.TotalIncome.Sub(rep.TotalExpense)
	return rep, nil
}

// --- monthly summary ---

type MonthBucket struct {
	Month    string // YYYY-MM
	Income   core.Money
	Expenses core.Money
	Savings  core.Money
}

type MonthlySummary struct {
	Period        Period
	Months        []MonthBucket
	ChangePercent decimal.Decimal
	IsIncreasing  bool
}

// MonthlySummary buckets income and expense totals per calendar month and
// compares the first and last income buckets:
//
//	changePercent = (last - first) / |first| * 100
//
// with first == 0 resolved to 100 when last > 0 and 0 otherwise.
func (e *Engine) MonthlySummary(ctx context.Context, p Period) (*MonthlySummary, error) {
	summary := &MonthlySummary{Period: p}
	for _, start := range p.monthStarts() {
		end := start.EndOfMonth()
		if end.After(p.To.Time) {
			end = p.To
		}
		from := start
		if from.Before(p.From.Time) {
			from = p.From
		}

		activity, err := e.store.ActivityByLedger(ctx, from, end)
		if err != nil {
			return nil, fmt.Errorf("activity for %s: %w", start.Format("2006-01"), err)
		}

		bucket := MonthBucket{Month: start.Format("2006-01")}
		for _, a := range activity {
			switch a.Classification {
			case core.Income:
				bucket.Income.Cents += a.Credits - a.Debits
			case core.Expense:
				bucket.Expenses.Cents += a.Debits - a.Credits
			}
		}
		bucket.Savings = bucket.Income.Sub(bucket.Expenses)
		summary.Months = append(summary.Months, bucket)
	}

	if len(summary.Months) > 0 {
		first := summary.Months[0].Income.Cents
		last := summary.Months[len(summary.Months)-1].Income.Cents
		summary.ChangePercent = trendPercent(first, last)
		summary.IsIncreasing = last > first
	}
	return summary, nil
}

func trendPercent(first, last int64) decimal.Decimal {
	if first == 0 {
		if last > 0 {
			return decimal.NewFromInt(100)
		}
		return decimal.Zero
	}
	diff := decimal.NewFromInt(last - first)
	base := decimal.NewFromInt(first).Abs()
	return diff.Div(base).Mul(decimal.NewFromInt(100)).Round(2)
}

// --- net worth history ---

type NetWorthPoint struct {
	Date     core.Date
	NetWorth core.Money
}

// NetWorthHistory samples net worth at the end of each month the period
// touches. Samples are independent reads, so they run concurrently with a
// bounded fan-out.
func (e *Engine) NetWorthHistory(ctx context.Context, p Period) ([]NetWorthPoint, error) {
	starts := p.monthStarts()
	points := make([]NetWorthPoint, len(starts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(netWorthSamplers)
	for i, start := range starts {
		asOf := start.EndOfMonth()
		if asOf.After(p.To.Time) {
			asOf = p.To
		}
		g.Go(func() error {
			nw, err := e.balances.NetWorth(ctx, asOf)
			if err != nil {
				return fmt.Errorf("net worth as of %s: %w", asOf, err)
			}
			points[i] = NetWorthPoint{Date: asOf, NetWorth: nw}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// --- credit card dues ---

type CardDue struct {
	LedgerID int64
	Name     string
	// Balance is the raw liability balance, negative when drawn.
	Balance core.Money
	// Owed is the positive amount outstanding.
	Owed        core.Money
	CreditLimit *core.Money
	// Utilization is Owed / CreditLimit as a percentage, present only when
	// a limit is configured.
	Utilization *decimal.Decimal
	DueDate     *core.Date
	DueSoon     bool
}

// CreditCardDues reports every credit-card ledger's outstanding amount and
// flags cards whose next due date falls within lookaheadDays of today.
func (e *Engine) CreditCardDues(ctx context.Context, today core.Date, lookaheadDays int) ([]CardDue, error) {
	ledgers, _, err := e.store.ListLedgers(ctx, storage.LedgerFilter{Classification: core.Liability})
	if err != nil {
		return nil, fmt.Errorf("list liability ledgers: %w", err)
	}

	var dues []CardDue
	for i := range ledgers {
		l := &ledgers[i]
		if l.Subtype != core.SubtypeCreditCard {
			continue
		}
		b, err := e.balances.BalanceOf(ctx, l.ID, core.Date{})
		if err != nil {
			return nil, err
		}

		due := CardDue{LedgerID: l.ID, Name: l.Name, Balance: b, CreditLimit: l.CreditLimit}
		if b.Cents < 0 {
			due.Owed = b.Neg()
		}
		if l.CreditLimit != nil && l.CreditLimit.Cents > 0 {
			u := decimal.NewFromInt(due.Owed.Cents).
				Div(decimal.NewFromInt(l.CreditLimit.Cents)).
				Mul(decimal.NewFromInt(100)).Round(2)
			due.Utilization = &u
		}
		if l.DueDay != nil {
			next := nextDueDate(today, *l.DueDay)
			due.DueDate = &next
			days := int(next.Sub(today.Time).Hours() / 24)
			due.DueSoon = due.Owed.Cents > 0 && days <= lookaheadDays
		}
		dues = append(dues, due)
	}
	return dues, nil
}

// nextDueDate returns the first occurrence of dueDay on or after today,
// clamping to the last day of short months.
func nextDueDate(today core.Date, dueDay int) core.Date {
	y, m, d := today.Date()
	candidate := dueDateIn(y, int(m), dueDay)
	if d > dueDay {
		candidate = dueDateIn(y, int(m)+1, dueDay)
	}
	return candidate
}

func dueDateIn(year, month, dueDay int) core.Date {
	lastDay := core.NewDate(year, month, 1).EndOfMonth()
	if day := lastDay.Day(); dueDay > day {
		return lastDay
	}
	return core.NewDate(year, month, dueDay)
}
