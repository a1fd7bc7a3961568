package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tally/internal/balance"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	engine *Engine

	bank      int64
	card      int64
	salary    int64
	groceries int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	balances := balance.NewEngine(store, cache.NewLRUCache[int64](64, time.Minute))
	f := &fixture{store: store, engine: NewEngine(store, balances)}

	mustGroup := func(name string, cls core.Classification, sub core.Subtype) int64 {
		id, err := store.CreateGroup(ctx, &core.LedgerGroup{Name: name, Classification: cls, Subtype: sub})
		require.NoError(t, err)
		return id
	}
	assets := mustGroup("Assets", core.Asset, core.SubtypeBank)
	cards := mustGroup("Cards", core.Liability, core.SubtypeCreditCard)
	income := mustGroup("Income", core.Income, core.SubtypeIncome)
	expenses := mustGroup("Expenses", core.Expense, core.SubtypeExpense)

	var err error
	f.bank, err = store.CreateLedger(ctx, &core.Ledger{Name: "Bank", GroupID: assets, OpeningBalance: core.Money{Cents: 10000}})
	require.NoError(t, err)
	limit := core.Money{Cents: 50000}
	dueDay := 15
	f.card, err = store.CreateLedger(ctx, &core.Ledger{Name: "Visa", GroupID: cards, CreditLimit: &limit, DueDay: &dueDay})
	require.NoError(t, err)
	f.salary, err = store.CreateLedger(ctx, &core.Ledger{Name: "Salary", GroupID: income})
	require.NoError(t, err)
	f.groceries, err = store.CreateLedger(ctx, &core.Ledger{Name: "Groceries", GroupID: expenses})
	require.NoError(t, err)
	return f
}

func (f *fixture) post(t *testing.T, date core.Date, kind core.Kind, cents int64, debit, credit int64) {
	t.Helper()
	_, err := f.store.CreateTransaction(context.Background(), &core.Transaction{
		Date: date, Kind: kind, Amount: core.Money{Cents: cents},
		DebitLedgerID: debit, CreditLedgerID: credit,
	})
	require.NoError(t, err)
}

func TestStatementRunningBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// May activity shifts the opening balance of the June statement.
	f.post(t, core.NewDate(2025, 5, 20), core.Receipt, 5000, f.bank, f.salary)
	f.post(t, core.NewDate(2025, 6, 3), core.Payment, 1500, f.groceries, f.bank)
	f.post(t, core.NewDate(2025, 6, 10), core.Receipt, 8000, f.bank, f.salary)

	p := Period{From: core.NewDate(2025, 6, 1), To: core.NewDate(2025, 6, 30)}
	st, err := f.engine.Statement(ctx, f.bank, p, 0, 0)
	require.NoError(t, err)

	require.Equal(t, int64(15000), st.OpeningBalance.Cents)
	require.Len(t, st.Rows, 2)
	require.Equal(t, int64(13500), st.Rows[0].RunningBalance.Cents)
	require.Equal(t, int64(21500), st.Rows[1].RunningBalance.Cents)
	require.Equal(t, int64(21500), st.ClosingBalance.Cents)
	require.Equal(t, 2, st.Total)
}

func TestStatementPaginationKeepsClosingBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for day := 1; day <= 5; day++ {
		f.post(t, core.NewDate(2025, 6, day), core.Payment, 100, f.groceries, f.bank)
	}

	p := Period{From: core.NewDate(2025, 6, 1), To: core.NewDate(2025, 6, 30)}
	st, err := f.engine.Statement(ctx, f.bank, p, 2, 2)
	require.NoError(t, err)

	require.Len(t, st.Rows, 2)
	require.Equal(t, 5, st.Total)
	// Closing reflects all five postings, not just the page.
	require.Equal(t, int64(9500), st.ClosingBalance.Cents)
	require.Equal(t, int64(9700), st.Rows[0].RunningBalance.Cents)
}

func TestIncomeExpenseReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.post(t, core.NewDate(2025, 6, 1), core.Receipt, 80000, f.bank, f.salary)
	f.post(t, core.NewDate(2025, 6, 5), core.Payment, 12000, f.groceries, f.bank)
	f.post(t, core.NewDate(2025, 6, 9), core.Payment, 3000, f.groceries, f.card)
	// A pure transfer must not appear in either column.
	f.post(t, core.NewDate(2025, 6, 12), core.Contra, 5000, f.bank, f.card)

	p := Period{From: core.NewDate(2025, 6, 1), To: core.NewDate(2025, 6, 30)}
	rep, err := f.engine.IncomeExpense(ctx, p)
	require.NoError(t, err)

	require.Len(t, rep.Income, 1)
	require.Equal(t, "Salary", rep.Income[0].Name)
	require.Equal(t, int64(80000), rep.Income[0].Amount.Cents)

	require.Len(t, rep.Expenses, 1)
	require.Equal(t, int64(15000), rep.Expenses[0].Amount.Cents)

	require.Equal(t, int64(80000), rep.TotalIncome.Cents)
	require.Equal(t, int64(15000), rep.TotalExpense.Cents)
	require.Equal(t, int64(65000), rep.Net.Cents)
}

func TestMonthlySummaryTrend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Income of 1000, 0, 2000 across January through March.
	f.post(t, core.NewDate(2025, 1, 10), core.Receipt, 1000, f.bank, f.salary)
	f.post(t, core.NewDate(2025, 3, 10), core.Receipt, 2000, f.bank, f.salary)
	f.post(t, core.NewDate(2025, 3, 12), core.Payment, 500, f.groceries, f.bank)

	p := Period{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 3, 31)}
	sum, err := f.engine.MonthlySummary(ctx, p)
	require.NoError(t, err)

	require.Len(t, sum.Months, 3)
	require.Equal(t, "2025-01", sum.Months[0].Month)
	require.Equal(t, int64(1000), sum.Months[0].Income.Cents)
	require.Equal(t, int64(0), sum.Months[1].Income.Cents)
	require.Equal(t, int64(2000), sum.Months[2].Income.Cents)
	require.Equal(t, int64(1500), sum.Months[2].Savings.Cents)

	require.Equal(t, "100", sum.ChangePercent.String())
	require.True(t, sum.IsIncreasing)
}

func TestMonthlySummaryZeroFirstBucket(t *testing.T) {
	require.Equal(t, "100", trendPercent(0, 500).String())
	require.Equal(t, "0", trendPercent(0, 0).String())
	require.Equal(t, "-50", trendPercent(1000, 500).String())
}

func TestNetWorthHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.post(t, core.NewDate(2025, 1, 10), core.Receipt, 5000, f.bank, f.salary)
	f.post(t, core.NewDate(2025, 2, 10), core.Payment, 2000, f.groceries, f.card)

	p := Period{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 2, 28)}
	points, err := f.engine.NetWorthHistory(ctx, p)
	require.NoError(t, err)

	require.Len(t, points, 2)
	require.Equal(t, "2025-01-31", points[0].Date.String())
	// Opening 10000 plus January income.
	require.Equal(t, int64(15000), points[0].NetWorth.Cents)
	// February's card spend draws the liability down.
	require.Equal(t, int64(13000), points[1].NetWorth.Cents)
}

func TestCreditCardDues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.post(t, core.NewDate(2025, 6, 5), core.Payment, 12000, f.groceries, f.card)

	dues, err := f.engine.CreditCardDues(ctx, core.NewDate(2025, 6, 10), 7)
	require.NoError(t, err)
	require.Len(t, dues, 1)

	d := dues[0]
	require.Equal(t, "Visa", d.Name)
	require.Equal(t, int64(-12000), d.Balance.Cents)
	require.Equal(t, int64(12000), d.Owed.Cents)
	require.NotNil(t, d.Utilization)
	require.Equal(t, "24", d.Utilization.String())
	require.NotNil(t, d.DueDate)
	require.Equal(t, "2025-06-15", d.DueDate.String())
	require.True(t, d.DueSoon)

	// Outside the lookahead window the flag drops.
	dues, err = f.engine.CreditCardDues(ctx, core.NewDate(2025, 6, 1), 7)
	require.NoError(t, err)
	require.False(t, dues[0].DueSoon)
}
