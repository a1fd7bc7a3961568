package http

import (
	"net/http"
	"time"

	"tally/internal/core"
	"tally/internal/export"
)

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.reportContext(r)
	defer cancel()
	nw, err := s.balances.NetWorth(ctx, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := struct {
		NetWorth string `json:"net_worth"`
		AsOf     string `json:"as_of,omitempty"`
	}{NetWorth: nw.String()}
	if !asOf.IsZero() {
		resp.AsOf = asOf.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type incomeExpenseLine struct {
	LedgerID int64  `json:"ledger_id"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
}

func (s *Server) handleIncomeExpense(w http.ResponseWriter, r *http.Request) {
	period, err := s.periodFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.reportContext(r)
	defer cancel()
	rep, err := s.reports.IncomeExpense(ctx, period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := struct {
		From         string              `json:"from"`
		To           string              `json:"to"`
		Income       []incomeExpenseLine `json:"income"`
		Expenses     []incomeExpenseLine `json:"expenses"`
		TotalIncome  string              `json:"total_income"`
		TotalExpense string              `json:"total_expense"`
		Net          string              `json:"net"`
	}{
		From:         rep.Period.From.String(),
		To:           rep.Period.To.String(),
		Income:       make([]incomeExpenseLine, 0, len(rep.Income)),
		Expenses:     make([]incomeExpenseLine, 0, len(rep.Expenses)),
		TotalIncome:  rep.TotalIncome.String(),
		TotalExpense: rep.TotalExpense.String(),
		Net:          rep.Net.String(),
	}
	for _, line := range rep.Income {
		resp.Income = append(resp.Income, incomeExpenseLine{LedgerID: line.LedgerID, Name: line.Name, Amount: line.Amount.String()})
	}
	for _, line := range rep.Expenses {
		resp.Expenses = append(resp.Expenses, incomeExpenseLine{LedgerID: line.LedgerID, Name: line.Name, Amount: line.Amount.String()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	period, err := s.periodFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.reportContext(r)
	defer cancel()
	summary, err := s.reports.MonthlySummary(ctx, period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type month struct {
		Month    string `json:"month"`
		Income   string `json:"income"`
		Expenses string `json:"expenses"`
		Savings  string `json:"savings"`
	}
	resp := struct {
		From          string  `json:"from"`
		To            string  `json:"to"`
		Months        []month `json:"months"`
		ChangePercent string  `json:"change_percent"`
		IsIncreasing  bool    `json:"is_increasing"`
	}{
		From:          summary.Period.From.String(),
		To:            summary.Period.To.String(),
		Months:        make([]month, 0, len(summary.Months)),
		ChangePercent: summary.ChangePercent.String(),
		IsIncreasing:  summary.IsIncreasing,
	}
	for _, b := range summary.Months {
		resp.Months = append(resp.Months, month{
			Month:    b.Month,
			Income:   b.Income.String(),
			Expenses: b.Expenses.String(),
			Savings:  b.Savings.String(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	period, err := s.periodFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.reportContext(r)
	defer cancel()
	points, err := s.reports.NetWorthHistory(ctx, period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type point struct {
		Date     string `json:"date"`
		NetWorth string `json:"net_worth"`
	}
	resp := struct {
		Points []point `json:"points"`
	}{Points: make([]point, 0, len(points))}
	for _, p := range points {
		resp.Points = append(resp.Points, point{Date: p.Date.String(), NetWorth: p.NetWorth.String()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreditCardDues(w http.ResponseWriter, r *http.Request) {
	lookahead, err := queryInt(r, "lookahead_days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if lookahead == 0 {
		lookahead = 7
	}

	now := time.Now().UTC()
	today := core.NewDate(now.Year(), int(now.Month()), now.Day())

	ctx, cancel := s.reportContext(r)
	defer cancel()
	dues, err := s.reports.CreditCardDues(ctx, today, lookahead)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type card struct {
		LedgerID    int64  `json:"ledger_id"`
		Name        string `json:"name"`
		Balance     string `json:"balance"`
		Owed        string `json:"owed"`
		CreditLimit string `json:"credit_limit,omitempty"`
		Utilization string `json:"utilization_percent,omitempty"`
		DueDate     string `json:"due_date,omitempty"`
		DueSoon     bool   `json:"due_soon"`
	}
	resp := struct {
		Cards []card `json:"cards"`
	}{Cards: make([]card, 0, len(dues))}
	for _, d := range dues {
		c := card{
			LedgerID: d.LedgerID,
			Name:     d.Name,
			Balance:  d.Balance.String(),
			Owed:     d.Owed.String(),
			DueSoon:  d.DueSoon,
		}
		if d.CreditLimit != nil {
			c.CreditLimit = d.CreditLimit.String()
		}
		if d.Utilization != nil {
			c.Utilization = d.Utilization.String()
		}
		if d.DueDate != nil {
			c.DueDate = d.DueDate.String()
		}
		resp.Cards = append(resp.Cards, c)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := s.transactionFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Export streams the whole match, not one page.
	filter.Limit = 0
	filter.Offset = 0

	txs, _, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=transactions.csv")
	if err := export.WriteTransactionsCSV(w, txs); err != nil {
		s.logger.ErrorContext(r.Context(), "write transactions csv failed", "error", err)
	}
}
