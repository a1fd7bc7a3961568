package http

import (
	"fmt"
	"net/http"
	"time"

	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/report"
	"tally/internal/storage"
)

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := req.toDomain(0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := l.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.store.CreateLedger(r.Context(), l)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.store.GetLedger(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toLedgerResponse(created))
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryInt64(r, "group_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := storage.LedgerFilter{GroupID: groupID, Limit: limit, Offset: offset}
	if cls := r.URL.Query().Get("classification"); cls != "" {
		c := core.Classification(cls)
		if !c.Valid() {
			s.writeError(w, r, &core.ValidationError{Field: "classification", Reason: "must be one of asset, liability, equity, income, expense"})
			return
		}
		filter.Classification = c
	}

	ledgers, total, err := s.store.ListLedgers(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]ledgerResponse, 0, len(ledgers))
	for i := range ledgers {
		items = append(items, toLedgerResponse(&ledgers[i]))
	}
	s.writeJSON(w, http.StatusOK, listResponse[ledgerResponse]{
		Items: items, Total: total, Limit: limit, Offset: offset,
	})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.store.GetLedger(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLedgerResponse(l))
}

func (s *Server) handleUpdateLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ledgerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := req.toDomain(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := l.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateLedger(r.Context(), l); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.store.GetLedger(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLedgerResponse(updated))
}

type deleteLedgerResponse struct {
	State               string `json:"state"`
	TransactionsDeleted int    `json:"transactions_deleted"`
}

func (s *Server) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome, err := s.lifecycle.DeleteLedger(r.Context(), id, queryBool(r, "cascade"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deleteLedgerResponse{
		State:               string(outcome.State),
		TransactionsDeleted: outcome.TransactionsDeleted,
	})
}

func (s *Server) handleLedgerBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.balances.BalanceOf(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := balanceResponse{Balance: b.String()}
	if !asOf.IsZero() {
		resp.AsOf = asOf.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type statementRow struct {
	Transaction    transactionResponse `json:"transaction"`
	RunningBalance string              `json:"running_balance"`
}

type statementResponse struct {
	LedgerID       int64          `json:"ledger_id"`
	LedgerName     string         `json:"ledger_name"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	OpeningBalance string         `json:"opening_balance"`
	Rows           []statementRow `json:"rows"`
	ClosingBalance string         `json:"closing_balance"`
	Total          int            `json:"total"`
}

func (s *Server) statementFromRequest(r *http.Request) (*report.Statement, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	period, err := s.periodFromQuery(r)
	if err != nil {
		return nil, err
	}
	limit, offset, err := pagination(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.reportContext(r)
	defer cancel()
	return s.reports.Statement(ctx, id, period, limit, offset)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	st, err := s.statementFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows := make([]statementRow, 0, len(st.Rows))
	for _, row := range st.Rows {
		rows = append(rows, statementRow{
			Transaction:    toTransactionResponse(&row.Transaction),
			RunningBalance: row.RunningBalance.String(),
		})
	}
	s.writeJSON(w, http.StatusOK, statementResponse{
		LedgerID:       st.LedgerID,
		LedgerName:     st.LedgerName,
		From:           st.Period.From.String(),
		To:             st.Period.To.String(),
		OpeningBalance: st.OpeningBalance.String(),
		Rows:           rows,
		ClosingBalance: st.ClosingBalance.String(),
		Total:          st.Total,
	})
}

func (s *Server) handleStatementCSV(w http.ResponseWriter, r *http.Request) {
	st, err := s.statementFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=statement-%d-%s.csv", st.LedgerID, st.Period.From.Format("2006-01")))
	if err := export.WriteStatementCSV(w, st); err != nil {
		s.logger.ErrorContext(r.Context(), "write statement csv failed", "error", err)
	}
}

// periodFromQuery resolves period/from/to query parameters.
func (s *Server) periodFromQuery(r *http.Request) (report.Period, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return report.Period{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return report.Period{}, err
	}
	return report.ResolvePeriod(r.URL.Query().Get("period"), from, to, time.Now())
}
