package http

import (
	"net/http"

	"tally/internal/core"
	"tally/internal/storage"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := req.toDomain(0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	id, err := s.transactions.Create(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) transactionFilter(r *http.Request) (storage.TransactionFilter, error) {
	ledgerID, err := queryInt64(r, "ledger_id")
	if err != nil {
		return storage.TransactionFilter{}, err
	}
	from, err := queryDate(r, "from")
	if err != nil {
		return storage.TransactionFilter{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return storage.TransactionFilter{}, err
	}
	limit, offset, err := pagination(r)
	if err != nil {
		return storage.TransactionFilter{}, err
	}

	filter := storage.TransactionFilter{
		LedgerID: ledgerID, From: from, To: to, Limit: limit, Offset: offset,
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		k, err := core.ParseKind(kind)
		if err != nil {
			return storage.TransactionFilter{}, err
		}
		filter.Kind = k
	}
	return filter, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := s.transactionFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, total, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, toTransactionResponse(&txs[i]))
	}
	s.writeJSON(w, http.StatusOK, listResponse[transactionResponse]{
		Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset,
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := req.toDomain(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transactions.Update(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
