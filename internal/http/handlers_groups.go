package http

import (
	"net/http"

	"tally/internal/lifecycle"
)

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g := req.toDomain(0)
	if err := g.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.store.CreateGroup(r.Context(), g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g.ID = id
	s.writeJSON(w, http.StatusCreated, toGroupResponse(g))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]groupResponse, 0, len(groups))
	for i := range groups {
		items = append(items, toGroupResponse(&groups[i]))
	}
	s.writeJSON(w, http.StatusOK, listResponse[groupResponse]{
		Items: items, Total: len(items), Limit: len(items),
	})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.store.GetGroup(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g := req.toDomain(id)
	if err := g.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateGroup(r.Context(), g); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toGroupResponse(g))
}

type deleteGroupResponse struct {
	State               string `json:"state"`
	LedgersMoved        int    `json:"ledgers_moved,omitempty"`
	LedgersDeleted      int    `json:"ledgers_deleted,omitempty"`
	TransactionsDeleted int    `json:"transactions_deleted,omitempty"`
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	policy := lifecycle.Policy{Cascade: queryBool(r, "cascade")}
	target, err := queryInt64(r, "reassign_to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if target != 0 {
		policy.ReassignTo = &target
	}

	outcome, err := s.lifecycle.DeleteGroup(r.Context(), id, policy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deleteGroupResponse{
		State:               string(outcome.State),
		LedgersMoved:        outcome.LedgersMoved,
		LedgersDeleted:      outcome.LedgersDeleted,
		TransactionsDeleted: outcome.TransactionsDeleted,
	})
}

func (s *Server) handleGroupBalance(w http.ResponseWriter, r *http.Request) {
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

	b, err := s.balances.BalanceOfGroup(r.Context(), id, asOf)
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
