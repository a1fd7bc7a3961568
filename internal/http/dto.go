package http

import (
	"strings"

	"tally/internal/core"
)

// Wire types. Monetary amounts travel as decimal strings ("1234.56") and
// dates as YYYY-MM-DD, matching the parsing rules in core.

type groupRequest struct {
	Name           string `json:"name"`
	Classification string `json:"classification"`
	Subtype        string `json:"subtype,omitempty"`
	Description    string `json:"description,omitempty"`
}

func (req groupRequest) toDomain(id int64) *core.LedgerGroup {
	return &core.LedgerGroup{
		ID:             id,
		Name:           strings.TrimSpace(req.Name),
		Classification: core.Classification(strings.ToLower(strings.TrimSpace(req.Classification))),
		Subtype:        core.Subtype(strings.ToLower(strings.TrimSpace(req.Subtype))),
		Description:    strings.TrimSpace(req.Description),
	}
}

type groupResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Classification string `json:"classification"`
	Subtype        string `json:"subtype,omitempty"`
	Description    string `json:"description,omitempty"`
}

func toGroupResponse(g *core.LedgerGroup) groupResponse {
	return groupResponse{
		ID:             g.ID,
		Name:           g.Name,
		Classification: string(g.Classification),
		Subtype:        string(g.Subtype),
		Description:    g.Description,
	}
}

type ledgerRequest struct {
	Name           string `json:"name"`
	GroupID        int64  `json:"group_id"`
	OpeningBalance string `json:"opening_balance,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreditLimit    string `json:"credit_limit,omitempty"`
	DueDay         *int   `json:"due_day,omitempty"`
}

func (req ledgerRequest) toDomain(id int64) (*core.Ledger, error) {
	l := &core.Ledger{
		ID:            id,
		Name:          strings.TrimSpace(req.Name),
		GroupID:       req.GroupID,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Notes:         strings.TrimSpace(req.Notes),
		DueDay:        req.DueDay,
	}
	if req.OpeningBalance != "" {
		cents, err := core.ParseCents(req.OpeningBalance)
		if err != nil {
			return nil, &core.ValidationError{Field: "opening_balance", Reason: "must be a decimal amount"}
		}
		l.OpeningBalance = core.Money{Cents: cents}
	}
	if req.CreditLimit != "" {
		cents, err := core.ParseCents(req.CreditLimit)
		if err != nil {
			return nil, &core.ValidationError{Field: "credit_limit", Reason: "must be a decimal amount"}
		}
		l.CreditLimit = &core.Money{Cents: cents}
	}
	return l, nil
}

type ledgerResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	GroupID        int64  `json:"group_id"`
	Classification string `json:"classification"`
	Subtype        string `json:"subtype,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	AccountNumber  string `json:"account_number,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreditLimit    string `json:"credit_limit,omitempty"`
	DueDay         *int   `json:"due_day,omitempty"`
}

func toLedgerResponse(l *core.Ledger) ledgerResponse {
	resp := ledgerResponse{
		ID:             l.ID,
		Name:           l.Name,
		GroupID:        l.GroupID,
		Classification: string(l.Classification),
		Subtype:        string(l.Subtype),
		OpeningBalance: l.OpeningBalance.String(),
		AccountNumber:  l.AccountNumber,
		Notes:          l.Notes,
		DueDay:         l.DueDay,
	}
	if l.CreditLimit != nil {
		resp.CreditLimit = l.CreditLimit.String()
	}
	return resp
}

type transactionRequest struct {
	Date            string `json:"date"`
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	DebitLedgerID   int64  `json:"debit_ledger_id"`
	CreditLedgerID  int64  `json:"credit_ledger_id"`
	Narration       string `json:"narration,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

func (req transactionRequest) toDomain(id int64) (*core.Transaction, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	cents, err := core.ParseAmountCents(req.Amount)
	if err != nil {
		return nil, err
	}
	return &core.Transaction{
		ID:              id,
		Date:            date,
		Kind:            kind,
		Amount:          core.Money{Cents: cents},
		DebitLedgerID:   req.DebitLedgerID,
		CreditLedgerID:  req.CreditLedgerID,
		Narration:       strings.TrimSpace(req.Narration),
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
	}, nil
}

type transactionResponse struct {
	ID              int64  `json:"id"`
	Date            string `json:"date"`
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	DebitLedgerID   int64  `json:"debit_ledger_id"`
	CreditLedgerID  int64  `json:"credit_ledger_id"`
	Narration       string `json:"narration,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
}

func toTransactionResponse(t *core.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Date:            t.Date.String(),
		Kind:            string(t.Kind),
		Amount:          t.Amount.String(),
		DebitLedgerID:   t.DebitLedgerID,
		CreditLedgerID:  t.CreditLedgerID,
		Narration:       t.Narration,
		ReferenceNumber: t.ReferenceNumber,
	}
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
	AsOf    string `json:"as_of,omitempty"`
}
