package amqp

import (
	"encoding/json"
	"time"
)

// Event names for the transaction feed.
const (
	EventPosted  = "posted"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// TransactionEvent is the lightweight message published on every ledger
// write. It carries only the id and version; consumers fetch the full
// transaction from the store, so a stale message can never overwrite a
// newer state.
type TransactionEvent struct {
	Event     string    `json:"event"`
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEvent(event string, id, version int64) *TransactionEvent {
	return &TransactionEvent{
		Event:     event,
		ID:        id,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
