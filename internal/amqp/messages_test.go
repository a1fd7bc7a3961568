package amqp

import (
	"testing"
	"time"
)

func TestNewTransactionEvent(t *testing.T) {
	e := NewTransactionEvent(EventPosted, 42, 3)

	if e.Event != EventPosted {
		t.Errorf("Event = %q, want %q", e.Event, EventPosted)
	}
	if e.ID != 42 || e.Version != 3 {
		t.Errorf("got id=%d version=%d, want 42 and 3", e.ID, e.Version)
	}
	if e.Timestamp.IsZero() || time.Since(e.Timestamp) > time.Second {
		t.Errorf("Timestamp = %v, want recent", e.Timestamp)
	}
}

func TestTransactionEventRoundTrip(t *testing.T) {
	e := &TransactionEvent{
		Event:     EventDeleted,
		ID:        7,
		Version:   2,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := TransactionEventFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if parsed.Event != e.Event || parsed.ID != e.ID || parsed.Version != e.Version {
		t.Errorf("round trip mismatch: %+v", parsed)
	}
	if !parsed.Timestamp.Equal(e.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", parsed.Timestamp, e.Timestamp)
	}
}

func TestTransactionEventInvalidJSON(t *testing.T) {
	if _, err := TransactionEventFromJSON([]byte(`{"id": "nope"}`)); err == nil {
		t.Error("expected error for invalid payload")
	}
}
