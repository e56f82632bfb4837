package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"settlement/internal/core"
)

// EventType tells consumers what happened to an expense.
type EventType string

const (
	EventRecorded    EventType = "recorded"
	EventCategorized EventType = "categorized"
)

// ExpenseEventMessage carries a full snapshot of an expense after a write so
// consumers never need to read the ledger back.
type ExpenseEventMessage struct {
	Type       EventType `json:"type"`
	ID         int64     `json:"id"`
	Amount     string    `json:"amount"`
	Categories []string  `json:"categories"`
	OccurredAt time.Time `json:"occurred_at"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewExpenseEventMessage snapshots e for the given event type
func NewExpenseEventMessage(t EventType, e core.Expense) *ExpenseEventMessage {
	cats := append([]string{}, e.Categories...)
	return &ExpenseEventMessage{
		Type:       t,
		ID:         e.ID,
		Amount:     core.FormatAmount(e.Amount),
		Categories: cats,
		OccurredAt: e.OccurredAt,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Expense converts the message back into an expense.
func (m *ExpenseEventMessage) Expense() (core.Expense, error) {
	amount, err := core.ParseAmount(m.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", m.Amount, err)
	}
	return core.Expense{
		ID:         m.ID,
		Amount:     amount,
		Categories: append([]string{}, m.Categories...),
		OccurredAt: m.OccurredAt,
	}, nil
}

// ExpenseEventMessageFromJSON creates a message from JSON bytes
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventRecorded, EventCategorized:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
