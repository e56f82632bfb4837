// Package ledger declares the collaborators the expense engine depends on.
package ledger

import (
	"context"
	"time"

	"settlement/internal/core"
)

// Ports for outbound adapters.
type (
	// Store persists expenses. Implementations assign IDs in insertion
	// order.
	Store interface {
		// Insert stores a new expense and returns its ID.
		Insert(ctx context.Context, e core.Expense) (int64, error)
		// MostRecent returns the expense with the latest OccurredAt, ties
		// broken by ID. It returns core.ErrNoExpenses when the ledger is empty.
		MostRecent(ctx context.Context) (core.Expense, error)
		// FindInRange returns expenses with OccurredAt in [start, end] in no
		// particular order.
		FindInRange(ctx context.Context, start, end time.Time) ([]core.Expense, error)
		// AddCategory appends label to the categories of expense id.
		AddCategory(ctx context.Context, id int64, label string) error
	}

	// Sender delivers a text reply to a chat.
	Sender interface {
		SendText(ctx context.Context, chatID int64, text string) error
	}
)
