package sheets

import (
	"context"
	"errors"

	"settlement/internal/core"
)

// ErrRowNotFound is returned when an expense has no row in the mirror yet.
var ErrRowNotFound = errors.New("expense row not found")

// Ports for outbound adapters.
type (
	// ExpenseMirror keeps a spreadsheet copy of the ledger, one row per
	// expense keyed by expense ID.
	ExpenseMirror interface {
		// AppendExpense writes e, replacing its row if it already exists.
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
		// UpdateCategories rewrites the categories cell of expense id.
		UpdateCategories(ctx context.Context, id int64, categories []string) error
	}
)
