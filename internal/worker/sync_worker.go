package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"settlement/internal/amqp"
	"settlement/internal/core"
	"settlement/internal/ledger"
	"settlement/internal/sheets"
)

// SyncWorker mirrors ledger changes into a spreadsheet.
type SyncWorker struct {
	mirror sheets.ExpenseMirror
	store  ledger.Store
	now    func() time.Time
}

// NewSyncWorker creates a worker. store is only used by StartupSync and
// may be nil.
func NewSyncWorker(mirror sheets.ExpenseMirror, store ledger.Store) *SyncWorker {
	return &SyncWorker{
		mirror: mirror,
		store:  store,
		now:    time.Now,
	}
}

// HandleExpenseEvent applies a single expense event from AMQP to the mirror.
func (w *SyncWorker) HandleExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	slog.InfoContext(ctx, "Processing expense event",
		"type", msg.Type,
		"expense_id", msg.ID)

	expense, err := msg.Expense()
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	switch msg.Type {
	case amqp.EventRecorded:
		return w.syncExpenseToSheets(ctx, expense)

	case amqp.EventCategorized:
		err := w.mirror.UpdateCategories(ctx, expense.ID, expense.Categories)
		if errors.Is(err, sheets.ErrRowNotFound) {
			// The recorded event was lost or is still queued; the snapshot
			// carries everything needed to write the full row.
			slog.WarnContext(ctx, "Expense missing from sheet, appending snapshot", "expense_id", expense.ID)
			return w.syncExpenseToSheets(ctx, expense)
		}
		if err != nil {
			return fmt.Errorf("update categories: %w", err)
		}
		slog.InfoContext(ctx, "Successfully synced categories",
			"expense_id", expense.ID,
			"categories", expense.Categories)
		return nil

	default:
		return fmt.Errorf("unsupported event type %q", msg.Type)
	}
}

// StartupSync writes every expense recorded within lookback to the mirror.
// It recovers from missed AMQP messages or worker downtime; rows already in
// the sheet are rewritten in place.
func (w *SyncWorker) StartupSync(ctx context.Context, lookback time.Duration) error {
	if w.store == nil {
		slog.InfoContext(ctx, "No ledger configured, skipping startup sync")
		return nil
	}

	end := w.now()
	expenses, err := w.store.FindInRange(ctx, end.Add(-lookback), end)
	if err != nil {
		return fmt.Errorf("get expenses for startup sync: %w", err)
	}
	if len(expenses) == 0 {
		slog.InfoContext(ctx, "No expenses to sync on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found expenses on startup, processing...", "count", len(expenses))

	successCount := 0
	errorCount := 0
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncExpenseToSheets(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to sync expense during startup",
				"expense_id", e.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(expenses),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

func (w *SyncWorker) syncExpenseToSheets(ctx context.Context, expense core.Expense) error {
	ref, err := w.mirror.AppendExpense(ctx, expense)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced expense",
		"expense_id", expense.ID,
		"sheets_ref", ref,
		"amount", core.FormatAmount(expense.Amount))
	return nil
}
