package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"settlement/internal/core"
	"settlement/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the bot and the worker goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Insert implements ledger.Store
func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	row, err := q.CreateExpense(ctx, CreateExpenseParams{
		Amount:     core.FormatAmount(e.Amount),
		OccurredAt: e.OccurredAt.UnixNano(),
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	for _, label := range e.Categories {
		if err := q.AddExpenseCategory(ctx, AddExpenseCategoryParams{ExpenseID: row.ID, Label: label}); err != nil {
			return 0, fmt.Errorf("add category %q: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", row.ID,
		"amount", row.Amount,
		"occurred_at", e.OccurredAt)

	return row.ID, nil
}

// MostRecent implements ledger.Store
func (r *SQLiteRepository) MostRecent(ctx context.Context) (core.Expense, error) {
	row, err := r.queries.GetMostRecentExpense(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNoExpenses
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get most recent expense: %w", err)
	}

	cats, err := r.queries.GetExpenseCategories(ctx, row.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get categories for expense %d: %w", row.ID, err)
	}
	return toCoreExpense(row, cats)
}

// FindInRange implements ledger.Store
func (r *SQLiteRepository) FindInRange(ctx context.Context, start, end time.Time) ([]core.Expense, error) {
	rows, err := r.queries.GetExpensesInRange(ctx, GetExpensesInRangeParams{
		Start: start.UnixNano(),
		End:   end.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("get expenses in range: %w", err)
	}
	cats, err := r.queries.GetCategoriesInRange(ctx, GetCategoriesInRangeParams{
		Start: start.UnixNano(),
		End:   end.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("get categories in range: %w", err)
	}

	byExpense := make(map[int64][]ExpenseCategory, len(rows))
	for _, c := range cats {
		byExpense[c.ExpenseID] = append(byExpense[c.ExpenseID], c)
	}

	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCoreExpense(row, byExpense[row.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AddCategory implements ledger.Store
func (r *SQLiteRepository) AddCategory(ctx context.Context, id int64, label string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if _, err := q.GetExpense(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("get expense %d: %w", id, err)
	}
	if err := q.AddExpenseCategory(ctx, AddExpenseCategoryParams{ExpenseID: id, Label: label}); err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	return tx.Commit()
}

// Count returns the number of stored expenses.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountExpenses(ctx)
}

func toCoreExpense(row Expense, cats []ExpenseCategory) (core.Expense, error) {
	amount, err := core.ParseAmount(row.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: parse amount %q: %w", row.ID, row.Amount, err)
	}
	labels := make([]string, 0, len(cats))
	for _, c := range cats {
		labels = append(labels, c.Label)
	}
	return core.Expense{
		ID:         row.ID,
		Amount:     amount,
		Categories: labels,
		OccurredAt: time.Unix(0, row.OccurredAt),
	}, nil
}
