package storage

import (
	"context"
)

const createExpense = `-- name: CreateExpense :one
INSERT INTO expenses (amount, occurred_at)
VALUES (?, ?)
RETURNING id, amount, occurred_at, created_at
`

type CreateExpenseParams struct {
	Amount     string
	OccurredAt int64
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense, arg.Amount, arg.OccurredAt)
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.Amount,
		&i.OccurredAt,
		&i.CreatedAt,
	)
	return i, err
}

const getExpense = `-- name: GetExpense :one
SELECT id, amount, occurred_at, created_at FROM expenses
WHERE id = ?
`

func (q *Queries) GetExpense(ctx context.Context, id int64) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.Amount,
		&i.OccurredAt,
		&i.CreatedAt,
	)
	return i, err
}

const getMostRecentExpense = `-- name: GetMostRecentExpense :one
SELECT id, amount, occurred_at, created_at FROM expenses
ORDER BY occurred_at DESC, id DESC
LIMIT 1
`

func (q *Queries) GetMostRecentExpense(ctx context.Context) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getMostRecentExpense)
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.Amount,
		&i.OccurredAt,
		&i.CreatedAt,
	)
	return i, err
}

const getExpensesInRange = `-- name: GetExpensesInRange :many
SELECT id, amount, occurred_at, created_at FROM expenses
WHERE occurred_at BETWEEN ? AND ?
ORDER BY occurred_at DESC, id DESC
`

type GetExpensesInRangeParams struct {
	Start int64
	End   int64
}

func (q *Queries) GetExpensesInRange(ctx context.Context, arg GetExpensesInRangeParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, getExpensesInRange, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var i Expense
		if err := rows.Scan(
			&i.ID,
			&i.Amount,
			&i.OccurredAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countExpenses = `-- name: CountExpenses :one
SELECT COUNT(*) FROM expenses
`

func (q *Queries) CountExpenses(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countExpenses)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const addExpenseCategory = `-- name: AddExpenseCategory :exec
INSERT INTO expense_categories (expense_id, position, label)
VALUES (?1, (SELECT COALESCE(MAX(position), -1) + 1 FROM expense_categories WHERE expense_id = ?1), ?2)
`

type AddExpenseCategoryParams struct {
	ExpenseID int64
	Label     string
}

func (q *Queries) AddExpenseCategory(ctx context.Context, arg AddExpenseCategoryParams) error {
	_, err := q.db.ExecContext(ctx, addExpenseCategory, arg.ExpenseID, arg.Label)
	return err
}

const getExpenseCategories = `-- name: GetExpenseCategories :many
SELECT expense_id, position, label FROM expense_categories
WHERE expense_id = ?
ORDER BY position
`

func (q *Queries) GetExpenseCategories(ctx context.Context, expenseID int64) ([]ExpenseCategory, error) {
	rows, err := q.db.QueryContext(ctx, getExpenseCategories, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseCategory
	for rows.Next() {
		var i ExpenseCategory
		if err := rows.Scan(&i.ExpenseID, &i.Position, &i.Label); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCategoriesInRange = `-- name: GetCategoriesInRange :many
SELECT c.expense_id, c.position, c.label FROM expense_categories c
JOIN expenses e ON e.id = c.expense_id
WHERE e.occurred_at BETWEEN ? AND ?
ORDER BY c.expense_id, c.position
`

type GetCategoriesInRangeParams struct {
	Start int64
	End   int64
}

func (q *Queries) GetCategoriesInRange(ctx context.Context, arg GetCategoriesInRangeParams) ([]ExpenseCategory, error) {
	rows, err := q.db.QueryContext(ctx, getCategoriesInRange, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseCategory
	for rows.Next() {
		var i ExpenseCategory
		if err := rows.Scan(&i.ExpenseID, &i.Position, &i.Label); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
