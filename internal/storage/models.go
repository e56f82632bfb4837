package storage

type Expense struct {
	ID         int64
	Amount     string
	OccurredAt int64
	CreatedAt  int64
}

type ExpenseCategory struct {
	ExpenseID int64
	Position  int64
	Label     string
}
