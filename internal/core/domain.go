package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTimeShift is added to the message time when an expense is recorded
// so the stored instant falls on the user's local day.
const DefaultTimeShift = 3 * time.Hour

type (
	// Expense is a single recorded amount with the labels attached to it.
	Expense struct {
		ID         int64
		Amount     decimal.Decimal
		Categories []string
		OccurredAt time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyLabel    = errors.New("empty category label")
	ErrZeroTime      = errors.New("occurred_at cannot be zero")
	ErrNoExpenses    = errors.New("no expenses recorded")
	ErrNotFound      = errors.New("expense not found")
)

// NewExpense builds an expense for an amount received at sentAt. When the
// message was forwarded, forwardedAt wins over sentAt.
func NewExpense(amount decimal.Decimal, sentAt time.Time, forwardedAt *time.Time, shift time.Duration) Expense {
	at := sentAt
	if forwardedAt != nil && !forwardedAt.IsZero() {
		at = *forwardedAt
	}
	return Expense{
		Amount:     amount,
		Categories: []string{},
		OccurredAt: at.Add(shift),
	}
}

func (e Expense) Validate() error {
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroTime
	}
	for _, c := range e.Categories {
		if strings.TrimSpace(c) == "" {
			return ErrEmptyLabel
		}
	}
	return nil
}

// WithCategory returns a copy of e with label appended. The receiver's
// slice is never shared with the result.
func (e Expense) WithCategory(label string) Expense {
	cats := make([]string, 0, len(e.Categories)+1)
	cats = append(cats, e.Categories...)
	e.Categories = append(cats, label)
	return e
}

// NewerThan reports whether e is more recent than other: later OccurredAt,
// or the same instant and a higher ID.
func (e Expense) NewerThan(other Expense) bool {
	if e.OccurredAt.Equal(other.OccurredAt) {
		return e.ID > other.ID
	}
	return e.OccurredAt.After(other.OccurredAt)
}
