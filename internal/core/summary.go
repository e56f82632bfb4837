package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DaySummary groups the expenses of one local calendar day.
type DaySummary struct {
	Date     time.Time // local midnight
	Expenses []Expense // most recent first
	Total    decimal.Decimal
}

// RangeSummary is the grouped content of a report window.
type RangeSummary struct {
	Start time.Time
	End   time.Time
	Days  []DaySummary // most recent day first
	Total decimal.Decimal
}

// Count returns the number of expenses across all days.
func (r RangeSummary) Count() int {
	n := 0
	for _, d := range r.Days {
		n += len(d.Expenses)
	}
	return n
}
