// Package report groups expenses by local calendar day and renders the
// messages sent back for a report command.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/core"
	"settlement/internal/ledger"
)

// Builder fetches the expenses of a window and summarizes them.
type Builder struct {
	store ledger.Store
	loc   *time.Location
}

func NewBuilder(store ledger.Store, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{store: store, loc: loc}
}

// Build loads every expense in [start, end] and groups it by day.
func (b *Builder) Build(ctx context.Context, start, end time.Time) (core.RangeSummary, error) {
	expenses, err := b.store.FindInRange(ctx, start, end)
	if err != nil {
		return core.RangeSummary{}, fmt.Errorf("find expenses in range: %w", err)
	}
	return Summarize(expenses, start, end, b.loc), nil
}

// Summarize sorts expenses most recent first, groups them by the calendar
// date of OccurredAt in loc and totals each day and the whole range. Days
// are ordered most recent first.
func Summarize(expenses []core.Expense, start, end time.Time, loc *time.Location) core.RangeSummary {
	if loc == nil {
		loc = time.Local
	}

	sorted := make([]core.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NewerThan(sorted[j])
	})

	summary := core.RangeSummary{Start: start, End: end, Total: decimal.Zero}
	index := map[time.Time]int{}
	for _, e := range sorted {
		key := localDate(e.OccurredAt, loc)
		i, ok := index[key]
		if !ok {
			i = len(summary.Days)
			index[key] = i
			summary.Days = append(summary.Days, core.DaySummary{Date: key, Total: decimal.Zero})
		}
		summary.Days[i].Expenses = append(summary.Days[i].Expenses, e)
		summary.Days[i].Total = summary.Days[i].Total.Add(e.Amount)
		summary.Total = summary.Total.Add(e.Amount)
	}

	// Expenses are already newest first, so days come out in order; sort
	// anyway to keep the ordering independent of the grouping above.
	sort.SliceStable(summary.Days, func(i, j int) bool {
		return summary.Days[i].Date.After(summary.Days[j].Date)
	})
	return summary
}

func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
