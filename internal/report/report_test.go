package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/core"
	"settlement/internal/ledger/memory"
)

var msk = time.FixedZone("MSK", 3*60*60)

func exp(id int64, at time.Time, amount string, cats ...string) core.Expense {
	if cats == nil {
		cats = []string{}
	}
	return core.Expense{ID: id, Amount: decimal.RequireFromString(amount), OccurredAt: at, Categories: cats}
}

func TestSummarize_SameDay(t *testing.T) {
	day := time.Date(2025, 5, 10, 9, 0, 0, 0, msk)
	summary := Summarize([]core.Expense{
		exp(1, day, "100"),
		exp(2, day.Add(2*time.Hour), "50.5"),
	}, day.Add(-time.Hour), day.Add(3*time.Hour), msk)

	require.Len(t, summary.Days, 1)
	assert.True(t, decimal.RequireFromString("150.5").Equal(summary.Days[0].Total))
	assert.True(t, decimal.RequireFromString("150.5").Equal(summary.Total))
	assert.Equal(t, int64(2), summary.Days[0].Expenses[0].ID, "most recent expense first")

	msgs := Messages(summary)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "Итого: 150.5 рублей")
	assert.Equal(t, "Итоговая сумма : 150.5 рублей", msgs[1])
}

func TestSummarize_DaysMostRecentFirst(t *testing.T) {
	d1 := time.Date(2025, 5, 8, 12, 0, 0, 0, msk)
	d2 := d1.Add(24 * time.Hour)
	d3 := d2.Add(24 * time.Hour)

	// Input deliberately unsorted.
	summary := Summarize([]core.Expense{
		exp(1, d2, "2"),
		exp(2, d1, "1"),
		exp(3, d3, "3"),
		exp(4, d1.Add(time.Hour), "1"),
	}, d1, d3, msk)

	require.Len(t, summary.Days, 3)
	for i := 1; i < len(summary.Days); i++ {
		assert.True(t, summary.Days[i-1].Date.After(summary.Days[i].Date))
	}
	assert.Equal(t, 2, len(summary.Days[2].Expenses))
	assert.Equal(t, 4, summary.Count())
}

func TestSummarize_GroupsByLocalDate(t *testing.T) {
	// 22:30 UTC is 01:30 next day in MSK.
	late := time.Date(2025, 5, 9, 22, 30, 0, 0, time.UTC)
	early := time.Date(2025, 5, 9, 10, 0, 0, 0, time.UTC)
	summary := Summarize([]core.Expense{exp(1, late, "1"), exp(2, early, "1")}, early, late, msk)

	require.Len(t, summary.Days, 2)
	assert.Equal(t, "2025-05-10", summary.Days[0].Date.Format(dateLayout))
	assert.Equal(t, "2025-05-09", summary.Days[1].Date.Format(dateLayout))

	utc := Summarize([]core.Expense{exp(1, late, "1"), exp(2, early, "1")}, early, late, time.UTC)
	assert.Len(t, utc.Days, 1)
}

func TestSummarize_GrandTotalEqualsSumOfDays(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, msk)
	var expenses []core.Expense
	for i := 0; i < 30; i++ {
		expenses = append(expenses, exp(int64(i+1), base.Add(time.Duration(i)*7*time.Hour), "0.10"))
	}
	summary := Summarize(expenses, base, base.Add(30*7*time.Hour), msk)

	sum := decimal.Zero
	for _, d := range summary.Days {
		daySum := decimal.Zero
		for _, e := range d.Expenses {
			daySum = daySum.Add(e.Amount)
		}
		assert.True(t, daySum.Equal(d.Total))
		sum = sum.Add(d.Total)
	}
	assert.True(t, sum.Equal(summary.Total))
	assert.True(t, decimal.RequireFromString("3").Equal(summary.Total))
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil, time.Now().Add(-time.Hour), time.Now(), msk)
	assert.Empty(t, summary.Days)
	assert.True(t, summary.Total.IsZero())

	msgs := Messages(summary)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Итоговая сумма : 0 рублей", msgs[0])
}

func TestRenderDay(t *testing.T) {
	day := core.DaySummary{
		Date: time.Date(2025, 5, 10, 0, 0, 0, 0, msk),
		Expenses: []core.Expense{
			exp(2, time.Date(2025, 5, 10, 18, 0, 0, 0, msk), "12.5", "Еда", "Кафе"),
			exp(1, time.Date(2025, 5, 10, 9, 0, 0, 0, msk), "100"),
		},
		Total: decimal.RequireFromString("112.5"),
	}
	want := "Дата : 2025-05-10\n" +
		"\nСумма: 12.5 рублей \nКатегория: еда, кафе \n" +
		"\nСумма: 100 рублей \nКатегория:  \n" +
		"\nИтого: 112.5 рублей"
	assert.Equal(t, want, RenderDay(day))
}

func TestRenderTotal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"150.50", "Итоговая сумма : 150.5 рублей"},
		{"0.00", "Итоговая сумма : 0 рублей"},
		{"12.345", "Итоговая сумма : 12.35 рублей"},
		{"1000", "Итоговая сумма : 1000 рублей"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderTotal(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestCategoryLine(t *testing.T) {
	assert.Equal(t, "", CategoryLine(nil))
	assert.Equal(t, "еда", CategoryLine([]string{"ЕДА"}))
	assert.Equal(t, "такси, работа, a", CategoryLine([]string{"Такси, работа", "[A]"}))
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2025, 5, 10, 20, 0, 0, 0, msk)

	for _, e := range []core.Expense{
		exp(0, now.Add(-2*time.Hour), "100"),
		exp(0, now.Add(-time.Hour), "50.5"),
		exp(0, now.Add(-72*time.Hour), "999"),
	} {
		_, err := store.Insert(ctx, e)
		require.NoError(t, err)
	}

	summary, err := NewBuilder(store, msk).Build(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, summary.Days, 1)
	assert.True(t, decimal.RequireFromString("150.5").Equal(summary.Total))
	assert.False(t, strings.Contains(RenderDay(summary.Days[0]), "999"))
}

type failingStore struct{ memory.Store }

func (*failingStore) FindInRange(context.Context, time.Time, time.Time) ([]core.Expense, error) {
	return nil, errors.New("boom")
}

func TestBuilder_BuildPropagatesStoreError(t *testing.T) {
	_, err := NewBuilder(&failingStore{}, msk).Build(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find expenses in range")
}
