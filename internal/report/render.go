package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/core"
)

const (
	dateLayout     = "2006-01-02"
	datePrefix     = "Дата : "
	amountPrefix   = "Сумма: "
	categoryPrefix = "Категория: "
	dayTotalPrefix = "Итого: "
	totalPrefix    = "Итоговая сумма : "
	currency       = " рублей"
)

// RenderDay renders one day-block: the date header, one entry per expense
// and the day total.
func RenderDay(day core.DaySummary) string {
	var b strings.Builder
	b.WriteString(datePrefix)
	b.WriteString(day.Date.Format(dateLayout))
	b.WriteString("\n")
	for _, e := range day.Expenses {
		b.WriteString("\n")
		b.WriteString(amountPrefix)
		b.WriteString(amountText(e.Amount))
		b.WriteString(currency)
		b.WriteString(" \n")
		b.WriteString(categoryPrefix)
		b.WriteString(CategoryLine(e.Categories))
		b.WriteString(" \n")
	}
	b.WriteString("\n")
	b.WriteString(dayTotalPrefix)
	b.WriteString(amountText(day.Total))
	b.WriteString(currency)
	return b.String()
}

// RenderTotal renders the grand total message.
func RenderTotal(total decimal.Decimal) string {
	return totalPrefix + amountText(total) + currency
}

// amountText drops trailing fractional zeros: 150.50 renders as 150.5 and
// zero as 0.
func amountText(d decimal.Decimal) string {
	return d.Round(2).String()
}

// CategoryLine joins labels with ", " in lower case, dropping any list
// brackets the labels may contain.
func CategoryLine(categories []string) string {
	line := strings.ToLower(strings.Join(categories, ", "))
	return strings.NewReplacer("[", "", "]", "").Replace(line)
}

// Messages returns every message of a report in send order: one per day,
// most recent day first, then the grand total.
func Messages(summary core.RangeSummary) []string {
	out := make([]string, 0, len(summary.Days)+1)
	for _, day := range summary.Days {
		out = append(out, RenderDay(day))
	}
	return append(out, RenderTotal(summary.Total))
}
