// Package command classifies chat text into the intents the ledger reacts to.
package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/core"
)

// MaxDays bounds the "/N" lookback so the window stays a valid duration.
const MaxDays = 36500

// Kind is the tag of an Intent.
type Kind int

const (
	Unrecognized Kind = iota
	Amount
	Category
	Report
)

func (k Kind) String() string {
	switch k {
	case Amount:
		return "amount"
	case Category:
		return "category"
	case Report:
		return "report"
	default:
		return "unrecognized"
	}
}

// Intent is the result of classifying one message. Only the field matching
// Kind is meaningful.
type Intent struct {
	Kind   Kind
	Amount decimal.Decimal
	Label  string
	Window Window
	Reason string // why the text was not recognized
}

var (
	amountPattern = regexp.MustCompile(`^(?:\d+\.\d+|\d+|\d+,\d+)$`)

	// Latin or Cyrillic words separated by single spaces; phrases may be
	// joined with ", ".
	labelPattern = regexp.MustCompile(`^(?:[a-zA-Zа-яА-ЯёЁ]+(?: [a-zA-Zа-яА-ЯёЁ]+)*(?:, )?)+$`)

	cannedCommands = map[string]WindowKind{
		"/yesterday": Yesterday,
		"/month":     LastMonth,
		"/daysmonth": DaysOfMonth,
		"/lastweek":  LastWeek,
		"/salary":    SincePayday,
	}
)

// Classify decides what a message asks for. Canned commands win over the
// parametric "/N" form, which wins over amounts and labels.
func Classify(text string) Intent {
	if text == "" {
		return Intent{Kind: Unrecognized, Reason: "empty text"}
	}

	if kind, ok := cannedCommands[text]; ok {
		return Intent{Kind: Report, Window: Window{Kind: kind}}
	}

	if strings.Contains(text, "/") {
		days, err := parseDays(text)
		if err != nil {
			return Intent{Kind: Unrecognized, Reason: "invalid day count"}
		}
		return Intent{Kind: Report, Window: Window{Kind: LastDays, Days: days}}
	}

	if IsAmount(text) {
		amount, err := core.ParseAmount(text)
		if err != nil {
			return Intent{Kind: Unrecognized, Reason: err.Error()}
		}
		return Intent{Kind: Amount, Amount: amount}
	}

	if IsLabel(text) {
		return Intent{Kind: Category, Label: text}
	}

	return Intent{Kind: Unrecognized, Reason: "no pattern matched"}
}

// IsAmount reports whether text is a bare decimal number.
func IsAmount(text string) bool {
	return amountPattern.MatchString(text)
}

// IsLabel reports whether text is an alphabetic category label.
func IsLabel(text string) bool {
	return labelPattern.MatchString(text)
}

func parseDays(text string) (int, error) {
	rest := strings.ReplaceAll(text, "/", "")
	days, err := strconv.Atoi(rest)
	if err != nil {
		return 0, err
	}
	if days < 0 || days > MaxDays || strings.HasPrefix(rest, "+") {
		return 0, strconv.ErrSyntax
	}
	return days, nil
}
