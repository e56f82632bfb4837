package command

import (
	"fmt"
	"time"
)

// WindowKind names a report lookback.
type WindowKind int

const (
	LastDays WindowKind = iota
	Yesterday
	LastWeek
	LastMonth
	DaysOfMonth
	SincePayday
)

// DefaultPayday is the day of month salary arrives on.
const DefaultPayday = 15

const day = 24 * time.Hour

// Window computes where a report starts. Reports always end at "now".
type Window struct {
	Kind WindowKind
	Days int // LastDays only
}

func (w Window) String() string {
	switch w.Kind {
	case Yesterday:
		return "yesterday"
	case LastWeek:
		return "lastweek"
	case LastMonth:
		return "month"
	case DaysOfMonth:
		return "daysmonth"
	case SincePayday:
		return "salary"
	default:
		return fmt.Sprintf("last_%d_days", w.Days)
	}
}

// Start returns the first instant covered by the window. now is interpreted
// in loc for the calendar based kinds; payday is the salary day of month.
func (w Window) Start(now time.Time, loc *time.Location, payday int) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if payday < 1 || payday > 28 {
		payday = DefaultPayday
	}
	local := now.In(loc)

	switch w.Kind {
	case Yesterday:
		return now.Add(-day)
	case LastWeek:
		return now.Add(-7 * day)
	case LastMonth:
		return now.Add(-31 * day)
	case DaysOfMonth:
		return now.Add(-time.Duration(local.Day()) * day)
	case SincePayday:
		year, month, dom := local.Date()
		if dom < payday {
			// time.Date normalizes month 0 to December of the previous year.
			return time.Date(year, month-1, payday, 0, 0, 0, 0, loc)
		}
		return time.Date(year, month, payday, 0, 0, 0, 0, loc)
	default:
		return now.Add(-time.Duration(w.Days) * day)
	}
}
