// Package period maps calendar days to the integer period identifiers the
// event cache is keyed by. Indices are non-negative for every date from
// 0001-01-01 on and increase with day order.
package period

import (
	"fmt"
	"time"
)

// Indexer assigns days to periods and reports the time span of a period.
type Indexer interface {
	// Index returns the period containing the calendar date of day.
	Index(day time.Time) int
	// Bounds returns the half-open interval [start, end) of period p.
	Bounds(p int) (start, end time.Time)
}

// Month buckets days by calendar month: year*12 + month-1.
type Month struct {
	Location *time.Location
}

func (m Month) Index(day time.Time) int {
	y, mon, _ := day.Date()
	return y*12 + int(mon) - 1
}

func (m Month) Bounds(p int) (time.Time, time.Time) {
	start := time.Date(p/12, time.Month(p%12+1), 1, 0, 0, 0, 0, locOrLocal(m.Location))
	return start, start.AddDate(0, 1, 0)
}

// Week buckets days by week, counted from the week containing 0001-01-01.
type Week struct {
	Location *time.Location
	// Start is the first day of the week; only Monday and Sunday are used.
	Start time.Weekday
}

// epoch is 0001-01-01, a Monday in the proleptic Gregorian calendar.
var epoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

func (w Week) offset() int {
	if w.Start == time.Sunday {
		return 1
	}
	return 0
}

func (w Week) Index(day time.Time) int {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// Unix seconds avoid time.Duration overflow across two millennia.
	days := int((midnight.Unix() - epoch.Unix()) / 86400)
	return (days + w.offset()) / 7
}

func (w Week) Bounds(p int) (time.Time, time.Time) {
	start := time.Date(1, time.January, 1+p*7-w.offset(), 0, 0, 0, 0, locOrLocal(w.Location))
	return start, start.AddDate(0, 0, 7)
}

// New builds the Indexer named by kind ("month" or "week").
func New(kind string, weekStart time.Weekday, loc *time.Location) (Indexer, error) {
	switch kind {
	case "", "month":
		return Month{Location: loc}, nil
	case "week":
		return Week{Location: loc, Start: weekStart}, nil
	default:
		return nil, fmt.Errorf("period: unknown kind %q", kind)
	}
}

// Days returns n consecutive calendar days starting at the date of start,
// each at midnight in start's location.
func Days(start time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	y, m, d := start.Date()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, time.Date(y, m, d+i, 0, 0, 0, 0, start.Location()))
	}
	return out
}

func locOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
