package report

import (
	"strings"
	"time"

	"tally/internal/core"
)

// Period is an inclusive date range.
type Period struct {
	From core.Date
	To   core.Date
}

// ResolvePeriod turns a period keyword or an explicit from/to pair into a
// concrete range. Keywords are resolved against now: "month" is the current
// calendar month, "quarter" the current quarter, "year" the current year,
// "last-month" the previous calendar month. Explicit dates win over the
// keyword when both are supplied.
func ResolvePeriod(keyword string, from, to core.Date, now time.Time) (Period, error) {
	if !from.IsZero() || !to.IsZero() {
		if from.IsZero() || to.IsZero() {
			return Period{}, &core.ValidationError{Field: "period", Reason: "from and to must be supplied together"}
		}
		if to.Before(from.Time) {
			return Period{}, &core.ValidationError{Field: "period", Reason: "to must not precede from"}
		}
		return Period{From: from, To: to}, nil
	}

	y, m, _ := now.UTC().Date()
	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case "", "month":
		start := core.NewDate(y, int(m), 1)
		return Period{From: start, To: start.EndOfMonth()}, nil
	case "last-month":
		start := core.NewDate(y, int(m)-1, 1)
		return Period{From: start, To: start.EndOfMonth()}, nil
	case "quarter":
		qm := int(m) - (int(m)-1)%3
		start := core.NewDate(y, qm, 1)
		return Period{From: start, To: core.NewDate(y, qm+2, 1).EndOfMonth()}, nil
	case "year":
		return Period{From: core.NewDate(y, 1, 1), To: core.NewDate(y, 12, 31)}, nil
	}
	return Period{}, &core.ValidationError{Field: "period", Reason: "unknown period keyword"}
}

// monthStarts returns the first day of each calendar month the period
// touches, in order.
func (p Period) monthStarts() []core.Date {
	var starts []core.Date
	y, m, _ := p.From.Date()
	cur := core.NewDate(y, int(m), 1)
	for !cur.After(p.To.Time) {
		starts = append(starts, cur)
		y, m, _ = cur.Date()
		cur = core.NewDate(y, int(m)+1, 1)
	}
	return starts
}
