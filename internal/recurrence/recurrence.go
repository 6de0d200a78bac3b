// Package recurrence computes the occurrences of a repeating event.
//
// Occurrences are always derived from the anchor (the first occurrence) and
// an index, never from the previous occurrence, so a month-end anchor keeps
// its day-of-month: Jan 31 yields Feb 28 and then Mar 31.
package recurrence

import (
	"fmt"
	"time"
)

type Frequency int

const (
	Daily   Frequency = 1
	Weekly  Frequency = 2
	Monthly Frequency = 3
	Yearly  Frequency = 4
)

func (f Frequency) Valid() bool {
	return f >= Daily && f <= Yearly
}

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// Occurrence returns the n-th occurrence of a series starting at anchor,
// computed on the wall clock of loc. Occurrence 0 is the anchor itself.
func Occurrence(anchor time.Time, f Frequency, n int, loc *time.Location) time.Time {
	if loc == nil {
		loc = anchor.Location()
	}
	a := anchor.In(loc)
	y, mo, d := a.Date()
	h, mi, s := a.Clock()
	ns := a.Nanosecond()

	switch f {
	case Daily:
		return time.Date(y, mo, d+n, h, mi, s, ns, loc)
	case Weekly:
		return time.Date(y, mo, d+7*n, h, mi, s, ns, loc)
	case Monthly:
		ty, tm := addMonths(y, mo, n)
		return time.Date(ty, tm, clampDay(ty, tm, d), h, mi, s, ns, loc)
	case Yearly:
		ty := y + n
		return time.Date(ty, mo, clampDay(ty, mo, d), h, mi, s, ns, loc)
	}
	return time.Time{}
}

// Next returns the first occurrence strictly after prev. It returns the zero
// time for an invalid frequency.
func Next(anchor, prev time.Time, f Frequency, loc *time.Location) time.Time {
	if !f.Valid() {
		return time.Time{}
	}
	if prev.Before(anchor) {
		return Occurrence(anchor, f, 0, loc)
	}

	n := estimate(anchor, prev, f, loc)
	for {
		t := Occurrence(anchor, f, n, loc)
		if t.After(prev) {
			return t
		}
		n++
	}
}

// Prev returns the latest occurrence at or before t. It returns the zero
// time when t precedes the anchor or the frequency is invalid.
func Prev(anchor, t time.Time, f Frequency, loc *time.Location) time.Time {
	if !f.Valid() || t.Before(anchor) {
		return time.Time{}
	}

	n := estimate(anchor, t, f, loc)
	for n > 0 && Occurrence(anchor, f, n, loc).After(t) {
		n--
	}
	for !Occurrence(anchor, f, n+1, loc).After(t) {
		n++
	}
	return Occurrence(anchor, f, n, loc)
}

// estimate returns an index at or below the answer so Next only steps a few
// times. DST shifts can move a daily occurrence by an hour, hence the
// one-step margin.
func estimate(anchor, prev time.Time, f Frequency, loc *time.Location) int {
	if loc == nil {
		loc = anchor.Location()
	}
	a, p := anchor.In(loc), prev.In(loc)

	var n int
	switch f {
	case Daily:
		n = int(p.Sub(a)/(24*time.Hour)) - 1
	case Weekly:
		n = int(p.Sub(a)/(7*24*time.Hour)) - 1
	case Monthly:
		n = (p.Year()-a.Year())*12 + int(p.Month()) - int(a.Month()) - 1
	case Yearly:
		n = p.Year() - a.Year() - 1
	}
	return max(n, 0)
}

func addMonths(y int, m time.Month, n int) (int, time.Month) {
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	return y, time.Month(total + 1)
}

func clampDay(y int, m time.Month, d int) int {
	return min(d, daysIn(y, m))
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
