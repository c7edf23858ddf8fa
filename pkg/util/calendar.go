package util

import "time"

// Trading-calendar helpers over daily bars. Trading days are weekdays;
// exchange holidays are not modeled, so a holiday simply shows up as an
// absent bar and consumers must not assume contiguity.

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether t falls on a weekday.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevTradingDay returns the last trading day strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := Day(t).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time) time.Time {
	d := Day(t).AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// LastCompletedTradingDay returns t's date if it is a trading day,
// otherwise the nearest trading day before it.
func LastCompletedTradingDay(t time.Time) time.Time {
	d := Day(t)
	if IsTradingDay(d) {
		return d
	}
	return PrevTradingDay(d)
}

// TradingDaysBetween counts trading days in the half-open range (from, to].
// Returns 0 when to is on or before from.
func TradingDaysBetween(from, to time.Time) int {
	from, to = Day(from), Day(to)
	if !to.After(from) {
		return 0
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			n++
		}
	}
	return n
}
