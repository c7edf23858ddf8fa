package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(date(2024, time.October, 11)))  // Friday
	assert.False(t, IsTradingDay(date(2024, time.October, 12))) // Saturday
	assert.False(t, IsTradingDay(date(2024, time.October, 13))) // Sunday
	assert.True(t, IsTradingDay(date(2024, time.October, 14)))  // Monday
}

func TestPrevNextTradingDay(t *testing.T) {
	mon := date(2024, time.October, 14)
	fri := date(2024, time.October, 11)

	assert.Equal(t, fri, PrevTradingDay(mon))
	assert.Equal(t, mon, NextTradingDay(fri))
	// across a plain weekday boundary
	assert.Equal(t, date(2024, time.October, 10), PrevTradingDay(fri))
}

func TestLastCompletedTradingDay(t *testing.T) {
	sat := date(2024, time.October, 12)
	assert.Equal(t, date(2024, time.October, 11), LastCompletedTradingDay(sat))

	wed := date(2024, time.October, 9)
	assert.Equal(t, wed, LastCompletedTradingDay(wed))
}

func TestTradingDaysBetween(t *testing.T) {
	fri := date(2024, time.October, 11)
	mon := date(2024, time.October, 14)
	tue := date(2024, time.October, 15)

	assert.Equal(t, 0, TradingDaysBetween(fri, fri))
	assert.Equal(t, 1, TradingDaysBetween(fri, mon)) // weekend skipped
	assert.Equal(t, 2, TradingDaysBetween(fri, tue))
	assert.Equal(t, 0, TradingDaysBetween(mon, fri)) // reversed range
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
}
