package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		prev   time.Time
		freq   Frequency
		want   time.Time
	}{
		{"daily", utc(2025, 1, 1, 9), utc(2025, 1, 1, 9), Daily, utc(2025, 1, 2, 9)},
		{"daily across month", utc(2025, 1, 31, 9), utc(2025, 1, 31, 9), Daily, utc(2025, 2, 1, 9)},
		{"weekly", utc(2025, 1, 1, 9), utc(2025, 1, 1, 9), Weekly, utc(2025, 1, 8, 9)},
		{"weekly mid period", utc(2025, 1, 1, 9), utc(2025, 1, 20, 0), Weekly, utc(2025, 1, 22, 9)},
		{"monthly clamps to february", utc(2025, 1, 31, 10), utc(2025, 1, 31, 10), Monthly, utc(2025, 2, 28, 10)},
		{"monthly leap february", utc(2024, 1, 31, 10), utc(2024, 1, 31, 10), Monthly, utc(2024, 2, 29, 10)},
		{"monthly returns to anchor day", utc(2025, 1, 31, 10), utc(2025, 2, 28, 10), Monthly, utc(2025, 3, 31, 10)},
		{"monthly thirty day month", utc(2025, 1, 31, 10), utc(2025, 3, 31, 10), Monthly, utc(2025, 4, 30, 10)},
		{"monthly across year", utc(2024, 12, 15, 8), utc(2024, 12, 15, 8), Monthly, utc(2025, 1, 15, 8)},
		{"yearly leap day", utc(2024, 2, 29, 12), utc(2024, 2, 29, 12), Yearly, utc(2025, 2, 28, 12)},
		{"yearly back to leap day", utc(2024, 2, 29, 12), utc(2027, 2, 28, 12), Yearly, utc(2028, 2, 29, 12)},
		{"prev before anchor", utc(2025, 6, 1, 0), utc(2025, 1, 1, 0), Monthly, utc(2025, 6, 1, 0)},
		{"far in the future", utc(2020, 1, 31, 0), utc(2030, 2, 10, 0), Monthly, utc(2030, 2, 28, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.anchor, tt.prev, tt.freq, time.UTC)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestPrev(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		at     time.Time
		freq   Frequency
		want   time.Time
	}{
		{"at the anchor", utc(2025, 1, 31, 10), utc(2025, 1, 31, 10), Monthly, utc(2025, 1, 31, 10)},
		{"between occurrences", utc(2025, 1, 31, 10), utc(2025, 3, 15, 0), Monthly, utc(2025, 2, 28, 10)},
		{"exactly on an occurrence", utc(2025, 1, 31, 10), utc(2025, 4, 30, 10), Monthly, utc(2025, 4, 30, 10)},
		{"just before an occurrence", utc(2025, 1, 31, 10), utc(2025, 4, 30, 9), Monthly, utc(2025, 3, 31, 10)},
		{"long downtime", utc(2025, 1, 31, 10), utc(2026, 10, 31, 10), Monthly, utc(2026, 10, 31, 10)},
		{"daily", utc(2025, 1, 1, 9), utc(2025, 1, 5, 8), Daily, utc(2025, 1, 4, 9)},
		{"weekly", utc(2025, 1, 1, 9), utc(2025, 1, 20, 0), Weekly, utc(2025, 1, 15, 9)},
		{"yearly leap day", utc(2024, 2, 29, 12), utc(2026, 3, 1, 0), Yearly, utc(2026, 2, 28, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prev(tt.anchor, tt.at, tt.freq, time.UTC)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	t.Run("before the anchor", func(t *testing.T) {
		assert.True(t, Prev(utc(2025, 6, 1, 0), utc(2025, 1, 1, 0), Monthly, time.UTC).IsZero())
	})
	t.Run("invalid frequency", func(t *testing.T) {
		assert.True(t, Prev(utc(2025, 1, 1, 0), utc(2025, 2, 1, 0), Frequency(0), time.UTC).IsZero())
	})
}

func TestNextSequence(t *testing.T) {
	anchor := utc(2024, 2, 29, 12)
	want := []time.Time{
		utc(2025, 2, 28, 12),
		utc(2026, 2, 28, 12),
		utc(2027, 2, 28, 12),
		utc(2028, 2, 29, 12),
	}

	prev := anchor
	for _, w := range want {
		prev = Next(anchor, prev, Yearly, time.UTC)
		assert.True(t, w.Equal(prev), "want %s, got %s", w, prev)
	}
}

func TestNextKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)

	anchor := time.Date(2025, 3, 29, 9, 0, 0, 0, loc)
	got := Next(anchor, anchor, Daily, loc)

	assert.Equal(t, 30, got.Day())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 23*time.Hour, got.Sub(anchor))
}

func TestNextInvalidFrequency(t *testing.T) {
	assert.True(t, Next(utc(2025, 1, 1, 0), utc(2025, 1, 1, 0), Frequency(7), time.UTC).IsZero())
}

func TestFrequency(t *testing.T) {
	assert.True(t, Yearly.Valid())
	assert.False(t, Frequency(0).Valid())
	assert.Equal(t, "monthly", Monthly.String())
	assert.Equal(t, "Frequency(9)", Frequency(9).String())
}

func TestSchedule(t *testing.T) {
	s, err := NewSchedule(utc(2025, 1, 31, 10), Monthly, "UTC")
	require.NoError(t, err)

	assert.True(t, utc(2025, 2, 28, 10).Equal(s.Next(utc(2025, 2, 1, 0))))
	assert.True(t, utc(2025, 3, 31, 10).Equal(s.Next(utc(2025, 2, 28, 10))))

	_, err = NewSchedule(utc(2025, 1, 1, 0), Daily, "Not/AZone")
	assert.Error(t, err)
}
