package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:00", 540, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"09:60", 0, false},
		{"9:00", 0, false},
		{"09-00", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if !c.ok {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for _, min := range []int{0, 1, 59, 60, 540, 1439} {
		got, err := ParseClock(FormatClock(min))
		require.NoError(t, err)
		assert.Equal(t, min, got)
	}
}

func TestOverlapsSymmetry(t *testing.T) {
	ranges := [][2]int{{540, 600}, {570, 630}, {600, 660}, {0, 1440}, {540, 541}}
	for _, a := range ranges {
		for _, b := range ranges {
			assert.Equal(t,
				Overlaps(a[0], a[1], b[0], b[1]),
				Overlaps(b[0], b[1], a[0], a[1]),
				"overlaps(%v,%v) must be symmetric", a, b)
		}
	}
}

func TestOverlapsEndExclusive(t *testing.T) {
	// 09:00-10:00 and 10:00-11:00 are back to back, not overlapping.
	assert.False(t, Overlaps(540, 600, 600, 660))
	assert.True(t, Overlaps(540, 600, 599, 660))
	// Full containment overlaps.
	assert.True(t, Overlaps(540, 660, 570, 600))
}

func TestSecondOfDay(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 10, 1, 0, time.UTC)
	assert.Equal(t, 9*3600+10*60+1, SecondOfDay(at))
	assert.Equal(t, 9*60+10, MinuteOfDay(at))
}

func TestDateHelpers(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 10, 1, 0, time.UTC)
	d := DateOf(at)
	assert.Equal(t, "2026-03-10", FormatDate(d))
	assert.True(t, SameDate(at, d))
	assert.False(t, SameDate(at, d.AddDate(0, 0, 1)))

	parsed, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	assert.True(t, SameDate(parsed, d))
}
