package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	cases := map[string]Resolution{
		"HOURLY":  Hourly,
		"daily":   Daily,
		"Weekly":  Weekly,
		"monthly": Monthly,
		"YEARLY":  Yearly,
	}
	for in, expected := range cases {
		r, err := ParseResolution(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, r, in)
	}

	_, err := ParseResolution("fortnightly")
	assert.True(t, errors.Is(err, ErrInvalidResolution))
}

func TestResolutionTextRoundTrip(t *testing.T) {
	text, err := Monthly.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "monthly", string(text))

	var r Resolution
	require.NoError(t, r.UnmarshalText([]byte("WEEKLY")))
	assert.Equal(t, Weekly, r)
	assert.Error(t, r.UnmarshalText([]byte("minutely")))
}

func TestResolutionUnits(t *testing.T) {
	assert.Equal(t, BoundaryUnit{Kind: FixedDuration, Duration: time.Hour}, Hourly.Unit())
	assert.Equal(t, BoundaryUnit{Kind: FixedDuration, Duration: 24 * time.Hour}, Daily.Unit())
	assert.Equal(t, BoundaryUnit{Kind: FixedDuration, Duration: 7 * 24 * time.Hour}, Weekly.Unit())
	assert.Equal(t, BoundaryUnit{Kind: CalendarUnit, Months: 1}, Monthly.Unit())
	assert.Equal(t, BoundaryUnit{Kind: CalendarUnit, Months: 12}, Yearly.Unit())

	assert.Equal(t, time.Hour, Hourly.BucketWidth())
	assert.Equal(t, time.Duration(0), Monthly.BucketWidth())
	assert.Equal(t, time.Duration(0), Yearly.BucketWidth())
}

func TestResolutionFloor(t *testing.T) {
	ts := mustTime(t, "2024-05-16T13:45:10Z")

	assert.Equal(t, "2024-05-16T13:00:00Z", FormatLabel(Hourly.Floor(ts, time.UTC)))
	assert.Equal(t, "2024-05-16T00:00:00Z", FormatLabel(Daily.Floor(ts, time.UTC)))
	assert.Equal(t, "2024-05-13T00:00:00Z", FormatLabel(Weekly.Floor(ts, time.UTC)))
	assert.Equal(t, "2024-05-01T00:00:00Z", FormatLabel(Monthly.Floor(ts, time.UTC)))
	assert.Equal(t, "2024-01-01T00:00:00Z", FormatLabel(Yearly.Floor(ts, nil)))

	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "2024-05-15T15:00:00Z", FormatLabel(Daily.Floor(ts, tokyo)))
	assert.Equal(t, "2024-04-30T15:00:00Z", FormatLabel(Monthly.Floor(ts, tokyo)))
}

func TestCalendarBoundaryHandlesMonthLengths(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T00:00:00Z")
	unit := Monthly.Unit()
	assert.Equal(t, "2024-02-01T00:00:00Z", FormatLabel(unit.Boundary(anchor, 1)))
	assert.Equal(t, "2024-03-01T00:00:00Z", FormatLabel(unit.Boundary(anchor, 2)))
	assert.Equal(t, "2025-01-01T00:00:00Z", FormatLabel(unit.Boundary(anchor, 12)))
	assert.Equal(t, "2026-01-01T00:00:00Z", FormatLabel(Yearly.Unit().Boundary(anchor, 2)))
}
