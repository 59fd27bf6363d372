package stats

import (
	"fmt"
	"time"
)

// Period is a half-open range [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", FormatLabel(p.Start), FormatLabel(p.End))
}

// PlanPeriods splits [from, to) into contiguous periods of one resolution unit.
// Boundaries are counted from the floor of from in loc, so a monthly period
// always starts at local midnight on the 1st; the first and last periods are
// clipped to from and to.
func PlanPeriods(from, to time.Time, resolution Resolution, loc *time.Location) ([]Period, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: %s >= %s", ErrInvalidRange,
			FormatLabel(from), FormatLabel(to))
	}
	unit := resolution.Unit()
	anchor := resolution.Floor(from, loc)

	periods := make([]Period, 0)
	start := from
	for k := 1; start.Before(to); k++ {
		end := unit.Boundary(anchor, k)
		if !end.After(start) {
			continue
		}
		if end.After(to) {
			end = to
		}
		periods = append(periods, Period{Start: start.UTC(), End: end.UTC()})
		start = end
	}
	return periods, nil
}
