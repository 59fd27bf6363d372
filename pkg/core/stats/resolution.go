package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

type Resolution int

const (
	Hourly Resolution = iota
	Daily
	Weekly
	Monthly
	Yearly
)

var resolutionNames = [...]string{"HOURLY", "DAILY", "WEEKLY", "MONTHLY", "YEARLY"}

func (r Resolution) String() string {
	if r < Hourly || r > Yearly {
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
	return resolutionNames[r]
}

// ParseResolution accepts the resolution names in any case.
func ParseResolution(s string) (Resolution, error) {
	for i, name := range resolutionNames {
		if strings.EqualFold(s, name) {
			return Resolution(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(r.String())), nil
}

func (r *Resolution) UnmarshalText(text []byte) error {
	v, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

type UnitKind int

const (
	FixedDuration UnitKind = iota
	CalendarUnit
)

// BoundaryUnit is the step between two bucket boundaries. Fixed units use
// Duration; calendar units use Months in the viewing timezone.
type BoundaryUnit struct {
	Kind     UnitKind
	Duration time.Duration
	Months   int
}

// Unit maps a resolution to its boundary arithmetic. Months and years are
// calendar units so they never drift against the calendar.
func (r Resolution) Unit() BoundaryUnit {
	switch r {
	case Hourly:
		return BoundaryUnit{Kind: FixedDuration, Duration: time.Hour}
	case Daily:
		return BoundaryUnit{Kind: FixedDuration, Duration: 24 * time.Hour}
	case Weekly:
		return BoundaryUnit{Kind: FixedDuration, Duration: 7 * 24 * time.Hour}
	case Monthly:
		return BoundaryUnit{Kind: CalendarUnit, Months: 1}
	case Yearly:
		return BoundaryUnit{Kind: CalendarUnit, Months: 12}
	}
	panic(fmt.Sprintf("unmapped resolution %d", int(r)))
}

// BucketWidth is the sub-bucket width handed to the store. Calendar units have
// no fixed width; each of their periods is a single bucket.
func (r Resolution) BucketWidth() time.Duration {
	u := r.Unit()
	if u.Kind == CalendarUnit {
		return 0
	}
	return u.Duration
}

// Floor returns the start of the resolution unit containing t, evaluated in loc.
// Weeks start on Monday.
func (r Resolution) Floor(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	cal := &now.Config{WeekStartDay: time.Monday, TimeLocation: loc}
	n := cal.With(t.In(loc))
	switch r {
	case Hourly:
		return n.BeginningOfHour()
	case Daily:
		return n.BeginningOfDay()
	case Weekly:
		return n.BeginningOfWeek()
	case Monthly:
		return n.BeginningOfMonth()
	default:
		return n.BeginningOfYear()
	}
}

// Boundary returns the k-th boundary after anchor.
func (u BoundaryUnit) Boundary(anchor time.Time, k int) time.Time {
	if u.Kind == CalendarUnit {
		return anchor.AddDate(0, k*u.Months, 0)
	}
	return anchor.Add(time.Duration(k) * u.Duration)
}
