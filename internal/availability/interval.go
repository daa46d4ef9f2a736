package availability

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval is returned when an interval starts after it ends.
var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open time range [Start, End).
// Zero-length intervals are degenerate but valid.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval returns the interval [start, end).
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IsEmpty reports whether the interval has zero length. An inverted interval
// is invalid rather than empty.
func (i Interval) IsEmpty() bool {
	return i.End.Equal(i.Start)
}

// Validate returns an error wrapping ErrInvalidInterval when Start is after End.
func (i Interval) Validate() error {
	if i.Start.After(i.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidInterval,
			i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// String formats the interval using RFC3339 bounds.
func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Clip restricts intervals to window, dropping those that fall entirely
// outside it. Calendar APIs report any event overlapping the requested range,
// so busy blocks may extend past either edge.
func Clip(intervals []Interval, window Interval) []Interval {
	clipped := make([]Interval, 0, len(intervals))
	for _, in := range intervals {
		if !in.End.After(window.Start) || !in.Start.Before(window.End) {
			// Zero-length intervals sitting inside the window still count.
			if !(in.IsEmpty() && window.Contains(in)) {
				continue
			}
		}
		if in.Start.Before(window.Start) {
			in.Start = window.Start
		}
		if in.End.After(window.End) {
			in.End = window.End
		}
		clipped = append(clipped, in)
	}
	return clipped
}
