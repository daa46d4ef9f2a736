package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teemow/meetwhen/internal/availability"
)

// ErrInvalidQuery is returned for queries rejected before any fetch happens.
var ErrInvalidQuery = errors.New("invalid availability query")

// Query asks for the common free windows of a set of identities.
type Query struct {
	Identities  []string
	Window      availability.Interval
	MinDuration time.Duration
}

// NewQuery builds a query whose window starts at now and lasts period.
func NewQuery(identities []string, now time.Time, period, minDuration time.Duration) (Query, error) {
	if period < 0 {
		return Query{}, fmt.Errorf("%w: negative period %s", ErrInvalidQuery, period)
	}
	q := Query{
		Identities:  identities,
		Window:      availability.NewInterval(now, now.Add(period)),
		MinDuration: minDuration,
	}
	return q.Normalize()
}

// Normalize validates q and returns a copy with identities deduplicated and
// sorted, so fan-out and error selection are deterministic.
func (q Query) Normalize() (Query, error) {
	if len(q.Identities) == 0 {
		return Query{}, fmt.Errorf("%w: no identities", ErrInvalidQuery)
	}
	for i, id := range q.Identities {
		if id == "" {
			return Query{}, fmt.Errorf("%w: identity %d is empty", ErrInvalidQuery, i)
		}
	}
	if q.MinDuration < 0 {
		return Query{}, fmt.Errorf("%w: negative minimum duration %s", ErrInvalidQuery, q.MinDuration)
	}
	if err := q.Window.Validate(); err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	ids := slices.Clone(q.Identities)
	slices.Sort(ids)
	q.Identities = slices.Compact(ids)
	return q, nil
}
