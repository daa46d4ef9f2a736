// Package availability computes free meeting windows from busy intervals.
//
// The engine is a pure function of its inputs: busy intervals gathered from
// every participant are merged into a single timeline, the timeline is
// inverted against the query window and the resulting gaps are filtered by a
// minimum duration.
//
//	busy := []availability.Interval{
//	    {Start: nine, End: ten},
//	    {Start: ten, End: eleven},
//	}
//	free, err := availability.FreeWindows(busy, window, 30*time.Minute)
//
// Intervals are half-open, so touching busy blocks ([9:00,10:00) and
// [10:00,11:00)) merge into one block and never open a zero-length gap.
package availability
