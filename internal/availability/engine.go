package availability

import (
	"fmt"
	"slices"
	"time"
)

// Merge collapses busy intervals into sorted, pairwise disjoint blocks.
//
// The input is not modified. Every interval is validated before merging; an
// interval that starts after it ends fails the whole call. Overlapping and
// touching intervals (a.End == b.Start) end up in the same block.
func Merge(busy []Interval) ([]Interval, error) {
	for idx, in := range busy {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("busy interval %d: %w", idx, err)
		}
	}
	if len(busy) == 0 {
		return nil, nil
	}

	sorted := slices.Clone(busy)
	slices.SortStableFunc(sorted, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	merged := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start.After(current.End) {
			merged = append(merged, current)
			current = next
			continue
		}
		if next.End.After(current.End) {
			current.End = next.End
		}
	}
	return append(merged, current), nil
}

// Invert returns the gaps between merged busy blocks within window.
//
// merged must be the output of Merge. With no busy blocks the whole window is
// free. Leading and trailing gaps are only emitted when they have a positive
// length.
func Invert(merged []Interval, window Interval) []Interval {
	if len(merged) == 0 {
		return []Interval{window}
	}

	free := make([]Interval, 0, len(merged)+1)
	if window.Start.Before(merged[0].Start) {
		free = append(free, Interval{Start: window.Start, End: merged[0].Start})
	}
	for i := 0; i < len(merged)-1; i++ {
		free = append(free, Interval{Start: merged[i].End, End: merged[i+1].Start})
	}
	if last := merged[len(merged)-1]; last.End.Before(window.End) {
		free = append(free, Interval{Start: last.End, End: window.End})
	}
	return free
}

// LongerThan keeps the intervals strictly longer than minDuration.
// A window of exactly minDuration is rejected.
func LongerThan(free []Interval, minDuration time.Duration) []Interval {
	kept := make([]Interval, 0, len(free))
	for _, in := range free {
		if in.Duration() > minDuration {
			kept = append(kept, in)
		}
	}
	return kept
}

// MergeWithin validates busy, clips it to window and merges the result.
// Blocks entirely outside window are dropped.
func MergeWithin(busy []Interval, window Interval) ([]Interval, error) {
	for idx, in := range busy {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("busy interval %d: %w", idx, err)
		}
	}
	return Merge(Clip(busy, window))
}

// FreeWindows merges busy within window, inverts it and drops every gap
// whose length does not exceed minDuration.
func FreeWindows(busy []Interval, window Interval, minDuration time.Duration) ([]Interval, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	merged, err := MergeWithin(busy, window)
	if err != nil {
		return nil, err
	}
	return LongerThan(Invert(merged, window), minDuration), nil
}
