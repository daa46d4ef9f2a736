package availability

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// at returns the instant hh:mm on the test day.
func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// iv builds an interval from minute offsets relative to the test day.
func iv(start, end int) Interval {
	return Interval{Start: day.Add(time.Duration(start) * time.Minute), End: day.Add(time.Duration(end) * time.Minute)}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{name: "empty", in: nil, want: nil},
		{name: "single", in: []Interval{iv(0, 10)}, want: []Interval{iv(0, 10)}},
		{name: "touching", in: []Interval{iv(0, 10), iv(10, 20)}, want: []Interval{iv(0, 20)}},
		{name: "partial overlap", in: []Interval{iv(0, 15), iv(10, 20)}, want: []Interval{iv(0, 20)}},
		{name: "containment", in: []Interval{iv(0, 60), iv(10, 20)}, want: []Interval{iv(0, 60)}},
		{name: "unsorted", in: []Interval{iv(30, 40), iv(0, 10)}, want: []Interval{iv(0, 10), iv(30, 40)}},
		{name: "zero length inside block", in: []Interval{iv(0, 10), iv(5, 5)}, want: []Interval{iv(0, 10)}},
		{
			name: "chain",
			in:   []Interval{iv(50, 70), iv(0, 10), iv(5, 30), iv(30, 35), iv(80, 90)},
			want: []Interval{iv(0, 35), iv(50, 70), iv(80, 90)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	in := []Interval{iv(30, 40), iv(0, 10)}
	_, err := Merge(in)
	require.NoError(t, err)
	assert.Equal(t, []Interval{iv(30, 40), iv(0, 10)}, in)
}

func TestMerge_RejectsInvertedInterval(t *testing.T) {
	_, err := Merge([]Interval{iv(0, 10), iv(20, 15)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestMerge_SortedDisjointIsIdentity(t *testing.T) {
	in := []Interval{iv(0, 10), iv(11, 20), iv(40, 41), iv(100, 200)}
	got, err := Merge(in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestMerge_RandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		in := make([]Interval, n)
		covered := make(map[int]bool)
		for i := range in {
			start := rng.Intn(100)
			end := start + rng.Intn(20)
			in[i] = iv(start, end)
			for m := start; m < end; m++ {
				covered[m] = true
			}
		}

		got, err := Merge(in)
		require.NoError(t, err)

		gotCovered := make(map[int]bool)
		for i, block := range got {
			if i > 0 {
				assert.True(t, block.Start.After(got[i-1].End), "blocks must be sorted and separated: %v", got)
			}
			for m := block.Start.Sub(day) / time.Minute; m < block.End.Sub(day)/time.Minute; m++ {
				gotCovered[int(m)] = true
			}
		}
		assert.Equal(t, covered, gotCovered, "coverage mismatch for %v", in)
	}
}

func TestInvert(t *testing.T) {
	window := iv(0, 100)

	tests := []struct {
		name   string
		merged []Interval
		want   []Interval
	}{
		{name: "no busy time", merged: nil, want: []Interval{window}},
		{name: "busy in the middle", merged: []Interval{iv(40, 60)}, want: []Interval{iv(0, 40), iv(60, 100)}},
		{name: "busy at start", merged: []Interval{iv(0, 30)}, want: []Interval{iv(30, 100)}},
		{name: "busy at end", merged: []Interval{iv(70, 100)}, want: []Interval{iv(0, 70)}},
		{name: "fully busy", merged: []Interval{iv(0, 100)}, want: []Interval{}},
		{
			name:   "several blocks",
			merged: []Interval{iv(10, 20), iv(30, 40), iv(90, 100)},
			want:   []Interval{iv(0, 10), iv(20, 30), iv(40, 90)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Invert(tt.merged, window))
		})
	}
}

func TestInvert_PartitionsWindow(t *testing.T) {
	window := iv(0, 120)
	merged, err := Merge([]Interval{iv(5, 15), iv(10, 30), iv(60, 61), iv(100, 120)})
	require.NoError(t, err)
	free := Invert(merged, window)

	all := append(append([]Interval{}, merged...), free...)
	sortedAll, err := Merge(all)
	require.NoError(t, err)
	assert.Equal(t, []Interval{window}, sortedAll)

	var total time.Duration
	for _, in := range all {
		total += in.Duration()
	}
	assert.Equal(t, window.Duration(), total, "free and busy must not overlap")
}

func TestLongerThan_IsStrict(t *testing.T) {
	free := []Interval{iv(0, 30), iv(40, 71), iv(80, 80)}

	got := LongerThan(free, 30*time.Minute)
	assert.Equal(t, []Interval{iv(40, 71)}, got)

	got = LongerThan(free, 30*time.Minute-time.Nanosecond)
	assert.Equal(t, []Interval{iv(0, 30), iv(40, 71)}, got)

	got = LongerThan(free, 0)
	assert.Equal(t, []Interval{iv(0, 30), iv(40, 71)}, got, "zero-length gaps never qualify")
}

func TestFreeWindows_WorkdayScenario(t *testing.T) {
	busy := []Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(14, 0), End: at(15, 0)},
	}
	window := Interval{Start: at(9, 0), End: at(18, 0)}

	free, err := FreeWindows(busy, window, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.Equal(t, Interval{Start: at(11, 0), End: at(14, 0)}, free[0])
	assert.Equal(t, Interval{Start: at(15, 0), End: at(18, 0)}, free[1])
	assert.Equal(t, 3*time.Hour, free[0].Duration())
	assert.Equal(t, 3*time.Hour, free[1].Duration())
}

func TestFreeWindows_LunchSplit(t *testing.T) {
	window := Interval{Start: at(0, 0), End: at(24, 0)}
	// One participant is free all day, the other is out for lunch.
	var alice []Interval
	bob := []Interval{{Start: at(12, 0), End: at(13, 0)}}

	merged, err := Merge(append(alice, bob...))
	require.NoError(t, err)
	assert.Equal(t, bob, merged)

	free, err := FreeWindows(append(alice, bob...), window, 0)
	require.NoError(t, err)
	assert.Equal(t, []Interval{
		{Start: at(0, 0), End: at(12, 0)},
		{Start: at(13, 0), End: at(24, 0)},
	}, free)
}

// The duration boundary is exclusive on purpose: a gap exactly as long as the
// requested meeting is not offered.
func TestFreeWindows_ExactDurationIsExcluded(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(10, 0)}

	free, err := FreeWindows(nil, window, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, free)

	free, err = FreeWindows(nil, window, time.Hour-time.Second)
	require.NoError(t, err)
	assert.Equal(t, []Interval{window}, free)
}

func TestFreeWindows_InvalidWindow(t *testing.T) {
	_, err := FreeWindows(nil, iv(10, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestFreeWindows_BusyOutsideWindow(t *testing.T) {
	tests := []struct {
		name string
		busy []Interval
		want []Interval
	}{
		{
			name: "blocks before and after are ignored",
			busy: []Interval{iv(-20, -10), iv(50, 60), iv(150, 160)},
			want: []Interval{iv(0, 50), iv(60, 100)},
		},
		{
			name: "blocks crossing the edges are clipped",
			busy: []Interval{iv(-30, 10), iv(90, 130)},
			want: []Interval{iv(10, 90)},
		},
		{
			name: "block covering the window leaves nothing",
			busy: []Interval{iv(-60, 160)},
			want: []Interval{},
		},
		{
			name: "blocks touching the edges from outside",
			busy: []Interval{iv(-10, 0), iv(100, 110)},
			want: []Interval{iv(0, 100)},
		},
	}

	window := iv(0, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free, err := FreeWindows(tt.busy, window, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, free)
			for _, f := range free {
				assert.True(t, window.Contains(f), "%s escapes %s", f, window)
			}
		})
	}
}

func TestMergeWithin(t *testing.T) {
	merged, err := MergeWithin([]Interval{iv(150, 160), iv(-20, -10), iv(40, 60), iv(50, 120)}, iv(0, 100))
	require.NoError(t, err)
	assert.Equal(t, []Interval{iv(40, 100)}, merged)

	_, err = MergeWithin([]Interval{iv(200, 150)}, iv(0, 100))
	assert.ErrorIs(t, err, ErrInvalidInterval, "inverted blocks fail even outside the window")
}

func TestClip(t *testing.T) {
	window := iv(60, 120)

	got := Clip([]Interval{
		iv(0, 30),    // before
		iv(30, 70),   // crosses start
		iv(80, 90),   // inside
		iv(110, 150), // crosses end
		iv(120, 130), // touches end from outside
		iv(0, 200),   // covers window
	}, window)

	assert.Equal(t, []Interval{iv(60, 70), iv(80, 90), iv(110, 120), iv(60, 120)}, got)
}

func TestInterval_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		in   Interval
		want bool
	}{
		{name: "zero length", in: iv(10, 10), want: true},
		{name: "positive length", in: iv(10, 11), want: false},
		{name: "inverted", in: iv(11, 10), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.IsEmpty())
		})
	}
}

func TestClip_DropsInvertedOutsideWindow(t *testing.T) {
	got := Clip([]Interval{iv(130, 125), iv(70, 70)}, iv(60, 120))
	assert.Equal(t, []Interval{iv(70, 70)}, got)
}

func TestInterval_Validate(t *testing.T) {
	assert.NoError(t, iv(0, 0).Validate())
	assert.NoError(t, iv(0, 1).Validate())
	assert.ErrorIs(t, iv(1, 0).Validate(), ErrInvalidInterval)
}
