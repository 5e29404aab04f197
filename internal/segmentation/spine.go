package segmentation

import (
	"iter"
	"time"
)

// HourlySpine yields every whole UTC hour from start through now, inclusive.
// The sequence is lazy and may be ranged over any number of times.
// It is empty when now is before start.
func HourlySpine(start, now time.Time) iter.Seq[time.Time] {
	first := start.UTC().Truncate(time.Hour)
	last := now.UTC().Truncate(time.Hour)

	return func(yield func(time.Time) bool) {
		for ts := first; !ts.After(last); ts = ts.Add(time.Hour) {
			if !yield(ts) {
				return
			}
		}
	}
}

// SpineLength returns the number of timestamps HourlySpine(start, now) yields
func SpineLength(start, now time.Time) int {
	first := start.UTC().Truncate(time.Hour)
	last := now.UTC().Truncate(time.Hour)
	if last.Before(first) {
		return 0
	}
	return int(last.Sub(first)/time.Hour) + 1
}
