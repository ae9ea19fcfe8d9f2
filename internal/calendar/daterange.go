package calendar

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Truncate(start), End: Truncate(end)}
}

func (r DateRange) IsValid() bool {
	return !r.End.Before(r.Start)
}

// Days counts both endpoints.
func (r DateRange) Days() int {
	if !r.IsValid() {
		return 0
	}
	return int(r.End.Sub(r.Start)/day) + 1
}

func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// Overlap returns the common part of both ranges.
func (r DateRange) Overlap(o DateRange) (DateRange, bool) {
	start := r.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := r.End
	if o.End.Before(end) {
		end = o.End
	}
	out := DateRange{Start: start, End: end}
	return out, out.IsValid()
}

// RangeOverlapAndRemainder returns the overlap of a and b and the parts of a left outside b.
// ok is false when the ranges do not meet; remainders is then empty.
func RangeOverlapAndRemainder(a, b DateRange) (overlap DateRange, remainders []DateRange, ok bool) {
	overlap, ok = a.Overlap(b)
	if !ok {
		return DateRange{}, nil, false
	}
	return overlap, SubtractRangeFromRange(a, overlap), true
}

// SubtractRangeFromRange removes sub from r, returning zero, one or two pieces.
func SubtractRangeFromRange(r, sub DateRange) []DateRange {
	overlap, ok := r.Overlap(sub)
	if !ok {
		return []DateRange{r}
	}
	var out []DateRange
	if overlap.Start.After(r.Start) {
		out = append(out, DateRange{Start: r.Start, End: overlap.Start.Add(-day)})
	}
	if overlap.End.Before(r.End) {
		out = append(out, DateRange{Start: overlap.End.Add(day), End: r.End})
	}
	return out
}

// SubtractRangesFromRanges removes every subtrahend from every range, keeping start order.
func SubtractRangesFromRanges(ranges, subtract []DateRange) []DateRange {
	result := append([]DateRange(nil), ranges...)
	for _, sub := range subtract {
		next := make([]DateRange, 0, len(result))
		for _, r := range result {
			next = append(next, SubtractRangeFromRange(r, sub)...)
		}
		result = next
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result
}

// SplitDateRange cuts r on the first day of anchor month of every year it spans.
func SplitDateRange(r DateRange, anchor time.Month) []DateRange {
	if !r.IsValid() {
		return nil
	}
	var out []DateRange
	start := r.Start
	for {
		boundary := Date(start.Year(), anchor, 1)
		if !boundary.After(start) {
			boundary = Date(start.Year()+1, anchor, 1)
		}
		if boundary.After(r.End) {
			out = append(out, DateRange{Start: start, End: r.End})
			return out
		}
		out = append(out, DateRange{Start: start, End: boundary.Add(-day)})
		start = boundary
	}
}

// Span is a possibly open-ended validity window; a nil bound is unbounded.
type Span struct {
	Start *time.Time
	End   *time.Time
}

func (s Span) Overlaps(r DateRange) bool {
	if s.Start != nil && s.Start.After(r.End) {
		return false
	}
	if s.End != nil && s.End.Before(r.Start) {
		return false
	}
	return true
}

// Clamp intersects the span with r.
func (s Span) Clamp(r DateRange) (DateRange, bool) {
	out := r
	if s.Start != nil && s.Start.After(out.Start) {
		out.Start = Truncate(*s.Start)
	}
	if s.End != nil && s.End.Before(out.End) {
		out.End = Truncate(*s.End)
	}
	return out, out.IsValid()
}

type Group[T any] struct {
	Range DateRange
	Items []T
}

// GroupItemsInPeriodByDateRange splits period at every item boundary and returns the
// sub-ranges with the items active on each. Sub-ranges without items are omitted.
func GroupItemsInPeriodByDateRange[T any](items []T, spanOf func(T) Span, period DateRange) []Group[T] {
	if !period.IsValid() {
		return nil
	}
	bounds := map[time.Time]struct{}{
		period.Start:        {},
		period.End.Add(day): {},
	}
	for _, item := range items {
		span := spanOf(item)
		if span.Start != nil {
			s := Truncate(*span.Start)
			if s.After(period.Start) && !s.After(period.End) {
				bounds[s] = struct{}{}
			}
		}
		if span.End != nil {
			e := Truncate(*span.End).Add(day)
			if e.After(period.Start) && !e.After(period.End) {
				bounds[e] = struct{}{}
			}
		}
	}

	sorted := make([]time.Time, 0, len(bounds))
	for b := range bounds {
		sorted = append(sorted, b)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var groups []Group[T]
	for i := 0; i+1 < len(sorted); i++ {
		r := DateRange{Start: sorted[i], End: sorted[i+1].Add(-day)}
		var active []T
		for _, item := range items {
			if spanOf(item).Overlaps(r) {
				active = append(active, item)
			}
		}
		if len(active) > 0 {
			groups = append(groups, Group[T]{Range: r, Items: active})
		}
	}
	return groups
}
