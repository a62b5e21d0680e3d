package availability

import (
	"sort"
	"time"

	"terminbuch/internal/models"
)

// Interval is a half-open [Start, End) span on a staff calendar. All
// intervals for one salon share the salon's location.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// overlapsAny reports whether [start, end) intersects any busy interval.
func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// Normalize sorts intervals and merges overlapping or touching neighbors.
func Normalize(in []Interval) []Interval {
	if len(in) < 2 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := in[:1]
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// ChainSpan computes the occupied minutes of an ordered service chain. The
// chain covers all durations plus one max(after_i, before_j) gap per inner
// boundary; the lead buffer of the first service and the trail buffer of the
// last widen the footprint but are not part of the stored interval.
func ChainSpan(services []*models.Service) (chain, lead, trail int) {
	if len(services) == 0 {
		return 0, 0, 0
	}
	for i, svc := range services {
		chain += svc.BaseDurationMinutes
		if i < len(services)-1 {
			gap := svc.BufferAfterMinutes
			if next := services[i+1].BufferBeforeMinutes; next > gap {
				gap = next
			}
			chain += gap
		}
	}
	return chain, services[0].BufferBeforeMinutes, services[len(services)-1].BufferAfterMinutes
}

// Fits reports whether a chain starting at s sits inside the working window
// with room for its lead and trail buffers, without touching busy time.
// Existing busy intervals arrive already widened by their own buffers; only
// the chain itself is checked against them.
func Fits(s time.Time, chain, lead, trail int, winStart, winEnd time.Time, busy []Interval) bool {
	leadStart := s.Add(-time.Duration(lead) * time.Minute)
	chainEnd := s.Add(time.Duration(chain) * time.Minute)
	trailEnd := chainEnd.Add(time.Duration(trail) * time.Minute)

	if leadStart.Before(winStart) || trailEnd.After(winEnd) {
		return false
	}
	return !overlapsAny(s, chainEnd, busy)
}
