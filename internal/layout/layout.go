// Package layout places one day's events into side-by-side columns for the
// day timeline.
//
// Column assignment is greedy: an event's column is the number of earlier
// (by start time) events it overlaps, and its column count is one more than
// the number of events it overlaps in total. With chains such as A-B and B-C
// overlapping but A-C disjoint this uses more columns than an optimal
// interval colouring would; renderers rely on the current numbers, so keep
// it that way.
package layout

import (
	"fmt"
	"sort"

	"communitycal/internal/caldate"
	"communitycal/internal/model"
)

const defaultDuration = 60

type interval struct {
	start, end int
}

func (a interval) overlaps(b interval) bool {
	return a.start < b.end && b.start < a.end
}

// span returns the half-open minute interval used for collision checks.
// A missing or non-positive duration counts as one hour.
func span(e model.Event) interval {
	start, _ := caldate.ParseClock(e.TimeFrom)
	end, ok := caldate.ParseClock(e.TimeTo)
	if !ok || end <= start {
		end = start + defaultDuration
	}
	return interval{start: start, end: end}
}

// sorted returns a copy of events ordered by TimeFrom; ties keep input order.
func sorted(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return startKey(out[i]) < startKey(out[j])
	})
	return out
}

// startKey is the start minute; an unparseable TimeFrom sorts as midnight.
func startKey(e model.Event) int {
	m, ok := caldate.ParseClock(e.TimeFrom)
	if !ok {
		return 0
	}
	return m
}

// Overlaps returns, for each event in the given order, the indices of the
// other events whose intervals overlap it.
func Overlaps(events []model.Event) [][]int {
	spans := make([]interval, len(events))
	for i, e := range events {
		spans[i] = span(e)
	}
	out := make([][]int, len(events))
	for i := range spans {
		for j := range spans {
			if i != j && spans[i].overlaps(spans[j]) {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

// Day positions the events of a single day. The result is ordered by start
// time; empty input yields an empty slice.
func Day(events []model.Event) []model.PositionedEvent {
	ordered := sorted(events)
	overlaps := Overlaps(ordered)

	out := make([]model.PositionedEvent, 0, len(ordered))
	for i, e := range ordered {
		placedBefore := 0
		for _, j := range overlaps[i] {
			if j < i {
				placedBefore++
			}
		}
		total := len(overlaps[i])
		start, minutes, label := display(e)
		out = append(out, model.PositionedEvent{
			Event:           e,
			Column:          placedBefore,
			TotalColumns:    max(1, total+1),
			HasCollision:    total > 0,
			StartMinute:     start,
			DurationMinutes: minutes,
			DurationLabel:   label,
		})
	}
	return out
}

// display computes the rendered start and length. Unlike span it uses the
// real end time, so inverted ranges clamp to zero and get a "1h" label.
func display(e model.Event) (start, minutes int, label string) {
	start, _ = caldate.ParseClock(e.TimeFrom)
	end, ok := caldate.ParseClock(e.TimeTo)
	if !ok {
		return start, defaultDuration, DurationLabel(defaultDuration)
	}
	minutes = max(0, end-start)
	return start, minutes, DurationLabel(minutes)
}

// DurationLabel renders a minute count as "2h", "45m" or "1h 30m"; zero
// renders as "1h".
func DurationLabel(minutes int) string {
	if minutes <= 0 {
		return "1h"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
