// Package view assembles the per-request calendar view models from a
// normalized event set.
package view

import (
	"strings"
	"time"

	"communitycal/internal/analytics"
	"communitycal/internal/caldate"
	"communitycal/internal/filter"
	"communitycal/internal/layout"
	"communitycal/internal/model"
)

type Mode string

const (
	ModeMonth Mode = "month"
	ModeWeek  Mode = "week"
	ModeDay   Mode = "day"
)

// ParseMode falls back to ModeMonth.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMonth, ModeWeek, ModeDay:
		return m
	}
	return ModeMonth
}

// State is what the user has selected on screen.
type State struct {
	// Date is the reference date; Invalid means today.
	Date        caldate.Date
	Mode        Mode
	Quick       string
	Search      string
	Advanced    filter.Advanced
	ShowPast    bool
	Granularity analytics.Granularity
}

type Options struct {
	WeekStart time.Weekday
	Lang      string
}

// Cell is one day of a month or week grid. Blank month cells have an
// Invalid date and no events.
type Cell struct {
	Date   caldate.Date
	Events []model.Event
}

type Model struct {
	Mode Mode
	Date caldate.Date

	// Cells is filled for month and week modes.
	Cells []Cell

	// Positioned and Hours are filled for day mode.
	Positioned []model.PositionedEvent
	Hours      []string

	Granularity analytics.Granularity
	Analytics   []analytics.Bucket
}

// Criteria converts a State into filter criteria without a date scope.
func (s State) Criteria(opts Options) filter.Criteria {
	return filter.Criteria{
		Quick:     s.Quick,
		Search:    s.Search,
		Advanced:  s.Advanced,
		ShowPast:  s.ShowPast,
		WeekStart: opts.WeekStart,
	}
}

// Build computes the model for st as seen by id at now. events must already
// be normalized. The analytics buckets always cover the reference month over
// the unscoped filtered set.
func Build(events []model.Event, st State, id model.Identity, opts Options, now time.Time) Model {
	ref := st.Date
	if !ref.Valid() {
		ref = caldate.FromTime(now)
	}
	mode := ParseMode(string(st.Mode))
	g := st.Granularity
	if g == "" {
		g = analytics.Daily
	}

	m := Model{Mode: mode, Date: ref, Granularity: g}
	base := st.Criteria(opts)

	switch mode {
	case ModeMonth:
		m.Cells = cells(events, caldate.MonthCells(ref, opts.WeekStart), base, id, now)
	case ModeWeek:
		m.Cells = cells(events, caldate.WeekDates(ref, opts.WeekStart), base, id, now)
	case ModeDay:
		c := base
		c.ViewDate = ref
		m.Positioned = layout.Day(filter.Apply(events, c, id, now))
		m.Hours = caldate.HourLabels()
	}

	m.Analytics = analytics.Aggregate(filter.Apply(events, base, id, now), g, ref)
	return m
}

func cells(events []model.Event, dates []caldate.Date, base filter.Criteria, id model.Identity, now time.Time) []Cell {
	out := make([]Cell, len(dates))
	for i, d := range dates {
		out[i].Date = d
		if !d.Valid() {
			continue
		}
		c := base
		c.ViewDate = d
		out[i].Events = filter.Apply(events, c, id, now)
	}
	return out
}
