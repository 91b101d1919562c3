// Package filter projects a normalized event collection onto the subset a
// caller may see for a given view. Every stage only removes events.
package filter

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"communitycal/internal/caldate"
	"communitycal/internal/model"
)

// Quick filter values.
const (
	QuickAll      = "all"
	QuickCreated  = "created"
	QuickJoined   = "joined"
	QuickPending  = "pending"
	QuickUpcoming = "upcoming"
)

// Advanced status values beyond plain status names.
const (
	StatusAll        = "all"
	StatusApproved   = "approved"
	StatusMyPending  = "my-pending"
	StatusMyApproved = "my-approved"
)

// MySettlement resolves against the caller's own settlement.
const MySettlement = "my-settlement"

// Date range values.
const (
	RangeToday     = "today"
	RangeTomorrow  = "tomorrow"
	RangeThisWeek  = "this-week"
	RangeNextWeek  = "next-week"
	RangeThisMonth = "this-month"
)

// Advanced is the richer filter panel state.
type Advanced struct {
	Status     string `json:"status,omitempty"`
	Category   string `json:"category,omitempty"`
	Settlement string `json:"settlement,omitempty"`
	DateRange  string `json:"date_range,omitempty"`
}

// Criteria is everything the engine needs besides the events, the caller and
// the clock.
type Criteria struct {
	// ViewDate scopes to events covering one day; Invalid means no scope.
	ViewDate caldate.Date
	Quick    string
	Search   string
	Advanced Advanced
	ShowPast bool
	// WeekStart anchors the this-week / next-week ranges.
	WeekStart time.Weekday
}

type predicate func(model.Event) bool

// Apply runs the stages in a fixed order: date scope, role visibility,
// status, category, settlement, date range, search, past exclusion. The
// result preserves input order and is always a subset of events.
func Apply(events []model.Event, c Criteria, id model.Identity, now time.Time) []model.Event {
	today := caldate.FromTime(now)
	stages := []predicate{
		dateScope(c, today),
		func(e model.Event) bool { return Visible(e, id) },
		status(c, id),
		category(c.Advanced.Category),
		settlement(c.Advanced.Settlement, id),
		dateRange(c.Advanced.DateRange, today, c.WeekStart),
		search(c.Search),
	}
	if !c.ShowPast {
		stages = append(stages, notPast(now))
	}

	out := slices.Clone(events)
	for _, keep := range stages {
		if keep == nil {
			continue
		}
		out = narrow(out, keep)
	}
	return out
}

func narrow(events []model.Event, keep predicate) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Visible applies role visibility alone. It is also what guards lookups of a
// single event by id.
func Visible(e model.Event, id model.Identity) bool {
	mine := id.UserID != "" && e.CreatedBy == id.UserID
	switch id.Role {
	case model.RoleSuperAdmin:
		return true
	case model.RoleAdmin:
		if e.Status != model.StatusPending {
			return true
		}
		return mine || (id.Settlement != "" && e.Settlement == id.Settlement)
	default:
		if e.Status == model.StatusPending {
			return mine
		}
		return mine || e.HasParticipant(id.UserID) || e.Status.Approved()
	}
}

func dateScope(c Criteria, today caldate.Date) predicate {
	if c.ViewDate.Valid() {
		return func(e model.Event) bool { return e.Covers(c.ViewDate) }
	}
	if c.Quick == QuickUpcoming {
		return func(e model.Event) bool {
			return e.Dated() && !e.StartDate.Before(today)
		}
	}
	return nil
}

func status(c Criteria, id model.Identity) predicate {
	quick := quickStatus(c.Quick, id)
	adv := advancedStatus(c.Advanced.Status, id)
	switch {
	case quick == nil:
		return adv
	case adv == nil:
		return quick
	}
	return func(e model.Event) bool { return quick(e) && adv(e) }
}

func quickStatus(q string, id model.Identity) predicate {
	switch q {
	case QuickCreated:
		return func(e model.Event) bool { return id.UserID != "" && e.CreatedBy == id.UserID }
	case QuickJoined:
		return func(e model.Event) bool { return e.HasParticipant(id.UserID) }
	case QuickPending:
		return func(e model.Event) bool { return e.Status == model.StatusPending }
	}
	return nil
}

func advancedStatus(s string, id model.Identity) predicate {
	mine := func(e model.Event) bool { return id.UserID != "" && e.CreatedBy == id.UserID }
	switch s {
	case "", StatusAll:
		return nil
	case StatusApproved:
		return func(e model.Event) bool { return e.Status.Approved() }
	case StatusMyPending:
		return func(e model.Event) bool { return mine(e) && e.Status == model.StatusPending }
	case StatusMyApproved:
		return func(e model.Event) bool { return mine(e) && e.Status.Approved() }
	}
	if st := model.Status(s); st.Known() {
		return func(e model.Event) bool { return e.Status == st }
	}
	return nil
}

func category(want string) predicate {
	want = strings.TrimSpace(want)
	if want == "" || want == QuickAll {
		return nil
	}
	folded := fold(want)
	return func(e model.Event) bool {
		if e.CategoryID == want || e.Category.ID == want {
			return true
		}
		for _, name := range e.Category.Names {
			if name != "" && fold(name) == folded {
				return true
			}
		}
		return false
	}
}

func settlement(want string, id model.Identity) predicate {
	want = strings.TrimSpace(want)
	switch want {
	case "", QuickAll:
		return nil
	case MySettlement:
		return func(e model.Event) bool {
			return id.Settlement != "" && e.Settlement == id.Settlement
		}
	}
	return func(e model.Event) bool { return e.Settlement == want }
}

func dateRange(r string, today caldate.Date, weekStart time.Weekday) predicate {
	from, to, ok := Window(r, today, weekStart)
	if !ok {
		return nil
	}
	return func(e model.Event) bool {
		return e.Dated() && !e.StartDate.After(to) && !e.LastDay().Before(from)
	}
}

// Window returns the inclusive date window of a named range relative to
// today. ok is false for unknown names.
func Window(r string, today caldate.Date, weekStart time.Weekday) (from, to caldate.Date, ok bool) {
	switch r {
	case RangeToday:
		return today, today, true
	case RangeTomorrow:
		d := today.AddDays(1)
		return d, d, true
	case RangeThisWeek:
		start := caldate.WeekStartOf(today, weekStart)
		return start, start.AddDays(6), true
	case RangeNextWeek:
		start := caldate.WeekStartOf(today, weekStart).AddDays(7)
		return start, start.AddDays(6), true
	case RangeThisMonth:
		first := today.FirstOfMonth()
		last := caldate.New(today.Year(), today.Month(), caldate.DaysInMonth(today.Year(), today.Month()))
		return first, last, true
	}
	return caldate.Invalid, caldate.Invalid, false
}

func search(term string) predicate {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	needle := fold(term)
	return func(e model.Event) bool {
		fields := []string{e.Title, e.Description, e.Location}
		for _, name := range e.Category.Names {
			fields = append(fields, name)
		}
		for _, f := range fields {
			if f != "" && strings.Contains(fold(f), needle) {
				return true
			}
		}
		return false
	}
}

// notPast keeps events whose last moment is not strictly before now.
func notPast(now time.Time) predicate {
	return func(e model.Event) bool {
		end, ok := EndInstant(e, now.Location())
		return ok && !end.Before(now)
	}
}

// EndInstant is the moment an event is over: its last day at timeTo, else
// timeFrom, else 23:59.
func EndInstant(e model.Event, loc *time.Location) (time.Time, bool) {
	if !e.Dated() {
		return time.Time{}, false
	}
	minute := 23*60 + 59
	if m, ok := caldate.ParseClock(e.TimeTo); ok {
		minute = m
	} else if m, ok := caldate.ParseClock(e.TimeFrom); ok {
		minute = m
	}
	return e.LastDay().In(loc).Add(time.Duration(minute) * time.Minute), true
}

func fold(s string) string {
	return cases.Fold().String(s)
}
