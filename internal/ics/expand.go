package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"communitycal/internal/caldate"
	appLog "communitycal/internal/log"
	"communitycal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location is where occurrence dates and clock times are taken. Nil
	// means time.Local. All-day events keep their own calendar date.
	Location *time.Location

	// RangeStart and RangeEnd bound the occurrences, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps one series; zero means 5000.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded raw events in a deterministic order.
type ExpandResult struct {
	Events []model.RawEvent
	// Truncated lists UIDs that hit MaxOccurrencesPerEvent.
	Truncated []string
}

type occurrence struct {
	ev         ParsedEvent
	start, end time.Time
	// key identifies the instance within its series; it is the original,
	// pre-override start.
	key time.Time
}

// Expand turns parsed VEVENTs into one model.RawEvent per occurrence within
// the window. RRULE series honour EXDATE and RECURRENCE-ID overrides;
// cancelled instances are dropped.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	uids := make([]string, 0, len(baseByUID))
	for uid := range baseByUID {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		truncated := false
		for _, ev := range baseByUID[uid] {
			occs, hitCap := expandEvent(ev, overridesByUID[uid], cfg)
			truncated = truncated || hitCap
			for _, o := range occs {
				if o.ev.Cancelled {
					continue
				}
				result.Events = append(result.Events, toRawEvent(o, cfg.Location))
			}
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("expand: series truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingle(ev, overrides, cfg), false
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []occurrence {
	if !timeRangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []occurrence{withOverride(ev, overrides, ev.Start, ev.End)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]occurrence, bool) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	times := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]occurrence, 0, len(times))
	for _, start := range times {
		out = append(out, withOverride(ev, overrides, start, start.Add(dur)))
	}
	return out, hitCap
}

// withOverride swaps in the override whose RECURRENCE-ID matches start.
func withOverride(ev ParsedEvent, overrides []ParsedEvent, start, end time.Time) occurrence {
	o := occurrence{ev: ev, start: start, end: end, key: start}
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			o.ev, o.start, o.end = ov, ov.Start, ov.End
			break
		}
	}
	return o
}

// toRawEvent renders an occurrence in the stored-event shape. All-day
// events use their floating calendar dates with an exclusive end; timed
// events take date and clock from loc.
func toRawEvent(o occurrence, loc *time.Location) model.RawEvent {
	raw := model.RawEvent{
		ID:          occurrenceID(o),
		Title:       o.ev.Summary,
		Description: o.ev.Description,
		Location:    o.ev.Location,
		CategoryID:  o.ev.Feed.CategoryID,
		Settlement:  o.ev.Feed.Settlement,
		Status:      string(model.StatusActive),
	}

	if o.ev.AllDay {
		first := caldate.New(o.start.Year(), o.start.Month(), o.start.Day())
		last := caldate.New(o.end.Year(), o.end.Month(), o.end.Day()).AddDays(-1)
		if last.Before(first) {
			last = first
		}
		raw.StartDate = model.TextDate(first.String())
		raw.EndDate = model.TextDate(last.String())
		return raw
	}

	start, end := o.start.In(loc), o.end.In(loc)
	if end.After(start) && end.Hour() == 0 && end.Minute() == 0 {
		// An event ending at midnight belongs to the day it started.
		end = end.Add(-time.Minute)
	}
	raw.StartDate = model.TextDate(caldate.FromTime(start).String())
	raw.EndDate = model.TextDate(caldate.FromTime(end).String())
	raw.TimeFrom = start.Format("15:04")
	if end.After(start) {
		raw.TimeTo = end.Format("15:04")
	}
	return raw
}

// occurrenceID is a name-based UUID, stable across refreshes for the same
// feed, UID and instance.
func occurrenceID(o occurrence) string {
	name := o.ev.Feed.ID + "\x00" + o.ev.UID + "\x00" + o.key.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
