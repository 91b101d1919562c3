// Package normalize turns stored event documents into model.Event values with
// canonical dates, padded times and a resolved category.
package normalize

import (
	"strings"
	"time"

	"communitycal/internal/caldate"
	"communitycal/internal/model"
)

const (
	UnknownCategoryName  = "Unknown Category"
	UnknownCategoryColor = "#9e9e9e"
)

// Normalizer is safe for concurrent use once built; it never mutates its
// lookup after New.
type Normalizer struct {
	categories map[string]model.Category
	loc        *time.Location
}

// New builds a Normalizer. Timestamps are converted into loc before their
// calendar date is taken; nil means time.Local.
func New(categories []model.Category, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	lookup := make(map[string]model.Category, len(categories))
	for _, c := range categories {
		if c.ID == "" {
			continue
		}
		if _, dup := lookup[c.ID]; !dup {
			lookup[c.ID] = c
		}
	}
	return &Normalizer{categories: lookup, loc: loc}
}

// All normalizes a full snapshot, preserving order.
func (n *Normalizer) All(raws []model.RawEvent) []model.Event {
	out := make([]model.Event, 0, len(raws))
	for _, r := range raws {
		out = append(out, n.Event(r))
	}
	return out
}

// Event normalizes one document. It never fails: unusable fields degrade to
// their "missing" form.
func (n *Normalizer) Event(raw model.RawEvent) model.Event {
	e := model.Event{
		ID:           strings.TrimSpace(raw.ID),
		Title:        raw.Title,
		Description:  raw.Description,
		Location:     raw.Location,
		TimeFrom:     clock(raw.TimeFrom),
		TimeTo:       clock(raw.TimeTo),
		Status:       model.Status(strings.ToLower(strings.TrimSpace(raw.Status))),
		CreatedBy:    raw.CreatedBy,
		Participants: dedupe(raw.Participants),
		Settlement:   strings.TrimSpace(raw.Settlement),
		Capacity:     max(raw.Capacity, raw.MaxParticipants, 0),
	}

	if raw.CreatedAt.Time != nil {
		t := raw.CreatedAt.Time.In(n.loc)
		e.CreatedAt = &t
	}

	e.StartDate = n.date(raw.StartDate)
	if !e.StartDate.Valid() {
		e.StartDate = n.date(raw.Date)
	}
	if !e.StartDate.Valid() {
		e.StartDate = n.date(raw.CreatedAt)
	}

	// An end date alone does not make an event dated.
	e.EndDate = n.date(raw.EndDate)
	if !e.StartDate.Valid() || !e.EndDate.Valid() || e.EndDate.Before(e.StartDate) {
		e.EndDate = e.StartDate
	}

	e.CategoryID = strings.TrimSpace(raw.CategoryID)
	if e.CategoryID == "" {
		e.CategoryID = strings.TrimSpace(raw.LegacyCategory)
	}
	e.Category = n.category(e.CategoryID)

	return e
}

// category resolves id against the lookup, substituting a placeholder for
// unknown ids.
func (n *Normalizer) category(id string) model.Category {
	if c, ok := n.categories[id]; ok {
		return c
	}
	return model.Category{
		ID:    id,
		Names: map[string]string{"en": UnknownCategoryName},
		Color: UnknownCategoryColor,
	}
}

func (n *Normalizer) date(d model.RawDate) caldate.Date {
	if d.Text != "" {
		return caldate.Parse(d.Text)
	}
	if d.Time != nil {
		return caldate.FromTime(d.Time.In(n.loc))
	}
	return caldate.Invalid
}

func clock(s string) string {
	m, ok := caldate.ParseClock(s)
	if !ok {
		return ""
	}
	return caldate.FormatClock(m)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
