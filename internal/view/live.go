package view

import (
	"slices"
	"sync/atomic"
	"time"

	"communitycal/internal/model"
	"communitycal/internal/normalize"
)

type snapshot struct {
	events     []model.Event
	byID       map[string]int
	categories []model.Category
	updatedAt  time.Time
}

// Live holds the most recent normalized snapshot. Readers never observe a
// partially applied update; the last delivered snapshot wins.
type Live struct {
	loc *time.Location
	cur atomic.Pointer[snapshot]
}

// NewLive returns an empty holder. loc is the display location used to take
// calendar dates of timestamps.
func NewLive(loc *time.Location) *Live {
	l := &Live{loc: loc}
	l.cur.Store(&snapshot{byID: map[string]int{}})
	return l
}

// OnSnapshot normalizes s and swaps it in. It matches the store.Feed
// subscriber signature.
func (l *Live) OnSnapshot(s model.Snapshot) {
	events := normalize.New(s.Categories, l.loc).All(s.Events)
	byID := make(map[string]int, len(events))
	for i, e := range events {
		if e.ID == "" {
			continue
		}
		if _, dup := byID[e.ID]; !dup {
			byID[e.ID] = i
		}
	}
	l.cur.Store(&snapshot{
		events:     events,
		byID:       byID,
		categories: slices.Clone(s.Categories),
		updatedAt:  time.Now(),
	})
}

// Events returns the current normalized events. Callers must not modify the
// returned slice.
func (l *Live) Events() []model.Event {
	return l.cur.Load().events
}

// Find looks an event up by id; with duplicate ids the first one wins.
func (l *Live) Find(id string) (model.Event, bool) {
	s := l.cur.Load()
	i, ok := s.byID[id]
	if !ok {
		return model.Event{}, false
	}
	return s.events[i], true
}

func (l *Live) Categories() []model.Category {
	return l.cur.Load().categories
}

// UpdatedAt is zero until the first snapshot arrives.
func (l *Live) UpdatedAt() time.Time {
	return l.cur.Load().updatedAt
}
