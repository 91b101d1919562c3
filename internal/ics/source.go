package ics

import (
	"context"
	"fmt"
	"time"

	"communitycal/internal/model"
)

const (
	defaultHorizonDays  = 90
	defaultBackfillDays = 31
)

// Source exposes one feed as a snapshot source. It carries no categories;
// those come from the primary event store.
type Source struct {
	Feed     Feed
	Fetcher  *Fetcher
	Location *time.Location

	// HorizonDays and BackfillDays size the expansion window around now.
	HorizonDays  int
	BackfillDays int

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *Source) Name() string {
	return "ics:" + s.Feed.ID
}

func (s *Source) Load(ctx context.Context) (model.Snapshot, error) {
	res, err := s.Fetcher.Fetch(ctx, s.Feed)
	if err != nil {
		return model.Snapshot{}, err
	}
	parsed, err := Parse(s.Feed, res.Body)
	if err != nil {
		return model.Snapshot{}, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	horizon, backfill := s.HorizonDays, s.BackfillDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
	}
	if backfill <= 0 {
		backfill = defaultBackfillDays
	}

	out, err := Expand(parsed, ExpandConfig{
		Location:   s.Location,
		RangeStart: now.AddDate(0, 0, -backfill),
		RangeEnd:   now.AddDate(0, 0, horizon),
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("expand %s: %w", s.Feed.ID, err)
	}
	return model.Snapshot{Events: out.Events}, nil
}
