package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "communitycal/internal/log"
	"communitycal/internal/metrics"
	"communitycal/internal/model"
)

const refreshTimeout = 2 * time.Minute

// Poller loads every source, merges the results and publishes the merged
// snapshot. A source that fails keeps contributing its last good snapshot.
type Poller struct {
	hub

	sources []Source

	refreshMu sync.Mutex
	lastGood  map[int]model.Snapshot

	cron *cron.Cron
}

func NewPoller(sources ...Source) *Poller {
	return &Poller{
		sources:  sources,
		lastGood: make(map[int]model.Snapshot),
	}
}

// Refresh loads all sources once and publishes the merge. Nothing is
// published until at least one source has loaded successfully. The returned
// error joins the failures of this round.
func (p *Poller) Refresh(ctx context.Context) error {
	if len(p.sources) == 0 {
		return ErrNoSources
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	var errs []error
	for i, src := range p.sources {
		start := time.Now()
		s, err := src.Load(ctx)
		metrics.ObserveSourceLoad(src.Name(), start, err)
		if err != nil {
			appLog.Error("snapshot source failed; keeping last good data", err, "source", src.Name())
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		appLog.Debug("snapshot source loaded", "source", src.Name(), "events", len(s.Events), "categories", len(s.Categories))
		p.lastGood[i] = s
	}

	if len(p.lastGood) > 0 {
		merged := p.merge()
		appLog.Info("snapshot published", "events", len(merged.Events), "categories", len(merged.Categories), "failed_sources", len(errs))
		p.publish(merged)
	}
	return errors.Join(errs...)
}

// merge concatenates events in source order; categories are de-duplicated
// by id with the earliest source winning.
func (p *Poller) merge() model.Snapshot {
	var out model.Snapshot
	seen := make(map[string]bool)
	for i := range p.sources {
		s, ok := p.lastGood[i]
		if !ok {
			continue
		}
		out.Events = append(out.Events, s.Events...)
		for _, c := range s.Categories {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out.Categories = append(out.Categories, c)
		}
	}
	return out
}

// Start performs an initial refresh and then refreshes on the given cron
// schedule, evaluated in loc. A failed initial refresh is logged, not
// returned; an invalid schedule is returned.
func (p *Poller) Start(ctx context.Context, schedule string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(schedule, func() {
		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if err := p.Refresh(rctx); err != nil {
			appLog.Warn("scheduled refresh incomplete", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	if err := p.Refresh(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "err", err)
	}

	p.cron = c
	c.Start()
	appLog.Info("snapshot refresh scheduled", "schedule", schedule, "sources", len(p.sources))
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
