// Package store delivers full event snapshots to subscribers. A snapshot
// always replaces the previous one; there are no incremental updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	appLog "communitycal/internal/log"
	"communitycal/internal/model"
)

// ErrNoSources is returned by Poller.Refresh when nothing is configured.
var ErrNoSources = errors.New("store: no snapshot sources configured")

// Unsubscribe stops delivery to one subscriber. Calling it more than once
// is a no-op.
type Unsubscribe func()

// Feed is a push-based snapshot stream.
type Feed interface {
	// Subscribe registers fn. If a snapshot has already been published, fn
	// receives it before Subscribe returns. fn must not call Subscribe.
	Subscribe(fn func(model.Snapshot)) Unsubscribe
}

// Source produces a complete snapshot on demand.
type Source interface {
	Name() string
	Load(ctx context.Context) (model.Snapshot, error)
}

// hub fans snapshots out to subscribers. deliver serializes deliveries so a
// new subscriber's initial snapshot can never overtake a newer publish.
type hub struct {
	deliver sync.Mutex

	mu     sync.Mutex
	nextID int
	subs   map[int]func(model.Snapshot)
	order  []int
	latest *model.Snapshot
}

func (h *hub) Subscribe(fn func(model.Snapshot)) Unsubscribe {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(model.Snapshot))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)
	latest := h.latest
	h.mu.Unlock()

	if latest != nil {
		fn(*latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (h *hub) publish(s model.Snapshot) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	h.latest = &s
	fns := make([]func(model.Snapshot), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Memory is a Feed fed by explicit Publish calls.
type Memory struct {
	hub
}

func NewMemory() *Memory {
	return &Memory{}
}

// Publish replaces the current snapshot and notifies every subscriber in
// subscription order.
func (m *Memory) Publish(s model.Snapshot) {
	m.publish(s)
}

// FileSource reads a JSON document of the form
// {"events": [...], "categories": [...]}.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string {
	return "file:" + f.Path
}

func (f FileSource) Load(_ context.Context) (model.Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}
	var doc struct {
		Events     []json.RawMessage `json:"events"`
		Categories []json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", f.Path, err)
	}
	s := model.Snapshot{
		Events:     decodeEach[model.RawEvent](doc.Events, f.Path, "event"),
		Categories: decodeEach[model.Category](doc.Categories, f.Path, "category"),
	}
	return s, nil
}

// decodeEach decodes records one by one. A malformed record is logged and
// skipped so the rest of the snapshot still renders.
func decodeEach[T any](records []json.RawMessage, path, kind string) []T {
	out := make([]T, 0, len(records))
	for i, rec := range records {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			appLog.Warn("skipping malformed record", "path", path, "kind", kind, "index", i, "err", err)
			continue
		}
		out = append(out, v)
	}
	return out
}
