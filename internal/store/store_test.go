package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitycal/internal/model"
)

type fakeSource struct {
	name string

	mu   sync.Mutex
	snap model.Snapshot
	err  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Load(context.Context) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeSource) set(s model.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = s, err
}

// recorder collects delivered snapshots.
type recorder struct {
	mu  sync.Mutex
	got []model.Snapshot
}

func (r *recorder) fn(s model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) all() []model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Snapshot(nil), r.got...)
}

func eventIDs(s model.Snapshot) []string {
	out := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		out = append(out, e.ID)
	}
	return out
}

func TestMemoryDeliversLatestToNewSubscribers(t *testing.T) {
	m := NewMemory()
	var early recorder
	m.Subscribe(early.fn)
	assert.Empty(t, early.all(), "nothing published yet")

	m.Publish(model.Snapshot{Events: []model.RawEvent{{ID: "a"}}})
	m.Publish(model.Snapshot{Events: []model.RawEvent{{ID: "b"}}})
	require.Len(t, early.all(), 2)

	var late recorder
	m.Subscribe(late.fn)
	require.Len(t, late.all(), 1)
	assert.Equal(t, []string{"b"}, eventIDs(late.all()[0]))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := NewMemory()
	var a, b recorder
	unsubA := m.Subscribe(a.fn)
	m.Subscribe(b.fn)

	unsubA()
	unsubA()
	m.Publish(model.Snapshot{})

	assert.Empty(t, a.all())
	assert.Len(t, b.all(), 1)
}

func TestUnsubscribeFromCallback(t *testing.T) {
	m := NewMemory()
	calls := 0
	var unsub Unsubscribe
	unsub = m.Subscribe(func(model.Snapshot) {
		calls++
		unsub()
	})
	m.Publish(model.Snapshot{})
	m.Publish(model.Snapshot{})
	assert.Equal(t, 1, calls)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	doc := `{
  "events": [{"id": "e1", "title": "Bingo", "startDate": "15-06-2025", "createdAt": {"_seconds": 1718000000, "_nanoseconds": 0}}],
  "categories": [{"id": "games", "names": {"en": "Games", "he": "משחקים"}, "color": "#ff0000"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	src := FileSource{Path: path}
	assert.Equal(t, "file:"+path, src.Name())
	s, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "15-06-2025", s.Events[0].StartDate.Text)
	require.NotNil(t, s.Events[0].CreatedAt.Time)
	assert.Equal(t, "משחקים", s.Categories[0].Name("he"))

	_, err = FileSource{Path: filepath.Join(dir, "missing.json")}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = FileSource{Path: bad}.Load(context.Background())
	assert.Error(t, err)
}

func TestFileSourceSkipsMalformedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	doc := `{
  "events": [
    {"id": "good", "title": "Bingo", "startDate": "2025-06-15", "maxParticipants": 20},
    {"id": "capacity", "title": "Choir", "maxParticipants": "20"},
    {"id": "clock", "title": "Walk", "timeFrom": 9},
    {"id": "people", "title": "Trip", "participants": ["u1", 7]},
    {"id": "also-good", "title": "Lecture", "startDate": "16-06-2025"}
  ],
  "categories": [{"id": "games"}, {"id": 5}, "music"]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "also-good"}, eventIDs(s))
	assert.Equal(t, 20, s.Events[0].MaxParticipants)
	require.Len(t, s.Categories, 1)
	assert.Equal(t, "games", s.Categories[0].ID)
}

func TestPollerWithoutSources(t *testing.T) {
	assert.ErrorIs(t, NewPoller().Refresh(context.Background()), ErrNoSources)
}

func TestPollerMergesSources(t *testing.T) {
	first := &fakeSource{name: "first", snap: model.Snapshot{
		Events:     []model.RawEvent{{ID: "a"}, {ID: "b"}},
		Categories: []model.Category{{ID: "c1", Color: "red"}},
	}}
	second := &fakeSource{name: "second", snap: model.Snapshot{
		Events:     []model.RawEvent{{ID: "c"}},
		Categories: []model.Category{{ID: "c1", Color: "blue"}, {ID: "c2"}},
	}}
	p := NewPoller(first, second)
	var rec recorder
	p.Subscribe(rec.fn)

	require.NoError(t, p.Refresh(context.Background()))
	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b", "c"}, eventIDs(got[0]))
	require.Len(t, got[0].Categories, 2)
	assert.Equal(t, "red", got[0].Categories[0].Color, "earlier source wins")
}

func TestPollerKeepsLastGoodSnapshot(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakeSource{name: "ok", snap: model.Snapshot{Events: []model.RawEvent{{ID: "a"}}}}
	flaky := &fakeSource{name: "flaky", snap: model.Snapshot{Events: []model.RawEvent{{ID: "b"}}}}
	p := NewPoller(ok, flaky)
	var rec recorder
	p.Subscribe(rec.fn)

	require.NoError(t, p.Refresh(context.Background()))

	flaky.set(model.Snapshot{}, boom)
	ok.set(model.Snapshot{Events: []model.RawEvent{{ID: "a2"}}}, nil)
	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "flaky")

	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a2", "b"}, eventIDs(got[1]))
}

func TestPollerPublishesNothingBeforeFirstSuccess(t *testing.T) {
	src := &fakeSource{name: "down", err: errors.New("unreachable")}
	p := NewPoller(src)
	var rec recorder
	p.Subscribe(rec.fn)

	assert.Error(t, p.Refresh(context.Background()))
	assert.Empty(t, rec.all())
}

func TestPollerStart(t *testing.T) {
	src := &fakeSource{name: "s", snap: model.Snapshot{Events: []model.RawEvent{{ID: "a"}}}}
	p := NewPoller(src)

	err := p.Start(context.Background(), "not a schedule", time.UTC)
	assert.Error(t, err)

	require.NoError(t, p.Start(context.Background(), "@every 1h", time.UTC))
	defer p.Stop()

	var rec recorder
	p.Subscribe(rec.fn)
	require.Len(t, rec.all(), 1, "initial refresh ran during Start")
}

func TestStopWithoutStart(t *testing.T) {
	NewPoller().Stop()
}
