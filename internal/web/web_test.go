package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitycal/internal/caldate"
	"communitycal/internal/config"
	"communitycal/internal/model"
	"communitycal/internal/view"
)

var fixedNow = time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)

func snapshot() model.Snapshot {
	return model.Snapshot{
		Events: []model.RawEvent{
			{ID: "a", Title: "Morning walk", StartDate: model.TextDate("2025-06-12"), TimeFrom: "09:00", TimeTo: "10:00", Status: "active", CategoryID: "sport", Settlement: "north"},
			{ID: "b", Title: "Choir", StartDate: model.TextDate("12-06-2025"), TimeFrom: "9:30", TimeTo: "10:30", Status: "Active", CategoryID: "music"},
			{ID: "p", Title: "Secret planning", StartDate: model.TextDate("2025-06-20"), Status: "pending", CreatedBy: "u2", Settlement: "north"},
		},
		Categories: []model.Category{
			{ID: "sport", Names: map[string]string{"en": "Sport", "he": "ספורט"}, Color: "#00aa00"},
			{ID: "music", Names: map[string]string{"en": "Music"}},
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Language = "en"
	cfg.TrustIdentityHeaders = true
	if mutate != nil {
		mutate(cfg)
	}
	live := view.NewLive(time.UTC)
	live.OnSnapshot(snapshot())
	s := NewServer(cfg, live)
	s.now = func() time.Time { return fixedNow }
	return s
}

func get(t *testing.T, s *Server, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var retiree = map[string]string{headerUserID: "u1", headerRole: "retiree"}

func TestHealthBypassesBasicAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	rec := get(t, s, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(t, s, "/api/calendar", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	req.SetBasicAuth("admin", "pw")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req.SetBasicAuth("admin", "wrong")
	bad := httptest.NewRecorder()
	s.Handler().ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestCalendarDayView(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/api/calendar?date=2025-06-12&mode=day&granularity=hourly", retiree)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[calendarResponse](t, rec)
	assert.Equal(t, "day", resp.Mode)
	assert.Equal(t, "2025-06-12", resp.Date)
	assert.Len(t, resp.Hours, 24)
	assert.Empty(t, resp.Cells)
	require.Len(t, resp.Positioned, 2)

	assert.Equal(t, "a", resp.Positioned[0].ID)
	assert.Equal(t, "Sport", resp.Positioned[0].CategoryName)
	assert.Equal(t, 2, resp.Positioned[0].TotalColumns)
	assert.Equal(t, "b", resp.Positioned[1].ID)
	assert.Equal(t, "09:30", resp.Positioned[1].TimeFrom)
	assert.Equal(t, 1, resp.Positioned[1].Column)
	assert.True(t, resp.Positioned[1].HasCollision)
	assert.Equal(t, "1h", resp.Positioned[1].DurationLabel)

	assert.Equal(t, "hourly", resp.Granularity)
	require.Len(t, resp.Analytics, 24)
	assert.Equal(t, 2, resp.Analytics[9].Count)
	assert.NotNil(t, resp.UpdatedAt)
}

func TestCalendarDegradesBadQuery(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/api/calendar?date=31-02-2025&mode=yearly&past=maybe", retiree)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[calendarResponse](t, rec)
	assert.Equal(t, "month", resp.Mode)
	assert.Equal(t, "2025-06-10", resp.Date)
	assert.Equal(t, "sunday", resp.WeekStart)
	require.Len(t, resp.Cells, 30)
	assert.Equal(t, "2025-06-01", resp.Cells[0].Date)
	assert.Len(t, resp.Cells[11].Events, 2)
	assert.Empty(t, resp.Cells[19].Events, "pending event of another user is hidden")
	assert.Equal(t, "daily", resp.Granularity)
}

func TestCalendarFilters(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/api/calendar?date=2025-06-12&mode=week&q=choir", retiree)
	resp := decode[calendarResponse](t, rec)
	require.Len(t, resp.Cells, 7)
	require.Len(t, resp.Cells[4].Events, 1)
	assert.Equal(t, "b", resp.Cells[4].Events[0].ID)

	rec = get(t, s, "/api/calendar?date=2025-06-12&mode=week&category=SPORT", retiree)
	resp = decode[calendarResponse](t, rec)
	require.Len(t, resp.Cells[4].Events, 1)
	assert.Equal(t, "a", resp.Cells[4].Events[0].ID)
}

func TestEventLookupHonoursVisibility(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/events/p", retiree)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event not found", decode[map[string]string](t, rec)["error"])

	rec = get(t, s, "/api/events/p", map[string]string{headerUserID: "u2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Secret planning", decode[eventDTO](t, rec).Title)

	admin := map[string]string{headerUserID: "x", headerRole: "admin", headerSettlement: "north"}
	assert.Equal(t, http.StatusOK, get(t, s, "/api/events/p", admin).Code)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/events/missing", retiree).Code)
}

func TestCategoriesEndpoint(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Language = "he" })
	rec := get(t, s, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cats := decode[[]categoryDTO](t, rec)
	require.Len(t, cats, 2)
	assert.Equal(t, categoryDTO{ID: "sport", Name: "ספורט", Color: "#00aa00"}, cats[0])
	assert.Equal(t, "Music", cats[1].Name, "falls back to English")
}

func TestIdentityHeadersIgnoredUnlessTrusted(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.TrustIdentityHeaders = false })
	forged := map[string]string{headerUserID: "u2", headerRole: "superadmin", headerSettlement: "north"}

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/events/p", forged).Code)

	resp := decode[analyticsResponse](t, get(t, s, "/api/analytics?month=2025-06", forged))
	assert.Equal(t, 2, resp.Total, "pending event stays hidden")
}

func TestAnalyticsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/api/analytics?month=2025-06&granularity=weekly", retiree)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[analyticsResponse](t, rec)
	assert.Equal(t, "2025-06-01", resp.Month)
	assert.Equal(t, "weekly", resp.Granularity)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Buckets, 5)
	assert.Equal(t, 2, resp.Buckets[1].Count)
	require.Len(t, resp.ByStatus, 1)
	assert.Equal(t, "active", resp.ByStatus[0].Label)
	require.Len(t, resp.ByCategory, 2)
	assert.Equal(t, "Music", resp.ByCategory[0].Label)

	superadmin := map[string]string{headerRole: "superadmin"}
	resp = decode[analyticsResponse](t, get(t, s, "/api/analytics?month=2025-06-15", superadmin))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "daily", resp.Granularity)
}

func TestPrintMonth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.WeekStart = "monday" })
	rec := get(t, s, "/print/month?date=2025-06-12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "June 2025")
	assert.Contains(t, body, "Morning walk")
	assert.Contains(t, body, "09:00-10:00")
	assert.NotContains(t, body, "Secret planning")
	assert.Equal(t, 6, strings.Count(body, "<tr>")-1, "six weeks after the header row")
}

func TestPrintMonthHebrew(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Language = "he" })
	body := get(t, s, "/print/month?date=2025-06-12", nil).Body.String()
	assert.Contains(t, body, `dir="rtl"`)
	assert.Contains(t, body, "יוני 2025")
}

func TestBuildPrintPagePadsLastRow(t *testing.T) {
	m := view.Model{Cells: make([]view.Cell, 9)}
	p := buildPrintPage(m, view.Options{Lang: "en", WeekStart: time.Monday}, caldate.FromTime(fixedNow), fixedNow)
	require.Len(t, p.Weeks, 2)
	assert.Len(t, p.Weeks[1], 7)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, p.Weekdays)
}

func TestServeOnBoundListener(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}

func TestListenAndServeFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := newTestServer(t, func(c *config.Config) { c.Listen = busy.Addr().String() })
	assert.Error(t, s.ListenAndServe(context.Background()))
}

func TestMetricsAndNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	get(t, s, "/health", nil)

	rec := get(t, s, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "communitycal_http_requests_total")

	rec = get(t, s, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode[map[string]string](t, rec)["error"])

	noMetrics := newTestServer(t, func(c *config.Config) { c.Metrics = false })
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics, "/metrics", nil).Code)
}
