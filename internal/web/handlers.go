package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"communitycal/internal/analytics"
	"communitycal/internal/caldate"
	"communitycal/internal/filter"
	appLog "communitycal/internal/log"
	"communitycal/internal/model"
	"communitycal/internal/view"
)

// Identity headers are set by the authenticating proxy in front of us. They
// are read only when the config trusts them.
const (
	headerUserID     = "X-User-Id"
	headerRole       = "X-User-Role"
	headerSettlement = "X-User-Settlement"
)

// identity is the caller of r. Without trusted headers it is an anonymous
// retiree, who sees approved events only.
func (s *Server) identity(r *http.Request) model.Identity {
	if !s.cfg.TrustIdentityHeaders {
		return model.Identity{Role: model.RoleRetiree}
	}
	return model.Identity{
		UserID:     strings.TrimSpace(r.Header.Get(headerUserID)),
		Role:       model.ParseRole(r.Header.Get(headerRole)),
		Settlement: strings.TrimSpace(r.Header.Get(headerSettlement)),
	}
}

// stateFrom reads the view state from the query. Malformed values degrade
// to defaults instead of failing the request.
func (s *Server) stateFrom(q url.Values) view.State {
	return view.State{
		Date:   caldate.Parse(q.Get("date")),
		Mode:   view.ParseMode(q.Get("mode")),
		Quick:  q.Get("quick"),
		Search: q.Get("q"),
		Advanced: filter.Advanced{
			Status:     q.Get("status"),
			Category:   q.Get("category"),
			Settlement: q.Get("settlement"),
			DateRange:  q.Get("range"),
		},
		ShowPast:    parseBoolDefault(q.Get("past"), s.cfg.ShowPastEvents),
		Granularity: analytics.ParseGranularity(q.Get("granularity")),
	}
}

func (s *Server) options() view.Options {
	return view.Options{WeekStart: s.cfg.FirstWeekday(), Lang: s.cfg.Language}
}

func (s *Server) localNow() time.Time {
	return s.now().In(s.loc)
}

func parseBoolDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// eventDTO is the JSON shape of one event.
type eventDTO struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Location      string   `json:"location,omitempty"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	TimeFrom      string   `json:"time_from,omitempty"`
	TimeTo        string   `json:"time_to,omitempty"`
	CategoryID    string   `json:"category_id,omitempty"`
	CategoryName  string   `json:"category_name"`
	CategoryColor string   `json:"category_color,omitempty"`
	Status        string   `json:"status"`
	CreatedBy     string   `json:"created_by,omitempty"`
	Participants  []string `json:"participants,omitempty"`
	Settlement    string   `json:"settlement,omitempty"`
	Capacity      int      `json:"capacity,omitempty"`
}

type positionedDTO struct {
	eventDTO
	Column          int    `json:"column"`
	TotalColumns    int    `json:"total_columns"`
	HasCollision    bool   `json:"has_collision"`
	StartMinute     int    `json:"start_minute"`
	DurationMinutes int    `json:"duration_minutes"`
	DurationLabel   string `json:"duration_label"`
}

type cellDTO struct {
	// Date is empty for leading blanks of a month grid.
	Date   string     `json:"date,omitempty"`
	Events []eventDTO `json:"events"`
}

type calendarResponse struct {
	Mode        string             `json:"mode"`
	Date        string             `json:"date"`
	WeekStart   string             `json:"week_start"`
	Language    string             `json:"language"`
	Cells       []cellDTO          `json:"cells,omitempty"`
	Positioned  []positionedDTO    `json:"positioned,omitempty"`
	Hours       []string           `json:"hours,omitempty"`
	Granularity string             `json:"granularity"`
	Analytics   []analytics.Bucket `json:"analytics"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
}

type analyticsResponse struct {
	Month       string             `json:"month"`
	Granularity string             `json:"granularity"`
	Total       int                `json:"total"`
	Buckets     []analytics.Bucket `json:"buckets"`
	ByStatus    []analytics.Bucket `json:"by_status"`
	ByCategory  []analytics.Bucket `json:"by_category"`
}

func toDTO(e model.Event, lang string) eventDTO {
	return eventDTO{
		ID:            e.ID,
		Title:         e.Title,
		Description:   e.Description,
		Location:      e.Location,
		StartDate:     e.StartDate.String(),
		EndDate:       e.EndDate.String(),
		TimeFrom:      e.TimeFrom,
		TimeTo:        e.TimeTo,
		CategoryID:    e.CategoryID,
		CategoryName:  e.Category.Name(lang),
		CategoryColor: e.Category.Color,
		Status:        string(e.Status),
		CreatedBy:     e.CreatedBy,
		Participants:  e.Participants,
		Settlement:    e.Settlement,
		Capacity:      e.Capacity,
	}
}

func toDTOs(events []model.Event, lang string) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toDTO(e, lang))
	}
	return out
}

// handleCalendar returns the month, week or day view.
//
// GET /api/calendar?date=&mode=&quick=&q=&status=&category=&settlement=&range=&past=&granularity=
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	st := s.stateFrom(r.URL.Query())
	id := s.identity(r)
	opts := s.options()

	m := view.Build(s.live.Events(), st, id, opts, s.localNow())

	resp := calendarResponse{
		Mode:        string(m.Mode),
		Date:        m.Date.String(),
		WeekStart:   s.cfg.WeekStart,
		Language:    opts.Lang,
		Hours:       m.Hours,
		Granularity: string(m.Granularity),
		Analytics:   m.Analytics,
	}
	if m.Cells != nil {
		resp.Cells = make([]cellDTO, 0, len(m.Cells))
		for _, c := range m.Cells {
			resp.Cells = append(resp.Cells, cellDTO{Date: c.Date.String(), Events: toDTOs(c.Events, opts.Lang)})
		}
	}
	for _, p := range m.Positioned {
		resp.Positioned = append(resp.Positioned, positionedDTO{
			eventDTO:        toDTO(p.Event, opts.Lang),
			Column:          p.Column,
			TotalColumns:    p.TotalColumns,
			HasCollision:    p.HasCollision,
			StartMinute:     p.StartMinute,
			DurationMinutes: p.DurationMinutes,
			DurationLabel:   p.DurationLabel,
		})
	}
	if at := s.live.UpdatedAt(); !at.IsZero() {
		resp.UpdatedAt = &at
	}

	appLog.Debug("calendar view built", "mode", resp.Mode, "date", resp.Date, "role", id.Role)
	writeJSON(w, http.StatusOK, resp)
}

// handleEvent returns one event by id. Events the caller may not see are
// reported as missing.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.live.Find(chi.URLParam(r, "id"))
	if !ok || !filter.Visible(e, s.identity(r)) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(e, s.cfg.Language))
}

type categoryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// handleCategories lists the categories of the current snapshot for the
// filter panel, named in the configured language.
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	cats := s.live.Categories()
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryDTO{ID: c.ID, Name: c.Name(s.cfg.Language), Color: c.Color})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnalytics aggregates the filtered, date-unscoped event set.
//
// GET /api/analytics?month=YYYY-MM-DD|YYYY-MM&granularity=daily|hourly|weekly plus the
// filter parameters of /api/calendar.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st := s.stateFrom(q)
	now := s.localNow()

	month := parseMonth(q.Get("month"))
	if !month.Valid() {
		month = caldate.FromTime(now)
	}

	c := st.Criteria(s.options())
	events := filter.Apply(s.live.Events(), c, s.identity(r), now)

	writeJSON(w, http.StatusOK, analyticsResponse{
		Month:       month.FirstOfMonth().String(),
		Granularity: string(st.Granularity),
		Total:       len(events),
		Buckets:     analytics.Aggregate(events, st.Granularity, month),
		ByStatus:    analytics.ByStatus(events),
		ByCategory:  analytics.ByCategory(events, s.cfg.Language),
	})
}

// parseMonth accepts a full date or YYYY-MM.
func parseMonth(v string) caldate.Date {
	if d := caldate.Parse(v); d.Valid() {
		return d
	}
	return caldate.Parse(v + "-01")
}
