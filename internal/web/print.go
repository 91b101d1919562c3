package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"communitycal/internal/caldate"
	appLog "communitycal/internal/log"
	"communitycal/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	month *template.Template
}

func loadPages() *pages {
	return &pages{
		month: template.Must(template.ParseFS(templateFS, "templates/print_month.html")),
	}
}

var weekdayNames = map[string][7]string{
	"en": {"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	"he": {"א׳", "ב׳", "ג׳", "ד׳", "ה׳", "ו׳", "ש׳"},
}

var hebrewMonths = [12]string{
	"ינואר", "פברואר", "מרץ", "אפריל", "מאי", "יוני",
	"יולי", "אוגוסט", "ספטמבר", "אוקטובר", "נובמבר", "דצמבר",
}

type printEvent struct {
	Title string
	Time  string
	Color string
}

type printCell struct {
	Day    int
	Blank  bool
	Today  bool
	Events []printEvent
}

type printPage struct {
	Lang     string
	Dir      string
	Title    string
	Weekdays []string
	Weeks    [][]printCell
	Printed  string
}

func monthTitle(d caldate.Date, lang string) string {
	if lang == "he" {
		return fmt.Sprintf("%s %d", hebrewMonths[d.Month()-1], d.Year())
	}
	return fmt.Sprintf("%s %d", d.Month(), d.Year())
}

func weekdayHeader(lang string, start time.Weekday) []string {
	names, ok := weekdayNames[lang]
	if !ok {
		names = weekdayNames["en"]
	}
	out := make([]string, 7)
	for i := range out {
		out[i] = names[(int(start)+i)%7]
	}
	return out
}

// buildPrintPage folds month cells into rows of seven, padding the last row.
func buildPrintPage(m view.Model, opts view.Options, today caldate.Date, printed time.Time) printPage {
	p := printPage{
		Lang:     opts.Lang,
		Dir:      "ltr",
		Title:    monthTitle(m.Date, opts.Lang),
		Weekdays: weekdayHeader(opts.Lang, opts.WeekStart),
		Printed:  printed.Format("2006-01-02 15:04"),
	}
	if opts.Lang == "he" {
		p.Dir = "rtl"
	}

	var row []printCell
	for _, c := range m.Cells {
		cell := printCell{Blank: !c.Date.Valid()}
		if !cell.Blank {
			cell.Day = c.Date.Day()
			cell.Today = c.Date.Equal(today)
			for _, e := range c.Events {
				t := e.TimeFrom
				if t != "" && e.TimeTo != "" {
					t += "-" + e.TimeTo
				}
				cell.Events = append(cell.Events, printEvent{Title: e.Title, Time: t, Color: e.Category.Color})
			}
		}
		row = append(row, cell)
		if len(row) == 7 {
			p.Weeks = append(p.Weeks, row)
			row = nil
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, printCell{Blank: true})
		}
		p.Weeks = append(p.Weeks, row)
	}
	return p
}

// handlePrintMonth renders a static month grid for printing and PNG export.
// The root element carries data-ready="true" once rendered.
//
// GET /print/month?date=YYYY-MM-DD plus the filter parameters of /api/calendar.
func (s *Server) handlePrintMonth(w http.ResponseWriter, r *http.Request) {
	st := s.stateFrom(r.URL.Query())
	st.Mode = view.ModeMonth
	now := s.localNow()
	opts := s.options()

	m := view.Build(s.live.Events(), st, s.identity(r), opts, now)
	page := buildPrintPage(m, opts, caldate.FromTime(now), now)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.month.Execute(w, page); err != nil {
		appLog.Error("print page render failed", err, "date", m.Date.String())
	}
}
