// Package present renders the dashboard and chat pages as server-side HTML.
package present

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"findash/internal/finance"
	"findash/internal/model"
	"findash/internal/session"
	"findash/internal/week"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	dayHeaderLayout = "Monday, January 2"
	eventTimeLayout = "03:04 PM"
	checkInLayout   = "1/2/2006"
)

// Empty-state texts.
const (
	LoadingText   = "Loading events..."
	NoEventsWeek  = "No events this week"
	NoEventsDay   = "No events"
	AllDayText    = "All day"
	NoDateText    = "No date"
	ChatEmptyText = "Ask me anything about your finances..."
)

// Renderer executes the embedded templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
	loc  *time.Location
}

// New parses the templates. Times are shown in loc.
func New(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &Renderer{md: goldmark.New(), loc: loc}
	tmpl, err := template.New("present").Funcs(template.FuncMap{
		"markdown": r.markdown,
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("present: parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// FormatEventTime renders an event's start as a 12-hour clock time in loc.
func FormatEventTime(ev model.CalendarEvent, loc *time.Location) string {
	if ev.Start.IsZero() {
		return NoDateText
	}
	if ev.Start.AllDay {
		return AllDayText
	}
	return ev.Start.In(loc).Format(eventTimeLayout)
}

// FormatDayHeader renders a day as "Monday, January 6".
func FormatDayHeader(day time.Time) string {
	return day.Format(dayHeaderLayout)
}

// EventView is one rendered list entry.
type EventView struct {
	ID           string
	Summary      string
	Time         string
	CalendarName string
	Color        string
}

// DayView is one rendered day column.
type DayView struct {
	Key    string
	Header string
	Events []EventView
}

// DayViews converts buckets into render-ready columns in day order.
func DayViews(b week.Buckets, loc *time.Location) []DayView {
	days := b.Days()
	out := make([]DayView, 0, len(days))
	for _, d := range days {
		dv := DayView{Key: d.Key, Header: FormatDayHeader(d.Date), Events: make([]EventView, 0, len(d.Events))}
		for _, ev := range d.Events {
			dv.Events = append(dv.Events, EventView{
				ID:           ev.ID,
				Summary:      ev.Summary,
				Time:         FormatEventTime(ev, loc),
				CalendarName: ev.CalendarName,
				Color:        ev.CalendarColor,
			})
		}
		out = append(out, dv)
	}
	return out
}

type eventsData struct {
	Phase   string
	Ready   bool
	Message string
	Days    []DayView
}

func (r *Renderer) eventsData(d session.Dashboard) eventsData {
	data := eventsData{Phase: d.Phase.String(), Ready: d.Ready()}
	switch d.Phase {
	case session.Loading:
		data.Message = LoadingText
	case session.Failed:
		data.Message = d.Error
	case session.Empty:
		data.Message = NoEventsWeek
	case session.Loaded:
		data.Days = DayViews(d.Buckets, r.loc)
	}
	return data
}

// Events renders the events fragment for the given state.
func (r *Renderer) Events(w io.Writer, d session.Dashboard) error {
	return r.execute(w, "events", r.eventsData(d))
}

type shellData struct {
	CheckIn string
	Events  eventsData
	Finance FinanceView
}

// Shell renders the full dashboard page. The events panel starts in the
// loading state and is filled in by the events fragment.
func (r *Renderer) Shell(w io.Writer, now time.Time, snap finance.Snapshot) error {
	return r.execute(w, "shell", shellData{
		CheckIn: now.In(r.loc).Format(checkInLayout),
		Events:  r.eventsData(session.NewDashboard()),
		Finance: NewFinanceView(snap),
	})
}

// ChatPage is the state needed to render the chat page.
type ChatPage struct {
	Turns []session.Turn
	// Transcript is the encoded form of Turns, posted back with the next
	// message.
	Transcript string
	// Notice is shown above the form, for example when input was rejected.
	Notice string
}

// Chat renders the chat page.
func (r *Renderer) Chat(w io.Writer, p ChatPage) error {
	return r.execute(w, "chat", struct {
		ChatPage
		Placeholder string
		Loc         *time.Location
	}{ChatPage: p, Placeholder: ChatEmptyText, Loc: r.loc})
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("present: render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// markdown converts assistant text to HTML. Raw HTML in the source is
// escaped by goldmark's default renderer.
func (r *Renderer) markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
