package present

import (
	"bytes"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/finance"
	"findash/internal/model"
	"findash/internal/session"
	"findash/internal/week"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(newYork(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestFormatEventTime(t *testing.T) {
	ny := newYork(t)
	tests := []struct {
		name string
		ev   model.CalendarEvent
		want string
	}{
		{name: "afternoon", ev: model.CalendarEvent{Start: model.At(time.Date(2025, 1, 8, 20, 0, 0, 0, time.UTC))}, want: "03:00 PM"},
		{name: "morning", ev: model.CalendarEvent{Start: model.At(time.Date(2025, 1, 8, 9, 5, 0, 0, ny))}, want: "09:05 AM"},
		{name: "all day", ev: model.CalendarEvent{Start: model.OnDate(2025, 1, 10)}, want: AllDayText},
		{name: "no start", ev: model.CalendarEvent{}, want: NoDateText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEventTime(tt.ev, ny); got != tt.want {
				t.Fatalf("FormatEventTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDayHeader(t *testing.T) {
	if got := FormatDayHeader(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)); got != "Monday, January 6" {
		t.Fatalf("FormatDayHeader() = %q", got)
	}
}

func TestEventsStates(t *testing.T) {
	r := newRenderer(t)
	ny := newYork(t)
	w := week.WindowFor(time.Date(2025, 1, 8, 12, 0, 0, 0, ny), ny)

	loaded := session.NewDashboard().Update(session.EventsLoaded{Buckets: week.Group(w, []model.CalendarEvent{
		{ID: "a", Summary: "Budget <review>", Start: model.At(time.Date(2025, 1, 8, 15, 0, 0, 0, ny)), CalendarName: "Work", CalendarColor: "#4285f4"},
	})})

	tests := []struct {
		name    string
		state   session.Dashboard
		want    []string
		notWant []string
	}{
		{
			name:    "loading",
			state:   session.NewDashboard(),
			want:    []string{LoadingText, `data-phase="loading"`},
			notWant: []string{`data-ready`},
		},
		{
			name:  "failed",
			state: session.NewDashboard().Update(session.EventsFailed{}),
			want:  []string{`class="error"`, "Failed to fetch calendar events", `data-ready="true"`},
		},
		{
			name:  "empty",
			state: session.NewDashboard().Update(session.EventsLoaded{Buckets: week.Group(w, nil)}),
			want:  []string{NoEventsWeek, `data-ready="true"`},
		},
		{
			name:  "loaded",
			state: loaded,
			want: []string{
				"Monday, January 6", "Wednesday, January 8", "Sunday, January 12",
				"Budget &lt;review&gt;", "03:00 PM", "Work", NoEventsDay,
				`data-ready="true"`,
			},
			notWant: []string{NoEventsWeek},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := r.Events(&buf, tt.state); err != nil {
				t.Fatalf("Events() error = %v", err)
			}
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestDayViewsHasSevenColumns(t *testing.T) {
	ny := newYork(t)
	w := week.WindowFor(time.Date(2025, 1, 12, 23, 0, 0, 0, ny), ny)
	days := DayViews(week.Group(w, nil), ny)
	if len(days) != 7 || days[0].Key != "01/06/2025" || days[6].Header != "Sunday, January 12" {
		t.Fatalf("DayViews() = %+v", days)
	}
}

func TestShell(t *testing.T) {
	r := newRenderer(t)
	snap := finance.Placeholder()
	snap.Utilities.Electric = decimal.RequireFromString("80.10")

	var buf bytes.Buffer
	if err := r.Shell(&buf, time.Date(2025, 1, 8, 17, 0, 0, 0, time.UTC), snap); err != nil {
		t.Fatalf("Shell() error = %v", err)
	}
	// html/template escapes "+" in text, so compare against the decoded page.
	out := html.UnescapeString(buf.String())
	for _, s := range []string{
		"WEEKLY FINANCIAL CHECK-IN: 1/8/2025",
		LoadingText,
		"Placeholder Fund:", "(+$0.00)",
		"Placeholder Expense:", "- 2025-01-01",
		"Electric: $80.10",
		`<p class="savings-total">Total: $0.00</p>`,
		`<p class="utilities-total">Total: $80.10</p>`,
		"No notes available.",
		"/static/dashboard.js",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("shell missing %q", s)
		}
	}
}

func TestChatPage(t *testing.T) {
	r := newRenderer(t)
	c := &session.Chat{Now: func() time.Time { return time.Date(2025, 1, 8, 14, 30, 0, 0, time.UTC) }}
	_, _ = c.Submit("<b>hi</b>")
	_, _ = c.Resolve("Use **envelopes**.\n\n<script>alert(1)</script>")

	var buf bytes.Buffer
	if err := r.Chat(&buf, ChatPage{Turns: c.Turns, Transcript: "abc", Notice: "Please type a message."}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	out := buf.String()

	for _, s := range []string{
		"&lt;b&gt;hi&lt;/b&gt;",
		"<strong>envelopes</strong>",
		"09:30 AM",
		`name="transcript" value="abc"`,
		"Please type a message.",
		ChatEmptyText,
	} {
		if !strings.Contains(out, s) {
			t.Errorf("chat page missing %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatal("raw HTML from the assistant must not be rendered")
	}
}
