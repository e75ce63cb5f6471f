package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"findash/internal/config"
	"findash/internal/gcal"
	"findash/internal/ics"
	"findash/internal/model"
	"findash/internal/week"
)

const feedBody = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//findash//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:rent@example.com\r\n" +
	"SUMMARY:Rent due\r\n" +
	"DTSTART;VALUE=DATE:20250110\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:review@example.com\r\n" +
	"SUMMARY:Budget review\r\n" +
	"DTSTART:20250108T200000Z\r\n" +
	"DTEND:20250108T210000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type fakeLister struct {
	items   []*calendar.Event
	err     error
	calls   atomic.Int32
	gotID   string
	gotZone string
}

func (f *fakeLister) ListEvents(_ context.Context, calendarID string, _, _ time.Time, timeZone string) ([]*calendar.Event, error) {
	f.calls.Add(1)
	f.gotID = calendarID
	f.gotZone = timeZone
	return f.items, f.err
}

type slowSource struct{ info Info }

func (s slowSource) Info() Info { return s.info }

func (s slowSource) Fetch(ctx context.Context, _ week.Window) ([]model.CalendarEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testWindow(t *testing.T) week.Window {
	t.Helper()
	ny := newYork(t)
	return week.WindowFor(time.Date(2025, 1, 8, 12, 0, 0, 0, ny), ny)
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/family.ics" {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(feedBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedFetch(t *testing.T) {
	srv := feedServer(t)
	w := testWindow(t)

	feed := NewFeed(Info{ID: "family", Name: "Family", Color: "#0b8043"}, srv.URL+"/family.ics", ics.NewFetcher(srv.Client(), 0))
	events, err := feed.Fetch(context.Background(), w)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	review, rent := events[0], events[1]
	if review.Summary != "Budget review" || review.Start.AllDay {
		t.Fatalf("first event = %+v", review)
	}
	if review.CalendarID != "family" || review.CalendarName != "Family" || review.CalendarColor != "#0b8043" {
		t.Fatalf("metadata not attached: %+v", review)
	}
	if got := week.DayKey(review.Start.In(w.Location), w.Location); got != "01/08/2025" {
		t.Fatalf("review day = %s", got)
	}
	if !rent.Start.AllDay || week.DayKey(rent.Start.In(w.Location), w.Location) != "01/10/2025" {
		t.Fatalf("rent = %+v", rent)
	}
	if feed.Info().Kind != model.KindFeedURL {
		t.Fatalf("kind = %q", feed.Info().Kind)
	}
}

func TestRemoteFetch(t *testing.T) {
	lister := &fakeLister{items: []*calendar.Event{
		{Id: "a", Summary: "Payroll", Start: &calendar.EventDateTime{DateTime: "2025-01-09T14:00:00Z"}},
	}}
	r := NewRemote(Info{ID: "work", Name: "Work", Color: "#4285f4"}, "me@example.com", lister)

	events, err := r.Fetch(context.Background(), testWindow(t))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(events) != 1 || events[0].CalendarName != "Work" || events[0].TimeZone != "America/New_York" {
		t.Fatalf("events = %+v", events)
	}
	if lister.gotID != "me@example.com" {
		t.Fatalf("calendar id = %q", lister.gotID)
	}
}

func TestRemoteFetchTimeZone(t *testing.T) {
	tests := []struct {
		name string
		info Info
		loc  *time.Location
		want string
	}{
		{name: "window zone", loc: newYork(t), want: "America/New_York"},
		{name: "source override", info: Info{TimeZone: "Europe/Berlin"}, loc: newYork(t), want: "Europe/Berlin"},
		{name: "local", loc: time.Local, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{}
			w := week.WindowFor(time.Date(2025, 1, 8, 12, 0, 0, 0, tt.loc), tt.loc)
			if _, err := NewRemote(tt.info, "me@example.com", lister).Fetch(context.Background(), w); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if lister.gotZone != tt.want {
				t.Fatalf("timeZone = %q, want %q", lister.gotZone, tt.want)
			}
		})
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	srv := feedServer(t)
	fetcher := ics.NewFetcher(srv.Client(), 0)
	w := testWindow(t)

	sources := []Source{
		NewFeed(Info{ID: "broken"}, srv.URL+"/broken.ics", fetcher),
		NewFeed(Info{ID: "family"}, srv.URL+"/family.ics", fetcher),
		NewRemote(Info{ID: "work"}, "me@example.com", &fakeLister{items: []*calendar.Event{
			{Id: "a", Summary: "Payroll", Start: &calendar.EventDateTime{DateTime: "2025-01-09T14:00:00Z"}},
		}}),
	}

	events, outcomes := FetchAll(context.Background(), sources, w, time.Second)
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].CalendarID != "family" || events[2].Summary != "Payroll" {
		t.Fatalf("events not in source order: %+v", events)
	}

	if len(outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d", len(outcomes))
	}
	var se *ics.StatusError
	if !errors.As(outcomes[0].Err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("broken outcome = %+v", outcomes[0])
	}
	if outcomes[0].Retryable {
		t.Fatal("HTTP 500 should not be marked retryable")
	}
	if outcomes[1].Err != nil || outcomes[1].EventCount != 2 {
		t.Fatalf("family outcome = %+v", outcomes[1])
	}
}

func TestFetchAllTimeout(t *testing.T) {
	sources := []Source{slowSource{info: Info{ID: "slow"}}}

	events, outcomes := FetchAll(context.Background(), sources, testWindow(t), 20*time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
	if !errors.Is(outcomes[0].Err, context.DeadlineExceeded) || !outcomes[0].Retryable {
		t.Fatalf("outcome = %+v", outcomes[0])
	}
}

func TestFetchAllEmpty(t *testing.T) {
	events, outcomes := FetchAll(context.Background(), nil, testWindow(t), time.Second)
	if len(events) != 0 || len(outcomes) != 0 {
		t.Fatalf("events = %v, outcomes = %v", events, outcomes)
	}
}

func TestBuild(t *testing.T) {
	disabled := false
	cfgs := []config.SourceConfig{
		{ID: "work", Kind: model.KindRemoteAPI, CalendarID: "me@example.com"},
		{ID: "family", Kind: model.KindFeedURL, URL: "https://example.com/family.ics"},
		{ID: "off", Kind: model.KindFeedURL, URL: "https://example.com/off.ics", Enabled: &disabled},
		{ID: "nourl", Kind: model.KindFeedURL},
		{ID: "weird", Kind: "carrier-pigeon"},
		{ID: "badtz", Kind: model.KindFeedURL, URL: "https://example.com/x.ics", Timezone: "Mars/Olympus"},
		{ID: "team", Kind: model.KindRemoteAPI, CalendarID: "team@example.com"},
	}

	var built int
	lister := &fakeLister{}
	b := Builder{
		Fetcher: ics.NewFetcher(nil, time.Second),
		NewLister: func(context.Context) (gcal.Lister, error) {
			built++
			return lister, nil
		},
	}

	sources, err := b.Build(context.Background(), cfgs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if built != 1 {
		t.Fatalf("lister built %d times, want 1", built)
	}

	var ids []string
	for _, s := range sources {
		ids = append(ids, s.Info().ID)
	}
	if got := strings.Join(ids, ","); got != "work,family,nourl,weird,badtz,team" {
		t.Fatalf("ids = %s", got)
	}

	for _, s := range sources[2:5] {
		_, err := s.Fetch(context.Background(), testWindow(t))
		if !errors.Is(err, ErrMisconfigured) {
			t.Errorf("%s: Fetch() error = %v, want ErrMisconfigured", s.Info().ID, err)
		}
	}
}

func TestBuildListerFailure(t *testing.T) {
	b := Builder{
		NewLister: func(context.Context) (gcal.Lister, error) {
			return nil, errors.New("no credentials")
		},
	}
	_, err := b.Build(context.Background(), []config.SourceConfig{
		{ID: "work", Kind: model.KindRemoteAPI, CalendarID: "me@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "no credentials") {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestBuildFeedOnlySkipsLister(t *testing.T) {
	b := Builder{
		Fetcher: ics.NewFetcher(nil, time.Second),
		NewLister: func(context.Context) (gcal.Lister, error) {
			t.Fatal("lister should not be built without remote sources")
			return nil, nil
		},
	}
	sources, err := b.Build(context.Background(), []config.SourceConfig{
		{ID: "family", Kind: model.KindFeedURL, URL: "https://example.com/family.ics"},
	})
	if err != nil || len(sources) != 1 {
		t.Fatalf("Build() = %v, %v", sources, err)
	}
}
