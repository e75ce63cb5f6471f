// Package source normalizes events from heterogeneous calendar sources and
// fetches them concurrently with per-source failure isolation.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/gcal"
	"findash/internal/ics"
	appLog "findash/internal/log"
	"findash/internal/model"
	"findash/internal/week"
)

// Info is the metadata shared by every source kind.
type Info struct {
	ID       string
	Name     string
	Color    string
	Kind     model.SourceKind
	TimeZone string
}

// Source is one configured calendar. Implementations are *Feed, *Remote
// and the unexported misconfigured variant.
type Source interface {
	Info() Info
	Fetch(ctx context.Context, w week.Window) ([]model.CalendarEvent, error)
}

// Feed is a feed-url source: an iCal document fetched over HTTP.
type Feed struct {
	info    Info
	url     string
	fetcher *ics.Fetcher
}

// NewFeed returns a feed-url source.
func NewFeed(info Info, feedURL string, fetcher *ics.Fetcher) *Feed {
	info.Kind = model.KindFeedURL
	return &Feed{info: info, url: feedURL, fetcher: fetcher}
}

func (f *Feed) Info() Info { return f.info }

// Fetch downloads, parses and expands the feed into events overlapping w.
func (f *Feed) Fetch(ctx context.Context, w week.Window) ([]model.CalendarEvent, error) {
	loc := zoneOr(f.info.TimeZone, w.Location)

	body, err := f.fetcher.Fetch(ctx, f.url)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.ParseICS(body, loc)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      w.Start,
		RangeEnd:        w.End,
	})
	if err != nil {
		return nil, fmt.Errorf("expand feed: %w", err)
	}
	if len(res.TruncatedEvents) > 0 {
		appLog.Info("feed recurrence truncated", "id", f.info.ID, "uids", res.TruncatedEvents)
	}

	out := make([]model.CalendarEvent, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		ev := model.CalendarEvent{
			ID:            occ.InstanceKey,
			Summary:       occ.Summary,
			Start:         eventTime(occ.Start, occ.AllDay),
			Location:      occ.Location,
			CalendarID:    f.info.ID,
			CalendarName:  f.info.Name,
			CalendarColor: f.info.Color,
			TimeZone:      loc.String(),
		}
		end := eventTime(occ.End, occ.AllDay)
		ev.End = &end
		if err := ev.Normalize(); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func eventTime(t time.Time, allDay bool) model.EventTime {
	if allDay {
		return model.OnDate(t.Year(), t.Month(), t.Day())
	}
	return model.At(t)
}

// Remote is a remote-api source listed through the Google Calendar API.
type Remote struct {
	info       Info
	calendarID string
	lister     gcal.Lister
}

// NewRemote returns a remote-api source for an already resolved calendar ID.
func NewRemote(info Info, calendarID string, lister gcal.Lister) *Remote {
	info.Kind = model.KindRemoteAPI
	return &Remote{info: info, calendarID: calendarID, lister: lister}
}

func (r *Remote) Info() Info { return r.info }

// Fetch lists the calendar's single event instances within w.
func (r *Remote) Fetch(ctx context.Context, w week.Window) ([]model.CalendarEvent, error) {
	loc := zoneOr(r.info.TimeZone, w.Location)
	items, err := r.lister.ListEvents(ctx, r.calendarID, w.Start, w.End, apiZone(loc))
	if err != nil {
		return nil, err
	}
	return gcal.ToEvents(items, gcal.Meta{
		CalendarID:      r.calendarID,
		Name:            r.info.Name,
		Color:           r.info.Color,
		TimeZone:        r.info.TimeZone,
		DefaultLocation: w.Location,
	}), nil
}

// apiZone names loc for the Calendar API. time.Local has no IANA name, so
// the calendar's own zone is used instead.
func apiZone(loc *time.Location) string {
	if loc == time.Local {
		return ""
	}
	return loc.String()
}

// misconfigured stands in for a config entry that could not be turned into
// a working source; every fetch reports the configuration error.
type misconfigured struct {
	info Info
	err  error
}

func (m *misconfigured) Info() Info { return m.info }

func (m *misconfigured) Fetch(context.Context, week.Window) ([]model.CalendarEvent, error) {
	return nil, m.err
}

// ErrMisconfigured wraps every configuration problem reported by a source.
var ErrMisconfigured = errors.New("source misconfigured")

func zoneOr(name string, fallback *time.Location) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.Local
	}
	return fallback
}

// Outcome records how one source's fetch went.
type Outcome struct {
	Source     Info
	EventCount int
	Err        error
	// Retryable marks failures that may succeed on a later attempt, such
	// as timeouts.
	Retryable bool
	StartedAt time.Time
	Duration  time.Duration
}

// FetchAll fetches every source concurrently, each bounded by timeout
// (zero means no extra bound). A failing source contributes no events and
// its error is recorded in its Outcome; FetchAll itself never fails.
// Events are concatenated in source order.
func FetchAll(ctx context.Context, sources []Source, w week.Window, timeout time.Duration) ([]model.CalendarEvent, []Outcome) {
	results := make([][]model.CalendarEvent, len(sources))
	outcomes := make([]Outcome, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			fctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			info := src.Info()
			started := time.Now()
			events, err := src.Fetch(fctx, w)
			out := Outcome{Source: info, StartedAt: started, Duration: time.Since(started)}
			if err != nil {
				out.Err = err
				out.Retryable = IsRetryable(err)
				appLog.Error("source fetch failed", err,
					"id", info.ID,
					"kind", info.Kind,
					"retryable", out.Retryable,
				)
			} else {
				out.EventCount = len(events)
				results[i] = events
				appLog.Debug("source fetch success", "id", info.ID, "kind", info.Kind, "event_count", len(events))
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	events := make([]model.CalendarEvent, 0, total)
	for _, r := range results {
		events = append(events, r...)
	}
	return events, outcomes
}

// IsRetryable reports whether err is a timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
