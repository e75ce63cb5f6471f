// Package gcal lists events from Google Calendar with an API key.
package gcal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "findash/internal/log"
	"findash/internal/model"
)

// pageSize matches the API maximum for a single events.list page.
const pageSize = 250

// Lister abstracts the remote listing so sources can be tested without
// the network.
type Lister interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timeZone string) ([]*calendar.Event, error)
}

// Client is a Lister backed by the Calendar v3 API.
type Client struct {
	svc *calendar.Service
}

// New constructs a Client authenticated by apiKey. Extra options (for
// example option.WithEndpoint in tests) are appended.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, errors.New("gcal: API key is empty")
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)

	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("gcal: create calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListEvents returns all events in [timeMin, timeMax) with recurring
// events expanded into single instances, following every result page.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timeZone string) ([]*calendar.Event, error) {
	call := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(pageSize)
	if timeZone != "" {
		call = call.TimeZone(timeZone)
	}

	var items []*calendar.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gcal: list events for %s: %w", calendarID, err)
	}

	appLog.Debug("gcal list completed", "calendar_id", calendarID, "event_count", len(items))
	return items, nil
}

// ResolveCalendarID returns calendarID if set, otherwise extracts the ID
// from an embed or subscription URL's "src" (plain) or "cid" (base64)
// query parameter.
func ResolveCalendarID(calendarID, rawURL string) (string, error) {
	if id := strings.TrimSpace(calendarID); id != "" {
		return id, nil
	}
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("gcal: neither calendar_id nor url is set")
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("gcal: parse calendar url: %w", err)
	}
	q := u.Query()
	if src := q.Get("src"); src != "" {
		return src, nil
	}
	if cid := q.Get("cid"); cid != "" {
		if decoded, ok := decodeCID(cid); ok {
			return decoded, nil
		}
		return cid, nil
	}
	return "", fmt.Errorf("gcal: url has no src or cid parameter")
}

func decodeCID(cid string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(cid)
		if err != nil {
			continue
		}
		s := string(b)
		if strings.Contains(s, "@") {
			return s, true
		}
	}
	return "", false
}

// Meta is the source metadata attached to every mapped event.
type Meta struct {
	CalendarID string
	Name       string
	Color      string
	// TimeZone is the source override; empty falls back to the event's own
	// zone and then to DefaultLocation.
	TimeZone        string
	DefaultLocation *time.Location
}

// ToEvents maps API events into the shared shape. Cancelled events and
// events without a usable start are skipped.
func ToEvents(items []*calendar.Event, meta Meta) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(items))
	for _, item := range items {
		if item == nil || item.Status == "cancelled" {
			continue
		}
		ev, err := ToEvent(item, meta)
		if err != nil {
			appLog.Debug("gcal event skipped", "calendar_id", meta.CalendarID, "id", item.Id, "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ToEvent maps a single API event.
func ToEvent(item *calendar.Event, meta Meta) (model.CalendarEvent, error) {
	tz := resolveTimeZone(meta, item)
	loc := meta.DefaultLocation
	if l, err := time.LoadLocation(tz); err == nil && tz != "" {
		loc = l
	}
	if loc == nil {
		loc = time.UTC
	}

	start, err := toEventTime(item.Start, loc)
	if err != nil {
		return model.CalendarEvent{}, err
	}

	ev := model.CalendarEvent{
		ID:            item.Id,
		Summary:       item.Summary,
		Start:         start,
		Location:      item.Location,
		CalendarID:    meta.CalendarID,
		CalendarName:  meta.Name,
		CalendarColor: meta.Color,
		TimeZone:      tz,
	}
	if item.End != nil {
		if end, err := toEventTime(item.End, loc); err == nil {
			ev.End = &end
		}
	}
	if err := ev.Normalize(); err != nil {
		return model.CalendarEvent{}, err
	}
	return ev, nil
}

func resolveTimeZone(meta Meta, item *calendar.Event) string {
	if meta.TimeZone != "" {
		return meta.TimeZone
	}
	if item.Start != nil && item.Start.TimeZone != "" {
		return item.Start.TimeZone
	}
	if meta.DefaultLocation != nil {
		return meta.DefaultLocation.String()
	}
	return "UTC"
}

func toEventTime(dt *calendar.EventDateTime, loc *time.Location) (model.EventTime, error) {
	if dt == nil {
		return model.EventTime{}, model.ErrMissingStart
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return model.EventTime{}, fmt.Errorf("gcal: parse dateTime %q: %w", dt.DateTime, err)
		}
		return model.At(t.In(loc)), nil
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return model.EventTime{}, fmt.Errorf("gcal: parse date %q: %w", dt.Date, err)
		}
		return model.EventTime{Time: t, AllDay: true}, nil
	}
	return model.EventTime{}, model.ErrMissingStart
}
