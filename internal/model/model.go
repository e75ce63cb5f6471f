package model

import (
	"encoding/json"
	"errors"
	"time"
)

// SourceKind discriminates how a calendar source is reached.
type SourceKind string

const (
	// KindRemoteAPI is a calendar listed through the Google Calendar API.
	KindRemoteAPI SourceKind = "remote-api"
	// KindFeedURL is a remotely hosted iCal document.
	KindFeedURL SourceKind = "feed-url"
)

// dateLayout is the date-only wire format used for all-day values.
const dateLayout = "2006-01-02"

// EventTime is either a concrete instant or, for all-day events, a calendar
// date. For all-day values only the year/month/day of Time are meaningful.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

// At returns a timed EventTime.
func At(t time.Time) EventTime {
	return EventTime{Time: t}
}

// OnDate returns an all-day EventTime for the given calendar date.
func OnDate(year int, month time.Month, day int) EventTime {
	return EventTime{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), AllDay: true}
}

func (t EventTime) IsZero() bool {
	return t.Time.IsZero()
}

// In localizes the value to loc. Timed values are converted; all-day values
// keep their calendar date and become midnight in loc.
func (t EventTime) In(loc *time.Location) time.Time {
	if t.AllDay {
		y, m, d := t.Time.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return t.Time.In(loc)
}

type eventTimeJSON struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// MarshalJSON emits {"dateTime": RFC3339} or {"date": "YYYY-MM-DD"}.
func (t EventTime) MarshalJSON() ([]byte, error) {
	var out eventTimeJSON
	switch {
	case t.IsZero():
	case t.AllDay:
		out.Date = t.Time.Format(dateLayout)
	default:
		out.DateTime = t.Time.Format(time.RFC3339)
	}
	return json.Marshal(out)
}

func (t *EventTime) UnmarshalJSON(data []byte) error {
	var in eventTimeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.DateTime != "":
		ts, err := time.Parse(time.RFC3339, in.DateTime)
		if err != nil {
			return err
		}
		*t = EventTime{Time: ts}
	case in.Date != "":
		ts, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			return err
		}
		*t = EventTime{Time: ts, AllDay: true}
	default:
		*t = EventTime{}
	}
	return nil
}

// CalendarEvent is the normalized event shape shared by every source kind.
type CalendarEvent struct {
	// ID is unique within its source.
	ID      string `json:"id"`
	Summary string `json:"summary"`

	Start EventTime  `json:"start"`
	End   *EventTime `json:"end,omitempty"`

	Location string `json:"location,omitempty"`

	// Source metadata.
	CalendarID    string `json:"calendarId"`
	CalendarName  string `json:"calendarName"`
	CalendarColor string `json:"calendarColor"`
	TimeZone      string `json:"timeZone"`
}

var ErrMissingStart = errors.New("event has no start")

// Normalize enforces the event invariants: a start must be present and an
// end, if any, may not precede it. An out-of-order end is dropped.
func (e *CalendarEvent) Normalize() error {
	if e.Start.IsZero() {
		return ErrMissingStart
	}
	if e.End != nil {
		if e.End.IsZero() || e.End.In(time.UTC).Before(e.Start.In(time.UTC)) {
			e.End = nil
		}
	}
	return nil
}
