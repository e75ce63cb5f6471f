// Package week computes the Monday-anchored week window and buckets
// calendar events by local calendar day.
package week

import (
	"time"

	"findash/internal/model"
)

// DayKeyLayout formats a calendar day as MM/DD/YYYY.
const DayKeyLayout = "01/02/2006"

// DaysPerWeek is the number of buckets in every grouping.
const DaysPerWeek = 7

// Window is the half-open range [Start, End) from Monday 00:00 to the
// following Monday 00:00 in Location.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// WindowFor returns the week containing now, evaluated in loc.
func WindowFor(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	// Monday is day 0; Sunday goes back six days.
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d-offset+DaysPerWeek, 0, 0, 0, 0, loc)

	return Window{Start: start, End: end, Location: loc}
}

// Last is the final representable millisecond of the week (Sunday
// 23:59:59.999 local).
func (w Window) Last() time.Time {
	return w.End.Add(-time.Millisecond)
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns local midnight for each of the seven days.
func (w Window) Days() []time.Time {
	y, m, d := w.Start.Date()
	days := make([]time.Time, DaysPerWeek)
	for i := range days {
		days[i] = time.Date(y, m, d+i, 0, 0, 0, 0, w.Location)
	}
	return days
}

// DayKey formats t as a day key in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayKeyLayout)
}

// ParseDayKey parses a key back into local midnight of that day.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayKeyLayout, key, loc)
}

// Day is one bucket of a grouping.
type Day struct {
	Key    string
	Date   time.Time
	Events []model.CalendarEvent
}

// Buckets maps each of the seven day keys of a window to its events.
type Buckets struct {
	window Window
	keys   []string
	byKey  map[string][]model.CalendarEvent
}

// Group buckets events by the local day of their start. Every day of the
// window has a key even when no event maps to it. Events without a start,
// or whose start falls outside the window, are dropped. Relative order
// within a day follows the input order.
func Group(w Window, events []model.CalendarEvent) Buckets {
	b := Buckets{
		window: w,
		keys:   make([]string, 0, DaysPerWeek),
		byKey:  make(map[string][]model.CalendarEvent, DaysPerWeek),
	}
	for _, day := range w.Days() {
		key := DayKey(day, w.Location)
		b.keys = append(b.keys, key)
		b.byKey[key] = []model.CalendarEvent{}
	}

	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		key := DayKey(ev.Start.In(w.Location), w.Location)
		bucket, ok := b.byKey[key]
		if !ok {
			continue
		}
		b.byKey[key] = append(bucket, ev)
	}

	return b
}

// Bucket is Group over the window containing now.
func Bucket(events []model.CalendarEvent, now time.Time, loc *time.Location) Buckets {
	return Group(WindowFor(now, loc), events)
}

func (b Buckets) Window() Window { return b.window }

// Keys returns the day keys in chronological order.
func (b Buckets) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Events returns the events for key and whether the key exists.
func (b Buckets) Events(key string) ([]model.CalendarEvent, bool) {
	evs, ok := b.byKey[key]
	return evs, ok
}

func (b Buckets) Len() int { return len(b.keys) }

// Total counts events across all days.
func (b Buckets) Total() int {
	n := 0
	for _, evs := range b.byKey {
		n += len(evs)
	}
	return n
}

// Days returns the buckets in chronological order.
func (b Buckets) Days() []Day {
	days := make([]Day, 0, len(b.keys))
	for _, key := range b.keys {
		date, _ := ParseDayKey(key, b.window.Location)
		days = append(days, Day{Key: key, Date: date, Events: b.byKey[key]})
	}
	return days
}

// Flatten returns every bucketed event, day by day.
func (b Buckets) Flatten() []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, b.Total())
	for _, key := range b.keys {
		out = append(out, b.byKey[key]...)
	}
	return out
}
