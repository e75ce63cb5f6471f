package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "findash/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	UID string
	// Seq is the SEQUENCE revision number; zero when absent.
	Seq int

	Summary     string
	Description string
	Location    string
	Cancelled   bool

	Start  time.Time
	End    time.Time
	AllDay bool
	// HasEnd is false when the VEVENT carried neither DTEND nor DURATION.
	HasEnd bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in event's own timezone
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

var errEmptyBody = errors.New("empty ICS body")

// ParseICS parses a single feed body into a list of ParsedEvent.
//
//   - Floating times (no TZID, no Z suffix) are read in defaultLoc.
//   - All-day events are detected from VALUE=DATE or a date-only value.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded but not expanded.
//
// A VEVENT that cannot be parsed is logged and skipped.
func ParseICS(body []byte, defaultLoc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	if defaultLoc == nil {
		defaultLoc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, defaultLoc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, defaultLoc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseProp(dtStart.Value, dtStart.ICalParameters, defaultLoc)
	if err != nil {
		// Fall back to the library's own DTSTART handling.
		libStart, libErr := ve.GetStartAt()
		if libErr != nil {
			return out, err
		}
		start = libStart
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, _, err := parseProp(dtEnd.Value, dtEnd.ICalParameters, defaultLoc); err == nil {
			out.End = end
			out.HasEnd = true
		}
	} else if durProp := ve.GetProperty(ical.ComponentProperty("DURATION")); durProp != nil {
		if d, err := parseDuration(durProp.Value); err == nil {
			out.End = out.Start.Add(d)
			out.HasEnd = true
		}
	}
	if !out.HasEnd {
		// RFC 5545: a date-only DTSTART without end lasts one day; a
		// date-time DTSTART without end is instantaneous.
		if out.AllDay {
			out.End = out.Start.AddDate(0, 0, 1)
		} else {
			out.End = out.Start
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE can appear multiple times, each with comma-separated values.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parseProp(part, p.ICalParameters, defaultLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil {
		if t, _, err := parseProp(ridProp.Value, ridProp.ICalParameters, defaultLoc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseProp parses a DATE or DATE-TIME property value honoring the TZID and
// VALUE parameters. The boolean result reports a date-only value.
func parseProp(v string, params map[string][]string, defaultLoc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	loc := defaultLoc
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = l
		}
	}

	dateOnly := !strings.Contains(v, "T")
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}

	switch {
	case dateOnly:
		// All-day values are calendar dates; keep them in the display zone.
		t, err := time.ParseInLocation("20060102", v, defaultLoc)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	}
}

// parseDuration parses the subset of RFC 5545 durations feeds use in
// practice: [+-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	neg := false
	switch {
	case strings.HasPrefix(v, "-"):
		neg = true
		v = v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") {
		return 0, errors.New("duration must start with P")
	}
	v = v[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			inTime = true
		default:
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, errors.New("malformed duration")
			}
			num = ""
			switch {
			case r == 'W' && !inTime:
				total += time.Duration(n) * 7 * 24 * time.Hour
			case r == 'D' && !inTime:
				total += time.Duration(n) * 24 * time.Hour
			case r == 'H' && inTime:
				total += time.Duration(n) * time.Hour
			case r == 'M' && inTime:
				total += time.Duration(n) * time.Minute
			case r == 'S' && inTime:
				total += time.Duration(n) * time.Second
			default:
				return 0, errors.New("malformed duration")
			}
		}
	}
	if num != "" {
		return 0, errors.New("malformed duration")
	}
	if neg {
		total = -total
	}
	return total, nil
}
