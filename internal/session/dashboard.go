package session

import (
	"findash/internal/week"
)

type Phase int

const (
	Loading Phase = iota
	Failed
	Empty
	Loaded
)

func (p Phase) String() string {
	switch p {
	case Failed:
		return "failed"
	case Empty:
		return "empty"
	case Loaded:
		return "loaded"
	default:
		return "loading"
	}
}

// LoadError is the message shown when the events request fails without
// a server-supplied error.
const LoadError = "Failed to fetch calendar events"

// Dashboard is the events panel state.
type Dashboard struct {
	Phase   Phase
	Error   string
	Buckets week.Buckets
}

// Msg advances a Dashboard.
type Msg interface{ isMsg() }

// EventsLoaded carries a successful grouping.
type EventsLoaded struct{ Buckets week.Buckets }

// EventsFailed carries the error text to display.
type EventsFailed struct{ Message string }

func (EventsLoaded) isMsg() {}
func (EventsFailed) isMsg() {}

// NewDashboard starts in Loading.
func NewDashboard() Dashboard {
	return Dashboard{Phase: Loading}
}

// Update returns the next state.
func (d Dashboard) Update(msg Msg) Dashboard {
	switch m := msg.(type) {
	case EventsLoaded:
		if m.Buckets.Total() == 0 {
			return Dashboard{Phase: Empty, Buckets: m.Buckets}
		}
		return Dashboard{Phase: Loaded, Buckets: m.Buckets}
	case EventsFailed:
		text := m.Message
		if text == "" {
			text = LoadError
		}
		return Dashboard{Phase: Failed, Error: text}
	}
	return d
}

// Ready reports whether loading has finished either way.
func (d Dashboard) Ready() bool {
	return d.Phase != Loading
}
