// Package agenda assembles the current week's events from every configured
// source.
package agenda

import (
	"context"
	"fmt"
	"time"

	"findash/internal/config"
	appLog "findash/internal/log"
	"findash/internal/model"
	"findash/internal/source"
	"findash/internal/week"
)

// Recorder receives per-source outcomes after every fetch.
type Recorder interface {
	Record(outcomes []source.Outcome)
}

// SourceBuilder is satisfied by source.Builder.
type SourceBuilder interface {
	Build(ctx context.Context, cfgs []config.SourceConfig) ([]source.Source, error)
}

// Service fetches and groups the week. Sources are rebuilt on each call so
// no client state is shared between requests.
type Service struct {
	Builder  SourceBuilder
	Sources  []config.SourceConfig
	Location *time.Location
	Timeout  time.Duration
	Recorder Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Week is the assembled view of one week.
type Week struct {
	Window  week.Window
	Buckets week.Buckets
	// Events holds the in-window events in day order.
	Events   []model.CalendarEvent
	Outcomes []source.Outcome
}

// Week returns the current week. The only error is an aggregate failure;
// individual sources that fail simply contribute nothing.
func (s *Service) Week(ctx context.Context) (Week, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	w := week.WindowFor(now(), loc)

	sources, err := s.Builder.Build(ctx, s.Sources)
	if err != nil {
		return Week{}, fmt.Errorf("agenda: %w", err)
	}

	events, outcomes := source.FetchAll(ctx, sources, w, s.Timeout)
	if s.Recorder != nil {
		s.Recorder.Record(outcomes)
	}

	buckets := week.Group(w, events)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	appLog.Info("week assembled",
		"week_start", w.Start.Format(time.DateOnly),
		"sources", len(sources),
		"failed", failed,
		"events", buckets.Total(),
	)

	return Week{
		Window:   w,
		Buckets:  buckets,
		Events:   buckets.Flatten(),
		Outcomes: outcomes,
	}, nil
}

// Probe fetches the week only to refresh diagnostics.
func (s *Service) Probe(ctx context.Context) {
	if _, err := s.Week(ctx); err != nil {
		appLog.Error("source probe failed", err)
	}
}
