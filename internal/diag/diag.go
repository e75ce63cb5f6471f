// Package diag keeps the most recent fetch outcome per calendar source and
// runs the optional background probe.
package diag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "findash/internal/log"
	"findash/internal/source"
)

// Status is the diagnostic view of one source.
type Status struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Retryable   bool      `json:"retryable,omitempty"`
	EventCount  int       `json:"event_count"`
	DurationMS  int64     `json:"duration_ms"`

	order int
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Status
	nextID int
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Status)}
}

// Record merges fetch outcomes. A failure keeps the previous LastSuccess.
func (r *Registry) Record(outcomes []source.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range outcomes {
		st, ok := r.byID[o.Source.ID]
		if !ok {
			st = &Status{order: r.nextID}
			r.nextID++
			r.byID[o.Source.ID] = st
		}
		st.ID = o.Source.ID
		st.Name = o.Source.Name
		st.Kind = string(o.Source.Kind)
		st.LastAttempt = o.StartedAt
		st.DurationMS = o.Duration.Milliseconds()
		st.Retryable = o.Retryable
		if o.Err != nil {
			st.LastError = o.Err.Error()
			st.EventCount = 0
			continue
		}
		st.LastError = ""
		st.LastSuccess = o.StartedAt
		st.EventCount = o.EventCount
	}
}

// Snapshot returns a copy of every status in first-recorded order.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.byID))
	for _, st := range r.byID {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Prober calls fn on a cron schedule.
type Prober struct {
	cron *cron.Cron
}

// NewProber schedules fn with a standard five-field cron expression
// evaluated in loc. Each run gets its own context bounded by timeout.
func NewProber(spec string, loc *time.Location, timeout time.Duration, fn func(ctx context.Context)) (*Prober, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		appLog.Debug("source probe started", "schedule", spec)
		fn(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("diag: schedule probe %q: %w", spec, err)
	}
	return &Prober{cron: c}, nil
}

func (p *Prober) Start() {
	p.cron.Start()
}

// Stop halts scheduling and waits for a running probe or ctx.
func (p *Prober) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
