package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"findash/internal/config"
	"findash/internal/gcal"
	"findash/internal/ics"
	"findash/internal/model"
)

// ListerFactory constructs the remote calendar client. It is called at
// most once per Build and only when a remote-api source is enabled.
type ListerFactory func(ctx context.Context) (gcal.Lister, error)

// Builder turns configuration entries into sources.
type Builder struct {
	Fetcher   *ics.Fetcher
	NewLister ListerFactory
}

// GoogleListerFactory returns a factory creating a gcal client for apiKey.
func GoogleListerFactory(apiKey string) ListerFactory {
	return func(ctx context.Context) (gcal.Lister, error) {
		return gcal.New(ctx, apiKey)
	}
}

// Build converts the enabled entries of cfgs into sources, preserving
// order. Entries with per-source problems (unknown kind, missing URL, bad
// zone) become sources whose fetch fails with ErrMisconfigured. An error is
// returned only when the shared remote client cannot be constructed.
func (b Builder) Build(ctx context.Context, cfgs []config.SourceConfig) ([]Source, error) {
	var (
		lister      gcal.Lister
		listerBuilt bool
	)

	sources := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.IsEnabled() {
			continue
		}
		info := Info{ID: c.ID, Name: c.Name, Color: c.Color, Kind: c.Kind, TimeZone: c.Timezone}

		if c.Timezone != "" {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				sources = append(sources, broken(info, "invalid timezone %q", c.Timezone))
				continue
			}
		}

		switch c.Kind {
		case model.KindFeedURL:
			if strings.TrimSpace(c.URL) == "" {
				sources = append(sources, broken(info, "feed-url source needs url"))
				continue
			}
			sources = append(sources, NewFeed(info, c.URL, b.Fetcher))

		case model.KindRemoteAPI:
			calendarID, err := gcal.ResolveCalendarID(c.CalendarID, c.URL)
			if err != nil {
				sources = append(sources, broken(info, "%v", err))
				continue
			}
			if !listerBuilt {
				if b.NewLister == nil {
					return nil, fmt.Errorf("build sources: no remote calendar client configured")
				}
				lister, err = b.NewLister(ctx)
				if err != nil {
					return nil, fmt.Errorf("build sources: %w", err)
				}
				listerBuilt = true
			}
			sources = append(sources, NewRemote(info, calendarID, lister))

		default:
			sources = append(sources, broken(info, "unknown kind %q", c.Kind))
		}
	}
	return sources, nil
}

func broken(info Info, format string, args ...any) Source {
	return &misconfigured{
		info: info,
		err:  fmt.Errorf("%w: %s: %s", ErrMisconfigured, info.ID, fmt.Sprintf(format, args...)),
	}
}
