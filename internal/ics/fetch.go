package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "findash/internal/log"
)

// maxFeedBytes caps a single feed body.
const maxFeedBytes = 10 << 20

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads iCal feeds over HTTP(S).
type Fetcher struct {
	client HTTPClient
}

// NewFetcher creates a Fetcher. A nil client gets a default *http.Client
// bounded by timeout.
func NewFetcher(client HTTPClient, timeout time.Duration) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client}
}

// StatusError reports a non-200 feed response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ics fetch %s: unexpected status %d", redactURL(e.URL), e.StatusCode)
}

// Fetch returns the raw body of the feed at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.New("ics fetch: feed URL is empty")
	}
	feedURL := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	appLog.Debug("ics fetch start", "url", redactURL(feedURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics fetch %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("ics fetch %s: read body: %w", redactURL(feedURL), err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("ics fetch %s: body exceeds %d bytes", redactURL(feedURL), maxFeedBytes)
	}

	appLog.Debug("ics fetch success", "url", redactURL(feedURL), "bytes", len(body))
	return body, nil
}

// NormalizeURL rewrites webcal:// subscription links to https://.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if len(u) >= len("webcal://") && strings.EqualFold(u[:len("webcal://")], "webcal://") {
		return "https://" + u[len("webcal://"):]
	}
	return u
}

// redactURL hides sensitive parts of a feed URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	i += len("://")

	j := strings.IndexAny(u[i:], "/?#")
	if j == -1 {
		return u + redactedSuffix
	}
	return u[:i+j] + redactedSuffix
}
