package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultFetchTimeout bounds a remote link fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher downloads user-supplied links.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	readLimit int
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a default transport.
func NewFetcher(client *http.Client, timeout time.Duration, readLimit int, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, timeout: timeout, readLimit: readLimit, logger: logger}
}

// Fetch retrieves rawURL within the configured timeout and normalizes the
// body. Deadline failures wrap ErrTimeout; every other transport or status
// failure wraps ErrUnreachable.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Document{}, fmt.Errorf("%w: %q is not an http(s) link", ErrInputQuality, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, f.classify(ctx, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("%w: %s returned %d", ErrUnreachable, u.Host, resp.StatusCode)
	}

	doc, err := Normalize(linkName(u), resp.Body, f.readLimit)
	if err != nil {
		if errors.Is(err, ErrInputQuality) {
			return Document{}, err
		}
		return Document{}, f.classify(ctx, u, err)
	}
	return doc, nil
}

func (f *Fetcher) classify(ctx context.Context, u *url.URL, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		f.logger.Debug("link fetch timed out", "host", u.Host, "timeout", f.timeout)
		return fmt.Errorf("%w after %s: %v", ErrTimeout, f.timeout, err)
	}
	f.logger.Debug("link fetch failed", "host", u.Host, "error", err)
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func linkName(u *url.URL) string {
	if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
		return base
	}
	return u.Host
}
