//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

// Fetch defaults.
const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultFetchMaxChars = 3000

	// minContentChars is the length at or below which extracted text is
	// reported as insufficient.
	minContentChars = 50

	maxBodyBytes = 5 << 20
)

// Fetcher downloads a page and extracts its readable text.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	timeout   time.Duration
	maxChars  int
	logger    *slog.Logger
}

// FetcherConfig configures a Fetcher. Zero values take the defaults.
type FetcherConfig struct {
	Client    *http.Client
	Limiter   *rate.Limiter
	UserAgent string
	Timeout   time.Duration
	MaxChars  int
	Logger    *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:    cfg.Client,
		limiter:   cfg.Limiter,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		maxChars:  cfg.MaxChars,
		logger:    cfg.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = DefaultFetchTimeout
	}
	if f.maxChars <= 0 {
		f.maxChars = DefaultFetchMaxChars
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// FetchText returns at most maxChars characters of the page's readable
// text and true, or a diagnostic string and false. It never fails, and
// the result never exceeds maxChars characters.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return f.diagnostic("Invalid URL format: %s", rawURL), false
	}

	text, err := f.fetch(ctx, u)
	if err != nil {
		f.logger.Error("error fetching article", "url", rawURL, "error", err)
		return f.diagnostic("Error fetching content from %s: %v", rawURL, err), false
	}

	if len([]rune(text)) <= minContentChars {
		return f.diagnostic("Insufficient content from %s", rawURL), false
	}

	return truncateRunes(text, f.maxChars), true
}

func (f *Fetcher) diagnostic(format string, args ...any) string {
	return truncateRunes(fmt.Sprintf(format, args...), f.maxChars)
}

// fetch downloads and extracts one page under the fetch timeout.
func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (string, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/plain") {
		return strings.TrimSpace(string(body)), nil
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", fmt.Errorf("failed to extract article: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
