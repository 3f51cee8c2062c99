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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MaxSearchResults is the largest number of URLs a search returns.
const MaxSearchResults = 8

// Search diagnostics.
const (
	NoResultsMessage   = "No valid search results found."
	searchErrorPrefix  = "Error performing search: "
	defaultHTTPTimeout = 15 * time.Second
)

// Search provider names.
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderSerper     = "serper"
	ProviderBrave      = "brave"
)

// ErrUnsupportedProvider is returned for an unknown search provider name.
var ErrUnsupportedProvider = errors.New("unsupported search provider")

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Discoverer queries a search backend.
type Discoverer interface {
	Discover(ctx context.Context, query string, k int) ([]Result, error)
}

// NewDiscoverer creates the backend for a configured provider. client may
// be nil.
func NewDiscoverer(provider, apiKey, userAgent string, client *http.Client) (Discoverer, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	switch strings.ToLower(provider) {
	case ProviderDuckDuckGo, "":
		return &DuckDuckGo{Client: client, UserAgent: userAgent}, nil
	case ProviderSerper:
		if apiKey == "" {
			return nil, fmt.Errorf("serper search requires an API key")
		}
		return &Serper{APIKey: apiKey, Client: client}, nil
	case ProviderBrave:
		if apiKey == "" {
			return nil, fmt.Errorf("brave search requires an API key")
		}
		return &Brave{APIKey: apiKey, Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

// Searcher adapts a Discoverer to the search capability: at most
// MaxResults URLs, never an error.
type Searcher struct {
	backend    Discoverer
	limiter    *rate.Limiter
	maxResults int
	logger     *slog.Logger
}

// NewSearcher creates a Searcher. limiter may be nil; maxResults is
// clamped to MaxSearchResults.
func NewSearcher(backend Discoverer, limiter *rate.Limiter, maxResults int, logger *slog.Logger) *Searcher {
	if maxResults <= 0 || maxResults > MaxSearchResults {
		maxResults = MaxSearchResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		backend:    backend,
		limiter:    limiter,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Search returns result URLs in backend order, deduplicated. On failure it
// returns a single-element diagnostic.
func (s *Searcher) Search(ctx context.Context, query string) []string {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return []string{searchErrorPrefix + err.Error()}
		}
	}

	results, err := s.backend.Discover(ctx, query, s.maxResults)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		return []string{searchErrorPrefix + err.Error()}
	}

	seen := make(map[string]bool, len(results))
	urls := make([]string, 0, s.maxResults)
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == s.maxResults {
			break
		}
	}

	if len(urls) == 0 {
		return []string{NoResultsMessage}
	}
	return urls
}

// IsDiagnostic reports whether a search result is a failure placeholder
// rather than a list of URLs.
func IsDiagnostic(urls []string) bool {
	if len(urls) != 1 {
		return false
	}
	return urls[0] == NoResultsMessage || strings.HasPrefix(urls[0], searchErrorPrefix)
}
