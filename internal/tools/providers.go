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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const (
	duckDuckGoURL = "https://html.duckduckgo.com/html/"
	serperURL     = "https://google.serper.dev/search"
	braveURL      = "https://api.search.brave.com/res/v1/web/search"
)

// DuckDuckGo scrapes the keyless HTML results page.
type DuckDuckGo struct {
	Client    *http.Client
	UserAgent string
	BaseURL   string // Overrides the results page URL
}

// Discover implements Discoverer.
func (d *DuckDuckGo) Discover(ctx context.Context, query string, k int) ([]Result, error) {
	endpoint := d.BaseURL
	if endpoint == "" {
		endpoint = duckDuckGoURL
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	return parseDuckDuckGo(doc, k), nil
}

// parseDuckDuckGo walks the results page collecting result__a anchors.
func parseDuckDuckGo(doc *html.Node, k int) []Result {
	var out []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= k {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if target := resolveDuckDuckGoHref(attr(n, "href")); target != "" {
				out = append(out, Result{
					Title: strings.TrimSpace(textContent(n)),
					URL:   target,
				})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// resolveDuckDuckGoHref unwraps the /l/?uddg= redirect links the HTML
// endpoint uses.
func resolveDuckDuckGoHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// Serper queries the serper.dev Google search API.
type Serper struct {
	APIKey  string
	Client  *http.Client
	BaseURL string
}

// Discover implements Discoverer.
func (s *Serper) Discover(ctx context.Context, query string, k int) ([]Result, error) {
	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = serperURL
	}

	body, err := json.Marshal(map[string]any{"q": query, "num": k})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper returned status %d: %s", resp.StatusCode,
			strings.TrimSpace(string(msg)))
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]Result, 0, len(raw.Organic))
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

// Brave queries the Brave web search API.
type Brave struct {
	APIKey  string
	Client  *http.Client
	BaseURL string
}

// Discover implements Discoverer.
func (b *Brave) Discover(ctx context.Context, query string, k int) ([]Result, error) {
	endpoint := b.BaseURL
	if endpoint == "" {
		endpoint = braveURL
	}

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(k)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]Result, 0, len(raw.Web.Results))
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}
