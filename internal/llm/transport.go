//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Retry defaults for provider requests.
const (
	DefaultMaxRetries = 2
	DefaultBackoff    = 500 * time.Millisecond

	// maxRetryAfter caps how long a server may ask us to wait.
	maxRetryAfter = 30 * time.Second
)

// ErrorParser turns a non-2xx provider response into an Error.
type ErrorParser func(status int, body []byte) *Error

// Transport posts JSON requests to a provider API. Failures the
// ErrorParser marks retryable, and network errors, are retried with
// exponential backoff; a Retry-After header lengthens the wait.
type Transport struct {
	Client     *http.Client
	BaseURL    string
	Header     http.Header
	MaxRetries int
	Backoff    time.Duration
	ParseError ErrorParser
}

// NewTransport returns a Transport with the default retry policy.
func NewTransport(baseURL string, timeout time.Duration, header http.Header, parse ErrorParser) *Transport {
	return &Transport{
		Client:     &http.Client{Timeout: timeout},
		BaseURL:    baseURL,
		Header:     header,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		ParseError: parse,
	}
}

// SetTimeout changes the timeout of the underlying HTTP client.
func (t *Transport) SetTimeout(d time.Duration) {
	t.Client.Timeout = d
}

// PostJSON sends in as JSON to BaseURL+path and decodes a successful
// response into out.
func (t *Transport) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		wait, err := t.post(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= t.MaxRetries || !IsRetryable(err) {
			return lastErr
		}

		if backoff := t.Backoff << attempt; backoff > wait {
			wait = backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
}

// post makes a single attempt. It returns the wait the server asked for,
// if any.
func (t *Transport) post(ctx context.Context, path string, payload []byte, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return 0, &Error{
			Code:      ErrCodeNetworkError,
			Message:   fmt.Sprintf("request to %s failed: %v", t.BaseURL, err),
			Retryable: ctx.Err() == nil,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &Error{
			Code:      ErrCodeNetworkError,
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Retryable: ctx.Err() == nil,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return retryAfter(resp.Header.Get("Retry-After")), t.parseError(resp.StatusCode, body)
	}

	if out == nil {
		return 0, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return 0, nil
}

func (t *Transport) parseError(status int, body []byte) error {
	if t.ParseError != nil {
		if e := t.ParseError(status, body); e != nil {
			return e
		}
	}
	return &Error{
		Code:       CodeForStatus(status),
		Message:    fmt.Sprintf("API error (status %d): %s", status, string(body)),
		StatusCode: status,
		Retryable:  RetryableStatus(status),
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrCodeInvalidKey
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrCodeTimeout
	default:
		return ErrCodeModelError
	}
}

// RetryableStatus reports whether a request failing with status may
// succeed later.
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
