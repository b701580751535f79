// Package jina provides a client for the Jina AI reader, which returns the
// readable text of a public web page.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Jina reader operations.
type Client interface {
	// Read fetches a public URL and returns its readable content.
	Read(ctx context.Context, targetURL string) (*Page, error)
}

// Page is the reader's view of one URL.
type Page struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Tokens  int    `json:"-"`
}

type readResponse struct {
	Code int `json:"code"`
	Data struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Usage   struct {
			Tokens int `json:"tokens"`
		} `json:"usage"`
	} `json:"data"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBackoff sets the delay before the first retry; it doubles per retry.
func WithBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.backoff = d
	}
}

// WithFormat selects the reader's return format ("text" or "markdown").
func WithFormat(format string) Option {
	return func(c *httpClient) {
		c.format = format
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	format  string
	backoff time.Duration
	http    *http.Client
}

// NewClient creates a reader client. The key is optional; without it
// requests run under the anonymous quota.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		format:  "text",
		backoff: time.Second,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes req up to three times, backing off on network errors
// and retryable statuses.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := c.backoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, resp.StatusCode, eris.Wrap(readErr, "jina: read response body")
			}
			if !retryableStatusCode(resp.StatusCode) {
				return body, resp.StatusCode, nil
			}
			lastErr = eris.Errorf("jina: status %d: %s", resp.StatusCode, string(body))
		} else {
			lastErr = err
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, 0, lastErr
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", c.format)

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: unexpected status %d: %s", status, string(body))
	}

	var rr readResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	return &Page{
		Title:   rr.Data.Title,
		URL:     rr.Data.URL,
		Content: rr.Data.Content,
		Tokens:  rr.Data.Usage.Tokens,
	}, nil
}
