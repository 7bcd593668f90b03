package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

// DefaultPageSize is the number of issues requested per page
const DefaultPageSize = 100

// PageFetcher fetches a single page of issues
type PageFetcher interface {
	FetchPage(ctx context.Context, startAt, pageSize int) (models.Page, error)
}

// FetchFunc adapts a function to PageFetcher
type FetchFunc func(ctx context.Context, startAt, pageSize int) (models.Page, error)

// FetchPage implements PageFetcher
func (f FetchFunc) FetchPage(ctx context.Context, startAt, pageSize int) (models.Page, error) {
	return f(ctx, startAt, pageSize)
}

// Client fetches issue pages from the proxy endpoint
type Client struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithAPIKey sends the key in the X-API-Key header
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// WithTimeout bounds every page request
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient creates a client for the given proxy endpoint
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		timeout:    30 * time.Second,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests one page. Every failure, including a timeout, is
// returned as a *FetchError.
func (c *Client) FetchPage(ctx context.Context, startAt, pageSize int) (models.Page, error) {
	if startAt < 0 {
		startAt = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("invalid endpoint: %w", err))
	}
	q := u.Query()
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("status %d, body: %s", resp.StatusCode, truncate(body)))
	}

	var wire models.WirePage
	if err := json.Unmarshal(body, &wire); err != nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if wire.Issues == nil {
		return models.Page{}, NewFetchError(startAt, pageSize, fmt.Errorf("response missing issues"))
	}

	page := wire.ToPage()
	page.StartAt = startAt
	page.PageSize = pageSize
	return page, nil
}

func truncate(b []byte) string {
	const maxLength = 300
	if len(b) <= maxLength {
		return string(b)
	}
	return string(b[:maxLength]) + "... [truncated]"
}
