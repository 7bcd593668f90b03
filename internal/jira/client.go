package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"

	"github.com/tuannvm/jira-dashboard/internal/config"
)

// Searcher runs one page of the configured issue search
type Searcher interface {
	Search(ctx context.Context, startAt, maxResults int) (*SearchResult, error)
}

// SearchResult is one page of the upstream search response. Body is the
// response exactly as Jira returned it.
type SearchResult struct {
	Body       json.RawMessage
	StartAt    int
	MaxResults int
	Total      int
	Count      int
}

// Client represents a Jira Cloud API client
type Client struct {
	api        *v3.Client
	jql        string
	fields     []string
	searchPath string
}

// NewClient creates a new Jira client authenticated with the server-side
// credentials from cfg. httpClient may be nil.
func NewClient(cfg *config.Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	site := cfg.JiraBaseURL
	if !strings.HasSuffix(site, "/") {
		site += "/"
	}

	api, err := v3.New(httpClient, site)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	api.Auth.SetBasicAuth(cfg.JiraUsername, cfg.JiraAPIToken)

	searchPath := strings.TrimLeft(cfg.JiraSearchPath, "/")
	if searchPath == "" {
		searchPath = "rest/api/3/search"
	}

	return &Client{
		api:        api,
		jql:        cfg.JiraJQL,
		fields:     cfg.JiraFields,
		searchPath: searchPath,
	}, nil
}

// Search fetches one page of issues matching the configured JQL
func (c *Client) Search(ctx context.Context, startAt, maxResults int) (*SearchResult, error) {
	params := url.Values{}
	params.Set("jql", c.jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	if len(c.fields) > 0 {
		params.Set("fields", strings.Join(c.fields, ","))
	}
	endpoint := fmt.Sprintf("%s?%s", c.searchPath, params.Encode())

	req, err := c.api.NewRequest(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var body json.RawMessage
	resp, err := c.api.Call(req, &body)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("jira search failed: status %d: %w", resp.Code, err)
		}
		return nil, fmt.Errorf("jira search failed: %w", err)
	}

	var envelope struct {
		StartAt    int               `json:"startAt"`
		MaxResults int               `json:"maxResults"`
		Total      int               `json:"total"`
		Issues     []json.RawMessage `json:"issues"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	return &SearchResult{
		Body:       body,
		StartAt:    envelope.StartAt,
		MaxResults: envelope.MaxResults,
		Total:      envelope.Total,
		Count:      len(envelope.Issues),
	}, nil
}
