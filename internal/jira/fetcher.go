package jira

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

// PageFetcher adapts a Searcher to tracker.PageFetcher, for running refresh
// cycles against Jira without going through the proxy
type PageFetcher struct {
	Searcher Searcher
}

// FetchPage implements tracker.PageFetcher
func (f PageFetcher) FetchPage(ctx context.Context, startAt, pageSize int) (models.Page, error) {
	if pageSize <= 0 {
		pageSize = tracker.DefaultPageSize
	}
	res, err := f.Searcher.Search(ctx, startAt, pageSize)
	if err != nil {
		return models.Page{}, tracker.NewFetchError(startAt, pageSize, err)
	}

	var wire models.WirePage
	if err := json.Unmarshal(res.Body, &wire); err != nil {
		return models.Page{}, tracker.NewFetchError(startAt, pageSize, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if wire.Issues == nil {
		return models.Page{}, tracker.NewFetchError(startAt, pageSize, fmt.Errorf("response missing issues"))
	}

	page := wire.ToPage()
	page.StartAt = startAt
	page.PageSize = pageSize
	return page, nil
}
