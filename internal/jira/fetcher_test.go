package jira

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

type stubSearcher struct {
	body string
	err  error
}

func (s stubSearcher) Search(ctx context.Context, startAt, maxResults int) (*SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &SearchResult{Body: []byte(s.body)}, nil
}

func TestPageFetcher(t *testing.T) {
	f := PageFetcher{Searcher: stubSearcher{body: `{"total":2,"issues":[{"id":10,"key":"P-1","fields":{"status":{"name":"Open"}}}]}`}}

	page, err := f.FetchPage(context.Background(), 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 50, page.PageSize)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, "10", page.Issues[0].ID)
	assert.Equal(t, "Open", page.Issues[0].Status)
}

func TestPageFetcherKeepsMalformedIssues(t *testing.T) {
	f := PageFetcher{Searcher: stubSearcher{body: `{"total":2,"issues":[
		{"id":"1","key":"P-1","fields":{"priority":{"name":"High"}}},
		{"id":"2","key":"P-2","fields":{"priority":["High"],"issuetype":{"name":3}}}]}`}}

	page, err := f.FetchPage(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Issues, 2)
	assert.Equal(t, "High", page.Issues[0].Priority)
	assert.Empty(t, page.Issues[1].Priority)
	assert.Empty(t, page.Issues[1].IssueType)
	assert.Equal(t, "P-2", page.Issues[1].Key)
}

func TestPageFetcherErrors(t *testing.T) {
	for name, s := range map[string]stubSearcher{
		"search error":   {err: errors.New("status 500")},
		"bad json":       {body: `{`},
		"missing issues": {body: `{"total":3}`},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PageFetcher{Searcher: s}.FetchPage(context.Background(), 0, 10)
			assert.ErrorIs(t, err, tracker.ErrFetchFailed)
		})
	}
}
