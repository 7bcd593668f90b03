package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/jira-dashboard/internal/broadcast"
	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/jira"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSearcher) Search(ctx context.Context, startAt, maxResults int) (*jira.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cacheKey(startAt, maxResults))
	if f.err != nil {
		return nil, f.err
	}
	body := `{"startAt":` + itoa(startAt) + `,"maxResults":` + itoa(maxResults) + `,"total":3,"issues":[{"id":"1","key":"P-1"}]}`
	return &jira.SearchResult{Body: []byte(body), StartAt: startAt, MaxResults: maxResults, Total: 3, Count: 1}, nil
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func testConfig() *config.Config {
	return &config.Config{
		CacheTTL:         time.Minute,
		CacheSize:        8,
		BroadcastEnabled: true,
		BroadcastChannel: config.DefaultBroadcastTopic,
		CORSOrigin:       "*",
		JiraAPIToken:     "super-secret-token",
	}
}

func newTestService(t *testing.T, cfg *config.Config, searcher jira.Searcher, hub *broadcast.Hub) *Service {
	t.Helper()
	svc, err := NewService(cfg, searcher, hub)
	require.NoError(t, err)
	return svc
}

func get(h http.Handler, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFetchJiraDataCaching(t *testing.T) {
	searcher := &fakeSearcher{}
	h := newTestService(t, testConfig(), searcher, nil).Handler()

	rec := get(h, "/api/fetch-jira-data?startAt=0&maxResults=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), `"total":3`)

	rec = get(h, "/api/fetch-jira-data?startAt=0&maxResults=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = get(h, "/api/fetch-jira-data?startAt=50&maxResults=50")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	assert.Equal(t, []string{"0:50", "50:50"}, searcher.calls)
}

func TestFetchJiraDataDefaults(t *testing.T) {
	searcher := &fakeSearcher{}
	h := newTestService(t, testConfig(), searcher, nil).Handler()

	rec := get(h, "/api/fetch-jira-data")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"0:100"}, searcher.calls)
}

func TestFetchJiraDataBadParams(t *testing.T) {
	h := newTestService(t, testConfig(), &fakeSearcher{}, nil).Handler()

	for _, target := range []string{
		"/api/fetch-jira-data?startAt=-1",
		"/api/fetch-jira-data?startAt=abc",
		"/api/fetch-jira-data?maxResults=0",
		"/api/fetch-jira-data?maxResults=x",
	} {
		rec := get(h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestFetchJiraDataUpstreamError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("jira search failed: status 401: super-secret-token rejected")}
	h := newTestService(t, testConfig(), searcher, nil).Handler()

	rec := get(h, "/api/fetch-jira-data")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), config.GenericFetchError)
	assert.NotContains(t, rec.Body.String(), "super-secret-token")
}

func TestFetchBroadcasts(t *testing.T) {
	hub := broadcast.NewHub()
	defer hub.Close()
	events, cancel := hub.Subscribe(config.DefaultBroadcastTopic)
	defer cancel()

	svc := newTestService(t, testConfig(), &fakeSearcher{}, hub)
	_, hit, err := svc.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.False(t, hit)

	select {
	case msg := <-events:
		var event FetchedEvent
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, EventJiraDataFetched, event.Event)
		assert.Contains(t, string(event.JiraData), `"key":"P-1"`)
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
}

func TestFetchBroadcastDisabled(t *testing.T) {
	hub := broadcast.NewHub()
	defer hub.Close()
	events, cancel := hub.Subscribe(config.DefaultBroadcastTopic)
	defer cancel()

	cfg := testConfig()
	cfg.BroadcastEnabled = false
	svc := newTestService(t, cfg, &fakeSearcher{}, hub)
	_, _, err := svc.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPurge(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := newTestService(t, testConfig(), searcher, nil)

	_, _, _ = svc.Fetch(context.Background(), 0, 10)
	svc.Purge()
	_, hit, err := svc.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, searcher.calls, 2)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.AuthType = "apikey"
	cfg.APIKey = "k3y"
	h := newTestService(t, cfg, &fakeSearcher{}, nil).Handler()

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/fetch-jira-data").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/fetch-jira-data", "X-API-Key", "k3y").Code)
	// health stays open
	assert.Equal(t, http.StatusOK, get(h, "/api/health").Code)
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestService(t, testConfig(), &fakeSearcher{}, nil).Handler()

	rec := get(h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"ok"`))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
