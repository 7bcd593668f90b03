package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"trpc.group/trpc-go/trpc-a2a-go/auth"

	"github.com/tuannvm/jira-dashboard/internal/broadcast"
	"github.com/tuannvm/jira-dashboard/internal/common"
	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/jira"
	"github.com/tuannvm/jira-dashboard/internal/logging"
)

const (
	defaultStartAt    = 0
	defaultMaxResults = 100

	// EventJiraDataFetched is published after every upstream fetch
	EventJiraDataFetched = "JiraDataFetched"
)

// FetchedEvent is the broadcast payload for a freshly fetched page
type FetchedEvent struct {
	Event    string          `json:"event"`
	JiraData json.RawMessage `json:"jiraData"`
}

// Service relays paginated searches to Jira using server-side credentials
type Service struct {
	cfg      *config.Config
	searcher jira.Searcher
	cache    *expirable.LRU[string, []byte]
	hub      *broadcast.Hub
	auth     auth.Provider
}

// NewService creates a proxy over searcher. hub may be nil to disable broadcasting.
func NewService(cfg *config.Config, searcher jira.Searcher, hub *broadcast.Hub) (*Service, error) {
	provider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1
	}
	return &Service{
		cfg:      cfg,
		searcher: searcher,
		cache:    expirable.NewLRU[string, []byte](size, nil, cfg.CacheTTL),
		hub:      hub,
		auth:     provider,
	}, nil
}

// Handler returns the HTTP routes served by the proxy
func (s *Service) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/fetch-jira-data", s.handleFetch)

	mux := http.NewServeMux()
	mux.Handle("/api/fetch-jira-data", common.AuthMiddleware(s.auth, api))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.hub != nil {
		mux.HandleFunc("GET /ws/{channel}", func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeWS(w, r, r.PathValue("channel"))
		})
	}
	return common.CORS(s.cfg.CORSOrigin, mux)
}

// Fetch returns one page of raw Jira search JSON, from cache when fresh.
// The bool result reports a cache hit.
func (s *Service) Fetch(ctx context.Context, startAt, maxResults int) ([]byte, bool, error) {
	key := cacheKey(startAt, maxResults)
	if body, ok := s.cache.Get(key); ok {
		return body, true, nil
	}

	res, err := s.searcher.Search(ctx, startAt, maxResults)
	if err != nil {
		return nil, false, err
	}
	s.cache.Add(key, res.Body)
	logging.Debugw("Fetched page from Jira", "startAt", startAt, "maxResults", maxResults, "total", res.Total, "issues", res.Count)

	if s.hub != nil && s.cfg.BroadcastEnabled {
		event := FetchedEvent{Event: EventJiraDataFetched, JiraData: res.Body}
		if err := s.hub.Publish(s.cfg.BroadcastChannel, event); err != nil {
			logging.Warnf("Failed to broadcast fetched data: %v", err)
		}
	}
	return res.Body, false, nil
}

// Purge drops every cached page
func (s *Service) Purge() {
	s.cache.Purge()
}

func (s *Service) handleFetch(w http.ResponseWriter, r *http.Request) {
	startAt, err := intParam(r, "startAt", defaultStartAt)
	if err != nil || startAt < 0 {
		common.ReturnJSONError(w, http.StatusBadRequest, "startAt must be a non-negative integer")
		return
	}
	maxResults, err := intParam(r, "maxResults", defaultMaxResults)
	if err != nil || maxResults <= 0 {
		common.ReturnJSONError(w, http.StatusBadRequest, "maxResults must be a positive integer")
		return
	}

	body, hit, err := s.Fetch(r.Context(), startAt, maxResults)
	if err != nil {
		logging.Errorf("Jira search failed (startAt=%d, maxResults=%d): %v", startAt, maxResults, err)
		common.ReturnJSONError(w, http.StatusBadGateway, config.GenericFetchError)
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	common.WriteRawJSON(w, http.StatusOK, body)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"cacheEntries": s.cache.Len(),
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func cacheKey(startAt, maxResults int) string {
	return fmt.Sprintf("%d:%d", startAt, maxResults)
}
