// Package dashboard serves the metrics and ticket list computed from the
// committed issue set.
package dashboard

import (
	"io"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/auth"

	"github.com/tuannvm/jira-dashboard/internal/broadcast"
	"github.com/tuannvm/jira-dashboard/internal/common"
	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/filter"
	"github.com/tuannvm/jira-dashboard/internal/jira"
	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/metrics"
	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/refresh"
)

const maxWebhookBody = 1 << 20

// DashboardResponse is the body of GET /api/dashboard
type DashboardResponse struct {
	State   refresh.State    `json:"state"`
	Metrics metrics.Snapshot `json:"metrics"`
	Error   string           `json:"error,omitempty"`
}

// TicketRow is one line of the ticket list with display defaults applied
type TicketRow struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	Summary   string     `json:"summary"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority"`
	IssueType string     `json:"issueType"`
	Project   string     `json:"project"`
	Assignee  string     `json:"assignee"`
	Created   *time.Time `json:"created,omitempty"`
}

// TicketsResponse is the body of GET /api/tickets
type TicketsResponse struct {
	Tickets  []TicketRow           `json:"tickets"`
	Count    int                   `json:"count"`
	Total    int                   `json:"total"`
	Criteria models.FilterCriteria `json:"criteria"`
	Error    string                `json:"error,omitempty"`
}

// Server exposes the dashboard API
type Server struct {
	cfg       *config.Config
	refresher *refresh.Refresher
	hub       *broadcast.Hub
	auth      auth.Provider
	now       func() time.Time

	// called before a webhook-driven refresh, e.g. to drop cached pages
	invalidate func()
}

// Option configures a Server
type Option func(*Server)

// WithInvalidate registers fn to run before every webhook-driven refresh
func WithInvalidate(fn func()) Option {
	return func(s *Server) { s.invalidate = fn }
}

// NewServer creates a dashboard server over refresher. hub may be nil.
func NewServer(cfg *config.Config, refresher *refresh.Refresher, hub *broadcast.Hub, opts ...Option) (*Server, error) {
	provider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		refresher: refresher,
		hub:       hub,
		auth:      provider,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP routes of the dashboard
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/tickets", s.handleTickets)
	api.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux := http.NewServeMux()
	mux.Handle("/api/dashboard", common.AuthMiddleware(s.auth, api))
	mux.Handle("/api/tickets", common.AuthMiddleware(s.auth, api))
	mux.Handle("/api/refresh", common.AuthMiddleware(s.auth, api))
	// Jira cannot send custom auth headers on webhooks
	mux.HandleFunc("POST /api/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeWS(w, r, s.cfg.BroadcastChannel)
		})
	}
	return common.CORS(s.cfg.CORSOrigin, mux)
}

// MetricsOptions builds aggregation options from the configuration
func MetricsOptions(cfg *config.Config, now time.Time) metrics.Options {
	return metrics.Options{
		Now:        now,
		Location:   cfg.Location(),
		DateLayout: cfg.DateLayout,
		TodoStatus: cfg.TodoStatusLabel,
		OpenStatus: cfg.OpenStatusLabel,
		DoneStatus: cfg.DoneStatusLabel,
	}
}

// Rows converts issues into ticket list rows
func Rows(issues []models.Issue) []TicketRow {
	rows := make([]TicketRow, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, TicketRow{
			ID:        issue.ID,
			Key:       issue.Key,
			Summary:   issue.Summary,
			Status:    issue.StatusLabel(),
			Priority:  issue.PriorityLabel(),
			IssueType: issue.IssueTypeLabel(),
			Project:   issue.ProjectLabel(),
			Assignee:  issue.AssigneeLabel(),
			Created:   issue.Created,
		})
	}
	return rows
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	state := s.refresher.State()
	common.WriteJSON(w, http.StatusOK, DashboardResponse{
		State:   state,
		Metrics: metrics.Compute(state.Issues, MetricsOptions(s.cfg, s.now())),
		Error:   visibleError(state),
	})
}

func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	state := s.refresher.State()
	criteria := filter.CriteriaFromQuery(r.URL.Query())
	matched := filter.Apply(state.Issues, criteria)
	common.WriteJSON(w, http.StatusOK, TicketsResponse{
		Tickets:  Rows(matched),
		Count:    len(matched),
		Total:    len(state.Issues),
		Criteria: criteria,
		Error:    visibleError(state),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresher.Trigger()
	common.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.ReturnJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	event, err := jira.ParseWebhook(body)
	if err != nil {
		common.ReturnJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !event.AffectsDashboard() {
		logging.Debugf("Ignoring webhook %s for %s", event.Event, event.IssueKey)
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	logging.Infof("Webhook %s for %s triggers a refresh", event.Event, event.IssueKey)
	if s.invalidate != nil {
		s.invalidate()
	}
	s.refresher.Trigger()
	common.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.refresher.State()
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"issues":      len(state.Issues),
		"refreshing":  state.Refreshing,
		"refreshedAt": state.RefreshedAt,
	})
}

// visibleError is shown only when there is nothing to display
func visibleError(state refresh.State) string {
	if state.LastError != "" && !state.HasData() {
		return state.LastError
	}
	return ""
}
