package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

func TestExtractCriteriaFromDataPart(t *testing.T) {
	msg := protocol.Message{
		Parts: []protocol.Part{
			&protocol.DataPart{Type: "data", Data: map[string]interface{}{"projectName": "Portal", "status": " Open"}},
		},
	}
	assert.Equal(t, models.FilterCriteria{ProjectName: "Portal", Status: " Open"}, ExtractCriteria(msg))
}

func TestExtractCriteriaFromText(t *testing.T) {
	msg := protocol.Message{
		Parts: []protocol.Part{
			&protocol.TextPart{Type: "text", Text: `{"project":"Portal","type":"Bug","priority":"High"}`},
		},
	}
	assert.Equal(t, models.FilterCriteria{ProjectName: "Portal", IssueType: "Bug", Priority: "High"}, ExtractCriteria(msg))
}

func TestExtractCriteriaPlainText(t *testing.T) {
	msg := protocol.Message{
		Parts: []protocol.Part{&protocol.TextPart{Type: "text", Text: "show me the dashboard"}},
	}
	assert.True(t, ExtractCriteria(msg).IsEmpty())
	assert.True(t, ExtractCriteria(protocol.Message{}).IsEmpty())
}

func TestReturnJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	ReturnJSONError(rec, http.StatusBadGateway, "Error fetching Jira data.")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":502,"message":"Error fetching Jira data."}}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS("*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/tickets", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tickets", nil))
	assert.True(t, called)
}

func TestAuthMiddlewareAPIKey(t *testing.T) {
	provider, err := NewAuthProvider("apikey", "", "k3y")
	require.NoError(t, err)

	h := AuthMiddleware(provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, r.Context().Value(AuthInfoKey))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k3y")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAuthProvider(t *testing.T) {
	p, err := NewAuthProvider("", "", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewAuthProvider("jwt", "secret", "")
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = NewAuthProvider("oauth", "", "")
	assert.Error(t, err)
}

func TestHTTPServerServeAndShutdown(t *testing.T) {
	srv, err := NewHTTPServer("test", "127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
