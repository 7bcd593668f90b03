package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

// WebhookPayload is the subset of a Jira webhook the dashboard reads
type WebhookPayload struct {
	Timestamp    int64            `json:"timestamp"`
	WebhookEvent string           `json:"webhookEvent"`
	Issue        models.WireIssue `json:"issue"`
	User         *models.UserRef  `json:"user,omitempty"`
	Changelog    *Changelog       `json:"changelog,omitempty"`
}

// Changelog represents changes made in a Jira issue update
type Changelog struct {
	Items []ChangelogItem `json:"items"`
}

// ChangelogItem represents a single change in a Jira changelog
type ChangelogItem struct {
	Field    string `json:"field"`
	ToString string `json:"toString"`
}

// WebhookEvent is a Jira webhook reduced to what the refresh trigger needs
type WebhookEvent struct {
	Event         string    `json:"event"` // "created", "updated", "deleted", ...
	IssueID       string    `json:"issueId"`
	IssueKey      string    `json:"issueKey"`
	ProjectKey    string    `json:"projectKey"`
	User          string    `json:"user,omitempty"`
	ChangedFields []string  `json:"changedFields,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ParseWebhook converts a Jira webhook body into a WebhookEvent
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var hook WebhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}
	if hook.WebhookEvent == "" {
		return nil, fmt.Errorf("webhook missing webhookEvent")
	}

	issue := hook.Issue.Normalize()
	event := &WebhookEvent{
		Event:    eventType(hook.WebhookEvent),
		IssueID:  issue.ID,
		IssueKey: issue.Key,
	}

	// e.g. "JRA" from "JRA-20002"
	if idx := strings.LastIndex(issue.Key, "-"); idx > 0 {
		event.ProjectKey = issue.Key[:idx]
	}
	if hook.User != nil {
		event.User = hook.User.DisplayName
	}
	if hook.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(hook.Timestamp).UTC()
	} else {
		event.Timestamp = time.Now().UTC()
	}
	if hook.Changelog != nil {
		for _, item := range hook.Changelog.Items {
			event.ChangedFields = append(event.ChangedFields, item.Field)
		}
	}
	return event, nil
}

// AffectsDashboard reports whether the event changes the issue set or any
// field the dashboard aggregates
func (e *WebhookEvent) AffectsDashboard() bool {
	switch e.Event {
	case "created", "deleted":
		return true
	case "updated":
		if len(e.ChangedFields) == 0 {
			return true
		}
		for _, f := range e.ChangedFields {
			switch strings.ToLower(f) {
			case "status", "priority", "assignee", "issuetype", "project", "resolution", "resolutiondate", "timespent", "timeestimate", "summary":
				return true
			}
		}
		return false
	default:
		return false
	}
}

// eventType extracts the simplified event type from the full webhook event
func eventType(webhookEvent string) string {
	switch webhookEvent {
	case "jira:issue_created":
		return "created"
	case "jira:issue_updated":
		return "updated"
	case "jira:issue_deleted":
		return "deleted"
	default:
		if parts := strings.SplitN(webhookEvent, ":", 2); len(parts) > 1 {
			return parts[1]
		}
		return webhookEvent
	}
}
