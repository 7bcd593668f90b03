package models

import (
	"encoding/json"
	"time"
)

// Placeholder labels for absent categorical fields
const (
	NotAvailable = "N/A"
	Unassigned   = "Unassigned"
)

// Issue is a tracker ticket after ingestion. Categorical fields hold the
// upstream value or "" when the upstream omitted it; the *Label accessors
// apply the display defaults.
type Issue struct {
	ID                  string          `json:"id"`
	Key                 string          `json:"key"`
	Summary             string          `json:"summary,omitempty"`
	Status              string          `json:"status,omitempty"`
	Priority            string          `json:"priority,omitempty"`
	IssueType           string          `json:"issueType,omitempty"`
	Project             string          `json:"project,omitempty"`
	Assignee            string          `json:"assignee,omitempty"`
	Reporter            string          `json:"reporter,omitempty"`
	Created             *time.Time      `json:"created,omitempty"`
	Updated             *time.Time      `json:"updated,omitempty"`
	ResolutionDate      *time.Time      `json:"resolutionDate,omitempty"`
	TimeSpentSeconds    int64           `json:"timeSpentSeconds"`
	TimeEstimateSeconds int64           `json:"timeEstimateSeconds"`
	Raw                 json.RawMessage `json:"-"`
}

// StatusLabel returns the status name or "N/A"
func (i Issue) StatusLabel() string { return labelOr(i.Status, NotAvailable) }

// PriorityLabel returns the priority name or "N/A"
func (i Issue) PriorityLabel() string { return labelOr(i.Priority, NotAvailable) }

// IssueTypeLabel returns the issue type name or "N/A"
func (i Issue) IssueTypeLabel() string { return labelOr(i.IssueType, NotAvailable) }

// ProjectLabel returns the project name or "N/A"
func (i Issue) ProjectLabel() string { return labelOr(i.Project, NotAvailable) }

// AssigneeLabel returns the assignee display name or "Unassigned"
func (i Issue) AssigneeLabel() string { return labelOr(i.Assignee, Unassigned) }

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Page is the result of a single page fetch
type Page struct {
	Issues   []Issue `json:"issues"`
	Total    int     `json:"total"`
	StartAt  int     `json:"startAt"`
	PageSize int     `json:"maxResults"`
}

// FilterCriteria holds the substring predicates of the ticket list.
// An empty field places no constraint.
type FilterCriteria struct {
	ProjectName string `json:"projectName,omitempty"`
	IssueType   string `json:"issueType,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// IsEmpty reports whether no criterion is set
func (c FilterCriteria) IsEmpty() bool {
	return c.ProjectName == "" && c.IssueType == "" && c.Status == "" && c.Priority == ""
}
