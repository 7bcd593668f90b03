// Package filter selects the issues shown in the ticket list.
package filter

import (
	"net/url"
	"strings"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

// Apply returns the issues matching every non-empty criterion, in their
// original order. A criterion matches when the issue field contains it as a
// case-insensitive substring; an absent field never matches a non-empty
// criterion.
func Apply(issues []models.Issue, criteria models.FilterCriteria) []models.Issue {
	if criteria.IsEmpty() {
		out := make([]models.Issue, len(issues))
		copy(out, issues)
		return out
	}

	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if Matches(issue, criteria) {
			out = append(out, issue)
		}
	}
	return out
}

// Matches reports whether a single issue satisfies the criteria
func Matches(issue models.Issue, criteria models.FilterCriteria) bool {
	return contains(issue.Project, fold(criteria.ProjectName)) &&
		contains(issue.IssueType, fold(criteria.IssueType)) &&
		contains(issue.Status, fold(criteria.Status)) &&
		contains(issue.Priority, fold(criteria.Priority))
}

// CriteriaFromQuery reads the criteria from URL query parameters
func CriteriaFromQuery(q url.Values) models.FilterCriteria {
	return models.FilterCriteria{
		ProjectName: q.Get("projectName"),
		IssueType:   q.Get("issueType"),
		Status:      q.Get("status"),
		Priority:    q.Get("priority"),
	}
}

// fold lowercases without trimming; a blank criterion still constrains
func fold(s string) string {
	return strings.ToLower(s)
}

// contains expects needle already folded
func contains(field, needle string) bool {
	if needle == "" {
		return true
	}
	if field == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), needle)
}
