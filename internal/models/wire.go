package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// IssueID accepts both string and numeric identifiers. Any other JSON value
// decodes as an empty id.
type IssueID string

// UnmarshalJSON implements json.Unmarshaler
func (id *IssueID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*id = ""
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*id = IssueID(s)
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = IssueID(n.String())
	}
	return nil
}

// Text is a string field that decodes any non-string JSON value as ""
type Text string

// UnmarshalJSON implements json.Unmarshaler
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = ""
	}
	*t = Text(s)
	return nil
}

// WireIssue is an issue as returned by the Jira search endpoint. Every
// nested record is optional, and a record of the wrong shape decodes as
// absent rather than failing the page.
type WireIssue struct {
	ID     IssueID     `json:"id"`
	Key    Text        `json:"key"`
	Fields *WireFields `json:"fields,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler. An element that is not an
// object yields an issue with no id, key or fields.
func (w *WireIssue) UnmarshalJSON(data []byte) error {
	type plain WireIssue
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		v = plain{}
	}
	*w = WireIssue(v)
	w.raw = append(json.RawMessage(nil), data...)
	return nil
}

// WireFields holds the subset of Jira issue fields the dashboard reads
type WireFields struct {
	Summary        Text          `json:"summary,omitempty"`
	Status         *NamedRef     `json:"status,omitempty"`
	Priority       *NamedRef     `json:"priority,omitempty"`
	IssueType      *NamedRef     `json:"issuetype,omitempty"`
	Project        *NamedRef     `json:"project,omitempty"`
	Assignee       *UserRef      `json:"assignee,omitempty"`
	Reporter       *UserRef      `json:"reporter,omitempty"`
	Created        Text          `json:"created,omitempty"`
	Updated        Text          `json:"updated,omitempty"`
	ResolutionDate Text          `json:"resolutiondate,omitempty"`
	TimeTracking   *TimeTracking `json:"timetracking,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler; a non-object decodes as no fields
func (f *WireFields) UnmarshalJSON(data []byte) error {
	type plain WireFields
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		v = plain{}
	}
	*f = WireFields(v)
	return nil
}

// NamedRef is a Jira object identified by its name (status, priority, ...)
type NamedRef struct {
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler; anything but an object with a
// string name decodes as an unnamed ref
func (r *NamedRef) UnmarshalJSON(data []byte) error {
	var v struct {
		Name Text `json:"name"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		v.Name = ""
	}
	r.Name = string(v.Name)
	return nil
}

// UserRef is a Jira user reference
type UserRef struct {
	DisplayName string `json:"displayName,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler; anything but an object with a
// string displayName decodes as an anonymous user
func (u *UserRef) UnmarshalJSON(data []byte) error {
	var v struct {
		DisplayName Text `json:"displayName"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		v.DisplayName = ""
	}
	u.DisplayName = string(v.DisplayName)
	return nil
}

// TimeTracking holds the Jira time tracking block. Jira Cloud reports the
// estimate as remainingEstimateSeconds; timeEstimateSeconds takes precedence
// when present.
type TimeTracking struct {
	TimeSpentSeconds         *int64 `json:"timeSpentSeconds,omitempty"`
	TimeEstimateSeconds      *int64 `json:"timeEstimateSeconds,omitempty"`
	RemainingEstimateSeconds *int64 `json:"remainingEstimateSeconds,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Fractional seconds are
// truncated and non-numeric values count as absent.
func (t *TimeTracking) UnmarshalJSON(data []byte) error {
	*t = TimeTracking{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	t.TimeSpentSeconds = seconds(fields["timeSpentSeconds"])
	t.TimeEstimateSeconds = seconds(fields["timeEstimateSeconds"])
	t.RemainingEstimateSeconds = seconds(fields["remainingEstimateSeconds"])
	return nil
}

func (t *TimeTracking) estimate() *int64 {
	if t.TimeEstimateSeconds != nil {
		return t.TimeEstimateSeconds
	}
	return t.RemainingEstimateSeconds
}

func seconds(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	if v, err := n.Int64(); err == nil {
		return &v
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	v := int64(f)
	return &v
}

// WirePage is the search response envelope shared by Jira and the proxy
type WirePage struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []WireIssue `json:"issues"`
}

// Normalize converts a wire issue into an Issue. Missing or malformed
// values degrade to their zero value; it never fails.
func (w WireIssue) Normalize() Issue {
	issue := Issue{
		ID:  strings.TrimSpace(string(w.ID)),
		Key: string(w.Key),
		Raw: w.raw,
	}
	if len(issue.Raw) == 0 {
		if raw, err := json.Marshal(w); err == nil {
			issue.Raw = raw
		}
	}
	f := w.Fields
	if f == nil {
		return issue
	}
	issue.Summary = string(f.Summary)
	issue.Status = f.Status.name()
	issue.Priority = f.Priority.name()
	issue.IssueType = f.IssueType.name()
	issue.Project = f.Project.name()
	issue.Assignee = f.Assignee.displayName()
	issue.Reporter = f.Reporter.displayName()
	issue.Created = ParseTimestamp(string(f.Created))
	issue.Updated = ParseTimestamp(string(f.Updated))
	issue.ResolutionDate = ParseTimestamp(string(f.ResolutionDate))
	if tt := f.TimeTracking; tt != nil {
		issue.TimeSpentSeconds = nonNegative(tt.TimeSpentSeconds)
		issue.TimeEstimateSeconds = nonNegative(tt.estimate())
	}
	return issue
}

// ToPage normalizes every issue of the envelope
func (p WirePage) ToPage() Page {
	page := Page{
		Issues:   make([]Issue, 0, len(p.Issues)),
		Total:    p.Total,
		StartAt:  p.StartAt,
		PageSize: p.MaxResults,
	}
	for _, w := range p.Issues {
		page.Issues = append(page.Issues, w.Normalize())
	}
	return page
}

func (r *NamedRef) name() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Name)
}

func (u *UserRef) displayName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.DisplayName)
}

func nonNegative(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
