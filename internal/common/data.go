package common

import (
	"encoding/json"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/models"
)

// ExtractCriteria reads optional filter criteria from a task message. Data
// parts win over text parts; plain text that is not JSON yields no filter.
func ExtractCriteria(message protocol.Message) models.FilterCriteria {
	for _, part := range message.Parts {
		var dp *protocol.DataPart
		switch v := part.(type) {
		case protocol.DataPart:
			dp = &v
		case *protocol.DataPart:
			dp = v
		}
		if dp != nil && dp.Data != nil {
			raw, err := json.Marshal(dp.Data)
			if err != nil {
				logging.Debugf("Failed to marshal DataPart.Data: %v", err)
				continue
			}
			if c, ok := criteriaFromJSON(raw); ok {
				return c
			}
		}
	}

	for _, part := range message.Parts {
		text := TextOf(part)
		if text == "" {
			continue
		}
		if c, ok := criteriaFromJSON([]byte(text)); ok {
			return c
		}
	}
	return models.FilterCriteria{}
}

// TextOf returns the text of a text part, or "" for any other part
func TextOf(part protocol.Part) string {
	switch v := part.(type) {
	case protocol.TextPart:
		return v.Text
	case *protocol.TextPart:
		if v != nil {
			return v.Text
		}
	}
	return ""
}

// criteriaFromJSON accepts both the canonical field names and a few short aliases
func criteriaFromJSON(raw []byte) (models.FilterCriteria, bool) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.FilterCriteria{}, false
	}

	var c models.FilterCriteria
	c.ProjectName, _ = GetStringValue(data, "projectName", "project")
	c.IssueType, _ = GetStringValue(data, "issueType", "issuetype", "type")
	c.Status, _ = GetStringValue(data, "status")
	c.Priority, _ = GetStringValue(data, "priority")
	return c, true
}
