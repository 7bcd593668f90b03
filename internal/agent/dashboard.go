package agent

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/tuannvm/jira-dashboard/internal/common"
	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/filter"
	"github.com/tuannvm/jira-dashboard/internal/llm"
	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/metrics"
	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/refresh"
)

// SkillID names the only task this agent answers
const SkillID = "dashboard-metrics"

// DashboardAgent implements the TaskProcessor interface from trpc-a2a-go
type DashboardAgent struct {
	config    *config.Config
	refresher *refresh.Refresher
	llm       llm.Completer
}

// NewDashboardAgent creates a new DashboardAgent. llmClient may be nil.
func NewDashboardAgent(cfg *config.Config, refresher *refresh.Refresher, llmClient llm.Completer) *DashboardAgent {
	return &DashboardAgent{
		config:    cfg,
		refresher: refresher,
		llm:       llmClient,
	}
}

// Skills describes the agent capabilities for the agent card
func Skills() []server.AgentSkill {
	return []server.AgentSkill{
		{
			ID:          SkillID,
			Name:        "Dashboard metrics",
			Description: common.StringPtr("Summarises ticket counts, breakdowns and resolution times, optionally filtered by project, type, status or priority"),
			Tags:        []string{"jira", "metrics", "dashboard"},
			Examples:    []string{`{"projectName":"Portal","status":"Open"}`},
			InputModes:  []string{"text", "data"},
			OutputModes: []string{"text", "data"},
		},
	}
}

// Process implements the TaskProcessor interface from trpc-a2a-go
func (a *DashboardAgent) Process(ctx context.Context, taskID string, message protocol.Message, handle taskmanager.TaskHandle) error {
	logging.Infof("Received task with ID: %s", taskID)

	if err := handle.UpdateStatus(protocol.TaskState("processing"), nil); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	criteria := common.ExtractCriteria(message)
	state := a.refresher.State()
	if !state.HasData() {
		if err := handle.UpdateStatus(protocol.TaskState("fetching_issues"), nil); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		if _, err := a.refresher.Refresh(ctx); err != nil {
			logging.Warnf("Task %s: refresh did not commit: %v", taskID, err)
		}
		// a superseding cycle may have committed meanwhile
		state = a.refresher.State()
		if !state.HasData() {
			return a.fail(handle, config.GenericFetchError)
		}
	}

	issues := filter.Apply(state.Issues, criteria)
	snap := metrics.Compute(issues, metrics.Options{
		Location:   a.config.Location(),
		DateLayout: a.config.DateLayout,
		TodoStatus: a.config.TodoStatusLabel,
		OpenStatus: a.config.OpenStatusLabel,
		DoneStatus: a.config.DoneStatusLabel,
	})

	artifact := protocol.Artifact{
		Name:        common.StringPtr("metrics"),
		Description: common.StringPtr("Dashboard metrics snapshot"),
		Parts: []protocol.Part{&protocol.DataPart{
			Type: "data",
			Data: snap,
			Metadata: map[string]interface{}{
				"content-type": "application/json",
				"cycleId":      state.CycleID,
				"refreshedAt":  state.RefreshedAt,
			},
		}},
	}
	if err := handle.AddArtifact(artifact); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}

	summary := Summarize(snap, criteria)
	if a.llm != nil {
		if err := handle.UpdateStatus(protocol.TaskState("writing_digest"), nil); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		digest, err := llm.Digest(ctx, a.llm, snap, criteria)
		if err != nil {
			logging.Warnf("Task %s: LLM digest failed: %v", taskID, err)
		} else if digest != "" {
			summary += "\n\n" + digest
		}
	}

	responseMsg := &protocol.Message{
		Parts: []protocol.Part{protocol.NewTextPart(summary)},
	}
	if err := handle.UpdateStatus(protocol.TaskState("completed"), responseMsg); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	logging.Infof("Task %s completed successfully", taskID)
	return nil
}

func (a *DashboardAgent) fail(handle taskmanager.TaskHandle, msg string) error {
	responseMsg := &protocol.Message{
		Parts: []protocol.Part{protocol.NewTextPart(msg)},
	}
	if err := handle.UpdateStatus(protocol.TaskState("failed"), responseMsg); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// Summarize renders the headline numbers of a snapshot as plain text
func Summarize(snap metrics.Snapshot, criteria models.FilterCriteria) string {
	var b strings.Builder
	if criteria.IsEmpty() {
		b.WriteString("All tickets")
	} else {
		var parts []string
		for _, kv := range [][2]string{
			{"project", criteria.ProjectName},
			{"type", criteria.IssueType},
			{"status", criteria.Status},
			{"priority", criteria.Priority},
		} {
			if kv[1] != "" {
				parts = append(parts, fmt.Sprintf("%s~%q", kv[0], kv[1]))
			}
		}
		b.WriteString("Tickets matching " + strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, ": %d total, %d to do, %d open, %d done.", snap.Cards.Total, snap.Cards.Todo, snap.Cards.Open, snap.Cards.Done)

	if snap.ResolutionTime != nil && snap.ResolutionTime.Len() > 0 {
		var buckets []string
		for _, bucket := range snap.ResolutionTime.Buckets() {
			buckets = append(buckets, fmt.Sprintf("%s: %d", bucket.Label, bucket.Count))
		}
		fmt.Fprintf(&b, " Resolution time %s.", strings.Join(buckets, ", "))
	}
	return b.String()
}
