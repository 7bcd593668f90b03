package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuannvm/jira-dashboard/internal/metrics"
	"github.com/tuannvm/jira-dashboard/internal/models"
)

// maxBuckets bounds how many labels of each breakdown go into the prompt
const maxBuckets = 10

// digestInstruction is the system message of every digest request
const digestInstruction = "You are reporting on a Jira project dashboard. " +
	"Write a digest of at most five sentences for an engineering manager. " +
	"Point out anything that looks unhealthy. Do not invent numbers."

// DigestPrompt renders a metrics snapshot as the data part of a digest request
func DigestPrompt(snap metrics.Snapshot, criteria models.FilterCriteria) string {
	var b strings.Builder
	if !criteria.IsEmpty() {
		fmt.Fprintf(&b, "Filter: project=%q type=%q status=%q priority=%q\n",
			criteria.ProjectName, criteria.IssueType, criteria.Status, criteria.Priority)
	}
	fmt.Fprintf(&b, "Tickets: %d (to do %d, open %d, done %d)\n",
		snap.Cards.Total, snap.Cards.Todo, snap.Cards.Open, snap.Cards.Done)

	writeCounts(&b, "By status", snap.Status)
	writeCounts(&b, "By priority", snap.Priority)
	writeCounts(&b, "By assignee", snap.Assignee)
	writeCounts(&b, "By type", snap.IssueType)
	writeCounts(&b, "Resolution time", snap.ResolutionTime)
	return b.String()
}

// Digest asks c for a short digest of snap
func Digest(ctx context.Context, c Completer, snap metrics.Snapshot, criteria models.FilterCriteria) (string, error) {
	out, err := c.Complete(ctx, digestInstruction, DigestPrompt(snap, criteria))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func writeCounts(b *strings.Builder, title string, c *metrics.Counts) {
	if c == nil || c.Len() == 0 {
		return
	}
	parts := make([]string, 0, maxBuckets)
	for i, bucket := range c.Buckets() {
		if i == maxBuckets {
			parts = append(parts, fmt.Sprintf("and %d more", c.Len()-maxBuckets))
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%d", bucket.Label, bucket.Count))
	}
	fmt.Fprintf(b, "%s: %s\n", title, strings.Join(parts, ", "))
}
