package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/tuannvm/jira-dashboard/internal/dashboard"
	"github.com/tuannvm/jira-dashboard/internal/metrics"
	"github.com/tuannvm/jira-dashboard/internal/refresh"
)

const maxSummaryWidth = 48

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	cardStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 2).
			MarginRight(1)
)

// renderReport renders the dashboard for a terminal
func renderReport(state refresh.State, snap metrics.Snapshot, rows []dashboard.TicketRow, limit int, now time.Time) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Jira dashboard"))
	b.WriteString("\n")
	if !state.RefreshedAt.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s issues, refreshed %s",
			humanize.Comma(int64(state.Total)), humanize.RelTime(state.RefreshedAt, now, "ago", "from now"))))
		b.WriteString("\n")
	}
	if state.LastError != "" {
		b.WriteString(errorStyle.Render(state.LastError))
		b.WriteString("\n")
	}

	b.WriteString(renderCards(snap.Cards))
	b.WriteString("\n")
	b.WriteString(renderCounts("Status", snap.Status))
	b.WriteString(renderCounts("Priority", snap.Priority))
	b.WriteString(renderCounts("Assignee", snap.Assignee))
	b.WriteString(renderCounts("Issue type", snap.IssueType))
	b.WriteString(renderCounts("Resolution time", snap.ResolutionTime))

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Tickets (%d)", len(rows))))
	b.WriteString("\n")
	b.WriteString(renderTickets(rows, limit))
	return b.String()
}

func renderCards(c metrics.Cards) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total", c.Total),
		card("To do", c.Todo),
		card("Open", c.Open),
		card("Done", c.Done),
	)
}

func card(label string, n int) string {
	return cardStyle.Render(dimStyle.Render(label) + "\n" + humanize.Comma(int64(n)))
}

func renderCounts(title string, c *metrics.Counts) string {
	if c == nil || c.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, c.Len())
	for _, bucket := range c.Buckets() {
		parts = append(parts, fmt.Sprintf("%s %d", bucket.Label, bucket.Count))
	}
	return sectionStyle.Render(title) + "\n" + strings.Join(parts, dimStyle.Render(" · ")) + "\n"
}

func renderTickets(rows []dashboard.TicketRow, limit int) string {
	if len(rows) == 0 {
		return dimStyle.Render("No tickets match.")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("KEY", "SUMMARY", "STATUS", "PRIORITY", "PROJECT", "ASSIGNEE", "CREATED")

	shown := rows
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, row := range shown {
		created := ""
		if row.Created != nil {
			created = row.Created.Format("2006-01-02")
		}
		t.Row(row.Key, ellipsis(row.Summary, maxSummaryWidth), row.Status, row.Priority, row.Project, row.Assignee, created)
	}

	out := t.String()
	if len(shown) < len(rows) {
		out += "\n" + dimStyle.Render(fmt.Sprintf("... and %d more", len(rows)-len(shown)))
	}
	return out
}

func ellipsis(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
