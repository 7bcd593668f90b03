package metrics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

func at(t time.Time) *time.Time { return &t }

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleIssues() []models.Issue {
	return []models.Issue{
		{ID: "1", Status: "Ouvert", Priority: "High", IssueType: "Bug", Assignee: "Alice", Created: at(base)},
		{ID: "2", Status: "Terminé", Priority: "Low", IssueType: "Task", Created: at(base.Add(26 * time.Hour))},
		{ID: "3", Priority: "High", Assignee: "Bob", Created: at(base)},
		{ID: "4", Status: "Ouvert", IssueType: "Bug", Assignee: "Alice"},
		{ID: "5", Status: "À faire", Assignee: "Bob", TimeSpentSeconds: 60, TimeEstimateSeconds: 120},
	}
}

func TestGroupBy_FirstSeenOrderAndDefaults(t *testing.T) {
	issues := sampleIssues()

	status := GroupByStatus(issues)
	assert.Equal(t, []string{"Ouvert", "Terminé", "N/A", "À faire"}, labelsOf(status))
	assert.Equal(t, []int{2, 1, 1, 1}, valuesOf(status))

	assignee := GroupByAssignee(issues)
	assert.Equal(t, []string{"Alice", "Unassigned", "Bob"}, labelsOf(assignee))
	assert.Equal(t, 2, assignee.Get("Alice"))
	assert.Equal(t, 1, assignee.Get("Unassigned"))

	priority := GroupByPriority(issues)
	assert.Equal(t, []string{"High", "Low", "N/A"}, labelsOf(priority))
	assert.Equal(t, 2, priority.Get("N/A"))

	issueType := GroupByIssueType(issues)
	assert.Equal(t, []string{"Bug", "Task", "N/A"}, labelsOf(issueType))
}

func TestCreationDateHistogram(t *testing.T) {
	hist := CreationDateHistogram(sampleIssues(), Options{Location: time.UTC})

	assert.Equal(t, []string{"3/10/2025", "3/11/2025", InvalidDate}, labelsOf(hist))
	assert.Equal(t, []int{2, 1, 2}, valuesOf(hist))
}

func TestCreationDateHistogram_Location(t *testing.T) {
	late := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)

	hist := CreationDateHistogram([]models.Issue{{ID: "1", Created: &late}}, Options{
		Location:   tokyo,
		DateLayout: "2006-01-02",
	})
	assert.Equal(t, []string{"2025-03-11"}, labelsOf(hist))
}

func TestResolutionBucketBoundaries(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name     string
		resolved time.Duration
		want     string
	}{
		{name: "exactly one day", resolved: day, want: BucketUpToOneDay},
		{name: "just over one day", resolved: time.Duration(1.0001 * float64(day)), want: BucketUpToOneWeek},
		{name: "exactly seven days", resolved: 7 * day, want: BucketUpToOneWeek},
		{name: "exactly thirty days", resolved: 30 * day, want: BucketUpToOneMonth},
		{name: "just over thirty days", resolved: time.Duration(30.0001 * float64(day)), want: BucketOverOneMonth},
		{name: "same instant", resolved: 0, want: BucketUpToOneDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := models.Issue{ID: "1", Created: at(base), ResolutionDate: at(base.Add(tt.resolved))}
			assert.Equal(t, tt.want, ResolutionBucket(ResolutionDays(issue, base)))
		})
	}
}

func TestResolutionDays_UsesNowWhenUnresolved(t *testing.T) {
	issue := models.Issue{ID: "1", Created: at(base)}
	assert.InDelta(t, 3.0, ResolutionDays(issue, base.Add(72*time.Hour)), 1e-9)
}

func TestResolutionDays_MissingCreated(t *testing.T) {
	days := ResolutionDays(models.Issue{ID: "1"}, base)
	assert.True(t, math.IsNaN(days))
	assert.Equal(t, BucketOverOneMonth, ResolutionBucket(days))
}

func TestResolutionTimeBuckets(t *testing.T) {
	issues := []models.Issue{
		{ID: "1", Created: at(base), ResolutionDate: at(base.Add(2 * time.Hour))},
		{ID: "2", Created: at(base.Add(-10 * 24 * time.Hour))},
		{ID: "3"},
		{ID: "4", Created: at(base), ResolutionDate: at(base.Add(3 * 24 * time.Hour))},
	}

	buckets := ResolutionTimeBuckets(issues, Options{Now: base})
	assert.Equal(t, []string{BucketUpToOneDay, BucketUpToOneMonth, BucketOverOneMonth, BucketUpToOneWeek}, labelsOf(buckets))
}

func TestScatterSeries(t *testing.T) {
	points := ScatterSeries(sampleIssues())
	require.Len(t, points, 5)
	assert.Equal(t, Point{X: 0, Y: 0}, points[0])
	assert.Equal(t, Point{X: 60, Y: 120}, points[4])
}

func TestSyntheticBurndown(t *testing.T) {
	points := SyntheticBurndown()
	require.Len(t, points, BurndownSprintDays)

	assert.Equal(t, 1, points[0].Day)
	assert.InDelta(t, 100-100.0/14, points[0].Remaining, 1e-9)
	assert.Equal(t, 14, points[13].Day)
	assert.InDelta(t, 0, points[13].Remaining, 1e-9)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i].Remaining, points[i-1].Remaining)
		assert.GreaterOrEqual(t, points[i].Remaining, 0.0)
	}
}

func TestComputeCards(t *testing.T) {
	cards := ComputeCards(sampleIssues(), Options{TodoStatus: "À faire", OpenStatus: "Ouvert", DoneStatus: "Terminé"})
	assert.Equal(t, Cards{Total: 5, Todo: 1, Open: 2, Done: 1}, cards)
}

func TestCompute_EmptySet(t *testing.T) {
	snap := Compute(nil, Options{})
	assert.Zero(t, snap.Cards.Total)
	assert.Zero(t, snap.Status.Len())
	assert.Empty(t, snap.TimeTracking)
	assert.Len(t, snap.Burndown, BurndownSprintDays)
	assert.True(t, snap.BurndownIsPlaceholder)
}

func TestCountsJSON(t *testing.T) {
	c := NewCounts()
	c.Add("b")
	c.Add("a")
	c.Add("b")

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"label":"b","count":2},{"label":"a","count":1}]`, string(data))

	var decoded Counts
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"b", "a"}, labelsOf(&decoded))
	assert.Equal(t, 2, decoded.Get("b"))
}

func labelsOf(c *Counts) []string {
	out := []string{}
	for _, b := range c.Buckets() {
		out = append(out, b.Label)
	}
	return out
}

func valuesOf(c *Counts) []int {
	out := []int{}
	for _, b := range c.Buckets() {
		out = append(out, b.Count)
	}
	return out
}
