// Package metrics derives the dashboard statistics from an issue set. Every
// function is a pure function of its input and never fails: missing or
// malformed fields fall back to their documented default labels.
package metrics

import (
	"math"
	"time"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

// Labels used by the creation histogram and resolution buckets
const (
	InvalidDate       = "Invalid Date"
	DefaultDateLayout = "1/2/2006"

	BucketUpToOneDay   = "0-1 days"
	BucketUpToOneWeek  = "1-7 days"
	BucketUpToOneMonth = "7-30 days"
	BucketOverOneMonth = ">30 days"
)

// Placeholder sprint used by SyntheticBurndown
const (
	BurndownSprintDays = 14
	BurndownTotalWork  = 100.0
)

// Options parameterise the time-dependent aggregations
type Options struct {
	// Now closes the resolution time of unresolved issues
	Now time.Time
	// Location and DateLayout format the creation date labels
	Location   *time.Location
	DateLayout string
	// Literal status names counted by the metric cards
	TodoStatus string
	OpenStatus string
	DoneStatus string
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.DateLayout == "" {
		o.DateLayout = DefaultDateLayout
	}
	return o
}

// GroupByStatus counts issues per status name
func GroupByStatus(issues []models.Issue) *Counts {
	return groupBy(issues, models.Issue.StatusLabel)
}

// GroupByPriority counts issues per priority name
func GroupByPriority(issues []models.Issue) *Counts {
	return groupBy(issues, models.Issue.PriorityLabel)
}

// GroupByAssignee counts issues per assignee display name
func GroupByAssignee(issues []models.Issue) *Counts {
	return groupBy(issues, models.Issue.AssigneeLabel)
}

// GroupByIssueType counts issues per issue type name
func GroupByIssueType(issues []models.Issue) *Counts {
	return groupBy(issues, models.Issue.IssueTypeLabel)
}

func groupBy(issues []models.Issue, label func(models.Issue) string) *Counts {
	c := NewCounts()
	for _, issue := range issues {
		c.Add(label(issue))
	}
	return c
}

// CreationDateHistogram counts issues per calendar day of creation
func CreationDateHistogram(issues []models.Issue, opts Options) *Counts {
	opts = opts.withDefaults()
	c := NewCounts()
	for _, issue := range issues {
		if issue.Created == nil {
			c.Add(InvalidDate)
			continue
		}
		c.Add(issue.Created.In(opts.Location).Format(opts.DateLayout))
	}
	return c
}

// ResolutionDays returns the days between creation and resolution, using
// now for unresolved issues. It is NaN when the creation time is unknown.
func ResolutionDays(issue models.Issue, now time.Time) float64 {
	if issue.Created == nil {
		return math.NaN()
	}
	end := now
	if issue.ResolutionDate != nil {
		end = *issue.ResolutionDate
	}
	return end.Sub(*issue.Created).Hours() / 24
}

// ResolutionBucket maps a duration in days to its bucket. Upper edges are
// inclusive. NaN fails every comparison and lands in ">30 days".
func ResolutionBucket(days float64) string {
	switch {
	case days <= 1:
		return BucketUpToOneDay
	case days <= 7:
		return BucketUpToOneWeek
	case days <= 30:
		return BucketUpToOneMonth
	default:
		return BucketOverOneMonth
	}
}

// ResolutionTimeBuckets counts issues per resolution time bucket
func ResolutionTimeBuckets(issues []models.Issue, opts Options) *Counts {
	opts = opts.withDefaults()
	c := NewCounts()
	for _, issue := range issues {
		c.Add(ResolutionBucket(ResolutionDays(issue, opts.Now)))
	}
	return c
}

// Point is a time spent / time estimate pair, in seconds
type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// ScatterSeries returns one (timeSpent, timeEstimate) point per issue
func ScatterSeries(issues []models.Issue) []Point {
	out := make([]Point, 0, len(issues))
	for _, issue := range issues {
		out = append(out, Point{X: issue.TimeSpentSeconds, Y: issue.TimeEstimateSeconds})
	}
	return out
}

// BurndownPoint is the remaining work at the end of a sprint day
type BurndownPoint struct {
	Day       int     `json:"day"`
	Remaining float64 `json:"remainingWork"`
}

// SyntheticBurndown returns a linear placeholder burndown over a fixed
// 14-day sprint and 100 units of work. It is sample data and does not read
// the issue set.
func SyntheticBurndown() []BurndownPoint {
	out := make([]BurndownPoint, 0, BurndownSprintDays)
	for day := 1; day <= BurndownSprintDays; day++ {
		remaining := BurndownTotalWork - float64(day)*(BurndownTotalWork/BurndownSprintDays)
		out = append(out, BurndownPoint{Day: day, Remaining: math.Max(0, remaining)})
	}
	return out
}

// Cards are the headline counters of the dashboard
type Cards struct {
	Total int `json:"total"`
	Todo  int `json:"todo"`
	Open  int `json:"open"`
	Done  int `json:"done"`
}

// ComputeCards counts issues whose status exactly matches the configured
// todo, open and done labels
func ComputeCards(issues []models.Issue, opts Options) Cards {
	cards := Cards{Total: len(issues)}
	for _, issue := range issues {
		switch issue.Status {
		case "":
		case opts.TodoStatus:
			cards.Todo++
		case opts.OpenStatus:
			cards.Open++
		case opts.DoneStatus:
			cards.Done++
		}
	}
	return cards
}

// Snapshot bundles every aggregation of one issue set
type Snapshot struct {
	Cards          Cards           `json:"cards"`
	Status         *Counts         `json:"status"`
	Priority       *Counts         `json:"priority"`
	Assignee       *Counts         `json:"assignee"`
	IssueType      *Counts         `json:"issueType"`
	CreatedPerDay  *Counts         `json:"createdPerDay"`
	ResolutionTime *Counts         `json:"resolutionTime"`
	TimeTracking   []Point         `json:"timeTracking"`
	Burndown       []BurndownPoint `json:"burndown"`
	// The burndown series is sample data, not derived from the issues
	BurndownIsPlaceholder bool `json:"burndownIsPlaceholder"`
}

// Compute runs every aggregation over issues
func Compute(issues []models.Issue, opts Options) Snapshot {
	opts = opts.withDefaults()
	return Snapshot{
		Cards:                 ComputeCards(issues, opts),
		Status:                GroupByStatus(issues),
		Priority:              GroupByPriority(issues),
		Assignee:              GroupByAssignee(issues),
		IssueType:             GroupByIssueType(issues),
		CreatedPerDay:         CreationDateHistogram(issues, opts),
		ResolutionTime:        ResolutionTimeBuckets(issues, opts),
		TimeTracking:          ScatterSeries(issues),
		Burndown:              SyntheticBurndown(),
		BurndownIsPlaceholder: true,
	}
}
