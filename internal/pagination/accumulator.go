// Package pagination drives a page fetcher until the full issue set behind
// a paginated endpoint has been collected.
package pagination

import (
	"context"
	"errors"

	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

// Result is the outcome of an accumulation run
type Result struct {
	Issues []models.Issue
	Total  int
	Pages  int
}

// Progress is reported after every merged page
type Progress struct {
	Loaded  int
	Total   int
	StartAt int
	Pages   int
}

// Accumulator collects issues page by page, dropping any issue whose id is
// already known. It is not safe for concurrent use; each refresh cycle owns
// its own Accumulator.
type Accumulator struct {
	pageSize int
	onPage   func(Progress)

	issues []models.Issue
	known  map[string]struct{}
}

// Option configures an Accumulator
type Option func(*Accumulator)

// WithProgress registers a callback invoked after each merged page
func WithProgress(fn func(Progress)) Option {
	return func(a *Accumulator) { a.onPage = fn }
}

// New creates an Accumulator requesting pageSize issues per page
func New(pageSize int, opts ...Option) *Accumulator {
	if pageSize <= 0 {
		pageSize = tracker.DefaultPageSize
	}
	a := &Accumulator{pageSize: pageSize}
	for _, opt := range opts {
		opt(a)
	}
	a.Reset()
	return a
}

// PageSize returns the number of issues requested per page
func (a *Accumulator) PageSize() int {
	return a.pageSize
}

// Reset clears the accumulated issues
func (a *Accumulator) Reset() {
	a.issues = nil
	a.known = make(map[string]struct{})
}

// Merge appends the issues of batch whose id is not yet known, in received
// order, and returns how many were appended
func (a *Accumulator) Merge(batch []models.Issue) int {
	added := 0
	for _, issue := range batch {
		if _, ok := a.known[issue.ID]; ok {
			continue
		}
		a.known[issue.ID] = struct{}{}
		a.issues = append(a.issues, issue)
		added++
	}
	return added
}

// Issues returns a copy of the accumulated issues
func (a *Accumulator) Issues() []models.Issue {
	out := make([]models.Issue, len(a.issues))
	copy(out, a.issues)
	return out
}

// Len returns the number of accumulated issues
func (a *Accumulator) Len() int {
	return len(a.issues)
}

// Run clears the accumulator and fetches pages from offset 0, advancing by
// the number of issues each page returned, until the offset reaches the
// total reported by the first page. A failed page aborts the run; the
// returned Result then holds the issues merged so far and the error is
// classified as tracker.ErrFetchFailed.
func (a *Accumulator) Run(ctx context.Context, fetcher tracker.PageFetcher) (Result, error) {
	a.Reset()
	startAt, total, pages := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return a.result(total, pages), err
		}
		page, err := fetcher.FetchPage(ctx, startAt, a.pageSize)
		if err != nil {
			return a.result(total, pages), a.classify(startAt, err)
		}
		pages++
		if pages == 1 {
			total = page.Total
		}
		a.Merge(page.Issues)
		startAt += len(page.Issues)
		a.report(total, startAt, pages)

		if startAt >= total || len(page.Issues) == 0 {
			return a.result(total, pages), nil
		}
	}
}

// RunIncremental is the alternate variant: after each page it continues
// while the requested window, startAt+pageSize, ends before the total
// reported by the first page.
func (a *Accumulator) RunIncremental(ctx context.Context, fetcher tracker.PageFetcher) (Result, error) {
	a.Reset()
	startAt, total, pages := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return a.result(total, pages), err
		}
		page, err := fetcher.FetchPage(ctx, startAt, a.pageSize)
		if err != nil {
			return a.result(total, pages), a.classify(startAt, err)
		}
		pages++
		if pages == 1 {
			total = page.Total
		}
		a.Merge(page.Issues)
		a.report(total, startAt+len(page.Issues), pages)

		if startAt+a.pageSize >= total || len(page.Issues) == 0 {
			return a.result(total, pages), nil
		}
		startAt += len(page.Issues)
	}
}

func (a *Accumulator) classify(startAt int, err error) error {
	if errors.Is(err, tracker.ErrFetchFailed) {
		return err
	}
	return tracker.NewFetchError(startAt, a.pageSize, err)
}

func (a *Accumulator) report(total, startAt, pages int) {
	if a.onPage == nil {
		return
	}
	a.onPage(Progress{
		Loaded:  len(a.issues),
		Total:   total,
		StartAt: startAt,
		Pages:   pages,
	})
}

func (a *Accumulator) result(total, pages int) Result {
	return Result{Issues: a.Issues(), Total: total, Pages: pages}
}

// Merge returns acc extended with the issues of batch whose id does not
// already appear in acc. acc itself is not modified.
func Merge(acc, batch []models.Issue) []models.Issue {
	known := make(map[string]struct{}, len(acc))
	out := make([]models.Issue, len(acc), len(acc)+len(batch))
	copy(out, acc)
	for _, issue := range acc {
		known[issue.ID] = struct{}{}
	}
	for _, issue := range batch {
		if _, ok := known[issue.ID]; ok {
			continue
		}
		known[issue.ID] = struct{}{}
		out = append(out, issue)
	}
	return out
}
