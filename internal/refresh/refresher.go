// Package refresh runs refresh cycles that rebuild the dashboard issue set
// and commits the result of the most recent cycle only.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/pagination"
	"github.com/tuannvm/jira-dashboard/internal/store"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

// EventJiraDataUpdated is published after every committed cycle
const EventJiraDataUpdated = "JiraDataUpdated"

// ErrSuperseded is returned by a cycle that was replaced by a newer one
// before it could commit
var ErrSuperseded = errors.New("refresh cycle superseded")

// State is the committed dashboard data plus the status of the running cycle
type State struct {
	Issues      []models.Issue `json:"-"`
	Total       int            `json:"total"`
	CycleID     string         `json:"cycleId,omitempty"`
	RefreshedAt time.Time      `json:"refreshedAt,omitempty"`
	LastError   string         `json:"error,omitempty"`
	Refreshing  bool           `json:"refreshing"`
	Loaded      int            `json:"loaded"`
}

// HasData reports whether any cycle has committed yet
func (s State) HasData() bool {
	return s.CycleID != ""
}

// SnapshotStore persists committed issue sets
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadSnapshot(ctx context.Context) (*store.Snapshot, error)
}

// Publisher delivers update notifications
type Publisher interface {
	Publish(channel string, v interface{}) error
}

// UpdatedEvent is the broadcast payload for a committed cycle
type UpdatedEvent struct {
	Event       string    `json:"event"`
	CycleID     string    `json:"cycleId"`
	Total       int       `json:"total"`
	Issues      int       `json:"issues"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Refresher owns the committed issue set. Each cycle accumulates into its
// own buffer and a newer cycle cancels the one in flight.
type Refresher struct {
	fetcher     tracker.PageFetcher
	pageSize    int
	incremental bool
	store       SnapshotStore
	publisher   Publisher
	channel     string
	now         func() time.Time
	newID       func() string

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.RWMutex
	state   State
	current string
	cancel  context.CancelFunc

	// background cycle started by Trigger, and whether another was requested meanwhile
	triggered bool
	pending   bool
}

// Option configures a Refresher
type Option func(*Refresher)

// WithStore persists every commit and enables Restore
func WithStore(s SnapshotStore) Option {
	return func(r *Refresher) { r.store = s }
}

// WithPublisher announces every commit on channel
func WithPublisher(p Publisher, channel string) Option {
	return func(r *Refresher) {
		r.publisher = p
		r.channel = channel
	}
}

// WithIncremental switches to the startAt+pageSize < total continuation rule
func WithIncremental() Option {
	return func(r *Refresher) { r.incremental = true }
}

// WithClock overrides the commit timestamp source
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher reading pages from fetcher
func NewRefresher(fetcher tracker.PageFetcher, pageSize int, opts ...Option) *Refresher {
	ctx, stop := context.WithCancel(context.Background())
	r := &Refresher{
		fetcher:  fetcher,
		pageSize: pageSize,
		channel:  config.DefaultBroadcastTopic,
		now:      time.Now,
		newID:    uuid.NewString,
		ctx:      ctx,
		stop:     stop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy of the committed state
func (r *Refresher) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyStateLocked()
}

func (r *Refresher) copyStateLocked() State {
	st := r.state
	st.Issues = append([]models.Issue(nil), r.state.Issues...)
	return st
}

// Refresh runs one full cycle and commits it unless a newer cycle started
// meanwhile. A failed cycle keeps the previously committed issues.
func (r *Refresher) Refresh(ctx context.Context) (State, error) {
	id := r.newID()
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.cancel != nil {
		logging.Debugf("Refresh cycle %s supersedes %s", id, r.current)
		r.cancel()
	}
	r.current = id
	r.cancel = cancel
	r.state.Refreshing = true
	r.state.Loaded = 0
	r.mu.Unlock()

	acc := pagination.New(r.pageSize, pagination.WithProgress(func(p pagination.Progress) {
		r.progress(id, p)
	}))
	var (
		res pagination.Result
		err error
	)
	if r.incremental {
		res, err = acc.RunIncremental(cycleCtx, r.fetcher)
	} else {
		res, err = acc.Run(cycleCtx, r.fetcher)
	}

	r.mu.Lock()
	if r.current != id {
		r.mu.Unlock()
		logging.Debugf("Refresh cycle %s discarded after %d pages", id, res.Pages)
		return State{}, ErrSuperseded
	}
	r.current = ""
	r.cancel = nil
	r.state.Refreshing = false
	r.state.Loaded = 0

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.state.LastError = config.GenericFetchError
		}
		st := r.copyStateLocked()
		r.mu.Unlock()
		logging.Errorf("Refresh cycle %s failed after %d pages: %v", id, res.Pages, err)
		return st, err
	}

	r.state = State{
		Issues:      res.Issues,
		Total:       res.Total,
		CycleID:     id,
		RefreshedAt: r.now(),
	}
	st := r.copyStateLocked()
	r.mu.Unlock()

	logging.Infow("Refresh cycle committed", "cycle", id, "issues", len(st.Issues), "total", st.Total, "pages", res.Pages)
	r.persist(ctx, st)
	r.announce(st)
	return st, nil
}

// Trigger runs a cycle in the background. While a triggered cycle is in
// flight further triggers coalesce into a single follow-up cycle, so a burst
// of triggers cannot keep cancelling each other before anything commits.
func (r *Refresher) Trigger() {
	r.mu.Lock()
	if r.triggered {
		r.pending = true
		r.mu.Unlock()
		return
	}
	r.triggered = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			if _, err := r.Refresh(r.ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				logging.Warnf("Triggered refresh failed: %v", err)
			}

			r.mu.Lock()
			if !r.pending || r.ctx.Err() != nil {
				r.triggered = false
				r.pending = false
				r.mu.Unlock()
				return
			}
			r.pending = false
			r.mu.Unlock()
		}
	}()
}

// Restore loads the last persisted snapshot when nothing has been committed yet
func (r *Refresher) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snap, err := r.store.LoadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			return nil
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.HasData() {
		return nil
	}
	r.state.Issues = snap.Issues
	r.state.Total = snap.Total
	r.state.CycleID = snap.CycleID
	r.state.RefreshedAt = snap.RefreshedAt
	logging.Infof("Restored %d issues from snapshot %s", len(snap.Issues), snap.CycleID)
	return nil
}

// CancelInFlight cancels the running cycle, if any
func (r *Refresher) CancelInFlight() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Close cancels every cycle and waits for triggered cycles to return
func (r *Refresher) Close() {
	r.stop()
	r.CancelInFlight()
	r.wg.Wait()
}

func (r *Refresher) progress(id string, p pagination.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == id {
		r.state.Loaded = p.Loaded
	}
}

func (r *Refresher) persist(ctx context.Context, st State) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := r.store.SaveSnapshot(ctx, store.Snapshot{
		Issues:      st.Issues,
		Total:       st.Total,
		CycleID:     st.CycleID,
		RefreshedAt: st.RefreshedAt,
	})
	if err != nil {
		logging.Warnf("Failed to persist snapshot %s: %v", st.CycleID, err)
	}
}

func (r *Refresher) announce(st State) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(r.channel, UpdatedEvent{
		Event:       EventJiraDataUpdated,
		CycleID:     st.CycleID,
		Total:       st.Total,
		Issues:      len(st.Issues),
		RefreshedAt: st.RefreshedAt,
	})
	if err != nil {
		logging.Warnf("Failed to broadcast update: %v", err)
	}
}
