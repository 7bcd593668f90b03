package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/store"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

func issues(from, n int) []models.Issue {
	out := make([]models.Issue, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, models.Issue{ID: fmt.Sprint(i), Key: fmt.Sprintf("P-%d", i)})
	}
	return out
}

// pagedSource serves total issues in pages
func pagedSource(total int) tracker.FetchFunc {
	return func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		n := pageSize
		if startAt+n > total {
			n = total - startAt
		}
		if n < 0 {
			n = 0
		}
		return models.Page{Issues: issues(startAt, n), Total: total, StartAt: startAt, PageSize: pageSize}, nil
	}
}

type memStore struct {
	mu    sync.Mutex
	saved []store.Snapshot
	load  *store.Snapshot
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memStore) LoadSnapshot(ctx context.Context) (*store.Snapshot, error) {
	if m.load == nil {
		return nil, store.ErrNoSnapshot
	}
	return m.load, nil
}

type recorder struct {
	mu     sync.Mutex
	events []interface{}
}

func (r *recorder) Publish(channel string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v)
	return nil
}

func TestRefreshCommits(t *testing.T) {
	st := &memStore{}
	pub := &recorder{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRefresher(pagedSource(250), 100, WithStore(st), WithPublisher(pub, "jira-data-channel"), WithClock(func() time.Time { return fixed }))
	defer r.Close()

	state, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Issues, 250)
	assert.Equal(t, 250, state.Total)
	assert.NotEmpty(t, state.CycleID)
	assert.Equal(t, fixed, state.RefreshedAt)
	assert.Empty(t, state.LastError)
	assert.False(t, state.Refreshing)
	assert.True(t, state.HasData())

	assert.Equal(t, state.CycleID, r.State().CycleID)

	require.Len(t, st.saved, 1)
	assert.Len(t, st.saved[0].Issues, 250)
	assert.Equal(t, state.CycleID, st.saved[0].CycleID)

	require.Len(t, pub.events, 1)
	event := pub.events[0].(UpdatedEvent)
	assert.Equal(t, EventJiraDataUpdated, event.Event)
	assert.Equal(t, 250, event.Issues)
}

func TestRefreshFailureKeepsPreviousIssues(t *testing.T) {
	fail := false
	source := pagedSource(30)
	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		if fail && startAt > 0 {
			return models.Page{}, errors.New("boom")
		}
		return source(ctx, startAt, pageSize)
	})
	r := NewRefresher(fetcher, 10)
	defer r.Close()

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	state, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrFetchFailed)
	assert.Equal(t, "Error fetching Jira data.", state.LastError)
	assert.Len(t, state.Issues, 30)
	assert.Equal(t, first.CycleID, state.CycleID)
}

func TestRefreshFailureWithoutData(t *testing.T) {
	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		return models.Page{}, errors.New("connection refused")
	})
	r := NewRefresher(fetcher, 10)
	defer r.Close()

	state, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, state.HasData())
	assert.Empty(t, state.Issues)
	assert.NotEmpty(t, r.State().LastError)
}

func TestNewerCycleSupersedes(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	calls := 0
	source := pagedSource(5)

	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return models.Page{}, ctx.Err()
		}
		return source(ctx, startAt, pageSize)
	})
	r := NewRefresher(fetcher, 10)
	defer r.Close()

	oldErr := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		oldErr <- err
	}()
	<-started

	state, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Issues, 5)

	select {
	case err := <-oldErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("old cycle did not return")
	}
	assert.Equal(t, state.CycleID, r.State().CycleID)
	assert.Empty(t, r.State().LastError)
}

func TestRefreshCancelledByCaller(t *testing.T) {
	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		<-ctx.Done()
		return models.Page{}, ctx.Err()
	})
	r := NewRefresher(fetcher, 10)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Refresh(ctx)
	require.Error(t, err)
	assert.False(t, r.State().Refreshing)
}

func TestTriggerAndClose(t *testing.T) {
	r := NewRefresher(pagedSource(3), 10)
	r.Trigger()
	require.Eventually(t, func() bool { return r.State().HasData() }, 2*time.Second, 10*time.Millisecond)
	r.Close()
	assert.Len(t, r.State().Issues, 3)
}

func TestTriggerBurstStillCommits(t *testing.T) {
	source := pagedSource(30)
	var mu sync.Mutex
	fetches := 0
	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return models.Page{}, ctx.Err()
		}
		return source(ctx, startAt, pageSize)
	})
	r := NewRefresher(fetcher, 10)
	defer r.Close()

	// a cycle takes three pages, triggers arrive faster than that
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	state := r.State()
	require.True(t, state.HasData(), "no cycle committed during the burst")
	assert.Len(t, state.Issues, 30)

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, fetches, 40)
}

func TestRestore(t *testing.T) {
	saved := &store.Snapshot{Issues: issues(0, 4), Total: 4, CycleID: "persisted", RefreshedAt: time.Now()}
	r := NewRefresher(pagedSource(0), 10, WithStore(&memStore{load: saved}))
	defer r.Close()

	require.NoError(t, r.Restore(context.Background()))
	state := r.State()
	assert.Equal(t, "persisted", state.CycleID)
	assert.Len(t, state.Issues, 4)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	r := NewRefresher(pagedSource(0), 10, WithStore(&memStore{}))
	defer r.Close()
	require.NoError(t, r.Restore(context.Background()))
	assert.False(t, r.State().HasData())
}

func TestIncrementalVariant(t *testing.T) {
	r := NewRefresher(pagedSource(25), 10, WithIncremental())
	defer r.Close()

	state, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Issues, 25)
}

func TestStateIsACopy(t *testing.T) {
	r := NewRefresher(pagedSource(2), 10)
	defer r.Close()
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	state := r.State()
	state.Issues[0].Key = "mutated"
	assert.Equal(t, "P-0", r.State().Issues[0].Key)
}
