package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/jira-dashboard/internal/models"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

func TestSchedulerRefreshesOnStart(t *testing.T) {
	r := NewRefresher(pagedSource(7), 5)
	defer r.Close()

	s := NewScheduler(r, time.Hour)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return r.State().HasData() }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, r.State().Issues, 7)
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	r := NewRefresher(pagedSource(0), 5)
	defer r.Close()
	assert.Error(t, NewScheduler(r, 0).Start())
}

func TestSchedulerRun(t *testing.T) {
	r := NewRefresher(pagedSource(1), 5)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScheduler(r, time.Minute).Run(ctx) }()

	require.Eventually(t, func() bool { return r.State().HasData() }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerStopCancelsScheduledCycles(t *testing.T) {
	fetcher := tracker.FetchFunc(func(ctx context.Context, startAt, pageSize int) (models.Page, error) {
		<-ctx.Done()
		return models.Page{}, ctx.Err()
	})
	r := NewRefresher(fetcher, 5)
	defer r.Close()

	s := NewScheduler(r, 10*time.Millisecond)
	require.NoError(t, s.Start())
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited for a blocked scheduled cycle")
	}
	assert.False(t, r.State().HasData())
}
