package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langflow/ai-teacher/pkg/logger"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func newTestScheduler() *Scheduler {
	return New(Config{Logger: logger.Nop(), TickInterval: 5 * time.Millisecond})
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler()
	job := &funcJob{name: "a", fn: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Second)))
	assert.ErrorIs(t, s.Register(job, Every(time.Second)), ErrJobAlreadyExists)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler()

	var runs atomic.Int32
	job := &funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_DoesNotOverlapRuns(t *testing.T) {
	s := newTestScheduler()

	release := make(chan struct{})
	var active, maxActive atomic.Int32
	job := &funcJob{name: "slow", fn: func(ctx context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		defer active.Add(-1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return active.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	close(release)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler()

	var runs atomic.Int32
	job := &funcJob{name: "off", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.DisableJob("off"))
	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, runs.Load())
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")

	var mu sync.Mutex
	var seen []JobResult
	s.OnJobComplete(func(r JobResult) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})

	job := &funcJob{name: "fails", fn: func(context.Context) error { return boom }}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	result, err := s.RunNow(context.Background(), "fails")
	assert.ErrorIs(t, err, boom)
	assert.True(t, result.Manual)
	assert.False(t, result.Success())

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].FailCount)
	assert.Equal(t, "@every 1h0m0s", infos[0].Schedule)
	require.NotNil(t, infos[0].LastResult)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "fails", seen[0].JobName)
}

func TestScheduler_RunBlocksUntilCancelled(t *testing.T) {
	s := newTestScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, s.IsRunning, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEvery(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(5*time.Minute), Every(5*time.Minute).Next(base))
	assert.Equal(t, time.Minute, Every(0).Interval)
}
