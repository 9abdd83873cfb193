package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	steps     []int
	summaries []Summary
}

func (o *recordingObserver) OnStep(_ uuid.UUID, result StepResult, snapshot Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, result.Step)
}

func (o *recordingObserver) OnComplete(_ uuid.UUID, summary Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.steps), len(o.summaries)
}

func createTestRunner(t *testing.T, processes int, interval time.Duration, observers ...Observer) *Runner {
	t.Helper()
	cfg := testConfig()
	cfg.Processes = processes
	sim, err := New(cfg)
	require.NoError(t, err)
	return NewRunner(sim, RunnerConfig{Interval: interval, LogTail: 10}, nil, observers...)
}

func TestRunnerStepOnce(t *testing.T) {
	obs := &recordingObserver{}
	sim, err := New(testConfig(), WithProcesses(scenarioProcesses()...))
	require.NoError(t, err)
	r := NewRunner(sim, RunnerConfig{}, nil, obs)

	for i := 0; i < 9; i++ {
		result, ok, err := r.StepOnce()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i+1, result.Step)
	}
	assert.Equal(t, RunnerCompleted, r.State())

	result, ok, err := r.StepOnce()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, result.Done)

	steps, summaries := obs.counts()
	assert.Equal(t, 9, steps)
	assert.Equal(t, 1, summaries)
	assert.ErrorIs(t, r.Start(context.Background()), ErrRunComplete)
}

func TestConcurrentStepsNotifyInOrder(t *testing.T) {
	obs := &recordingObserver{}
	r := createTestRunner(t, 20, time.Hour, obs)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, ok, err := r.StepOnce()
				if err != nil || !ok {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, RunnerCompleted, r.State())
	steps, summaries := obs.counts()
	assert.Equal(t, r.Steps(), steps)
	assert.Equal(t, 1, summaries)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	for i, step := range obs.steps {
		assert.Equal(t, i+1, step)
	}
}

func TestRunnerRunsToCompletion(t *testing.T) {
	obs := &recordingObserver{}
	r := createTestRunner(t, 5, time.Millisecond, obs)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		return r.State() == RunnerCompleted
	}, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	steps, summaries := obs.counts()
	assert.Equal(t, r.Steps(), steps)
	require.Equal(t, 1, summaries)
	assert.True(t, obs.summaries[0].Done)
	assert.True(t, r.Snapshot(0).Done)

	assert.ErrorIs(t, r.Stop(), ErrRunnerNotActive)
}

func TestRunnerRejectsDoubleStart(t *testing.T) {
	r := createTestRunner(t, 100, 50*time.Millisecond)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.ErrorIs(t, r.Start(context.Background()), ErrRunnerActive)
	_, _, err := r.StepOnce()
	assert.ErrorIs(t, err, ErrRunnerActive)
}

func TestRunnerPauseResumeStop(t *testing.T) {
	r := createTestRunner(t, 200, 2*time.Millisecond)

	assert.ErrorIs(t, r.Pause(), ErrRunnerNotActive)
	assert.ErrorIs(t, r.Resume(), ErrRunnerNotPaused)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return r.Steps() > 0 }, 2*time.Second, time.Millisecond)

	require.NoError(t, r.Pause())
	assert.Equal(t, RunnerPaused, r.State())
	paused := r.Steps()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, r.Steps())

	require.NoError(t, r.Resume())
	require.Eventually(t, func() bool { return r.Steps() > paused }, 2*time.Second, time.Millisecond)

	require.NoError(t, r.Stop())
	assert.Equal(t, RunnerStopped, r.State())
	stopped := r.Steps()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, r.Steps())
	assert.ErrorIs(t, r.Stop(), ErrRunnerNotActive)

	// a stopped run can still be stepped by hand or restarted
	_, ok, err := r.StepOnce()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	r := createTestRunner(t, 200, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, r.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return r.State() == RunnerStopped
	}, 2*time.Second, time.Millisecond)
}

func TestObserverFuncsSkipsNil(t *testing.T) {
	called := false
	o := ObserverFuncs{Complete: func(uuid.UUID, Summary) { called = true }}

	assert.NotPanics(t, func() { o.OnStep(uuid.Nil, StepResult{}, Snapshot{}) })
	o.OnComplete(uuid.Nil, Summary{})
	assert.True(t, called)
}
