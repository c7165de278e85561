package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoforge/config"
	"videoforge/ffmpeg"
)

func testCaps() *ffmpeg.Capabilities {
	return &ffmpeg.Capabilities{FFmpegPath: "/usr/bin/ffmpeg"}
}

func testJobConfig(input string) config.JobConfig {
	cfg := config.DefaultConfig()
	cfg.InputPath = input
	cfg.OutputPath = input + ".out.mp4"
	cfg.UseHWAccel = false
	return cfg
}

// collectEvents drains the manager's channel until BatchDone or the deadline.
func collectEvents(t *testing.T, m *Manager, deadline time.Duration) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(deadline)
	for {
		select {
		case ev := <-m.Events():
			events = append(events, ev)
			if _, done := ev.(BatchDone); done {
				return events
			}
		case <-timeout:
			t.Fatalf("no BatchDone within %v; got %d events", deadline, len(events))
		}
	}
}

func TestManagerRunsJobsInOrderWithPartialFailure(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	m.run = func(_ context.Context, spec RunSpec, onProgress func(float64), onLog func(string)) *RunResult {
		onLog("processing " + spec.OutputPath)
		if spec.OutputPath == "/in/b.mp4.out.mp4" {
			return &RunResult{State: StateFailed, ExitCode: 1, Err: errors.New("exit status 1")}
		}
		onProgress(0.5)
		return &RunResult{State: StateSucceeded}
	}

	for _, in := range []string{"/in/a.mp4", "/in/b.mp4", "/in/c.mp4"} {
		_, err := m.Enqueue(testJobConfig(in), nil)
		require.NoError(t, err)
	}

	m.Start()
	events := collectEvents(t, m, 5*time.Second)

	var started []int
	var finished []JobFinished
	doneCount := 0
	for _, ev := range events {
		switch ev := ev.(type) {
		case JobStarted:
			started = append(started, ev.Index)
		case JobFinished:
			finished = append(finished, ev)
		case BatchDone:
			doneCount++
			assert.Equal(t, 3, ev.Stats.Total)
			assert.Equal(t, 2, ev.Stats.Succeeded)
			assert.Equal(t, 1, ev.Stats.Failed)
		}
	}

	assert.Equal(t, []int{0, 1, 2}, started, "default concurrency is strict FIFO")
	assert.Equal(t, 1, doneCount)

	require.Len(t, finished, 3)
	assert.Equal(t, StateSucceeded, finished[0].State)
	assert.Equal(t, StateFailed, finished[1].State)
	assert.Equal(t, 1, finished[1].ExitCode)
	assert.Equal(t, StateSucceeded, finished[2].State, "a failed job must not halt the batch")
}

func TestManagerEnqueueRejectsInvalidConfig(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	cfg := testJobConfig("/in/a.mp4")
	cfg.CRF = 99

	_, err := m.Enqueue(cfg, nil)
	require.Error(t, err)
	assert.Empty(t, m.Jobs())
}

func TestManagerJobFinishedExactlyOncePerJob(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	m.run = func(context.Context, RunSpec, func(float64), func(string)) *RunResult {
		return &RunResult{State: StateSucceeded}
	}

	id, err := m.Enqueue(testJobConfig("/in/a.mp4"), nil)
	require.NoError(t, err)

	m.Start()
	events := collectEvents(t, m, 5*time.Second)

	count := 0
	for _, ev := range events {
		if fin, ok := ev.(JobFinished); ok {
			count++
			assert.Equal(t, id, fin.ID)
		}
	}
	assert.Equal(t, 1, count)
}

func TestManagerCancelAllLeavesQueuedJobsQueued(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	running := make(chan struct{})
	m.run = func(ctx context.Context, _ RunSpec, _ func(float64), _ func(string)) *RunResult {
		close(running)
		<-ctx.Done()
		return &RunResult{State: StateCancelled}
	}

	for _, in := range []string{"/in/a.mp4", "/in/b.mp4", "/in/c.mp4"} {
		_, err := m.Enqueue(testJobConfig(in), nil)
		require.NoError(t, err)
	}

	m.Start()
	<-running
	m.CancelAll()
	collectEvents(t, m, 5*time.Second)

	jobs := m.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, StateCancelled, jobs[0].State)
	assert.Equal(t, StateQueued, jobs[1].State)
	assert.Equal(t, StateQueued, jobs[2].State)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Cancelled)
	assert.Zero(t, stats.Succeeded)
}

func TestManagerCancelCurrentSparesTheRest(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	first := true
	firstRunning := make(chan struct{})
	m.run = func(ctx context.Context, _ RunSpec, _ func(float64), _ func(string)) *RunResult {
		if first {
			first = false
			close(firstRunning)
			<-ctx.Done()
			return &RunResult{State: StateCancelled}
		}
		return &RunResult{State: StateSucceeded}
	}

	_, err := m.Enqueue(testJobConfig("/in/a.mp4"), nil)
	require.NoError(t, err)
	_, err = m.Enqueue(testJobConfig("/in/b.mp4"), nil)
	require.NoError(t, err)

	m.Start()
	<-firstRunning
	m.CancelCurrent()
	collectEvents(t, m, 5*time.Second)

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, StateCancelled, jobs[0].State)
	assert.Equal(t, StateSucceeded, jobs[1].State)
}

func TestManagerOverallProgressReachesOne(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	m.run = func(_ context.Context, _ RunSpec, onProgress func(float64), _ func(string)) *RunResult {
		onProgress(0.3)
		onProgress(0.9)
		return &RunResult{State: StateSucceeded}
	}

	_, err := m.Enqueue(testJobConfig("/in/a.mp4"), nil)
	require.NoError(t, err)
	_, err = m.Enqueue(testJobConfig("/in/b.mp4"), nil)
	require.NoError(t, err)

	m.Start()
	events := collectEvents(t, m, 5*time.Second)

	var overalls []float64
	for _, ev := range events {
		if p, ok := ev.(JobProgress); ok {
			overalls = append(overalls, p.Overall)
		}
	}
	require.NotEmpty(t, overalls)
	for i := 1; i < len(overalls); i++ {
		assert.GreaterOrEqual(t, overalls[i], overalls[i-1], "overall progress never regresses")
	}
	assert.Equal(t, 1.0, overalls[len(overalls)-1])
}

func TestManagerHardwareFallbackWarningReachesJobLog(t *testing.T) {
	m := NewManager(testCaps(), Options{})
	m.run = func(context.Context, RunSpec, func(float64), func(string)) *RunResult {
		return &RunResult{State: StateSucceeded}
	}

	cfg := testJobConfig("/in/a.mp4")
	cfg.UseHWAccel = true
	cfg.HWAccel = config.HWNVENC

	_, err := m.Enqueue(cfg, nil)
	require.NoError(t, err)

	jobs := m.Jobs()
	require.Len(t, jobs, 1)
	require.NotEmpty(t, jobs[0].LogLines)
	assert.Contains(t, jobs[0].LogLines[0], "falling back to libx264")
}

func TestEffectiveDuration(t *testing.T) {
	info := &ffmpeg.MediaInfo{Duration: 100}

	cfg := config.DefaultConfig()
	assert.Equal(t, 100.0, effectiveDuration(cfg, info))

	cfg.TrimEnabled = true
	cfg.TrimStart = 10
	cfg.TrimEnd = 60
	assert.Equal(t, 50.0, effectiveDuration(cfg, info))

	cfg.SpeedFactor = 2.0
	assert.Equal(t, 25.0, effectiveDuration(cfg, info))

	cfg.TrimEnd = 0 // until the end
	assert.Equal(t, 45.0, effectiveDuration(cfg, info))

	assert.Zero(t, effectiveDuration(cfg, nil))
}
