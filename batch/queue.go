package batch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videoforge/config"
	"videoforge/ffmpeg"
)

// runnerFunc is the Manager's view of a Runner. Indirected so tests can
// substitute a fake process.
type runnerFunc func(ctx context.Context, spec RunSpec, onProgress func(float64), onLog func(string)) *RunResult

// Options tune a Manager. Zero values select the defaults.
type Options struct {
	// Concurrency is the worker pool size. The default of 1 serializes jobs,
	// which also serializes access to the host's hardware encoder.
	Concurrency int
	// GracePeriod is passed to the Runner for cancellation handling.
	GracePeriod time.Duration
	Logger      zerolog.Logger
}

// Manager owns the FIFO job queue. Jobs enter via Enqueue, run under a small
// worker pool once Start is called, and report through the Events channel.
// A failed job never halts the batch; the remaining queued jobs still run.
type Manager struct {
	caps        *ffmpeg.Capabilities
	concurrency int
	log         zerolog.Logger
	run         runnerFunc

	mu      sync.Mutex
	jobs    []*Job
	cancels map[int]context.CancelFunc
	running bool
	stopAll context.CancelFunc

	events chan Event
}

func NewManager(caps *ffmpeg.Capabilities, opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	log := opts.Logger.With().Str("component", "batch").Logger()
	runner := NewRunner(caps.FFmpegPath, opts.GracePeriod, opts.Logger)
	return &Manager{
		caps:        caps,
		concurrency: opts.Concurrency,
		log:         log,
		run:         runner.Run,
		cancels:     make(map[int]context.CancelFunc),
		events:      make(chan Event, 256),
	}
}

// Events returns the channel carrying job and batch notifications. The
// consumer must keep draining it while a batch runs.
func (m *Manager) Events() <-chan Event { return m.events }

// Enqueue validates the configuration, renders its command, and appends a
// job in state Queued. Configuration errors surface here, synchronously,
// before any process can launch. Queue order is the processing order.
func (m *Manager) Enqueue(cfg config.JobConfig, info *ffmpeg.MediaInfo) (uuid.UUID, error) {
	cmd, err := ffmpeg.Build(cfg, m.caps)
	if err != nil {
		return uuid.Nil, err
	}
	job := &Job{
		ID:      uuid.New(),
		Config:  cfg,
		Info:    info,
		Command: cmd,
		State:   StateQueued,
	}
	for _, w := range cmd.Warnings {
		job.appendLog("warning: " + w)
		m.log.Warn().Str("input", cfg.InputPath).Msg(w)
	}

	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	m.log.Info().Str("input", cfg.InputPath).Str("output", cmd.OutputPath).Msg("job enqueued")
	return job.ID, nil
}

// Start begins draining the queue. Safe to call while running (no-op) and
// again after a batch finished to process newly enqueued jobs. BatchDone is
// emitted exactly once per successful Start, after every dispatched job has
// reached a terminal state.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.stopAll = cancel
	m.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < m.concurrency; i++ {
		wg.Add(1)
		go m.worker(ctx, &wg)
	}

	go func() {
		wg.Wait()
		cancel()
		m.mu.Lock()
		m.running = false
		stats := m.statsLocked()
		m.mu.Unlock()
		m.events <- BatchDone{Stats: stats}
		m.log.Info().
			Int("total", stats.Total).
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("cancelled", stats.Cancelled).
			Msg("batch complete")
	}()
}

func (m *Manager) worker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		idx, job := m.claimNext()
		if job == nil {
			return
		}
		m.runJob(ctx, idx, job)
	}
}

// claimNext transitions the first Queued job to Running and returns it, or
// nil when the queue is drained (or the batch was stopped).
func (m *Manager) claimNext() (int, *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0, nil
	}
	for i, job := range m.jobs {
		if job.State == StateQueued {
			job.State = StateRunning
			return i, job
		}
	}
	return 0, nil
}

func (m *Manager) runJob(ctx context.Context, idx int, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[idx] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, idx)
		m.mu.Unlock()
		cancel()
	}()

	m.events <- JobStarted{Index: idx, ID: job.ID}
	for _, w := range job.Command.Warnings {
		m.events <- JobLog{Index: idx, ID: job.ID, Line: "warning: " + w}
	}

	onProgress := func(f float64) {
		m.mu.Lock()
		job.Progress = f
		overall := m.overallLocked()
		m.mu.Unlock()
		m.events <- JobProgress{Index: idx, ID: job.ID, Fraction: f, Overall: overall}
	}
	onLog := func(line string) {
		m.mu.Lock()
		job.appendLog(line)
		m.mu.Unlock()
		m.events <- JobLog{Index: idx, ID: job.ID, Line: line}
	}

	spec := RunSpec{
		Args:       job.Command.Args,
		Duration:   effectiveDuration(job.Config, job.Info),
		OutputPath: job.Command.OutputPath,
	}
	res := m.run(jobCtx, spec, onProgress, onLog)

	m.mu.Lock()
	job.State = res.State
	job.ExitCode = res.ExitCode
	job.Err = res.Err
	if res.State == StateSucceeded {
		job.Progress = 1
		if fi, err := os.Stat(job.Command.OutputPath); err == nil {
			job.OutputSize = fi.Size()
		}
	}
	overall := m.overallLocked()
	m.mu.Unlock()

	m.events <- JobFinished{Index: idx, ID: job.ID, State: res.State, ExitCode: res.ExitCode, Err: res.Err}
	m.events <- JobProgress{Index: idx, ID: job.ID, Fraction: job.Progress, Overall: overall}
}

// effectiveDuration estimates the output duration used as the progress
// denominator: the probed input duration, narrowed by the trim range and
// stretched by the speed factor.
func effectiveDuration(cfg config.JobConfig, info *ffmpeg.MediaInfo) float64 {
	if info == nil || info.Duration <= 0 {
		return 0
	}
	d := info.Duration
	if cfg.TrimEnabled {
		end := d
		if cfg.TrimEnd > 0 && cfg.TrimEnd < end {
			end = cfg.TrimEnd
		}
		if trimmed := end - cfg.TrimStart; trimmed > 0 {
			d = trimmed
		}
	}
	if cfg.SpeedFactor > 0 && cfg.SpeedFactor != 1.0 {
		d /= cfg.SpeedFactor
	}
	return d
}

// CancelCurrent cancels the running job(s). Queued jobs are unaffected and
// will still be processed.
func (m *Manager) CancelCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
}

// CancelAll stops dispensing queued jobs and cancels the running ones.
// Already-completed jobs are unaffected; still-queued jobs stay Queued.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	m.running = false
	stop := m.stopAll
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Jobs returns snapshots of every job in queue order.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, len(m.jobs))
	for i, j := range m.jobs {
		out[i] = j.snapshot()
	}
	return out
}

// Stats aggregates the current batch state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Manager) statsLocked() Stats {
	s := Stats{Total: len(m.jobs)}
	for _, j := range m.jobs {
		switch j.State {
		case StateSucceeded:
			s.Succeeded++
			if j.Info != nil {
				s.BytesIn += j.Info.FileSize
			}
			s.BytesOut += j.OutputSize
		case StateFailed:
			s.Failed++
		case StateCancelled:
			s.Cancelled++
		}
	}
	return s
}

// overallLocked computes aggregate batch progress: each terminal job counts
// as one, running jobs contribute their fraction.
func (m *Manager) overallLocked() float64 {
	if len(m.jobs) == 0 {
		return 0
	}
	var sum float64
	for _, j := range m.jobs {
		if j.State.Terminal() {
			sum++
		} else if j.State == StateRunning {
			sum += clampFraction(j.Progress)
		}
	}
	return sum / float64(len(m.jobs))
}
