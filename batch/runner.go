package batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	// DefaultGracePeriod is how long a cancelled process gets to shut down
	// after SIGTERM before it is force-killed.
	DefaultGracePeriod = 3 * time.Second

	// logTailLines is how much stderr is attached to a failure result.
	logTailLines = 40

	// Stderr lines can exceed bufio's 64 KiB default when FFmpeg dumps
	// metadata.
	maxScanBuffer = 1024 * 1024
)

// RunSpec is everything a Runner needs for one job: the argument vector,
// the known media duration in seconds (0 if unknown; the runner then tries
// to learn it from the process's own output), and the output path to clean
// up after a cancellation.
type RunSpec struct {
	Args       []string
	Duration   float64
	OutputPath string
}

// RunResult is the terminal outcome of one process run.
type RunResult struct {
	State    State // StateSucceeded, StateFailed or StateCancelled
	ExitCode int
	Err      error
	LogTail  []string
}

// Runner launches one FFmpeg process per call, streams its stderr, parses
// progress markers, and supervises shutdown. It never retries; retry policy,
// if any, belongs to the caller.
type Runner struct {
	binary string
	grace  time.Duration
	log    zerolog.Logger
}

func NewRunner(binary string, grace time.Duration, log zerolog.Logger) *Runner {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Runner{
		binary: binary,
		grace:  grace,
		log:    log.With().Str("component", "runner").Logger(),
	}
}

// Run blocks until the process reaches a terminal state. Every stderr line
// is forwarded verbatim to onLog; lines carrying a progress timestamp also
// produce an onProgress call with a fraction of the total duration.
// Callbacks are invoked sequentially, in emission order.
//
// Cancelling ctx triggers graceful termination: SIGTERM, a bounded grace
// period, then SIGKILL. The partial output file is removed and the result is
// StateCancelled.
func (r *Runner) Run(ctx context.Context, spec RunSpec, onProgress func(float64), onLog func(string)) *RunResult {
	cmd := exec.Command(r.binary, spec.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &RunResult{State: StateFailed, ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &RunResult{State: StateFailed, ExitCode: -1, Err: fmt.Errorf("start %s: %w", r.binary, err)}
	}
	pid := cmd.Process.Pid
	r.log.Debug().Int("pid", pid).Strs("args", spec.Args).Msg("process started")

	done := make(chan struct{})
	go r.superviseCancel(ctx, cmd.Process, done)

	var tail []string
	duration := spec.Duration

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBuffer)
	for scanner.Scan() {
		line := scanner.Text()
		onLog(line)
		tail = append(tail, line)
		if len(tail) > logTailLines {
			tail = tail[len(tail)-logTailLines:]
		}

		if duration <= 0 {
			if d, ok := ParseDurationLine(line); ok {
				duration = d
			}
		}
		if t, ok := ParseProgressTime(line); ok && duration > 0 {
			onProgress(clampFraction(t / duration))
		}
	}
	if err := scanner.Err(); err != nil {
		onLog(fmt.Sprintf("output stream error: %v", err))
	}

	waitErr := cmd.Wait()
	close(done)

	if ctx.Err() != nil {
		r.confirmStopped(pid)
		if spec.OutputPath != "" {
			// Partial output is useless; matching the original app, it is
			// removed on cancellation.
			_ = os.Remove(spec.OutputPath)
		}
		r.log.Info().Int("pid", pid).Msg("process cancelled")
		return &RunResult{State: StateCancelled, ExitCode: exitCode(cmd, waitErr), LogTail: tail}
	}

	if waitErr != nil {
		code := exitCode(cmd, waitErr)
		r.log.Warn().Int("pid", pid).Int("exit_code", code).Msg("process failed")
		return &RunResult{State: StateFailed, ExitCode: code, Err: waitErr, LogTail: tail}
	}

	onProgress(1)
	r.log.Debug().Int("pid", pid).Msg("process finished")
	return &RunResult{State: StateSucceeded, LogTail: tail}
}

// superviseCancel waits for either process exit or context cancellation.
// On cancellation it asks the process to terminate, allows the grace period,
// then kills. A forced kill always eventually succeeds.
func (r *Runner) superviseCancel(ctx context.Context, p *os.Process, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		// Platforms without SIGTERM delivery (or an already-gone process)
		// skip straight to the hard kill.
		_ = p.Kill()
		return
	}
	select {
	case <-done:
	case <-time.After(r.grace):
		_ = p.Kill()
	}
}

// confirmStopped polls the PID until the OS agrees the process is gone.
func (r *Runner) confirmStopped(pid int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exists, err := process.PidExists(int32(pid))
		if err != nil || !exists {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	r.log.Warn().Int("pid", pid).Msg("process still visible after kill")
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}
