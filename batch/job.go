package batch

import (
	"github.com/google/uuid"

	"videoforge/config"
	"videoforge/ffmpeg"
)

// State is a job's position in its lifecycle.
// Queued → Running → {Succeeded | Failed | Cancelled}.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// maxJobLogLines bounds the per-job log kept in memory. The tail is what
// matters for failure diagnosis and export.
const maxJobLogLines = 400

// Job is the runtime wrapper around one JobConfiguration. Owned exclusively
// by the Manager; everything exported leaves via snapshots or events.
type Job struct {
	ID      uuid.UUID
	Config  config.JobConfig
	Info    *ffmpeg.MediaInfo
	Command *ffmpeg.Command

	State      State
	Progress   float64
	LogLines   []string
	ExitCode   int
	Err        error
	OutputSize int64
}

func (j *Job) appendLog(line string) {
	j.LogLines = append(j.LogLines, line)
	if len(j.LogLines) > maxJobLogLines {
		j.LogLines = j.LogLines[len(j.LogLines)-maxJobLogLines:]
	}
}

// snapshot returns a copy safe to hand outside the Manager's lock.
func (j *Job) snapshot() Job {
	c := *j
	c.LogLines = make([]string, len(j.LogLines))
	copy(c.LogLines, j.LogLines)
	return c
}
