package batch

import "github.com/google/uuid"

// Event is delivered on the Manager's event channel. Events for one job are
// ordered as the underlying process emitted them; events across concurrently
// running jobs carry no cross-job ordering guarantee.
type Event interface{ event() }

// JobStarted fires when a job leaves the queue and its process launches.
type JobStarted struct {
	Index int
	ID    uuid.UUID
}

// JobProgress carries the job's progress fraction in [0, 1] and the
// aggregate batch fraction.
type JobProgress struct {
	Index    int
	ID       uuid.UUID
	Fraction float64
	Overall  float64
}

// JobLog forwards one diagnostic line, verbatim, parsed or not.
type JobLog struct {
	Index int
	ID    uuid.UUID
	Line  string
}

// JobFinished fires exactly once per job, on its terminal transition.
type JobFinished struct {
	Index    int
	ID       uuid.UUID
	State    State
	ExitCode int
	Err      error
}

// BatchDone fires exactly once per Start, after every dispatched job has
// reached a terminal state.
type BatchDone struct {
	Stats Stats
}

func (JobStarted) event()  {}
func (JobProgress) event() {}
func (JobLog) event()      {}
func (JobFinished) event() {}
func (BatchDone) event()   {}

// Stats aggregates batch results.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	BytesIn   int64
	BytesOut  int64
}

// SavedBytes is how much smaller the successful outputs are than their
// inputs; never negative.
func (s Stats) SavedBytes() int64 {
	if saved := s.BytesIn - s.BytesOut; saved > 0 {
		return saved
	}
	return 0
}
