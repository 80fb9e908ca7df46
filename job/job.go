// Package job implements the job driver: start/progress/cancel/await over
// JobSpec, fronted by the fingerprint cache and an in-flight dedup map. The
// dedup map is a map[string]*Run keyed by fingerprint, guarded by one
// mutex, so two Start calls for the same fingerprint always resolve to the
// same run rather than racing to create two.
package job

import (
	"sync"
	"time"

	"github.com/vegafs/streamengine/executor"
	"github.com/vegafs/streamengine/pipeline"
)

// State is one of JobRun's terminal or non-terminal states.
type State string

const (
	StateQueued    State = "Queued"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	StateCancelled State = "Cancelled"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// InputSpec identifies the object a job reads.
type InputSpec struct {
	Bucket string
	Key    string
	Format string // empty triggers format.Detect
}

// OutputSpec identifies where a job publishes its output. The final key is
// `<key_prefix>/<fingerprint>.<ext>`.
type OutputSpec struct {
	Bucket    string
	KeyPrefix string
}

// Options carries per-job overrides of the ENGINE_* defaults.
type Options struct {
	MaxMemoryBytes       int64
	Parallelism          int
	FormatDetectionBytes int64
}

// Spec describes a single job: what to read, what pipeline to run over it,
// and where to write the result.
type Spec struct {
	Input    InputSpec
	Output   OutputSpec
	Pipeline pipeline.Spec
	Options  Options
}

// Run tracks one job's identity, state, progress, and result. Safe for
// concurrent reads from Progress/Await while execute writes it from its own
// goroutine.
type Run struct {
	ID          string
	Fingerprint string

	mu        sync.RWMutex
	state     State
	progress  executor.Progress
	startedAt time.Time
	endedAt   *time.Time
	output    string
	err       error
	cancel    func()
}

func newRun(id, fingerprint string) *Run {
	return &Run{ID: id, Fingerprint: fingerprint, state: StateQueued, startedAt: time.Now()}
}

// View is an immutable snapshot of a Run, returned by progress() and await().
type View struct {
	ID        string
	State     State
	Progress  executor.Progress
	StartedAt time.Time
	EndedAt   *time.Time
	Output    string
	Err       error
}

func (r *Run) snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return View{
		ID:        r.ID,
		State:     r.state,
		Progress:  r.progress,
		StartedAt: r.startedAt,
		EndedAt:   r.endedAt,
		Output:    r.output,
		Err:       r.err,
	}
}

func (r *Run) setRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateRunning
}

func (r *Run) setProgress(p executor.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = p
}

func (r *Run) finish(state State, output string, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.output = output
	r.err = err
	r.endedAt = &now
}

func (r *Run) setCancelFunc(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = fn
}

// requestCancel invokes the run's cancel hook, if one has been installed
// yet. Safe to call before the executor exists: it's a no-op until
// setCancelFunc runs. Cancellation is cooperative, so the run transitions
// to Cancelled at its next batch boundary, not synchronously.
func (r *Run) requestCancel() {
	r.mu.RLock()
	fn := r.cancel
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
