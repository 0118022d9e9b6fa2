package runner

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// NCTResult is one trial identifier in a run's result set, optionally
// tagged with the reason a later filter excluded it.
type NCTResult struct {
	NCT    string `json:"nct"`
	Reason string `json:"reason,omitempty"`
}

// Run is one orchestrated search-and-codify session. Status and results
// are read by pollers on other goroutines while the run advances.
type Run struct {
	ID        string
	Term      string
	Condition string

	mu      sync.Mutex
	status  string
	done    bool
	failed  bool
	results []NCTResult
}

// Status returns the current progress marker.
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done reports whether the run finished, successfully or not.
func (r *Run) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Failed reports whether the run ended in an error state.
func (r *Run) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Results returns the result set and whether it is available yet.
func (r *Run) Results() ([]NCTResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done || r.failed {
		return nil, false
	}
	out := make([]NCTResult, len(r.results))
	copy(out, r.results)
	return out, true
}

// SetResults replaces the result set, e.g. after filtering.
func (r *Run) SetResults(results []NCTResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = make([]NCTResult, len(results))
	copy(r.results, results)
}

func (r *Run) setStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *Run) fail(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.failed = true
	r.done = true
}

func (r *Run) complete(results []NCTResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = "done"
	r.done = true
	r.results = results
}

// Registry is the keyed run registry: run id to Run, observable by
// pollers. It replaces per-run status files on disk.
type Registry struct {
	mu      sync.Mutex
	runs    map[string]*Run
	entropy *ulid.MonotonicEntropy
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{
		runs:    make(map[string]*Run),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewRun registers a fresh run with a unique identifier.
func (g *Registry) NewRun(term, condition string) *Run {
	g.mu.Lock()
	defer g.mu.Unlock()

	run := &Run{
		ID:        ulid.MustNew(ulid.Now(), g.entropy).String(),
		Term:      term,
		Condition: condition,
		status:    "initializing",
	}
	g.runs[run.ID] = run
	return run
}

// Get returns the run with the given id, or nil.
func (g *Registry) Get(id string) *Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runs[id]
}
