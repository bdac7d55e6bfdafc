package agent

import (
	"sync"
	"time"
)

// maxRecentRuns bounds the in-memory run history.
const maxRecentRuns = 32

// Step records one executed command and its observed outcome. Steps are
// immutable once appended to a run.
type Step struct {
	ID       string `json:"id"`
	Thought  string `json:"thought"`
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Run is one investigation from instruction to rendered report.
type Run struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Report      string    `json:"report,omitempty"`
	Steps       []Step    `json:"steps,omitempty"`
}

// Registry keeps the most recent completed runs in memory for the recent-runs
// resource and the report endpoint. Nothing is persisted; history dies with
// the process.
type Registry struct {
	mu   sync.RWMutex
	runs []Run // oldest first
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add records a completed run, evicting the oldest beyond the cap.
func (r *Registry) Add(run Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	if len(r.runs) > maxRecentRuns {
		r.runs = r.runs[len(r.runs)-maxRecentRuns:]
	}
}

// Get returns the run with the given ID.
func (r *Registry) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].ID == id {
			return r.runs[i], true
		}
	}
	return Run{}, false
}

// Recent returns the held runs, newest first.
func (r *Registry) Recent() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Run, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, r.runs[i])
	}
	return out
}

// Len reports how many runs are held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
