package job

import (
	"slices"
	"sync"
	"time"
)

// Job is anything that can report its Info.
type Job interface {
	ID() string
	Info() Info
}

// Tracker keeps jobs addressable by ID.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]Job)}
}

// Add registers j.
func (t *Tracker) Add(j Job) {
	t.mu.Lock()
	t.jobs[j.ID()] = j
	t.mu.Unlock()
}

// Get returns the Info of the job with id.
func (t *Tracker) Get(id string) (Info, bool) {
	t.mu.RLock()
	j, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return j.Info(), true
}

// List returns every job, newest first.
func (t *Tracker) List() []Info {
	t.mu.RLock()
	out := make([]Info, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j.Info())
	}
	t.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// Prune drops finished jobs older than maxAge and returns how many were removed.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, j := range t.jobs {
		info := j.Info()
		if info.FinishedAt != nil && info.FinishedAt.Before(cutoff) {
			delete(t.jobs, id)
			n++
		}
	}
	return n
}
