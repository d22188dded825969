package progress

import (
	"context"
	"sync"
)

// State is the coarse lifecycle phase exposed to observers.
type State int

const (
	StateIdle State = iota
	StateDownloadingInitials
	StateDownloading
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloadingInitials:
		return "downloading_initials"
	case StateDownloading:
		return "downloading"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// UnitSnapshot is a point-in-time copy of one in-flight file.
type UnitSnapshot struct {
	Label      string
	BytesDone  uint64
	BytesTotal uint64
}

// Snapshot is a point-in-time copy of the whole tracker.
type Snapshot struct {
	State     State
	Completed int
	Total     int
	Failed    int
	Active    []UnitSnapshot
}

// Percent returns completed/total in [0,1]. An empty batch reports 1 once finished.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		if s.State == StateFinished {
			return 1
		}
		return 0
	}
	p := float64(s.Completed) / float64(s.Total)
	if p > 1 {
		p = 1
	}
	return p
}

// Tracker aggregates batch-level unit counts and the live set of per-file
// progress handles. It is safe for concurrent use; readers get approximate,
// not transactional, views.
type Tracker struct {
	mu        sync.Mutex
	state     State
	completed int
	total     int
	failed    int
	units     []*FileProgress

	// changed is closed and replaced on every state transition.
	changed chan struct{}
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{changed: make(chan struct{})}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState moves the tracker to s. Entering StateDownloading with nothing
// left to do finishes immediately.
func (t *Tracker) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setStateLocked(s)
	if s == StateDownloading && t.completed >= t.total {
		t.setStateLocked(StateFinished)
	}
}

func (t *Tracker) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	close(t.changed)
	t.changed = make(chan struct{})
}

// SetTotals sets the batch counters. Call once per run before work begins.
func (t *Tracker) SetTotals(completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if completed < 0 {
		completed = 0
	}
	if total < 0 {
		total = 0
	}
	if total > 0 && completed > total {
		completed = total
	}
	t.completed = completed
	t.total = total
}

// AdvanceCompleted adds n finished units. Counts never decrease and never
// pass the total once one is set.
func (t *Tracker) AdvanceCompleted(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed += n
	if t.total > 0 && t.completed > t.total {
		t.completed = t.total
	}
	if t.state == StateDownloading && t.completed >= t.total {
		t.setStateLocked(StateFinished)
	}
}

// RecordFailure counts one unit that reached a terminal failure.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	t.failed++
	t.mu.Unlock()
}

// IsFinished reports completed >= total.
func (t *Tracker) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed >= t.total
}

// Register adds fp to the active list.
func (t *Tracker) Register(fp *FileProgress) {
	if fp == nil {
		return
	}
	t.mu.Lock()
	t.units = append(t.units, fp)
	t.mu.Unlock()
}

// Start creates a handle labelled label and registers it.
func (t *Tracker) Start(label string) *FileProgress {
	fp := NewFileProgress(label)
	t.Register(fp)
	return fp
}

// Unregister removes fp from the active list. Matching is by handle, so a
// different unit that happens to share the label is left alone.
func (t *Tracker) Unregister(fp *FileProgress) {
	if fp == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.units {
		if u == fp {
			t.units = append(t.units[:i], t.units[i+1:]...)
			return
		}
	}
}

// ActiveCount returns the number of registered in-flight units.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

// Reset returns the tracker to idle and clears all counters and units.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = 0
	t.total = 0
	t.failed = 0
	t.units = nil
	t.setStateLocked(StateIdle)
}

// Snapshot copies the current tracker contents in insertion order.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	units := make([]*FileProgress, len(t.units))
	copy(units, t.units)
	s := Snapshot{
		State:     t.state,
		Completed: t.completed,
		Total:     t.total,
		Failed:    t.failed,
	}
	t.mu.Unlock()

	s.Active = make([]UnitSnapshot, 0, len(units))
	for _, u := range units {
		done, total := u.Progress()
		s.Active = append(s.Active, UnitSnapshot{Label: u.Label(), BytesDone: done, BytesTotal: total})
	}
	return s
}

// Wait blocks until the tracker reaches StateFinished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.state == StateFinished {
			t.mu.Unlock()
			return nil
		}
		ch := t.changed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
