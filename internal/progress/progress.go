// Package progress tracks the named steps of long-running operations and
// publishes an immutable snapshot of the whole sequence on every transition.
package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the state of a single step
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrUnknownHandle     = errors.New("unknown progress handle")
	ErrStepOutOfRange    = errors.New("step index out of range")
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrSequenceFailed    = errors.New("sequence already failed")
	ErrOutOfOrder        = errors.New("earlier step not completed")
)

// Step is one phase of an operation
type Step struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status Status `json:"status"`
}

// Snapshot is the state of a sequence after one transition. Snapshots are
// never modified after they are published.
type Snapshot struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Steps     []Step    `json:"steps"`
	Visible   bool      `json:"visible"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether every step completed
func (s Snapshot) Completed() bool {
	for _, st := range s.Steps {
		if st.Status != StatusCompleted {
			return false
		}
	}
	return len(s.Steps) > 0
}

// FailedStep returns the index of the failed step, or -1
func (s Snapshot) FailedStep() int {
	for i, st := range s.Steps {
		if st.Status == StatusFailed {
			return i
		}
	}
	return -1
}

// ActiveStep returns the index of the in-progress step, or -1
func (s Snapshot) ActiveStep() int {
	for i, st := range s.Steps {
		if st.Status == StatusInProgress {
			return i
		}
	}
	return -1
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	copy(out.Steps, s.Steps)
	return out
}

// Handle identifies one started sequence
type Handle struct {
	ID string
}

// Listener receives every published snapshot
type Listener func(Snapshot)

// Tracker owns all progress sequences
type Tracker struct {
	mu        sync.Mutex
	sequences map[string]Snapshot
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		sequences: make(map[string]Snapshot),
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Subscribe registers fn for all future transitions and returns a function
// that unregisters it. fn runs synchronously on the goroutine making the
// transition and must not call back into the Tracker.
func (t *Tracker) Subscribe(fn Listener) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.listeners[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// Start opens a new visible sequence whose first step is in progress
func (t *Tracker) Start(title string, stepTitles []string) Handle {
	steps := make([]Step, len(stepTitles))
	for i, st := range stepTitles {
		steps[i] = Step{Title: st, Status: StatusPending}
	}
	if len(steps) > 0 {
		steps[0].Status = StatusInProgress
	}

	h := Handle{ID: uuid.NewString()}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commit(Snapshot{ID: h.ID, Title: title, Steps: steps, Visible: true})
	return h
}

// Advance moves step i to status, replacing its detail when detail is not
// empty. Steps move pending -> in-progress -> completed|failed only, and a
// pending step may only move once every earlier step has completed.
func (t *Tracker) Advance(h Handle, i int, status Status, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := t.lookup(h, i)
	if err != nil {
		return err
	}
	if snap.FailedStep() >= 0 {
		return ErrSequenceFailed
	}

	cur := snap.Steps[i].Status
	if !allowed(cur, status) {
		return fmt.Errorf("%w: step %d %s -> %s", ErrInvalidTransition, i, cur, status)
	}
	if cur == StatusPending {
		for j := 0; j < i; j++ {
			if snap.Steps[j].Status != StatusCompleted {
				return fmt.Errorf("%w: step %d is %s", ErrOutOfOrder, j, snap.Steps[j].Status)
			}
		}
	}
	if status == StatusFailed {
		return t.failLocked(snap, i, detail)
	}

	next := snap.clone()
	next.Steps[i].Status = status
	if detail != "" {
		next.Steps[i].Detail = detail
	}
	t.commit(next)
	return nil
}

// Fail ends the sequence at step i: earlier steps become completed, step i
// failed with detail, later steps pending.
func (t *Tracker) Fail(h Handle, i int, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := t.lookup(h, i)
	if err != nil {
		return err
	}
	if snap.FailedStep() >= 0 {
		return ErrSequenceFailed
	}
	return t.failLocked(snap, i, detail)
}

func (t *Tracker) failLocked(snap Snapshot, i int, detail string) error {
	next := snap.clone()
	for j := range next.Steps {
		switch {
		case j < i:
			next.Steps[j].Status = StatusCompleted
		case j == i:
			next.Steps[j].Status = StatusFailed
			next.Steps[j].Detail = detail
		default:
			next.Steps[j].Status = StatusPending
		}
	}
	t.commit(next)
	return nil
}

// Finish hides the sequence and forgets it
func (t *Tracker) Finish(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, ok := t.sequences[h.ID]
	if !ok {
		return
	}
	next := snap.clone()
	next.Visible = false
	t.commit(next)
	delete(t.sequences, h.ID)
}

// Snapshot returns the current state of the sequence
func (t *Tracker) Snapshot(h Handle) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, ok := t.sequences[h.ID]
	if !ok {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

func (t *Tracker) lookup(h Handle, i int) (Snapshot, error) {
	snap, ok := t.sequences[h.ID]
	if !ok {
		return Snapshot{}, ErrUnknownHandle
	}
	if i < 0 || i >= len(snap.Steps) {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrStepOutOfRange, i)
	}
	return snap, nil
}

// commit stores snap and delivers it to listeners in registration order.
// Callers hold t.mu, which keeps deliveries ordered.
func (t *Tracker) commit(snap Snapshot) {
	snap.UpdatedAt = t.now()
	t.sequences[snap.ID] = snap

	for id := 0; id < t.nextID; id++ {
		if fn, ok := t.listeners[id]; ok {
			fn(snap.clone())
		}
	}
}

func allowed(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCompleted || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
