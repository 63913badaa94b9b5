// Package transfer runs file uploads under a bounded worker pool with
// per-transfer stall and hard timeouts and a shared quota stop.
package transfer

import (
	"sync"
	"time"

	"github.com/rescale/rescale-upload/internal/collect"
)

// TaskState represents the current state of an upload task.
type TaskState string

const (
	TaskQueued        TaskState = "queued"         // Waiting for a worker
	TaskResolving     TaskState = "resolving"      // Claimed, looking up the target directory
	TaskTransferring  TaskState = "transferring"   // Bytes are moving
	TaskSucceeded     TaskState = "succeeded"      // Uploaded
	TaskSkipped       TaskState = "skipped"        // Inert entry, nothing sent
	TaskFailed        TaskState = "failed"         // Failed with error
	TaskQuotaExceeded TaskState = "quota_exceeded" // Rejected for lack of space
)

// terminal maps result statuses onto task states.
var terminal = map[Status]TaskState{
	StatusSucceeded:     TaskSucceeded,
	StatusSkipped:       TaskSkipped,
	StatusFailed:        TaskFailed,
	StatusQuotaExceeded: TaskQuotaExceeded,
}

// Task is one file upload. Thread-safe: use the provided methods to read or
// update state.
type Task struct {
	Index int
	Entry collect.Entry

	// State tracking
	state    TaskState
	progress float64 // 0.0 to 1.0
	speed    float64 // bytes/sec (smoothed with EMA)
	bytes    int64
	err      error

	// Speed calculation internals (for EMA smoothing)
	lastBytes      int64
	lastUpdateTime time.Time

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	mu sync.RWMutex
}

// NewTasks creates one queued task per entry.
func NewTasks(entries []collect.Entry) []*Task {
	now := time.Now()
	tasks := make([]*Task, len(entries))
	for i, e := range entries {
		tasks[i] = &Task{Index: i, Entry: e, state: TaskQueued, createdAt: now}
	}
	return tasks
}

// State returns the current state.
func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// setState moves the task forward. Terminal states are final.
func (t *Task) setState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isTerminalLocked() {
		return
	}
	t.state = state
	if state == TaskResolving && t.startedAt.IsZero() {
		t.startedAt = time.Now()
	}
	if t.isTerminalLocked() {
		t.completedAt = time.Now()
	}
}

// finish records the result's terminal state.
func (t *Task) finish(r Result) {
	if state, ok := terminal[r.Status]; ok {
		t.mu.Lock()
		t.err = r.Err
		t.mu.Unlock()
		t.setState(state)
	}
}

func (t *Task) isTerminalLocked() bool {
	switch t.state {
	case TaskSucceeded, TaskSkipped, TaskFailed, TaskQuotaExceeded:
		return true
	}
	return false
}

// IsTerminal returns true once the task has a final outcome.
func (t *Task) IsTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isTerminalLocked()
}

// Err returns the failure, if any.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Progress returns the fraction of bytes sent.
func (t *Task) Progress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Speed returns the smoothed transfer rate in bytes/sec.
func (t *Task) Speed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speed
}

// Elapsed returns time since the task was claimed, or its total run time once
// terminal.
func (t *Task) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startedAt.IsZero() {
		return 0
	}
	if !t.completedAt.IsZero() {
		return t.completedAt.Sub(t.startedAt)
	}
	return time.Since(t.startedAt)
}

// updateProgress records bytes sent and recalculates speed using EMA.
// Returns the new progress fraction.
func (t *Task) updateProgress(bytesTransferred int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bytes = bytesTransferred
	total := t.Entry.Size
	if total > 0 {
		t.progress = float64(bytesTransferred) / float64(total)
		if t.progress > 1 {
			t.progress = 1
		}
	}

	now := time.Now()
	if t.lastBytes == 0 && bytesTransferred > 0 {
		t.lastUpdateTime = now
		t.lastBytes = bytesTransferred
		t.speed = 0
		return t.progress
	}

	if t.lastBytes > 0 && bytesTransferred > t.lastBytes {
		elapsed := now.Sub(t.lastUpdateTime).Seconds()
		if elapsed > 0.1 { // Need at least 100ms between updates for meaningful rate
			instantRate := float64(bytesTransferred-t.lastBytes) / elapsed

			// EMA smoothing (alpha=0.25)
			const speedSmoothingAlpha = 0.25
			if t.speed > 0 {
				t.speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.speed
			} else {
				t.speed = instantRate
			}
			t.lastBytes = bytesTransferred
			t.lastUpdateTime = now
		}
	}
	return t.progress
}

// BytesSent returns the last reported byte count.
func (t *Task) BytesSent() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytes
}
