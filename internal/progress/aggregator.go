package progress

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rescale/rescale-upload/internal/models"
)

// Snapshot is a point-in-time view of the batch counters.
type Snapshot struct {
	BatchID   string
	Total     int
	Completed int
	Succeeded int
	Finished  bool
}

// Aggregator owns the counters of one batch and forwards every change to an
// observer. It satisfies the scheduler's Reporter and Notifier interfaces.
type Aggregator struct {
	observer Observer
	batchID  string
	label    string
	total    int

	completed atomic.Int64
	succeeded atomic.Int64
	finished  atomic.Bool
}

// NewAggregator creates an aggregator reporting to observer. A nil observer
// is replaced by NopObserver.
func NewAggregator(observer Observer) *Aggregator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Aggregator{observer: observer}
}

// Start opens the batch with a fresh id and tells the observer.
func (a *Aggregator) Start(total int, label string) string {
	a.batchID = uuid.NewString()
	a.label = label
	a.total = total
	a.observer.StartBatch(a.batchID, label, total)
	return a.batchID
}

// BatchID returns the id minted by Start.
func (a *Aggregator) BatchID() string {
	return a.batchID
}

// FileProgress forwards a per-file update.
func (a *Aggregator) FileProgress(path string, percent float64, status string) {
	a.observer.UpdateFile(a.batchID, path, percent, status)
}

// FileCompleted counts one terminal task. The observer sees the counters as
// they were right after this call's increments.
func (a *Aggregator) FileCompleted(path string, ok bool) {
	var succeeded int64
	if ok {
		succeeded = a.succeeded.Add(1)
	} else {
		succeeded = a.succeeded.Load()
	}
	completed := a.completed.Add(1)
	a.observer.FileCompleted(a.batchID, path, ok, int(completed), int(succeeded))
}

// AddNotification forwards a one-off message.
func (a *Aggregator) AddNotification(n models.Notification) {
	a.observer.AddNotification(n)
}

// Finish closes the batch. Only the first call reaches the observer; it
// returns false for every later call.
func (a *Aggregator) Finish() bool {
	if !a.finished.CompareAndSwap(false, true) {
		return false
	}
	a.observer.FinishBatch(a.batchID, int(a.succeeded.Load()), a.total)
	return true
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		BatchID:   a.batchID,
		Total:     a.total,
		Completed: int(a.completed.Load()),
		Succeeded: int(a.succeeded.Load()),
		Finished:  a.finished.Load(),
	}
}
