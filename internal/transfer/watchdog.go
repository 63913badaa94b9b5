package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/http"
	"github.com/rescale/rescale-upload/internal/models"
)

// Outcome is the single terminal result of a watched transfer.
type Outcome struct {
	File    *models.RemoteFile
	Err     error
	Timeout bool
	Quota   bool
}

// OK reports whether the transfer succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// TransferFunc performs one transfer. It must stop when ctx is cancelled and
// call onProgress with the cumulative bytes sent.
type TransferFunc func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error)

// Watchdog bounds a transfer with two independent timers: a stall timer
// restarted on every progress event, and a hard timer that is never
// restarted.
type Watchdog struct {
	stall time.Duration
	hard  time.Duration
}

// NewWatchdog creates a watchdog. hard should already include any floor.
func NewWatchdog(stall, hard time.Duration) *Watchdog {
	return &Watchdog{stall: stall, hard: hard}
}

// Run executes fn and returns the first terminal event: completion, stall,
// hard timeout or cancellation of ctx. When a timer wins, the transfer's
// context is cancelled and Run waits for fn to unwind before returning, so the
// caller's slot and content stay held until the transfer has stopped. Both
// timers are stopped on any terminal event. progress, if set, sees every
// progress event that arrives before resolution.
func (w *Watchdog) Run(ctx context.Context, fn TransferFunc, progress cloud.ProgressFunc) Outcome {
	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	start := time.Now()

	var (
		once     sync.Once
		mu       sync.Mutex // guards resolved and both timers
		resolved bool
		stallT   *time.Timer
		hardT    *time.Timer
	)
	done := make(chan Outcome, 1)

	resolve := func(o Outcome) {
		once.Do(func() {
			mu.Lock()
			resolved = true
			stallT.Stop()
			hardT.Stop()
			mu.Unlock()
			cancel()
			done <- o
		})
	}

	mu.Lock()
	stallT = time.AfterFunc(w.stall, func() {
		resolve(Outcome{
			Err:     fmt.Errorf("%w: no progress for %s (elapsed %s)", ErrStallTimeout, w.stall, time.Since(start).Round(time.Millisecond)),
			Timeout: true,
		})
	})
	hardT = time.AfterFunc(w.hard, func() {
		resolve(Outcome{
			Err:     fmt.Errorf("%w: exceeded %s", ErrHardTimeout, w.hard),
			Timeout: true,
		})
	})
	mu.Unlock()

	onProgress := func(n int64) {
		mu.Lock()
		if resolved {
			mu.Unlock()
			return
		}
		stallT.Reset(w.stall)
		mu.Unlock()
		if progress != nil {
			progress(n)
		}
	}

	stopParent := context.AfterFunc(ctx, func() {
		resolve(Outcome{Err: ctx.Err()})
	})
	defer stopParent()

	unwound := make(chan struct{})
	go func() {
		defer close(unwound)
		file, err := fn(tctx, onProgress)
		resolve(classify(ctx, file, err))
	}()

	out := <-done
	<-unwound
	return out
}

// classify maps a finished transfer onto the error taxonomy.
func classify(parent context.Context, file *models.RemoteFile, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{File: file}
	case parent.Err() != nil && errors.Is(err, parent.Err()):
		return Outcome{Err: err}
	case cloud.IsQuotaError(err):
		return Outcome{Err: cloud.QuotaError(err), Quota: true}
	case http.IsNetworkError(err):
		return Outcome{Err: fmt.Errorf("%w: %w", ErrNetwork, err)}
	default:
		return Outcome{Err: fmt.Errorf("%w: %w", ErrServer, err)}
	}
}
