package transfer

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rescale/rescale-upload/internal/api"
	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/models"
)

func TestWatchdog_Success(t *testing.T) {
	w := NewWatchdog(time.Second, 2*time.Second)
	var seen int64
	out := w.Run(context.Background(), func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		onProgress(10)
		return &models.RemoteFile{ID: "f1"}, nil
	}, func(n int64) { seen = n })

	if !out.OK() {
		t.Fatalf("Expected success, got %v", out.Err)
	}
	if out.File.ID != "f1" {
		t.Errorf("Expected file f1, got %s", out.File.ID)
	}
	if seen != 10 {
		t.Errorf("Expected progress 10 forwarded, got %d", seen)
	}
}

// Progress for a while, then silence: the stall fires one window after the
// last progress event, not one window after the start.
func TestWatchdog_StallAfterProgress(t *testing.T) {
	const stall = 100 * time.Millisecond
	const progressFor = 250 * time.Millisecond
	w := NewWatchdog(stall, 5*time.Second)

	start := time.Now()
	out := w.Run(context.Background(), func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		var sent int64
		for time.Since(start) < progressFor {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				sent += 1024
				onProgress(sent)
			}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	elapsed := time.Since(start)

	if !errors.Is(out.Err, ErrStallTimeout) {
		t.Fatalf("Expected ErrStallTimeout, got %v", out.Err)
	}
	if !out.Timeout {
		t.Error("Expected Timeout flag")
	}
	if elapsed < progressFor+stall-30*time.Millisecond {
		t.Errorf("Stall fired too early: %s", elapsed)
	}
	if elapsed > progressFor+stall+time.Second {
		t.Errorf("Stall fired too late: %s", elapsed)
	}
}

// A transfer that keeps dribbling progress is still bounded by the hard timer.
func TestWatchdog_HardTimeout(t *testing.T) {
	w := NewWatchdog(80*time.Millisecond, 300*time.Millisecond)

	start := time.Now()
	out := w.Run(context.Background(), func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		var sent int64
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
				sent++
				onProgress(sent)
			}
		}
	}, nil)
	elapsed := time.Since(start)

	if !errors.Is(out.Err, ErrHardTimeout) {
		t.Fatalf("Expected ErrHardTimeout, got %v", out.Err)
	}
	if elapsed < 250*time.Millisecond {
		t.Errorf("Hard timeout fired too early: %s", elapsed)
	}
}

// Both timers fire and the transfer later returns on its own; only the first
// terminal event is reported, and Run does not return until the transfer has
// unwound.
func TestWatchdog_IdempotentResolution(t *testing.T) {
	w := NewWatchdog(20*time.Millisecond, 20*time.Millisecond)

	var fnReturned atomic.Bool
	var ctxCancelled atomic.Bool

	start := time.Now()
	out := w.Run(context.Background(), func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		time.Sleep(150 * time.Millisecond) // ignores ctx
		ctxCancelled.Store(ctx.Err() != nil)
		onProgress(1) // after resolution, must be ignored
		fnReturned.Store(true)
		return &models.RemoteFile{ID: "late"}, nil
	}, func(int64) {
		t.Error("Progress forwarded after resolution")
	})
	elapsed := time.Since(start)

	if !out.Timeout {
		t.Fatalf("Expected a timeout outcome, got %+v", out)
	}
	if out.File != nil {
		t.Errorf("Expected the late result to be dropped, got %+v", out.File)
	}
	if !fnReturned.Load() {
		t.Error("Expected Run to wait for the transfer to unwind")
	}
	if elapsed < 140*time.Millisecond {
		t.Errorf("Expected Run to return after the transfer, took %s", elapsed)
	}
	if !ctxCancelled.Load() {
		t.Error("Expected transfer context to be cancelled")
	}
}

func TestWatchdog_ParentCancel(t *testing.T) {
	w := NewWatchdog(time.Second, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := w.Run(ctx, func(ctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", out.Err)
	}
	if out.Timeout || out.Quota {
		t.Errorf("Expected plain cancellation, got %+v", out)
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		err       error
		wantIs    error
		wantQuota bool
	}{
		{"quota", cloud.QuotaError(errors.New("full")), ErrQuotaExceeded, true},
		{"api 507", &api.APIError{StatusCode: 507}, ErrQuotaExceeded, true},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrNetwork, false},
		{"server", &api.APIError{StatusCode: 500, Message: "boom"}, ErrServer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := classify(ctx, nil, tt.err)
			if !errors.Is(out.Err, tt.wantIs) {
				t.Errorf("Expected %v, got %v", tt.wantIs, out.Err)
			}
			if out.Quota != tt.wantQuota {
				t.Errorf("Expected quota=%v, got %v", tt.wantQuota, out.Quota)
			}
		})
	}
}
