package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/folders"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// memHandle is in-memory content. A non-nil block channel makes Open wait on
// it, simulating a handle that never answers.
type memHandle struct {
	name  string
	data  []byte
	block chan struct{}
}

func (h *memHandle) Name() string { return h.name }
func (h *memHandle) Size() int64  { return int64(len(h.data)) }
func (h *memHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return io.NopCloser(bytes.NewReader(h.data)), nil
}

func entry(rel string, data string) collect.Entry {
	name := rel[strings.LastIndex(rel, "/")+1:]
	return collect.Entry{
		Handle:       &memHandle{name: name, data: []byte(data)},
		RelativePath: rel,
		Size:         int64(len(data)),
	}
}

type transferCall struct {
	DirectoryID string
	FileName    string
	Content     string
}

// fakeBackend records calls and delegates behaviour to fn when set.
type fakeBackend struct {
	mu    sync.Mutex
	calls []transferCall
	delay time.Duration
	fn    func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error)
}

func (b *fakeBackend) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.calls = append(b.calls, transferCall{DirectoryID: req.DirectoryID, FileName: req.FileName, Content: string(data)})
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if req.OnProgress != nil {
		req.OnProgress(int64(len(data)))
	}
	if b.fn != nil {
		return b.fn(ctx, req)
	}
	return &models.RemoteFile{ID: "file-" + req.FileName, Name: req.FileName, FolderID: req.DirectoryID}, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// countingReporter counts completions and progress events.
type countingReporter struct {
	completed atomic.Int64
	succeeded atomic.Int64
	progress  atomic.Int64
}

func (r *countingReporter) FileProgress(path string, percent float64, status string) {
	r.progress.Add(1)
}

func (r *countingReporter) FileCompleted(path string, ok bool) {
	r.completed.Add(1)
	if ok {
		r.succeeded.Add(1)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
}

func (n *recordingNotifier) AddNotification(item models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func rootOnly() *folders.PathMap {
	return folders.NewPathMap("root", nil)
}

func TestScheduler_RootFiles(t *testing.T) {
	backend := &fakeBackend{}
	reporter := &countingReporter{}
	tasks := NewTasks([]collect.Entry{entry("a.txt", "aaa"), entry("b.txt", "bb"), entry("c.txt", "c")})

	s := NewScheduler(backend, rootOnly(), Options{Reporter: reporter})
	results := s.Run(context.Background(), tasks)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Status != StatusSucceeded {
			t.Errorf("Result %d: expected succeeded, got %s (%v)", i, r.Status, r.Err)
		}
		if r.Path != tasks[i].Entry.RelativePath {
			t.Errorf("Result %d: expected path %s, got %s", i, tasks[i].Entry.RelativePath, r.Path)
		}
		if tasks[i].State() != TaskSucceeded {
			t.Errorf("Task %d: expected state succeeded, got %s", i, tasks[i].State())
		}
	}
	for _, c := range backend.calls {
		if c.DirectoryID != "root" {
			t.Errorf("Expected root target, got %s", c.DirectoryID)
		}
	}
	if got := reporter.completed.Load(); got != 3 {
		t.Errorf("Expected 3 completions, got %d", got)
	}
	if got := reporter.succeeded.Load(); got != 3 {
		t.Errorf("Expected 3 succeeded, got %d", got)
	}
}

func TestScheduler_ResolvesNestedTargets(t *testing.T) {
	backend := &fakeBackend{}
	paths := folders.NewPathMap("root", map[string]string{"a": "id-a", "a/b": "id-ab"})
	tasks := NewTasks([]collect.Entry{entry("a/x.txt", "x"), entry("a/b/y.txt", "y")})

	results := NewScheduler(backend, paths, Options{}).Run(context.Background(), tasks)

	for _, r := range results {
		if r.Status != StatusSucceeded {
			t.Fatalf("Expected success for %s, got %v", r.Path, r.Err)
		}
	}
	targets := map[string]string{}
	for _, c := range backend.calls {
		targets[c.FileName] = c.DirectoryID
	}
	if targets["x.txt"] != "id-a" {
		t.Errorf("Expected x.txt in id-a, got %s", targets["x.txt"])
	}
	if targets["y.txt"] != "id-ab" {
		t.Errorf("Expected y.txt in id-ab, got %s", targets["y.txt"])
	}
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	tests := []struct {
		workers int
		tasks   int
	}{
		{1, 10},
		{5, 50},
		{10, 40},
		{8, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("w%d_t%d", tt.workers, tt.tasks), func(t *testing.T) {
			backend := &fakeBackend{delay: 10 * time.Millisecond}
			var entries []collect.Entry
			for i := 0; i < tt.tasks; i++ {
				entries = append(entries, entry(fmt.Sprintf("f%03d.bin", i), "data"))
			}

			s := NewScheduler(backend, rootOnly(), Options{Concurrency: tt.workers})
			s.Run(context.Background(), NewTasks(entries))

			if got := s.MaxInFlight(); got > tt.workers {
				t.Errorf("Expected at most %d in flight, got %d", tt.workers, got)
			}
			if backend.callCount() != tt.tasks {
				t.Errorf("Expected %d transfers, got %d", tt.tasks, backend.callCount())
			}
		})
	}
}

func TestScheduler_CompletedCountMatchesTotal(t *testing.T) {
	for _, workers := range []int{1, 7, 32} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const total = 200
			backend := &fakeBackend{fn: func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
				if strings.HasSuffix(req.FileName, "7.bin") {
					return nil, errors.New("internal error")
				}
				return &models.RemoteFile{ID: req.FileName}, nil
			}}
			var entries []collect.Entry
			for i := 0; i < total; i++ {
				entries = append(entries, entry(fmt.Sprintf("f%03d.bin", i), "x"))
			}
			reporter := &countingReporter{}

			results := NewScheduler(backend, rootOnly(), Options{Concurrency: workers, Reporter: reporter}).
				Run(context.Background(), NewTasks(entries))

			if got := reporter.completed.Load(); got != total {
				t.Errorf("Expected %d completions, got %d", total, got)
			}
			failed := 0
			for _, r := range results {
				if r.Status == StatusFailed {
					failed++
					if !errors.Is(r.Err, ErrServer) {
						t.Errorf("Expected ErrServer for %s, got %v", r.Path, r.Err)
					}
				}
			}
			if failed != 20 {
				t.Errorf("Expected 20 failures, got %d", failed)
			}
			if got := reporter.succeeded.Load(); got != total-20 {
				t.Errorf("Expected %d succeeded, got %d", total-20, got)
			}
		})
	}
}

func TestScheduler_QuotaStopsSingleWorker(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
		if req.FileName == "f3" {
			return nil, cloud.QuotaError(errors.New("account full"))
		}
		return &models.RemoteFile{ID: req.FileName}, nil
	}}
	var entries []collect.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("f%d", i), "x"))
	}
	notifier := &recordingNotifier{}
	reporter := &countingReporter{}

	s := NewScheduler(backend, rootOnly(), Options{Concurrency: 1, Notifier: notifier, Reporter: reporter})
	results := s.Run(context.Background(), NewTasks(entries))

	if backend.callCount() != 4 {
		t.Errorf("Expected 4 transfers, got %d", backend.callCount())
	}
	if results[3].Status != StatusQuotaExceeded {
		t.Errorf("Expected f3 quota_exceeded, got %s", results[3].Status)
	}
	for _, r := range results[4:] {
		if r.Status != StatusAbandoned {
			t.Errorf("Expected %s abandoned, got %s", r.Path, r.Status)
		}
		if !errors.Is(r.Err, ErrQuotaExceeded) {
			t.Errorf("Expected abandoned reason quota, got %v", r.Err)
		}
	}
	if !s.Guard().Tripped() || s.Guard().FirstFile() != "f3" {
		t.Errorf("Expected guard tripped by f3, got %q", s.Guard().FirstFile())
	}
	if len(notifier.items) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.items))
	}
	if !strings.Contains(notifier.items[0].Text, "f3") {
		t.Errorf("Expected notification to name f3, got %q", notifier.items[0].Text)
	}
	if got := reporter.completed.Load(); got != 4 {
		t.Errorf("Expected 4 completions, got %d", got)
	}
}

// With several workers, at most N-1 transfers may start after the flag is
// raised: the ones already past their pre-claim check.
func TestScheduler_QuotaMonotonic(t *testing.T) {
	const workers = 4
	var s *Scheduler
	var startedAfterTrip atomic.Int64
	backend := &fakeBackend{fn: func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
		time.Sleep(5 * time.Millisecond)
		if req.FileName == "f005" {
			return nil, cloud.QuotaError(errors.New("full"))
		}
		return &models.RemoteFile{ID: req.FileName}, nil
	}}
	var entries []collect.Entry
	for i := 0; i < 100; i++ {
		entries = append(entries, entry(fmt.Sprintf("f%03d", i), "x"))
	}
	tripped := func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
		if s.Guard().Tripped() {
			startedAfterTrip.Add(1)
		}
		return backend.Transfer(ctx, req)
	}

	s = NewScheduler(transferFunc(tripped), rootOnly(), Options{Concurrency: workers})
	results := s.Run(context.Background(), NewTasks(entries))

	if got := startedAfterTrip.Load(); got > workers-1 {
		t.Errorf("Expected at most %d starts after quota, got %d", workers-1, got)
	}
	abandoned := 0
	for _, r := range results {
		if r.Status == StatusAbandoned {
			abandoned++
		}
	}
	if abandoned < 100-backend.callCount() {
		t.Errorf("Expected %d abandoned, got %d", 100-backend.callCount(), abandoned)
	}
	if backend.callCount() >= 100 {
		t.Error("Expected quota to stop the batch early")
	}
}

type transferFunc func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error)

func (f transferFunc) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	return f(ctx, req)
}

// An empty file whose handle never answers is skipped within the read bound,
// counted as succeeded, never sent, and logged and notified once.
func TestScheduler_ZeroByteBlockingHandleSkipped(t *testing.T) {
	var logBuf bytes.Buffer
	backend := &fakeBackend{}
	reporter := &countingReporter{}
	block := make(chan struct{})
	defer close(block)

	tasks := NewTasks([]collect.Entry{{
		Handle:       &memHandle{name: "empty", block: block},
		RelativePath: "dir/empty",
		Size:         0,
	}})
	paths := folders.NewPathMap("root", map[string]string{"dir": "id-dir"})

	notifier := &recordingNotifier{}

	start := time.Now()
	results := NewScheduler(backend, paths, Options{
		ZeroByteTimeout: 50 * time.Millisecond,
		Logger:          logging.NewLogger("json", &logBuf),
		Reporter:        reporter,
		Notifier:        notifier,
	}).Run(context.Background(), tasks)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected skip within the read bound, took %s", elapsed)
	}
	if results[0].Status != StatusSkipped {
		t.Fatalf("Expected skipped, got %s (%v)", results[0].Status, results[0].Err)
	}
	if !results[0].Counted() {
		t.Error("Expected skipped result to count as succeeded")
	}
	if backend.callCount() != 0 {
		t.Errorf("Expected no transfer, got %d", backend.callCount())
	}
	if got := reporter.succeeded.Load(); got != 1 {
		t.Errorf("Expected 1 succeeded completion, got %d", got)
	}
	if n := strings.Count(logBuf.String(), `"level":"warn"`); n != 1 {
		t.Errorf("Expected 1 warning log line, got %d: %s", n, logBuf.String())
	}
	if len(notifier.items) != 1 {
		t.Fatalf("Expected 1 warning notification, got %d", len(notifier.items))
	}
	if n := notifier.items[0]; n.Icon != models.IconWarning || !strings.Contains(n.Text, "dir/empty") {
		t.Errorf("Expected a warning naming dir/empty, got %+v", n)
	}
}

func TestScheduler_ZeroByteReadable(t *testing.T) {
	backend := &fakeBackend{}
	tasks := NewTasks([]collect.Entry{entry("empty.txt", "")})

	results := NewScheduler(backend, rootOnly(), Options{}).Run(context.Background(), tasks)

	if results[0].Status != StatusSucceeded {
		t.Fatalf("Expected succeeded, got %s (%v)", results[0].Status, results[0].Err)
	}
	if backend.callCount() != 1 || backend.calls[0].Content != "" {
		t.Errorf("Expected one empty transfer, got %+v", backend.calls)
	}
}

func TestScheduler_DirectoryUnresolved(t *testing.T) {
	backend := &fakeBackend{}
	tasks := NewTasks([]collect.Entry{entry("missing/x.txt", "x"), entry("ok.txt", "y")})

	results := NewScheduler(backend, rootOnly(), Options{}).Run(context.Background(), tasks)

	if results[0].Status != StatusFailed || !errors.Is(results[0].Err, ErrDirectoryUnresolved) {
		t.Errorf("Expected DirectoryUnresolved failure, got %s (%v)", results[0].Status, results[0].Err)
	}
	if results[1].Status != StatusSucceeded {
		t.Errorf("Expected ok.txt to succeed, got %s", results[1].Status)
	}
	if backend.callCount() != 1 {
		t.Errorf("Expected 1 transfer, got %d", backend.callCount())
	}
}

func TestScheduler_OpenTimeoutIsClientException(t *testing.T) {
	backend := &fakeBackend{}
	block := make(chan struct{})
	defer close(block)
	tasks := NewTasks([]collect.Entry{{
		Handle:       &memHandle{name: "slow", data: []byte("abc"), block: block},
		RelativePath: "slow",
		Size:         3,
	}})

	results := NewScheduler(backend, rootOnly(), Options{PrepTimeout: 30 * time.Millisecond}).
		Run(context.Background(), tasks)

	if results[0].Status != StatusFailed || !errors.Is(results[0].Err, ErrClientException) {
		t.Errorf("Expected client exception failure, got %s (%v)", results[0].Status, results[0].Err)
	}
	if backend.callCount() != 0 {
		t.Errorf("Expected no transfer, got %d", backend.callCount())
	}
}

func TestScheduler_StalledTransferFails(t *testing.T) {
	backend := transferFunc(func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tasks := NewTasks([]collect.Entry{entry("hang.bin", "data")})

	results := NewScheduler(backend, rootOnly(), Options{
		StallTimeout: 30 * time.Millisecond,
		HardTimeout:  time.Second,
	}).Run(context.Background(), tasks)

	if results[0].Status != StatusFailed || !results[0].IsTimeout() {
		t.Errorf("Expected stall failure, got %s (%v)", results[0].Status, results[0].Err)
	}
}

func TestScheduler_CancelledContextAbandons(t *testing.T) {
	backend := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := NewTasks([]collect.Entry{entry("a", "1"), entry("b", "2")})

	results := NewScheduler(backend, rootOnly(), Options{}).Run(ctx, tasks)

	for _, r := range results {
		if r.Status != StatusAbandoned || !errors.Is(r.Err, context.Canceled) {
			t.Errorf("Expected %s abandoned by cancel, got %s (%v)", r.Path, r.Status, r.Err)
		}
	}
	if backend.callCount() != 0 {
		t.Errorf("Expected no transfers, got %d", backend.callCount())
	}
}

// A backend that ignores cancellation keeps its slot until it returns, so a
// stalled transfer never overlaps the next one.
func TestScheduler_StalledSlotHeldUntilTransferReturns(t *testing.T) {
	var live, peak atomic.Int64
	backend := transferFunc(func(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
		n := live.Add(1)
		defer live.Add(-1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		return &models.RemoteFile{ID: req.FileName}, nil
	})

	var entries []collect.Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, entry(fmt.Sprintf("f%d.bin", i), "data"))
	}

	s := NewScheduler(backend, rootOnly(), Options{
		Concurrency:  1,
		StallTimeout: 30 * time.Millisecond,
		HardTimeout:  time.Second,
	})
	results := s.Run(context.Background(), NewTasks(entries))

	if got := peak.Load(); got != 1 {
		t.Errorf("Expected at most 1 live transfer, got %d", got)
	}
	if got := s.MaxInFlight(); got != 1 {
		t.Errorf("Expected MaxInFlight 1, got %d", got)
	}
	for _, r := range results {
		if r.Status != StatusFailed || !r.IsTimeout() {
			t.Errorf("Expected %s to stall, got %s (%v)", r.Path, r.Status, r.Err)
		}
	}
}
