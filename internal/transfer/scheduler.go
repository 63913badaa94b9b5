package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/folders"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// Transferer sends one file. cloud.Backend implements it.
type Transferer interface {
	Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error)
}

// Reporter receives per-file progress and completion from workers. Calls
// arrive concurrently.
type Reporter interface {
	FileProgress(path string, percent float64, status string)
	FileCompleted(path string, ok bool)
}

// Notifier receives one-off warnings such as the quota stop.
type Notifier interface {
	AddNotification(n models.Notification)
}

// Options configures a Scheduler. Zero values use the defaults in constants.
type Options struct {
	Concurrency int

	// Watchdog windows for the transfer call itself.
	StallTimeout time.Duration
	HardTimeout  time.Duration

	// ZeroByteTimeout bounds reading a zero-length entry into memory.
	ZeroByteTimeout time.Duration
	// ZeroBytePrepTimeout and PrepTimeout bound building the request
	// (opening the content) for zero-length and other entries.
	ZeroBytePrepTimeout time.Duration
	PrepTimeout         time.Duration

	Logger   *logging.Logger
	Reporter Reporter
	Notifier Notifier
}

// Scheduler runs upload tasks on exactly Concurrency workers that pull from a
// shared atomic cursor.
type Scheduler struct {
	backend  Transferer
	paths    *folders.PathMap
	opts     Options
	guard    *QuotaGuard
	watchdog *Watchdog
	logger   *logging.Logger

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewScheduler creates a scheduler that resolves target directories through
// paths. paths must not change while Run is active.
func NewScheduler(backend Transferer, paths *folders.PathMap, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.DefaultConcurrency
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = constants.DefaultStallTimeout
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = max(constants.HardTimeoutStallMultiplier*opts.StallTimeout, constants.HardTimeoutFloor)
	}
	if opts.ZeroByteTimeout <= 0 {
		opts.ZeroByteTimeout = constants.ZeroByteMaterializeTimeout
	}
	if opts.ZeroBytePrepTimeout <= 0 {
		opts.ZeroBytePrepTimeout = constants.ZeroByteTaskTimeout
	}
	if opts.PrepTimeout <= 0 {
		opts.PrepTimeout = constants.TaskTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &Scheduler{
		backend:  backend,
		paths:    paths,
		opts:     opts,
		guard:    &QuotaGuard{},
		watchdog: NewWatchdog(opts.StallTimeout, opts.HardTimeout),
		logger:   opts.Logger,
	}
}

// Guard exposes the quota flag shared by this scheduler's workers.
func (s *Scheduler) Guard() *QuotaGuard {
	return s.guard
}

// MaxInFlight returns the highest number of simultaneous transfer calls seen.
func (s *Scheduler) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

// Run executes tasks and returns one result per task, in task order. It
// returns after every worker has exited. Workers stop claiming tasks once
// the quota guard is tripped or ctx is done; unclaimed tasks are reported as
// StatusAbandoned and are not passed to the Reporter.
func (s *Scheduler) Run(ctx context.Context, tasks []*Task) []Result {
	results := make([]Result, len(tasks))
	claimed := make([]bool, len(tasks))
	var cursor atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < s.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if s.guard.Tripped() || ctx.Err() != nil {
					return
				}
				i := int(cursor.Add(1) - 1)
				if i >= len(tasks) {
					return
				}
				claimed[i] = true
				res := s.runTask(ctx, tasks[i])
				tasks[i].finish(res)
				results[i] = res
				if s.opts.Reporter != nil {
					s.opts.Reporter.FileCompleted(res.Path, res.Counted())
				}
			}
		}()
	}
	wg.Wait()

	for i, t := range tasks {
		if claimed[i] {
			continue
		}
		reason := ctx.Err()
		if s.guard.Tripped() {
			reason = ErrQuotaExceeded
		}
		results[i] = Result{Path: t.Entry.RelativePath, Status: StatusAbandoned, Err: reason}
	}
	return results
}

// runTask drives one task from Resolving to a terminal result. It never
// panics out of the worker and never returns an error.
func (s *Scheduler) runTask(ctx context.Context, task *Task) Result {
	start := time.Now()
	entry := task.Entry
	res := Result{Path: entry.RelativePath}
	task.setState(TaskResolving)

	var content io.Reader
	size := entry.Size
	prepTimeout := s.opts.PrepTimeout

	if entry.Size == 0 {
		data, err := readAllWithin(ctx, entry.Handle, s.opts.ZeroByteTimeout)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", entry.RelativePath).Msg("Could not read empty file, skipping it")
			if s.opts.Notifier != nil {
				s.opts.Notifier.AddNotification(models.Notification{
					Icon:  models.IconWarning,
					Title: "Empty item skipped",
					Text:  fmt.Sprintf("%s could not be read and was not uploaded.", entry.RelativePath),
				})
			}
			res.Status = StatusSkipped
			res.Err = fmt.Errorf("%w: %w", ErrClientException, err)
			res.Duration = time.Since(start)
			return res
		}
		content = bytes.NewReader(data)
		size = int64(len(data))
		prepTimeout = s.opts.ZeroBytePrepTimeout
	}

	dirID, ok := s.paths.Lookup(entry.ParentPath())
	if !ok {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %q", ErrDirectoryUnresolved, entry.ParentPath())
		res.Duration = time.Since(start)
		s.logger.Error().Str("path", entry.RelativePath).Msg("Target folder was not created")
		return res
	}

	if content == nil {
		rc, err := openWithin(ctx, entry.Handle, prepTimeout)
		if err != nil {
			s.logger.Error().Err(err).Str("path", entry.RelativePath).Msg("Could not open file")
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: %w", ErrClientException, err)
			res.Duration = time.Since(start)
			return res
		}
		defer rc.Close()
		content = rc
	}

	task.setState(TaskTransferring)
	s.enter()
	outcome := s.watchdog.Run(ctx, func(tctx context.Context, onProgress cloud.ProgressFunc) (*models.RemoteFile, error) {
		return s.backend.Transfer(tctx, cloud.TransferRequest{
			DirectoryID: dirID,
			FileName:    entry.FileName(),
			Size:        size,
			Content:     content,
			OnProgress:  onProgress,
		})
	}, func(n int64) {
		pct := task.updateProgress(n)
		if s.opts.Reporter != nil {
			s.opts.Reporter.FileProgress(entry.RelativePath, pct*100, string(TaskTransferring))
		}
	})
	s.leave()

	res.Duration = time.Since(start)
	res.Bytes = task.BytesSent()

	switch {
	case outcome.OK():
		res.Status = StatusSucceeded
		res.Bytes = size
		if outcome.File != nil {
			res.RemoteID = outcome.File.ID
		}
		s.logger.Debug().Str("path", entry.RelativePath).Dur("elapsed", task.Elapsed()).Float64("bytes_per_sec", task.Speed()).Msg("Uploaded")
	case outcome.Quota:
		res.Status = StatusQuotaExceeded
		res.Err = outcome.Err
		if s.guard.Trip(entry.RelativePath) {
			s.logger.Warn().Str("path", entry.RelativePath).Msg("Storage quota exceeded, no further files will be started")
			if s.opts.Notifier != nil {
				s.opts.Notifier.AddNotification(models.Notification{
					Icon:  models.IconError,
					Title: "Storage quota exceeded",
					Text:  fmt.Sprintf("Upload stopped at %s: not enough storage space.", entry.RelativePath),
				})
			}
		}
	default:
		res.Status = StatusFailed
		res.Err = outcome.Err
		s.logger.Error().Err(outcome.Err).Str("path", entry.RelativePath).Dur("elapsed", res.Duration).Msg("Upload failed")
	}
	return res
}

func (s *Scheduler) enter() {
	n := s.inFlight.Add(1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *Scheduler) leave() {
	s.inFlight.Add(-1)
}

// readAllWithin reads the whole content or gives up after timeout. A handle
// that blocks is abandoned, not waited for.
func readAllWithin(ctx context.Context, h collect.ContentHandle, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		rc, err := h.Open(ctx)
		if err != nil {
			done <- readResult{err: err}
			return
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		done <- readResult{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("read timed out after %s: %w", timeout, ctx.Err())
	}
}

// openWithin opens the content, giving up after timeout. The timeout only
// bounds the open; the returned reader lives on ctx.
func openWithin(ctx context.Context, h collect.ContentHandle, timeout time.Duration) (io.ReadCloser, error) {
	type openResult struct {
		rc  io.ReadCloser
		err error
	}
	done := make(chan openResult, 1)
	go func() {
		rc, err := h.Open(ctx)
		done <- openResult{rc: rc, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.rc, r.err
	case <-timer.C:
	case <-ctx.Done():
	}

	// Close a handle that arrives after we gave up.
	go func() {
		if r := <-done; r.rc != nil {
			r.rc.Close()
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("open timed out after %s", timeout)
}
