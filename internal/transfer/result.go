package transfer

import (
	"errors"
	"time"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/folders"
)

// Error taxonomy for one upload. Match with errors.Is.
var (
	ErrUnreadableEntry       = collect.ErrUnreadableEntry
	ErrDirectoryCreateFailed = folders.ErrDirectoryCreateFailed
	ErrDirectoryUnresolved   = folders.ErrDirectoryUnresolved
	ErrQuotaExceeded         = cloud.ErrQuotaExceeded

	ErrStallTimeout    = errors.New("transfer stalled")
	ErrHardTimeout     = errors.New("transfer hard timeout")
	ErrNetwork         = errors.New("network error")
	ErrServer          = errors.New("server error")
	ErrClientException = errors.New("request preparation failed")
)

// Status is the terminal outcome of a task.
type Status string

const (
	StatusSucceeded     Status = "succeeded"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
	StatusQuotaExceeded Status = "quota_exceeded"
	// StatusAbandoned marks a task never claimed because the batch stopped.
	StatusAbandoned Status = "abandoned"
)

// Result is the outcome of one task.
type Result struct {
	Path     string
	Status   Status
	Err      error
	Bytes    int64
	Duration time.Duration
	RemoteID string
}

// Counted reports whether the result counts towards the succeeded total.
// Skipped entries are inert placeholders and count as succeeded.
func (r Result) Counted() bool {
	return r.Status == StatusSucceeded || r.Status == StatusSkipped
}

// IsTimeout reports whether the task was aborted by the watchdog.
func (r Result) IsTimeout() bool {
	return errors.Is(r.Err, ErrStallTimeout) || errors.Is(r.Err, ErrHardTimeout)
}
