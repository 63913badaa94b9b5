package upload

import (
	"time"

	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/folders"
	"github.com/rescale/rescale-upload/internal/transfer"
)

// Summary tracks what happened during one batch.
type Summary struct {
	BatchID        string
	TotalFiles     int
	SucceededCount int
	QuotaStopped   bool
	// QuotaFile is the file whose upload raised the quota stop.
	QuotaFile string

	// Per-file results in entry order, abandoned tasks included.
	Results []transfer.Result
	// Entries that failed the readability probe.
	Skipped []collect.Skipped

	Entries           []collect.Entry
	Directories       []folders.PlannedDirectory
	DirectoryFailures []folders.Failure

	MaxInFlight int
	Duration    time.Duration
	DryRun      bool
}

// Failed returns the results that did not succeed, in entry order.
func (s *Summary) Failed() []transfer.Result {
	var out []transfer.Result
	for _, r := range s.Results {
		if !r.Counted() {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many results ended in status.
func (s *Summary) Count(status transfer.Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// OK reports whether every collected file was uploaded or skipped as inert.
func (s *Summary) OK() bool {
	return !s.QuotaStopped && s.SucceededCount == s.TotalFiles
}
