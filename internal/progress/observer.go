// Package progress aggregates batch counters and fans batch updates out to
// observers: terminal bars, the event bus, logs and desktop notifications.
package progress

import (
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// Observer receives the life of one batch. Methods may be called from
// several workers at once; implementations must be safe for concurrent use.
//
// Counts passed to FileCompleted are post-increment snapshots, so they are
// strictly increasing across calls for a batch.
type Observer interface {
	StartBatch(batchID, label string, total int)
	UpdateFile(batchID, fileName string, percent float64, status string)
	FileCompleted(batchID, fileName string, ok bool, completed, succeeded int)
	FinishBatch(batchID string, succeeded, total int)
	AddNotification(n models.Notification)
}

// Multi fans every call out to each observer in order.
type Multi []Observer

func (m Multi) StartBatch(batchID, label string, total int) {
	for _, o := range m {
		o.StartBatch(batchID, label, total)
	}
}

func (m Multi) UpdateFile(batchID, fileName string, percent float64, status string) {
	for _, o := range m {
		o.UpdateFile(batchID, fileName, percent, status)
	}
}

func (m Multi) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {
	for _, o := range m {
		o.FileCompleted(batchID, fileName, ok, completed, succeeded)
	}
}

func (m Multi) FinishBatch(batchID string, succeeded, total int) {
	for _, o := range m {
		o.FinishBatch(batchID, succeeded, total)
	}
}

func (m Multi) AddNotification(n models.Notification) {
	for _, o := range m {
		o.AddNotification(n)
	}
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) StartBatch(string, string, int)               {}
func (NopObserver) UpdateFile(string, string, float64, string)   {}
func (NopObserver) FileCompleted(string, string, bool, int, int) {}
func (NopObserver) FinishBatch(string, int, int)                 {}
func (NopObserver) AddNotification(models.Notification)          {}

// LogObserver writes batch milestones to a logger. Per-file progress is only
// logged at debug level.
type LogObserver struct {
	logger *logging.Logger
}

// NewLogObserver creates an observer that logs through logger.
func NewLogObserver(logger *logging.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) StartBatch(batchID, label string, total int) {
	l.logger.Info().Str("batch", batchID).Str("label", label).Int("files", total).Msg("Upload started")
}

func (l *LogObserver) UpdateFile(batchID, fileName string, percent float64, status string) {
	l.logger.Debug().Str("batch", batchID).Str("file", fileName).Float64("percent", percent).Str("status", status).Msg("Progress")
}

func (l *LogObserver) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {
	l.logger.Debug().Str("batch", batchID).Str("file", fileName).Bool("ok", ok).
		Int("completed", completed).Int("succeeded", succeeded).Msg("File done")
}

func (l *LogObserver) FinishBatch(batchID string, succeeded, total int) {
	ev := l.logger.Info()
	if succeeded < total {
		ev = l.logger.Warn()
	}
	ev.Str("batch", batchID).Int("succeeded", succeeded).Int("total", total).Msg("Upload finished")
}

func (l *LogObserver) AddNotification(n models.Notification) {
	ev := l.logger.Info()
	switch n.Icon {
	case models.IconWarning:
		ev = l.logger.Warn()
	case models.IconError:
		ev = l.logger.Error()
	}
	ev.Str("title", n.Title).Msg(n.Text)
}
