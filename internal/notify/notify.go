// Package notify shows desktop notifications for finished batches and
// batch-level warnings. It uses github.com/gen2brain/beeep for cross-platform
// notification support.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowSummary shows the succeeded/total notification when a batch ends.
	ShowSummary bool

	// ShowWarnings shows skipped-entry and quota warnings.
	ShowWarnings bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		ShowSummary:  true,
		ShowWarnings: true,
	}
}

// sendFunc delivers one notification. beeep.Notify and beeep.Alert match it.
type sendFunc func(title, message string, icon any) error

// Notifier is a batch observer that raises desktop notifications. Per-file
// events are ignored.
type Notifier struct {
	logger *logging.Logger
	cfg    Config
	notify sendFunc
	alert  sendFunc

	mu     sync.Mutex
	labels map[string]string // batchID -> label
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	beeep.AppName = constants.AppName
	return &Notifier{
		logger: logger,
		cfg:    *cfg,
		notify: beeep.Notify,
		alert:  beeep.Alert,
		labels: make(map[string]string),
	}
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n.cfg.Enabled
}

func (n *Notifier) StartBatch(batchID, label string, total int) {
	n.mu.Lock()
	n.labels[batchID] = label
	n.mu.Unlock()
}

func (n *Notifier) UpdateFile(batchID, fileName string, percent float64, status string) {}

func (n *Notifier) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {}

// FinishBatch sends the "succeeded/total" summary.
func (n *Notifier) FinishBatch(batchID string, succeeded, total int) {
	n.mu.Lock()
	label := n.labels[batchID]
	delete(n.labels, batchID)
	n.mu.Unlock()

	if !n.cfg.Enabled || !n.cfg.ShowSummary {
		return
	}

	title := "Upload Complete"
	if succeeded < total {
		title = "Upload Finished With Errors"
	}
	message := fmt.Sprintf("%d/%d file(s) uploaded", succeeded, total)
	if label != "" {
		message += " to " + shortenPath(label)
	}

	if err := n.notify(title, message, ""); err != nil {
		n.logger.Warn().Err(err).Str("batch", batchID).Msg("Failed to send upload summary notification")
	}
}

// AddNotification shows a one-off warning. Errors use the more prominent
// alert style and fall back to a regular notification.
func (n *Notifier) AddNotification(item models.Notification) {
	if !n.cfg.Enabled || !n.cfg.ShowWarnings {
		return
	}

	title := truncate(item.Title, 60)
	message := truncate(item.Text, 200)

	if item.Icon == models.IconError {
		if err := n.alert(title, message, ""); err == nil {
			return
		}
	}
	if err := n.notify(title, message, ""); err != nil {
		n.logger.Warn().Err(err).Str("title", item.Title).Msg("Failed to send notification")
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long slash path for display in notifications,
// keeping the last two segments.
func shortenPath(p string) string {
	const maxLen = 60

	if len(p) <= maxLen {
		return p
	}

	short := ".../" + lastSegments(p, 2)
	if len(short) > maxLen {
		return "..." + p[len(p)-(maxLen-3):]
	}
	return short
}

func lastSegments(p string, n int) string {
	count := 0
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			count++
			if count == n {
				return p[i+1:]
			}
		}
	}
	return p
}
