package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rescale/rescale-upload/internal/models"
)

// BatchBar is a compact single-line observer: one bar counting finished
// files, no per-file rows.
type BatchBar struct {
	out io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBatchBar creates a compact bar writing to out.
func NewBatchBar(out io.Writer) *BatchBar {
	return &BatchBar{out: out}
}

func (b *BatchBar) StartBatch(batchID, label string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if total == 0 {
		return
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(truncate(label, 30)),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(b.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (b *BatchBar) UpdateFile(batchID, fileName string, percent float64, status string) {}

func (b *BatchBar) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {
	if bar := b.current(); bar != nil {
		_ = bar.Add(1)
	}
}

func (b *BatchBar) FinishBatch(batchID string, succeeded, total int) {
	if bar := b.current(); bar != nil && !bar.IsFinished() {
		// Quota-stopped batches end short of max.
		_ = bar.Exit()
	}
	fmt.Fprintf(b.out, "%d/%d file(s) uploaded\n", succeeded, total)
}

func (b *BatchBar) AddNotification(n models.Notification) {
	bar := b.current()
	if bar == nil {
		fmt.Fprintf(b.out, "%s: %s\n", n.Title, n.Text)
		return
	}
	_, _ = progressbar.Bprintln(bar, n.Title+": "+n.Text)
}

// Completed returns the number of files the bar has counted.
func (b *BatchBar) Completed() int64 {
	if bar := b.current(); bar != nil {
		return bar.State().CurrentNum
	}
	return 0
}

func (b *BatchBar) current() *progressbar.ProgressBar {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bar
}
