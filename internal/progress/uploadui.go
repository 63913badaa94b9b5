package progress

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/rescale-upload/internal/models"
)

// UploadUI draws one bar per in-flight file plus a batch bar using mpb. When
// the output is not a terminal it prints one line per finished file instead.
type UploadUI struct {
	out        io.Writer
	progress   *mpb.Progress
	isTerminal bool

	mu       sync.Mutex
	batchBar *mpb.Bar
	bars     map[string]*fileBar
	total    int
	started  int
}

type fileBar struct {
	bar     *mpb.Bar
	index   int
	started time.Time
}

// NewUploadUI creates an upload UI writing to out. Bars are only drawn when
// out is a terminal.
func NewUploadUI(out io.Writer) *UploadUI {
	isTerminal := false
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		isTerminal = true
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		enableANSIOnWindows(f)
	}

	u := &UploadUI{
		out:        out,
		isTerminal: isTerminal,
		bars:       make(map[string]*fileBar),
	}
	if isTerminal {
		u.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond), // ~3 times per second
			mpb.WithWidth(100),
		)
	}
	return u
}

// IsTerminal returns true if bars are being drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Writer returns an io.Writer that prints above the bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil {
		return u.progress
	}
	return u.out
}

func (u *UploadUI) StartBatch(batchID, label string, total int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.total = total

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Uploading %d file(s) to %s\n", total, label)
		return
	}
	if total == 0 {
		return
	}
	u.batchBar = u.progress.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(truncate(label, 40), decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
}

func (u *UploadUI) UpdateFile(batchID, fileName string, percent float64, status string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fb, ok := u.bars[fileName]
	if !ok {
		u.started++
		fb = &fileBar{index: u.started, started: time.Now()}
		if u.isTerminal {
			fb.bar = u.newFileBar(fileName, fb.index)
		}
		u.bars[fileName] = fb
	}
	if fb.bar != nil {
		fb.bar.SetCurrent(int64(percent))
	}
}

func (u *UploadUI) newFileBar(fileName string, index int) *mpb.Bar {
	label := fmt.Sprintf("[%d/%d] %s", index, u.total, truncatePath(fileName, 2))
	return u.progress.New(100,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(decor.Name(label, decor.WCSyncSpaceR)),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
		mpb.BarRemoveOnComplete(),
	)
}

func (u *UploadUI) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {
	u.mu.Lock()
	fb := u.bars[fileName]
	total := u.total
	delete(u.bars, fileName)
	if u.batchBar != nil {
		u.batchBar.SetCurrent(int64(completed))
	}
	u.mu.Unlock()

	var elapsed time.Duration
	if fb != nil {
		elapsed = time.Since(fb.started).Round(time.Millisecond)
		if fb.bar != nil {
			if ok {
				fb.bar.SetCurrent(100) // Completes the bar and triggers BarRemoveOnComplete
			} else {
				fb.bar.Abort(true)
			}
		}
	}

	var msg string
	if ok {
		msg = fmt.Sprintf("✓ %s (%s) [%d/%d]\n", truncatePath(fileName, 3), elapsed, completed, total)
	} else {
		msg = fmt.Sprintf("✗ %s [%d/%d]\n", truncatePath(fileName, 3), completed, total)
	}
	// Write through mpb's writer so the bars are not torn
	_, _ = io.WriteString(u.Writer(), msg)
}

func (u *UploadUI) FinishBatch(batchID string, succeeded, total int) {
	u.mu.Lock()
	for name, fb := range u.bars {
		if fb.bar != nil {
			fb.bar.Abort(true)
		}
		delete(u.bars, name)
	}
	if u.batchBar != nil && !u.batchBar.Completed() {
		// Abandoned files never complete; keep the bar visible at its count.
		u.batchBar.Abort(false)
	}
	u.mu.Unlock()

	if u.progress != nil {
		u.progress.Wait()
	}
	fmt.Fprintf(u.out, "%d/%d file(s) uploaded\n", succeeded, total)
}

func (u *UploadUI) AddNotification(n models.Notification) {
	prefix := "ℹ"
	switch n.Icon {
	case models.IconWarning:
		prefix = "⚠"
	case models.IconError:
		prefix = "✗"
	case models.IconSuccess:
		prefix = "✓"
	}
	fmt.Fprintf(u.Writer(), "%s %s: %s\n", prefix, n.Title, n.Text)
}

// truncatePath keeps the last maxComponents segments of a slash path.
// Example: truncatePath("a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(p string, maxComponents int) string {
	parts := strings.Split(p, "/")
	if len(parts) <= maxComponents {
		return p
	}
	return "…/" + path.Join(parts[len(parts)-maxComponents:]...)
}

// truncate shortens a label to maxLen runes, adding "…" if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows. The
// unix build is a no-op.
func enableANSIOnWindows(f *os.File) {
	enableWindowsANSI(f)
}
