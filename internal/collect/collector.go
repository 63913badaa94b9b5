package collect

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// Notifier receives the aggregate skipped-entries warning.
type Notifier interface {
	AddNotification(n models.Notification)
}

// Skipped is an input dropped during collection.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of Collect. Entries keep input order.
type Result struct {
	Entries []Entry
	Skipped []Skipped
}

// SkippedNames returns the paths of the skipped inputs.
func (r *Result) SkippedNames() []string {
	names := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		names[i] = s.Path
	}
	return names
}

// Options configures a Collector.
type Options struct {
	// ProbeTimeout bounds the first-byte read of each entry.
	ProbeTimeout time.Duration
	// Concurrency is the number of probes run at once.
	Concurrency int
	Logger      *logging.Logger
	Notifier    Notifier
}

// Collector turns raw inputs into probed entries.
type Collector struct {
	probeTimeout time.Duration
	concurrency  int
	logger       *logging.Logger
	notifier     Notifier
}

// NewCollector creates a Collector, filling zero options with defaults.
func NewCollector(opts Options) *Collector {
	c := &Collector{
		probeTimeout: opts.ProbeTimeout,
		concurrency:  opts.Concurrency,
		logger:       opts.Logger,
		notifier:     opts.Notifier,
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = constants.ProbeTimeout
	}
	if c.concurrency <= 0 {
		c.concurrency = constants.ProbeConcurrency
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	return c
}

// candidate is an entry awaiting its probe.
type candidate struct {
	entry Entry
	err   error
}

// Collect flattens inputs, probes every candidate and drops the unreadable
// ones. The only error returned is ctx cancellation; per-entry problems end
// up in Result.Skipped. Zero-byte entries pass the probe.
func (c *Collector) Collect(ctx context.Context, inputs []Input) (*Result, error) {
	var candidates []candidate
	for _, in := range inputs {
		switch {
		case in.Tree != nil:
			walked, err := c.walk(ctx, in.Tree, "")
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, walked...)
		case in.Handle != nil:
			rel := in.RelativePath
			if rel == "" {
				rel = in.Handle.Name()
			}
			clean, err := CleanRelativePath(rel)
			if err != nil {
				candidates = append(candidates, candidate{entry: Entry{RelativePath: rel}, err: fmt.Errorf("%w: %q", err, rel)})
				continue
			}
			candidates = append(candidates, candidate{entry: Entry{Handle: in.Handle, RelativePath: clean, Size: in.Handle.Size()}})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range candidates {
		if candidates[i].err != nil {
			continue
		}
		g.Go(func() error {
			if err := probe(gctx, candidates[i].entry.Handle, c.probeTimeout); err != nil {
				candidates[i].err = fmt.Errorf("%w: %w", ErrUnreadableEntry, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, cand := range candidates {
		if cand.err != nil {
			c.logger.Debug().Err(cand.err).Str("path", cand.entry.RelativePath).Msg("Skipping entry")
			result.Skipped = append(result.Skipped, Skipped{Path: cand.entry.RelativePath, Err: cand.err})
			continue
		}
		result.Entries = append(result.Entries, cand.entry)
	}

	if n := len(result.Skipped); n > 0 {
		c.logger.Warn().Int("skipped", n).Int("kept", len(result.Entries)).Msg("Some entries could not be read and were skipped")
		if c.notifier != nil {
			c.notifier.AddNotification(models.Notification{
				Icon:  models.IconWarning,
				Title: "Some items were skipped",
				Text:  fmt.Sprintf("%d item(s) could not be read and will not be uploaded.", n),
			})
		}
	}
	return result, nil
}

// walk enumerates every leaf under node. A directory that cannot be listed is
// recorded as one skipped candidate.
func (c *Collector) walk(ctx context.Context, node TreeNode, prefix string) ([]candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := node.Name()
	if prefix != "" {
		rel = path.Join(prefix, node.Name())
	}

	if h := node.File(); h != nil {
		clean, err := CleanRelativePath(rel)
		if err != nil {
			return []candidate{{entry: Entry{RelativePath: rel}, err: fmt.Errorf("%w: %q", err, rel)}}, nil
		}
		return []candidate{{entry: Entry{Handle: h, RelativePath: clean, Size: h.Size()}}}, nil
	}

	children, err := node.Children(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []candidate{{entry: Entry{RelativePath: rel}, err: fmt.Errorf("%w: %w", ErrUnreadableEntry, err)}}, nil
	}

	var out []candidate
	for _, child := range children {
		sub, err := c.walk(ctx, child, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// probe reads at most one byte. Open and Read run in a goroutine so a handle
// that blocks (a pipe with no writer) is abandoned when the timeout fires.
func probe(ctx context.Context, h ContentHandle, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		rc, err := h.Open(ctx)
		if err != nil {
			done <- err
			return
		}
		defer rc.Close()
		var b [1]byte
		_, err = io.ReadFull(rc, b[:])
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("probe timed out after %s: %w", timeout, ctx.Err())
	}
}
