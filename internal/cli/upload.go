package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/events"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/notify"
	"github.com/rescale/rescale-upload/internal/pathutil"
	"github.com/rescale/rescale-upload/internal/progress"
	"github.com/rescale/rescale-upload/internal/transfer"
	"github.com/rescale/rescale-upload/internal/upload"
	"github.com/rescale/rescale-upload/internal/validation"
)

// Progress display styles
const (
	progressBars   = "bars"
	progressSimple = "simple"
	progressNone   = "none"
)

type uploadFlags struct {
	concurrency       int
	folderConcurrency int
	stallTimeout      time.Duration
	backend           string
	folderID          string
	label             string
	includeHidden     bool
	notify            bool
	dryRun            bool
	outputJSON        bool
	progressStyle     string
}

func (f *uploadFlags) overrides() config.FlagOverrides {
	return config.FlagOverrides{
		Concurrency:          f.concurrency,
		FolderConcurrency:    f.folderConcurrency,
		StallTimeout:         f.stallTimeout,
		Backend:              f.backend,
		FolderID:             f.folderID,
		IncludeHidden:        f.includeHidden,
		DesktopNotifications: f.notify,
	}
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload <path> [path...]",
		Short: "Upload files and directories",
		Long: `Upload files and directory trees as one batch.

Directories are uploaded with their own name as the top-level folder. Remote
folders are created level by level before any file is sent. A file argument
of the form dest=path is placed at the relative path dest.

A transfer that reports no progress for --stall-timeout is aborted. Every
transfer is also bounded by max(2 x stall timeout, 3m). When the backend
reports that storage is full, no new uploads are started.

Examples:
  # Upload two files to the home folder
  rescale-upload upload input1.dat mesh.geo

  # Upload a directory tree with 20 workers
  rescale-upload upload ./project --concurrency 20

  # Place a file under a new remote folder
  rescale-upload upload runs/2024/input.dat=./input.dat

  # Plan only: list what would be created and sent
  rescale-upload upload ./project --dry-run

  # Stream batch events as JSON lines
  rescale-upload upload ./project --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args, &flags)
		},
	}

	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0,
		fmt.Sprintf("Concurrent file uploads (1-%d, default %d)", constants.MaxConcurrency, constants.DefaultConcurrency))
	cmd.Flags().IntVar(&flags.folderConcurrency, "folder-concurrency", 0,
		fmt.Sprintf("Concurrent folder creations per depth level (1-%d, default %d)", constants.MaxFolderConcurrency, constants.DefaultFolderConcurrency))
	cmd.Flags().DurationVar(&flags.stallTimeout, "stall-timeout", 0,
		fmt.Sprintf("Abort a transfer with no progress for this long (default %s)", constants.DefaultStallTimeout))
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Storage backend: rest, s3, azure or blob (default from config)")
	cmd.Flags().StringVar(&flags.folderID, "folder-id", "", "Upload into this folder (default: home folder)")
	cmd.Flags().StringVar(&flags.label, "label", "", "Batch label shown in progress and notifications")
	cmd.Flags().BoolVar(&flags.includeHidden, "include-hidden", false, "Include dot-files when walking directories")
	cmd.Flags().BoolVar(&flags.notify, "notify", false, "Show a desktop notification when the batch finishes")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "Collect and plan without uploading")
	cmd.Flags().BoolVarP(&flags.outputJSON, "json", "J", false, "Stream events and the summary as JSON lines on stdout")
	cmd.Flags().StringVar(&flags.progressStyle, "progress", progressBars, "Progress display: bars, simple or none")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string, flags *uploadFlags) error {
	logger := GetLogger()
	ctx := GetContext()

	switch flags.progressStyle {
	case progressBars, progressSimple, progressNone:
	default:
		return fmt.Errorf("--progress must be bars, simple or none, got %q", flags.progressStyle)
	}

	cfg, creds, err := loadSettings(flags.overrides())
	if err != nil {
		return err
	}

	inputs, err := parseInputs(args, cfg.Upload.IncludeHidden)
	if err != nil {
		return err
	}

	// A dry run never touches the backend.
	var backend cloud.Backend
	if !flags.dryRun {
		backend, err = openBackend(ctx, cfg, creds, logger)
		if err != nil {
			return err
		}
		defer backend.Close()
	}

	out := cmd.OutOrStdout()
	opts := upload.OptionsFromConfig(cfg)
	opts.Label = flags.label
	opts.DryRun = flags.dryRun
	opts.Logger = logger.Component("upload")

	var streamDone <-chan struct{}
	var bus *events.EventBus
	if flags.outputJSON {
		bus = events.NewEventBus(constants.EventBusDefaultBuffer)
		streamDone = streamEvents(bus.SubscribeAll(), out)
		opts.Bus = bus
	}
	opts.Observer = buildObserver(flags, cfg, logger, bus, out)

	summary, runErr := upload.NewEngine(backend, opts).Run(ctx, inputs)

	if bus != nil {
		bus.Close()
		<-streamDone
		if dropped := bus.GetDroppedEventCount(); dropped > 0 {
			logger.Warnf("Event stream fell behind, %d event(s) dropped", dropped)
		}
	}
	if summary == nil {
		return runErr
	}

	if flags.outputJSON {
		if err := writeJSONSummary(out, summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}

	if runErr != nil {
		return runErr
	}
	if !summary.DryRun && !summary.OK() {
		return errIncomplete
	}
	return nil
}

// parseInputs turns command-line arguments into upload inputs. An argument
// that names an existing path is used as is; otherwise dest=path places the
// file at path under the relative path dest.
func parseInputs(args []string, includeHidden bool) ([]collect.Input, error) {
	inputs := make([]collect.Input, 0, len(args))
	for _, arg := range args {
		in, err := parseInput(arg, includeHidden)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func parseInput(arg string, includeHidden bool) (collect.Input, error) {
	localPath, dest := arg, ""
	if _, err := os.Lstat(arg); err != nil {
		if d, p, ok := strings.Cut(arg, "="); ok {
			dest, localPath = d, p
		}
	}

	localPath, err := pathutil.ResolveAbsolutePath(localPath)
	if err != nil {
		return collect.Input{}, err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return collect.Input{}, fmt.Errorf("cannot access %s: %w", localPath, err)
	}

	if info.IsDir() {
		if dest != "" {
			return collect.Input{}, fmt.Errorf("%s: dest=path is only supported for files", arg)
		}
		tree, err := collect.OSTree(localPath, includeHidden)
		if err != nil {
			return collect.Input{}, err
		}
		return collect.TreeInput(tree), nil
	}

	handle, err := collect.OSFile(localPath)
	if err != nil {
		return collect.Input{}, err
	}
	if dest == "" {
		return collect.FileInput(handle), nil
	}
	rel, err := collect.CleanRelativePath(dest)
	if err == nil {
		err = validation.ValidateRelativePath(rel)
	}
	if err != nil {
		return collect.Input{}, fmt.Errorf("invalid destination %q: %w", dest, err)
	}
	return collect.PickedInput(handle, rel), nil
}

// buildObserver fans batch events out to the display, the log, desktop
// notifications and the JSON event stream.
func buildObserver(flags *uploadFlags, cfg *config.Config, logger *logging.Logger, bus *events.EventBus, out io.Writer) progress.Observer {
	observers := progress.Multi{progress.NewLogObserver(logger.Component("batch"))}

	// stdout carries the JSON stream, so no display is drawn there.
	if !flags.outputJSON && !flags.dryRun {
		switch flags.progressStyle {
		case progressBars:
			observers = append(observers, progress.NewUploadUI(out))
		case progressSimple:
			observers = append(observers, progress.NewBatchBar(out))
		}
	}

	if cfg.Upload.DesktopNotifications {
		if n := notify.NewNotifier(notify.DefaultConfig(), logger); n.IsEnabled() {
			observers = append(observers, n)
		}
	}
	if bus != nil {
		observers = append(observers, progress.NewBusObserver(bus))
	}
	return observers
}

// streamEvents writes every event as one JSON line until ch is closed.
func streamEvents(ch <-chan events.Event, w io.Writer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for e := range ch {
			_ = enc.Encode(e)
		}
	}()
	return done
}

type jsonFailure struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type jsonSummary struct {
	Type              string        `json:"type"`
	BatchID           string        `json:"batch_id,omitempty"`
	TotalFiles        int           `json:"total_files"`
	SucceededCount    int           `json:"succeeded_count"`
	QuotaStopped      bool          `json:"quota_stopped"`
	QuotaFile         string        `json:"quota_file,omitempty"`
	Skipped           []string      `json:"skipped,omitempty"`
	Directories       int           `json:"directories"`
	DirectoryFailures []jsonFailure `json:"directory_failures,omitempty"`
	Failures          []jsonFailure `json:"failures,omitempty"`
	MaxInFlight       int           `json:"max_in_flight"`
	DurationMS        int64         `json:"duration_ms"`
	DryRun            bool          `json:"dry_run,omitempty"`
}

func writeJSONSummary(w io.Writer, s *upload.Summary) error {
	js := jsonSummary{
		Type:           "summary",
		BatchID:        s.BatchID,
		TotalFiles:     s.TotalFiles,
		SucceededCount: s.SucceededCount,
		QuotaStopped:   s.QuotaStopped,
		QuotaFile:      s.QuotaFile,
		Directories:    len(s.Directories),
		MaxInFlight:    s.MaxInFlight,
		DurationMS:     s.Duration.Milliseconds(),
		DryRun:         s.DryRun,
	}
	for _, sk := range s.Skipped {
		js.Skipped = append(js.Skipped, sk.Path)
	}
	for _, f := range s.DirectoryFailures {
		js.DirectoryFailures = append(js.DirectoryFailures, jsonFailure{Path: f.RelativePath, Status: "failed", Error: errString(f.Err)})
	}
	for _, r := range s.Failed() {
		js.Failures = append(js.Failures, jsonFailure{Path: r.Path, Status: string(r.Status), Error: errString(r.Err)})
	}
	return json.NewEncoder(w).Encode(js)
}

// printSummary renders the batch outcome and a table of failed files.
func printSummary(w io.Writer, s *upload.Summary) {
	if s.DryRun {
		fmt.Fprintf(w, "Dry run: %d file(s), %d folder(s) to create\n", s.TotalFiles, len(s.Directories))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, d := range s.Directories {
			fmt.Fprintf(tw, "  dir\t%s\t\n", d.RelativePath)
		}
		for _, e := range s.Entries {
			fmt.Fprintf(tw, "  file\t%s\t%d\n", e.RelativePath, e.Size)
		}
		tw.Flush()
		return
	}

	if s.TotalFiles == 0 {
		fmt.Fprintln(w, "Nothing to upload")
		return
	}

	fmt.Fprintf(w, "\n%d/%d file(s) uploaded in %s (peak %d in flight)\n",
		s.SucceededCount, s.TotalFiles, s.Duration.Round(time.Millisecond), s.MaxInFlight)
	if n := s.Count(transfer.StatusSkipped); n > 0 {
		fmt.Fprintf(w, "  %d empty placeholder(s) skipped\n", n)
	}
	if s.QuotaStopped {
		fmt.Fprintf(w, "  Storage quota exceeded while uploading %s; %d file(s) not started\n",
			s.QuotaFile, s.Count(transfer.StatusAbandoned))
	}

	failed := s.Failed()
	if len(failed) == 0 && len(s.DirectoryFailures) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PATH\tSTATUS\tERROR")
	for _, f := range s.DirectoryFailures {
		fmt.Fprintf(tw, "  %s/\t%s\t%s\n", f.RelativePath, "folder failed", errString(f.Err))
	}
	for _, r := range failed {
		status := string(r.Status)
		if r.IsTimeout() {
			status = "timeout"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Path, status, errString(r.Err))
	}
	tw.Flush()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	// errors.Join separates with newlines
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
