// Package upload wires collection, directory materialization and scheduling
// into one batch run.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/collect"
	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/events"
	"github.com/rescale/rescale-upload/internal/folders"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/progress"
	"github.com/rescale/rescale-upload/internal/transfer"
)

// ErrNoRootFolder is returned when neither a target folder nor a home folder
// is available.
var ErrNoRootFolder = errors.New("no target folder")

// Options configures an Engine. Zero durations and counts use the package
// defaults of collect, folders and transfer.
type Options struct {
	Concurrency       int
	FolderConcurrency int
	StallTimeout      time.Duration
	HardTimeout       time.Duration
	ProbeTimeout      time.Duration
	ZeroByteTimeout   time.Duration

	// FolderID is the open folder to upload into. Empty means the backend's
	// home folder.
	FolderID string
	// Label names the batch for observers. Defaults to the root folder id.
	Label string
	// DryRun collects and plans without creating or sending anything.
	DryRun bool

	Logger   *logging.Logger
	Observer progress.Observer
	// Bus, if set, receives directory-created events and the reload signal.
	Bus *events.EventBus
}

// OptionsFromConfig maps engine settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Concurrency:       cfg.Upload.Concurrency,
		FolderConcurrency: cfg.Upload.FolderConcurrency,
		StallTimeout:      cfg.Upload.StallTimeout.Duration,
		HardTimeout:       cfg.HardTimeout(),
		ProbeTimeout:      cfg.Upload.ProbeTimeout.Duration,
		ZeroByteTimeout:   cfg.Upload.ZeroByteTimeout.Duration,
		FolderID:          cfg.Backend.FolderID,
	}
}

// Engine runs upload batches against one backend.
type Engine struct {
	backend cloud.Backend
	opts    Options
	logger  *logging.Logger
}

// NewEngine creates an engine. The caller keeps ownership of backend.
func NewEngine(backend cloud.Backend, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Observer == nil {
		opts.Observer = progress.NopObserver{}
	}
	return &Engine{backend: backend, opts: opts, logger: opts.Logger}
}

// Run uploads inputs as one batch:
//
//  1. Collect and probe entries
//  2. Plan the implied directories
//  3. Create them, depth by depth
//  4. Transfer files on the worker pool
//  5. Finish the batch and send one reload signal
//
// Per-file failures are reported in the Summary, not as an error. When ctx
// is cancelled mid-batch Run still finishes the batch and returns the
// partial Summary together with ctx's error.
func (e *Engine) Run(ctx context.Context, inputs []collect.Input) (*Summary, error) {
	start := time.Now()
	agg := progress.NewAggregator(e.opts.Observer)

	collector := collect.NewCollector(collect.Options{
		ProbeTimeout: e.opts.ProbeTimeout,
		Logger:       e.logger,
		Notifier:     agg,
	})
	collected, err := collector.Collect(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect entries: %w", err)
	}

	summary := &Summary{
		Skipped: collected.Skipped,
		Entries: collected.Entries,
		DryRun:  e.opts.DryRun,
	}
	if len(collected.Entries) == 0 {
		e.logger.Info().Strs("skipped", collected.SkippedNames()).Msg("Nothing to upload")
		return summary, nil
	}

	filePaths := make([]string, len(collected.Entries))
	for i, entry := range collected.Entries {
		filePaths[i] = entry.RelativePath
	}
	summary.Directories = folders.Plan(filePaths)
	summary.TotalFiles = len(collected.Entries)

	if e.opts.DryRun {
		e.logger.Info().
			Int("files", summary.TotalFiles).
			Int("folders", len(summary.Directories)).
			Msg("Dry run, nothing uploaded")
		return summary, nil
	}

	rootID, err := e.rootFolder(ctx)
	if err != nil {
		return nil, err
	}
	label := e.opts.Label
	if label == "" {
		label = rootID
	}

	summary.BatchID = agg.Start(summary.TotalFiles, label)
	e.logger.Info().
		Str("batch", summary.BatchID).
		Str("backend", e.backend.Name()).
		Int("files", summary.TotalFiles).
		Int("folders", len(summary.Directories)).
		Msg("Starting upload")

	pathMap, report := folders.Materialize(ctx, e.backend, summary.Directories, rootID, folders.Options{
		Concurrency: e.opts.FolderConcurrency,
		Logger:      e.logger,
		OnCreated:   e.publishDirectory,
	})
	summary.DirectoryFailures = report.Failures
	if len(report.Failures) > 0 {
		e.logger.Warn().
			Int("failed", len(report.Failures)).
			Int("created", report.Created).
			Int("resolvable", pathMap.Len()).
			Msg("Some folders could not be created")
	}

	scheduler := transfer.NewScheduler(e.backend, pathMap, transfer.Options{
		Concurrency:     e.opts.Concurrency,
		StallTimeout:    e.opts.StallTimeout,
		HardTimeout:     e.opts.HardTimeout,
		ZeroByteTimeout: e.opts.ZeroByteTimeout,
		Logger:          e.logger,
		Reporter:        agg,
		Notifier:        agg,
	})
	summary.Results = scheduler.Run(ctx, transfer.NewTasks(collected.Entries))

	agg.Finish()
	if e.opts.Bus != nil {
		e.opts.Bus.PublishReload(summary.BatchID)
	}

	snap := agg.Snapshot()
	summary.SucceededCount = snap.Succeeded
	summary.QuotaStopped = scheduler.Guard().Tripped()
	summary.QuotaFile = scheduler.Guard().FirstFile()
	summary.MaxInFlight = scheduler.MaxInFlight()
	summary.Duration = time.Since(start)

	e.logger.Info().
		Str("batch", summary.BatchID).
		Int("succeeded", summary.SucceededCount).
		Int("total", summary.TotalFiles).
		Bool("quota_stopped", summary.QuotaStopped).
		Dur("elapsed", summary.Duration).
		Msg("Upload finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// Mkdir creates each directory path and its missing ancestors under the
// target folder. Existing directories are not detected; the backend decides
// whether a repeated create is an error.
func (e *Engine) Mkdir(ctx context.Context, dirPaths []string) (*folders.PathMap, *folders.Report, error) {
	planned := folders.PlanDirectories(dirPaths)
	rootID, err := e.rootFolder(ctx)
	if err != nil {
		return nil, nil, err
	}
	pathMap, report := folders.Materialize(ctx, e.backend, planned, rootID, folders.Options{
		Concurrency: e.opts.FolderConcurrency,
		Logger:      e.logger,
		OnCreated:   e.publishDirectory,
	})
	if len(report.Failures) > 0 {
		return pathMap, report, fmt.Errorf("%d of %d folder(s) failed: %w", len(report.Failures), len(planned), report.Failures[0].Err)
	}
	return pathMap, report, nil
}

// rootFolder resolves the PathMap root: the open folder if one is set,
// otherwise the backend's home folder.
func (e *Engine) rootFolder(ctx context.Context) (string, error) {
	if e.opts.FolderID != "" {
		return e.opts.FolderID, nil
	}
	id, err := e.backend.HomeFolderID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve home folder: %w", err)
	}
	if id == "" && e.backend.Name() == config.BackendREST {
		return "", ErrNoRootFolder
	}
	return id, nil
}

func (e *Engine) publishDirectory(dir folders.PlannedDirectory) {
	if e.opts.Bus == nil {
		return
	}
	e.opts.Bus.Publish(&events.DirectoryEvent{
		BaseEvent: events.NewBase(events.EventDirectoryCreated),
		Path:      dir.RelativePath,
		RemoteID:  dir.RemoteID,
	})
}
