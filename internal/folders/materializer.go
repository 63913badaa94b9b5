package folders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/rescale-upload/internal/logging"
)

var (
	// ErrDirectoryCreateFailed marks a planned directory whose create call failed
	// or whose parent was never created.
	ErrDirectoryCreateFailed = errors.New("directory create failed")
	// ErrDirectoryUnresolved marks a file whose parent directory has no remote id.
	ErrDirectoryUnresolved = errors.New("directory unresolved")
)

// Creator issues the remote create-directory call.
type Creator interface {
	CreateDirectory(ctx context.Context, name, parentID string) (string, error)
}

// Failure is a directory that could not be materialized.
type Failure struct {
	RelativePath string
	Err          error
}

// Report summarises a materialization run.
type Report struct {
	Created  int
	Failures []Failure
}

// Options configures Materialize.
type Options struct {
	// Concurrency bounds same-depth create calls. Depth levels are always
	// processed one after another.
	Concurrency int
	Logger      *logging.Logger
	// OnCreated is called for each created directory, in plan order, once
	// its depth level has finished.
	OnCreated func(dir PlannedDirectory)
}

// Materialize creates the planned directories under rootID and returns the
// resulting PathMap.
//
// planned must be sorted by depth (as returned by Plan). Every directory at
// depth d is resolved before any directory at depth d+1 is attempted. A failed
// create is logged and recorded; its descendants are not attempted and stay
// out of the map. RemoteID is filled in on planned for each created directory.
func Materialize(ctx context.Context, creator Creator, planned []PlannedDirectory, rootID string, opts Options) (*PathMap, *Report) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	ids := map[string]string{"": rootID}
	var mu sync.Mutex
	report := &Report{}
	created := make([]bool, len(planned))

	for _, group := range groupByDepth(planned) {
		g := new(errgroup.Group)
		g.SetLimit(limit)

		for _, idx := range group {
			dir := &planned[idx]

			mu.Lock()
			parentID, ok := ids[dir.ParentPath]
			mu.Unlock()
			if !ok {
				err := fmt.Errorf("%w: %s: parent %q unresolved", ErrDirectoryCreateFailed, dir.RelativePath, dir.ParentPath)
				logger.Warn().Str("path", dir.RelativePath).Msg("Skipping folder, parent was not created")
				mu.Lock()
				report.Failures = append(report.Failures, Failure{RelativePath: dir.RelativePath, Err: err})
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				id, err := creator.CreateDirectory(ctx, dir.Name, parentID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logger.Error().Err(err).Str("path", dir.RelativePath).Msg("Failed to create folder")
					report.Failures = append(report.Failures, Failure{
						RelativePath: dir.RelativePath,
						Err:          fmt.Errorf("%w: %s: %w", ErrDirectoryCreateFailed, dir.RelativePath, err),
					})
					return nil
				}
				dir.RemoteID = id
				created[idx] = true
				ids[dir.RelativePath] = id
				report.Created++
				logger.Debug().Str("path", dir.RelativePath).Str("id", id).Msg("Created folder")
				return nil
			})
		}

		// Phase barrier: children need every parent id at this depth.
		_ = g.Wait()

		if opts.OnCreated != nil {
			for _, idx := range group {
				if created[idx] {
					opts.OnCreated(planned[idx])
				}
			}
		}
	}

	return &PathMap{ids: ids}, report
}
