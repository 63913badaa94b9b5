// Package cloud defines the storage backend contract used by the upload
// engine and the error vocabulary backends report through it.
//
// A backend exposes two remote calls: create a directory under a parent id,
// and transfer one file into a directory id. Object stores model a directory
// id as a key prefix; the drive API uses real folder ids.
package cloud

import (
	"context"
	"io"

	"github.com/rescale/rescale-upload/internal/models"
)

// ProgressFunc receives the cumulative number of bytes sent for one file.
type ProgressFunc func(bytesSent int64)

// TransferRequest describes one file transfer.
type TransferRequest struct {
	DirectoryID string
	FileName    string
	Size        int64
	Content     io.Reader

	// OnProgress may be nil.
	OnProgress ProgressFunc
}

// Backend is a storage target for the upload engine.
//
// Transfer must return promptly once ctx is cancelled; the watchdog relies
// on that to abort stalled transfers.
type Backend interface {
	// CreateDirectory creates name under parentID and returns the new id.
	CreateDirectory(ctx context.Context, name, parentID string) (string, error)

	// Transfer streams req.Content into req.DirectoryID.
	Transfer(ctx context.Context, req TransferRequest) (*models.RemoteFile, error)

	// HomeFolderID returns the id used when no target folder is given.
	HomeFolderID(ctx context.Context) (string, error)

	// Name identifies the backend in logs.
	Name() string

	Close() error
}
