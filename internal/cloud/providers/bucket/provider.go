// Package bucket implements cloud.Backend over any Go CDK bucket URL
// (mem://, file:///path, s3://bucket?region=...).
package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/models"
)

// Provider writes files as bucket objects. Buckets have no real directories,
// so a directory id is just the key prefix ending in "/".
type Provider struct {
	bucket *blob.Bucket
	prefix string
	owned  bool
}

// Open opens the bucket at url.
func Open(ctx context.Context, url, prefix string) (*Provider, error) {
	if url == "" {
		return nil, errors.New("bucket URL is required")
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", url, err)
	}
	p := NewProvider(bucket, prefix)
	p.owned = true
	return p, nil
}

// NewProvider wraps an already opened bucket. The caller keeps ownership.
func NewProvider(bucket *blob.Bucket, prefix string) *Provider {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Provider{bucket: bucket, prefix: prefix}
}

// Name identifies the backend in logs.
func (p *Provider) Name() string { return "blob" }

// HomeFolderID returns the configured key prefix.
func (p *Provider) HomeFolderID(ctx context.Context) (string, error) {
	return p.prefix, nil
}

// CreateDirectory only derives the child prefix; nothing is written.
func (p *Provider) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	if err := cloud.ValidateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return parentID + name + "/", nil
}

// Transfer copies the content into a new object. A failed copy deletes the
// partial object.
func (p *Provider) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	if err := cloud.ValidateName(req.FileName); err != nil {
		return nil, err
	}
	key := req.DirectoryID + req.FileName
	body := cloud.NewProgressReader(req.Content, req.Size, req.OnProgress)

	w, err := p.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, blobErr(err, key)
	}
	n, err := io.Copy(w, body)
	if err != nil {
		err = errors.Join(err, w.Close())
		_ = p.bucket.Delete(context.WithoutCancel(ctx), key)
		return nil, blobErr(err, key)
	}
	if err := w.Close(); err != nil {
		_ = p.bucket.Delete(context.WithoutCancel(ctx), key)
		return nil, blobErr(err, key)
	}

	return &models.RemoteFile{
		ID:       key,
		Name:     req.FileName,
		FolderID: req.DirectoryID,
		Size:     n,
		Path:     key,
	}, nil
}

// Close releases the bucket if this provider opened it.
func (p *Provider) Close() error {
	if p.owned {
		return p.bucket.Close()
	}
	return nil
}

// blobErr maps Go CDK error codes onto the backend taxonomy.
func blobErr(err error, key string) error {
	if errors.Is(err, syscall.ENOSPC) {
		return cloud.QuotaError(fmt.Errorf("%s: %w", key, err))
	}
	switch gcerrors.Code(err) {
	case gcerrors.ResourceExhausted:
		return cloud.QuotaError(fmt.Errorf("%s: %w", key, err))
	case gcerrors.Canceled:
		return fmt.Errorf("%s: %w", key, context.Canceled)
	}
	return fmt.Errorf("%s: %w", key, err)
}

var _ cloud.Backend = (*Provider)(nil)
