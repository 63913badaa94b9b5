package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/models"
)

// Error codes S3 and S3-compatible stores use for a full bucket or account.
var quotaCodes = map[string]bool{
	"QuotaExceeded":        true,
	"ServiceQuotaExceeded": true,
	"InsufficientStorage":  true,
	"XMinioStorageFull":    true,
}

// Provider stores files as objects under a key prefix. A directory id is the
// key prefix of that directory, always ending in "/" unless it is the root.
type Provider struct {
	client   manager.UploadAPIClient
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewProvider creates an S3 provider around an upload-capable client.
func NewProvider(client manager.UploadAPIClient, bucket, prefix string) (*Provider, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   normalizePrefix(prefix),
	}, nil
}

// Name identifies the backend in logs.
func (p *Provider) Name() string { return "s3" }

// HomeFolderID returns the configured key prefix.
func (p *Provider) HomeFolderID(ctx context.Context) (string, error) {
	return p.prefix, nil
}

// CreateDirectory writes a zero-byte "dir/" marker so empty directories are
// visible to S3 browsers.
func (p *Provider) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	if err := cloud.ValidateName(name); err != nil {
		return "", err
	}
	key := parentID + name + "/"
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", key, mapError(err))
	}
	return key, nil
}

// Transfer uploads one object via the multipart-aware upload manager.
func (p *Provider) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	if err := cloud.ValidateName(req.FileName); err != nil {
		return nil, err
	}
	key := req.DirectoryID + req.FileName
	body := cloud.NewProgressReader(req.Content, req.Size, req.OnProgress)

	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &models.RemoteFile{
		ID:       key,
		Name:     req.FileName,
		FolderID: req.DirectoryID,
		Size:     req.Size,
		Path:     key,
	}, nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (p *Provider) Close() error { return nil }

func mapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && quotaCodes[apiErr.ErrorCode()] {
		return cloud.QuotaError(err)
	}
	if cloud.IsQuotaError(err) {
		return cloud.QuotaError(err)
	}
	return err
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

var _ cloud.Backend = (*Provider)(nil)
