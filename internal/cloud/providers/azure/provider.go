package azure

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/models"
)

const (
	// Block size for streamed uploads.
	blockSize = 4 * 1024 * 1024
	// Blocks in flight per file. Files already run in parallel, keep this low.
	blockConcurrency = 2
)

// Provider stores files as block blobs. A directory id is the blob name
// prefix of that directory ending in "/", or "" for the container root.
type Provider struct {
	client *container.Client
	prefix string
}

// NewProvider creates an Azure provider for one container.
func NewProvider(client *container.Client, prefix string) (*Provider, error) {
	if client == nil {
		return nil, errors.New("container client is required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Provider{client: client, prefix: prefix}, nil
}

// Name identifies the backend in logs.
func (p *Provider) Name() string { return "azure" }

// HomeFolderID returns the configured blob prefix.
func (p *Provider) HomeFolderID(ctx context.Context) (string, error) {
	return p.prefix, nil
}

// CreateDirectory writes an empty blob flagged as a folder. Hierarchical
// namespace accounts and Storage Explorer both honour hdi_isfolder.
func (p *Provider) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	if err := cloud.ValidateName(name); err != nil {
		return "", err
	}
	dirID := parentID + name + "/"
	blobClient := p.client.NewBlockBlobClient(strings.TrimSuffix(dirID, "/"))
	_, err := blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(nil)), &blockblob.UploadOptions{
		Metadata: map[string]*string{"hdi_isfolder": to.Ptr("true")},
	})
	if err != nil {
		return "", mapError(err)
	}
	return dirID, nil
}

// Transfer streams one file into a block blob.
func (p *Provider) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	if err := cloud.ValidateName(req.FileName); err != nil {
		return nil, err
	}
	name := req.DirectoryID + req.FileName
	body := cloud.NewProgressReader(req.Content, req.Size, req.OnProgress)

	blobClient := p.client.NewBlockBlobClient(name)
	_, err := blobClient.UploadStream(ctx, body, &blockblob.UploadStreamOptions{
		BlockSize:   blockSize,
		Concurrency: blockConcurrency,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &models.RemoteFile{
		ID:       name,
		Name:     req.FileName,
		FolderID: req.DirectoryID,
		Size:     req.Size,
		Path:     name,
	}, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

func mapError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == nethttp.StatusInsufficientStorage ||
			strings.Contains(respErr.ErrorCode, "Quota") ||
			strings.Contains(respErr.ErrorCode, "SizeLimit") {
			return cloud.QuotaError(err)
		}
	}
	return err
}

var _ cloud.Backend = (*Provider)(nil)
