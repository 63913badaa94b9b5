// Package rest implements the cloud.Backend contract on top of the drive API:
// directories are real folders with server-assigned ids.
package rest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rescale/rescale-upload/internal/api"
	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/models"
)

// Provider uploads into drive API folders.
type Provider struct {
	client *api.Client
}

// NewProvider wraps an API client.
func NewProvider(client *api.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("api client is required")
	}
	return &Provider{client: client}, nil
}

// Name identifies the backend in logs.
func (p *Provider) Name() string { return "rest" }

// CreateDirectory creates a folder and returns its id.
func (p *Provider) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	if err := cloud.ValidateName(name); err != nil {
		return "", err
	}
	id, err := p.client.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", mapError(err)
	}
	return id, nil
}

// Transfer uploads one file into a folder.
func (p *Provider) Transfer(ctx context.Context, req cloud.TransferRequest) (*models.RemoteFile, error) {
	if err := cloud.ValidateName(req.FileName); err != nil {
		return nil, err
	}
	body := cloud.NewProgressReader(req.Content, req.Size, req.OnProgress)
	file, err := p.client.UploadFile(ctx, req.DirectoryID, req.FileName, body)
	if err != nil {
		return nil, mapError(err)
	}
	if file.Name == "" {
		file.Name = req.FileName
	}
	return file, nil
}

// HomeFolderID returns the user's library folder.
func (p *Provider) HomeFolderID(ctx context.Context) (string, error) {
	folders, err := p.client.GetRootFolders(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve home folder: %w", err)
	}
	if folders.MyLibrary == "" {
		return "", errors.New("account has no library folder")
	}
	return folders.MyLibrary, nil
}

// Close is a no-op; the HTTP client is shared.
func (p *Provider) Close() error { return nil }

func mapError(err error) error {
	if api.IsQuotaError(err) {
		return cloud.QuotaError(err)
	}
	return err
}

var _ cloud.Backend = (*Provider)(nil)
