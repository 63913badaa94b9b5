// Package providers contains the storage backend implementations
// and a factory for creating them from configuration.
package providers

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/rescale/rescale-upload/internal/api"
	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/cloud/providers/azure"
	"github.com/rescale/rescale-upload/internal/cloud/providers/bucket"
	"github.com/rescale/rescale-upload/internal/cloud/providers/rest"
	"github.com/rescale/rescale-upload/internal/cloud/providers/s3"
	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/logging"
)

// NewBackend creates the backend selected by cfg.Backend.Type.
//
// httpClient is the proxy-aware client shared by every backend; creds may be
// nil for backends that authenticate through their own SDK chain.
func NewBackend(
	ctx context.Context,
	cfg *config.Config,
	creds *config.Credentials,
	httpClient *nethttp.Client,
	logger *logging.Logger,
) (cloud.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if creds == nil {
		creds = config.NewCredentials("")
	}

	switch cfg.Backend.Type {
	case config.BackendREST:
		if err := creds.ValidateForREST(); err != nil {
			return nil, err
		}
		client, err := api.NewClient(api.Options{
			BaseURL:    creds.PlatformURL,
			APIKey:     creds.APIKey,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return rest.NewProvider(client)

	case config.BackendS3:
		client, err := s3.NewS3Client(ctx, cfg.Backend.S3, creds, httpClient)
		if err != nil {
			return nil, err
		}
		return s3.NewProvider(client, cfg.Backend.S3.Bucket, cfg.Backend.S3.Prefix)

	case config.BackendAzure:
		client, err := azure.NewContainerClient(cfg.Backend.Azure.ContainerURL, creds.AzureSASToken, httpClient)
		if err != nil {
			return nil, err
		}
		return azure.NewProvider(client, cfg.Backend.Azure.Prefix)

	case config.BackendBlob:
		return bucket.Open(ctx, cfg.Backend.Blob.URL, cfg.Backend.Blob.Prefix)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend.Type)
	}
}
