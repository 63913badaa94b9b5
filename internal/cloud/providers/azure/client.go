// Package azure provides an Azure Blob implementation of the cloud.Backend interface.
// This file contains the container client factory.
package azure

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// NewContainerClient creates a container client authorised by a SAS token.
//
// The shared HTTP client is used as the transport so the proxy settings and
// connection pool are the same as for every other request.
func NewContainerClient(containerURL, sasToken string, httpClient *nethttp.Client) (*container.Client, error) {
	sasURL, err := buildSASURL(containerURL, sasToken)
	if err != nil {
		return nil, err
	}

	opts := &container.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}

	client, err := container.NewClientWithNoCredential(sasURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, nil
}

// buildSASURL appends the SAS token to the container URL. A token already in
// the URL wins over the separate one.
func buildSASURL(containerURL, sasToken string) (string, error) {
	if containerURL == "" {
		return "", errors.New("container URL is required")
	}
	u, err := url.Parse(containerURL)
	if err != nil {
		return "", fmt.Errorf("invalid container URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid container URL: %q", containerURL)
	}

	sasToken = strings.TrimPrefix(sasToken, "?")
	if u.RawQuery != "" || sasToken == "" {
		return u.String(), nil
	}
	u.RawQuery = sasToken
	return u.String(), nil
}
