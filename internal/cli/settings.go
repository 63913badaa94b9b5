package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rescale/rescale-upload/internal/cloud"
	"github.com/rescale/rescale-upload/internal/cloud/providers"
	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/http"
	"github.com/rescale/rescale-upload/internal/logging"
)

// loadSettings reads the config file and credentials profile, then layers
// the environment and flag overrides on top and validates the result.
func loadSettings(overrides config.FlagOverrides) (*config.Config, *config.Credentials, error) {
	cfgPath, credPath, err := configPaths()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	GetLogger().Debugf("Using config %s, credentials %s [%s]", cfgPath, credPath, profile)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}
	cfg.MergeWithFlags(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	creds, err := config.LoadCredentials(credPath, profile)
	if err != nil {
		return nil, nil, err
	}
	creds.ApplyEnv(os.LookupEnv)

	return cfg, creds, nil
}

// openBackend builds the proxy-aware HTTP client and the configured backend.
// The proxy password is prompted for when the proxy needs one.
func openBackend(ctx context.Context, cfg *config.Config, creds *config.Credentials, logger *logging.Logger) (cloud.Backend, error) {
	if http.NeedsProxyPassword(cfg.Proxy) {
		password, err := newPrompter(os.Stdin, os.Stderr).secret(fmt.Sprintf("Proxy password for %s", cfg.Proxy.User))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Proxy.Password = password
	}

	httpClient, err := http.CreateOptimizedClient(cfg.Proxy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	backend, err := providers.NewBackend(ctx, cfg, creds, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Type, err)
	}
	logger.Debug().Str("backend", backend.Name()).Msg("Backend ready")
	return backend, nil
}
