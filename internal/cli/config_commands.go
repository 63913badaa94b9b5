package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/pathutil"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rescale-upload configuration",
		Long: `Configuration management commands for rescale-upload.

Commands:
  init  - Interactive configuration setup
  show  - Display the effective configuration
  test  - Open the backend and resolve the home folder
  path  - Show configuration file paths`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPaths returns the config and credentials paths, honoring the
// --config and --credentials flags.
func configPaths() (string, string, error) {
	cfgPath, err := pathutil.ExpandHome(cfgFile)
	if err != nil {
		return "", "", err
	}
	credPath, err := pathutil.ExpandHome(credFile)
	if err != nil {
		return "", "", err
	}
	if cfgPath == "" {
		if cfgPath, err = config.DefaultConfigPath(); err != nil {
			return "", "", err
		}
	}
	if credPath == "" {
		if credPath, err = config.DefaultCredentialsPath(); err != nil {
			return "", "", err
		}
	}
	return cfgPath, credPath, nil
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for rescale-upload.

Engine settings are saved to ~/.config/rescale-upload/config.toml and
secrets to ~/.config/rescale-upload/credentials (mode 0600) under the
selected --profile.

Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, credPath, err := configPaths()
			if err != nil {
				return err
			}
			return runConfigInit(cmd.InOrStdin(), cmd.OutOrStdout(), cfgPath, credPath, profile, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit asks for the backend and its settings, then writes the
// config and credentials files.
func runConfigInit(in io.Reader, out io.Writer, cfgPath, credPath, profileName string, force bool) error {
	logger := GetLogger()

	if !force {
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintf(out, "Configuration already exists at: %s\n", cfgPath)
			fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
			return nil
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil && !force {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	creds, err := config.LoadCredentials(credPath, profileName)
	if err != nil {
		return err
	}

	p := newPrompter(in, out)

	fmt.Fprintln(out, "rescale-upload Configuration Setup")
	fmt.Fprintln(out, "==================================")
	fmt.Fprintln(out)

	cfg.Backend.Type, err = p.choose("Backend", cfg.Backend.Type,
		[]string{config.BackendREST, config.BackendS3, config.BackendAzure, config.BackendBlob})
	if err != nil {
		return err
	}

	switch cfg.Backend.Type {
	case config.BackendREST:
		if creds.PlatformURL, err = p.ask("Platform URL", creds.PlatformURL); err != nil {
			return err
		}
		for creds.APIKey == "" {
			if creds.APIKey, err = p.secret("API Key (required)"); err != nil {
				return err
			}
			if creds.APIKey == "" {
				fmt.Fprintln(out, "  Error: API key is required")
			}
		}
	case config.BackendS3:
		if cfg.Backend.S3.Bucket, err = p.ask("Bucket", cfg.Backend.S3.Bucket); err != nil {
			return err
		}
		if cfg.Backend.S3.Region, err = p.ask("Region", cfg.Backend.S3.Region); err != nil {
			return err
		}
		if cfg.Backend.S3.Prefix, err = p.ask("Key prefix", cfg.Backend.S3.Prefix); err != nil {
			return err
		}
		if creds.AWSAccessKeyID, err = p.ask("AWS access key ID (empty: default credential chain)", creds.AWSAccessKeyID); err != nil {
			return err
		}
		if creds.AWSAccessKeyID != "" {
			if creds.AWSSecretAccessKey, err = p.secret("AWS secret access key"); err != nil {
				return err
			}
		}
	case config.BackendAzure:
		if cfg.Backend.Azure.ContainerURL, err = p.ask("Container URL", cfg.Backend.Azure.ContainerURL); err != nil {
			return err
		}
		if cfg.Backend.Azure.Prefix, err = p.ask("Blob prefix", cfg.Backend.Azure.Prefix); err != nil {
			return err
		}
		if creds.AzureSASToken, err = p.secret("SAS token (empty: anonymous)"); err != nil {
			return err
		}
	case config.BackendBlob:
		if cfg.Backend.Blob.URL, err = p.ask("Bucket URL (mem://, file:///path, s3://bucket)", cfg.Backend.Blob.URL); err != nil {
			return err
		}
		if cfg.Backend.Blob.Prefix, err = p.ask("Key prefix", cfg.Backend.Blob.Prefix); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Upload Settings (press Enter for defaults)")
	fmt.Fprintln(out, "------------------------------------------")
	if cfg.Upload.Concurrency, err = p.askInt("Concurrent uploads", cfg.Upload.Concurrency, 1, constants.MaxConcurrency); err != nil {
		return err
	}
	for {
		answer, err := p.ask("Stall timeout", cfg.Upload.StallTimeout.String())
		if err != nil {
			return err
		}
		d, perr := time.ParseDuration(answer)
		if perr == nil && d > 0 {
			cfg.Upload.StallTimeout = config.Duration{Duration: d}
			break
		}
		fmt.Fprintln(out, "Please enter a positive duration such as 10s or 1m.")
	}

	fmt.Fprintln(out)
	proxyMode, err := p.choose("Proxy mode", cfg.Proxy.Mode, []string{"no-proxy", "system", "basic", "ntlm"})
	if err != nil {
		return err
	}
	cfg.Proxy.Mode = proxyMode
	if proxyMode == "basic" || proxyMode == "ntlm" {
		if cfg.Proxy.Host, err = p.ask("Proxy host", cfg.Proxy.Host); err != nil {
			return err
		}
		port := cfg.Proxy.Port
		if port == 0 {
			port = 8080
		}
		if cfg.Proxy.Port, err = p.askInt("Proxy port", port, 1, 65535); err != nil {
			return err
		}
		if cfg.Proxy.User, err = p.ask("Proxy user", cfg.Proxy.User); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	logger.Info().Str("path", cfgPath).Msg("Configuration saved")
	if err := config.SaveCredentials(creds, credPath); err != nil {
		return err
	}
	logger.Info().Str("path", credPath).Str("profile", creds.Profile).Msg("Credentials saved")

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to: %s\n", cfgPath)
	fmt.Fprintf(out, "✓ Credentials [%s] saved to: %s\n", creds.Profile, credPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The proxy password is never stored; you will be asked for it when needed.")
	fmt.Fprintln(out, "Test your configuration with: rescale-upload config test")
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration settings.

Priority: flags > environment (RESCALE_UPLOAD_*) > config file > defaults.
Secrets are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, creds, err := loadSettings(config.FlagOverrides{})
			if err != nil {
				return err
			}
			cfgPath, credPath, err := configPaths()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg, creds, cfgPath, credPath)
			return nil
		},
	}

	return cmd
}

func printConfig(out io.Writer, cfg *config.Config, creds *config.Credentials, cfgPath, credPath string) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Upload Settings:")
	fmt.Fprintf(out, "  Concurrency:        %d\n", cfg.Upload.Concurrency)
	fmt.Fprintf(out, "  Folder Concurrency: %d\n", cfg.Upload.FolderConcurrency)
	fmt.Fprintf(out, "  Stall Timeout:      %s\n", cfg.Upload.StallTimeout)
	fmt.Fprintf(out, "  Hard Timeout:       %s\n", cfg.HardTimeout())
	fmt.Fprintf(out, "  Include Hidden:     %t\n", cfg.Upload.IncludeHidden)
	fmt.Fprintf(out, "  Notifications:      %t\n", cfg.Upload.DesktopNotifications)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Backend Settings:")
	fmt.Fprintf(out, "  Type:      %s\n", cfg.Backend.Type)
	if cfg.Backend.FolderID != "" {
		fmt.Fprintf(out, "  Folder ID: %s\n", cfg.Backend.FolderID)
	}
	switch cfg.Backend.Type {
	case config.BackendREST:
		fmt.Fprintf(out, "  Platform URL: %s\n", creds.PlatformURL)
		fmt.Fprintf(out, "  API Key:      %s\n", secretStatus(creds.APIKey))
	case config.BackendS3:
		fmt.Fprintf(out, "  Bucket:   %s\n", cfg.Backend.S3.Bucket)
		fmt.Fprintf(out, "  Region:   %s\n", cfg.Backend.S3.Region)
		fmt.Fprintf(out, "  Prefix:   %s\n", cfg.Backend.S3.Prefix)
		if cfg.Backend.S3.Endpoint != "" {
			fmt.Fprintf(out, "  Endpoint: %s\n", cfg.Backend.S3.Endpoint)
		}
		if creds.HasStaticAWSKeys() {
			fmt.Fprintln(out, "  Keys:     static (credentials file)")
		} else {
			fmt.Fprintln(out, "  Keys:     default AWS credential chain")
		}
	case config.BackendAzure:
		fmt.Fprintf(out, "  Container: %s\n", cfg.Backend.Azure.ContainerURL)
		fmt.Fprintf(out, "  Prefix:    %s\n", cfg.Backend.Azure.Prefix)
		fmt.Fprintf(out, "  SAS Token: %s\n", secretStatus(creds.AzureSASToken))
	case config.BackendBlob:
		fmt.Fprintf(out, "  URL:    %s\n", cfg.Backend.Blob.URL)
		fmt.Fprintf(out, "  Prefix: %s\n", cfg.Backend.Blob.Prefix)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
	}
	if cfg.Proxy.User != "" {
		fmt.Fprintf(out, "  User: %s\n", cfg.Proxy.User)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Configuration file: %s\n", cfgPath)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "  (file does not exist - using defaults)")
	}
	fmt.Fprintf(out, "Credentials file:   %s [%s]\n", credPath, creds.Profile)
}

// secretStatus never reveals any portion of a secret.
func secretStatus(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(s))
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the backend connection",
		Long: `Open the configured backend and resolve the home folder.

This verifies credentials, proxy settings and network access without
uploading anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, creds, err := loadSettings(config.FlagOverrides{})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing %s backend...\n", cfg.Backend.Type)

			backend, err := openBackend(ctx, cfg, creds, logger)
			if err != nil {
				fmt.Fprintf(out, "✗ %v\n", err)
				return errIncomplete
			}
			defer backend.Close()

			home, err := backend.HomeFolderID(ctx)
			if err != nil {
				fmt.Fprintf(out, "✗ Failed to resolve home folder: %v\n", err)
				return errIncomplete
			}
			if home == "" {
				home = "(bucket root)"
			}
			fmt.Fprintf(out, "✓ Connected to %s\n", backend.Name())
			fmt.Fprintf(out, "  Home folder: %s\n", home)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, credPath, err := configPaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:      %s\n", cfgPath)
			fmt.Fprintf(out, "Credentials: %s\n", credPath)
			return nil
		},
	}
}
