// Package cli provides the command-line interface for rescale-upload.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/version"
)

var (
	// Global flags
	cfgFile   string
	credFile  string
	profile   string
	logFormat string
	verbose   bool
	debug     bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// errIncomplete is returned by commands that ran to the end but did not do
// everything they were asked to. The details have already been printed.
var errIncomplete = errors.New("finished with errors")

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rescale-upload",
		Short: "Concurrent hierarchical uploads to Rescale storage",
		Long: `rescale-upload ` + version.Version + ` - Built: ` + version.BuildTime + `
Uploads files and directory trees to Rescale cloud storage, S3, Azure Blob
Storage or any gocloud.dev bucket. Remote directories are created level by
level before files are sent by a bounded pool of workers.

Configuration is read from ~/.config/rescale-upload/config.toml, secrets
from ~/.config/rescale-upload/credentials. Environment variables prefixed
with RESCALE_UPLOAD_ override the file; flags override both.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch logFormat {
			case logging.FormatConsole, logging.FormatJSON:
			default:
				return fmt.Errorf("--log-format must be %q or %q, got %q", logging.FormatConsole, logging.FormatJSON, logFormat)
			}
			logger = logging.NewLogger(logFormat, os.Stderr)
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default: ~/.config/rescale-upload/config.toml)")
	rootCmd.PersistentFlags().StringVar(&credFile, "credentials", "", "Credentials file path (default: ~/.config/rescale-upload/credentials)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Credentials profile (default: \"default\")")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "Log format on stderr: console or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for rescale-upload.

QUICK TEST (current session only):
  bash:       source <(rescale-upload completion bash)
  zsh:        source <(rescale-upload completion zsh)
  fish:       rescale-upload completion fish | source
  powershell: rescale-upload completion powershell | Out-String | Invoke-Expression`,
	}
	completionCmd.AddCommand(
		&cobra.Command{
			Use:   "bash",
			Short: "Generate bash completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "zsh",
			Short: "Generate zsh completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "fish",
			Short: "Generate fish completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			},
		},
		&cobra.Command{
			Use:   "powershell",
			Short: "Generate PowerShell completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
			},
		},
	)
	rootCmd.AddCommand(completionCmd)

	// Disable default completion command (we're adding our own above)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so repeated Ctrl+C does not block the sender.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling uploads...\n", sig)
				fmt.Fprintf(os.Stderr, "   In-flight transfers are being aborted.\n\n")
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
