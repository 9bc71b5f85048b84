// Package cli provides the command-line interface for evdash.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/logging"
	"github.com/voltline/evdash/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiKey     string
	apiBaseURL string
	logFile    string
	verbose    bool
	debug      bool

	// Global logger
	logger *logging.Logger

	// List events published by every controller the command creates
	eventBus *events.EventBus

	// Cancelled on SIGINT or SIGTERM
	rootContext context.Context
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evdash",
		Short: "evdash - EV charging dashboard lists in the terminal",
		Long: `evdash ` + version.Version + ` - Built: ` + version.BuildTime + `
Browse charging stations, wallets and transactions from the dashboard API.

Lists are loaded page by page as you scroll. Changing the search, a filter
or the sort order starts over from the first page; responses for an older
query are discarded.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			eventBus = events.NewEventBus(constants.EventBusDefaultBuffer)
			logger = logging.NewLogger("cli", eventBus)
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			if logFile != "" {
				if err := logger.EnableFile(logFile); err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
			if eventBus != nil {
				eventBus.Close()
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (overrides config and EVDASH_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	generators := map[string]func(io.Writer) error{
		"bash":       rootCmd.GenBashCompletion,
		"zsh":        rootCmd.GenZshCompletion,
		"fish":       func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		"powershell": rootCmd.GenPowerShellCompletion,
	}
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for evdash.

Try it in the current shell:
  source <(evdash completion bash)
  evdash completion fish | source`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, ok := generators[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell %q", args[0])
			}
			return gen(cmd.OutOrStdout())
		},
	}
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context, which
// aborts in-flight page fetches.
func Execute() error {
	var stop context.CancelFunc
	rootContext, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	return rootCmd.ExecuteContext(rootContext)
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newServeFixturesCmd())
	rootCmd.AddCommand(newConfigCmd())

	AddShortcuts(rootCmd)
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
