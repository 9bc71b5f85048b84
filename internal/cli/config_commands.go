package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/listsync"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage evdash configuration",
		Long: `Configuration management commands for evdash.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns the --config value or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for evdash.

The configuration is saved to ~/.config/evdash/evdash.conf (or --config)
and is readable by the owner only.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := promptConfig(bufio.NewReader(cmd.InOrStdin()), out)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			if eventBus != nil {
				eventBus.Publish(&events.ConfigChangedEvent{
					BaseEvent: events.BaseEvent{EventType: events.EventConfigChanged, Time: time.Now()},
					Path:      path,
				})
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: evdash config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// promptConfig asks for the settings that usually differ from the defaults.
func promptConfig(reader *bufio.Reader, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()

	ask := func(label, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return def
		}
		return input
	}
	askInt := func(label string, def int) int {
		v, err := strconv.Atoi(ask(label, strconv.Itoa(def)))
		if err != nil || v <= 0 {
			return def
		}
		return v
	}

	fmt.Fprintln(out, "evdash Configuration Setup")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintln(out)

	cfg.API.BaseURL = ask("API Base URL", cfg.API.BaseURL)
	cfg.API.APIKey = ask("API Key (empty for none)", "")

	fmt.Fprintln(out)
	fmt.Fprintln(out, "List Settings (press Enter for defaults)")
	fmt.Fprintln(out, "----------------------------------------")
	cfg.Sync.PageSize = askInt("Rows per page", cfg.Sync.PageSize)
	cfg.Sync.SearchDebounceMs = askInt("Search debounce (ms)", cfg.Sync.SearchDebounceMs)
	cfg.Sync.ScrollThrottleMs = askInt("Scroll throttle (ms)", cfg.Sync.ScrollThrottleMs)

	fmt.Fprintln(out)
	if p := strings.ToLower(ask("Configure proxy (y/n)", "n")); p == "y" || p == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.Proxy.Mode = ask("Proxy mode", config.ProxyModeSystem)
		if cfg.Proxy.Mode == config.ProxyModeBasic || cfg.Proxy.Mode == config.ProxyModeNTLM {
			cfg.Proxy.Host = ask("Proxy host", "")
			cfg.Proxy.Port = askInt("Proxy port", cfg.Proxy.Port)
			cfg.Proxy.User = ask("Proxy user (empty for none)", "")
		}
		cfg.Proxy.NoProxy = ask("Bypass list (no_proxy)", "localhost,127.0.0.1")
	}

	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/evdash/evdash.conf)
  2. Environment variables (EVDASH_API_KEY, EVDASH_API_URL)
  3. Command-line flags (--api-key, --api-url)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if apiKey != "" {
				cfg.API.APIKey = apiKey
			}
			if apiBaseURL != "" {
				cfg.API.BaseURL = apiBaseURL
			}

			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}

	return cmd
}

func printConfig(out io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "API Settings:")
	fmt.Fprintf(out, "  API Base URL: %s\n", cfg.API.BaseURL)
	if cfg.API.APIKey != "" {
		// Never display any portion of the API key
		fmt.Fprintf(out, "  API Key:      <set (%d chars)>\n", len(cfg.API.APIKey))
	} else {
		fmt.Fprintln(out, "  API Key:      <not set>")
	}
	fmt.Fprintf(out, "  Timeout:      %s\n", cfg.API.Timeout())
	fmt.Fprintf(out, "  Retries:      %d\n", cfg.API.RetryMax)
	fmt.Fprintf(out, "  Rate limit:   %g req/s (burst %d)\n", cfg.API.RequestsPerSecond, cfg.API.Burst)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "List Settings:")
	fmt.Fprintf(out, "  Page size:       %d\n", cfg.Sync.PageSize)
	fmt.Fprintf(out, "  Search debounce: %s\n", cfg.Sync.SearchDebounce())
	fmt.Fprintf(out, "  Scroll throttle: %s\n", cfg.Sync.ScrollThrottle())
	fmt.Fprintf(out, "  Prefetch margin: %g rows\n", cfg.Sync.PrefetchMargin)
	fmt.Fprintf(out, "  Threshold:       %g\n", cfg.Sync.Threshold)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.Proxy.Host)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.Proxy.Port)
	}
	if cfg.Proxy.NoProxy != "" {
		fmt.Fprintf(out, "  No Proxy:   %s\n", cfg.Proxy.NoProxy)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with current configuration.

Use this to verify your API key and network connectivity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			_, client, err := getAPIClient()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "API URL: %s\n", client.BaseURL())
			fmt.Fprintln(out, "Testing connection...")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.Stations(client).FetchPage(ctx, listsync.NewQueryParameters(1), 0, 1)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "Connection FAILED")
				if api.IsAuthError(err) {
					fmt.Fprintln(out, "  The API key was rejected.")
				}
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")
			fmt.Fprintln(out, "Connection SUCCESSFUL")
			fmt.Fprintf(out, "  Stations visible: %d\n", res.Total)
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Status:   file exists (%d bytes, modified %s)\n", info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status:   file does not exist")
				fmt.Fprintln(out, "Create a configuration file with: evdash config init")
			}
			return nil
		},
	}

	return cmd
}
