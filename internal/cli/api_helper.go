package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/logging"
)

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.API.APIKey = apiKey
	}
	if apiBaseURL != "" {
		cfg.API.BaseURL = apiBaseURL
	}
	if cfg.Logging.Level != "" && !verbose && !debug {
		if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			logging.SetGlobalLevel(level)
		}
	}
	if logFile == "" && cfg.Logging.File != "" {
		if err := GetLogger().EnableFile(cfg.Logging.File); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}
	if cfg.Proxy.NeedsProxyPassword() {
		password, err := promptPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.Proxy.User, cfg.Proxy.Host))
		if err != nil {
			return nil, err
		}
		cfg.Proxy.Password = password
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// This is the standard way to get an API client in CLI commands.
func getAPIClient() (*config.Config, *api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return cfg, client, nil
}

// promptPassword reads a secret from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("proxy password required: set %s", config.EnvProxyPW)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
