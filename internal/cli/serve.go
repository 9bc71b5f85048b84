package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/mockapi"
)

// newServeFixturesCmd creates the 'serve-fixtures' command.
func newServeFixturesCmd() *cobra.Command {
	var (
		addr      string
		key       string
		latency   time.Duration
		failEvery int
		seed      uint64
	)

	cmd := &cobra.Command{
		Use:   "serve-fixtures",
		Short: "Serve deterministic fixture data on the dashboard API routes",
		Long: `Start a local server that implements the list endpoints with generated
stations, wallets and transactions. Useful for demos and for trying list
behaviour against slow or failing responses.

Examples:
  evdash serve-fixtures
  evdash serve-fixtures --latency 400ms --fail-every 5
  evdash --api-url http://127.0.0.1:8089 list stations --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			opts := mockapi.Options{
				APIKey:  key,
				Latency: latency,
				Logger:  logger,
				Fault:   mockapi.FailEvery(failEvery, nethttp.StatusServiceUnavailable),
			}
			if cmd.Flags().Changed("seed") {
				opts.Dataset = mockapi.NewDataset(seed, 137, 64, 512)
			}
			srv := mockapi.NewServer(opts)

			httpServer := &nethttp.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			logger.Info().Str("addr", ln.Addr().String()).Bool("auth", key != "").Msg("serving fixtures")
			fmt.Fprintf(cmd.OutOrStdout(), "Fixture API listening on http://%s\n", ln.Addr())

			ctx := cmd.Context()
			errCh := make(chan error, 1)
			go func() { errCh <- httpServer.Serve(ln) }()

			select {
			case err := <-errCh:
				if errors.Is(err, nethttp.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info().Int64("requests", srv.Requests()).Msg("fixture server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", constants.DefaultFixtureAddr, "Listen address")
	cmd.Flags().StringVar(&key, "require-key", "", "Require this API key (empty disables auth)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay every list response")
	cmd.Flags().IntVar(&failEvery, "fail-every", 0, "Fail every Nth list request with 503 (0 disables)")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Dataset seed")

	return cmd
}
