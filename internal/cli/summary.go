package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/models"
)

// summaryConcurrency bounds how many lists are loading at once.
const summaryConcurrency = 4

// newSummaryCmd creates the 'summary' command.
func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals for every collection",
		Long: `Show collection totals and a breakdown by status.

Each count is its own list query; the queries run concurrently and share the
client rate limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			return runSummary(cmd.Context(), cfg, client, cmd.OutOrStdout())
		},
	}
}

// countLine is one row of the summary.
type countLine struct {
	resource string
	filter   string
	total    int
}

func runSummary(ctx context.Context, cfg *config.Config, client *api.Client, out io.Writer) error {
	var queries []func(context.Context) (countLine, error)
	add := func(q func(context.Context) (countLine, error)) { queries = append(queries, q) }

	stations, wallets, transactions := api.Stations(client), api.Wallets(client), api.Transactions(client)
	add(countQuery(cfg, stations, "", ""))
	for _, s := range models.StationStatuses {
		add(countQuery(cfg, stations, "status", s))
	}
	add(countQuery(cfg, wallets, "", ""))
	for _, s := range models.WalletStatuses {
		add(countQuery(cfg, wallets, "status", s))
	}
	add(countQuery(cfg, transactions, "", ""))
	for _, s := range models.TransactionStatuses {
		add(countQuery(cfg, transactions, "status", s))
	}

	lines := make([]countLine, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			line, err := q(gctx)
			if err != nil {
				return err
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tFILTER\tTOTAL")
	for _, l := range lines {
		filter := "-"
		if l.filter != "" {
			filter = l.filter
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", l.resource, filter, l.total)
	}
	return tw.Flush()
}

// countQuery loads a single one-row page and reports the server total.
func countQuery[T listsync.Item](cfg *config.Config, src *api.Resource[T], key, value string) func(context.Context) (countLine, error) {
	return func(ctx context.Context) (countLine, error) {
		params := listsync.NewQueryParameters(1)
		line := countLine{resource: src.Name()}
		if key != "" {
			params = params.WithFilter(key, value)
			line.filter = key + "=" + value
		}

		p, err := newPager(cfg, src, params, eventBus)
		if err != nil {
			return line, err
		}
		defer p.close()

		snap, err := p.start(ctx)
		if err != nil {
			return line, fmt.Errorf("%s %s: %w", src.Name(), line.filter, err)
		}
		line.total = snap.Total
		return line, nil
	}
}
