package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/progress"
)

// listOptions holds the query and paging flags shared by list commands.
type listOptions struct {
	search   string
	filters  []string
	sort     string
	desc     bool
	pages    int
	all      bool
	pageSize int
	format   string
}

func (o *listOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.search, "search", "s", "", "Search text")
	cmd.Flags().StringArrayVarP(&o.filters, "filter", "f", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVar(&o.sort, "sort", "", "Sort field; prefix with - for descending")
	cmd.Flags().BoolVar(&o.desc, "desc", false, "Sort descending")
	cmd.Flags().IntVarP(&o.pages, "pages", "p", 1, "Number of pages to load")
	cmd.Flags().BoolVarP(&o.all, "all", "a", false, "Load every page")
	cmd.Flags().IntVar(&o.pageSize, "page-size", 0, "Rows per page (default from config)")
	cmd.Flags().StringVarP(&o.format, "output", "o", "", "Output format: table, tsv, json (default table on a terminal)")
}

// params builds the query. The page size falls back to the config value.
func (o *listOptions) params(cfg *config.Config) (listsync.QueryParameters, error) {
	size := o.pageSize
	if size == 0 {
		size = cfg.Sync.PageSize
	}
	p := listsync.NewQueryParameters(size).WithSearch(o.search)

	if o.sort != "" {
		sort := listsync.ParseSortOrder(o.sort)
		if o.desc {
			sort.Descending = true
		}
		p = p.WithSort(sort)
	}

	for _, f := range o.filters {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return p, &listsync.ParameterError{Field: "filter", Reason: fmt.Sprintf("%q is not key=value", f)}
		}
		p = p.WithFilter(key, strings.TrimSpace(value))
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	if o.pages < 1 && !o.all {
		return p, &listsync.ParameterError{Field: "pages", Reason: "must be at least 1"}
	}
	return p, nil
}

// newListCmd creates the 'list' command.
func newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:       "list <stations|wallets|transactions>",
		Short:     "List stations, wallets or transactions",
		ValidArgs: []string{"stations", "wallets", "transactions"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Long: `List a dashboard collection page by page.

The first page is printed as soon as it arrives; further pages are requested
the way a scrolling view does, when the end of the printed rows is reached.

Examples:
  evdash list stations --filter status=available --sort -power_kw
  evdash list wallets --search nordic --all
  evdash list transactions -f type=charge -f from=2025-01-01 -f to=2025-01-31 --pages 3
  evdash list stations --all -o json > stations.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			return listResource(cmd.Context(), cfg, client, args[0], cmd.OutOrStdout(), opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

// listResource dispatches to the typed list for resource.
func listResource(ctx context.Context, cfg *config.Config, client *api.Client, resource string, out io.Writer, opts *listOptions) error {
	if ctx == nil {
		ctx = GetContext()
	}
	switch resource {
	case "stations":
		return runList(ctx, cfg, out, api.Stations(client), stationColumns, opts)
	case "wallets":
		return runList(ctx, cfg, out, api.Wallets(client), walletColumns, opts)
	case "transactions":
		return runList(ctx, cfg, out, api.Transactions(client), transactionColumns, opts)
	default:
		return fmt.Errorf("unknown resource %q (stations, wallets, transactions)", resource)
	}
}

func runList[T listsync.Item](ctx context.Context, cfg *config.Config, out io.Writer, src *api.Resource[T], cols columns[T], opts *listOptions) error {
	params, err := opts.params(cfg)
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.format, out)
	if err != nil {
		return err
	}

	p, err := newPager(cfg, src, params, eventBus)
	if err != nil {
		return err
	}
	defer p.close()

	snap, err := p.start(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", src.Name(), err)
	}

	var bar progress.Reporter = progress.Silent{}
	if opts.all && format != formatJSON {
		bar = progress.New(os.Stderr)
	}
	bar.Begin(src.Name(), snap.Total)
	bar.Loaded(len(snap.Items), snap.Total)

	t := newTable(out, format, cols)
	if err := t.write(snap.Items); err != nil {
		return err
	}
	printed := len(snap.Items)

	for pages := 1; opts.all || pages < opts.pages; pages++ {
		next, more, err := p.next(ctx)
		if err != nil {
			bar.Fail(err)
			_ = t.flush()
			return fmt.Errorf("%s: loaded %d of %d rows: %w", src.Name(), printed, next.Total, err)
		}
		if !more {
			break
		}
		if err := t.write(next.Items[printed:]); err != nil {
			return err
		}
		printed = len(next.Items)
		snap = next
		bar.Loaded(printed, next.Total)
	}
	bar.Done()

	if err := t.flush(); err != nil {
		return err
	}
	if format == formatTable {
		more := ""
		if snap.HasNextPage {
			more = " (more available: --all)"
		}
		fmt.Fprintf(out, "\n%d of %d %s%s\n", printed, snap.Total, src.Name(), more)
	}
	return nil
}
