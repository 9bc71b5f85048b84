package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/listsync"
)

const browseHelp = `Commands:
  <enter> | more       scroll to the end of the list (loads the next page)
  search <text>        set search text (applied after the debounce period)
  apply                apply pending search text now
  filter <key>=<value> set a filter; an empty value clears it
  sort [-]<field>      sort by field; - for descending; empty clears
  refresh              reload from the first page
  retry                retry a failed page
  pause | resume       stop or restart fetching
  status               show list state
  help                 show this help
  quit                 exit`

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:       "browse <stations|wallets|transactions>",
		Short:     "Browse a collection interactively",
		ValidArgs: []string{"stations", "wallets", "transactions"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Long: `Browse a collection interactively. Rows are printed as pages arrive;
press Enter to scroll further. Search, filter and sort changes restart the
list from the first page.

` + browseHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			switch args[0] {
			case "stations":
				return runBrowse(cmd.Context(), cfg, in, out, api.Stations(client), stationColumns, opts)
			case "wallets":
				return runBrowse(cmd.Context(), cfg, in, out, api.Wallets(client), walletColumns, opts)
			default:
				return runBrowse(cmd.Context(), cfg, in, out, api.Transactions(client), transactionColumns, opts)
			}
		},
	}
	opts.addFlags(cmd)
	return cmd
}

// browseView prints snapshots as they arrive. Rows already printed for the
// current generation are not repeated.
type browseView[T listsync.Item] struct {
	out  io.Writer
	name string
	cols columns[T]

	mu          sync.Mutex
	lastVersion uint64
	shownGen    uint64
	printed     int
	lastErr     error
}

func (v *browseView[T]) render(s listsync.Snapshot[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Version <= v.lastVersion {
		return
	}
	v.lastVersion = s.Version

	switch s.State {
	case listsync.StateReady:
		t := newTable(v.out, formatTable, v.cols)
		if s.Generation != v.shownGen {
			v.shownGen = s.Generation
			v.printed = 0
			fmt.Fprintf(v.out, "\n== %s: %d results (%s)\n", v.name, s.Total, s.Params.String())
		} else {
			t.wrote = true
		}
		if len(s.Items) > v.printed {
			_ = t.write(s.Items[v.printed:])
			_ = t.flush()
			v.printed = len(s.Items)
		}
		more := "end of list"
		if s.HasNextPage {
			more = "press Enter for more"
		}
		fmt.Fprintf(v.out, "-- %d of %d, %s\n", v.printed, s.Total, more)
		v.lastErr = nil

	case listsync.StateError:
		if s.Err != v.lastErr {
			v.lastErr = s.Err
			fmt.Fprintf(v.out, "!! %s: %v (type 'retry' or 'refresh')\n", v.name, s.Err)
		}
	}
}

// fetchStats counts list events for the status line.
type fetchStats struct {
	pages    atomic.Int64
	failures atomic.Int64
	stale    atomic.Int64
}

// consume counts events from ch until it is closed.
func (s *fetchStats) consume(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Type() {
		case events.EventListPageApplied:
			s.pages.Add(1)
		case events.EventListFetchFailed:
			s.failures.Add(1)
		case events.EventListStaleDiscarded:
			s.stale.Add(1)
		}
	}
}

func (s *fetchStats) String() string {
	return fmt.Sprintf("pages=%d failures=%d stale=%d", s.pages.Load(), s.failures.Load(), s.stale.Load())
}

func runBrowse[T listsync.Item](ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, src *api.Resource[T], cols columns[T], opts *listOptions) error {
	params, err := opts.params(cfg)
	if err != nil {
		return err
	}

	bus := eventBus
	if bus == nil {
		bus = events.NewEventBus(0)
		defer bus.Close()
	}
	stats := &fetchStats{}
	ch := bus.SubscribeList(src.Name(), events.EventListPageApplied, events.EventListFetchFailed, events.EventListStaleDiscarded)
	defer bus.Unsubscribe(ch)
	go stats.consume(ch)

	p, err := newPager(cfg, src, params, bus)
	if err != nil {
		return err
	}
	defer p.close()

	view := &browseView[T]{out: out, name: src.Name(), cols: cols}
	unsubscribe := p.ctrl.Subscribe(view.render)
	defer unsubscribe()

	if err := p.ctrl.Mount(); err != nil {
		return err
	}

	// The reader goroutine blocks in Scan until the input yields a line or
	// ends. Closing a closable input on return releases it; a terminal stdin
	// may stay blocked until the process exits.
	if c, ok := in.(io.Closer); ok {
		defer c.Close()
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := browseCommand(p, stats, out, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// browseCommand applies one input line. It reports true on quit.
func browseCommand[T listsync.Item](p *pager[T], stats *fetchStats, out io.Writer, line string) bool {
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	c := p.ctrl

	var err error
	switch strings.ToLower(verb) {
	case "", "more", "m":
		snap := c.State()
		p.vp.SetContentHeight(float64(len(snap.Items)))
		p.vp.ScrollToEnd()
	case "search", "s", "/":
		c.SetSearch(arg)
	case "apply":
		c.FlushSearch()
	case "filter", "f":
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			fmt.Fprintln(out, "usage: filter <key>=<value>")
			return false
		}
		err = c.SetFilter(strings.TrimSpace(key), strings.TrimSpace(value))
	case "sort":
		err = c.SetSort(listsync.ParseSortOrder(arg))
	case "refresh", "r":
		c.Refresh()
	case "retry":
		if !c.LoadMore() {
			fmt.Fprintln(out, "nothing to retry")
		}
	case "pause":
		c.SetEnabled(false)
		fmt.Fprintln(out, "paused")
	case "resume":
		c.SetEnabled(true)
		fmt.Fprintln(out, "resumed")
	case "status":
		s := c.State()
		fmt.Fprintf(out, "state=%s items=%d total=%d page=%d more=%v %s\n",
			s.State, len(s.Items), s.Total, s.CurrentPageIndex, s.HasNextPage, s.Params.String())
		if stats != nil {
			fmt.Fprintln(out, stats)
		}
	case "help", "?":
		fmt.Fprintln(out, browseHelp)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(out, "unknown command %q (type 'help')\n", verb)
	}
	if err != nil {
		fmt.Fprintf(out, "rejected: %v\n", err)
	}
	return false
}
