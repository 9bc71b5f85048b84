package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/voltline/evdash/internal/models"
)

// Output formats
const (
	formatTable = "table"
	formatTSV   = "tsv"
	formatJSON  = "json"
)

// columns renders one resource as rows of text.
type columns[T any] struct {
	header []string
	row    func(T) []string
}

var stationColumns = columns[models.Station]{
	header: []string{"ID", "NAME", "CITY", "STATUS", "CONNECTOR", "POWER_KW", "UPDATED"},
	row: func(s models.Station) []string {
		return []string{s.ID, s.Name, s.City, s.Status, s.ConnectorType, number(s.PowerKW), stamp(s.UpdatedAt)}
	},
}

var walletColumns = columns[models.Wallet]{
	header: []string{"ID", "OWNER", "STATUS", "BALANCE", "CURRENCY"},
	row: func(w models.Wallet) []string {
		return []string{w.ID, w.Owner, w.Status, money(w.Balance), w.Currency}
	},
}

var transactionColumns = columns[models.Transaction]{
	header: []string{"ID", "CREATED", "TYPE", "STATUS", "AMOUNT", "ENERGY_KWH", "WALLET", "STATION"},
	row: func(t models.Transaction) []string {
		energy := "-"
		if t.EnergyKWh > 0 {
			energy = number(t.EnergyKWh)
		}
		station := t.StationID
		if station == "" {
			station = "-"
		}
		return []string{t.ID, stamp(t.CreatedAt), t.Type, t.Status, money(t.Amount), energy, t.WalletID, station}
	},
}

// table writes rows incrementally so pages can be printed as they arrive.
type table[T any] struct {
	cols   columns[T]
	format string
	out    io.Writer
	tw     *tabwriter.Writer
	json   *json.Encoder
	wrote  bool
}

// resolveFormat picks table output for terminals and tsv for pipes when
// format is empty.
func resolveFormat(format string, out io.Writer) (string, error) {
	switch format {
	case "":
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatTSV, nil
	case formatTable, formatTSV, formatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table, tsv, json)", format)
	}
}

func newTable[T any](out io.Writer, format string, cols columns[T]) *table[T] {
	t := &table[T]{cols: cols, format: format, out: out}
	switch format {
	case formatTable:
		t.tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	case formatJSON:
		t.json = json.NewEncoder(out)
	}
	return t
}

// write prints items; the header goes out with the first call.
func (t *table[T]) write(items []T) error {
	if t.json != nil {
		for _, item := range items {
			if err := t.json.Encode(item); err != nil {
				return err
			}
		}
		return nil
	}

	w := t.out
	if t.tw != nil {
		w = t.tw
	}
	if !t.wrote {
		fmt.Fprintln(w, strings.Join(t.cols.header, "\t"))
		t.wrote = true
	}
	for _, item := range items {
		fmt.Fprintln(w, strings.Join(t.cols.row(item), "\t"))
	}
	return nil
}

// flush aligns and emits buffered table rows.
func (t *table[T]) flush() error {
	if t.tw != nil {
		return t.tw.Flush()
	}
	return nil
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
