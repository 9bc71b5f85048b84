// Package progress shows how far a multi-page list load has got: a row bar
// on a terminal, nothing otherwise.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter follows one list load. The server total can change between pages,
// so every Loaded call carries the latest one.
type Reporter interface {
	Begin(list string, total int)
	Loaded(rows, total int)
	Done()
	Fail(err error)
}

// New returns a Bar on w when w is a terminal, otherwise Silent.
func New(w *os.File) Reporter {
	if w != nil && term.IsTerminal(int(w.Fd())) {
		return NewBar(w)
	}
	return Silent{}
}

// Bar draws a row counter with schollz/progressbar.
type Bar struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	total int
}

// NewBar creates a Bar writing to out, or stderr when out is nil.
func NewBar(out io.Writer) *Bar {
	if out == nil {
		out = os.Stderr
	}
	return &Bar{out: out}
}

// Begin draws an empty bar. A non-positive total shows a spinner.
func (b *Bar) Begin(list string, total int) {
	out := b.out
	b.total = total
	b.bar = progressbar.NewOptions(max(total, -1),
		progressbar.OptionSetDescription(list),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
}

func (b *Bar) Loaded(rows, total int) {
	if b.bar == nil {
		return
	}
	if total > 0 && total != b.total {
		b.total = total
		b.bar.ChangeMax(total)
	}
	_ = b.bar.Set(rows)
}

func (b *Bar) Done() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Fail clears the bar and prints err in its place.
func (b *Bar) Fail(err error) {
	if err == nil {
		return
	}
	if b.bar != nil {
		_ = b.bar.Clear()
	}
	fmt.Fprintf(b.out, "\nError: %v\n", err)
}

// Silent discards progress, for piped output.
type Silent struct{}

func (Silent) Begin(string, int) {}
func (Silent) Loaded(int, int)   {}
func (Silent) Done()             {}
func (Silent) Fail(error)        {}
