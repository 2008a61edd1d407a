package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/bulkclean"
	"github.com/dustin/go-humanize"
)

const refreshEvery = 500 * time.Millisecond

// progress renders a run as two lines: cursor position against the
// approximate key count, and keys deleted (or matched in a dry run).
// On a terminal the lines are redrawn in place.
type progress struct {
	mu       sync.Mutex
	w        io.Writer
	now      func() time.Time
	last     time.Time
	pos      uint64
	total    uint64
	deleted  int64
	matched  int64
	dryRun   bool
	redraw   bool
	rendered bool
}

func newProgress(w io.Writer, dryRun bool) *progress {
	return &progress{
		w:      w,
		now:    time.Now,
		dryRun: dryRun,
		redraw: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

var _ bulkclean.Observer = (*progress)(nil)

func (p *progress) Start(initial, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos, p.total = initial, total
	p.render(true)
}

func (p *progress) Progress(pos uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
	p.render(false)
}

func (p *progress) Matched(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matched++
	p.render(false)
}

func (p *progress) Deleted(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted += n
	p.render(false)
}

func (*progress) CheckpointSaved(uint64) {}
func (*progress) CheckpointFailed(error) {}

func (p *progress) Done(r bulkclean.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render(true)
	verb := "deleted"
	n := r.Deleted
	if r.DryRun {
		verb, n = "matched", r.Matched
	}
	fmt.Fprintf(p.w, "%s keys %s, %s scanned in %s batches\n", //nolint:errcheck // progress is best-effort
		humanize.Comma(n), verb, humanize.Comma(r.Scanned), humanize.Comma(r.Batches))
}

// render draws both lines when forced or when refreshEvery has passed.
// Callers hold p.mu.
func (p *progress) render(force bool) {
	now := p.now()
	if !force && now.Sub(p.last) < refreshEvery {
		return
	}
	p.last = now

	esc := ""
	if p.redraw {
		esc = "\x1b[2K"
		if p.rendered {
			esc = "\x1b[2A" + esc
		}
	}
	p.rendered = true

	pct := 0.0
	if p.total > 0 {
		pct = min(100, float64(p.pos)/float64(p.total)*100)
	}
	label, count := "deleted", p.deleted
	if p.dryRun {
		label, count = "matched", p.matched
	}
	fmt.Fprintf(p.w, "%sCursor %5.1f%% %s/~%s\n", //nolint:errcheck // progress is best-effort
		esc, pct, humanize.Comma(int64(p.pos)), humanize.Comma(int64(p.total)))
	if p.redraw {
		esc = "\x1b[2K"
	}
	fmt.Fprintf(p.w, "%s  Rows %s %s\n", esc, humanize.Comma(count), label) //nolint:errcheck // progress is best-effort
}
