package ui

import (
	"fmt"
	"io"

	"ndforge/internal/build"

	"github.com/charmbracelet/bubbles/progress"
)

// ProgressObserver prints one line per finished build item, prefixed with an
// overall progress bar. Dry-run traces are printed as they come.
type ProgressObserver struct {
	w      io.Writer
	bar    progress.Model
	styles Styles
	done   int
}

// NewProgressObserver creates an observer writing to w.
func NewProgressObserver(w io.Writer, styles Styles) *ProgressObserver {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30
	return &ProgressObserver{w: w, bar: bar, styles: styles}
}

// OnEvent implements build.Observer.
func (p *ProgressObserver) OnEvent(ev build.Event) {
	switch {
	case ev.Type == build.EventTrace:
		fmt.Fprintln(p.w, p.styles.Muted.Render(ev.Item.Trace()))
		return
	case !ev.Done():
		return
	}

	p.done++
	pct := 0.0
	if ev.Total > 0 {
		pct = float64(p.done) / float64(ev.Total)
	}
	fmt.Fprintf(p.w, "%s %d/%d %s %s\n", p.bar.ViewAs(pct), p.done, ev.Total, p.label(ev), ev.Item)
}

func (p *ProgressObserver) label(ev build.Event) string {
	switch ev.Type {
	case build.EventBuilt:
		return p.styles.Success.Render("built  ")
	case build.EventMerged:
		return p.styles.Info.Render(fmt.Sprintf("merged %v", ev.Added))
	case build.EventSkipped:
		return p.styles.Muted.Render("skipped")
	case build.EventFailed:
		return p.styles.Error.Render("failed ")
	}
	return ev.Type.String()
}

// Reset starts the count over for the next build.
func (p *ProgressObserver) Reset() {
	p.done = 0
}
