package cli

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

const barWidth = 30

// progressPrinter renders upload progress. On a terminal the bar is redrawn
// in place; otherwise a line is written every 10 percent.
type progressPrinter struct {
	w        io.Writer
	terminal bool
	lastStep int64
	drawn    bool
}

func newProgressPrinter(w io.Writer, terminal bool) *progressPrinter {
	return &progressPrinter{w: w, terminal: terminal, lastStep: -1}
}

func percent(done, total int64) int64 {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// Update has the services.ProgressFunc signature.
func (p *progressPrinter) Update(done, total int64) {
	pct := percent(done, total)

	if p.terminal {
		filled := int(pct * barWidth / 100)
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
		fmt.Fprintf(p.w, "\r[%s] %3d%%  %s / %s", bar, pct, humanBytes(done), humanBytes(total))
		p.drawn = true
		return
	}

	if step := pct / 10; step != p.lastStep {
		p.lastStep = step
		fmt.Fprintf(p.w, "progress: %d%% (%d/%d bytes)\n", pct, done, total)
	}
}

// Done ends the in-place bar with a newline.
func (p *progressPrinter) Done() {
	if p.terminal && p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
