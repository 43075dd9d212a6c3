package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/gate"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/util"
)

// terminalTheme defines the colors for terminal output.
type terminalTheme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

var defaultTerminalTheme = terminalTheme{
	Primary: lipgloss.Color(config.DefaultStationColorLight),
	Dim:     lipgloss.Color("#6e7681"),
}

// terminalStyles holds the styles derived from a theme.
type terminalStyles struct {
	Level    lipgloss.Style
	Dim      lipgloss.Style
	Label    lipgloss.Style
	Status   map[gate.Classification]lipgloss.Style
	Location lipgloss.Style
}

func newTerminalStyles(t terminalTheme) terminalStyles {
	status := make(map[gate.Classification]lipgloss.Style)
	for _, c := range []gate.Classification{gate.Suppressed, gate.BelowThreshold, gate.Nuisance} {
		status[c] = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(util.ContrastColor(c.Color()))).
			Background(lipgloss.Color(c.Color())).
			Padding(0, 1)
	}
	return terminalStyles{
		Level:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Width(9).Align(lipgloss.Right),
		Dim:      lipgloss.NewStyle().Foreground(t.Dim),
		Label:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Status:   status,
		Location: lipgloss.NewStyle().Foreground(t.Dim).PaddingLeft(2),
	}
}

// terminalPresenter renders one line per result, plus the location whenever
// it changes, and keeps per-classification counts for the summary.
type terminalPresenter struct {
	w      io.Writer
	styles terminalStyles

	mu       sync.Mutex
	counts   map[gate.Classification]int
	total    int
	maxDB    float64
	lastLoc  string
	lastSess string
}

func newTerminalPresenter(w io.Writer) *terminalPresenter {
	return &terminalPresenter{
		w:      w,
		styles: newTerminalStyles(defaultTerminalTheme),
		counts: make(map[gate.Classification]int),
	}
}

// Present writes r to the terminal.
func (p *terminalPresenter) Present(r meter.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.SessionID != p.lastSess {
		p.lastSess = r.SessionID
		fmt.Fprintln(p.w, p.styles.Dim.Render("session "+r.SessionID))
	}

	status, ok := p.styles.Status[r.Classification]
	if !ok {
		status = p.styles.Dim
	}
	fmt.Fprintf(p.w, "%s %s %s %s %s\n",
		p.styles.Dim.Render(fmt.Sprintf("#%-5d", r.Reading.Seq)),
		p.styles.Level.Render(fmt.Sprintf("%.1f dB", r.Reading.DB)),
		p.styles.Dim.Render(fmt.Sprintf("peak %.1f dB", r.PeakDB)),
		p.styles.Dim.Render(fmt.Sprintf("motion %.2f m/s²", r.Motion)),
		status.Render(r.Classification.Label()))

	if loc := r.Location.String(); loc != p.lastLoc {
		p.lastLoc = loc
		fmt.Fprintln(p.w, p.styles.Location.Render(strings.ReplaceAll(loc, "\n", "  ")))
	}

	p.counts[r.Classification]++
	if p.total == 0 || r.Reading.DB > p.maxDB {
		p.maxDB = r.Reading.DB
	}
	p.total++
}

// Summary writes reading counts per classification.
func (p *terminalPresenter) Summary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total == 0 {
		fmt.Fprintln(p.w, p.styles.Dim.Render("no readings"))
		return
	}
	fmt.Fprintf(p.w, "%s %d readings, max %.1f dB: %d nuisance, %d below threshold, %d suppressed\n",
		p.styles.Label.Render("Summary"),
		p.total, p.maxDB,
		p.counts[gate.Nuisance], p.counts[gate.BelowThreshold], p.counts[gate.Suppressed])
}

// limitPresenter forwards the first n results and calls reached once the
// limit is hit. A zero limit forwards everything.
type limitPresenter struct {
	next    meter.Presenter
	limit   int
	reached func()

	seen int // dispatcher goroutine only
}

// Present forwards r while under the limit.
func (l *limitPresenter) Present(r meter.Result) {
	if l.limit > 0 && l.seen >= l.limit {
		return
	}
	l.seen++
	l.next.Present(r)
	if l.limit > 0 && l.seen == l.limit {
		l.reached()
	}
}
