// Package console prints probe outcomes and session summaries.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/ping"
)

// Options controls how a Printer renders lines.
type Options struct {
	// Color enables ANSI styling.
	Color bool

	// ShowDestination prefixes every outcome line with its destination.
	// Used when several destinations are pinged at once.
	ShowDestination bool
}

// ColorEnabled reports whether output to f should be styled. Styling is off
// when noColor is set, NO_COLOR is present or f is not a terminal.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
}

// Printer writes report lines. It is safe for concurrent use; each line is
// written with a single Write.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	opts Options
	st   styles
}

// New creates a Printer writing to w.
func New(w io.Writer, opts Options) *Printer {
	p := &Printer{w: w, opts: opts}
	if opts.Color {
		r := lipgloss.NewRenderer(w)
		p.st = styles{
			header:  r.NewStyle().Bold(true),
			success: r.NewStyle().Foreground(lipgloss.Color("42")),
			warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
			fail:    r.NewStyle().Foreground(lipgloss.Color("196")),
			dim:     r.NewStyle().Foreground(lipgloss.Color("241")),
		}
	} else {
		plain := lipgloss.NewStyle()
		p.st = styles{header: plain, success: plain, warn: plain, fail: plain, dim: plain}
	}
	return p
}

// Header prints the banner shown before the first probe of a session.
func (p *Printer) Header(cfg ping.Config, identifier uint16) {
	data := cfg.PayloadSize
	if cfg.Timestamp {
		data += icmp.TimestampLen
	}
	line := fmt.Sprintf("PING %s: %s of data, id=%#04x ttl=%d",
		cfg.Destination, humanize.IBytes(uint64(data)), identifier, cfg.TTL)
	p.println(p.st.header.Render(line))
}

// Outcome prints one probe outcome.
func (p *Printer) Outcome(destination string, o ping.Outcome) {
	line := o.String()
	switch o.Status {
	case ping.StatusSuccess:
		line = p.st.success.Render(line)
	case ping.StatusTimeout:
		line = p.st.warn.Render(line)
	default:
		line = p.st.fail.Render(line)
	}
	if p.opts.ShowDestination {
		line = p.st.dim.Render("["+destination+"]") + " " + line
	}
	p.println(line)
}

// Summary prints the statistics block for a finished session.
func (p *Printer) Summary(destination string, st ping.Statistics, elapsed time.Duration) {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(p.st.header.Render(fmt.Sprintf("--- %s ping statistics ---", destination)))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s probes transmitted, %s received, %.1f%% loss, time %s\n",
		humanize.Comma(int64(st.Sent)), humanize.Comma(int64(st.Received)),
		st.LossPercent(), elapsed.Round(time.Millisecond))

	if st.HasRTT() {
		fmt.Fprintf(&b, "rtt min/avg/max/stddev = %s/%s/%s/%s ms\n",
			millis(st.MinRTT), millis(st.AvgRTT()), millis(st.MaxRTT), millis(st.StdDevRTT()))
	}

	var errs []string
	for _, s := range []ping.Status{ping.StatusUnreachable, ping.StatusTTLExpired, ping.StatusOtherICMP, ping.StatusTransportError} {
		if n := st.Count(s); n > 0 {
			errs = append(errs, fmt.Sprintf("%s %d", s, n))
		}
	}
	if len(errs) > 0 {
		b.WriteString(p.st.fail.Render("errors: "+strings.Join(errs, ", ")) + "\n")
	}

	p.write(b.String())
}

// Error prints a failure that ended a session early.
func (p *Printer) Error(destination string, err error) {
	p.println(p.st.fail.Render(fmt.Sprintf("%s: %v", destination, err)))
}

func (p *Printer) println(line string) {
	p.write(line + "\n")
}

func (p *Printer) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.w, s)
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}
