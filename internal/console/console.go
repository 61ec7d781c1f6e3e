// Package console prints the human-facing pipeline progress: stage banners,
// outcomes and the closing summary. Output is styled only on a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type palette struct {
	Accent  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Dim     lipgloss.Color
	Key     lipgloss.Color
}

var darkPalette = palette{
	Accent:  lipgloss.Color("#E1306C"),
	Success: lipgloss.Color("#22c55e"),
	Error:   lipgloss.Color("#ef4444"),
	Dim:     lipgloss.Color("#5a5a70"),
	Key:     lipgloss.Color("#888888"),
}

type styles struct {
	banner  lipgloss.Style
	step    lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	key     lipgloss.Style
	value   lipgloss.Style
	box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, p palette) styles {
	return styles{
		banner:  r.NewStyle().Foreground(p.Accent).Bold(true),
		step:    r.NewStyle().Foreground(p.Accent),
		dim:     r.NewStyle().Foreground(p.Dim),
		success: r.NewStyle().Foreground(p.Success).Bold(true),
		failure: r.NewStyle().Foreground(p.Error).Bold(true),
		key:     r.NewStyle().Foreground(p.Key).Width(12),
		value:   r.NewStyle().Bold(true),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Dim).
			Padding(0, 1),
	}
}

func plainStyles() styles {
	return styles{key: lipgloss.NewStyle().Width(12)}
}

// Console writes progress lines to one writer.
type Console struct {
	w      io.Writer
	s      styles
	styled bool
}

// New returns a console for w, styled when w is a terminal and NO_COLOR is
// unset.
func New(w io.Writer) *Console {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == "" {
		return &Console{w: w, s: newStyles(lipgloss.NewRenderer(w), darkPalette), styled: true}
	}
	return Plain(w)
}

// Plain returns an unstyled console.
func Plain(w io.Writer) *Console {
	return &Console{w: w, s: plainStyles()}
}

// Discard returns a console that prints nothing.
func Discard() *Console { return Plain(io.Discard) }

// Styled reports whether output carries terminal styling.
func (c *Console) Styled() bool { return c.styled }

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.w, format, args...)
}

// Banner prints a run header.
func (c *Console) Banner(title, detail string) {
	c.printf("%s %s\n", c.s.banner.Render(title), c.s.dim.Render(detail))
}

// Step announces stage i of n.
func (c *Console) Step(i, n int, name string) {
	c.printf("\n%s %s\n", c.s.step.Render(fmt.Sprintf("[%d/%d]", i, n)), c.s.value.Render(name))
}

// Detail prints an indented key/value line.
func (c *Console) Detail(key, value string) {
	c.printf("    %s%s\n", c.s.key.Render(key), value)
}

// Success prints a success line.
func (c *Console) Success(msg string) {
	c.printf("%s %s\n", c.s.success.Render("ok"), msg)
}

// Failure prints a failure line.
func (c *Console) Failure(msg string) {
	c.printf("%s %s\n", c.s.failure.Render("error:"), msg)
}

// Row is one summary line.
type Row struct {
	Name    string
	OK      bool
	Outcome string
}

// Summary prints the closing table; rows without an outcome were not run.
func (c *Console) Summary(title string, rows []Row) {
	var b strings.Builder
	b.WriteString(c.s.banner.Render(title))
	for _, r := range rows {
		mark := c.s.dim.Render("-")
		switch {
		case r.Outcome == "":
			r.Outcome = c.s.dim.Render("not run")
		case r.OK:
			mark = c.s.success.Render("✓")
		default:
			mark = c.s.failure.Render("✗")
		}
		b.WriteString("\n" + mark + " " + c.s.key.Render(r.Name) + r.Outcome)
	}
	c.printf("\n%s\n", c.s.box.Render(b.String()))
}
