package render

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stepColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.Bold)
)

// Printer writes progress lines prefixed with status markers.
type Printer struct {
	w      io.Writer
	indent string
}

// NewPrinter creates a printer writing to w. A nil writer discards output.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = io.Discard
	}
	return &Printer{w: w}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Indent returns a printer that nests its lines one level deeper.
func (p *Printer) Indent() *Printer {
	return &Printer{w: p.w, indent: p.indent + "  "}
}

// Step announces work about to start.
func (p *Printer) Step(format string, args ...interface{}) {
	p.mark(stepColor, "□", format, args...)
}

// Success reports completed work.
func (p *Printer) Success(format string, args ...interface{}) {
	p.mark(successColor, "✓", format, args...)
}

// Failure reports failed work.
func (p *Printer) Failure(format string, args ...interface{}) {
	p.mark(failureColor, "✗", format, args...)
}

// Warn reports something worth attention that did not fail.
func (p *Printer) Warn(format string, args ...interface{}) {
	p.mark(warningColor, "!", format, args...)
}

// Header prints a bold line.
func (p *Printer) Header(format string, args ...interface{}) {
	headerColor.Fprintf(p.w, "%s%s\n", p.indent, fmt.Sprintf(format, args...))
}

// Line prints an unmarked line.
func (p *Printer) Line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s%s\n", p.indent, fmt.Sprintf(format, args...))
}

// Progress prints text without a newline, for dotted progress output.
func (p *Printer) Progress(s string) {
	fmt.Fprint(p.w, s)
}

func (p *Printer) mark(c *color.Color, marker, format string, args ...interface{}) {
	fmt.Fprint(p.w, p.indent)
	c.Fprint(p.w, marker)
	fmt.Fprintf(p.w, " %s\n", fmt.Sprintf(format, args...))
}

// SetColor turns colored output on or off for every printer.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// ColorSupported reports whether f is a terminal and NO_COLOR is unset.
func ColorSupported(f *os.File) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
