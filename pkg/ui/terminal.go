package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"grokfav/pkg/status"
)

// Banner printed at the start of an interactive run
const Banner = `
  ┌─┐┬─┐┌─┐┬┌─  ┌─┐┌─┐┬  ┬┌─┐┬─┐┬┌┬┐┌─┐┌─┐
  │ ┬├┬┘│ │├┴┐  ├┤ ├─┤└┐┌┘│ │├┬┘│ │ ├┤ └─┐
  └─┘┴└─└─┘┴ ┴  └  ┴ ┴ └┘ └─┘┴└─┴ ┴ └─┘└─┘
`

var (
	accent  = lipgloss.Color("#00D7FF")
	success = lipgloss.Color("#5FD75F")
	warning = lipgloss.Color("#FFAF00")
	failure = lipgloss.Color("#FF5F5F")
	muted   = lipgloss.Color("#8A8A8A")
)

// Styles maps status states and message roles to lipgloss styles
type Styles struct {
	Running lipgloss.Style
	Debug   lipgloss.Style
	Idle    lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Banner  lipgloss.Style
}

// NewStyles builds the palette on renderer r
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Running: r.NewStyle(),
		Debug:   r.NewStyle().Foreground(muted).Faint(true),
		Idle:    r.NewStyle().Foreground(success).Bold(true),
		Error:   r.NewStyle().Foreground(failure).Bold(true),
		Label:   r.NewStyle().Foreground(accent).Bold(true),
		Value:   r.NewStyle().Foreground(warning),
		Banner:  r.NewStyle().Foreground(accent).Bold(true),
	}
}

// For returns the style of state
func (s Styles) For(state status.State) lipgloss.Style {
	switch state {
	case status.StateDebug:
		return s.Debug
	case status.StateIdle:
		return s.Idle
	case status.StateError:
		return s.Error
	default:
		return s.Running
	}
}

// IsInteractive reports whether f is attached to a terminal
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ConsoleOptions controls what the console prints
type ConsoleOptions struct {
	// NoColor strips all styling
	NoColor bool
	// Quiet prints only idle and error events
	Quiet bool
	// ShowDebug prints debug events
	ShowDebug bool
}

// Console renders status events as styled lines. It implements status.Sink.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	opts   ConsoleOptions
	styles Styles
}

// NewConsole creates a console writing to out
func NewConsole(out io.Writer, opts ConsoleOptions) *Console {
	r := lipgloss.NewRenderer(out)
	if opts.NoColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Console{out: out, opts: opts, styles: NewStyles(r)}
}

// Styles exposes the console palette
func (c *Console) Styles() Styles {
	return c.styles
}

// Publish implements status.Sink
func (c *Console) Publish(e status.Event) {
	if e.State == status.StateDebug && !c.opts.ShowDebug {
		return
	}
	if c.opts.Quiet && e.State != status.StateIdle && e.State != status.StateError {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.styles.For(e.State).Render(e.Text))
}

// Banner prints the banner
func (c *Console) Banner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.styles.Banner.Render(Banner))
	fmt.Fprintln(c.out)
}

// Info prints a label: value line
func (c *Console) Info(label, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s: %s\n", c.styles.Label.Render(label), c.styles.Value.Render(value))
}

// Success prints a success line
func (c *Console) Success(msg string) {
	c.line(c.styles.Idle, msg)
}

// Warn prints a warning line
func (c *Console) Warn(msg string) {
	c.line(c.styles.Value, msg)
}

// Error prints an error line
func (c *Console) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	c.line(c.styles.Error, msg)
}

// Println prints an unstyled line
func (c *Console) Println(msg string) {
	c.line(c.styles.Running, msg)
}

func (c *Console) line(style lipgloss.Style, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, style.Render(strings.TrimRight(msg, "\n")))
}
