// Package terminal is the operator's console: it renders panels, commands
// and command output, shows a spinner while the model thinks and reads
// replies from standard input.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	stderrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("76"))
)

type Config struct {
	In      io.Reader
	Out     io.Writer
	NoColor bool
	Logger  *slog.Logger
}

// Console implements domain.Console on a terminal. Styling and the spinner
// are only used when Out is a terminal and NoColor is false.
type Console struct {
	in       io.Reader
	out      io.Writer
	styled   bool
	renderer *glamour.TermRenderer
	logger   *slog.Logger

	mu sync.Mutex // serializes writes to out

	readOnce sync.Once
	lines    chan line

	spinMu   sync.Mutex
	spinStop chan struct{}
	spinDone chan struct{}
}

type line struct {
	text string
	err  error
}

func New(cfg Config) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Console{
		in:     cfg.In,
		out:    cfg.Out,
		styled: !cfg.NoColor && IsTerminal(cfg.Out),
		logger: cfg.Logger,
	}
	if c.styled {
		width := 100
		if w, ok := Width(cfg.Out); ok && w < width {
			width = w
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
		if err != nil {
			c.logger.Debug("markdown renderer unavailable", "err", err)
		} else {
			c.renderer = r
		}
	}
	return c
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w any) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	if fder, ok := w.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}

// Width returns the column count of the terminal behind w.
func Width(w any) (int, bool) {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return 0, false
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return 0, false
	}
	return cols, true
}

// --- Input ---

// Ask prints prompt and waits for one line. It returns when the line arrives,
// when ctx is cancelled or when input is closed (io.EOF).
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	c.StopStatus()
	c.readOnce.Do(c.startReader)
	c.write(c.style(promptStyle, prompt) + " ")

	select {
	case <-ctx.Done():
		c.write("\n")
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimRight(l.text, "\r"), l.err
	}
}

// startReader feeds lines from in to Ask. The goroutine lives as long as
// input stays open; a blocked read on a terminal cannot be interrupted.
func (c *Console) startReader() {
	c.lines = make(chan line)
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			c.lines <- line{text: sc.Text()}
		}
		if err := sc.Err(); err != nil {
			c.lines <- line{err: fmt.Errorf("read input: %w", err)}
		}
	}()
}

// --- Output ---

// Panel renders markdown under a title.
func (c *Console) Panel(title, markdown string) {
	c.StopStatus()
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(c.style(titleStyle, title))
	b.WriteString("\n")
	b.WriteString(c.markdown(markdown))
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	c.write(b.String())
}

func (c *Console) Command(command string) {
	c.StopStatus()
	c.write(c.style(commandStyle, "$ "+command) + "\n")
}

func (c *Console) Info(msg string)  { c.notice(infoStyle, "", msg) }
func (c *Console) Warn(msg string)  { c.notice(warnStyle, "warning: ", msg) }
func (c *Console) Error(msg string) { c.notice(errorStyle, "error: ", msg) }

func (c *Console) notice(s lipgloss.Style, plainPrefix, msg string) {
	c.StopStatus()
	if c.styled {
		c.write(s.Render(msg) + "\n")
		return
	}
	c.write(plainPrefix + msg + "\n")
}

// Output echoes one line of a running command.
func (c *Console) Output(text string, isStderr bool) {
	if isStderr {
		text = c.style(stderrStyle, text)
	}
	c.write(text + "\n")
}

func (c *Console) markdown(md string) string {
	if c.renderer == nil {
		return md
	}
	out, err := c.renderer.Render(md)
	if err != nil {
		c.logger.Debug("markdown render failed", "err", err)
		return md
	}
	return out
}

func (c *Console) style(s lipgloss.Style, text string) string {
	if !c.styled {
		return text
	}
	return s.Render(text)
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

// --- Spinner ---

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Status shows msg with a spinner until the returned func or StopStatus is
// called. On a plain writer it does nothing.
func (c *Console) Status(msg string) (stop func()) {
	if !c.styled {
		return func() {}
	}
	c.StopStatus()

	c.spinMu.Lock()
	defer c.spinMu.Unlock()
	stopCh := make(chan struct{})
	done := make(chan struct{})
	c.spinStop, c.spinDone = stopCh, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			c.write(fmt.Sprintf("\r%s %s", spinnerFrames[i%len(spinnerFrames)], msg))
			select {
			case <-stopCh:
				c.write("\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
	return c.StopStatus
}

// StopStatus clears the spinner if one is showing.
func (c *Console) StopStatus() {
	c.spinMu.Lock()
	defer c.spinMu.Unlock()
	if c.spinStop == nil {
		return
	}
	close(c.spinStop)
	<-c.spinDone
	c.spinStop, c.spinDone = nil, nil
}
