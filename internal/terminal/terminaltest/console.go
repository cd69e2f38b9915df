// Package terminaltest provides a scripted domain.Console for tests.
package terminaltest

import (
	"context"
	"errors"
	"sync"
)

// ErrNoReply is returned by Ask when the script has no replies left.
var ErrNoReply = errors.New("scripted console: no reply left")

// Panel is one rendered panel.
type Panel struct {
	Title    string
	Markdown string
}

// Console answers Ask from Replies in order and records everything shown.
type Console struct {
	mu       sync.Mutex
	replies  []string
	Asked    []string
	Panels   []Panel
	Commands []string
	Notices  []string // "info: ...", "warn: ...", "error: ..."
	Lines    []string
}

func NewConsole(replies ...string) *Console {
	return &Console{replies: replies}
}

func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Asked = append(c.Asked, prompt)
	if len(c.replies) == 0 {
		return "", ErrNoReply
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func (c *Console) Panel(title, markdown string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Panels = append(c.Panels, Panel{Title: title, Markdown: markdown})
}

func (c *Console) Command(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = append(c.Commands, command)
}

func (c *Console) Info(msg string)  { c.notice("info: " + msg) }
func (c *Console) Warn(msg string)  { c.notice("warn: " + msg) }
func (c *Console) Error(msg string) { c.notice("error: " + msg) }

func (c *Console) notice(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notices = append(c.Notices, s)
}

func (c *Console) Output(line string, isStderr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isStderr {
		line = "stderr: " + line
	}
	c.Lines = append(c.Lines, line)
}

func (c *Console) Status(string) func() { return func() {} }

// Remaining returns the number of unused replies.
func (c *Console) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}
