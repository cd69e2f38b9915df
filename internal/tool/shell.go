package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultShell = "sh"
	readBufSize  = 64 * 1024
)

// EchoFunc receives each output line while a command runs.
type EchoFunc func(line string, isStderr bool)

// CommandResult is the captured output of one shell command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes shell commands, draining stdout and stderr concurrently so a
// process writing heavily to either stream cannot block on a full pipe.
type Runner struct {
	shell      string
	workingDir string
	timeout    time.Duration
	echo       EchoFunc
	logger     *slog.Logger
}

type RunnerConfig struct {
	Shell      string        // interpreter invoked as `<shell> -c <command>`
	WorkingDir string        // empty means the process working directory
	Timeout    time.Duration // zero disables the timeout
	Echo       EchoFunc      // live output when display is requested
	Logger     *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		shell:      cfg.Shell,
		workingDir: cfg.WorkingDir,
		timeout:    cfg.Timeout,
		echo:       cfg.Echo,
		logger:     cfg.Logger,
	}
}

// Run executes command through the shell, unmodified. A non-zero exit status
// is reported in the result, not as an error. When display is true each line
// is echoed as it arrives.
func (r *Runner) Run(ctx context.Context, command string, display bool) (CommandResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return CommandResult{}, fmt.Errorf("missing argument: command")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	// Children forked by the shell share its process group and die with it,
	// so a timeout is not held up by a grandchild keeping the pipes open.
	setProcessGroup(cmd)
	if r.workingDir != "" {
		if abs, err := filepath.Abs(r.workingDir); err == nil {
			cmd.Dir = abs
		} else {
			cmd.Dir = r.workingDir
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return CommandResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return CommandResult{}, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("start %s: %w", r.shell, err)
	}
	r.logger.Debug("command started", "command", command, "pid", cmd.Process.Pid)

	var echo EchoFunc
	if display && r.echo != nil {
		var mu sync.Mutex
		echo = func(line string, isStderr bool) {
			mu.Lock()
			defer mu.Unlock()
			r.echo(line, isStderr)
		}
	}

	var outBuf, errBuf strings.Builder
	var group errgroup.Group
	group.Go(func() error { return drain(stdout, &outBuf, false, echo) })
	group.Go(func() error { return drain(stderr, &errBuf, true, echo) })

	// Both pipes must be fully read before Wait closes them.
	drainErr := group.Wait()
	waitErr := cmd.Wait()

	res := CommandResult{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("command cancelled: %w", ctx.Err())
	}
	if drainErr != nil {
		return res, fmt.Errorf("read output: %w", drainErr)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("wait: %w", waitErr)
	}

	r.logger.Debug("command finished", "exit", res.ExitCode, "duration", res.Duration,
		"stdout_len", len(res.Stdout), "stderr_len", len(res.Stderr))
	return res, nil
}

// drain copies rd into buf line by line. Lines of any length are kept whole;
// a final line without a newline is kept as is.
func drain(rd io.Reader, buf *strings.Builder, isStderr bool, echo EchoFunc) error {
	br := bufio.NewReaderSize(rd, readBufSize)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			buf.WriteString(line)
			if echo != nil {
				echo(strings.TrimRight(line, "\r\n"), isStderr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
