package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"buddy/internal/config"
	"buddy/internal/flow"
	"buddy/internal/terminal"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	verbose    bool
	showStats  bool
)

// errTaskFailed marks a flow the model ended with failure.
var errTaskFailed = errors.New("task failed")

const (
	exitError  = 1
	exitFailed = 2
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root := rootCmd()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errTaskFailed):
		os.Exit(exitFailed)
	default:
		terminal.New(terminal.Config{Out: os.Stderr, Logger: logger}).Error(err.Error())
		os.Exit(exitError)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "buddy [task]",
		Short: "Buddy: a command line assistant that gets things done in your shell",
		Long: `Buddy works through a task by proposing and running shell commands.

  buddy <task>             run the task without supervision
  buddy carefully <task>   ask before running dangerous commands
  buddy help <task>        work through the task together, step by step
  buddy explain <command>  explain what a command does

A task may not start with use, remove, info or install. A task starting
with config, doctor or history runs as a task unless it matches that command.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			variant, task := flow.Select(args)
			return startTask(cmd.Context(), variant, task)
		},
	}
	// Task text may contain dashes ("buddy find files -name x").
	root.Flags().SetInterspersed(false)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.buddy/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&showStats, "stats", false, "print run metrics after a task")

	root.SetHelpCommand(taskCmd("help <task>", "Work through a task together, step by step", flow.Educational))
	root.AddCommand(taskCmd("carefully <task>", "Run a task, asking before dangerous commands", flow.Supervised))
	root.AddCommand(taskCmd("explain <command>", "Explain what a shell command does", flow.Explain))
	root.AddCommand(useCmd())
	root.AddCommand(removeCmd())
	root.AddCommand(infoCmd())
	root.AddCommand(installCmd())
	root.AddCommand(taskFallthrough(configCmd()))
	root.AddCommand(taskFallthrough(doctorCmd()))
	root.AddCommand(taskFallthrough(historyCmd()))
	return root
}

// taskCmd runs the rest of the command line as a task of variant. Flags are
// not parsed so commands to explain keep their own.
func taskCmd(use, short string, variant flow.Variant) *cobra.Command {
	return &cobra.Command{
		Use:                use,
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Root().Help()
			}
			return startTask(cmd.Context(), variant, strings.Join(args, " "))
		},
	}
}

// startTask runs a task of the given variant.
var startTask = runTask

// asTask runs the command's own name followed by args as a task. Utility
// commands use it when their arguments do not form an invocation, so
// "buddy config nginx for tls" is still a task.
func asTask(cmd *cobra.Command, args []string) error {
	variant, task := flow.Select(append([]string{cmd.Name()}, args...))
	return startTask(cmd.Context(), variant, task)
}

// taskFallthrough makes cmd treat unexpected positional arguments as a task.
func taskFallthrough(cmd *cobra.Command) *cobra.Command {
	run := cmd.RunE
	cmd.Args = cobra.ArbitraryArgs
	cmd.Flags().SetInterspersed(false)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if len(args) > 0 {
			return asTask(c, args)
		}
		if run == nil {
			return c.Help()
		}
		return run(c, args)
	}
	return cmd
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogger applies general.logLevel and general.logFile; --verbose wins.
func setupLogger() error {
	level := slog.LevelWarn
	var out io.Writer = os.Stderr

	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		switch cfg.General.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
		if cfg.General.LogFile != "" && !verbose {
			f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			out = f
		}
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return nil
}
