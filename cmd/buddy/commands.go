package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"buddy/internal/capability"
	"buddy/internal/config"
	"buddy/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func useCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Select a model provider or enable an ability",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "provider <name> [api_key]",
		Short: "Use a model provider, storing its API key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			name := args[0]
			pc, ok := cfg.Providers[name]
			if !ok {
				return fmt.Errorf("unknown provider '%s', see `buddy info providers`", name)
			}

			st, err := store.Open(cfg.Store.DBPath, store.Options{AuditLog: cfg.Store.AuditLog, Logger: logger})
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			if key == "" && needsKey(cfg, st, name) {
				if _, err := st.APIKey(ctx, name); err != nil {
					if key, err = readSecret(fmt.Sprintf("API key for %s: ", name)); err != nil {
						return err
					}
				}
			}
			if key != "" {
				if err := st.SetAPIKey(ctx, name, key); err != nil {
					return err
				}
			}

			pc.Enabled = true
			cfg.Providers[name] = pc
			cfg.General.Provider = name
			if err := config.Save(resolveConfigPath(), cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			success(fmt.Sprintf("Now using %s (%s)", name, pc.Model))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ability <name>",
		Short: "Enable an ability for every task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			name := args[0]
			ok, err := rt.registry.Enable(ctx, name, nil)
			if err != nil {
				return fmt.Errorf("%w, see `buddy info abilities`", err)
			}
			if !ok {
				return fmt.Errorf("the %s ability could not be enabled", name)
			}
			if rt.cfg.EnableAbility(name) {
				if err := config.Save(resolveConfigPath(), rt.cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}
			success(fmt.Sprintf("Enabled the %s ability", name))
			return nil
		},
	})
	return cmd
}

func needsKey(cfg *config.Config, st *store.SQLiteStore, name string) bool {
	if pc := cfg.Providers[name]; pc.APIKey != "" && !strings.HasPrefix(pc.APIKey, "${") {
		return false
	}
	return newFactory(cfg, st).NeedsKey(name)
}

// readSecret prompts on stderr and reads a line without echo when stdin is a
// terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func removeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a model provider's key or disable an ability",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "provider <name>",
		Short: "Forget the API key of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			name := args[0]
			if name == cfg.CurrentProvider() {
				return fmt.Errorf("cannot remove the current model provider, switch to another provider first using `buddy use provider <name> [api_key]`")
			}
			if _, ok := cfg.Providers[name]; !ok {
				return fmt.Errorf("unknown provider '%s', see `buddy info providers`", name)
			}
			st, err := store.Open(cfg.Store.DBPath, store.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()
			if err := st.DeleteAPIKey(cmd.Context(), name); err != nil {
				return err
			}
			success(fmt.Sprintf("Removed %s configuration", name))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ability <name>",
		Short: "Disable an ability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			name := args[0]
			if _, ok := rt.registry.Registration(name); !ok {
				return fmt.Errorf("unknown ability '%s'", name)
			}
			if err := rt.registry.Disable(cmd.Context(), name); err != nil {
				logger.Debug("ability not instantiated for disable", "ability", name, "err", err)
			}
			if rt.cfg.DisableAbility(name) {
				if err := config.Save(resolveConfigPath(), rt.cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}
			success(fmt.Sprintf("Removed %s ability", name))
			return nil
		},
	})
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "info [providers|abilities]",
		Short:     "Show providers, abilities and usage",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"providers", "abilities"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}
			out := cmd.OutOrStdout()
			if topic == "" {
				fmt.Fprintf(out, "Buddy v%s\n\n%s\n\n", version, cmd.Root().Long)
			}
			if topic == "" || topic == "providers" {
				st, err := store.Open(cfg.Store.DBPath, store.Options{Logger: logger})
				if err != nil {
					return fmt.Errorf("store: %w", err)
				}
				defer st.Close()
				fmt.Fprintln(out, providerTable(cmd.Context(), cfg, st))
				fmt.Fprintln(out, "Select one with `buddy use provider <name> [api_key]`.")
				fmt.Fprintln(out)
			}
			if topic == "" || topic == "abilities" {
				reg, err := abilityRegistry(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, abilityTable(cfg, reg))
				fmt.Fprintln(out, "Enable one with `buddy use ability <name>`.")
			}
			return nil
		},
	}
}

func providerTable(ctx context.Context, cfg *config.Config, st *store.SQLiteStore) string {
	f := newFactory(cfg, st)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROVIDER", "MODEL", "SUMMARY MODEL", "KEY", "CURRENT")
	for _, name := range f.Known() {
		primary, summary := f.Models(name)
		key := "not needed"
		if f.NeedsKey(name) {
			key = "missing"
			if _, err := st.APIKey(ctx, name); err == nil {
				key = "available"
			}
		}
		current := ""
		if name == cfg.CurrentProvider() {
			current = "*"
		}
		t.Row(name, primary, summary, key, current)
	}
	return t.String()
}

// abilityRegistry builds a registry for listing only; nothing is instantiated.
func abilityRegistry(cfg *config.Config) (*capability.Registry, error) {
	return abilityBuilder().Build(capability.Env{Config: cfg, Logger: logger})
}

func abilityTable(cfg *config.Config, reg *capability.Registry) string {
	enabled := cfg.EnabledAbilities()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ABILITY", "DESCRIPTION", "ENABLED")
	for _, name := range reg.Names() {
		r, _ := reg.Registration(name)
		mark := ""
		if slices.Contains(enabled, name) {
			mark = "*"
		}
		t.Row(name, r.Description, mark)
	}
	return t.String()
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install [alias]",
		Short: "Link the buddy binary into ~/.local/bin under an alias",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := "buddy"
			if len(args) == 1 {
				alias = args[0]
			}
			if alias == "" || strings.ContainsAny(alias, `/\`) {
				return fmt.Errorf("invalid alias %q", alias)
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			if exe, err = filepath.EvalSymlinks(exe); err != nil {
				return err
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			binDir := filepath.Join(home, ".local", "bin")
			target, err := linkBinary(exe, binDir, alias)
			if err != nil {
				return err
			}
			success(fmt.Sprintf("Installed %s -> %s", target, exe))
			if !onPath(binDir) {
				warn(fmt.Sprintf("%s is not on your PATH", binDir))
			}
			return nil
		},
	}
}

// linkBinary symlinks exe as binDir/alias, replacing an existing symlink but
// never a regular file.
func linkBinary(exe, binDir, alias string) (string, error) {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", binDir, err)
	}
	target := filepath.Join(binDir, alias)
	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return "", fmt.Errorf("%s exists and is not a symlink", target)
		}
		if err := os.Remove(target); err != nil {
			return "", err
		}
	}
	if err := os.Symlink(exe, target); err != nil {
		return "", fmt.Errorf("link %s: %w", target, err)
	}
	return target, nil
}

func onPath(dir string) bool {
	return slices.Contains(filepath.SplitList(os.Getenv("PATH")), dir)
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.DBPath, store.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks yet.")
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("STARTED", "FLOW", "STATUS", "TURNS", "TOKENS", "TASK")
			for _, r := range runs {
				t.Row(
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.Variant,
					r.Status,
					fmt.Sprint(r.Iterations),
					fmt.Sprint(r.Usage.TotalTokens),
					shorten(r.Task, 60),
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of tasks to show")
	return cmd
}

func shorten(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func success(msg string) { fmt.Println(successStyle.Render(msg)) }
func warn(msg string)    { fmt.Fprintln(os.Stderr, warnStyle.Render("warning: "+msg)) }
