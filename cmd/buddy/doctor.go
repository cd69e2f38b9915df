package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"buddy/internal/ability/browsing"
	"buddy/internal/browser"
	"buddy/internal/config"
	"buddy/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Buddy installation",
		Long: `Verifies that Buddy's configuration, provider, database, shell and
abilities are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			d := &doctor{out: out}
			fmt.Fprintf(out, "Buddy Doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err != nil {
				d.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				d.pass("Config file", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				d.fail("Config validation", err.Error())
				return d.summary()
			}
			d.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st, err := store.Open(cfg.Store.DBPath, store.Options{Logger: logger})
			if err != nil {
				d.fail("Database", err.Error())
			} else {
				defer st.Close()
				d.pass("Database", cfg.Store.DBPath)
				d.checkProvider(ctx, cfg, st)
			}

			if p, err := exec.LookPath(cfg.Shell.Shell); err != nil {
				d.fail("Shell", fmt.Sprintf("%s not found", cfg.Shell.Shell))
			} else {
				d.pass("Shell", p)
			}

			d.checkAbilities(cfg)

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					d.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					d.pass("Log file", cfg.General.LogFile)
				}
			}
			return d.summary()
		},
	}
}

type doctor struct {
	out                    io.Writer
	passed, warned, failed int
}

func (d *doctor) checkProvider(ctx context.Context, cfg *config.Config, st *store.SQLiteStore) {
	name := cfg.CurrentProvider()
	if name == "" {
		d.fail("Provider", "none selected, run `buddy use provider <name> [api_key]`")
		return
	}
	pc := cfg.Providers[name]
	if !pc.Enabled {
		d.fail("Provider: "+name, "disabled")
		return
	}
	if needsKey(cfg, st, name) {
		if _, err := st.APIKey(ctx, name); err != nil {
			d.fail("Provider: "+name, fmt.Sprintf("no API key, run `buddy use provider %s` or set %s", name, store.EnvKey(name)))
			return
		}
	}
	d.pass("Provider: "+name, pc.Model)
}

func (d *doctor) checkAbilities(cfg *config.Config) {
	reg, err := abilityRegistry(cfg)
	if err != nil {
		d.fail("Abilities", err.Error())
		return
	}
	for _, name := range cfg.EnabledAbilities() {
		if _, ok := reg.Registration(name); !ok {
			d.fail("Ability: "+name, "unknown ability")
			continue
		}
		if name == browsing.Name {
			if p, err := browser.Available(); err != nil {
				d.fail("Ability: "+name, "Google Chrome or Chromium not found on PATH")
			} else {
				d.pass("Ability: "+name, p)
			}
			continue
		}
		d.pass("Ability: "+name, "enabled")
	}
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.out, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		fmt.Fprintf(d.out, "\nPlease fix the failed checks before running Buddy.\n")
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	if d.warned > 0 {
		fmt.Fprintf(d.out, "\nBuddy should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(d.out, "\nAll checks passed! Buddy is ready to run.\n")
	}
	return nil
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}
