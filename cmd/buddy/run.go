package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"buddy/internal/ability"
	"buddy/internal/capability"
	"buddy/internal/config"
	"buddy/internal/domain"
	"buddy/internal/flow"
	"buddy/internal/metrics"
	"buddy/internal/model"
	"buddy/internal/provider"
	"buddy/internal/store"
	"buddy/internal/terminal"
	"buddy/internal/tool"
)

// runtime is everything a command needs to talk to the model.
type runtime struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	console  *terminal.Console
	factory  *provider.Factory
	client   *model.Client // nil when no provider could be created
	model    string
	metrics  *metrics.Run
	runner   *tool.Runner
	registry *capability.Registry
}

// newRuntime loads config, opens the store and builds the capability
// registry. With needModel the current provider must resolve; otherwise a
// provider error only leaves client nil.
func newRuntime(ctx context.Context, needModel bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.DBPath, store.Options{AuditLog: cfg.Store.AuditLog, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		store:   st,
		console: terminal.New(terminal.Config{In: os.Stdin, Out: os.Stdout, Logger: logger}),
		factory: newFactory(cfg, st),
		metrics: metrics.NewRun(),
	}
	rt.runner = tool.NewRunner(tool.RunnerConfig{
		Shell:   cfg.Shell.Shell,
		Timeout: time.Duration(cfg.Shell.TimeoutSeconds) * time.Second,
		Echo:    rt.console.Output,
		Logger:  logger,
	})

	prov, err := rt.factory.Get(ctx, "")
	switch {
	case err == nil:
		primary, summary := rt.factory.Models("")
		rt.model = primary
		rt.client, err = model.New(model.Config{
			Provider:         prov,
			Model:            primary,
			SummaryModel:     summary,
			SummaryThreshold: cfg.General.SummaryThreshold,
			Metrics:          rt.metrics,
			Logger:           logger,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
	case needModel:
		rt.Close()
		return nil, err
	default:
		logger.Debug("no model available", "err", err)
	}

	rt.registry, err = abilityBuilder().Build(capability.Env{
		Model:    rt.client,
		Operator: rt.console,
		Runner:   rt.runner,
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func newFactory(cfg *config.Config, st *store.SQLiteStore) *provider.Factory {
	return provider.NewFactory(cfg, st, logger)
}

func abilityBuilder() *capability.Builder {
	return ability.Register(capability.NewBuilder())
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		logger.Warn("store close failed", "err", err)
	}
}

// capabilities enables the configured abilities in order. One that fails to
// enable is left out of the flow with a warning.
func (rt *runtime) capabilities(ctx context.Context) ([]domain.Capability, error) {
	var caps []domain.Capability
	for _, name := range rt.cfg.EnabledAbilities() {
		ok, err := rt.registry.Enable(ctx, name, nil)
		if err != nil {
			return nil, fmt.Errorf("ability %s: %w", name, err)
		}
		if !ok {
			rt.console.Warn(fmt.Sprintf("The %s ability could not be enabled and is skipped", name))
			continue
		}
		c, _ := rt.registry.Get(name)
		caps = append(caps, c)
	}
	return caps, nil
}

func runTask(ctx context.Context, variant flow.Variant, task string) error {
	rt, err := newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	caps, err := rt.capabilities(ctx)
	if err != nil {
		return err
	}

	f, err := flow.New(flow.Config{
		Variant:       variant,
		Model:         rt.client,
		Capabilities:  caps,
		Console:       rt.console,
		Runner:        rt.runner,
		MaxIterations: rt.cfg.General.MaxIterations,
		Audit:         rt.store,
		Runs:          rt.store,
		RunID:         store.NewRunID(),
		ModelName:     rt.model,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("task started", "variant", variant.String(), "provider", rt.client.ProviderName(), "abilities", len(caps))
	res, err := f.Execute(ctx, task)
	if showStats {
		if werr := rt.metrics.WriteSummary(os.Stderr); werr != nil {
			logger.Warn("stats not written", "err", werr)
		}
	}
	if err != nil {
		return err
	}
	logger.Info("task finished", "status", res.Status.String(), "iterations", res.Iterations, "tokens", res.Usage.TotalTokens)
	if res.Status == flow.Failed {
		return errTaskFailed
	}
	return nil
}
