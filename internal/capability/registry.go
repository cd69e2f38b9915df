// Package capability holds the catalogue of pluggable capabilities. A Builder
// collects registrations once at startup and produces an immutable Registry;
// instances are created lazily on first lookup and cached.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"buddy/internal/config"
	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/tool"
)

// ErrUnknownCapability is returned for a name that was never registered.
var ErrUnknownCapability = errors.New("unknown capability")

// UnknownActionError is returned when a capability has no action by that name.
type UnknownActionError struct {
	Capability string
	Action     string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("capability %s has no action %q", e.Capability, e.Action)
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// reservedNames would make a qualified action name collide with a built-in
// tool ("execute_command", "end_process", "provide_*").
var reservedNames = []string{"execute", "end", "provide"}

// Env is what a capability may use when it is instantiated.
type Env struct {
	Model    *model.Client
	Operator domain.Operator
	Runner   *tool.Runner
	Config   *config.Config
	Logger   *slog.Logger
}

// Registration describes a capability before it is instantiated.
type Registration struct {
	Name        string
	Description string
	EnableArgs  tool.Args // arguments accepted by `use ability`
	New         func(Env) (domain.Capability, error)
}

// Builder accumulates registrations. Errors are collected and reported by Build.
type Builder struct {
	regs []Registration
	errs []error
}

func NewBuilder() *Builder { return &Builder{} }

// Register adds r. Invalid or duplicate registrations are programmer errors
// and make Build fail.
func (b *Builder) Register(r Registration) *Builder {
	switch {
	case !namePattern.MatchString(r.Name):
		b.errs = append(b.errs, fmt.Errorf("capability %q: name must match %s", r.Name, namePattern))
	case slices.Contains(reservedNames, r.Name):
		b.errs = append(b.errs, fmt.Errorf("capability %q: name is reserved", r.Name))
	case r.New == nil:
		b.errs = append(b.errs, fmt.Errorf("capability %q: no constructor", r.Name))
	case slices.ContainsFunc(b.regs, func(o Registration) bool { return o.Name == r.Name }):
		b.errs = append(b.errs, fmt.Errorf("capability %q: registered twice", r.Name))
	default:
		b.regs = append(b.regs, r)
	}
	return b
}

// Build returns the registry, or every registration error joined.
func (b *Builder) Build(env Env) (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	r := &Registry{
		regs:   make(map[string]Registration, len(b.regs)),
		cache:  make(map[string]domain.Capability),
		env:    env,
		logger: env.Logger,
	}
	for _, reg := range b.regs {
		r.regs[reg.Name] = reg
		r.order = append(r.order, reg.Name)
	}
	return r, nil
}

// Registry maps capability names to registrations and live instances.
type Registry struct {
	regs   map[string]Registration
	order  []string
	env    Env
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]domain.Capability
}

// Names lists registered capabilities in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Registration returns the metadata registered under name.
func (r *Registry) Registration(name string) (Registration, bool) {
	reg, ok := r.regs[name]
	return reg, ok
}

// Get returns the instance for name, creating it on first use.
func (r *Registry) Get(name string) (domain.Capability, error) {
	reg, ok := r.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[name]; ok {
		return c, nil
	}

	c, err := reg.New(r.env)
	if err != nil {
		return nil, fmt.Errorf("capability %s: %w", name, err)
	}
	if c.Name() != name {
		return nil, fmt.Errorf("capability %s: instance reports name %q", name, c.Name())
	}
	if len(c.Actions()) == 0 {
		r.logger.Warn("capability has no actions", "capability", name)
	}
	r.cache[name] = c
	r.logger.Debug("capability instantiated", "capability", name, "actions", len(c.Actions()))
	return c, nil
}

// Enable instantiates name and runs its setup.
func (r *Registry) Enable(ctx context.Context, name string, args map[string]string) (bool, error) {
	c, err := r.Get(name)
	if err != nil {
		return false, err
	}
	ok := c.Enable(ctx, args)
	r.logger.Debug("capability enable", "capability", name, "ok", ok)
	return ok, nil
}

// Disable runs the teardown of name.
func (r *Registry) Disable(ctx context.Context, name string) error {
	c, err := r.Get(name)
	if err != nil {
		return err
	}
	c.Disable(ctx)
	return nil
}

// Enabled resolves the given names in order. An unknown name is a
// configuration error.
func (r *Registry) Enabled(names []string) ([]domain.Capability, error) {
	caps := make([]domain.Capability, 0, len(names))
	for _, n := range names {
		c, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// --- Qualified names ---

// QualifiedName is the tool name under which action of capability is offered.
func QualifiedName(capability, action string) string {
	return capability + "_" + action
}

// SplitQualified reverses QualifiedName. Capability names contain no
// underscore, so the first one is the delimiter.
func SplitQualified(name string) (capability, action string, ok bool) {
	capability, action, ok = strings.Cut(name, "_")
	if !ok || capability == "" || action == "" {
		return "", "", false
	}
	return capability, action, true
}

// Reserved reports whether name is a built-in tool prefix that no capability
// may use.
func Reserved(name string) bool { return slices.Contains(reservedNames, name) }

// Tools returns the action definitions of c under their qualified names.
func Tools(c domain.Capability) []domain.ToolDefinition {
	actions := c.Actions()
	defs := make([]domain.ToolDefinition, 0, len(actions))
	for _, a := range actions {
		def := a.Definition
		def.Name = QualifiedName(c.Name(), a.Name())
		defs = append(defs, def)
	}
	return defs
}

// Call dispatches action of c with args.
func Call(ctx context.Context, c domain.Capability, action string, args map[string]any) (string, error) {
	for _, a := range c.Actions() {
		if a.Name() == action {
			return a.Handler(ctx, args)
		}
	}
	return "", &UnknownActionError{Capability: c.Name(), Action: action}
}
