// Package lifecycle shares one retrieval engine per process. The first
// caller builds it; everyone else gets the same instance.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

// State is the manager's position in Uninitialized → Initializing → Ready.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Factory builds an engine. rag.New is the default.
type Factory func(ctx context.Context, cfg *config.Config) (*rag.Engine, error)

// Manager owns the lazily built engine.
type Manager struct {
	factory Factory
	logger  *slog.Logger
	group   singleflight.Group

	mu     sync.Mutex
	state  State
	engine *rag.Engine
	cfg    *config.Config
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithFactory replaces rag.New.
func WithFactory(f Factory) ManagerOption { return func(m *Manager) { m.factory = f } }

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) ManagerOption { return func(m *Manager) { m.logger = l } }

// NewManager returns an uninitialized Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		factory: func(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
			return rag.New(ctx, cfg)
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Get returns the engine, building it with cfg on first use. Concurrent
// first callers share one build. A failed build publishes nothing and the
// next call tries again. Once ready, a differing cfg is ignored with a
// warning.
func (m *Manager) Get(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	if cfg == nil {
		return nil, amerrors.InvalidConfig("engine requires a configuration")
	}
	if e := m.ready(cfg); e != nil {
		return e, nil
	}

	// the build outlives any single caller's context
	ch := m.group.DoChan("engine", func() (any, error) {
		return m.build(context.WithoutCancel(ctx), cfg)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e := res.Val.(*rag.Engine)
		// a caller that joined another's build may carry a different config
		m.warnIgnored(cfg)
		return e, nil
	}
}

func (m *Manager) ready(cfg *config.Config) *rag.Engine {
	m.mu.Lock()
	e := m.engine
	m.mu.Unlock()
	if e != nil {
		m.warnIgnored(cfg)
	}
	return e
}

func (m *Manager) build(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	m.mu.Lock()
	if m.engine != nil {
		e := m.engine
		m.mu.Unlock()
		return e, nil
	}
	m.state = StateInitializing
	m.mu.Unlock()

	e, err := m.factory(ctx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUninitialized
		m.logger.Error("engine_init_failed", slog.String("error", err.Error()))
		return nil, err
	}
	m.engine, m.cfg, m.state = e, cfg, StateReady
	return e, nil
}

// warnIgnored logs the engine settings in cfg that differ from the ones the
// live engine was built with.
func (m *Manager) warnIgnored(cfg *config.Config) {
	m.mu.Lock()
	active := m.cfg
	m.mu.Unlock()
	if active == nil || active == cfg {
		return
	}
	fields := active.Engine.Diff(cfg.Engine)
	if active.Paths.WorkingDir != cfg.Paths.WorkingDir {
		fields = append(fields, "working_dir")
	}
	if len(fields) == 0 {
		return
	}
	m.logger.Warn("engine_config_ignored",
		slog.Any("fields", fields),
		slog.String("working_dir", active.Paths.WorkingDir))
}

// Close closes the engine, if any, and returns the manager to
// Uninitialized.
func (m *Manager) Close() error {
	m.mu.Lock()
	e := m.engine
	m.engine, m.cfg, m.state = nil, nil, StateUninitialized
	m.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Close()
}

var defaultManager = NewManager()

// Instance returns the process-wide engine.
func Instance(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	return defaultManager.Get(ctx, cfg)
}

// Shutdown closes the process-wide engine.
func Shutdown() error { return defaultManager.Close() }
