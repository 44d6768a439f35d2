package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/telemetry"
)

// ErrRuntimeLoad is wrapped by every error a Registry returns after the
// engine failed to load. A failed registry never retries.
var ErrRuntimeLoad = errors.New("failed to load computer runtime")

// ErrNoLoader is returned by Start on a registry with no loader.
var ErrNoLoader = errors.New("no engine runtime registered")

// Loader fetches and prepares the engine runtime. It is the only
// blocking step of a load and runs at most once per Registry.
type Loader func(ctx context.Context) (*Bundle, error)

// State is the load state of a Registry.
type State int

// Registry load states.
const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Registry loads the engine runtime on first use and attaches computers
// to it. Concurrent Start calls share one load. Safe for concurrent use.
type Registry struct {
	log *zap.Logger

	mu      sync.Mutex
	loader  Loader
	state   State
	done    chan struct{} // closed when the in-flight load finishes
	add     AddComputer
	version string
	err     error
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*Registry)

// WithLogger sets the logger the first load failure is reported to.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an unloaded registry that will use loader.
func NewRegistry(loader Loader, opts ...RegistryOption) *Registry {
	r := &Registry{loader: loader, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry(nil) })
	return defaultRegistry
}

// Register installs loader as the runtime of the process-wide registry.
// Engines call it from an init function. It has no effect once a load
// has begun.
func Register(loader Loader) {
	Default().SetLoader(loader)
}

// SetLoader replaces the loader if no load has begun.
func (r *Registry) SetLoader(loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Unloaded {
		r.loader = loader
	}
}

// SetLogger replaces the logger.
func (r *Registry) SetLogger(l *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = l
}

// State returns the current load state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Version returns the engine version once loaded.
func (r *Registry) Version() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Start attaches access to the engine, loading the runtime first if this
// is the first call. config is handed to the engine entry point by the
// call that triggers the load. The load itself is detached from ctx; a
// cancelled ctx only stops this caller from waiting.
func (r *Registry) Start(ctx context.Context, access Access, config ConfigFactory) (Handler, error) {
	for {
		r.mu.Lock()
		switch r.state {
		case Ready:
			add := r.add
			r.mu.Unlock()
			return add(access), nil
		case Failed:
			err := r.err
			r.mu.Unlock()
			return nil, err
		case Unloaded:
			if r.loader == nil {
				r.mu.Unlock()
				return nil, ErrNoLoader
			}
			r.state = Loading
			r.done = make(chan struct{})
			go r.load(context.WithoutCancel(ctx), r.loader, config)
		}
		done := r.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// load runs the loader and the engine entry point, then releases waiters.
func (r *Registry) load(ctx context.Context, loader Loader, config ConfigFactory) {
	start := time.Now()
	add, version, err := runLoad(ctx, loader, config)
	telemetry.RecordEngineLoad(ctx, version, float64(time.Since(start).Microseconds())/1000, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = Failed
		r.err = fmt.Errorf("%w: %w", ErrRuntimeLoad, err)
		r.log.Error("cannot load computer runtime", zap.Error(err))
	} else {
		r.state = Ready
		r.add = add
		r.version = version
	}
	close(r.done)
}

func runLoad(ctx context.Context, loader Loader, config ConfigFactory) (add AddComputer, version string, err error) {
	defer func() {
		if p := recover(); p != nil {
			add, err = nil, fmt.Errorf("engine panicked: %v", p)
		}
	}()

	bundle, err := loader(ctx)
	if err != nil {
		return nil, "", err
	}
	if bundle == nil || bundle.Module == nil {
		return nil, "", errors.New("loader returned no module")
	}

	var slot setupSlot
	cb := &Callbacks{
		Config:    config,
		Setup:     slot.set,
		Version:   bundle.Version,
		Resources: bundle.Resources,
	}
	err = bundle.Module.Main(cb)
	registered := slot.close()
	if err != nil {
		return nil, bundle.Version, fmt.Errorf("engine entry point: %w", err)
	}
	if registered == nil {
		return nil, bundle.Version, errors.New("setup callback was never called")
	}
	return registered, bundle.Version, nil
}

// setupSlot holds the AddComputer an engine registers through
// Callbacks.Setup. The engine may call Setup from any goroutine; calls
// after Main has returned are ignored.
type setupSlot struct {
	mu     sync.Mutex
	add    AddComputer
	closed bool
}

func (s *setupSlot) set(a AddComputer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.add = a
	}
}

// close stops accepting registrations and returns the one made, if any.
func (s *setupSlot) close() AddComputer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.add
}
