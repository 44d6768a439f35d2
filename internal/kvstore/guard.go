package kvstore

import (
	"sync"

	"go.uber.org/zap"
)

// Guard wraps a Store and turns it off after its first failure. Once
// disabled, reads report absent and writes are dropped, so a broken
// backend degrades the session to non-durable instead of failing every
// filesystem operation. The failure is logged once.
type Guard struct {
	inner  Store
	log    *zap.Logger
	onFail func(op string, err error)

	mu       sync.Mutex
	disabled bool
}

// GuardOption configures NewGuard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger the guard reports its failure to.
func WithGuardLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) { g.log = l }
}

// WithFailureHook registers fn to run once when the guard disables
// itself.
func WithFailureHook(fn func(op string, err error)) GuardOption {
	return func(g *Guard) { g.onFail = fn }
}

// NewGuard wraps inner.
func NewGuard(inner Store, opts ...GuardOption) *Guard {
	g := &Guard{inner: inner, log: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Disabled reports whether the guard has turned the store off.
func (g *Guard) Disabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}

func (g *Guard) enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.disabled
}

// fail disables the guard. Only the first failure is reported.
func (g *Guard) fail(op, key string, err error) {
	g.mu.Lock()
	first := !g.disabled
	g.disabled = true
	g.mu.Unlock()
	if !first {
		return
	}
	g.log.Error("storage failed, persistence disabled for this session",
		zap.String("op", op), zap.String("key", key), zap.Error(err))
	if g.onFail != nil {
		g.onFail(op, err)
	}
}

// Get returns the stored value, or absent once disabled.
func (g *Guard) Get(key string) (string, bool, error) {
	if !g.enabled() {
		return "", false, nil
	}
	v, ok, err := g.inner.Get(key)
	if err != nil {
		g.fail("get", key, err)
		return "", false, nil
	}
	return v, ok, nil
}

// Set writes through unless disabled.
func (g *Guard) Set(key, value string) error {
	if !g.enabled() {
		return nil
	}
	if err := g.inner.Set(key, value); err != nil {
		g.fail("set", key, err)
	}
	return nil
}

// Remove deletes through unless disabled.
func (g *Guard) Remove(key string) error {
	if !g.enabled() {
		return nil
	}
	if err := g.inner.Remove(key); err != nil {
		g.fail("remove", key, err)
	}
	return nil
}

// Keys lists keys, or nothing once disabled.
func (g *Guard) Keys(prefix string) ([]string, error) {
	if !g.enabled() {
		return nil, nil
	}
	keys, err := g.inner.Keys(prefix)
	if err != nil {
		g.fail("keys", prefix, err)
		return nil, nil
	}
	return keys, nil
}

// Close closes the wrapped store.
func (g *Guard) Close() error {
	return g.inner.Close()
}

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*Guard)(nil)
)
