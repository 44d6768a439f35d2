package kvstore_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/kvstore/kvstoretest"
)

// failingStore fails every operation after the first n successful ones.
type failingStore struct {
	*kvstore.MemStore
	n int
}

var errBroken = errors.New("quota exceeded")

func (f *failingStore) Set(key, value string) error {
	if f.n <= 0 {
		return errBroken
	}
	f.n--
	return f.MemStore.Set(key, value)
}

func TestGuard(t *testing.T) {
	kvstoretest.RunStoreTests(t, func() kvstore.Store {
		return kvstore.NewGuard(kvstore.NewMemStore())
	})
}

func TestGuardDisablesAfterFirstError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inner := &failingStore{MemStore: kvstore.NewMemStore(), n: 1}

	var hookCalls int
	g := kvstore.NewGuard(inner,
		kvstore.WithGuardLogger(zap.New(core)),
		kvstore.WithFailureHook(func(op string, err error) {
			hookCalls++
			if op != "set" || !errors.Is(err, errBroken) {
				t.Errorf("hook(%q, %v), want (set, errBroken)", op, err)
			}
		}))

	if err := g.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := g.Set("b", "2"); err != nil {
		t.Errorf("Set on failing store = %v, want nil (swallowed)", err)
	}
	if !g.Disabled() {
		t.Fatal("guard not disabled after failure")
	}

	// Reads now report absent even though the inner store has "a".
	if _, ok, _ := g.Get("a"); ok {
		t.Error("Get on disabled guard reported present")
	}
	if keys, _ := g.Keys(""); len(keys) != 0 {
		t.Errorf("Keys on disabled guard = %v, want none", keys)
	}
	// Further failures are not reported again.
	if err := g.Set("c", "3"); err != nil {
		t.Fatal(err)
	}

	if hookCalls != 1 {
		t.Errorf("failure hook called %d times, want 1", hookCalls)
	}
	if n := logs.Len(); n != 1 {
		t.Errorf("logged %d entries, want 1", n)
	}
}
