// Package kvstoretest provides a conformance test suite for kvstore.Store
// implementations. Each implementation's test file calls RunStoreTests
// with its own factory function.
package kvstoretest

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/copycat-emu/copycat/internal/kvstore"
)

// RunStoreTests runs the full conformance suite against a Store
// implementation. The newStore function must return a fresh, empty store
// for each call.
func RunStoreTests(t *testing.T, newStore func() kvstore.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore()
		v, ok, err := s.Get("computer[0].label")
		if err != nil {
			t.Fatal(err)
		}
		if ok || v != "" {
			t.Errorf("Get(missing) = (%q, %v), want (\"\", false)", v, ok)
		}
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := newStore()
		if err := s.Set("computer[0].label", "turtle"); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.Get("computer[0].label")
		if err != nil {
			t.Fatal(err)
		}
		if !ok || v != "turtle" {
			t.Errorf("Get = (%q, %v), want (%q, true)", v, ok, "turtle")
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		s := newStore()
		for _, v := range []string{"a", "b"} {
			if err := s.Set("k", v); err != nil {
				t.Fatal(err)
			}
		}
		v, _, err := s.Get("k")
		if err != nil {
			t.Fatal(err)
		}
		if v != "b" {
			t.Errorf("Get = %q, want %q", v, "b")
		}
	})

	t.Run("EmptyValueIsPresent", func(t *testing.T) {
		s := newStore()
		if err := s.Set("k", ""); err != nil {
			t.Fatal(err)
		}
		_, ok, err := s.Get("k")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Error("empty value reported absent")
		}
	})

	t.Run("PreservesUnicode", func(t *testing.T) {
		s := newStore()
		want := "héllo wörld ☃"
		if err := s.Set("k", want); err != nil {
			t.Fatal(err)
		}
		v, _, err := s.Get("k")
		if err != nil {
			t.Fatal(err)
		}
		if v != want {
			t.Errorf("Get = %q, want %q", v, want)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore()
		if err := s.Set("k", "v"); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove("k"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.Get("k"); ok {
			t.Error("key still present after Remove")
		}
	})

	t.Run("RemoveMissingIsNoop", func(t *testing.T) {
		s := newStore()
		if err := s.Remove("nope"); err != nil {
			t.Errorf("Remove(missing) = %v, want nil", err)
		}
	})

	t.Run("KeysPrefixSorted", func(t *testing.T) {
		s := newStore()
		for _, k := range []string{
			"computer[1].label",
			"computer[0].files[b].b64",
			"computer[0].files[a].b64",
			"computer[0].label",
			"settings",
		} {
			if err := s.Set(k, "x"); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.Keys("computer[0].")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{
			"computer[0].files[a].b64",
			"computer[0].files[b].b64",
			"computer[0].label",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Keys = %v, want %v", got, want)
		}
	})

	t.Run("KeysPrefixIsLiteral", func(t *testing.T) {
		s := newStore()
		for _, k := range []string{"a_b", "axb", "a%c"} {
			if err := s.Set(k, "x"); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.Keys("a_")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"a_b"}) {
			t.Errorf("Keys(%q) = %v, want [a_b]", "a_", got)
		}
		got, err = s.Keys("a%")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"a%c"}) {
			t.Errorf("Keys(%q) = %v, want [a%%c]", "a%", got)
		}
	})

	t.Run("KeysEmpty", func(t *testing.T) {
		s := newStore()
		got, err := s.Keys("computer[")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("Keys on empty store = %v, want none", got)
		}
	})

	t.Run("ConcurrentSetRemove", func(t *testing.T) {
		s := newStore()
		RunConcurrentWrites(t, s)
		keys, err := s.Keys("computer[")
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != ConcurrentWriters*ConcurrentKeys {
			t.Errorf("Keys after concurrent writes = %d keys, want %d", len(keys), ConcurrentWriters*ConcurrentKeys)
		}
	})
}

// Sizes used by RunConcurrentWrites.
const (
	ConcurrentWriters = 8
	ConcurrentKeys    = 25
)

// RunConcurrentWrites drives s from ConcurrentWriters goroutines. Each
// writer sets ConcurrentKeys label keys under its own computer and sets
// then removes a scratch key after each one. Any Set or Remove error
// fails the test. When it returns, exactly the label keys remain.
func RunConcurrentWrites(t *testing.T, s kvstore.Store) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, ConcurrentWriters)
	for w := range ConcurrentWriters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ConcurrentKeys {
				key := fmt.Sprintf("computer[%d].files[f%d].b64", w, i)
				if err := s.Set(key, fmt.Sprint(i)); err != nil {
					errs <- err
					return
				}
				scratch := fmt.Sprintf("scratch[%d]", w)
				if err := s.Set(scratch, "x"); err != nil {
					errs <- err
					return
				}
				if err := s.Remove(scratch); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write: %v", err)
	}
}
