// Package persisttest provides a conformance test suite for durable
// persist.Backend implementations.
package persisttest

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/copycat-emu/copycat/internal/persist"
)

// RunBackendTests runs the suite. newBackend must return a fresh backend
// for computer id; two calls with the same id inside one subtest must
// share state, and different ids must not.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) func(id int) persist.Backend) {
	t.Helper()

	t.Run("LabelRoundTrip", func(t *testing.T) {
		b := newBackend(t)(0)
		if got := b.Label(); got != "" {
			t.Errorf("Label on fresh backend = %q, want empty", got)
		}
		b.SetLabel("turtle")
		if got := b.Label(); got != "turtle" {
			t.Errorf("Label = %q, want %q", got, "turtle")
		}
		b.SetLabel("")
		if got := b.Label(); got != "" {
			t.Errorf("Label after clear = %q, want empty", got)
		}
	})

	t.Run("ContentsRoundTrip", func(t *testing.T) {
		b := newBackend(t)(0)
		for _, data := range [][]byte{
			[]byte("print('hi')"),
			[]byte("héllo ☃"),
			{0x00, 0xff, 0x80, 0x7f, 0xc3},
		} {
			b.SetContents("rom/a.lua", data)
			if got := b.Contents("rom/a.lua"); !bytes.Equal(got, data) {
				t.Errorf("Contents = %v, want %v", got, data)
			}
		}
		b.RemoveContents("rom/a.lua")
		if got := b.Contents("rom/a.lua"); len(got) != 0 {
			t.Errorf("Contents after remove = %v, want empty", got)
		}
	})

	t.Run("ChildrenRoundTrip", func(t *testing.T) {
		b := newBackend(t)(0)
		if _, ok := b.Children(""); ok {
			t.Error("fresh root listing reported present")
		}
		b.SetChildren("", []string{"rom", "startup.lua"})
		got, ok := b.Children("")
		if !ok || !reflect.DeepEqual(got, []string{"rom", "startup.lua"}) {
			t.Errorf("Children = (%v, %v), want ([rom startup.lua], true)", got, ok)
		}
		b.SetChildren("empty", nil)
		if got, ok := b.Children("empty"); !ok || len(got) != 0 {
			t.Errorf("empty listing = (%v, %v), want ([], true)", got, ok)
		}
		b.RemoveChildren("")
		if _, ok := b.Children(""); ok {
			t.Error("listing present after remove")
		}
	})

	t.Run("AttributesRoundTrip", func(t *testing.T) {
		b := newBackend(t)(0)
		want := persist.Attributes{Creation: 1700000000000, Modification: 1700000001234}
		b.SetAttributes("a.txt", want)
		got, ok := b.Attributes("a.txt")
		if !ok || got != want {
			t.Errorf("Attributes = (%+v, %v), want (%+v, true)", got, ok, want)
		}
		b.RemoveAttributes("a.txt")
		if _, ok := b.Attributes("a.txt"); ok {
			t.Error("attributes present after remove")
		}
	})

	t.Run("ComputersIsolated", func(t *testing.T) {
		open := newBackend(t)
		b0, b1 := open(0), open(1)
		b0.SetLabel("zero")
		b0.SetContents("x", []byte("0"))
		b0.SetChildren("", []string{"x"})
		b0.SetAttributes("x", persist.Attributes{Creation: 1})

		if got := b1.Label(); got != "" {
			t.Errorf("computer 1 label = %q, want empty", got)
		}
		if got := b1.Contents("x"); len(got) != 0 {
			t.Errorf("computer 1 contents = %q, want empty", got)
		}
		if _, ok := b1.Children(""); ok {
			t.Error("computer 1 sees computer 0 listing")
		}
		if _, ok := b1.Attributes("x"); ok {
			t.Error("computer 1 sees computer 0 attributes")
		}
		if got := open(0).Label(); got != "zero" {
			t.Errorf("reopened computer 0 label = %q, want %q", got, "zero")
		}
	})
}
