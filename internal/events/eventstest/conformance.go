// Package eventstest provides a conformance test suite for events.Provider
// implementations. Each implementation's test file calls RunProviderTests
// with its own factory function.
package eventstest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/copycat-emu/copycat/internal/events"
)

// RunProviderTests runs the core conformance suite against a Provider
// implementation. newProvider must return a fresh, empty provider and a
// cleanup closure.
func RunProviderTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("RecordAndListRoundTrip", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{
			Type:     events.FileCreated,
			Computer: 3,
			Actor:    events.ActorEngine,
			Subject:  "rom/startup.lua",
			Message:  "created by shell",
			Payload:  []byte(`{"size":12}`),
		})

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		e := got[0]
		if e.Type != events.FileCreated {
			t.Errorf("Type = %q, want %q", e.Type, events.FileCreated)
		}
		if e.Computer != 3 {
			t.Errorf("Computer = %d, want 3", e.Computer)
		}
		if e.Actor != events.ActorEngine {
			t.Errorf("Actor = %q, want %q", e.Actor, events.ActorEngine)
		}
		if e.Subject != "rom/startup.lua" {
			t.Errorf("Subject = %q, want %q", e.Subject, "rom/startup.lua")
		}
		if e.Message != "created by shell" {
			t.Errorf("Message = %q, want %q", e.Message, "created by shell")
		}
		if string(e.Payload) != `{"size":12}` {
			t.Errorf("Payload = %s, want %s", e.Payload, `{"size":12}`)
		}
	})

	t.Run("RecordAutoFillsSeq", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		for range 3 {
			p.Record(events.Event{Type: events.LabelChanged, Actor: events.ActorHost})
		}
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for i, e := range got {
			if e.Seq != uint64(i+1) {
				t.Errorf("event %d Seq = %d, want %d", i, e.Seq, i+1)
			}
		}
	})

	t.Run("RecordAutoFillsTimestamp", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		before := time.Now().Add(-time.Second)
		p.Record(events.Event{Type: events.ComputerStarted, Actor: events.ActorHost})
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].Ts.Before(before) {
			t.Errorf("Ts not filled: %+v", got)
		}
	})

	t.Run("RecordPreservesExplicitTimestamp", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		p.Record(events.Event{Type: events.ComputerStarted, Ts: ts})
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || !got[0].Ts.Equal(ts) {
			t.Errorf("Ts = %v, want %v", got, ts)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.FileCreated, Actor: events.ActorEngine, Subject: "a"})
		p.Record(events.Event{Type: events.EntryDeleted, Actor: events.ActorHost, Subject: "a"})
		p.Record(events.Event{Type: events.FileCreated, Actor: events.ActorHost, Subject: "b"})

		tests := []struct {
			name   string
			filter events.Filter
			want   int
		}{
			{"empty", events.Filter{}, 3},
			{"type", events.Filter{Type: events.FileCreated}, 2},
			{"actor", events.Filter{Actor: events.ActorHost}, 2},
			{"subject", events.Filter{Subject: "a"}, 2},
			{"after seq", events.Filter{AfterSeq: 2}, 1},
			{"combined", events.Filter{Type: events.FileCreated, Actor: events.ActorHost}, 1},
			{"since future", events.Filter{Since: time.Now().Add(time.Hour)}, 0},
			{"no match", events.Filter{Type: events.ArchiveImported}, 0},
		}
		for _, tt := range tests {
			got, err := p.List(tt.filter)
			if err != nil {
				t.Fatalf("%s: List: %v", tt.name, err)
			}
			if len(got) != tt.want {
				t.Errorf("%s: List returned %d events, want %d", tt.name, len(got), tt.want)
			}
		}
	})

	t.Run("ListEmptyProvider", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List returned %d events, want 0", len(got))
		}
	})

	t.Run("LatestSeq", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		if seq, err := p.LatestSeq(); err != nil || seq != 0 {
			t.Fatalf("LatestSeq() = %d, %v; want 0, nil", seq, err)
		}
		p.Record(events.Event{Type: events.ComputerStarted})
		p.Record(events.Event{Type: events.ComputerDisposed})
		if seq, err := p.LatestSeq(); err != nil || seq != 2 {
			t.Errorf("LatestSeq() = %d, %v; want 2, nil", seq, err)
		}
	})

	t.Run("WatchExistingEvents", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.FileCreated, Subject: "old"})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w, err := p.Watch(ctx, 0)
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer w.Close() //nolint:errcheck // test cleanup

		e, err := w.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.Subject != "old" {
			t.Errorf("Subject = %q, want %q", e.Subject, "old")
		}
	})

	t.Run("WatchAfterSeq", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.FileCreated, Subject: "old"})
		last, err := p.LatestSeq()
		if err != nil {
			t.Fatalf("LatestSeq: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w, err := p.Watch(ctx, last)
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer w.Close() //nolint:errcheck // test cleanup

		go func() {
			time.Sleep(50 * time.Millisecond)
			p.Record(events.Event{Type: events.FileCreated, Subject: "new"})
		}()

		e, err := w.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.Subject != "new" {
			t.Errorf("Subject = %q, want %q", e.Subject, "new")
		}
		if e.Seq <= last {
			t.Errorf("Seq = %d, want > %d", e.Seq, last)
		}
	})

	t.Run("WatchContextCancel", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		w, err := p.Watch(ctx, 0)
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer w.Close() //nolint:errcheck // test cleanup

		cancel()
		if _, err := w.Next(); !errors.Is(err, context.Canceled) {
			t.Errorf("Next after cancel = %v, want context.Canceled", err)
		}
	})

	t.Run("CloseNoError", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		if err := p.Close(); err != nil {
			t.Errorf("Close() = %v, want nil", err)
		}
	})
}

// RunConcurrencyTests runs concurrency-specific tests against providers
// whose goroutines share one instance.
func RunConcurrencyTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("ConcurrentRecordSafe", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		const goroutines = 10
		const perGoroutine = 10
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for range goroutines {
			go func() {
				defer wg.Done()
				for range perGoroutine {
					p.Record(events.Event{Type: events.FileCreated, Actor: events.ActorEngine})
				}
			}()
		}
		wg.Wait()

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		total := goroutines * perGoroutine
		if len(got) != total {
			t.Errorf("List returned %d events, want %d", len(got), total)
		}
		seen := make(map[uint64]bool, total)
		for _, e := range got {
			if seen[e.Seq] {
				t.Errorf("duplicate seq: %d", e.Seq)
			}
			seen[e.Seq] = true
		}
	})
}
