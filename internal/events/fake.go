package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Fake is an in-memory [Provider] for testing. It captures all recorded
// events in the Events slice. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	Events []Event
	seq    uint64
	wake   chan struct{} // closed and replaced on every Record
}

// NewFake returns a ready-to-use [Fake] recorder.
func NewFake() *Fake {
	return &Fake{wake: make(chan struct{})}
}

// Record appends the event, filling Seq and a zero Ts.
func (f *Fake) Record(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.Seq = f.seq
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	f.Events = append(f.Events, e)
	if f.wake != nil {
		close(f.wake)
	}
	f.wake = make(chan struct{})
}

// Types returns the recorded event types in order.
func (f *Fake) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Type
	}
	return out
}

// List returns the recorded events matching filter.
func (f *Fake) List(filter Filter) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.Events {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// LatestSeq returns the sequence number of the last recorded event.
func (f *Fake) LatestSeq() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq, nil
}

// Watch streams recorded events after afterSeq.
func (f *Fake) Watch(ctx context.Context, afterSeq uint64) (Watcher, error) {
	return &fakeWatcher{f: f, ctx: ctx, after: afterSeq}, nil
}

// Close is a no-op.
func (f *Fake) Close() error { return nil }

type fakeWatcher struct {
	f     *Fake
	ctx   context.Context
	after uint64
}

func (w *fakeWatcher) Next() (Event, error) {
	for {
		if err := w.ctx.Err(); err != nil {
			return Event{}, err
		}
		w.f.mu.Lock()
		for _, e := range w.f.Events {
			if e.Seq > w.after {
				w.after = e.Seq
				w.f.mu.Unlock()
				return e, nil
			}
		}
		if w.f.wake == nil {
			w.f.wake = make(chan struct{})
		}
		wake := w.f.wake
		w.f.mu.Unlock()

		select {
		case <-wake:
		case <-w.ctx.Done():
			return Event{}, w.ctx.Err()
		}
	}
}

func (w *fakeWatcher) Close() error { return nil }

// ErrFake is returned by every read of a [FailFake].
var ErrFake = errors.New("events: fake failure")

// FailFake is a Provider whose reads always fail. Record drops events.
type FailFake struct{}

func (FailFake) Record(Event)                 {}
func (FailFake) List(Filter) ([]Event, error) { return nil, ErrFake }
func (FailFake) LatestSeq() (uint64, error)   { return 0, ErrFake }
func (FailFake) Close() error                 { return nil }

func (FailFake) Watch(context.Context, uint64) (Watcher, error) {
	return nil, ErrFake
}

var (
	_ Provider = (*FileRecorder)(nil)
	_ Provider = (*Fake)(nil)
	_ Provider = FailFake{}
)
