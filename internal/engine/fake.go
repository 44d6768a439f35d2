package engine

import (
	"context"
	"strconv"
	"sync"
)

// Fake is an in-memory engine for testing. It is both the loaded Module
// and the factory of the FakeHandlers it attaches. Configure the exported
// fields before the first Start. Safe for concurrent use.
type Fake struct {
	// LoadErr, when set, is returned by the loader.
	LoadErr error
	// MainErr, when set, is returned by Main.
	MainErr error
	// SkipSetup makes Main return without calling Setup.
	SkipSetup bool
	// Gate, when non-nil, blocks the loader until it is closed.
	Gate chan struct{}
	// Version and Resources are reported in the bundle.
	Version   string
	Resources map[string][]byte
	// Configure, when set, is run by Main with the callbacks before
	// Setup, letting tests register config properties.
	Configure func(cb *Callbacks)

	mu        sync.Mutex
	loadCalls int
	mainCalls int
	handlers  []*FakeHandler
	callbacks *Callbacks
}

// NewFake returns a Fake engine reporting version "fake".
func NewFake() *Fake {
	return &Fake{Version: "fake"}
}

// Loader returns a Loader producing this Fake.
func (f *Fake) Loader() Loader {
	return func(ctx context.Context) (*Bundle, error) {
		f.mu.Lock()
		f.loadCalls++
		gate := f.Gate
		f.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if f.LoadErr != nil {
			return nil, f.LoadErr
		}
		return &Bundle{Module: f, Version: f.Version, Resources: f.Resources}, nil
	}
}

// Main records the call and registers the Fake's attach function.
func (f *Fake) Main(cb *Callbacks) error {
	f.mu.Lock()
	f.mainCalls++
	f.callbacks = cb
	f.mu.Unlock()

	if f.Configure != nil {
		f.Configure(cb)
	}
	if f.MainErr != nil {
		return f.MainErr
	}
	if !f.SkipSetup {
		cb.Setup(f.attach)
	}
	return nil
}

func (f *Fake) attach(a Access) Handler {
	h := &FakeHandler{Access: a}
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return h
}

// LoadCalls returns how many times the loader ran.
func (f *Fake) LoadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCalls
}

// MainCalls returns how many times the entry point ran.
func (f *Fake) MainCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mainCalls
}

// Handlers returns the handlers attached so far, in attach order.
func (f *Fake) Handlers() []*FakeHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandler(nil), f.handlers...)
}

// Callbacks returns the callbacks Main received, or nil before Main.
func (f *Fake) Callbacks() *Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks
}

// HandlerCall records one call on a FakeHandler.
type HandlerCall struct {
	Method string
	Args   []string
}

// FakeHandler is a spy Handler. Access is the computer it was attached
// with.
type FakeHandler struct {
	Access Access

	mu    sync.Mutex
	calls []HandlerCall
}

func (h *FakeHandler) record(method string, args ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, HandlerCall{Method: method, Args: args})
}

// Calls returns a copy of the recorded calls.
func (h *FakeHandler) Calls() []HandlerCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HandlerCall(nil), h.calls...)
}

// Methods returns the recorded method names in call order.
func (h *FakeHandler) Methods() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.Method
	}
	return out
}

func (h *FakeHandler) SetLabel(label string)            { h.record("SetLabel", label) }
func (h *FakeHandler) Event(name string, args []string) { h.record("Event", append([]string{name}, args...)...) }
func (h *FakeHandler) Shutdown()                        { h.record("Shutdown") }
func (h *FakeHandler) TurnOn()                          { h.record("TurnOn") }
func (h *FakeHandler) Reboot()                          { h.record("Reboot") }
func (h *FakeHandler) Dispose()                         { h.record("Dispose") }
func (h *FakeHandler) SetPeripheral(side, kind string)  { h.record("SetPeripheral", side, kind) }
func (h *FakeHandler) Resize(width, height int) {
	h.record("Resize", strconv.Itoa(width), strconv.Itoa(height))
}

var (
	_ Module  = (*Fake)(nil)
	_ Handler = (*FakeHandler)(nil)
)
