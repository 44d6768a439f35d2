// Package bridge connects a host to one computer running inside the
// engine.
//
// A [Computer] owns the computer's virtual filesystem and terminal
// buffer. It is handed to the engine as its [engine.Access] capability
// and exposes the host-side lifecycle: start, power, events and
// disposal. Host calls made before the engine attaches are dropped,
// except for the initial size and label, which Start applies on attach.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/engine"
	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/telemetry"
	"github.com/copycat-emu/copycat/internal/terminal"
	"github.com/copycat-emu/copycat/internal/vfs"
)

// StartupFile is the program the engine runs at boot.
const StartupFile = "startup.lua"

// ErrDisposed is returned by Start on a disposed computer.
var ErrDisposed = errors.New("computer has been disposed")

// ErrStarted is returned by Start when the computer was already started.
var ErrStarted = errors.New("computer already started")

// State is the host-visible lifecycle state of a Computer.
type State int

// Computer states.
const (
	Unloaded State = iota
	Loading
	Off
	On
	Disposed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Off:
		return "off"
	case On:
		return "on"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StartOptions are applied once the engine attaches. Width and Height
// are used only when both are positive.
type StartOptions struct {
	Width  int
	Height int
	// Label is used when the computer has no stored label.
	Label string
}

// Computer is one emulated computer. Safe for concurrent use.
type Computer struct {
	id       int
	backend  persist.Backend
	fs       *vfs.FileSystem
	term     *terminal.Buffer
	registry *engine.Registry
	log      *zap.Logger
	rec      events.Recorder
	onState  func(label string, on bool)
	clock    func() time.Time

	mu       sync.Mutex
	state    State
	label    string
	handler  engine.Handler
	disposed bool
}

// Option configures New.
type Option func(*Computer)

// WithRegistry sets the engine registry. The default is engine.Default().
func WithRegistry(r *engine.Registry) Option {
	return func(c *Computer) { c.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Computer) { c.log = l }
}

// WithRecorder sets the event recorder.
func WithRecorder(r events.Recorder) Option {
	return func(c *Computer) { c.rec = r }
}

// WithStateCallback sets the function called whenever the engine
// reports its label and power state.
func WithStateCallback(fn func(label string, on bool)) Option {
	return func(c *Computer) { c.onState = fn }
}

// WithClock sets the time source for file attributes.
func WithClock(fn func() time.Time) Option {
	return func(c *Computer) { c.clock = fn }
}

// WithID sets the computer id reported in events and telemetry.
func WithID(id int) Option {
	return func(c *Computer) { c.id = id }
}

// New returns an unloaded computer whose filesystem and label are
// hydrated from backend.
func New(backend persist.Backend, opts ...Option) *Computer {
	c := &Computer{
		backend: backend,
		term:    terminal.NewBuffer(),
		log:     zap.NewNop(),
		rec:     events.Discard,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = engine.Default()
	}
	c.log = c.log.With(zap.Int("computer", c.id))
	c.fs = vfs.Open(backend, vfs.WithClock(c.clock), vfs.WithLogger(c.log))
	c.label = backend.Label()
	return c
}

// ID returns the computer id.
func (c *Computer) ID() int { return c.id }

// FileSystem returns the computer's filesystem.
func (c *Computer) FileSystem() *vfs.FileSystem { return c.fs }

// Terminal returns the computer's terminal buffer.
func (c *Computer) Terminal() *terminal.Buffer { return c.term }

// State returns the lifecycle state.
func (c *Computer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Computer) record(typ, actor, subject, message string) {
	c.rec.Record(events.Event{
		Type:     typ,
		Computer: c.id,
		Actor:    actor,
		Subject:  subject,
		Message:  message,
	})
}

// Start loads the engine, if needed, and attaches this computer to it.
// It blocks until the engine attaches, the load fails, or ctx is done.
// On a load failure the error is also drawn on the terminal.
func (c *Computer) Start(ctx context.Context, config engine.ConfigFactory, opts StartOptions) error {
	c.mu.Lock()
	switch c.state {
	case Disposed:
		c.mu.Unlock()
		return ErrDisposed
	case Unloaded:
	default:
		c.mu.Unlock()
		return ErrStarted
	}
	c.state = Loading
	c.mu.Unlock()

	h, err := c.registry.Start(ctx, c, config)
	telemetry.RecordComputerStart(ctx, c.id, err)
	if err != nil {
		c.mu.Lock()
		if c.state == Loading {
			c.state = Unloaded
		}
		c.mu.Unlock()

		c.log.Error("cannot start computer", zap.Error(err))
		c.record(events.ComputerStartFailed, events.ActorHost, "", err.Error())
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.term.ShowMessage('e', "Cannot start computer", err.Error())
		}
		return fmt.Errorf("starting computer %d: %w", c.id, err)
	}

	c.mu.Lock()
	c.handler = h
	if c.disposed {
		c.mu.Unlock()
		h.Dispose()
		return nil
	}
	// The engine may already have reported power on during attach.
	if c.state == Loading {
		c.state = Off
	}
	label := c.label
	c.mu.Unlock()

	if opts.Width > 0 && opts.Height > 0 {
		h.Resize(opts.Width, opts.Height)
	}
	if label == "" {
		label = opts.Label
	}
	if label != "" {
		h.SetLabel(label)
	}
	c.record(events.ComputerStarted, events.ActorHost, "", "")
	return nil
}

// attached returns the engine handler, or nil when the computer is not
// attached or has been disposed.
func (c *Computer) attached() engine.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	return c.handler
}

// QueueEvent queues an engine event. Each argument is JSON-encoded.
// Events sent before the engine attaches are dropped.
func (c *Computer) QueueEvent(name string, args ...any) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encoding %s event argument %d: %w", name, i, err)
		}
		encoded[i] = string(b)
	}
	if h := c.attached(); h != nil {
		h.Event(name, encoded)
	}
	return nil
}

// KeyDown queues a key press for the named key. Unknown keys are
// ignored.
func (c *Computer) KeyDown(key string, repeat bool) {
	if code, ok := KeyCode(key); ok {
		c.QueueEvent("key", code, repeat) //nolint:errcheck // ints and bools always encode
	}
}

// KeyUp queues a key release for the named key. Unknown keys are
// ignored.
func (c *Computer) KeyUp(key string) {
	if code, ok := KeyCode(key); ok {
		c.QueueEvent("key_up", code) //nolint:errcheck // ints always encode
	}
}

// Paste queues a paste of text.
func (c *Computer) Paste(text string) {
	c.QueueEvent("paste", text) //nolint:errcheck // strings always encode
}

// TurnOn powers the computer on.
func (c *Computer) TurnOn() {
	if h := c.attached(); h != nil {
		h.TurnOn()
	}
}

// Shutdown powers the computer off.
func (c *Computer) Shutdown() {
	if h := c.attached(); h != nil {
		h.Shutdown()
	}
}

// Reboot restarts the computer.
func (c *Computer) Reboot() {
	if h := c.attached(); h != nil {
		h.Reboot()
	}
}

// Resize sets the terminal size of an attached computer.
func (c *Computer) Resize(width, height int) {
	if h := c.attached(); h != nil {
		h.Resize(width, height)
	}
}

// SetPeripheral attaches a peripheral of kind to side. An empty kind
// detaches it.
func (c *Computer) SetPeripheral(side, kind string) {
	if h := c.attached(); h != nil {
		h.SetPeripheral(side, kind)
	}
}

// SetLabel sets and persists the label from the host side and forwards it
// to an attached engine. An empty label clears it.
func (c *Computer) SetLabel(label string) {
	c.mu.Lock()
	changed := c.label != label
	if changed {
		c.label = label
		c.backend.SetLabel(label)
	}
	c.mu.Unlock()
	if !changed {
		return
	}

	c.record(events.LabelChanged, events.ActorHost, label, "")
	if h := c.attached(); h != nil {
		h.SetLabel(label)
	}
}

// Dispose tears the computer down. It is valid in any state and
// idempotent. Listeners on the terminal and filesystem are detached, and
// an attached engine is told to dispose; an engine that attaches later
// is disposed on arrival.
func (c *Computer) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.state = Disposed
	h := c.handler
	c.mu.Unlock()

	c.term.Changes().Clear()
	c.fs.DetachAll()
	if h != nil {
		h.Dispose()
	}
	telemetry.RecordComputerDispose(context.Background(), c.id, h != nil)
	c.record(events.ComputerDisposed, events.ActorHost, "", "")
}

// InjectStartup installs a base64-encoded program as a startup file
// that deletes itself before running, so the program stays invisible
// even when it fails to parse.
func (c *Computer) InjectStartup(encoded string) error {
	src, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding startup program: %w", err)
	}
	entry, err := c.fs.CreateFile(StartupFile)
	if err != nil {
		return err
	}
	if err := entry.SetStringContents(StartupProgram(string(src))); err != nil {
		return err
	}
	c.record(events.StartupInjected, events.ActorHost, StartupFile, "")
	return nil
}

var luaEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", "\\\n",
	`"`, `\"`,
	"\r", `\r`,
	"\x00", `\0`,
)

// StartupProgram wraps src in the self-deleting bootstrap.
func StartupProgram(src string) string {
	return "\nfs.delete(\"" + StartupFile + "\")\n" +
		"local fn, err = load(\"" + luaEscaper.Replace(src) + "\", \"@" + StartupFile + "\", nil, _ENV)\n" +
		"if not fn then error(err, 0) end\n" +
		"fn()"
}
