package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/copycat-emu/copycat/internal/engine"
	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/notify"
	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/vfs"
)

type harness struct {
	engine *engine.Fake
	rec    *events.Fake
	store  *kvstore.MemStore
	c      *Computer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		engine: engine.NewFake(),
		rec:    events.NewFake(),
		store:  kvstore.NewMemStore(),
	}
	base := []Option{
		WithRegistry(engine.NewRegistry(h.engine.Loader())),
		WithRecorder(h.rec),
		WithID(7),
	}
	h.c = New(persist.NewStorage(h.store, 7), append(base, opts...)...)
	return h
}

func (h *harness) handler(t *testing.T) *engine.FakeHandler {
	t.Helper()
	hs := h.engine.Handlers()
	if len(hs) != 1 {
		t.Fatalf("engine has %d handlers, want 1", len(hs))
	}
	return hs[0]
}

func TestStartAppliesOptions(t *testing.T) {
	h := newHarness(t)
	if got := h.c.State(); got != Unloaded {
		t.Fatalf("State = %v, want unloaded", got)
	}

	err := h.c.Start(context.Background(), nil, StartOptions{Width: 30, Height: 10, Label: "fallback"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.c.State(); got != Off {
		t.Errorf("State = %v, want off", got)
	}

	fh := h.handler(t)
	if fh.Access != engine.Access(h.c) {
		t.Error("engine was not handed the computer")
	}
	calls := fh.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want Resize then SetLabel", calls)
	}
	if calls[0].Method != "Resize" || calls[0].Args[0] != "30" || calls[0].Args[1] != "10" {
		t.Errorf("first call = %+v, want Resize(30, 10)", calls[0])
	}
	if calls[1].Method != "SetLabel" || calls[1].Args[0] != "fallback" {
		t.Errorf("second call = %+v, want SetLabel(fallback)", calls[1])
	}
	if got := h.rec.Types(); len(got) != 1 || got[0] != events.ComputerStarted {
		t.Errorf("events = %v, want [%s]", got, events.ComputerStarted)
	}
}

// poweredModule is an engine whose computers report power on while
// they are being attached.
type poweredModule struct{}

func (poweredModule) Main(cb *engine.Callbacks) error {
	cb.Setup(func(a engine.Access) engine.Handler {
		a.SetState("", true)
		return &engine.FakeHandler{Access: a}
	})
	return nil
}

func TestStartKeepsStateReportedDuringAttach(t *testing.T) {
	registry := engine.NewRegistry(func(context.Context) (*engine.Bundle, error) {
		return &engine.Bundle{Module: poweredModule{}}, nil
	})
	c := New(persist.NewStorage(kvstore.NewMemStore(), 0), WithRegistry(registry))
	if err := c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != On {
		t.Errorf("State after engine reported on = %v, want on", got)
	}
}

func TestStartSkipsPartialSize(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(context.Background(), nil, StartOptions{Width: 30}); err != nil {
		t.Fatal(err)
	}
	if got := h.handler(t).Methods(); len(got) != 0 {
		t.Errorf("calls = %v, want none", got)
	}
}

func TestStoredLabelWins(t *testing.T) {
	h := &harness{engine: engine.NewFake(), store: kvstore.NewMemStore()}
	storage := persist.NewStorage(h.store, 0)
	storage.SetLabel("stored")
	h.c = New(storage, WithRegistry(engine.NewRegistry(h.engine.Loader())))

	if got := h.c.Label(); got != "stored" {
		t.Fatalf("Label = %q, want %q", got, "stored")
	}
	if err := h.c.Start(context.Background(), nil, StartOptions{Label: "option"}); err != nil {
		t.Fatal(err)
	}
	calls := h.handler(t).Calls()
	if len(calls) != 1 || calls[0].Args[0] != "stored" {
		t.Errorf("calls = %+v, want SetLabel(stored)", calls)
	}
}

func TestStartPassesConfig(t *testing.T) {
	h := newHarness(t)
	var got string
	h.engine.Configure = func(cb *engine.Callbacks) { cb.Config("Terminal", "") }
	config := func(name, _ string) engine.ConfigGroup {
		got = name
		return nil
	}
	if err := h.c.Start(context.Background(), config, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if got != "Terminal" {
		t.Errorf("config group = %q, want %q", got, "Terminal")
	}
}

func TestStartFailureShowsError(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadErr = errors.New("runtime missing")
	flushed := 0
	h.c.Terminal().Changes().Attach(notify.Func(func() { flushed++ }))

	err := h.c.Start(context.Background(), nil, StartOptions{})
	if !errors.Is(err, engine.ErrRuntimeLoad) {
		t.Fatalf("Start error = %v, want ErrRuntimeLoad", err)
	}
	if got := h.c.State(); got != Unloaded {
		t.Errorf("State = %v, want unloaded", got)
	}

	snap := h.c.Terminal().Snapshot()
	if got := strings.TrimRight(snap.Text[0], " "); got != "Cannot start computer" {
		t.Errorf("row 0 = %q", got)
	}
	if !strings.Contains(strings.Join(snap.Text, ""), "runtime missing") {
		t.Error("terminal does not show the cause")
	}
	if flushed != 1 {
		t.Errorf("terminal flushed %d times, want 1", flushed)
	}
	if got := h.rec.Types(); len(got) != 1 || got[0] != events.ComputerStartFailed {
		t.Errorf("events = %v", got)
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Start(context.Background(), nil, StartOptions{}); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start = %v, want ErrStarted", err)
	}
}

func TestStartAfterDispose(t *testing.T) {
	h := newHarness(t)
	h.c.Dispose()
	if err := h.c.Start(context.Background(), nil, StartOptions{}); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start = %v, want ErrDisposed", err)
	}
	if h.engine.LoadCalls() != 0 {
		t.Error("engine loaded for a disposed computer")
	}
}

func TestDisposeBeforeAttach(t *testing.T) {
	h := newHarness(t)
	h.engine.Gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(context.Background(), nil, StartOptions{Width: 5, Height: 5}) }()
	waitFor(t, func() bool { return h.c.State() == Loading })

	h.c.Dispose()
	h.c.TurnOn()
	close(h.engine.Gate)
	if err := <-errc; err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := h.c.State(); got != Disposed {
		t.Errorf("State = %v, want disposed", got)
	}
	got := h.handler(t).Methods()
	if len(got) != 1 || got[0] != "Dispose" {
		t.Errorf("engine calls = %v, want [Dispose]", got)
	}

	// Late engine state reports do not resurrect the computer.
	h.c.SetState("", true)
	if got := h.c.State(); got != Disposed {
		t.Errorf("State after SetState = %v, want disposed", got)
	}
}

func TestStartCancelled(t *testing.T) {
	h := newHarness(t)
	h.engine.Gate = make(chan struct{})
	defer close(h.engine.Gate)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(ctx, nil, StartOptions{}) }()
	waitFor(t, func() bool { return h.c.State() == Loading })
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start = %v, want context.Canceled", err)
	}
	if got := strings.TrimSpace(strings.Join(h.c.Terminal().Snapshot().Text, "")); got != "" {
		t.Errorf("terminal shows %q after cancellation, want nothing", got)
	}
}

func TestHostCallsDroppedBeforeAttach(t *testing.T) {
	h := newHarness(t)
	h.c.TurnOn()
	h.c.Reboot()
	if err := h.c.QueueEvent("char", "a"); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := h.handler(t).Methods(); len(got) != 0 {
		t.Errorf("engine calls = %v, want none", got)
	}
}

func TestHostCallsForwarded(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	h.c.TurnOn()
	h.c.Shutdown()
	h.c.Reboot()
	h.c.Resize(40, 12)
	h.c.SetPeripheral("left", "monitor")

	want := []string{"TurnOn", "Shutdown", "Reboot", "Resize", "SetPeripheral"}
	if got := h.handler(t).Methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("engine calls = %v, want %v", got, want)
	}

	h.c.Dispose()
	h.c.Dispose()
	h.c.TurnOn()
	want = append(want, "Dispose")
	if got := h.handler(t).Methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("engine calls after dispose = %v, want %v", got, want)
	}
}

func TestQueueEventEncodesArgs(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := h.c.QueueEvent("mouse_click", 1, 3.5, "a\"b", true); err != nil {
		t.Fatal(err)
	}
	if err := h.c.QueueEvent("bad", make(chan int)); err == nil {
		t.Error("QueueEvent with an unencodable arg succeeded")
	}

	calls := h.handler(t).Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v, want 1", calls)
	}
	want := []string{"mouse_click", "1", "3.5", `"a\"b"`, "true"}
	if got := calls[0].Args; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Event args = %q, want %q", got, want)
	}
}

func TestKeyEvents(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	h.c.KeyDown("KeyA", false)
	h.c.KeyDown("Enter", true)
	h.c.KeyUp("ArrowUp")
	h.c.KeyDown("NoSuchKey", false)
	h.c.Paste("hi")

	tests := [][]string{
		{"key", "30", "false"},
		{"key", "28", "true"},
		{"key_up", "200"},
		{"paste", `"hi"`},
	}
	calls := h.handler(t).Calls()
	if len(calls) != len(tests) {
		t.Fatalf("calls = %+v, want %d", calls, len(tests))
	}
	for i, want := range tests {
		if got := calls[i].Args; strings.Join(got, " ") != strings.Join(want, " ") {
			t.Errorf("event %d = %q, want %q", i, got, want)
		}
	}
}

func TestSetState(t *testing.T) {
	type report struct {
		label string
		on    bool
	}
	var reports []report
	h := newHarness(t, WithStateCallback(func(label string, on bool) {
		reports = append(reports, report{label, on})
	}))
	if err := h.c.Start(context.Background(), nil, StartOptions{}); err != nil {
		t.Fatal(err)
	}

	h.c.SetState("turtle", true)
	if got := h.c.State(); got != On {
		t.Errorf("State = %v, want on", got)
	}
	if got := h.c.Label(); got != "turtle" {
		t.Errorf("Label = %q, want %q", got, "turtle")
	}
	if got, _, _ := h.store.Get("computer[7].label"); got != "turtle" {
		t.Errorf("stored label = %q, want %q", got, "turtle")
	}

	h.c.SetState("turtle", false)
	if got := h.c.State(); got != Off {
		t.Errorf("State = %v, want off", got)
	}

	h.c.SetState("", false)
	if _, ok, _ := h.store.Get("computer[7].label"); ok {
		t.Error("empty label still stored")
	}

	want := []report{{"turtle", true}, {"turtle", false}, {"", false}}
	if len(reports) != len(want) {
		t.Fatalf("reports = %v, want %v", reports, want)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Errorf("report %d = %v, want %v", i, reports[i], want[i])
		}
	}
	labelEvents, _ := h.rec.List(events.Filter{Type: events.LabelChanged})
	if len(labelEvents) != 2 {
		t.Errorf("label events = %d, want 2", len(labelEvents))
	}
}

func TestHostSetLabel(t *testing.T) {
	h := newHarness(t)
	h.c.SetLabel("offline")
	if got, _, _ := h.store.Get("computer[7].label"); got != "offline" {
		t.Errorf("stored label = %q, want %q", got, "offline")
	}

	if err := h.c.Start(context.Background(), nil, StartOptions{Label: "ignored"}); err != nil {
		t.Fatal(err)
	}
	fh := h.handler(t)
	h.c.SetLabel("online")
	h.c.SetLabel("online")

	var labels []string
	for _, c := range fh.Calls() {
		if c.Method == "SetLabel" {
			labels = append(labels, c.Args[0])
		}
	}
	if strings.Join(labels, ",") != "offline,online" {
		t.Errorf("engine labels = %q, want [offline online]", labels)
	}
	evts, _ := h.rec.List(events.Filter{Type: events.LabelChanged, Actor: events.ActorHost})
	if len(evts) != 2 {
		t.Errorf("host label events = %d, want 2", len(evts))
	}
}

func TestTerminalAccess(t *testing.T) {
	h := newHarness(t)
	flushes := 0
	h.c.Terminal().Changes().Attach(notify.Func(func() { flushes++ }))

	h.c.UpdateTerminal(4, 2, 1, 0, true, 14)
	h.c.SetTerminalLine(1, "ab  ", "e000", "ffff")
	h.c.SetPaletteColour(0, 1, 0.5, 0)
	if flushes != 0 {
		t.Errorf("flushed %d times before FlushTerminal", flushes)
	}
	h.c.FlushTerminal()
	if flushes != 1 {
		t.Errorf("flushed %d times, want 1", flushes)
	}

	snap := h.c.Terminal().Snapshot()
	if snap.Width != 4 || snap.Height != 2 || snap.CursorX != 1 || !snap.CursorBlink {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.CurrentFore != 'e' {
		t.Errorf("CurrentFore = %q, want 'e'", snap.CurrentFore)
	}
	if snap.Text[1] != "ab  " || snap.Fore[1] != "e000" {
		t.Errorf("row 1 = %q/%q", snap.Text[1], snap.Fore[1])
	}
	if got := snap.Palette[0].String(); got != "rgb(255,127,0)" {
		t.Errorf("palette 0 = %s, want rgb(255,127,0)", got)
	}
}

func TestFileSystemAccess(t *testing.T) {
	h := newHarness(t)

	if _, err := h.c.CreateFile("x/y.txt"); !errors.Is(err, vfs.ErrAccessDenied) {
		t.Fatalf("CreateFile without parent = %v, want ErrAccessDenied", err)
	}
	if _, err := h.c.CreateDirectory("x"); err != nil {
		t.Fatal(err)
	}
	f, err := h.c.CreateFile("x/y.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetStringContents("hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.CreateFile("x/y.txt"); err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if got := h.c.Entry("x").Children(); len(got) != 1 || got[0] != "y.txt" {
		t.Errorf("Children(x) = %v, want [y.txt]", got)
	}

	// A second computer over the same store sees the persisted tree.
	other := New(persist.NewStorage(h.store, 7), WithRegistry(engine.NewRegistry(nil)))
	if got := other.Entry("x/y.txt").StringContents(); got != "hello" {
		t.Errorf("reloaded contents = %q, want %q", got, "hello")
	}

	h.c.DeleteEntry("x")
	h.c.DeleteEntry("x")
	if h.c.Entry("x/y.txt") != nil {
		t.Error("child survived delete")
	}

	want := []string{events.DirectoryCreated, events.FileCreated, events.EntryDeleted}
	if got := h.rec.Types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestDisposeDetachesListeners(t *testing.T) {
	h := newHarness(t)
	e, err := h.c.CreateFile("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	fileFired, termFired := 0, 0
	e.Changes().Attach(notify.Func(func() { fileFired++ }))
	h.c.Terminal().Changes().Attach(notify.Func(func() { termFired++ }))

	h.c.Dispose()
	if err := e.SetStringContents("x"); err != nil {
		t.Fatal(err)
	}
	h.c.FlushTerminal()
	if fileFired != 0 || termFired != 0 {
		t.Errorf("listeners fired after dispose: file %d, terminal %d", fileFired, termFired)
	}
	if got := h.rec.Types(); got[len(got)-1] != events.ComputerDisposed {
		t.Errorf("events = %v", got)
	}
}

func TestComputersShareOneLoad(t *testing.T) {
	fake := engine.NewFake()
	fake.Gate = make(chan struct{})
	registry := engine.NewRegistry(fake.Loader())
	store := kvstore.NewMemStore()

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for id := range n {
		c := New(persist.NewStorage(store, id), WithRegistry(registry), WithID(id))
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Start(context.Background(), nil, StartOptions{})
		}()
	}
	waitFor(t, func() bool { return registry.State() == engine.Loading })
	close(fake.Gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if fake.MainCalls() != 1 {
		t.Errorf("MainCalls = %d, want 1", fake.MainCalls())
	}
	if got := len(fake.Handlers()); got != n {
		t.Errorf("attached %d computers, want %d", got, n)
	}
}

func TestInjectStartup(t *testing.T) {
	h := newHarness(t)
	src := "print(\"hi\")\nprint('\\\\')"
	if err := h.c.InjectStartup(base64.StdEncoding.EncodeToString([]byte(src))); err != nil {
		t.Fatal(err)
	}

	e := h.c.Entry(StartupFile)
	if e == nil {
		t.Fatal("startup.lua not created")
	}
	want := "\nfs.delete(\"startup.lua\")\n" +
		"local fn, err = load(\"print(\\\"hi\\\")\\\nprint('\\\\\\\\')\", \"@startup.lua\", nil, _ENV)\n" +
		"if not fn then error(err, 0) end\n" +
		"fn()"
	if got := e.StringContents(); got != want {
		t.Errorf("startup.lua =\n%s\nwant\n%s", got, want)
	}
	if got := h.rec.Types(); len(got) != 1 || got[0] != events.StartupInjected {
		t.Errorf("events = %v", got)
	}

	if err := h.c.InjectStartup("!!not base64"); err == nil {
		t.Error("InjectStartup accepted invalid base64")
	}
}

func TestInjectStartupOverDirectory(t *testing.T) {
	h := newHarness(t)
	if _, err := h.c.CreateDirectory(StartupFile); err != nil {
		t.Fatal(err)
	}
	err := h.c.InjectStartup(base64.StdEncoding.EncodeToString([]byte("x")))
	if !errors.Is(err, vfs.ErrPathConflict) {
		t.Errorf("InjectStartup = %v, want ErrPathConflict", err)
	}
}

func TestStartupProgramEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`a"b`, `a\"b`},
		{`a\b`, `a\\b`},
		{"a\nb", "a\\\nb"},
		{"a\rb\rc", `a\rb\rc`},
		{"a\x00b", `a\0b`},
	}
	for _, tt := range tests {
		got := StartupProgram(tt.src)
		if !strings.Contains(got, `load("`+tt.want+`", "@startup.lua"`) {
			t.Errorf("StartupProgram(%q) = %q, want escaped %q", tt.src, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Unloaded, "unloaded"},
		{Loading, "loading"},
		{Off, "off"},
		{On, "on"},
		{Disposed, "disposed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
