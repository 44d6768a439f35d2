// Package engine defines the contract between copycat and the sandboxed
// execution engine that runs a computer's programs, and the process-wide
// [Registry] that loads the engine runtime once and attaches computers
// to it.
//
// The engine is opaque. It receives an [Access] per computer, through
// which it reads and writes the filesystem and draws the terminal, and
// hands back a [Handler] through which the host drives it.
package engine

import "github.com/copycat-emu/copycat/internal/vfs"

// Access is the capability object the engine is given for one computer.
type Access interface {
	// Label returns the computer label, or "" when unset.
	Label() string
	// SetState reports the engine's view of the label and power state.
	SetState(label string, on bool)

	UpdateTerminal(width, height, cursorX, cursorY int, blink bool, cursorColour int)
	SetTerminalLine(row int, text, fore, back string)
	// SetPaletteColour sets a palette entry from channels in [0, 1].
	SetPaletteColour(index int, r, g, b float64)
	// FlushTerminal marks the end of a batch of terminal updates.
	FlushTerminal()

	Entry(path string) *vfs.Entry
	CreateDirectory(path string) (*vfs.Entry, error)
	CreateFile(path string) (*vfs.Entry, error)
	DeleteEntry(path string)
}

// Handler is the engine side of an attached computer.
type Handler interface {
	SetLabel(label string)
	// Event queues an event. Each argument is a JSON-encoded value.
	Event(name string, args []string)
	Shutdown()
	TurnOn()
	Reboot()
	Dispose()
	Resize(width, height int)
	// SetPeripheral attaches a peripheral of kind to side; an empty kind
	// detaches it.
	SetPeripheral(side, kind string)
}

// AddComputer attaches a computer to the running engine.
type AddComputer func(Access) Handler

// Choice is one allowed value of an option property.
type Choice struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ConfigGroup collects the engine's user-tunable properties. Each Add*
// call registers a property; changed is called with the stored value
// when it differs from def, and on every later change.
type ConfigGroup interface {
	AddString(id, name, def, description string, changed func(string))
	AddBoolean(id, name string, def bool, description string, changed func(bool))
	AddInt(id, name string, def, min, max int, description string, changed func(int))
	AddOption(id, name, def string, choices []Choice, description string, changed func(string))
}

// ConfigFactory returns the config group with the given name, creating it
// if needed.
type ConfigFactory func(name, description string) ConfigGroup

// Callbacks is what the engine entry point receives.
type Callbacks struct {
	// Config creates config groups.
	Config ConfigFactory
	// Setup must be called exactly once with the function the registry
	// uses to attach computers. It may be called from any goroutine but
	// must happen before Main returns; later calls are ignored.
	Setup func(AddComputer)
	// Version is the engine version string.
	Version string
	// Resources are the read-only files bundled with the engine (ROM),
	// keyed by path.
	Resources map[string][]byte
}

// ListResources returns the bundled resource paths.
func (c *Callbacks) ListResources() []string {
	paths := make([]string, 0, len(c.Resources))
	for p := range c.Resources {
		paths = append(paths, p)
	}
	return paths
}

// Resource returns a bundled resource, or nil when absent.
func (c *Callbacks) Resource(path string) []byte {
	return c.Resources[path]
}

// Module is a loaded engine runtime.
type Module interface {
	// Main runs the engine entry point. It must call cb.Setup before
	// returning.
	Main(cb *Callbacks) error
}

// Bundle is everything a Loader produces.
type Bundle struct {
	Module    Module
	Version   string
	Resources map[string][]byte
}
