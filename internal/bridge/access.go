package bridge

import (
	"context"

	"github.com/copycat-emu/copycat/internal/engine"
	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/telemetry"
	"github.com/copycat-emu/copycat/internal/vfs"
)

// The methods below make up the engine's view of the computer.

// Label returns the computer label, or "" when unset.
func (c *Computer) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

// SetState records the engine's label and power state. A changed label
// is persisted.
func (c *Computer) SetState(label string, on bool) {
	c.mu.Lock()
	changed := c.label != label
	if changed {
		c.label = label
		c.backend.SetLabel(label)
	}
	if !c.disposed {
		if on {
			c.state = On
		} else {
			c.state = Off
		}
	}
	c.mu.Unlock()

	if changed {
		c.record(events.LabelChanged, events.ActorEngine, label, "")
	}
	if c.onState != nil {
		c.onState(label, on)
	}
}

func (c *Computer) UpdateTerminal(width, height, cursorX, cursorY int, blink bool, cursorColour int) {
	c.term.Update(width, height, cursorX, cursorY, blink, cursorColour)
}

func (c *Computer) SetTerminalLine(row int, text, fore, back string) {
	c.term.SetLine(row, text, fore, back)
}

func (c *Computer) SetPaletteColour(index int, r, g, b float64) {
	c.term.SetPaletteColour(index, r, g, b)
}

// FlushTerminal notifies terminal listeners that a batch of updates is
// complete.
func (c *Computer) FlushTerminal() {
	c.term.Flush()
	telemetry.RecordTerminalFlush(context.Background())
}

func (c *Computer) Entry(path string) *vfs.Entry {
	return c.fs.Entry(path)
}

func (c *Computer) CreateDirectory(path string) (*vfs.Entry, error) {
	existed := c.fs.Entry(path) != nil
	e, err := c.fs.CreateDirectory(path)
	telemetry.RecordFileOp(context.Background(), "create_directory", path, err)
	if err == nil && !existed {
		c.record(events.DirectoryCreated, events.ActorEngine, vfs.Clean(path), "")
	}
	return e, err
}

func (c *Computer) CreateFile(path string) (*vfs.Entry, error) {
	existed := c.fs.Entry(path) != nil
	e, err := c.fs.CreateFile(path)
	telemetry.RecordFileOp(context.Background(), "create_file", path, err)
	if err == nil && !existed {
		c.record(events.FileCreated, events.ActorEngine, vfs.Clean(path), "")
	}
	return e, err
}

func (c *Computer) DeleteEntry(path string) {
	existed := c.fs.Entry(path) != nil
	c.fs.DeleteEntry(path)
	telemetry.RecordFileOp(context.Background(), "delete", path, nil)
	if existed {
		c.record(events.EntryDeleted, events.ActorEngine, vfs.Clean(path), "")
	}
}

var _ engine.Access = (*Computer)(nil)
