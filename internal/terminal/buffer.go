// Package terminal holds the display state a computer draws into: a
// character grid with per-cell foreground and background colour keys, a
// cursor and a 16-colour palette.
//
// The engine writes rows and cursor state at any time; observers are only
// told to redraw when the engine flushes, through [Buffer.Changes].
package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/copycat-emu/copycat/internal/notify"
)

// Colours are keyed by a single hex digit, "0" through "f".
const colourKeys = "0123456789abcdef"

// Default dimensions of a computer terminal.
const (
	DefaultWidth  = 51
	DefaultHeight = 19
)

// Colour is one palette entry.
type Colour struct {
	R, G, B uint8
}

// Hex returns the colour as "#rrggbb".
func (c Colour) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Colour) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Palette maps colour index 0-15 to RGB.
type Palette [16]Colour

// DefaultPalette is the palette a terminal starts with.
var DefaultPalette = Palette{
	{240, 240, 240}, // white
	{242, 178, 51},  // orange
	{229, 127, 216}, // magenta
	{153, 178, 242}, // light blue
	{222, 222, 108}, // yellow
	{127, 204, 25},  // lime
	{242, 178, 204}, // pink
	{76, 76, 76},    // grey
	{153, 153, 153}, // light grey
	{76, 153, 178},  // cyan
	{178, 102, 229}, // purple
	{37, 49, 146},   // blue
	{127, 102, 76},  // brown
	{87, 166, 78},   // green
	{204, 76, 76},   // red
	{0, 0, 0},       // black
}

// Lookup returns the colour for a key character, or false when key is
// not a lower-case hex digit.
func (p *Palette) Lookup(key rune) (Colour, bool) {
	i := strings.IndexRune(colourKeys, key)
	if i < 0 {
		return Colour{}, false
	}
	return p[i], true
}

// Snapshot is a copy of the buffer state.
type Snapshot struct {
	Width, Height    int
	CursorX, CursorY int
	CursorBlink      bool
	CurrentFore      byte
	Text, Fore, Back []string
	Palette          Palette
}

// Buffer is a terminal display. Safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	width, height    int
	cursorX, cursorY int
	cursorBlink      bool
	currentFore      byte
	text, fore, back []string
	palette          Palette

	changes notify.Signal
}

// NewBuffer returns an empty 0x0 buffer with the default palette and
// foreground "0".
func NewBuffer() *Buffer {
	return &Buffer{currentFore: '0', palette: DefaultPalette}
}

// Changes returns the signal fired on every flush.
func (b *Buffer) Changes() *notify.Signal { return &b.changes }

// Resize reallocates every row to the new dimensions, filled with spaces
// in the current foreground on background "f".
func (b *Buffer) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resize(width, height)
}

func (b *Buffer) resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	b.width, b.height = width, height

	blankText := strings.Repeat(" ", width)
	blankFore := strings.Repeat(string(b.currentFore), width)
	blankBack := strings.Repeat("f", width)
	b.text = make([]string, height)
	b.fore = make([]string, height)
	b.back = make([]string, height)
	for y := 0; y < height; y++ {
		b.text[y] = blankText
		b.fore[y] = blankFore
		b.back[y] = blankBack
	}
}

// Update sets the dimensions and cursor state in one step. The buffer is
// reallocated, so the engine re-sends every row afterwards. An
// out-of-range cursorColour leaves the current foreground unchanged.
func (b *Buffer) Update(width, height, cursorX, cursorY int, blink bool, cursorColour int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resize(width, height)
	b.cursorX, b.cursorY = cursorX, cursorY
	b.cursorBlink = blink
	if cursorColour >= 0 && cursorColour < len(colourKeys) {
		b.currentFore = colourKeys[cursorColour]
	}
}

// SetLine replaces one row. Rows outside the buffer are ignored.
func (b *Buffer) SetLine(row int, text, fore, back string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row < 0 || row >= b.height {
		return
	}
	b.text[row] = text
	b.fore[row] = fore
	b.back[row] = back
}

// SetPaletteColour sets colour index from channel values in [0, 1]. Each
// channel is scaled by 255 and truncated to 8 bits.
func (b *Buffer) SetPaletteColour(index int, r, g, bl float64) {
	if index < 0 || index >= len(b.palette) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.palette[index] = Colour{R: channel(r), G: channel(g), B: channel(bl)}
}

func channel(v float64) uint8 {
	return uint8(int(v*0xFF) & 0xFF)
}

// Flush tells observers to redraw.
func (b *Buffer) Flush() {
	b.changes.Signal()
}

// Size returns the current dimensions.
func (b *Buffer) Size() (width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// Snapshot returns a copy of the buffer state.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Width:       b.width,
		Height:      b.height,
		CursorX:     b.cursorX,
		CursorY:     b.cursorY,
		CursorBlink: b.cursorBlink,
		CurrentFore: b.currentFore,
		Text:        append([]string(nil), b.text...),
		Fore:        append([]string(nil), b.fore...),
		Back:        append([]string(nil), b.back...),
		Palette:     b.palette,
	}
}

// ShowMessage clears the screen and writes lines from the top in
// foreground fore on black, wrapping at the buffer width. A 0x0 buffer is
// first resized to the default dimensions.
func (b *Buffer) ShowMessage(fore byte, lines ...string) {
	b.mu.Lock()
	width, height := b.width, b.height
	if width == 0 || height == 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	b.resize(width, height)
	row := 0
	for _, line := range lines {
		for _, chunk := range wrap(line, b.width) {
			if row >= b.height {
				break
			}
			b.text[row] = chunk + strings.Repeat(" ", b.width-len([]rune(chunk)))
			b.fore[row] = strings.Repeat(string(fore), b.width)
			row++
		}
	}
	b.cursorBlink = false
	b.mu.Unlock()

	b.Flush()
}

// wrap splits s into pieces of at most width runes.
func wrap(s string, width int) []string {
	r := []rune(s)
	if len(r) == 0 {
		return []string{""}
	}
	var out []string
	for len(r) > width {
		out = append(out, string(r[:width]))
		r = r[width:]
	}
	return append(out, string(r))
}
