package terminal

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// RenderOptions controls Render.
type RenderOptions struct {
	// Profile is the colour depth of the target terminal. The zero value
	// is termenv.TrueColor.
	Profile termenv.Profile
	// Cursor draws the cursor cell in reverse video when it blinks.
	Cursor bool
}

// Render draws a snapshot as ANSI-styled text, one line per row. Runs of
// cells sharing colours are styled together. Escape sequences embedded in
// row text are stripped first, and rows are padded or cut to the buffer
// width.
func Render(s Snapshot, opts RenderOptions) string {
	r := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(opts.Profile))
	r.SetColorProfile(opts.Profile)

	var out strings.Builder
	for y := 0; y < s.Height; y++ {
		if y > 0 {
			out.WriteByte('\n')
		}
		text := fitRow(ansi.Strip(s.Text[y]), s.Width, ' ')
		fore := fitRow(s.Fore[y], s.Width, '0')
		back := fitRow(s.Back[y], s.Width, 'f')

		cursorAt := -1
		if opts.Cursor && s.CursorBlink && y == s.CursorY {
			cursorAt = s.CursorX
		}

		start := 0
		for x := 1; x <= s.Width; x++ {
			if x < s.Width && fore[x] == fore[start] && back[x] == back[start] && x != cursorAt && start != cursorAt {
				continue
			}
			style := cellStyle(r, &s.Palette, fore[start], back[start])
			if start == cursorAt {
				style = style.Reverse(true)
			}
			out.WriteString(style.Render(string(text[start:x])))
			start = x
		}
	}
	return out.String()
}

func cellStyle(r *lipgloss.Renderer, p *Palette, fore, back rune) lipgloss.Style {
	style := r.NewStyle()
	if c, ok := p.Lookup(fore); ok {
		style = style.Foreground(lipgloss.Color(c.Hex()))
	}
	if c, ok := p.Lookup(back); ok {
		style = style.Background(lipgloss.Color(c.Hex()))
	}
	return style
}

// fitRow returns s as exactly width runes, padding with pad.
func fitRow(s string, width int, pad rune) []rune {
	r := []rune(s)
	if len(r) >= width {
		return r[:width]
	}
	for len(r) < width {
		r = append(r, pad)
	}
	return r
}

// Plain returns the text rows of a snapshot with trailing spaces
// trimmed, joined by newlines.
func Plain(s Snapshot) string {
	lines := make([]string, len(s.Text))
	for i, t := range s.Text {
		lines[i] = strings.TrimRight(ansi.Strip(t), " ")
	}
	return strings.Join(lines, "\n")
}
