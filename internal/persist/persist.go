// Package persist defines where a computer's filesystem and label are
// saved between sessions.
//
// A [Backend] is a write-through sink, not the source of truth: the
// virtual filesystem keeps its own tree in memory and only consults the
// backend when hydrating. [Void] discards everything; [Storage] maps a
// computer onto a flat [kvstore.Store].
package persist

// Attributes holds the persisted timestamps of one entry, in
// milliseconds since the Unix epoch.
type Attributes struct {
	Creation     int64 `json:"creation"`
	Modification int64 `json:"modification"`
}

// Backend stores one computer's label, file contents, directory listings
// and entry attributes. Paths are normalized (no leading slash, root is
// ""). Implementations never fail a read: missing or unreadable records
// are reported as absent.
type Backend interface {
	// Label returns the computer label, or "" when none is stored.
	Label() string
	// SetLabel stores label. An empty label removes the record.
	SetLabel(label string)

	// Contents returns the stored bytes of a file, empty when absent.
	Contents(path string) []byte
	SetContents(path string, data []byte)
	RemoveContents(path string)

	// Children returns the stored listing of a directory. ok is false
	// when the path has no listing, meaning it is a file or absent.
	Children(path string) (names []string, ok bool)
	SetChildren(path string, names []string)
	RemoveChildren(path string)

	Attributes(path string) (attrs Attributes, ok bool)
	SetAttributes(path string, attrs Attributes)
	RemoveAttributes(path string)
}

// Void is a Backend that saves nothing, for temporary filesystems.
type Void struct{}

func (Void) Label() string                        { return "" }
func (Void) SetLabel(string)                      {}
func (Void) Contents(string) []byte               { return nil }
func (Void) SetContents(string, []byte)           {}
func (Void) RemoveContents(string)                {}
func (Void) Children(string) ([]string, bool)     { return nil, false }
func (Void) SetChildren(string, []string)         {}
func (Void) RemoveChildren(string)                {}
func (Void) Attributes(string) (Attributes, bool) { return Attributes{}, false }
func (Void) SetAttributes(string, Attributes)     {}
func (Void) RemoveAttributes(string)              {}

var (
	_ Backend = Void{}
	_ Backend = (*Storage)(nil)
)
