package vfs

import (
	"strings"
	"time"

	"github.com/copycat-emu/copycat/internal/notify"
	"github.com/copycat-emu/copycat/internal/persist"
)

// Entry is one file or directory. Handles stay valid after deletion:
// [Entry.Exists] turns false and writes fail with [ErrDeleted].
type Entry struct {
	fs   *FileSystem
	path string
	dir  bool

	// Guarded by fs.mu.
	children []string
	contents []byte
	loaded   bool
	exists   bool
	attrs    persist.Attributes

	changes notify.Signal
}

// Attributes describes an entry as reported to sandboxed programs.
type Attributes struct {
	Creation     time.Time
	Modification time.Time
	Directory    bool
	Size         int64
}

// Path returns the normalized path of the entry.
func (e *Entry) Path() string { return e.path }

// IsDirectory reports whether the entry is a directory.
func (e *Entry) IsDirectory() bool { return e.dir }

// Changes returns the signal fired whenever the entry's children or
// contents change, and once more when it is deleted.
func (e *Entry) Changes() *notify.Signal { return &e.changes }

// Exists reports whether the entry is still part of the filesystem.
func (e *Entry) Exists() bool {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.exists
}

// Children returns a copy of the directory's child names in listing
// order. Panics with *MisuseError on a file.
func (e *Entry) Children() []string {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	if !e.dir {
		panic(&MisuseError{Op: "children", Path: e.path, Want: "directory"})
	}
	return append([]string{}, e.children...)
}

// Contents returns a copy of the file's bytes, loading them from the
// backend on first use. Panics with *MisuseError on a directory.
func (e *Entry) Contents() []byte {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	if e.dir {
		panic(&MisuseError{Op: "read", Path: e.path, Want: "file"})
	}
	return append([]byte{}, e.hydrate()...)
}

// StringContents returns the file contents as text. Invalid UTF-8 is
// replaced with U+FFFD rather than rejected.
func (e *Entry) StringContents() string {
	return strings.ToValidUTF8(string(e.Contents()), "�")
}

// hydrate loads contents from the backend if needed. Caller must hold
// fs.mu.
func (e *Entry) hydrate() []byte {
	if !e.loaded {
		e.contents = e.fs.backend.Contents(e.path)
		e.loaded = true
	}
	return e.contents
}

// SetContents replaces the file's bytes, bumps the modification time,
// persists and then signals. Returns ErrDeleted once the entry is gone.
// Panics with *MisuseError on a directory.
func (e *Entry) SetContents(data []byte) error {
	e.fs.mu.Lock()
	if e.dir {
		e.fs.mu.Unlock()
		panic(&MisuseError{Op: "write", Path: e.path, Want: "file"})
	}
	if !e.exists {
		e.fs.mu.Unlock()
		return ErrDeleted
	}
	e.attrs.Modification = e.fs.now()
	e.contents = append([]byte{}, data...)
	e.loaded = true
	e.fs.backend.SetContents(e.path, e.contents)
	e.fs.backend.SetAttributes(e.path, e.attrs)
	e.fs.mu.Unlock()

	e.changes.Signal()
	return nil
}

// SetStringContents stores text as UTF-8.
func (e *Entry) SetStringContents(text string) error {
	return e.SetContents([]byte(text))
}

// Attributes returns timestamps, kind and size. Size is 0 for
// directories; for files it forces hydration.
func (e *Entry) Attributes() Attributes {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	a := Attributes{
		Creation:     time.UnixMilli(e.attrs.Creation),
		Modification: time.UnixMilli(e.attrs.Modification),
		Directory:    e.dir,
	}
	if !e.dir {
		a.Size = int64(len(e.hydrate()))
	}
	return a
}

// save persists the entry's listing (or contents) and attributes. Caller
// must hold fs.mu.
func (e *Entry) save() {
	if e.dir {
		e.fs.backend.SetChildren(e.path, e.children)
	} else {
		e.fs.backend.SetContents(e.path, e.contents)
	}
	e.fs.backend.SetAttributes(e.path, e.attrs)
}
