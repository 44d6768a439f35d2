// Package vfs is the in-memory hierarchical filesystem a computer reads
// and writes, kept in sync with a [persist.Backend].
//
// The tree is a flat map from normalized path to [*Entry]. Every mutation
// is written through to the backend before the affected entries' change
// signals fire, and signals always fire after the filesystem lock is
// released, so listeners may read the tree.
package vfs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/persist"
)

// FileSystem is a computer's file tree. Safe for concurrent use.
type FileSystem struct {
	backend persist.Backend
	clock   func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// Option configures Open.
type Option func(*FileSystem)

// WithClock sets the time source used for creation and modification
// times.
func WithClock(fn func() time.Time) Option {
	return func(fs *FileSystem) { fs.clock = fn }
}

// WithLogger sets the logger used to report malformed listings found
// while hydrating.
func WithLogger(l *zap.Logger) Option {
	return func(fs *FileSystem) { fs.log = l }
}

// Open hydrates a filesystem from backend. Starting at the root, every
// path with a stored listing becomes a directory and its children are
// visited; any other path is a file whose contents load lazily. A
// missing root listing yields an empty root.
func Open(backend persist.Backend, opts ...Option) *FileSystem {
	fs := &FileSystem{
		backend: backend,
		clock:   time.Now,
		log:     zap.NewNop(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(fs)
	}

	queue := []string{""}
	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		attrs, _ := backend.Attributes(p)
		children, isDir := backend.Children(p)
		switch {
		case isDir:
			kept := children[:0:0]
			for _, name := range children {
				child := JoinName(p, name)
				if !validName(name) || containsName(kept, name) {
					fs.log.Warn("skipping invalid name in directory listing",
						zap.String("path", p), zap.String("name", name))
					continue
				}
				kept = append(kept, name)
				queue = append(queue, child)
			}
			fs.entries[p] = &Entry{fs: fs, path: p, dir: true, children: kept, exists: true, attrs: attrs}
		case p == "":
			fs.entries[p] = &Entry{fs: fs, path: p, dir: true, children: []string{}, exists: true, attrs: attrs}
		default:
			fs.entries[p] = &Entry{fs: fs, path: p, exists: true, attrs: attrs}
		}
	}
	return fs
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (fs *FileSystem) now() int64 {
	return fs.clock().UnixMilli()
}

// Backend returns the persistence backend the tree writes through to.
func (fs *FileSystem) Backend() persist.Backend { return fs.backend }

// Len returns the number of entries, the root included.
func (fs *FileSystem) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.entries)
}

// Entry returns the entry at path, or nil when there is none.
func (fs *FileSystem) Entry(path string) *Entry {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.entries[Clean(path)]
}

// Root returns the root directory.
func (fs *FileSystem) Root() *Entry {
	return fs.Entry("")
}

// CreateDirectory returns the directory at path, creating it and any
// missing parents. Fails with ErrPathConflict when path or one of its
// parents is a file.
func (fs *FileSystem) CreateDirectory(path string) (*Entry, error) {
	path = Clean(path)
	var fire []*Entry
	fs.mu.Lock()
	e, err := fs.createDirectory(path, &fire)
	fs.mu.Unlock()
	signalAll(fire)
	return e, err
}

func (fs *FileSystem) createDirectory(path string, fire *[]*Entry) (*Entry, error) {
	if e, ok := fs.entries[path]; ok {
		if e.dir {
			return e, nil
		}
		return nil, &PathError{Path: path, Reason: "File exists", Err: ErrPathConflict}
	}

	parentPath, name := SplitName(path)
	parent, err := fs.createDirectory(parentPath, fire)
	if err != nil {
		return nil, err
	}

	e := fs.newEntry(path, true)
	fs.link(parent, name, e, fire)
	return e, nil
}

// CreateFile returns the file at path, creating an empty one if needed.
// The parent must already exist as a directory (ErrAccessDenied), and
// path must not be a directory (ErrPathConflict).
func (fs *FileSystem) CreateFile(path string) (*Entry, error) {
	path = Clean(path)
	var fire []*Entry
	fs.mu.Lock()
	e, err := fs.createFile(path, &fire)
	fs.mu.Unlock()
	signalAll(fire)
	return e, err
}

func (fs *FileSystem) createFile(path string, fire *[]*Entry) (*Entry, error) {
	if e, ok := fs.entries[path]; ok {
		if e.dir {
			return nil, &PathError{Path: path, Reason: "Cannot write to directory", Err: ErrPathConflict}
		}
		return e, nil
	}

	parentPath, name := SplitName(path)
	parent, ok := fs.entries[parentPath]
	if !ok || !parent.dir {
		return nil, &PathError{Path: path, Reason: "Access denied", Err: ErrAccessDenied}
	}

	e := fs.newEntry(path, false)
	fs.link(parent, name, e, fire)
	return e, nil
}

// newEntry creates and persists a fresh entry. Caller must hold fs.mu.
func (fs *FileSystem) newEntry(path string, dir bool) *Entry {
	now := fs.now()
	e := &Entry{
		fs:     fs,
		path:   path,
		dir:    dir,
		loaded: true,
		exists: true,
		attrs:  persist.Attributes{Creation: now, Modification: now},
	}
	if dir {
		e.children = []string{}
	} else {
		e.contents = []byte{}
	}
	e.save()
	return e
}

// link appends name to parent, persists the listing and registers e.
// Caller must hold fs.mu.
func (fs *FileSystem) link(parent *Entry, name string, e *Entry, fire *[]*Entry) {
	parent.children = append(parent.children, name)
	fs.backend.SetChildren(parent.path, parent.children)
	fs.entries[e.path] = e
	*fire = append(*fire, parent)
}

// DeleteEntry removes path and everything beneath it. Absent paths are a
// no-op. The name is dropped from the parent listing first; then every
// removed entry is marked deleted and its records are removed from the
// backend. Signals for the parent and every removed entry fire only
// after the whole subtree is gone. Deleting the root empties it but
// keeps the root itself.
func (fs *FileSystem) DeleteEntry(path string) {
	path = Clean(path)
	var fire []*Entry

	fs.mu.Lock()
	e, ok := fs.entries[path]
	if !ok {
		fs.mu.Unlock()
		return
	}
	if path == "" {
		children := e.children
		e.children = []string{}
		fs.backend.SetChildren("", e.children)
		fire = append(fire, e)
		for _, name := range children {
			fs.removeTree(name, &fire)
		}
	} else {
		parentPath, name := SplitName(path)
		if parent, ok := fs.entries[parentPath]; ok {
			parent.children = removeName(parent.children, name)
			fs.backend.SetChildren(parent.path, parent.children)
			fire = append(fire, parent)
		}
		fs.removeTree(path, &fire)
	}
	fs.mu.Unlock()

	signalAll(fire)
}

// removeTree deletes path and its descendants, pre-order. Caller must
// hold fs.mu.
func (fs *FileSystem) removeTree(path string, fire *[]*Entry) {
	stack := []string{path}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e, ok := fs.entries[p]
		if !ok {
			continue
		}
		delete(fs.entries, p)
		e.exists = false
		if e.dir {
			fs.backend.RemoveChildren(p)
			for i := len(e.children) - 1; i >= 0; i-- {
				stack = append(stack, JoinName(p, e.children[i]))
			}
		} else {
			fs.backend.RemoveContents(p)
		}
		fs.backend.RemoveAttributes(p)
		*fire = append(*fire, e)
	}
}

func removeName(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func signalAll(entries []*Entry) {
	for _, e := range entries {
		e.changes.Signal()
	}
}

// WalkFunc is called for each entry visited by Walk. Returning an error
// stops the walk and is returned from Walk.
type WalkFunc func(e *Entry) error

// Walk visits path and everything beneath it depth-first, parents before
// children, in listing order. The set of entries is captured before the
// first call, so fn may read or modify the tree.
func (fs *FileSystem) Walk(path string, fn WalkFunc) error {
	path = Clean(path)
	fs.mu.Lock()
	var order []*Entry
	stack := []string{path}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := fs.entries[p]
		if !ok {
			continue
		}
		order = append(order, e)
		if e.dir {
			for i := len(e.children) - 1; i >= 0; i-- {
				stack = append(stack, JoinName(p, e.children[i]))
			}
		}
	}
	fs.mu.Unlock()

	if len(order) == 0 {
		return &PathError{Path: path, Reason: "No such file", Err: ErrNotFound}
	}
	for _, e := range order {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// DetachAll clears the change listeners of every entry.
func (fs *FileSystem) DetachAll() {
	fs.mu.Lock()
	entries := make([]*Entry, 0, len(fs.entries))
	for _, e := range fs.entries {
		entries = append(entries, e)
	}
	fs.mu.Unlock()

	for _, e := range entries {
		e.changes.Clear()
	}
}
