// Package hostsync mirrors a directory on the host into a computer's
// filesystem, so programs can be edited with host tools while the
// computer runs.
//
// Sync is one-way, host to computer. File contents are compared by
// BLAKE3 digest, so rewriting a file with identical bytes does not
// touch the computer's copy or its modification time.
package hostsync

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/telemetry"
	"github.com/copycat-emu/copycat/internal/vfs"
)

// Hash is a BLAKE3-256 digest.
type Hash [32]byte

// Sum returns the digest of data.
func Sum(data []byte) Hash { return blake3.Sum256(data) }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Op is the kind of change applied to the computer.
type Op string

// Change kinds.
const (
	OpWrite  Op = "write"
	OpMkdir  Op = "mkdir"
	OpRemove Op = "remove"
)

// Change is one mirrored change.
type Change struct {
	Op   Op
	Path string // path inside the computer
}

// Syncer mirrors one host directory into a directory of a filesystem.
// Safe for concurrent use.
type Syncer struct {
	fs       *vfs.FileSystem
	root     string
	dest     string
	log      *zap.Logger
	rec      events.Recorder
	computer int

	mu sync.Mutex // serializes compare-and-write
}

// Option configures New.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// WithRecorder sets the recorder applied changes are reported to.
func WithRecorder(r events.Recorder, computer int) Option {
	return func(s *Syncer) { s.rec, s.computer = r, computer }
}

// New returns a Syncer copying hostDir into dest ("" for the root).
func New(fsys *vfs.FileSystem, hostDir, dest string, opts ...Option) *Syncer {
	s := &Syncer{
		fs:     fsys,
		root:   filepath.Clean(hostDir),
		dest:   vfs.Clean(dest),
		log:    zap.NewNop(),
		rec:    events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// target maps a host path to its computer path. ok is false for paths
// outside the host directory.
func (s *Syncer) target(hostPath string) (string, bool) {
	rel, err := filepath.Rel(s.root, filepath.Clean(hostPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return s.dest, true
	}
	return vfs.JoinName(s.dest, vfs.Clean(filepath.ToSlash(rel))), true
}

// Scan copies the whole host directory. It returns the changes made.
func (s *Syncer) Scan(ctx context.Context) ([]Change, error) {
	var changes []Change
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c, ok, err := s.Apply(ctx, p)
		if err != nil {
			s.log.Warn("hostsync: cannot apply", zap.String("path", p), zap.Error(err))
			return nil
		}
		if ok {
			changes = append(changes, c)
		}
		return nil
	})
	if err != nil {
		return changes, fmt.Errorf("scanning %s: %w", s.root, err)
	}
	return changes, nil
}

// Apply brings the computer's copy of hostPath up to date: directories
// are created, files written when their digest changed, and paths that
// no longer exist on the host removed. ok is false when nothing changed.
func (s *Syncer) Apply(ctx context.Context, hostPath string) (c Change, ok bool, err error) {
	target, inside := s.target(hostPath)
	if !inside {
		return Change{}, false, nil
	}
	defer func() {
		if ok || err != nil {
			telemetry.RecordHostSync(ctx, string(c.Op), target, err)
		}
		if ok {
			s.rec.Record(events.Event{
				Type:     events.SyncApplied,
				Computer: s.computer,
				Actor:    events.ActorSync,
				Subject:  target,
				Message:  string(c.Op),
			})
		}
	}()

	info, err := os.Stat(hostPath)
	if errors.Is(err, fs.ErrNotExist) {
		return s.remove(target)
	}
	if err != nil {
		return Change{}, false, err
	}

	if info.IsDir() {
		if e := s.fs.Entry(target); e != nil && e.IsDirectory() {
			return Change{}, false, nil
		}
		if _, err := s.fs.CreateDirectory(target); err != nil {
			return Change{Op: OpMkdir, Path: target}, false, err
		}
		return Change{Op: OpMkdir, Path: target}, true, nil
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return Change{}, false, err
	}
	return s.write(target, data)
}

func (s *Syncer) write(target string, data []byte) (Change, bool, error) {
	c := Change{Op: OpWrite, Path: target}
	sum := Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.fs.Entry(target)
	// Compare with what the computer holds now, which the engine may
	// have edited since the last sync.
	if e != nil && !e.IsDirectory() && Sum(e.Contents()) == sum {
		return Change{}, false, nil
	}

	parent, _ := vfs.SplitName(target)
	if _, err := s.fs.CreateDirectory(parent); err != nil {
		return c, false, err
	}
	e, err := s.fs.CreateFile(target)
	if err != nil {
		return c, false, err
	}
	if err := e.SetContents(data); err != nil {
		return c, false, err
	}
	return c, true, nil
}

func (s *Syncer) remove(target string) (Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The mirrored directory itself is never removed.
	if target == s.dest || s.fs.Entry(target) == nil {
		return Change{}, false, nil
	}
	s.fs.DeleteEntry(target)
	return Change{Op: OpRemove, Path: target}, true, nil
}

// Watch scans the host directory, then applies host changes as they
// happen until ctx is done. onChange, if non-nil, is called for every
// applied change.
func (s *Syncer) Watch(ctx context.Context, onChange func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck // shutting down

	if err := s.addTree(w, s.root); err != nil {
		return err
	}
	changes, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	for _, c := range changes {
		notifyChange(onChange, c)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("hostsync: watcher error", zap.Error(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					// Files created before the watch was added are
					// picked up by scanning the new directory.
					if err := s.addTree(w, ev.Name); err != nil {
						s.log.Warn("hostsync: cannot watch", zap.String("path", ev.Name), zap.Error(err))
					}
					s.scanInto(ctx, ev.Name, onChange)
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			c, ok, err := s.Apply(ctx, ev.Name)
			if err != nil {
				s.log.Warn("hostsync: cannot apply", zap.String("path", ev.Name), zap.Error(err))
				continue
			}
			if ok {
				notifyChange(onChange, c)
			}
		}
	}
}

func (s *Syncer) scanInto(ctx context.Context, dir string, onChange func(Change)) {
	filepath.WalkDir(dir, func(p string, _ fs.DirEntry, err error) error { //nolint:errcheck // best-effort catch-up
		if err != nil {
			return nil
		}
		if c, ok, err := s.Apply(ctx, p); err == nil && ok {
			notifyChange(onChange, c)
		}
		return nil
	})
}

// addTree watches dir and every directory beneath it.
func (s *Syncer) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func notifyChange(fn func(Change), c Change) {
	if fn != nil {
		fn(c)
	}
}
