// Package archive moves files between a computer's filesystem and zip
// archives on the host.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/copycat-emu/copycat/internal/telemetry"
	"github.com/copycat-emu/copycat/internal/vfs"
)

// maxAttempts bounds the numbered names tried for a free destination.
const maxAttempts = 100

// ErrNoFreeName is returned when every numbered variant of a name is
// taken.
var ErrNoFreeName = errors.New("no free name")

// Export writes every entry of fs to w as a zip archive, depth-first.
// Directories other than the root become empty "dir/" entries. It returns
// the number of files written.
func Export(ctx context.Context, w io.Writer, fs *vfs.FileSystem) (files int, err error) {
	defer func() { telemetry.RecordArchive(ctx, "export", files, err) }()

	zw := zip.NewWriter(w)
	err = fs.Walk("", func(e *vfs.Entry) error {
		if e.Path() == "" {
			return nil
		}
		attrs := e.Attributes()
		if e.IsDirectory() {
			_, err := zw.CreateHeader(&zip.FileHeader{
				Name:     e.Path() + "/",
				Method:   zip.Store,
				Modified: attrs.Modification,
			})
			return err
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Path(),
			Method:   zip.Deflate,
			Modified: attrs.Modification,
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(e.Contents()); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		zw.Close() //nolint:errcheck // already failing
		return files, fmt.Errorf("exporting archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return files, fmt.Errorf("exporting archive: %w", err)
	}
	return files, nil
}

// Result describes an import.
type Result struct {
	// Dest is the directory the archive was unpacked into.
	Dest string
	// Simple reports whether the archive's single top-level folder was
	// stripped.
	Simple bool
	// Files are the paths written, in archive order.
	Files []string
	// Skipped are archive entries that could not be written.
	Skipped []string
}

// Import unpacks the zip archive r into a new top-level directory named
// after the archive (name without ".zip"), using the first free of
// name, name.1, ... name.99. When every entry sits under one folder that
// shares the archive's name, that folder is stripped. Files whose path
// is taken get a numbered name; parent directories are created as
// needed.
func Import(ctx context.Context, fs *vfs.FileSystem, r io.ReaderAt, size int64, name string) (res *Result, err error) {
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Files)
		}
		telemetry.RecordArchive(ctx, "import", n, err)
	}()

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	base := strings.TrimSuffix(path.Base(vfs.Clean(name)), ".zip")
	if base == "" {
		base = "archive"
	}
	dest, err := freeDirectory(fs, base)
	if err != nil {
		return nil, err
	}

	res = &Result{Dest: dest, Simple: isSimple(zr.File, base)}
	for _, f := range zr.File {
		rel := vfs.Clean(f.Name)
		if res.Simple {
			rel = strings.TrimPrefix(strings.TrimPrefix(rel, base), "/")
		}
		if rel == "" {
			continue
		}
		target := vfs.JoinName(dest, rel)

		if f.FileInfo().IsDir() {
			if _, err := fs.CreateDirectory(target); err != nil {
				res.Skipped = append(res.Skipped, f.Name)
			}
			continue
		}

		data, err := readFile(f)
		if err != nil {
			return res, fmt.Errorf("reading %s from archive: %w", f.Name, err)
		}
		written, err := AddFile(fs, target, data)
		if err != nil {
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		res.Files = append(res.Files, written)
	}
	return res, nil
}

// isSimple reports whether every entry lives under a top-level folder
// called base.
func isSimple(files []*zip.File, base string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		first, _, _ := strings.Cut(vfs.Clean(f.Name), "/")
		if first != base {
			return false
		}
	}
	return true
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only
	return io.ReadAll(rc)
}

// freeDirectory creates the first free directory of name, name.1, ...
func freeDirectory(fs *vfs.FileSystem, name string) (string, error) {
	for i := range maxAttempts {
		candidate := name
		if i > 0 {
			candidate = name + "." + strconv.Itoa(i)
		}
		if fs.Entry(candidate) != nil {
			continue
		}
		if _, err := fs.CreateDirectory(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNoFreeName)
}

// AddFile writes data to the first free of p, then prefix.1.suffix up to
// prefix.99.suffix, where suffix is the extension of p's final element.
// Parent directories are created as needed. It returns the path written.
func AddFile(fs *vfs.FileSystem, p string, data []byte) (string, error) {
	p = vfs.Clean(p)
	if p == "" {
		return "", &vfs.PathError{Path: p, Reason: "Cannot write to directory", Err: vfs.ErrPathConflict}
	}
	parent, _ := vfs.SplitName(p)
	if _, err := fs.CreateDirectory(parent); err != nil {
		return "", err
	}

	var lastErr error
	for i := range maxAttempts {
		candidate := UniqueName(p, i)
		if fs.Entry(candidate) != nil {
			continue
		}
		e, err := fs.CreateFile(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if err := e.SetContents(data); err != nil {
			return "", err
		}
		return candidate, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("%s: %w", p, ErrNoFreeName)
}

// UniqueName returns the i'th candidate name for p: p itself for 0,
// otherwise the number inserted before the extension of p's final
// element ("a/b.lua" → "a/b.2.lua").
func UniqueName(p string, i int) string {
	if i == 0 {
		return p
	}
	dir, name := vfs.SplitName(p)
	prefix, suffix := name, ""
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		prefix, suffix = name[:dot], name[dot:]
	}
	return vfs.JoinName(dir, prefix+"."+strconv.Itoa(i)+suffix)
}
