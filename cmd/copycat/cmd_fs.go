package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/archive"
	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/hostsync"
	"github.com/copycat-emu/copycat/internal/vfs"
)

var errNotFound = errors.New("no such file or directory")

// lookup returns the existing entry at p.
func lookup(fs *vfs.FileSystem, p string) (*vfs.Entry, error) {
	e := fs.Entry(p)
	if e == nil || !e.Exists() {
		return nil, fmt.Errorf("%s: %w", displayPath(p), errNotFound)
	}
	return e, nil
}

// displayPath shows the root as "/".
func displayPath(p string) string {
	if p = vfs.Clean(p); p == "" {
		return "/"
	}
	return p
}

func newLsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory on the computer",
		Long: `List the entries of a directory on the computer, in listing order.
Directories are shown with a trailing slash. Listing a file prints its
path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ""
			if len(args) == 1 {
				p = args[0]
			}
			return withWorkspace(cmd.Context(), stderr, "ls", func(w *workspace) error {
				fs := w.computer().FileSystem()
				e, err := lookup(fs, p)
				if err != nil {
					return err
				}
				if !e.IsDirectory() {
					fmt.Fprintln(stdout, e.Path()) //nolint:errcheck // best-effort stdout
					return nil
				}
				for _, name := range e.Children() {
					if child := fs.Entry(vfs.JoinName(e.Path(), name)); child != nil && child.IsDirectory() {
						name += "/"
					}
					fmt.Fprintln(stdout, name) //nolint:errcheck // best-effort stdout
				}
				return nil
			})
		},
	}
}

func newCatCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file from the computer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "cat", func(w *workspace) error {
				e, err := lookup(w.computer().FileSystem(), args[0])
				if err != nil {
					return err
				}
				if e.IsDirectory() {
					return fmt.Errorf("%s: is a directory", displayPath(args[0]))
				}
				_, err = stdout.Write(e.Contents())
				return err
			})
		},
	}
}

func newPutCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "put <host-file> [path]",
		Short: "Copy a host file onto the computer",
		Long: `Copy a host file onto the computer. The destination defaults to the
file's base name in the root; an existing directory receives the file
under its base name. Missing parent directories are created, and an
existing file is never overwritten: the copy gets a numbered name
(notes.txt becomes notes.1.txt). The final path is printed.`,
		Example: `  copycat put startup.lua
  copycat put build/game.lua programs/`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fail(stderr, "put", err)
			}
			return withWorkspace(cmd.Context(), stderr, "put", func(w *workspace) error {
				fs := w.computer().FileSystem()
				dest := filepath.Base(args[0])
				if len(args) == 2 {
					dest = args[1]
					if e := fs.Entry(dest); e != nil && e.Exists() && e.IsDirectory() {
						dest = vfs.JoinName(e.Path(), filepath.Base(args[0]))
					}
				}
				final, err := archive.AddFile(fs, dest, data)
				if err != nil {
					return err
				}
				w.record(events.FileUploaded, final, args[0])
				fmt.Fprintln(stdout, final) //nolint:errcheck // best-effort stdout
				return nil
			})
		},
	}
}

func newMkdirCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "mkdir", func(w *workspace) error {
				fs := w.computer().FileSystem()
				existed := fs.Entry(args[0]) != nil
				e, err := fs.CreateDirectory(args[0])
				if err != nil {
					return err
				}
				if !existed {
					w.record(events.DirectoryCreated, e.Path(), "")
				}
				fmt.Fprintln(stdout, displayPath(e.Path())) //nolint:errcheck // best-effort stdout
				return nil
			})
		},
	}
}

func newRmCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory tree",
		Long: `Delete a file, or a directory and everything beneath it. Removing the
root empties it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "rm", func(w *workspace) error {
				fs := w.computer().FileSystem()
				e, err := lookup(fs, args[0])
				if err != nil {
					return err
				}
				fs.DeleteEntry(e.Path())
				w.record(events.EntryDeleted, e.Path(), "")
				return nil
			})
		},
	}
}

func newHashCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <path>...",
		Short: "Print BLAKE3 digests of files on the computer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "hash", func(w *workspace) error {
				fs := w.computer().FileSystem()
				for _, p := range args {
					e, err := lookup(fs, p)
					if err != nil {
						return err
					}
					if e.IsDirectory() {
						return fmt.Errorf("%s: is a directory", displayPath(p))
					}
					fmt.Fprintf(stdout, "%s  %s\n", hostsync.Sum(e.Contents()), e.Path()) //nolint:errcheck // best-effort stdout
				}
				return nil
			})
		},
	}
}
