package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/archive"
	"github.com/copycat-emu/copycat/internal/events"
)

func newExportCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "export <zip>",
		Short: "Export the computer's files as a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "export", func(w *workspace) error {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				n, err := archive.Export(cmd.Context(), f, w.computer().FileSystem())
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					os.Remove(args[0]) //nolint:errcheck // discarding a partial archive
					return err
				}
				w.record(events.ArchiveExported, args[0], strconv.Itoa(n)+" files")
				fmt.Fprintf(stdout, "Exported %d files to %s\n", n, args[0]) //nolint:errcheck // best-effort stdout
				return nil
			})
		},
	}
}

func newImportCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "import <zip>",
		Short: "Import a zip archive into a new directory",
		Long: `Import a zip archive into a fresh directory named after it (game.zip
becomes game, or game.1 when game exists). When every entry sits under a
single top-level folder with the archive's name, that folder is
stripped. Entries that clash with existing files are skipped and
listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fail(stderr, "import", err)
			}
			defer f.Close() //nolint:errcheck // read-only
			info, err := f.Stat()
			if err != nil {
				return fail(stderr, "import", err)
			}

			return withWorkspace(cmd.Context(), stderr, "import", func(w *workspace) error {
				res, err := archive.Import(cmd.Context(), w.computer().FileSystem(), f, info.Size(), filepath.Base(args[0]))
				if err != nil {
					return err
				}
				w.record(events.ArchiveImported, res.Dest, strconv.Itoa(len(res.Files))+" files")
				fmt.Fprintf(stdout, "Imported %d files into %s\n", len(res.Files), res.Dest) //nolint:errcheck // best-effort stdout
				for _, s := range res.Skipped {
					fmt.Fprintf(stderr, "skipped %s\n", s) //nolint:errcheck // best-effort stderr
				}
				return nil
			})
		},
	}
}
