package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/hostsync"
	"github.com/copycat-emu/copycat/internal/vfs"
)

func newSyncCmd(stdout, stderr io.Writer) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync <host-dir> [path]",
		Short: "Mirror a host directory onto the computer",
		Long: `Copy every file under a host directory into a directory on the
computer (the root by default). Files whose BLAKE3 digest already
matches are left alone. With --watch, keep mirroring host changes until
interrupted.`,
		Example: `  copycat sync ./src
  copycat sync ./src programs --watch`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			return withWorkspace(cmd.Context(), stderr, "sync", func(w *workspace) error {
				s := hostsync.New(w.computer().FileSystem(), args[0], dest,
					hostsync.WithLogger(w.log),
					hostsync.WithRecorder(w.rec, w.id),
				)
				show := func(c hostsync.Change) {
					fmt.Fprintf(stdout, "%-6s %s\n", c.Op, c.Path) //nolint:errcheck // best-effort stdout
				}
				if watch {
					return s.Watch(cmd.Context(), show)
				}
				changes, err := s.Scan(cmd.Context())
				for _, c := range changes {
					show(c)
				}
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					fmt.Fprintf(stdout, "%s is up to date\n", displayPath(vfs.Clean(dest))) //nolint:errcheck // best-effort stdout
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep mirroring changes until interrupted")
	return cmd
}
