package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/vfs"
)

func newComputersCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "computers",
		Short: "List the computers with state in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkspace(cmd.Context(), stderr, "computers", func(w *workspace) error {
				if w.store == nil {
					fmt.Fprintln(stdout, "No computers.") //nolint:errcheck // best-effort stdout
					return nil
				}
				ids, err := persist.Computers(w.store)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(stdout, "No computers.") //nolint:errcheck // best-effort stdout
					return nil
				}
				tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLABEL\tENTRIES") //nolint:errcheck // best-effort stdout
				for _, id := range ids {
					fs := vfs.Open(w.backend(id))
					label := fs.Backend().Label()
					if label == "" {
						label = "-"
					}
					// The root itself is not counted.
					fmt.Fprintf(tw, "%d\t%s\t%d\n", id, label, fs.Len()-1) //nolint:errcheck // best-effort stdout
				}
				return tw.Flush()
			})
		},
	}
}
