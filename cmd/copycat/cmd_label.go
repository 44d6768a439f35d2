package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLabelCmd(stdout, stderr io.Writer) *cobra.Command {
	var clearLabel bool
	cmd := &cobra.Command{
		Use:   "label [new-label]",
		Short: "Show or set the computer label",
		Example: `  copycat label
  copycat label "mining turtle"
  copycat label --clear`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearLabel && len(args) > 0 {
				return fail(stderr, "label", errors.New("--clear takes no label"))
			}
			return withWorkspace(cmd.Context(), stderr, "label", func(w *workspace) error {
				c := w.computer()
				switch {
				case clearLabel:
					c.SetLabel("")
				case len(args) == 1:
					c.SetLabel(args[0])
				default:
					if c.Label() == "" {
						fmt.Fprintln(stdout, "(no label)") //nolint:errcheck // best-effort stdout
					} else {
						fmt.Fprintln(stdout, c.Label()) //nolint:errcheck // best-effort stdout
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clearLabel, "clear", false, "remove the label")
	return cmd
}
