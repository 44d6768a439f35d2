package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/bridge"
)

func newStartupCmd(stdout, stderr io.Writer) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "startup [base64]",
		Short: "Install a one-shot startup program",
		Long: `Install a program that runs once on the next boot. The program is
wrapped in a startup.lua that deletes itself and then runs the program.
Give the source base64-encoded, or as a host file with --file.`,
		Example: `  copycat startup cHJpbnQoImhpIik=
  copycat startup --file hello.lua`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var encoded string
			switch {
			case file != "" && len(args) == 0:
				src, err := os.ReadFile(file)
				if err != nil {
					return fail(stderr, "startup", err)
				}
				encoded = base64.StdEncoding.EncodeToString(src)
			case file == "" && len(args) == 1:
				encoded = args[0]
			default:
				return fail(stderr, "startup", errors.New("give either a base64 program or --file"))
			}
			return withWorkspace(cmd.Context(), stderr, "startup", func(w *workspace) error {
				if err := w.computer().InjectStartup(encoded); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Wrote %s\n", bridge.StartupFile) //nolint:errcheck // best-effort stdout
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the program from a host file")
	return cmd
}
