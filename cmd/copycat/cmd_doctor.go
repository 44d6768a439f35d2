package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/config"
	"github.com/copycat-emu/copycat/internal/doctor"
	"github.com/copycat-emu/copycat/internal/fsys"
	"github.com/copycat-emu/copycat/internal/kvstore"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var fix, verbose bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config and store health",
		Long: `Run diagnostic health checks on the config file and the store.

Checks that the config parses and validates, that no other process
holds the file store, that every stored record decodes, and that every
computer's directory listings match its records. Use --fix to write a
missing config, drop corrupt records and relink broken trees.`,
		Example: `  copycat doctor
  copycat doctor --fix
  copycat doctor --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFlag
			if path == "" {
				path = config.DefaultPath
			}
			d := &doctor.Doctor{}
			d.Register(&doctor.ConfigCheck{FS: fsys.OSFS{}, Path: path})
			ctx := &doctor.CheckContext{Verbose: verbose}

			w, err := openWorkspace(cmd.Context(), stderr)
			switch {
			case err == nil:
				defer w.Close()
				d.Recorder = w.rec
				ctx.Computer = w.id
				d.Register(&doctor.StoreLockCheck{Backend: w.cfg.Storage.Backend, Path: w.cfg.Storage.Path, Held: true})
				if w.store != nil {
					d.Register(&doctor.TreeListingsCheck{Store: w.store})
					d.Register(&doctor.TreeLinksCheck{Store: w.store})
				}
			case errors.Is(err, kvstore.ErrLocked):
				cfg, _, err := loadConfig()
				if err != nil {
					return fail(stderr, "doctor", err)
				}
				d.Register(&doctor.StoreLockCheck{Backend: cfg.Storage.Backend, Path: cfg.Storage.Path})
			default:
				fmt.Fprintf(stderr, "copycat doctor: %v\n", err) //nolint:errcheck // best-effort stderr
			}

			report := d.Run(ctx, stdout, fix)
			doctor.PrintSummary(stdout, report)
			if !report.Healthy() {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "attempt to fix issues automatically")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show extra diagnostic details")
	return cmd
}
