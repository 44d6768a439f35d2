// copycat is the command-line host for emulated computers: it inspects and
// edits a computer's persisted filesystem, moves files in and out, and
// boots the computer against the registered engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

var (
	// configFlag holds --config. Empty means copycat.toml in the working
	// directory, which may be absent.
	configFlag string
	// computerFlag holds --computer. Negative means the configured id.
	computerFlag int
)

// run executes the copycat CLI with the given args, writing output to
// stdout and errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "copycat: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "copycat",
		Short:         "Host and inspect emulated computers",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "copycat: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "",
		"path to copycat.toml (default: ./copycat.toml if present)")
	root.PersistentFlags().IntVar(&computerFlag, "computer", -1,
		"computer id (default: computer.id from the config)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newLsCmd(stdout, stderr),
		newCatCmd(stdout, stderr),
		newPutCmd(stdout, stderr),
		newMkdirCmd(stdout, stderr),
		newRmCmd(stdout, stderr),
		newHashCmd(stdout, stderr),
		newLabelCmd(stdout, stderr),
		newExportCmd(stdout, stderr),
		newImportCmd(stdout, stderr),
		newStartupCmd(stdout, stderr),
		newComputersCmd(stdout, stderr),
		newSettingsCmd(stdout, stderr),
		newEventsCmd(stdout, stderr),
		newSyncCmd(stdout, stderr),
		newBootCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newConfigCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}

// fail reports err for the named command and returns errExit.
func fail(stderr io.Writer, name string, err error) error {
	fmt.Fprintf(stderr, "copycat %s: %v\n", name, err) //nolint:errcheck // best-effort stderr
	return errExit
}
