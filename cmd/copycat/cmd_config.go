package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/config"
)

func newConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect copycat.toml",
		Long: `Create and inspect the copycat configuration.

Settings come from copycat.toml (or --config), with COPYCAT_* environment
variables layered on top. Relative paths resolve against the directory
holding the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCmd(stdout, stderr))
	cmd.AddCommand(newConfigShowCmd(stdout, stderr))
	return cmd
}

func newConfigInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := configFlag
			if path == "" {
				path = config.DefaultPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fail(stderr, "config init", fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
			data, err := config.Default().Marshal()
			if err != nil {
				return fail(stderr, "config init", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fail(stderr, "config init", err)
			}
			fmt.Fprintf(stdout, "Wrote %s\n", path) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(stdout, stderr io.Writer) *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Print the effective configuration: the config file, or the defaults
when it is absent, with environment overrides applied and paths
resolved. Use --validate to check for errors without printing.`,
		Example: `  copycat config show
  copycat config show --validate
  COPYCAT_STORAGE_BACKEND=memory copycat config show`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return fail(stderr, "config show", err)
			}
			if validate {
				fmt.Fprintf(stdout, "%s is valid\n", path) //nolint:errcheck // best-effort stdout
				return nil
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fail(stderr, "config show", err)
			}
			stdout.Write(data) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the config and exit (0 = valid, 1 = errors)")
	return cmd
}
