package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/settings"
)

func newSettingsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "settings [id value]",
		Short: "Show or change stored engine settings",
		Long: `With no arguments, print every stored setting as id = value, sorted by
id. With an id and a value, store the value. Values are parsed as JSON
when they parse, so true, 42 and "text" keep their types; anything else
is stored as a string.`,
		Example: `  copycat settings
  copycat settings http_enable false
  copycat settings default_computer_settings shell.autocomplete=false`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), stderr, "settings", func(w *workspace) error {
				s := settings.Open(w.settingsStore(), settings.WithLogger(w.log))
				if len(args) == 2 {
					if err := s.Set(args[0], settings.ParseValue(args[1])); err != nil {
						return err
					}
					w.record(events.SettingChanged, args[0], args[1])
					return nil
				}
				values := s.Values()
				if len(values) == 0 {
					fmt.Fprintln(stdout, "No settings.") //nolint:errcheck // best-effort stdout
					return nil
				}
				for _, id := range slices.Sorted(maps.Keys(values)) {
					b, err := json.Marshal(values[id])
					if err != nil {
						return fmt.Errorf("encoding %s: %w", id, err)
					}
					fmt.Fprintf(stdout, "%s = %s\n", id, b) //nolint:errcheck // best-effort stdout
				}
				return nil
			})
		},
	}
}
