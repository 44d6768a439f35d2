package docgen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/copycat-emu/copycat/internal/config"
)

const modulePath = "github.com/copycat-emu/copycat"

// newReflector creates a jsonschema.Reflector configured for TOML field
// names with doc comments extracted from the config package.
//
// AddGoComments resolves paths against the working directory, so it runs
// with the working directory set to the module root.
func newReflector() (*jsonschema.Reflector, error) {
	root, err := ModuleRoot()
	if err != nil {
		return nil, err
	}
	orig, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(root); err != nil {
		return nil, fmt.Errorf("chdir to module root: %w", err)
	}
	defer os.Chdir(orig) //nolint:errcheck // restoring the caller's directory

	r := &jsonschema.Reflector{FieldNameTag: "toml"}
	if err := r.AddGoComments(modulePath, "internal/config"); err != nil {
		return nil, fmt.Errorf("extracting Go comments: %w", err)
	}
	return r, nil
}

// GenerateConfigSchema produces a JSON Schema for copycat.toml. It
// reflects config.Config using TOML field names, takes descriptions from
// doc comments and annotates defaults and allowed values.
func GenerateConfigSchema() (*jsonschema.Schema, error) {
	r, err := newReflector()
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&config.Config{})
	s.Title = "copycat configuration"
	s.Description = "Schema for copycat.toml, the configuration file of a copycat workspace."
	annotate(s)
	return s, nil
}

// annotate fills in defaults from config.Default and the allowed values
// of enumerated fields.
func annotate(s *jsonschema.Schema) {
	d := config.Default()
	defaults := map[string]map[string]any{
		"Computer": {"id": d.Computer.ID, "width": d.Computer.Width, "height": d.Computer.Height},
		"Storage":  {"backend": d.Storage.Backend, "path": d.Storage.Path, "table": d.Storage.Table},
		"Log":      {"level": d.Log.Level, "format": d.Log.Format},
		"Events":   {"path": d.Events.Path},
	}
	enums := map[string]map[string][]any{
		"Storage": {"backend": {
			config.BackendVoid, config.BackendMemory, config.BackendFile,
			config.BackendMySQL, config.BackendPostgres,
		}},
		"Log": {
			"level":  {"debug", "info", "warn", "error"},
			"format": {config.FormatConsole, config.FormatJSON},
		},
	}

	for def, fields := range defaults {
		for field, v := range fields {
			if p := property(s, def, field); p != nil {
				p.Default = v
			}
		}
	}
	for def, fields := range enums {
		for field, vals := range fields {
			if p := property(s, def, field); p != nil {
				p.Enum = vals
			}
		}
	}
}

func property(s *jsonschema.Schema, def, field string) *jsonschema.Schema {
	d, ok := s.Definitions[def]
	if !ok || d.Properties == nil {
		return nil
	}
	p, _ := d.Properties.Get(field)
	return p
}

// EncodeSchema writes s as indented JSON.
func EncodeSchema(w io.Writer, s *jsonschema.Schema) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
