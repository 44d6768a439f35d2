package docgen

import (
	"bytes"
	"encoding/json"
	"testing"
)

// schemaJSON generates the config schema and decodes it generically.
func schemaJSON(t *testing.T) map[string]any {
	t.Helper()
	s, err := GenerateConfigSchema()
	if err != nil {
		t.Fatalf("GenerateConfigSchema: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeSchema(&buf, s); err != nil {
		t.Fatalf("EncodeSchema: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return raw
}

// defProperties extracts the properties map for a named $defs entry.
func defProperties(t *testing.T, raw map[string]any, defName string) map[string]any {
	t.Helper()
	defs, ok := raw["$defs"].(map[string]any)
	if !ok {
		t.Fatal("no $defs")
	}
	def, ok := defs[defName].(map[string]any)
	if !ok {
		t.Fatalf("no %s definition in $defs", defName)
	}
	props, ok := def["properties"].(map[string]any)
	if !ok {
		t.Fatalf("%s has no properties", defName)
	}
	return props
}

func TestGenerateConfigSchema(t *testing.T) {
	raw := schemaJSON(t)
	if raw["title"] != "copycat configuration" {
		t.Errorf("title = %v", raw["title"])
	}
	props := defProperties(t, raw, "Config")
	for _, want := range []string{"computer", "storage", "log", "events"} {
		if _, ok := props[want]; !ok {
			t.Errorf("missing Config property %q", want)
		}
	}
	for _, bad := range []string{"Computer", "Storage"} {
		if _, ok := props[bad]; ok {
			t.Errorf("found Go-style property %q, want TOML name", bad)
		}
	}
}

func TestConfigSchemaDescriptions(t *testing.T) {
	props := defProperties(t, schemaJSON(t), "Computer")
	id, ok := props["id"].(map[string]any)
	if !ok {
		t.Fatal("Computer.id property not a map")
	}
	if desc, _ := id["description"].(string); desc == "" {
		t.Error("Computer.id has no description; doc comments were not extracted")
	}
}

func TestConfigSchemaAnnotations(t *testing.T) {
	raw := schemaJSON(t)

	backend := defProperties(t, raw, "Storage")["backend"].(map[string]any)
	if backend["default"] != "file" {
		t.Errorf("storage.backend default = %v, want file", backend["default"])
	}
	enum, _ := backend["enum"].([]any)
	if len(enum) != 5 {
		t.Errorf("storage.backend enum = %v, want 5 backends", enum)
	}

	width := defProperties(t, raw, "Computer")["width"].(map[string]any)
	if width["default"] != float64(51) {
		t.Errorf("computer.width default = %v, want 51", width["default"])
	}
}

func TestConfigSchemaRequired(t *testing.T) {
	defs := schemaJSON(t)["$defs"].(map[string]any)
	storage := defs["Storage"].(map[string]any)
	required, _ := storage["required"].([]any)
	if len(required) != 1 || required[0] != "backend" {
		t.Errorf("Storage required = %v, want [backend]", required)
	}
}
