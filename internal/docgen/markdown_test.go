package docgen

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderMarkdownConfigSchema(t *testing.T) {
	s, err := GenerateConfigSchema()
	if err != nil {
		t.Fatalf("GenerateConfigSchema: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, s); err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	md := buf.String()

	for _, section := range []string{"# copycat configuration", "## Config", "## Computer", "## Storage", "## Log", "## Events"} {
		if !strings.Contains(md, section) {
			t.Errorf("missing section %q", section)
		}
	}
	if strings.Index(md, "## Config") > strings.Index(md, "## Computer") {
		t.Error("root Config section should come first")
	}
	if !strings.Contains(md, "| `backend` | string | **yes** | `file` |") {
		t.Errorf("storage.backend row not rendered as expected:\n%s", md)
	}
	if !strings.Contains(md, "One of `void`, `memory`, `file`, `mysql`, `postgres`.") {
		t.Error("backend enum missing")
	}
	if !strings.Contains(md, "| `storage` | Storage |") {
		t.Error("ref type not rendered by name")
	}

	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "|") && strings.Count(line, "|")-strings.Count(line, `\|`) != 6 {
			t.Errorf("table row has wrong column count: %q", line)
		}
	}
}

func TestDescriptionEscapes(t *testing.T) {
	s, err := GenerateConfigSchema()
	if err != nil {
		t.Fatal(err)
	}
	p := property(s, "Storage", "backend")
	p.Description = "one\ntwo | three"
	p.Enum = nil
	if got := description(p); got != `one two \| three` {
		t.Errorf("description = %q", got)
	}
}

func TestTypeString(t *testing.T) {
	s, err := GenerateConfigSchema()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		def, field, want string
	}{
		{"Computer", "id", "integer"},
		{"Storage", "dsn", "string"},
		{"Config", "log", "Log"},
	}
	for _, tt := range tests {
		if got := typeString(property(s, tt.def, tt.field)); got != tt.want {
			t.Errorf("typeString(%s.%s) = %q, want %q", tt.def, tt.field, got, tt.want)
		}
	}
}
