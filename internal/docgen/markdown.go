package docgen

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// RenderMarkdown writes a configuration reference from a JSON Schema: one
// section per definition, the root first, each with a table of fields.
func RenderMarkdown(w io.Writer, s *jsonschema.Schema) error {
	title := s.Title
	if title == "" {
		title = "Configuration Reference"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Description)
	}
	b.WriteString(generatedNote)

	root := refName(s.Ref)
	names := make([]string, 0, len(s.Definitions))
	for name := range s.Definitions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == root || names[j] == root {
			return names[i] == root
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		def := s.Definitions[name]
		if def == nil || def.Properties == nil {
			continue
		}
		renderDefinition(&b, name, def)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderDefinition(b *strings.Builder, name string, def *jsonschema.Schema) {
	fmt.Fprintf(b, "## %s\n\n", name)
	if def.Description != "" {
		fmt.Fprintf(b, "%s\n\n", def.Description)
	}

	required := make(map[string]bool, len(def.Required))
	for _, r := range def.Required {
		required[r] = true
	}

	b.WriteString("| Field | Type | Required | Default | Description |\n")
	b.WriteString("|-------|------|----------|---------|-------------|\n")
	for pair := def.Properties.Oldest(); pair != nil; pair = pair.Next() {
		req := ""
		if required[pair.Key] {
			req = "**yes**"
		}
		dflt := ""
		if pair.Value.Default != nil {
			dflt = fmt.Sprintf("`%v`", pair.Value.Default)
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n",
			pair.Key, typeString(pair.Value), req, dflt, description(pair.Value))
	}
	b.WriteString("\n")
}

// typeString returns a human-readable type string for a property.
func typeString(p *jsonschema.Schema) string {
	switch {
	case p.Ref != "":
		return refName(p.Ref)
	case p.Type == "array" && p.Items != nil:
		return "[]" + typeString(p.Items)
	case p.Type == "object" && p.AdditionalProperties != nil:
		return "map[string]" + typeString(p.AdditionalProperties)
	case p.Type != "":
		return p.Type
	}
	return "any"
}

// refName extracts the type name from a $ref like "#/$defs/Storage".
func refName(ref string) string {
	return ref[strings.LastIndexByte(ref, '/')+1:]
}

// description returns the property description with its allowed values,
// flattened to one table cell.
func description(p *jsonschema.Schema) string {
	desc := p.Description
	if len(p.Enum) > 0 {
		vals := make([]string, len(p.Enum))
		for i, v := range p.Enum {
			vals[i] = fmt.Sprintf("`%v`", v)
		}
		desc = strings.TrimSpace(desc + " One of " + strings.Join(vals, ", ") + ".")
	}
	desc = strings.ReplaceAll(desc, "\n", " ")
	return strings.ReplaceAll(desc, "|", "\\|")
}
