// Command genschema generates the JSON Schema and markdown reference docs
// for copycat.toml from the Go config structs. Run from the repository
// root:
//
//	go run ./cmd/genschema
//
// Output:
//
//	docs/schema/copycat-schema.json
//	docs/reference/config.md
//	docs/reference/cli.md
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/copycat-emu/copycat/internal/docgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genschema: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if _, err := os.Stat("go.mod"); err != nil {
		return fmt.Errorf("must run from repository root (go.mod not found)")
	}
	for _, dir := range []string{"docs/schema", "docs/reference"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	schema, err := docgen.GenerateConfigSchema()
	if err != nil {
		return fmt.Errorf("generating config schema: %w", err)
	}
	if err := docgen.WriteFile("docs/schema/copycat-schema.json", func(w io.Writer) error {
		return docgen.EncodeSchema(w, schema)
	}); err != nil {
		return err
	}
	if err := docgen.WriteFile("docs/reference/config.md", func(w io.Writer) error {
		return docgen.RenderMarkdown(w, schema)
	}); err != nil {
		return fmt.Errorf("writing config.md: %w", err)
	}

	// The CLI reference needs the real command tree.
	genDoc := exec.Command("go", "run", "./cmd/copycat", "gen-doc")
	genDoc.Stdout = os.Stdout
	genDoc.Stderr = os.Stderr
	if err := genDoc.Run(); err != nil {
		return fmt.Errorf("generating CLI docs: %w", err)
	}

	fmt.Println("Generated:")
	for _, f := range []string{
		"docs/schema/copycat-schema.json",
		"docs/reference/config.md",
		"docs/reference/cli.md",
	} {
		fmt.Printf("  %s\n", f)
	}
	return nil
}
