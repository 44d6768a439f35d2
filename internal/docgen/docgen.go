// Package docgen generates the JSON Schema of copycat.toml and markdown
// reference docs for the config format and the CLI.
package docgen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const generatedNote = "> **Auto-generated**, do not edit. Run `go run ./cmd/genschema` to regenerate.\n\n"

// ModuleRoot finds the repo root by walking up from the current directory
// looking for go.mod.
func ModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent of %s", dir)
		}
		dir = parent
	}
}

// WriteFile renders into a temp file next to path and renames it into
// place, so readers never see a partial document.
func WriteFile(path string, render func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docgen-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := render(tmp); err != nil {
		tmp.Close()        //nolint:errcheck // already failing
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
