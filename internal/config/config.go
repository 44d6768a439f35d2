// Package config handles loading and parsing copycat.toml configuration
// files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/copycat-emu/copycat/internal/fsys"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "copycat.toml"

// Storage backends.
const (
	BackendVoid     = "void"
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the top-level configuration of a copycat workspace.
type Config struct {
	Computer Computer `toml:"computer"`
	Storage  Storage  `toml:"storage"`
	Log      Log      `toml:"log"`
	Events   Events   `toml:"events"`
}

// Computer selects and sizes the computer the workspace drives.
type Computer struct {
	// ID of the computer inside the store. Several computers can share one
	// store.
	ID int `toml:"id"`
	// Label applied at start when the computer has no stored label.
	Label string `toml:"label,omitempty"`
	// Width of the terminal in cells. Zero keeps the engine default.
	Width int `toml:"width,omitempty"`
	// Height of the terminal in cells. Zero keeps the engine default.
	Height int `toml:"height,omitempty"`
}

// Storage selects where computers are persisted.
type Storage struct {
	// Backend is one of "void", "memory", "file", "mysql" or "postgres".
	Backend string `toml:"backend"`
	// Path of the JSON store file for the "file" backend.
	Path string `toml:"path,omitempty"`
	// DSN of the database for the "mysql" and "postgres" backends.
	DSN string `toml:"dsn,omitempty"`
	// Table holding the key-value rows for the SQL backends.
	Table string `toml:"table,omitempty"`
}

// Log configures diagnostics output.
type Log struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `toml:"level,omitempty"`
	// Format is "console" or "json".
	Format string `toml:"format,omitempty"`
}

// Events configures the event log.
type Events struct {
	// Path of the JSONL event log. Empty disables recording.
	Path string `toml:"path,omitempty"`
}

// Default returns the configuration written by "copycat config init".
func Default() *Config {
	return &Config{
		Computer: Computer{Width: 51, Height: 19},
		Storage: Storage{
			Backend: BackendFile,
			Path:    ".copycat/store.json",
			Table:   "copycat_kv",
		},
		Log:    Log{Level: "info", Format: FormatConsole},
		Events: Events{Path: ".copycat/events.jsonl"},
	}
}

// Marshal encodes the config to TOML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses a copycat.toml file at the given path using the
// provided filesystem. Relative storage and event paths are resolved
// against the directory holding the file.
func Load(fs fsys.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	cfg.Resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes TOML data into a Config. Keys absent from data keep their
// Default values; unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Resolve makes relative file paths absolute against dir.
func (c *Config) Resolve(dir string) {
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(dir, c.Storage.Path)
	}
	if c.Events.Path != "" && !filepath.IsAbs(c.Events.Path) {
		c.Events.Path = filepath.Join(dir, c.Events.Path)
	}
}

// ApplyEnv overrides fields from COPYCAT_* environment variables read
// through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for env, field := range map[string]*string{
		"COPYCAT_STORAGE_BACKEND": &c.Storage.Backend,
		"COPYCAT_STORAGE_PATH":    &c.Storage.Path,
		"COPYCAT_STORAGE_DSN":     &c.Storage.DSN,
		"COPYCAT_LOG_LEVEL":       &c.Log.Level,
		"COPYCAT_LOG_FORMAT":      &c.Log.Format,
		"COPYCAT_EVENTS_PATH":     &c.Events.Path,
	} {
		if v := getenv(env); v != "" {
			*field = v
		}
	}
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Computer.ID < 0 {
		errs = append(errs, fmt.Errorf("computer.id: must not be negative, got %d", c.Computer.ID))
	}
	if c.Computer.Width < 0 || c.Computer.Height < 0 {
		errs = append(errs, fmt.Errorf("computer: size must not be negative, got %dx%d",
			c.Computer.Width, c.Computer.Height))
	}
	switch c.Storage.Backend {
	case BackendVoid, BackendMemory:
	case BackendFile:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path: required for the file backend"))
		}
	case BackendMySQL, BackendPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn: required for the %s backend", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
