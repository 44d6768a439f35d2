package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/bridge"
	"github.com/copycat-emu/copycat/internal/config"
	"github.com/copycat-emu/copycat/internal/events"
	"github.com/copycat-emu/copycat/internal/fsys"
	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/logging"
	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/telemetry"
)

// workspace is everything a command needs: the loaded config, its
// logger, the opened store and the event recorder.
type workspace struct {
	cfg   *config.Config
	path  string // config file path
	log   *zap.Logger
	store kvstore.Store // nil for the void backend
	rec   events.Recorder
	tel   *telemetry.Provider
	id    int
}

// loadConfig reads the config named by --config, falling back to the
// defaults when no flag was given and ./copycat.toml is absent.
func loadConfig() (*config.Config, string, error) {
	path := configFlag
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}
	cfg, err := config.Load(fsys.OSFS{}, path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = config.Default()
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		cfg.Resolve(cwd)
	} else if err != nil {
		return nil, "", err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

// openWorkspace loads the config and opens the store and event log.
func openWorkspace(ctx context.Context, stderr io.Writer) (*workspace, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	w := &workspace{cfg: cfg, path: path, id: cfg.Computer.ID}
	if computerFlag >= 0 {
		w.id = computerFlag
	}

	w.log = logging.NewWriter(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, stderr)
	w.tel, err = telemetry.Init(ctx, "copycat", version)
	if err != nil {
		w.log.Warn("telemetry disabled", zap.Error(err))
	}

	w.store, err = openStore(ctx, cfg, w.log)
	if err != nil {
		w.Close()
		return nil, err
	}

	w.rec = events.Discard
	if cfg.Events.Path != "" {
		rec, err := events.NewFileRecorder(cfg.Events.Path, w.log)
		if err != nil {
			w.log.Warn("event log disabled", zap.String("path", cfg.Events.Path), zap.Error(err))
		} else {
			w.rec = rec
		}
	}
	return w, nil
}

// openStore opens the configured backend behind a Guard, so a failing
// store degrades to logged errors instead of failing every write.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (kvstore.Store, error) {
	var (
		store kvstore.Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.BackendVoid:
		return nil, nil
	case config.BackendMemory:
		store = kvstore.NewMemStore()
	case config.BackendFile:
		store, err = kvstore.OpenFileStore(fsys.OSFS{}, cfg.Storage.Path, kvstore.WithLock())
	case config.BackendMySQL:
		store, err = kvstore.OpenSQLStore(ctx, kvstore.MySQL, cfg.Storage.DSN, cfg.Storage.Table)
	case config.BackendPostgres:
		store, err = kvstore.OpenSQLStore(ctx, kvstore.Postgres, cfg.Storage.DSN, cfg.Storage.Table)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return kvstore.NewGuard(store,
		kvstore.WithGuardLogger(log),
		kvstore.WithFailureHook(func(op string, err error) {
			telemetry.RecordStoreFailure(ctx, op, err)
		}),
	), nil
}

// backend returns the persistence backend of computer id.
func (w *workspace) backend(id int) persist.Backend {
	if w.store == nil {
		return persist.Void{}
	}
	return persist.NewStorage(w.store, id, persist.WithLogger(w.log))
}

// computer returns the selected computer, unloaded.
func (w *workspace) computer() *bridge.Computer {
	return bridge.New(w.backend(w.id),
		bridge.WithID(w.id),
		bridge.WithLogger(w.log),
		bridge.WithRecorder(w.rec),
	)
}

// record appends a host event about the selected computer.
func (w *workspace) record(typ, subject, message string) {
	w.rec.Record(events.Event{
		Type:     typ,
		Computer: w.id,
		Actor:    events.ActorHost,
		Subject:  subject,
		Message:  message,
	})
}

// settingsStore returns the store settings live in. The void backend
// keeps them in memory for the life of the command.
func (w *workspace) settingsStore() kvstore.Store {
	if w.store == nil {
		return kvstore.NewMemStore()
	}
	return w.store
}

// Close releases the store, event log and telemetry.
func (w *workspace) Close() {
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			w.log.Error("closing store", zap.Error(err))
		}
	}
	if c, ok := w.rec.(io.Closer); ok {
		c.Close() //nolint:errcheck // best-effort close
	}
	if err := w.tel.Shutdown(context.Background()); err != nil {
		w.log.Warn("flushing telemetry", zap.Error(err))
	}
	w.log.Sync() //nolint:errcheck // stderr sync is best-effort
}

// withWorkspace opens the workspace, runs fn and closes the workspace.
// Errors from either are reported under the command name.
func withWorkspace(ctx context.Context, stderr io.Writer, name string, fn func(w *workspace) error) error {
	w, err := openWorkspace(ctx, stderr)
	if err != nil {
		return fail(stderr, name, err)
	}
	defer w.Close()
	if err := fn(w); err != nil {
		if errors.Is(err, errExit) {
			return err
		}
		return fail(stderr, name, err)
	}
	return nil
}
