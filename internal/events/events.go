// Package events provides the audit log of what happened to a computer.
//
// Events are simple, synchronous, append-only records. The file recorder
// writes JSON lines to .copycat/events.jsonl; the reader scans them back.
// Recording is best-effort: errors are logged but never returned to
// callers.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	ComputerStarted     = "computer.started"
	ComputerStartFailed = "computer.start_failed"
	ComputerDisposed    = "computer.disposed"
	LabelChanged        = "label.changed"
	FileCreated         = "file.created"
	DirectoryCreated    = "directory.created"
	EntryDeleted        = "entry.deleted"
	StartupInjected     = "startup.injected"
	ArchiveExported     = "archive.exported"
	ArchiveImported     = "archive.imported"
	FileUploaded        = "file.uploaded"
	SyncApplied         = "sync.applied"
	SettingChanged      = "setting.changed"
	StoreRepaired       = "store.repaired"
)

// Actors.
const (
	ActorHost   = "host"
	ActorEngine = "engine"
	ActorSync   = "sync"
	ActorDoctor = "doctor"
)

// Event is a single recorded occurrence.
type Event struct {
	Seq      uint64          `json:"seq"`
	Type     string          `json:"type"`
	Ts       time.Time       `json:"ts"`
	Computer int             `json:"computer"`
	Actor    string          `json:"actor"`
	Subject  string          `json:"subject,omitempty"`
	Message  string          `json:"message,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Recorder records events. Safe for concurrent use. Best-effort.
type Recorder interface {
	Record(e Event)
}

// Provider is a Recorder that can also read its events back.
type Provider interface {
	Recorder
	// List returns the recorded events matching filter, oldest first.
	List(filter Filter) ([]Event, error)
	// LatestSeq returns the highest recorded sequence number, or 0.
	LatestSeq() (uint64, error)
	// Watch streams events with Seq > afterSeq until ctx is done.
	Watch(ctx context.Context, afterSeq uint64) (Watcher, error)
	Close() error
}

// Watcher yields events as they are recorded.
type Watcher interface {
	// Next blocks until the next event or until the watch context ends.
	Next() (Event, error)
	Close() error
}

// Discard silently drops all events.
var Discard Recorder = discardRecorder{}

type discardRecorder struct{}

func (discardRecorder) Record(Event) {}
