package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileRecorder appends events to a JSONL file. It uses O_APPEND for
// cross-process safety and a mutex for in-process serialization.
// Recording errors are logged and never returned.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	seq  uint64
	log  *zap.Logger
	now  func() time.Time
}

// NewFileRecorder opens (or creates) the event log at path, continuing
// the sequence of any events already in it. Parent directories are
// created as needed. A nil logger discards recording errors.
func NewFileRecorder(path string, log *zap.Logger) (*FileRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}

	maxSeq, err := ReadLatestSeq(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	return &FileRecorder{
		path: path,
		file: file,
		seq:  maxSeq,
		log:  log,
		now:  time.Now,
	}, nil
}

// Path returns the log file path.
func (r *FileRecorder) Path() string { return r.path }

// Record appends an event to the log, filling Seq and a zero Ts.
func (r *FileRecorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if e.Ts.IsZero() {
		e.Ts = r.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		r.log.Warn("events: marshal", zap.String("type", e.Type), zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := r.file.Write(data); err != nil {
		r.log.Warn("events: write", zap.String("path", r.path), zap.Error(err))
	}
}

// List returns events matching the filter from the underlying file.
func (r *FileRecorder) List(filter Filter) ([]Event, error) {
	return ReadFiltered(r.path, filter)
}

// LatestSeq returns the highest sequence number in the event log.
func (r *FileRecorder) LatestSeq() (uint64, error) {
	return ReadLatestSeq(r.path)
}

// Watch returns a Watcher that polls the event file for new events.
func (r *FileRecorder) Watch(ctx context.Context, afterSeq uint64) (Watcher, error) {
	return &fileWatcher{
		path:     r.path,
		afterSeq: afterSeq,
		ctx:      ctx,
		poll:     250 * time.Millisecond,
	}, nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// fileWatcher polls a JSONL file for new events.
type fileWatcher struct {
	path     string
	afterSeq uint64
	ctx      context.Context
	poll     time.Duration
	offset   int64
	buf      []Event
}

func (w *fileWatcher) Next() (Event, error) {
	for {
		if len(w.buf) > 0 {
			e := w.buf[0]
			w.buf = w.buf[1:]
			return e, nil
		}
		if err := w.ctx.Err(); err != nil {
			return Event{}, err
		}

		evts, offset, err := ReadFrom(w.path, w.offset)
		if err != nil {
			return Event{}, err
		}
		w.offset = offset
		for _, e := range evts {
			if e.Seq > w.afterSeq {
				w.afterSeq = e.Seq
				w.buf = append(w.buf, e)
			}
		}
		if len(w.buf) > 0 {
			continue
		}

		select {
		case <-w.ctx.Done():
			return Event{}, w.ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

// Close is a no-op; cancelling the watch context stops Next.
func (w *fileWatcher) Close() error { return nil }
