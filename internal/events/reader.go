package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// Filter specifies predicates for ReadFiltered. Zero values are ignored.
type Filter struct {
	Type     string    // match events with this Type
	Actor    string    // match events with this Actor
	Subject  string    // match events with this Subject
	Since    time.Time // match events at or after this time
	AfterSeq uint64    // match events with Seq > AfterSeq
}

// Match reports whether e satisfies every non-zero field of f.
func (f Filter) Match(e Event) bool {
	switch {
	case f.AfterSeq > 0 && e.Seq <= f.AfterSeq:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.Actor != "" && e.Actor != f.Actor:
		return false
	case f.Subject != "" && e.Subject != f.Subject:
		return false
	case !f.Since.IsZero() && e.Ts.Before(f.Since):
		return false
	}
	return true
}

// scan decodes JSONL events from r, skipping malformed lines (partial
// writes). It returns the number of bytes consumed by complete lines.
func scan(r io.Reader, fn func(Event)) (int64, error) {
	var n int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		n += int64(len(line)) + 1
		var e Event
		if json.Unmarshal(line, &e) != nil {
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("scanning events: %w", err)
	}
	return n, nil
}

// open opens the log at path; ok is false when it does not exist.
func open(path string) (f *os.File, ok bool, err error) {
	f, err = os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading events: %w", err)
	}
	return f, true, nil
}

// ReadAll reads all events from the JSONL file at path.
// Returns (nil, nil) if the file is missing or empty.
func ReadAll(path string) ([]Event, error) {
	return ReadFiltered(path, Filter{})
}

// ReadFiltered reads events from path and returns only those matching
// filter. Returns (nil, nil) if the file is missing or empty.
func ReadFiltered(path string, filter Filter) ([]Event, error) {
	f, ok, err := open(path)
	if !ok {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	var result []Event
	_, err = scan(f, func(e Event) {
		if filter.Match(e) {
			result = append(result, e)
		}
	})
	return result, err
}

// ReadLatestSeq returns the highest Seq in the events file, or 0 if
// the file is missing or empty.
func ReadLatestSeq(path string) (uint64, error) {
	f, ok, err := open(path)
	if !ok {
		return 0, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	var maxSeq uint64
	_, err = scan(f, func(e Event) { maxSeq = max(maxSeq, e.Seq) })
	return maxSeq, err
}

// ReadFrom reads events starting at byte offset. It returns the events
// read and the offset after the last complete line. A missing file
// yields (nil, offset, nil).
func ReadFrom(path string, offset int64) ([]Event, int64, error) {
	f, ok, err := open(path)
	if !ok {
		return nil, offset, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seeking events: %w", err)
	}
	var result []Event
	n, err := scan(f, func(e Event) { result = append(result, e) })
	return result, offset + n, err
}
