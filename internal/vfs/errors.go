package vfs

import "errors"

// Sentinel errors. Operations wrap the first two in a [*PathError]; match
// with errors.Is.
var (
	// ErrPathConflict: a directory was requested where a file exists, or
	// a file where a directory exists.
	ErrPathConflict = errors.New("path conflict")

	// ErrAccessDenied: a file's parent is missing or is not a directory.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound: the path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDeleted is returned when writing to an entry that has been
	// deleted. Stale handles are expected, so this is an error rather
	// than a panic.
	ErrDeleted = errors.New("File has been deleted")
)

// PathError reports a failed filesystem operation on one path. Its
// message is the one shown to sandboxed programs, e.g.
// "/rom/a: File exists".
type PathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathError) Error() string {
	return "/" + e.Path + ": " + e.Reason
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// MisuseError is the panic value raised when a file-only operation is
// called on a directory or the reverse. It marks a caller bug, not a
// runtime condition.
type MisuseError struct {
	Op   string
	Path string
	Want string // "file" or "directory"
}

func (e *MisuseError) Error() string {
	if e.Want == "directory" {
		return e.Op + " /" + e.Path + ": Not a directory"
	}
	return e.Op + " /" + e.Path + ": Not a file"
}
