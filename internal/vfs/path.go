package vfs

import (
	"path"
	"strings"
)

// Clean normalizes p to the form the filesystem keys entries by: slash
// separated, no leading or trailing slash, "." and ".." resolved without
// escaping the root. The root is "".
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// SplitName splits a normalized path into its parent and final element.
// A top-level name has parent "".
func SplitName(p string) (parent, name string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// JoinName joins a normalized parent path and a child name.
func JoinName(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

// validName reports whether name can appear in a directory listing.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}
