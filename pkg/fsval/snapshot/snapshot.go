// Package snapshot captures the metadata of a filesystem subtree as an
// ordered list of entries. Snapshots hold no file content and are read-only
// once built.
package snapshot

import (
	"fmt"
	"path"
	"strings"
)

// Kind is the type of a snapshot entry.
type Kind string

const (
	// KindFile is a regular file (symlinks are reported as files).
	KindFile Kind = "file"

	// KindDirectory is a directory. Its Path carries a trailing "/".
	KindDirectory Kind = "directory"
)

// ParseKind parses a kind name. The empty string is not a valid kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFile:
		return KindFile, nil
	case KindDirectory, "dir":
		return KindDirectory, nil
	default:
		return "", fmt.Errorf("unknown entry type %q (want %q or %q)", s, KindFile, KindDirectory)
	}
}

// Entry is the metadata of one file or directory in a snapshot.
type Entry struct {
	// Name is the base name, without any trailing separator.
	Name string `json:"name" yaml:"name"`

	// Path is slash-separated and relative to the snapshot root.
	// Directory paths end with "/".
	Path string `json:"path" yaml:"path"`

	// AbsPath is the absolute, OS-native path.
	AbsPath string `json:"abs_path" yaml:"abs_path"`

	// Size is the size in bytes as reported by lstat.
	Size int64 `json:"size" yaml:"size"`

	// Kind is file or directory.
	Kind Kind `json:"type" yaml:"type"`

	// Extension includes the leading dot. Empty for directories.
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"`

	ModifyNS int64 `json:"mtime_ns" yaml:"mtime_ns"`
	ChangeNS int64 `json:"ctime_ns" yaml:"ctime_ns"`
	AccessNS int64 `json:"atime_ns" yaml:"atime_ns"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Depth returns the number of path segments above the entry.
func (e Entry) Depth() int {
	return strings.Count(strings.TrimSuffix(e.Path, "/"), "/")
}

// Snapshot is an ordered list of entries with unique paths.
type Snapshot []Entry

// Len returns the number of entries.
func (s Snapshot) Len() int {
	return len(s)
}

// Paths returns the entry paths in snapshot order.
func (s Snapshot) Paths() []string {
	paths := make([]string, len(s))
	for i, e := range s {
		paths[i] = e.Path
	}
	return paths
}

// Select returns the entries for which keep returns true, preserving order.
// The result never aliases the receiver.
func (s Snapshot) Select(keep func(Entry) bool) Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, e := range s {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// TotalSize returns the sum of all file sizes.
func (s Snapshot) TotalSize() int64 {
	var total int64
	for _, e := range s {
		if !e.IsDir() {
			total += e.Size
		}
	}
	return total
}

// FromPaths builds an in-memory snapshot from relative paths. Paths ending in
// "/" become directories. It is meant for tests and for callers that already
// hold a listing.
func FromPaths(paths ...string) Snapshot {
	s := make(Snapshot, 0, len(paths))
	for _, p := range paths {
		kind := KindFile
		if strings.HasSuffix(p, "/") {
			kind = KindDirectory
		}
		name := path.Base(strings.TrimSuffix(p, "/"))
		e := Entry{
			Name:    name,
			Path:    p,
			AbsPath: "/" + strings.TrimPrefix(p, "/"),
			Kind:    kind,
		}
		if kind == KindFile {
			e.Extension = path.Ext(name)
		}
		s = append(s, e)
	}
	return s
}
