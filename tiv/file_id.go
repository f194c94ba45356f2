package tiv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FileID identifies a file for caching and error bookkeeping.
//
// The identity is a 64-bit hash of the cleaned path. The path itself always
// travels next to the hash so that lookups can verify it: a hash collision
// between two distinct paths degrades to a cache miss instead of silently
// aliasing their entries.
type FileID struct {
	path string // cleaned full path
	hash uint64
}

// NewFileID returns a new [FileID] with a cleaned filepath.
func NewFileID(path string) FileID {
	path = filepath.Clean(path)

	return FileID{
		path: path,
		hash: xxhash.Sum64String(path),
	}
}

// GetPath returns the full cleaned filepath.
func (id FileID) GetPath() string {
	return id.path
}

// GetName returns only the filename (last path element).
func (id FileID) GetName() string {
	return filepath.Base(id.path)
}

// GetExt returns the filename extension in lower case with leading dot (.png).
func (id FileID) GetExt() string {
	return GetFileExt(id.path)
}

func GetFileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Hash returns the identity hash used as the cache key.
func (id FileID) Hash() uint64 {
	return id.hash
}

func (id FileID) String() string {
	return fmt.Sprintf("%016x_%s", id.hash, id.path)
}
