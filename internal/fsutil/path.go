// Package fsutil provides the filesystem helpers shared by the archive
// callbacks: path parsing, wildcard matching, FILETIME conversion and the
// mapping between Windows-style attributes and POSIX modes.
package fsutil

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Filename returns the last component of path. Both '/' and '\' are treated
// as separators. If withExt is false, everything from the last '.' of the
// component onward is removed.
func Filename(path string, withExt bool) string {
	name := path[strings.LastIndexAny(path, `/\`)+1:]
	if !withExt {
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
			name = name[:dot]
		}
	}
	return name
}

// Extension returns the extension of the last path component without the
// leading dot, or an empty string if the component has none.
func Extension(path string) string {
	name := Filename(path, true)
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		return name[dot+1:]
	}
	return ""
}

// SetFileModifiedTime sets the modification time of the file at path,
// leaving its access time untouched.
func SetFileModifiedTime(path string, mtime FileTime) error {
	if path == "" {
		return errors.New("empty path")
	}
	// A zero access time tells Chtimes to leave it unchanged.
	if err := os.Chtimes(path, time.Time{}, mtime.Time()); err != nil {
		return errors.Wrap(err, "unable to set modification time")
	}
	return nil
}
