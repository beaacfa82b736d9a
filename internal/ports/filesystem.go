// Package ports defines interfaces (contracts) for external dependencies.
// These enable dependency injection and testability via mock implementations.
package ports

import (
	"io"
	"io/fs"
	"os"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
)

// FileSystem abstracts filesystem operations for testability.
// Production code uses the osfs adapter; tests use MockFileSystem.
type FileSystem interface {
	// Lstat returns file info for the named file without following links.
	Lstat(name string) (os.FileInfo, error)

	// MkdirAll creates a directory along with any necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// Readlink returns the target of the named symbolic link.
	Readlink(name string) (string, error)

	// Open opens the named file for reading.
	Open(name string) (io.ReadCloser, error)

	// Create creates or truncates the named file for writing.
	Create(name string, perm os.FileMode) (io.WriteCloser, error)

	// CreateTemp creates a new file in dir whose name is pattern with the
	// last "*" replaced by a random string. It returns the file and its name.
	CreateTemp(dir, pattern string) (io.WriteCloser, string, error)

	// Chmod changes the permission bits of the named file.
	Chmod(name string, mode os.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename renames (moves) oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Walk walks the file tree rooted at root, calling fn for each file or directory.
	Walk(root string, fn WalkFunc) error

	// Attributes returns the archive attribute word of the named file.
	Attributes(name string) (fsutil.Attributes, error)

	// SetAttributes applies an archive attribute word to the named file.
	SetAttributes(name string, attrs fsutil.Attributes, umask fsutil.Umask) error

	// Times returns the creation (or change), access and modification times.
	Times(name string) (ctime, atime, mtime fsutil.FileTime, err error)

	// SetModTime sets the modification time of the named file.
	SetModTime(name string, mtime fsutil.FileTime) error
}

// WalkFunc is the type of function called by Walk.
type WalkFunc func(path string, info fs.FileInfo, err error) error
