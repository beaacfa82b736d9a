// Package osfs provides a filesystem adapter using the standard library os
// package and the platform helpers in fsutil.
package osfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// OSFileSystem implements ports.FileSystem on the host filesystem.
type OSFileSystem struct{}

// New creates a new OSFileSystem adapter.
func New() *OSFileSystem {
	return &OSFileSystem{}
}

// Lstat returns file info for the named file without following links.
func (f *OSFileSystem) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}

// MkdirAll creates a directory along with any necessary parents.
func (f *OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Readlink returns the target of the named symbolic link.
func (f *OSFileSystem) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

// Open opens the named file for reading.
func (f *OSFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// Create creates or truncates the named file for writing.
func (f *OSFileSystem) Create(name string, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

// CreateTemp creates a new file in dir, named after pattern.
func (f *OSFileSystem) CreateTemp(dir, pattern string) (io.WriteCloser, string, error) {
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	return file, file.Name(), nil
}

// Chmod changes the permission bits of the named file.
func (f *OSFileSystem) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// Remove removes the named file or empty directory.
func (f *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Rename renames (moves) oldpath to newpath.
func (f *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Walk walks the file tree rooted at root, calling fn for each file or directory.
func (f *OSFileSystem) Walk(root string, fn ports.WalkFunc) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		return fn(path, info, err)
	})
}

// Attributes returns the archive attribute word of the named file.
func (f *OSFileSystem) Attributes(name string) (fsutil.Attributes, error) {
	return fsutil.GetFileAttributes(name)
}

// SetAttributes applies an archive attribute word to the named file.
func (f *OSFileSystem) SetAttributes(name string, attrs fsutil.Attributes, umask fsutil.Umask) error {
	return fsutil.SetFileAttributes(name, attrs, umask)
}

// Times returns the creation (or change), access and modification times.
func (f *OSFileSystem) Times(name string) (ctime, atime, mtime fsutil.FileTime, err error) {
	return fsutil.GetFileTimes(name)
}

// SetModTime sets the modification time of the named file.
func (f *OSFileSystem) SetModTime(name string, mtime fsutil.FileTime) error {
	return fsutil.SetFileModifiedTime(name, mtime)
}

// Compile-time check that OSFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*OSFileSystem)(nil)
