// Package mocks provides mock implementations for testing.
package mocks

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// FileTimes holds the three timestamps of a mock file.
type FileTimes struct {
	CTime fsutil.FileTime
	ATime fsutil.FileTime
	MTime fsutil.FileTime
}

// MockFileSystem implements ports.FileSystem for testing.
type MockFileSystem struct {
	// Files maps paths to file contents
	Files map[string][]byte
	// Stats maps paths to FileInfo for Lstat
	Stats map[string]os.FileInfo
	// Links maps symlink paths to their targets
	Links map[string]string
	// Attrs maps paths to attribute words
	Attrs map[string]fsutil.Attributes
	// FileTimes maps paths to timestamps
	FileTimes map[string]FileTimes
	// Errors maps paths to errors (for simulating failures)
	Errors map[string]error
	// WalkEntries contains entries to return during Walk
	WalkEntries []WalkEntry
	// Calls records mutating calls as "Method:path", in order
	Calls []string
	// Umasks records the umask passed to each SetAttributes call
	Umasks []fsutil.Umask
	// Modes records the mode passed to Chmod, by path
	Modes map[string]os.FileMode

	temps int
}

// WalkEntry represents a file or directory entry for Walk testing.
type WalkEntry struct {
	Path string
	Info os.FileInfo
	Err  error
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:     make(map[string][]byte),
		Stats:     make(map[string]os.FileInfo),
		Links:     make(map[string]string),
		Attrs:     make(map[string]fsutil.Attributes),
		FileTimes: make(map[string]FileTimes),
		Errors:    make(map[string]error),
		Modes:     make(map[string]os.FileMode),
	}
}

// NewFileInfo returns an os.FileInfo with the given name, size and mode.
func NewFileInfo(name string, size int64, mode os.FileMode) os.FileInfo {
	return &mockFileInfo{name: filepath.Base(name), size: size, mode: mode}
}

func (m *MockFileSystem) record(method, path string) {
	m.Calls = append(m.Calls, method+":"+path)
}

// Lstat returns file info for the named file.
func (m *MockFileSystem) Lstat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if info, ok := m.Stats[name]; ok {
		return info, nil
	}
	if content, ok := m.Files[name]; ok {
		mode := os.FileMode(0o644)
		if chmod, ok := m.Modes[name]; ok {
			mode = chmod
		}
		return NewFileInfo(name, int64(len(content)), mode), nil
	}
	if target, ok := m.Links[name]; ok {
		return NewFileInfo(name, int64(len(target)), os.ModeSymlink|0o777), nil
	}
	return nil, os.ErrNotExist
}

// MkdirAll creates a directory along with any necessary parents.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	m.record("MkdirAll", path)
	// Mark directory as existing
	if _, ok := m.Stats[path]; !ok {
		m.Stats[path] = NewFileInfo(path, 0, os.ModeDir|perm)
	}
	return nil
}

// Readlink returns the target of the named symbolic link.
func (m *MockFileSystem) Readlink(name string) (string, error) {
	if err, ok := m.Errors[name]; ok {
		return "", err
	}
	if target, ok := m.Links[name]; ok {
		return target, nil
	}
	return "", os.ErrNotExist
}

// Open opens the named file for reading.
func (m *MockFileSystem) Open(name string) (io.ReadCloser, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	content, ok := m.Files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Create returns a writer whose content is stored in Files when closed.
func (m *MockFileSystem) Create(name string, perm os.FileMode) (io.WriteCloser, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	m.record("Create", name)
	m.Files[name] = []byte{}
	return &mockWriter{fs: m, name: name}, nil
}

// CreateTemp returns a writer for a new file in dir. The random part of the
// name is a counter.
func (m *MockFileSystem) CreateTemp(dir, pattern string) (io.WriteCloser, string, error) {
	if err, ok := m.Errors[dir]; ok {
		return nil, "", err
	}
	m.temps++
	name := filepath.Join(dir, strings.Replace(pattern, "*", strconv.Itoa(m.temps), 1))
	m.record("CreateTemp", name)
	m.Files[name] = []byte{}
	return &mockWriter{fs: m, name: name}, name, nil
}

// Chmod records the mode of the named file.
func (m *MockFileSystem) Chmod(name string, mode os.FileMode) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.record("Chmod", name)
	m.Modes[name] = mode
	return nil
}

// Remove removes the named file or empty directory.
func (m *MockFileSystem) Remove(name string) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.record("Remove", name)
	delete(m.Files, name)
	delete(m.Stats, name)
	delete(m.Links, name)
	return nil
}

// Rename renames (moves) oldpath to newpath.
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if err, ok := m.Errors[oldpath]; ok {
		return err
	}
	m.record("Rename", oldpath)
	if mode, ok := m.Modes[oldpath]; ok {
		m.Modes[newpath] = mode
		delete(m.Modes, oldpath)
	}
	if content, ok := m.Files[oldpath]; ok {
		m.Files[newpath] = content
		delete(m.Files, oldpath)
	}
	if info, ok := m.Stats[oldpath]; ok {
		m.Stats[newpath] = info
		delete(m.Stats, oldpath)
	}
	return nil
}

// Walk walks WalkEntries below root, in order, honoring filepath.SkipDir
// and filepath.SkipAll.
func (m *MockFileSystem) Walk(root string, fn ports.WalkFunc) error {
	var skipped []string
	for _, entry := range m.WalkEntries {
		if entry.Path != root && !strings.HasPrefix(entry.Path, root+"/") {
			continue
		}
		if isBelow(entry.Path, skipped) {
			continue
		}
		err := fn(entry.Path, entry.Info, entry.Err)
		switch {
		case err == filepath.SkipAll:
			return nil
		case err == filepath.SkipDir:
			if entry.Info != nil && entry.Info.IsDir() {
				skipped = append(skipped, entry.Path)
			}
		case err != nil:
			return err
		}
	}
	return nil
}

func isBelow(path string, dirs []string) bool {
	for _, dir := range dirs {
		if strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

// Attributes returns the configured attribute word of the named file.
func (m *MockFileSystem) Attributes(name string) (fsutil.Attributes, error) {
	if err, ok := m.Errors[name]; ok {
		return 0, err
	}
	if attrs, ok := m.Attrs[name]; ok {
		return attrs, nil
	}
	return fsutil.AttributeArchive, nil
}

// SetAttributes records the attribute word of the named file.
func (m *MockFileSystem) SetAttributes(name string, attrs fsutil.Attributes, umask fsutil.Umask) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.record("SetAttributes", name)
	m.Attrs[name] = attrs
	m.Umasks = append(m.Umasks, umask)
	return nil
}

// Times returns the configured timestamps of the named file.
func (m *MockFileSystem) Times(name string) (ctime, atime, mtime fsutil.FileTime, err error) {
	if err, ok := m.Errors[name]; ok {
		return 0, 0, 0, err
	}
	t := m.FileTimes[name]
	return t.CTime, t.ATime, t.MTime, nil
}

// SetModTime records the modification time of the named file.
func (m *MockFileSystem) SetModTime(name string, mtime fsutil.FileTime) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.record("SetModTime", name)
	t := m.FileTimes[name]
	t.MTime = mtime
	m.FileTimes[name] = t
	return nil
}

// mockWriter buffers writes and commits them to the filesystem on Close.
type mockWriter struct {
	fs   *MockFileSystem
	name string
	buf  bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *mockWriter) Close() error {
	w.fs.Files[w.name] = w.buf.Bytes()
	return nil
}

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *mockFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *mockFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *mockFileInfo) Sys() interface{}   { return nil }

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
