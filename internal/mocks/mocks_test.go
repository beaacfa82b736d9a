package mocks

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

func TestMockFileSystem(t *testing.T) {
	mockFS := NewMockFileSystem()

	// Test Create and Open
	w, err := mockFS.Create("/test/file.txt", 0644)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, _ = w.Write([]byte("hello"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	r, err := mockFS.Open("/test/file.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	content, _ := io.ReadAll(r)
	if string(content) != "hello" {
		t.Errorf("content = %q, expected %q", string(content), "hello")
	}

	// Test Lstat after Create
	info, err := mockFS.Lstat("/test/file.txt")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("size = %d, expected 5", info.Size())
	}

	// Test Open for non-existent file
	if _, err := mockFS.Open("/nonexistent"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open should fail with ErrNotExist, got: %v", err)
	}

	// Test error injection
	mockFS.Errors["/error/path"] = errors.New("injected error")
	_, err = mockFS.Open("/error/path")
	if err == nil || err.Error() != "injected error" {
		t.Errorf("Expected injected error, got: %v", err)
	}
}

func TestMockFileSystemLinks(t *testing.T) {
	mockFS := NewMockFileSystem()
	mockFS.Links["/link"] = "target"

	info, err := mockFS.Lstat("/link")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("mode = %v, expected a symlink", info.Mode())
	}
	target, err := mockFS.Readlink("/link")
	if err != nil || target != "target" {
		t.Errorf("Readlink = %q, %v, expected %q", target, err, "target")
	}
}

func TestMockFileSystemMetadata(t *testing.T) {
	mockFS := NewMockFileSystem()

	attrs, err := mockFS.Attributes("/file")
	if err != nil || attrs != fsutil.AttributeArchive {
		t.Errorf("default Attributes = %v, %v", attrs, err)
	}

	if err := mockFS.SetModTime("/file", 42); err != nil {
		t.Fatalf("SetModTime failed: %v", err)
	}
	if err := mockFS.SetAttributes("/file", fsutil.AttributeReadOnly, 022); err != nil {
		t.Fatalf("SetAttributes failed: %v", err)
	}

	_, _, mtime, _ := mockFS.Times("/file")
	if mtime != 42 {
		t.Errorf("mtime = %d, expected 42", mtime)
	}
	expected := []string{"SetModTime:/file", "SetAttributes:/file"}
	if len(mockFS.Calls) != 2 || mockFS.Calls[0] != expected[0] || mockFS.Calls[1] != expected[1] {
		t.Errorf("Calls = %v, expected %v", mockFS.Calls, expected)
	}
	if len(mockFS.Umasks) != 1 || mockFS.Umasks[0] != 022 {
		t.Errorf("Umasks = %v, expected [22]", mockFS.Umasks)
	}
}

func TestMockFileSystemTempAndRename(t *testing.T) {
	mockFS := NewMockFileSystem()

	w, name, err := mockFS.CreateTemp("/out", ".a.zip.*.tmp")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	if name != "/out/.a.zip.1.tmp" {
		t.Errorf("temp name = %q, expected %q", name, "/out/.a.zip.1.tmp")
	}
	_, _ = w.Write([]byte("zip"))
	_ = w.Close()

	if err := mockFS.Chmod(name, 0o640); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := mockFS.Rename(name, "/out/a.zip"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	info, err := mockFS.Lstat("/out/a.zip")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, expected 0640", info.Mode())
	}
	if string(mockFS.Files["/out/a.zip"]) != "zip" {
		t.Errorf("content = %q, expected %q", mockFS.Files["/out/a.zip"], "zip")
	}
	if _, ok := mockFS.Files[name]; ok {
		t.Error("temporary file should be gone after Rename")
	}
}

func TestMockFileSystemWalk(t *testing.T) {
	mockFS := NewMockFileSystem()

	// Setup walk entries
	mockFS.WalkEntries = []WalkEntry{
		{Path: "/project", Info: NewFileInfo("project", 0, os.ModeDir|0755)},
		{Path: "/project/file1.txt", Info: NewFileInfo("file1.txt", 1, 0644)},
		{Path: "/project/skip", Info: NewFileInfo("skip", 0, os.ModeDir|0755)},
		{Path: "/project/skip/hidden.txt", Info: NewFileInfo("hidden.txt", 1, 0644)},
		{Path: "/project/file2.txt", Info: NewFileInfo("file2.txt", 1, 0644)},
		{Path: "/other/file3.txt", Info: NewFileInfo("file3.txt", 1, 0644)},
	}

	var visited []string
	err := mockFS.Walk("/project", func(path string, info os.FileInfo, err error) error {
		visited = append(visited, path)
		if filepath.Base(path) == "skip" {
			return filepath.SkipDir
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if len(visited) != 4 {
		t.Errorf("Walk visited %v, expected 4 paths", visited)
	}
}

func TestMockArchiveExtract(t *testing.T) {
	archive := NewMockArchive("zip",
		MockItem{Info: ports.ItemInfo{Path: "dir", IsDir: true}},
		MockItem{Info: ports.ItemInfo{Path: "dir/a.txt", Size: 3}, Content: []byte("abc")},
	)

	if archive.ItemCount() != 2 {
		t.Errorf("ItemCount = %d, expected 2", archive.ItemCount())
	}
	value, err := archive.ItemProperty(1, props.PropPath)
	if err != nil {
		t.Fatalf("ItemProperty failed: %v", err)
	}
	if path, _ := value.AsString(); path != "dir/a.txt" {
		t.Errorf("path = %q, expected %q", path, "dir/a.txt")
	}
	if _, err := archive.ItemProperty(5, props.PropPath); err == nil {
		t.Error("ItemProperty should fail for an out-of-range index")
	}

	archive.Errors["Extract"] = errors.New("corrupt")
	if err := archive.Extract(nil, false, nil); err == nil || err.Error() != "corrupt" {
		t.Errorf("Expected 'corrupt' error, got: %v", err)
	}
	if len(archive.ExtractCalls) != 1 {
		t.Errorf("ExtractCalls = %d, expected 1", len(archive.ExtractCalls))
	}
}

func TestMockFormats(t *testing.T) {
	formats := NewMockFormats()

	if _, err := formats.Open("/missing.zip", nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open should fail with ErrNotExist, got: %v", err)
	}

	formats.Archives["/a.zip"] = NewMockArchive("zip")
	reader, err := formats.Open("/a.zip", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if reader.Format() != "zip" {
		t.Errorf("Format = %q, expected %q", reader.Format(), "zip")
	}

	formats.Errors["Writer"] = errors.New("read-only format")
	if _, err := formats.Writer("/a.7z", 0o022); err == nil {
		t.Error("Writer should return the injected error")
	}
}
