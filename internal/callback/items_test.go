package callback

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/arcbridge/internal/mocks"
)

func TestShouldExclude(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		expected bool
	}{
		{"node_modules", []string{"node_modules"}, true},
		{"src/node_modules", []string{"node_modules"}, true},
		{"a/b/c.pyc", []string{"*.pyc"}, true},
		{"a/testdata/x.bin", []string{"**/testdata/*.bin"}, true},
		{"a/other/x.bin", []string{"**/testdata/*.bin"}, false},
		{"keep.go", []string{"", "*.pyc"}, false},
		{"keep.go", nil, false},
		{"file?.txt", []string{"file?.txt"}, true},
	}

	for _, tt := range tests {
		result := ShouldExclude(tt.path, tt.patterns)
		if result != tt.expected {
			t.Errorf("ShouldExclude(%q, %v) = %v, expected %v", tt.path, tt.patterns, result, tt.expected)
		}
	}
}

func newProjectFS() *mocks.MockFileSystem {
	fsys := mocks.NewMockFileSystem()
	dir := mocks.NewFileInfo("proj", 0, os.ModeDir|0o755)
	fsys.Stats["/src/proj"] = dir
	fsys.Files["/src/single.txt"] = []byte("single")
	fsys.Files["/src/proj/a.txt"] = []byte("alpha")
	fsys.Links["/src/proj/link"] = "a.txt"
	fsys.WalkEntries = []mocks.WalkEntry{
		{Path: "/src/proj", Info: dir},
		{Path: "/src/proj/a.txt", Info: mocks.NewFileInfo("a.txt", 5, 0o644)},
		{Path: "/src/proj/link", Info: mocks.NewFileInfo("link", 5, os.ModeSymlink|0o777)},
		{Path: "/src/proj/node_modules", Info: mocks.NewFileInfo("node_modules", 0, os.ModeDir|0o755)},
		{Path: "/src/proj/node_modules/x.js", Info: mocks.NewFileInfo("x.js", 1, 0o644)},
		{Path: "/src/proj/sub", Info: mocks.NewFileInfo("sub", 0, os.ModeDir|0o755)},
		{Path: "/src/proj/sub/b.pyc", Info: mocks.NewFileInfo("b.pyc", 1, 0o644)},
	}
	return fsys
}

func TestCollectItems(t *testing.T) {
	fsys := newProjectFS()

	items, err := CollectItems(fsys, []string{"/src/single.txt", "/src/proj/"}, []string{"node_modules", "*.pyc"})
	require.NoError(t, err)

	var paths []string
	for _, item := range items {
		paths = append(paths, item.ArchivePath)
	}
	assert.Equal(t, []string{"single.txt", "proj", "proj/a.txt", "proj/link", "proj/sub"}, paths)

	assert.Equal(t, "/src/single.txt", items[0].Path)
	assert.Equal(t, uint64(6), items[0].Size)
	assert.True(t, items[1].IsDir())
	assert.Equal(t, uint64(0), items[1].Size)

	link := items[3]
	assert.True(t, link.IsSymlink())
	assert.Equal(t, "a.txt", link.LinkTarget)
	assert.Equal(t, uint64(5), link.Size)
}

func TestCollectItemsExcludedRoot(t *testing.T) {
	fsys := newProjectFS()

	items, err := CollectItems(fsys, []string{"/src/single.txt"}, []string{"*.txt"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCollectItemsErrors(t *testing.T) {
	fsys := newProjectFS()

	_, err := CollectItems(fsys, []string{"/src/missing"}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	fsys.Errors["/src/proj/link"] = errors.New("permission denied")
	_, err = CollectItems(fsys, []string{"/src/proj"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
