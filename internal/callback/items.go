package callback

import (
	"io/fs"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// FSItem is a filesystem entry queued for compression.
type FSItem struct {
	// Path is the location on disk.
	Path string
	// ArchivePath is the slash-separated path stored in the archive.
	ArchivePath string
	// Mode is the file mode reported by Lstat.
	Mode fs.FileMode
	// Size is the content length: the file size, the link target length, or
	// zero for directories.
	Size uint64
	// LinkTarget is set for symbolic links.
	LinkTarget string
}

// IsDir reports whether the item is a directory.
func (i FSItem) IsDir() bool {
	return i.Mode.IsDir()
}

// IsSymlink reports whether the item is a symbolic link.
func (i FSItem) IsSymlink() bool {
	return i.Mode&fs.ModeSymlink != 0
}

// ShouldExclude reports whether an entry is excluded by patterns. Each pattern
// is tried against the base name with fsutil.WildcardMatch, then against the
// slash-separated relative path with doublestar so that patterns like
// "**/testdata/*.bin" work. Empty patterns are ignored.
func ShouldExclude(relPath string, patterns []string) bool {
	relPath = filepath.ToSlash(relPath)
	base := path.Base(relPath)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if fsutil.WildcardMatch(pattern, base) {
			return true
		}
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}

// CollectItems walks paths and returns the entries to compress. A directory
// is stored under its own base name, followed by its contents. Excluded
// directories are skipped entirely.
func CollectItems(fsys ports.FileSystem, paths []string, exclude []string) ([]FSItem, error) {
	var items []FSItem
	for _, root := range paths {
		root = filepath.Clean(root)
		info, err := fsys.Lstat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to stat %s", root)
		}

		baseName := filepath.Base(root)
		if !info.IsDir() {
			if ShouldExclude(baseName, exclude) {
				continue
			}
			item, err := newFSItem(fsys, root, baseName, info)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			continue
		}

		walkErr := fsys.Walk(root, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return errors.Wrapf(err, "unable to walk %s", p)
			}

			relPath, err := filepath.Rel(root, p)
			if err != nil {
				return errors.Wrapf(err, "unable to compute relative path for %s", p)
			}
			if relPath != "." && ShouldExclude(relPath, exclude) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Prefix with the root directory name
			archivePath := path.Join(baseName, filepath.ToSlash(relPath))
			item, err := newFSItem(fsys, p, archivePath, info)
			if err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return items, nil
}

func newFSItem(fsys ports.FileSystem, diskPath, archivePath string, info fs.FileInfo) (FSItem, error) {
	item := FSItem{
		Path:        diskPath,
		ArchivePath: archivePath,
		Mode:        info.Mode(),
	}
	switch {
	case info.IsDir():
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := fsys.Readlink(diskPath)
		if err != nil {
			return FSItem{}, errors.Wrapf(err, "unable to read link %s", diskPath)
		}
		item.LinkTarget = target
		item.Size = uint64(len(target))
	default:
		item.Size = uint64(info.Size())
	}
	return item, nil
}
