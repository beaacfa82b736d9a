package callback

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// EmptyFileAlias names an in-memory buffer that was given no name.
const EmptyFileAlias = "[Content]"

// oldItems resolves the items an update carries over from an existing archive.
type oldItems struct {
	archive ports.ArchiveReader
	count   uint32
}

func newOldItems(archive ports.ArchiveReader) oldItems {
	if archive == nil {
		return oldItems{}
	}
	return oldItems{archive: archive, count: archive.ItemCount()}
}

func (o oldItems) contains(index uint32) bool {
	return index < o.count
}

func (o oldItems) property(index uint32, id props.PropID) (props.Value, error) {
	return o.archive.ItemProperty(index, id)
}

// BufferUpdateCallback feeds a single in-memory buffer to an archive writer,
// after the items of the archive being updated (if any).
type BufferUpdateCallback struct {
	progress
	old    oldItems
	buffer []byte
	name   string
	now    fsutil.FileTime
}

// NewBufferUpdateCallback creates a callback that adds buffer under name. old
// is the archive being updated, or nil when creating a new one.
func NewBufferUpdateCallback(handler *Handler, old ports.ArchiveReader, buffer []byte, name string) *BufferUpdateCallback {
	if name == "" {
		name = EmptyFileAlias
	}
	return &BufferUpdateCallback{
		progress: progress{handler: handler},
		old:      newOldItems(old),
		buffer:   buffer,
		name:     name,
		now:      fsutil.Now(),
	}
}

// ItemCount returns the number of old items plus the buffer.
func (c *BufferUpdateCallback) ItemCount() uint32 {
	return c.old.count + 1
}

// Property returns a property of the item at index. Old items are looked up
// in the old archive; the buffer is described from memory.
func (c *BufferUpdateCallback) Property(index uint32, id props.PropID) (props.Value, error) {
	if id == props.PropIsAnti {
		return props.Bool(false), nil
	}
	if c.old.contains(index) {
		return c.old.property(index, id)
	}
	switch id {
	case props.PropPath:
		return props.String(c.name), nil
	case props.PropIsDir:
		return props.Bool(false), nil
	case props.PropSize:
		return props.Uint64(uint64(len(c.buffer))), nil
	case props.PropAttrib:
		return props.Uint32(uint32(fsutil.AttributeNormal)), nil
	case props.PropCTime, props.PropATime, props.PropMTime:
		return props.FileTime(c.now), nil
	default:
		return props.Empty(), nil
	}
}

// Stream returns a reader over the buffer, or nil for old items.
func (c *BufferUpdateCallback) Stream(index uint32) (io.ReadCloser, error) {
	if c.old.contains(index) {
		return nil, nil
	}
	c.handler.notifyFile(c.name)
	return io.NopCloser(bytes.NewReader(c.buffer)), nil
}

// SetOperationResult fails if the writer could not store the item.
func (c *BufferUpdateCallback) SetOperationResult(index uint32, result ports.OperationResult) error {
	if result == ports.ResultOK {
		return nil
	} else if c.old.contains(index) {
		return errors.Errorf("unable to copy item %d: %s", index, result)
	}
	return errors.Errorf("unable to store %s: %s", c.name, result)
}

// VolumeSize is a no-op: buffers are never split into volumes.
func (c *BufferUpdateCallback) VolumeSize(index uint32) (uint64, error) {
	return 0, nil
}

// VolumeStream is a no-op: buffers are never split into volumes.
func (c *BufferUpdateCallback) VolumeStream(index uint32) (io.WriteCloser, error) {
	return nil, nil
}

// FileUpdateCallback feeds filesystem items to an archive writer, after the
// items of the archive being updated (if any).
type FileUpdateCallback struct {
	progress
	fs    ports.FileSystem
	old   oldItems
	items []FSItem
}

// NewFileUpdateCallback creates a callback that adds items. old is the archive
// being updated, or nil when creating a new one.
func NewFileUpdateCallback(handler *Handler, fsys ports.FileSystem, old ports.ArchiveReader, items []FSItem) *FileUpdateCallback {
	return &FileUpdateCallback{
		progress: progress{handler: handler},
		fs:       fsys,
		old:      newOldItems(old),
		items:    items,
	}
}

// ItemCount returns the number of old items plus the new ones.
func (c *FileUpdateCallback) ItemCount() uint32 {
	return c.old.count + uint32(len(c.items))
}

func (c *FileUpdateCallback) item(index uint32) (FSItem, error) {
	i := int(index - c.old.count)
	if i < 0 || i >= len(c.items) {
		return FSItem{}, errors.Errorf("item index out of range: %d", index)
	}
	return c.items[i], nil
}

// Property returns a property of the item at index.
func (c *FileUpdateCallback) Property(index uint32, id props.PropID) (props.Value, error) {
	if id == props.PropIsAnti {
		return props.Bool(false), nil
	}
	if c.old.contains(index) {
		return c.old.property(index, id)
	}
	item, err := c.item(index)
	if err != nil {
		return props.Empty(), err
	}

	switch id {
	case props.PropPath:
		return props.String(item.ArchivePath), nil
	case props.PropIsDir:
		return props.Bool(item.IsDir()), nil
	case props.PropSize:
		return props.Uint64(item.Size), nil
	case props.PropAttrib:
		attrs, err := c.fs.Attributes(item.Path)
		if err != nil {
			return props.Empty(), errors.Wrapf(err, "unable to read attributes of %s", item.Path)
		}
		return props.Uint32(uint32(attrs)), nil
	case props.PropCTime, props.PropATime, props.PropMTime:
		ctime, atime, mtime, err := c.fs.Times(item.Path)
		if err != nil {
			return props.Empty(), errors.Wrapf(err, "unable to read times of %s", item.Path)
		}
		switch id {
		case props.PropCTime:
			return props.FileTime(ctime), nil
		case props.PropATime:
			return props.FileTime(atime), nil
		default:
			return props.FileTime(mtime), nil
		}
	default:
		return props.Empty(), nil
	}
}

// Stream opens the content of the item at index. Directories and old items
// have no stream. Symbolic links are stored as their target text, which
// fsutil.SetFileAttributes turns back into a link on extraction.
func (c *FileUpdateCallback) Stream(index uint32) (io.ReadCloser, error) {
	if c.old.contains(index) {
		return nil, nil
	}
	item, err := c.item(index)
	if err != nil {
		return nil, err
	}
	if item.IsDir() {
		return nil, nil
	}

	c.handler.notifyFile(item.ArchivePath)
	if item.IsSymlink() {
		return io.NopCloser(strings.NewReader(item.LinkTarget)), nil
	}
	file, err := c.fs.Open(item.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", item.Path)
	}
	return file, nil
}

// SetOperationResult fails if the writer could not store the item.
func (c *FileUpdateCallback) SetOperationResult(index uint32, result ports.OperationResult) error {
	if result == ports.ResultOK {
		return nil
	} else if c.old.contains(index) {
		return errors.Errorf("unable to copy item %d: %s", index, result)
	}
	item, err := c.item(index)
	if err != nil {
		return err
	}
	return errors.Errorf("unable to store %s: %s", item.ArchivePath, result)
}

// Compile-time checks that the update callbacks implement ports.UpdateCallback.
var (
	_ ports.UpdateCallback = (*BufferUpdateCallback)(nil)
	_ ports.UpdateCallback = (*FileUpdateCallback)(nil)
)
