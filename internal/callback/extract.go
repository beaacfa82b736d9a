package callback

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// ExtractCallback holds the state common to all extract callbacks: the
// current ask mode, password lookup and per-item error accounting.
type ExtractCallback struct {
	progress
	mode         ports.AskMode
	itemPath     string
	rejected     error
	numErrors    int
	errorMessage string
}

func newExtractCallback(handler *Handler) ExtractCallback {
	return ExtractCallback{progress: progress{handler: handler}}
}

// SetRatioInfo forwards compressed and uncompressed sizes to the handler.
func (c *ExtractCallback) SetRatioInfo(inSize, outSize uint64) {
	if c.handler.RatioCallback != nil {
		c.handler.RatioCallback(inSize, outSize)
	}
}

// PrepareOperation records what the engine is about to do.
func (c *ExtractCallback) PrepareOperation(index uint32, mode ports.AskMode) error {
	c.mode = mode
	return nil
}

// Password returns the handler's password, falling back to its
// PasswordCallback. It fails with ErrPasswordNotDefined when neither yields
// a password.
func (c *ExtractCallback) Password() (string, error) {
	password, err := c.handler.ResolvePassword()
	if err != nil {
		c.errorMessage = err.Error()
	}
	return password, err
}

// PresetPassword returns the handler's password if one was set, without
// consulting its PasswordCallback.
func (c *ExtractCallback) PresetPassword() (string, bool) {
	return c.handler.password, c.handler.passwordDefined
}

// Mode returns the mode announced by the last PrepareOperation.
func (c *ExtractCallback) Mode() ports.AskMode {
	return c.mode
}

// NumErrors returns the number of items that failed.
func (c *ExtractCallback) NumErrors() int {
	return c.numErrors
}

// ErrorMessage returns the message of the last failure, or "".
func (c *ExtractCallback) ErrorMessage() string {
	return c.errorMessage
}

// Err summarizes item failures as a single error, or returns nil.
func (c *ExtractCallback) Err() error {
	switch c.numErrors {
	case 0:
		return nil
	case 1:
		return errors.New(c.errorMessage)
	default:
		return errors.Errorf("%d items failed, last error: %s", c.numErrors, c.errorMessage)
	}
}

// beginItem remembers the path of the item being streamed, for error
// messages.
func (c *ExtractCallback) beginItem(item ports.ItemInfo) {
	c.itemPath = item.Path
	c.rejected = nil
}

// rejectItem marks the current item as failed before any content is
// decoded. The failure is counted when the engine reports its result.
func (c *ExtractCallback) rejectItem(err error) {
	c.rejected = err
}

// recordResult accounts for a failed item and reports whether the result
// was OK.
func (c *ExtractCallback) recordResult(index uint32, result ports.OperationResult) bool {
	name := c.itemPath
	rejected := c.rejected
	c.itemPath, c.rejected = "", nil
	if name == "" {
		name = fmt.Sprintf("item %d", index)
	}
	if rejected != nil {
		c.numErrors++
		c.errorMessage = rejected.Error()
		return false
	}
	if result == ports.ResultOK {
		return true
	}
	c.numErrors++
	c.errorMessage = fmt.Sprintf("%s: %s", name, result)
	return false
}

// discard is the stream returned in test mode.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }

// pendingItem is an extracted entry whose metadata has not been applied yet.
type pendingItem struct {
	target string
	item   ports.ItemInfo
}

// FileExtractCallback writes archive items beneath a destination directory.
// File metadata is applied as each item completes. Directory metadata is
// applied by Finish, deepest first, so that writing children does not
// disturb it.
type FileExtractCallback struct {
	ExtractCallback
	fs      ports.FileSystem
	destDir string
	umask   fsutil.Umask

	current *pendingItem
	dirs    []pendingItem
}

// NewFileExtractCallback creates a callback extracting into destDir. umask
// is applied to every mode restored from the archive.
func NewFileExtractCallback(handler *Handler, fsys ports.FileSystem, destDir string, umask fsutil.Umask) *FileExtractCallback {
	return &FileExtractCallback{
		ExtractCallback: newExtractCallback(handler),
		fs:              fsys,
		destDir:         filepath.Clean(destDir),
		umask:           umask,
	}
}

// cleanItemPath normalizes an archive item path to slash form and rejects
// paths that would leave the destination.
func cleanItemPath(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" {
		return "", errors.New("empty item path")
	}
	if path.IsAbs(name) || filepath.VolumeName(filepath.FromSlash(name)) != "" {
		return "", errors.Wrap(ErrPathTraversal, name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Wrap(ErrPathTraversal, name)
	}
	return clean, nil
}

// targetPath resolves an item path beneath the destination. Existing
// symbolic links along the way are refused, so a link extracted earlier
// cannot redirect later items outside the destination.
func (c *FileExtractCallback) targetPath(name string) (string, error) {
	clean, err := cleanItemPath(name)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return c.destDir, nil
	}

	parts := strings.Split(clean, "/")
	current := c.destDir
	for _, part := range parts[:len(parts)-1] {
		current = filepath.Join(current, part)
		info, err := c.fs.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", errors.Wrap(ErrPathTraversal, name)
		}
	}
	return filepath.Join(c.destDir, filepath.FromSlash(clean)), nil
}

// Stream creates the output for the item. Directories are created and get a
// nil stream. In test mode the content is discarded. Items whose path would
// leave the destination are skipped and reported as failed.
func (c *FileExtractCallback) Stream(index uint32, item ports.ItemInfo, mode ports.AskMode) (io.WriteCloser, error) {
	c.current = nil
	c.beginItem(item)
	switch mode {
	case ports.AskTest:
		return discard{}, nil
	case ports.AskSkip:
		return nil, nil
	}

	target, err := c.targetPath(item.Path)
	if err != nil {
		c.rejectItem(err)
		return nil, nil
	}

	if item.IsDir {
		if err := c.fs.MkdirAll(target, 0o755); err != nil {
			return nil, errors.Wrapf(err, "unable to create directory %s", target)
		}
		c.dirs = append(c.dirs, pendingItem{target: target, item: item})
		return nil, nil
	}

	if err := c.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create directory for %s", target)
	}
	// Replace rather than write through an existing link
	if info, err := c.fs.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := c.fs.Remove(target); err != nil {
			return nil, errors.Wrapf(err, "unable to remove existing link %s", target)
		}
	}

	file, err := c.fs.Create(target, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", target)
	}
	c.handler.notifyFile(item.Path)
	c.current = &pendingItem{target: target, item: item}
	return file, nil
}

// SetOperationResult records failures and, for extracted files, applies the
// modification time followed by the attributes. Attributes come last
// because they may turn the file into a symbolic link.
func (c *FileExtractCallback) SetOperationResult(index uint32, result ports.OperationResult) error {
	current := c.current
	c.current = nil

	if !c.recordResult(index, result) || current == nil {
		return nil
	}
	return c.applyMetadata(*current)
}

func (c *FileExtractCallback) applyMetadata(p pendingItem) error {
	if p.item.MTime != 0 {
		if err := c.fs.SetModTime(p.target, p.item.MTime); err != nil {
			return errors.Wrapf(err, "unable to set modification time of %s", p.target)
		}
	}
	if p.item.Attributes != 0 {
		if err := c.fs.SetAttributes(p.target, p.item.Attributes, c.umask); err != nil {
			return errors.Wrapf(err, "unable to set attributes of %s", p.target)
		}
	}
	return nil
}

// Finish applies directory metadata, deepest directories first. It returns
// the first failure but still attempts every directory.
func (c *FileExtractCallback) Finish() error {
	var firstErr error
	for i := len(c.dirs) - 1; i >= 0; i-- {
		if err := c.applyMetadata(c.dirs[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.dirs = nil
	return firstErr
}

// BufferExtractCallback collects the content of file items in memory,
// keyed by item path.
type BufferExtractCallback struct {
	ExtractCallback
	buffers map[string][]byte
	current *bufferStream
}

// NewBufferExtractCallback creates an in-memory extract callback.
func NewBufferExtractCallback(handler *Handler) *BufferExtractCallback {
	return &BufferExtractCallback{
		ExtractCallback: newExtractCallback(handler),
		buffers:         make(map[string][]byte),
	}
}

type bufferStream struct {
	name string
	buf  bytes.Buffer
}

func (s *bufferStream) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *bufferStream) Close() error                { return nil }

// Stream returns an in-memory writer for file items. Directories are
// skipped, and test mode discards the content.
func (c *BufferExtractCallback) Stream(index uint32, item ports.ItemInfo, mode ports.AskMode) (io.WriteCloser, error) {
	c.current = nil
	c.beginItem(item)
	switch {
	case mode == ports.AskTest:
		return discard{}, nil
	case mode == ports.AskSkip, item.IsDir:
		return nil, nil
	}
	c.handler.notifyFile(item.Path)
	c.current = &bufferStream{name: item.Path}
	return c.current, nil
}

// SetOperationResult stores the buffer of a successfully decoded item.
func (c *BufferExtractCallback) SetOperationResult(index uint32, result ports.OperationResult) error {
	current := c.current
	c.current = nil

	if c.recordResult(index, result) && current != nil {
		c.buffers[current.name] = current.buf.Bytes()
	}
	return nil
}

// Buffers returns the collected contents keyed by item path.
func (c *BufferExtractCallback) Buffers() map[string][]byte {
	return c.buffers
}

// Compile-time checks that the extract callbacks implement ports.ExtractCallback.
var (
	_ ports.ExtractCallback = (*FileExtractCallback)(nil)
	_ ports.ExtractCallback = (*BufferExtractCallback)(nil)
	_ ports.PresetPassword  = (*BufferExtractCallback)(nil)
	_ ports.PresetPassword  = prompt{}
)
