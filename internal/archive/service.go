// Package archive provides the archive operations behind the CLI: adding
// files and buffers, extracting, testing and listing.
package archive

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/adapters/osfs"
	"github.com/mcdonaldj/arcbridge/internal/callback"
	"github.com/mcdonaldj/arcbridge/internal/config"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// Result summarizes an add or extract operation.
type Result struct {
	Archive string
	Items   int
	Bytes   uint64
}

// Entry describes one archive item for listing.
type Entry struct {
	Path       string
	Size       uint64
	IsDir      bool
	Attributes fsutil.Attributes
	Mode       fsutil.Mode
	// MTime is zero when the archive does not record it.
	MTime time.Time
}

// Service provides archive operations with injected dependencies.
type Service struct {
	fs      ports.FileSystem
	formats ports.Formats
	logger  logrus.FieldLogger
	cfg     *config.Config
	umask   fsutil.Umask
	handler *callback.Handler
}

// NewService creates a new archive service with the given dependencies. The
// umask is resolved from cfg once, here.
func NewService(fs ports.FileSystem, formats ports.Formats, logger logrus.FieldLogger, cfg *config.Config) (*Service, error) {
	umask, err := cfg.ResolveUmask()
	if err != nil {
		return nil, fmt.Errorf("resolving umask: %w", err)
	}
	handler := callback.NewHandler()
	handler.SetPassword(cfg.Password)

	return &Service{
		fs:      fs,
		formats: formats,
		logger:  logger,
		cfg:     cfg,
		umask:   umask,
		handler: handler,
	}, nil
}

// NewDefaultService creates an archive service with real production dependencies.
func NewDefaultService(cfg *config.Config, logger logrus.FieldLogger) (*Service, error) {
	fsys := osfs.New()
	return NewService(
		fsys,
		NewRegistry(fsys, cfg.Compression, cfg.Level, logger),
		logger,
		cfg,
	)
}

// Handler returns the handler shared by all operations, so callers can
// attach progress, file and password callbacks.
func (s *Service) Handler() *callback.Handler {
	return s.handler
}

// Umask returns the umask applied to extracted items.
func (s *Service) Umask() fsutil.Umask {
	return s.umask
}

// openExisting opens dest if it exists, for appending. It returns nil when
// there is nothing to append to.
func (s *Service) openExisting(dest string) (ports.ArchiveReader, error) {
	if _, err := s.fs.Lstat(dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking %s: %w", dest, err)
	}
	old, err := s.formats.Open(dest, s.handler.Prompt())
	if err != nil {
		return nil, fmt.Errorf("opening existing archive: %w", err)
	}
	return old, nil
}

func (s *Service) update(dest string, build func(old ports.ArchiveReader) ports.UpdateCallback) error {
	writer, err := s.formats.Writer(dest, s.umask)
	if err != nil {
		return err
	}
	old, err := s.openExisting(dest)
	if err != nil {
		return err
	}
	if old != nil {
		defer func() { _ = old.Close() }()
	}

	if err := writer.Update(dest, old, build(old)); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// AddFiles compresses paths into dest, appending to dest if it exists.
// Directories are added recursively; the configured exclude patterns apply.
func (s *Service) AddFiles(dest string, paths []string) (Result, error) {
	result := Result{Archive: dest}

	items, err := callback.CollectItems(s.fs, paths, s.cfg.Exclude)
	if err != nil {
		return result, fmt.Errorf("collecting files: %w", err)
	}
	for _, item := range items {
		result.Bytes += item.Size
	}

	err = s.update(dest, func(old ports.ArchiveReader) ports.UpdateCallback {
		return callback.NewFileUpdateCallback(s.handler, s.fs, old, items)
	})
	if err != nil {
		return result, err
	}

	result.Items = len(items)
	s.logger.WithFields(logrus.Fields{
		"archive": dest,
		"items":   result.Items,
		"bytes":   result.Bytes,
	}).Info("Added files")
	return result, nil
}

// AddBuffer stores data in dest under name, appending to dest if it exists.
func (s *Service) AddBuffer(dest, name string, data []byte) (Result, error) {
	result := Result{Archive: dest}

	err := s.update(dest, func(old ports.ArchiveReader) ports.UpdateCallback {
		return callback.NewBufferUpdateCallback(s.handler, old, data, name)
	})
	if err != nil {
		return result, err
	}

	result.Items = 1
	result.Bytes = uint64(len(data))
	s.logger.WithFields(logrus.Fields{
		"archive": dest,
		"name":    name,
		"bytes":   result.Bytes,
	}).Info("Added buffer")
	return result, nil
}

// selectItems returns the indices whose path matches filter, or nil (all
// items) when filter is empty.
func selectItems(reader ports.ArchiveReader, filter string) ([]uint32, error) {
	if filter == "" {
		return nil, nil
	}
	indices := []uint32{}
	for index := uint32(0); index < reader.ItemCount(); index++ {
		value, err := reader.ItemProperty(index, props.PropPath)
		if err != nil {
			return nil, fmt.Errorf("reading item %d: %w", index, err)
		}
		path, _ := value.AsString()
		if fsutil.WildcardMatch(filter, path) {
			indices = append(indices, index)
		}
	}
	return indices, nil
}

func (s *Service) extract(archivePath, filter string, test bool, cb interface {
	ports.ExtractCallback
	Err() error
}) (int, error) {
	reader, err := s.formats.Open(archivePath, cb)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	indices, err := selectItems(reader, filter)
	if err != nil {
		return 0, err
	}
	count := len(indices)
	if indices == nil {
		count = int(reader.ItemCount())
	}

	if err := reader.Extract(indices, test, cb); err != nil {
		return count, fmt.Errorf("extracting %s: %w", archivePath, err)
	}
	return count, nil
}

// Extract writes the items of archivePath whose path matches filter (all
// items if filter is empty) beneath destDir, restoring times, attributes and
// symbolic links.
func (s *Service) Extract(archivePath, destDir, filter string) (Result, error) {
	result := Result{Archive: archivePath}
	if err := s.fs.MkdirAll(destDir, 0755); err != nil {
		return result, fmt.Errorf("creating destination: %w", err)
	}

	var bytes uint64
	h := *s.handler
	next := h.ProgressCallback
	h.ProgressCallback = func(completed uint64) bool {
		bytes = completed
		return next == nil || next(completed)
	}

	cb := callback.NewFileExtractCallback(&h, s.fs, destDir, s.umask)
	count, err := s.extract(archivePath, filter, false, cb)
	finishErr := cb.Finish()
	if err != nil {
		return result, err
	}
	if finishErr != nil {
		return result, fmt.Errorf("restoring directory metadata: %w", finishErr)
	}
	if err := cb.Err(); err != nil {
		return result, fmt.Errorf("extracting %s: %w", archivePath, err)
	}

	result.Items = count
	result.Bytes = bytes
	s.logger.WithFields(logrus.Fields{
		"archive": archivePath,
		"dest":    destDir,
		"items":   count,
	}).Info("Extracted archive")
	return result, nil
}

// ExtractToBuffers decodes the file items of archivePath whose path matches
// filter into memory, keyed by item path.
func (s *Service) ExtractToBuffers(archivePath, filter string) (map[string][]byte, error) {
	cb := callback.NewBufferExtractCallback(s.handler)
	if _, err := s.extract(archivePath, filter, false, cb); err != nil {
		return nil, err
	}
	if err := cb.Err(); err != nil {
		return cb.Buffers(), fmt.Errorf("extracting %s: %w", archivePath, err)
	}
	return cb.Buffers(), nil
}

// Test decodes every item of archivePath and verifies its checksum without
// writing anything.
func (s *Service) Test(archivePath string) (int, error) {
	cb := callback.NewBufferExtractCallback(s.handler)
	count, err := s.extract(archivePath, "", true, cb)
	if err != nil {
		return count, err
	}
	if err := cb.Err(); err != nil {
		return count, fmt.Errorf("testing %s: %w", archivePath, err)
	}
	s.logger.WithFields(logrus.Fields{
		"archive": archivePath,
		"items":   count,
	}).Info("Archive tested")
	return count, nil
}

// List returns the items of archivePath whose path matches filter.
func (s *Service) List(archivePath, filter string) ([]Entry, error) {
	reader, err := s.formats.Open(archivePath, s.handler.Prompt())
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	var entries []Entry
	for index := uint32(0); index < reader.ItemCount(); index++ {
		entry, err := s.entry(reader, index)
		if err != nil {
			return nil, err
		}
		if filter != "" && !fsutil.WildcardMatch(filter, entry.Path) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) entry(reader ports.ArchiveReader, index uint32) (Entry, error) {
	values := make(map[props.PropID]props.Value)
	for _, id := range []props.PropID{props.PropPath, props.PropSize, props.PropIsDir, props.PropAttrib, props.PropMTime} {
		value, err := reader.ItemProperty(index, id)
		if err != nil {
			return Entry{}, fmt.Errorf("reading %s of item %d: %w", id, index, err)
		}
		values[id] = value
	}

	var entry Entry
	entry.Path, _ = values[props.PropPath].AsString()
	entry.Size, _ = values[props.PropSize].AsUint64()
	entry.IsDir, _ = values[props.PropIsDir].AsBool()
	if attrs, ok := values[props.PropAttrib].AsUint32(); ok {
		entry.Attributes = fsutil.Attributes(attrs)
	}
	if entry.IsDir {
		entry.Attributes |= fsutil.AttributeDirectory
	}
	entry.Mode, _ = fsutil.AttributesToMode(entry.Attributes, s.umask)
	if mtime, ok := values[props.PropMTime].AsFileTime(); ok {
		entry.MTime = mtime.Time()
	}
	return entry, nil
}
