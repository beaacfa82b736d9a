package archive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/adapters/sevenzipreader"
	"github.com/mcdonaldj/arcbridge/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// ErrUnsupportedFormat is returned for archive paths whose extension has no
// engine, and for writing formats that can only be read.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// Registry resolves archive paths to engines by file extension.
type Registry struct {
	fs          ports.FileSystem
	compression string
	level       int
	logger      logrus.FieldLogger
}

// NewRegistry creates a registry whose zip writer uses the given compression
// method and level, and writes through fs.
func NewRegistry(fs ports.FileSystem, compression string, level int, logger logrus.FieldLogger) *Registry {
	return &Registry{fs: fs, compression: compression, level: level, logger: logger}
}

// FormatOf returns the lower-cased extension of path.
func FormatOf(path string) string {
	return strings.ToLower(fsutil.Extension(path))
}

// Open opens the archive at path.
func (r *Registry) Open(path string, password ports.PasswordProvider) (ports.ArchiveReader, error) {
	switch FormatOf(path) {
	case "zip":
		reader, err := ziparchiver.Open(path, r.logger)
		if err != nil {
			return nil, err
		}
		return reader, nil
	case "7z":
		reader, err := sevenzipreader.Open(path, password, r.logger)
		if err != nil {
			return nil, err
		}
		return reader, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Writer returns the writer for the archive format at path.
func (r *Registry) Writer(path string, umask fsutil.Umask) (ports.ArchiveWriter, error) {
	switch FormatOf(path) {
	case "zip":
		writer, err := ziparchiver.New(r.fs, r.compression, r.level, umask, r.logger)
		if err != nil {
			return nil, err
		}
		return writer, nil
	case "7z":
		return nil, fmt.Errorf("%w: 7z archives are read-only", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Compile-time check that Registry implements ports.Formats.
var _ ports.Formats = (*Registry)(nil)
