package ports

import (
	"io"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// AskMode tells an extract callback what the engine is about to do with the
// next item.
type AskMode int

const (
	// AskExtract means the item content will be written to the stream.
	AskExtract AskMode = iota
	// AskTest means the item content will be decoded and discarded.
	AskTest
	// AskSkip means the item will not be decoded.
	AskSkip
)

func (m AskMode) String() string {
	switch m {
	case AskExtract:
		return "extract"
	case AskTest:
		return "test"
	case AskSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// OperationResult is reported by the engine once an item has been processed.
type OperationResult int

const (
	// ResultOK means the item was decoded successfully.
	ResultOK OperationResult = iota
	// ResultDataError means the item content could not be decoded.
	ResultDataError
	// ResultCRCError means the decoded content did not match its checksum.
	ResultCRCError
	// ResultUnsupportedMethod means the item uses an unknown compression method.
	ResultUnsupportedMethod
)

func (r OperationResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultDataError:
		return "data error"
	case ResultCRCError:
		return "crc error"
	case ResultUnsupportedMethod:
		return "unsupported method"
	default:
		return "unknown error"
	}
}

// ProgressCallback receives progress notifications from an engine.
type ProgressCallback interface {
	// SetTotal announces the total number of bytes the operation will process.
	SetTotal(total uint64)

	// SetCompleted reports the number of bytes processed so far. A non-nil
	// error aborts the operation.
	SetCompleted(completed uint64) error
}

// PasswordProvider supplies a password when an engine needs one.
type PasswordProvider interface {
	Password() (string, error)
}

// PresetPassword is implemented by password providers that may already hold
// a password. Engines use it before any content is read, without prompting.
type PresetPassword interface {
	PresetPassword() (string, bool)
}

// UpdateCallback feeds items to an archive writer. Items below the old
// archive's item count refer to existing entries, which the writer copies.
type UpdateCallback interface {
	ProgressCallback

	// ItemCount returns the number of items in the resulting archive.
	ItemCount() uint32

	// Property returns a property of the item at index.
	Property(index uint32, id props.PropID) (props.Value, error)

	// Stream returns the content of the item at index. A nil reader with a nil
	// error means the item content is copied from the old archive, or that
	// the item has no content (directories). The writer closes the reader.
	Stream(index uint32) (io.ReadCloser, error)

	// SetOperationResult reports the outcome of writing the item at index.
	SetOperationResult(index uint32, result OperationResult) error
}

// ExtractCallback receives items from an archive reader.
type ExtractCallback interface {
	ProgressCallback
	PasswordProvider

	// SetRatioInfo reports compressed and uncompressed byte counts.
	SetRatioInfo(inSize, outSize uint64)

	// PrepareOperation announces what is about to happen to the next item.
	PrepareOperation(index uint32, mode AskMode) error

	// Stream returns the destination for the item at index. A nil writer with
	// a nil error skips the item content. The engine closes the writer before
	// calling SetOperationResult.
	Stream(index uint32, item ItemInfo, mode AskMode) (io.WriteCloser, error)

	// SetOperationResult reports the outcome of the item at index.
	SetOperationResult(index uint32, result OperationResult) error
}

// ItemInfo is the property set of an archive item, resolved once by the
// engine and handed to extract callbacks. A zero time means the archive does
// not record it.
type ItemInfo struct {
	Path       string
	IsDir      bool
	Size       uint64
	Attributes fsutil.Attributes
	CTime      fsutil.FileTime
	ATime      fsutil.FileTime
	MTime      fsutil.FileTime
}

// Property returns the item property identified by id. Unrecorded times and
// unknown identifiers yield an empty value.
func (i ItemInfo) Property(id props.PropID) props.Value {
	switch id {
	case props.PropPath:
		return props.String(i.Path)
	case props.PropIsDir:
		return props.Bool(i.IsDir)
	case props.PropSize:
		return props.Uint64(i.Size)
	case props.PropAttrib:
		return props.Uint32(uint32(i.Attributes))
	case props.PropCTime:
		return timeProperty(i.CTime)
	case props.PropATime:
		return timeProperty(i.ATime)
	case props.PropMTime:
		return timeProperty(i.MTime)
	case props.PropIsAnti:
		return props.Bool(false)
	default:
		return props.Empty()
	}
}

func timeProperty(ft fsutil.FileTime) props.Value {
	if ft == 0 {
		return props.Empty()
	}
	return props.FileTime(ft)
}

// ArchiveReader is an opened archive.
type ArchiveReader interface {
	// Format returns the archive format name (e.g. "7z", "zip").
	Format() string

	// ItemCount returns the number of items in the archive.
	ItemCount() uint32

	// ItemProperty returns a property of the item at index.
	ItemProperty(index uint32, id props.PropID) (props.Value, error)

	// Extract decodes the items at indices (all items if indices is nil) and
	// hands them to cb. If test is true the content is verified and discarded.
	Extract(indices []uint32, test bool, cb ExtractCallback) error

	// Close releases the archive.
	Close() error
}

// ArchiveWriter creates or updates archives.
type ArchiveWriter interface {
	// Update writes the archive described by cb to destPath. If old is not
	// nil, it must be the archive currently at destPath and its items occupy
	// the first indices of cb.
	Update(destPath string, old ArchiveReader, cb UpdateCallback) error
}

// Formats resolves archive formats to engines.
type Formats interface {
	// Open opens the archive at path. The format is chosen by extension.
	Open(path string, password PasswordProvider) (ArchiveReader, error)

	// Writer returns the writer for the archive format at path. New archives
	// are created with mode 0666 minus umask.
	Writer(path string, umask fsutil.Umask) (ArchiveWriter, error)
}
