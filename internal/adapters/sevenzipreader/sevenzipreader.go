// Package sevenzipreader provides a read-only archive adapter for 7z files
// using github.com/bodgit/sevenzip.
package sevenzipreader

import (
	"io"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/adapters/extractor"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// Reader is an opened 7z archive.
type Reader struct {
	path   string
	rc     *sevenzip.ReadCloser
	infos  []ports.ItemInfo
	logger logrus.FieldLogger
	closed bool

	// keyed is set once the archive has been opened with password
	keyed    bool
	password string
}

// Open opens the 7z archive at path. A password already held by the
// provider is used up front. Otherwise one is requested only if the headers
// turn out to be encrypted.
func Open(path string, password ports.PasswordProvider, logger logrus.FieldLogger) (*Reader, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Reader{path: path, logger: logger}
	if preset, ok := password.(ports.PresetPassword); ok {
		r.password, r.keyed = preset.PresetPassword()
	}

	rc, err := r.open()
	if err != nil && !r.keyed && password != nil && isEncrypted(err) {
		pw, pwErr := password.Password()
		if pwErr != nil {
			return nil, errors.Wrapf(pwErr, "unable to open encrypted 7z archive %s", path)
		}
		logger.WithField("archive", path).Debug("Reopening 7z archive with password")
		r.password, r.keyed = pw, true
		rc, err = r.open()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open 7z archive %s", path)
	}

	r.rc = rc
	r.infos = make([]ports.ItemInfo, len(rc.File))
	for i, f := range rc.File {
		r.infos[i] = itemInfo(f.FileHeader)
	}
	return r, nil
}

func (r *Reader) open() (*sevenzip.ReadCloser, error) {
	if r.keyed {
		return sevenzip.OpenReaderWithPassword(r.path, r.password)
	}
	return sevenzip.OpenReader(r.path)
}

// isEncrypted reports whether err comes from reading encrypted data, which
// is how a missing or wrong password shows up.
func isEncrypted(err error) bool {
	var readErr *sevenzip.ReadError
	return errors.As(err, &readErr) && readErr.Encrypted
}

// itemInfo maps a 7z header. 7z stores the same attribute word this module
// uses, including the Unix extension.
func itemInfo(h sevenzip.FileHeader) ports.ItemInfo {
	attrs := fsutil.Attributes(h.Attributes)
	isDir := attrs&fsutil.AttributeDirectory != 0
	if attrs.HasUnixMode() && attrs.UnixMode().IsDir() {
		isDir = true
	}
	info := ports.ItemInfo{
		Path:       h.Name,
		IsDir:      isDir,
		Size:       h.UncompressedSize,
		Attributes: attrs,
		CTime:      fileTime(h.Created),
		ATime:      fileTime(h.Accessed),
		MTime:      fileTime(h.Modified),
	}
	if isDir {
		info.Size = 0
	}
	return info
}

func fileTime(t time.Time) fsutil.FileTime {
	if t.IsZero() {
		return 0
	}
	return fsutil.FromTime(t)
}

// Format returns "7z".
func (r *Reader) Format() string {
	return "7z"
}

// ItemCount returns the number of entries.
func (r *Reader) ItemCount() uint32 {
	return uint32(len(r.infos))
}

// ItemProperty returns a property of the entry at index.
func (r *Reader) ItemProperty(index uint32, id props.PropID) (props.Value, error) {
	if int(index) >= len(r.infos) {
		return props.Empty(), errors.Errorf("item index out of range: %d", index)
	}
	return r.infos[index].Property(id), nil
}

// Extract decodes the entries at indices and hands them to cb. Solid
// archives decode fastest when indices are in ascending order. Content that
// is encrypted while the headers are not is only detected here; cb is then
// asked for a password and the archive is reopened with it.
func (r *Reader) Extract(indices []uint32, test bool, cb ports.ExtractCallback) error {
	entries := make([]extractor.Entry, len(r.rc.File))
	for i, f := range r.rc.File {
		i := i
		entries[i] = extractor.Entry{
			Info:   r.infos[i],
			CRC32:  f.CRC32,
			HasCRC: f.CRC32 != 0,
			Open:   func() (io.ReadCloser, error) { return r.rc.File[i].Open() },
		}
	}
	return extractor.Run(entries, indices, test, cb, extractor.Options{
		Logger: r.logger,
		Retry:  func(err error) (bool, error) { return r.rekey(err, cb) },
	})
}

// rekey reopens the archive with a password from cb after a decode failure
// caused by encryption. It does so at most once per archive.
func (r *Reader) rekey(err error, cb ports.PasswordProvider) (bool, error) {
	if r.keyed || !isEncrypted(err) {
		return false, nil
	}
	pw, err := cb.Password()
	if err != nil {
		return false, errors.Wrapf(err, "unable to decrypt %s", r.path)
	}
	r.password, r.keyed = pw, true

	rc, err := r.open()
	if err != nil {
		return false, errors.Wrapf(err, "unable to reopen 7z archive %s", r.path)
	}
	if len(rc.File) != len(r.rc.File) {
		_ = rc.Close()
		return false, errors.Errorf("7z archive %s changed while reading", r.path)
	}
	old := r.rc
	r.rc = rc
	if err := old.Close(); err != nil {
		r.logger.WithError(err).Debug("Unable to close 7z archive")
	}
	r.logger.WithField("archive", r.path).Debug("Reopened 7z archive with password")
	return true, nil
}

// Close releases the archive. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}

// Compile-time check that Reader implements ports.ArchiveReader.
var _ ports.ArchiveReader = (*Reader)(nil)
