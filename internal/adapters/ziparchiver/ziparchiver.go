// Package ziparchiver provides an archive adapter for zip files using the
// klauspost/compress zip package, with deflate and zstd methods.
package ziparchiver

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/adapters/extractor"
	"github.com/mcdonaldj/arcbridge/internal/adapters/osfs"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// Compression method names accepted by New.
const (
	MethodStore   = "store"
	MethodDeflate = "deflate"
	MethodZstd    = "zstd"
)

// Host system values stored in the upper byte of CreatorVersion.
const (
	creatorFAT  = 0
	creatorUnix = 3
	// zipVersion is the "version made by" field value (2.0).
	zipVersion = 20
)

// ZipArchiver implements ports.ArchiveWriter for zip files.
type ZipArchiver struct {
	fs     ports.FileSystem
	method uint16
	level  int
	umask  fsutil.Umask
	logger logrus.FieldLogger
}

// New creates a zip writer using the named compression method. level is
// passed to the compressor; zero selects its default. New archives get mode
// 0666 minus umask.
func New(fsys ports.FileSystem, method string, level int, umask fsutil.Umask, logger logrus.FieldLogger) (*ZipArchiver, error) {
	a := &ZipArchiver{fs: fsys, level: level, umask: umask, logger: logger}
	switch method {
	case MethodStore:
		a.method = zip.Store
	case "", MethodDeflate:
		a.method = zip.Deflate
	case MethodZstd:
		a.method = zstd.ZipMethodWinZip
	default:
		return nil, errors.Errorf("unknown zip compression method: %s", method)
	}
	if fsys == nil {
		a.fs = osfs.New()
	}
	if logger == nil {
		a.logger = logrus.StandardLogger()
	}
	return a, nil
}

func (a *ZipArchiver) registerCompressors(w *zip.Writer) {
	if a.level != 0 {
		level := a.level
		w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}
	var opts []zstd.EOption
	if a.level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(a.level)))
	}
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(opts...))
}

// archiveMode returns the permissions for the archive at destPath: those of
// the archive being replaced, or 0666 minus the umask for a new one.
func (a *ZipArchiver) archiveMode(destPath string) os.FileMode {
	if info, err := a.fs.Lstat(destPath); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return os.FileMode(0o666) &^ os.FileMode(a.umask)
}

// Update writes the archive described by cb to destPath. Items carried over
// from old are copied without recompression. The archive is written to a
// temporary file in the destination directory and renamed into place.
func (a *ZipArchiver) Update(destPath string, old ports.ArchiveReader, cb ports.UpdateCallback) (err error) {
	var oldFiles []*zip.File
	if old != nil {
		r, ok := old.(*Reader)
		if !ok {
			return errors.Errorf("unable to update zip archive from %s archive", old.Format())
		}
		oldFiles = r.files
	}

	mode := a.archiveMode(destPath)
	tmp, tmpName, err := a.fs.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary archive")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close() // Best effort cleanup on error path
			_ = a.fs.Remove(tmpName)
		}
	}()

	w := zip.NewWriter(tmp)
	a.registerCompressors(w)

	count := cb.ItemCount()
	var total uint64
	for index := uint32(len(oldFiles)); index < count; index++ {
		value, err := cb.Property(index, props.PropSize)
		if err != nil {
			return errors.Wrapf(err, "unable to read size of item %d", index)
		}
		size, _ := value.AsUint64()
		total += size
	}
	cb.SetTotal(total)

	progress := &progressReader{cb: cb}
	for index := uint32(0); index < count; index++ {
		if int(index) < len(oldFiles) {
			if err := w.Copy(oldFiles[index]); err != nil {
				return errors.Wrapf(err, "unable to copy %s", oldFiles[index].Name)
			}
		} else if err := a.writeItem(w, cb, index, progress); err != nil {
			return err
		}
		if err := cb.SetOperationResult(index, ports.ResultOK); err != nil {
			return err
		}
	}

	// Close zip writer first to flush data
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "unable to close zip writer")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close temporary archive")
	}
	if err := a.fs.Chmod(tmpName, mode); err != nil {
		return errors.Wrap(err, "unable to set temporary archive permissions")
	}
	if old != nil {
		if err := old.Close(); err != nil {
			return errors.Wrap(err, "unable to close previous archive")
		}
	}
	if err := a.fs.Rename(tmpName, destPath); err != nil {
		return errors.Wrapf(err, "unable to move archive into place at %s", destPath)
	}

	a.logger.WithFields(logrus.Fields{
		"archive": destPath,
		"items":   count,
		"copied":  len(oldFiles),
	}).Debug("Wrote zip archive")
	return nil
}

func (a *ZipArchiver) writeItem(w *zip.Writer, cb ports.UpdateCallback, index uint32, progress *progressReader) error {
	anti, err := cb.Property(index, props.PropIsAnti)
	if err != nil {
		return errors.Wrapf(err, "unable to read properties of item %d", index)
	}
	if isAnti, _ := anti.AsBool(); isAnti {
		return nil
	}

	header, err := a.header(cb, index)
	if err != nil {
		return err
	}

	stream, err := cb.Stream(index)
	if err != nil {
		return err
	}
	if stream != nil {
		defer func() { _ = stream.Close() }()
	}

	hw, err := w.CreateHeader(header)
	if err != nil {
		return errors.Wrapf(err, "unable to add %s", header.Name)
	}
	if stream == nil || strings.HasSuffix(header.Name, "/") {
		return nil
	}

	progress.src = stream
	progress.readErr = nil
	if _, err := io.Copy(hw, progress); err != nil {
		if progress.readErr != nil {
			return errors.Wrapf(progress.readErr, "unable to read %s", header.Name)
		}
		return err
	}
	return nil
}

// header builds the zip header of a new item from its properties.
func (a *ZipArchiver) header(cb ports.UpdateCallback, index uint32) (*zip.FileHeader, error) {
	values := make(map[props.PropID]props.Value)
	for _, id := range []props.PropID{props.PropPath, props.PropIsDir, props.PropAttrib, props.PropMTime} {
		value, err := cb.Property(index, id)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read %s of item %d", id, index)
		}
		values[id] = value
	}

	name, ok := values[props.PropPath].AsString()
	if !ok || name == "" {
		return nil, errors.Errorf("item %d has no path", index)
	}
	name = strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
	isDir, _ := values[props.PropIsDir].AsBool()

	header := &zip.FileHeader{
		Name:   name,
		Method: a.method,
	}
	if isDir {
		header.Name = strings.TrimSuffix(name, "/") + "/"
		header.Method = zip.Store
	}

	if mtime, ok := values[props.PropMTime].AsFileTime(); ok {
		header.Modified = mtime.Time()
	} else {
		header.Modified = time.Now()
	}

	attrs, ok := values[props.PropAttrib].AsUint32()
	if !ok || attrs == 0 {
		attrs = uint32(fsutil.AttributeArchive)
		if isDir {
			attrs = uint32(fsutil.AttributeDirectory)
		}
	}
	setHeaderAttributes(header, fsutil.Attributes(attrs))
	return header, nil
}

// setHeaderAttributes stores attrs the way Info-ZIP does: Unix modes go in
// the upper half of ExternalAttrs with a Unix creator, DOS flags in the
// lower half.
func setHeaderAttributes(h *zip.FileHeader, attrs fsutil.Attributes) {
	dos := uint32(attrs) & 0xFFFF &^ uint32(fsutil.AttributeUnixExtension)
	if attrs.HasUnixMode() {
		h.CreatorVersion = creatorUnix<<8 | zipVersion
		h.ExternalAttrs = uint32(attrs.UnixMode())<<16 | dos
		return
	}
	h.CreatorVersion = creatorFAT<<8 | zipVersion
	h.ExternalAttrs = dos
}

// headerAttributes is the inverse of setHeaderAttributes.
func headerAttributes(h *zip.FileHeader) fsutil.Attributes {
	dos := fsutil.Attributes(h.ExternalAttrs & 0xFFFF)
	attrs := dos
	if mode := h.ExternalAttrs >> 16; h.CreatorVersion>>8 == creatorUnix && mode != 0 {
		attrs = dos | fsutil.AttributeUnixExtension | fsutil.Attributes(mode<<16)
	}
	if strings.HasSuffix(h.Name, "/") {
		attrs |= fsutil.AttributeDirectory
	}
	return attrs
}

// progressReader reports the running byte count of new content.
type progressReader struct {
	cb        ports.ProgressCallback
	src       io.Reader
	completed uint64
	// readErr is the last error from src
	readErr error
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.src.Read(b)
	p.completed += uint64(n)
	if err != nil && err != io.EOF {
		p.readErr = err
		return n, err
	}
	if cbErr := p.cb.SetCompleted(p.completed); cbErr != nil {
		return n, cbErr
	}
	return n, err
}

// Reader is an opened zip archive.
type Reader struct {
	rc     *zip.ReadCloser
	files  []*zip.File
	infos  []ports.ItemInfo
	logger logrus.FieldLogger
	closed bool
}

// Open opens the zip archive at path. Zip encryption is not supported, so
// no password is ever requested. Entries with non-local names are kept; the
// extract callbacks refuse them item by item.
func Open(path string, logger logrus.FieldLogger) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errors.Wrapf(err, "unable to open zip archive %s", path)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Reader{rc: rc, files: rc.File, logger: logger}
	r.infos = make([]ports.ItemInfo, len(rc.File))
	for i, f := range rc.File {
		r.infos[i] = itemInfo(&f.FileHeader)
	}
	return r, nil
}

func itemInfo(h *zip.FileHeader) ports.ItemInfo {
	info := ports.ItemInfo{
		Path:       strings.TrimSuffix(h.Name, "/"),
		IsDir:      strings.HasSuffix(h.Name, "/"),
		Size:       h.UncompressedSize64,
		Attributes: headerAttributes(h),
	}
	if !h.Modified.IsZero() {
		info.MTime = fsutil.FromTime(h.Modified)
	}
	return info
}

// Format returns "zip".
func (r *Reader) Format() string {
	return "zip"
}

// ItemCount returns the number of entries.
func (r *Reader) ItemCount() uint32 {
	return uint32(len(r.files))
}

// ItemProperty returns a property of the entry at index.
func (r *Reader) ItemProperty(index uint32, id props.PropID) (props.Value, error) {
	if int(index) >= len(r.infos) {
		return props.Empty(), errors.Errorf("item index out of range: %d", index)
	}
	return r.infos[index].Property(id), nil
}

// Extract decodes the entries at indices and hands them to cb.
func (r *Reader) Extract(indices []uint32, test bool, cb ports.ExtractCallback) error {
	entries := make([]extractor.Entry, len(r.files))
	for i, f := range r.files {
		f := f
		entries[i] = extractor.Entry{
			Info:       r.infos[i],
			PackedSize: f.CompressedSize64,
			Open:       func() (io.ReadCloser, error) { return f.Open() },
		}
	}
	return extractor.Run(entries, indices, test, cb, extractor.Options{Logger: r.logger})
}

// Close releases the archive. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}

// Compile-time checks that the zip adapters implement their ports.
var (
	_ ports.ArchiveWriter = (*ZipArchiver)(nil)
	_ ports.ArchiveReader = (*Reader)(nil)
)
