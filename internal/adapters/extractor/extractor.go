// Package extractor drives a ports.ExtractCallback over the entries of an
// opened archive. Format adapters describe their entries and delegate the
// callback protocol to Run.
package extractor

import (
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/ports"
)

// MaxDecompressSize is the default limit on the declared uncompressed size of
// a single entry (10GB).
const MaxDecompressSize = 10 * 1024 * 1024 * 1024

// Entry is one archive item as seen by the extraction loop.
type Entry struct {
	Info ports.ItemInfo
	// PackedSize is the compressed size, if known.
	PackedSize uint64
	// CRC32 is the checksum of the decoded content. It is verified only when
	// HasCRC is set; formats whose readers check it themselves leave it unset.
	CRC32  uint32
	HasCRC bool
	// Open returns the decoded content. It is not called for directories.
	Open func() (io.ReadCloser, error)
}

// Options tunes Run.
type Options struct {
	// MaxSize caps the declared size of an entry. Zero means MaxDecompressSize.
	MaxSize uint64
	Logger  logrus.FieldLogger
	// Retry is consulted when an entry fails to decode. Returning true
	// decodes the entry again, from a fresh stream. An error stops the run.
	Retry func(err error) (bool, error)
}

// Run hands the entries at indices (all entries if indices is nil) to cb.
// Content that fails to decode is reported through SetOperationResult;
// errors returned by the callback, or by writing to its streams, stop the
// run.
func Run(entries []Entry, indices []uint32, test bool, cb ports.ExtractCallback, opts Options) error {
	if opts.MaxSize == 0 {
		opts.MaxSize = MaxDecompressSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	if indices == nil {
		indices = make([]uint32, len(entries))
		for i := range entries {
			indices[i] = uint32(i)
		}
	}

	var total uint64
	for _, index := range indices {
		if int(index) >= len(entries) {
			return errors.Errorf("item index out of range: %d", index)
		}
		total += entries[index].Info.Size
	}
	cb.SetTotal(total)

	mode := ports.AskExtract
	if test {
		mode = ports.AskTest
	}

	p := &progressWriter{cb: cb}
	var packed uint64
	for _, index := range indices {
		entry := entries[index]
		result, err := p.extractEntry(index, entry, mode, cb, opts)
		if err != nil {
			return err
		}
		if result != ports.ResultOK {
			opts.Logger.WithFields(logrus.Fields{
				"item":   entry.Info.Path,
				"result": result.String(),
			}).Warn("Item failed to decode")
		}

		packed += entry.PackedSize
		cb.SetRatioInfo(packed, p.completed)
		if err := cb.SetOperationResult(index, result); err != nil {
			return err
		}
	}
	return nil
}

// extractEntry streams one entry to cb, decoding it again when opts.Retry
// asks for it.
func (p *progressWriter) extractEntry(index uint32, entry Entry, mode ports.AskMode, cb ports.ExtractCallback, opts Options) (ports.OperationResult, error) {
	start := p.completed
	for {
		if err := cb.PrepareOperation(index, mode); err != nil {
			return ports.ResultOK, err
		}
		w, err := cb.Stream(index, entry.Info, mode)
		if err != nil {
			return ports.ResultOK, err
		}
		if w == nil {
			return ports.ResultOK, nil
		}

		result, decodeErr, err := p.copyEntry(w, entry, opts)
		closeErr := w.Close()
		if err != nil {
			return result, err
		}
		if closeErr != nil {
			return result, errors.Wrapf(closeErr, "unable to close output for %s", entry.Info.Path)
		}
		if decodeErr == nil || opts.Retry == nil {
			return result, nil
		}

		retry, err := opts.Retry(decodeErr)
		if err != nil {
			return result, err
		}
		if !retry {
			return result, nil
		}
		opts.Logger.WithField("item", entry.Info.Path).Debug("Decoding item again")
		p.completed = start
	}
}

// progressWriter reports the running byte count after every write.
type progressWriter struct {
	cb        ports.ProgressCallback
	dst       io.Writer
	completed uint64
	// writeErr is the first error from dst or from the callback
	writeErr error
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.dst.Write(b)
	p.completed += uint64(n)
	if err == nil {
		err = p.cb.SetCompleted(p.completed)
	}
	if err != nil {
		p.writeErr = err
	}
	return n, err
}

// copyEntry decodes entry into w. Decoding failures become an operation
// result along with the decoder's error; write and abort failures are
// returned as errors.
func (p *progressWriter) copyEntry(w io.Writer, entry Entry, opts Options) (result ports.OperationResult, decodeErr error, err error) {
	if entry.Info.IsDir || entry.Open == nil {
		return ports.ResultOK, nil, p.cb.SetCompleted(p.completed)
	}

	declaredSize := entry.Info.Size
	if declaredSize > opts.MaxSize {
		return ports.ResultDataError, nil, errors.Errorf("%s too large: %d bytes exceeds limit of %d bytes", entry.Info.Path, declaredSize, opts.MaxSize)
	}

	rc, err := entry.Open()
	if err != nil {
		opts.Logger.WithError(err).WithField("item", entry.Info.Path).Debug("Unable to open item")
		return ports.ResultDataError, err, nil
	}
	defer func() { _ = rc.Close() }()

	p.dst = w
	p.writeErr = nil
	sum := crc32.NewIEEE()
	// One extra byte detects content longer than declared
	src := io.TeeReader(io.LimitReader(rc, int64(declaredSize)+1), sum)
	written, err := io.Copy(p, src)
	if p.writeErr != nil {
		return ports.ResultOK, nil, p.writeErr
	}
	if err != nil {
		opts.Logger.WithError(err).WithField("item", entry.Info.Path).Debug("Unable to decode item")
		return ports.ResultDataError, err, nil
	}
	if uint64(written) > declaredSize {
		return ports.ResultDataError, nil, nil
	}
	if entry.HasCRC && sum.Sum32() != entry.CRC32 {
		return ports.ResultCRCError, nil, nil
	}
	return ports.ResultOK, nil, nil
}
