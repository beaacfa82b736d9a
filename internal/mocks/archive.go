package mocks

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
	"github.com/mcdonaldj/arcbridge/internal/ports"
	"github.com/mcdonaldj/arcbridge/internal/props"
)

// MockItem is an entry of a MockArchive.
type MockItem struct {
	Info    ports.ItemInfo
	Content []byte
	// Result is reported to the extract callback after the content is written
	Result ports.OperationResult
}

// ExtractCall records parameters of an Extract call.
type ExtractCall struct {
	Indices []uint32
	Test    bool
}

// MockArchive implements ports.ArchiveReader for testing.
type MockArchive struct {
	FormatName string
	Items      []MockItem
	// Password, if set, must be supplied when the archive is opened
	Password string
	// Errors maps method names to errors
	Errors map[string]error
	// ExtractCalls records calls to Extract
	ExtractCalls []ExtractCall
	Closed       bool
}

// NewMockArchive creates a mock archive holding items.
func NewMockArchive(format string, items ...MockItem) *MockArchive {
	return &MockArchive{
		FormatName: format,
		Items:      items,
		Errors:     make(map[string]error),
	}
}

// Format returns the configured format name.
func (m *MockArchive) Format() string {
	return m.FormatName
}

// ItemCount returns the number of items.
func (m *MockArchive) ItemCount() uint32 {
	return uint32(len(m.Items))
}

// ItemProperty returns a property of the item at index.
func (m *MockArchive) ItemProperty(index uint32, id props.PropID) (props.Value, error) {
	if err, ok := m.Errors["ItemProperty"]; ok {
		return props.Empty(), err
	}
	if int(index) >= len(m.Items) {
		return props.Empty(), errors.New("item index out of range")
	}
	return m.Items[index].Info.Property(id), nil
}

// Extract drives cb over the selected items the way an engine does.
func (m *MockArchive) Extract(indices []uint32, test bool, cb ports.ExtractCallback) error {
	m.ExtractCalls = append(m.ExtractCalls, ExtractCall{Indices: indices, Test: test})
	if err, ok := m.Errors["Extract"]; ok {
		return err
	}
	if indices == nil {
		for i := range m.Items {
			indices = append(indices, uint32(i))
		}
	}

	var total uint64
	for _, index := range indices {
		total += m.Items[index].Info.Size
	}
	cb.SetTotal(total)

	mode := ports.AskExtract
	if test {
		mode = ports.AskTest
	}

	var completed uint64
	for _, index := range indices {
		item := m.Items[index]
		if err := cb.PrepareOperation(index, mode); err != nil {
			return err
		}
		w, err := cb.Stream(index, item.Info, mode)
		if err != nil {
			return err
		}
		if w != nil {
			_, err := w.Write(item.Content)
			closeErr := w.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
		completed += uint64(len(item.Content))
		if err := cb.SetCompleted(completed); err != nil {
			return err
		}
		if err := cb.SetOperationResult(index, item.Result); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the archive closed.
func (m *MockArchive) Close() error {
	m.Closed = true
	if err, ok := m.Errors["Close"]; ok {
		return err
	}
	return nil
}

// MockFormats implements ports.Formats and ports.ArchiveWriter for testing.
// Archives written through Update become available to Open.
type MockFormats struct {
	// Archives maps paths to archives
	Archives map[string]*MockArchive
	// Errors maps method names to errors
	Errors map[string]error
	// UpdateCalls records the destination of each Update call
	UpdateCalls []string
	// WriterUmasks records the umask passed to each Writer call
	WriterUmasks []fsutil.Umask
}

// NewMockFormats creates an empty format registry.
func NewMockFormats() *MockFormats {
	return &MockFormats{
		Archives: make(map[string]*MockArchive),
		Errors:   make(map[string]error),
	}
}

// Open returns the archive registered at path.
func (m *MockFormats) Open(path string, password ports.PasswordProvider) (ports.ArchiveReader, error) {
	if err, ok := m.Errors["Open"]; ok {
		return nil, err
	}
	archive, ok := m.Archives[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	if archive.Password != "" {
		got, err := password.Password()
		if err != nil {
			return nil, err
		}
		if got != archive.Password {
			return nil, errors.New("wrong password")
		}
	}
	archive.Closed = false
	return archive, nil
}

// Writer returns the mock itself.
func (m *MockFormats) Writer(path string, umask fsutil.Umask) (ports.ArchiveWriter, error) {
	if err, ok := m.Errors["Writer"]; ok {
		return nil, err
	}
	m.WriterUmasks = append(m.WriterUmasks, umask)
	return m, nil
}

// Update builds a MockArchive from cb and registers it at destPath.
func (m *MockFormats) Update(destPath string, old ports.ArchiveReader, cb ports.UpdateCallback) error {
	m.UpdateCalls = append(m.UpdateCalls, destPath)
	if err, ok := m.Errors["Update"]; ok {
		return err
	}

	var oldItems []MockItem
	if archive, ok := old.(*MockArchive); ok {
		oldItems = archive.Items
	}

	count := cb.ItemCount()
	items := make([]MockItem, 0, count)
	for index := uint32(0); index < count; index++ {
		info, err := itemInfo(cb, index)
		if err != nil {
			return err
		}
		item := MockItem{Info: info}

		r, err := cb.Stream(index)
		if err != nil {
			return err
		}
		switch {
		case r != nil:
			content, err := io.ReadAll(r)
			_ = r.Close()
			if err != nil {
				return err
			}
			item.Content = content
		case int(index) < len(oldItems):
			item.Content = bytes.Clone(oldItems[index].Content)
		}

		if err := cb.SetOperationResult(index, ports.ResultOK); err != nil {
			return err
		}
		items = append(items, item)
	}

	m.Archives[destPath] = NewMockArchive("mock", items...)
	return nil
}

func itemInfo(cb ports.UpdateCallback, index uint32) (ports.ItemInfo, error) {
	var info ports.ItemInfo
	for _, id := range []props.PropID{props.PropPath, props.PropIsDir, props.PropSize, props.PropAttrib, props.PropMTime} {
		value, err := cb.Property(index, id)
		if err != nil {
			return info, err
		}
		switch id {
		case props.PropPath:
			info.Path, _ = value.AsString()
		case props.PropIsDir:
			info.IsDir, _ = value.AsBool()
		case props.PropSize:
			info.Size, _ = value.AsUint64()
		case props.PropAttrib:
			attrs, _ := value.AsUint32()
			info.Attributes = fsutil.Attributes(attrs)
		case props.PropMTime:
			info.MTime, _ = value.AsFileTime()
		}
	}
	return info, nil
}

// Compile-time checks that the mocks implement their ports.
var (
	_ ports.ArchiveReader = (*MockArchive)(nil)
	_ ports.Formats       = (*MockFormats)(nil)
	_ ports.ArchiveWriter = (*MockFormats)(nil)
)
