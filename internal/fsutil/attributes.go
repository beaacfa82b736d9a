package fsutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Attributes is a 32-bit attribute word in the layout used by archive
// headers. The low 16 bits carry Windows-style flags. When
// AttributeUnixExtension is set, the high 16 bits carry a raw POSIX mode.
type Attributes uint32

const (
	// AttributeReadOnly marks an item that should not be written.
	AttributeReadOnly Attributes = 0x01
	// AttributeDirectory marks a directory.
	AttributeDirectory Attributes = 0x10
	// AttributeArchive marks a regular file.
	AttributeArchive Attributes = 0x20
	// AttributeNormal marks an item with no other attributes set.
	AttributeNormal Attributes = 0x80
	// AttributeUnixExtension indicates that the high 16 bits hold a POSIX mode.
	AttributeUnixExtension Attributes = 0x8000

	unixModeShift = 16
)

// HasUnixMode reports whether the attribute word carries a POSIX mode.
func (a Attributes) HasUnixMode() bool {
	return a&AttributeUnixExtension != 0
}

// UnixMode returns the POSIX mode stored in the high 16 bits. The result is
// only meaningful if HasUnixMode returns true.
func (a Attributes) UnixMode() Mode {
	return Mode(a >> unixModeShift)
}

// String renders the Windows flags as a short fixed-width string, followed by
// the POSIX mode in octal when present.
func (a Attributes) String() string {
	var b strings.Builder
	flag := func(set Attributes, c byte) {
		if a&set != 0 {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	flag(AttributeDirectory, 'D')
	flag(AttributeReadOnly, 'R')
	flag(AttributeArchive, 'A')
	flag(AttributeNormal, 'N')
	if a.HasUnixMode() {
		b.WriteString(" 0")
		b.WriteString(strconv.FormatUint(uint64(a.UnixMode()), 8))
	}
	return b.String()
}

// Mode is a raw POSIX file mode, type bits included. The constants are spelled
// out numerically so that the conversions also build on Windows, where the
// attributes of extracted archives can still carry POSIX modes.
type Mode uint32

const (
	// ModeTypeMask isolates the file type bits.
	ModeTypeMask Mode = 0o170000
	// ModeTypeDirectory is the directory file type.
	ModeTypeDirectory Mode = 0o040000
	// ModeTypeFile is the regular file type.
	ModeTypeFile Mode = 0o100000
	// ModeTypeSymlink is the symbolic link file type.
	ModeTypeSymlink Mode = 0o120000

	ModeSetuid Mode = 0o4000
	ModeSetgid Mode = 0o2000
	ModeSticky Mode = 0o1000

	// ModePermissionsMask isolates the rwx permission bits.
	ModePermissionsMask Mode = 0o777

	ModePermissionUserRead      Mode = 0o400
	ModePermissionUserWrite     Mode = 0o200
	ModePermissionUserExecute   Mode = 0o100
	ModePermissionGroupRead     Mode = 0o040
	ModePermissionGroupWrite    Mode = 0o020
	ModePermissionGroupExecute  Mode = 0o010
	ModePermissionOthersRead    Mode = 0o004
	ModePermissionOthersWrite   Mode = 0o002
	ModePermissionOthersExecute Mode = 0o001

	modeWriteMask = ModePermissionUserWrite | ModePermissionGroupWrite | ModePermissionOthersWrite

	defaultDirectoryPermissions = Mode(0o777)
	defaultFilePermissions      = Mode(0o666)
)

// IsDir reports whether the mode describes a directory.
func (m Mode) IsDir() bool {
	return m&ModeTypeMask == ModeTypeDirectory
}

// IsSymlink reports whether the mode describes a symbolic link.
func (m Mode) IsSymlink() bool {
	return m&ModeTypeMask == ModeTypeSymlink
}

// FileMode converts the raw mode into an os.FileMode.
func (m Mode) FileMode() os.FileMode {
	result := os.FileMode(m & ModePermissionsMask)
	switch m & ModeTypeMask {
	case ModeTypeDirectory:
		result |= os.ModeDir
	case ModeTypeSymlink:
		result |= os.ModeSymlink
	case ModeTypeFile:
	default:
		result |= os.ModeIrregular
	}
	if m&ModeSetuid != 0 {
		result |= os.ModeSetuid
	}
	if m&ModeSetgid != 0 {
		result |= os.ModeSetgid
	}
	if m&ModeSticky != 0 {
		result |= os.ModeSticky
	}
	return result
}

// Umask is a process file creation mask. It is captured once (usually by
// CurrentUmask at startup) and then passed explicitly to every conversion that
// needs it.
type Umask uint32

// Mask returns the permission bits that survive the umask.
func (u Umask) Mask() Mode {
	return ModePermissionsMask &^ Mode(u)
}

// String formats the umask in octal.
func (u Umask) String() string {
	return "0" + strconv.FormatUint(uint64(u), 8)
}

// ParseUmask parses an octal umask such as "022" or "0027".
func ParseUmask(value string) (Umask, error) {
	if value == "" {
		return 0, errors.New("empty umask")
	}
	if u, err := strconv.ParseUint(value, 8, 32); err != nil {
		return 0, errors.Wrap(err, "unable to parse umask")
	} else if Mode(u)&ModePermissionsMask != Mode(u) {
		return 0, errors.New("umask contains non-permission bits")
	} else {
		return Umask(u), nil
	}
}

// AttributesToMode derives a POSIX mode from an attribute word. If the word
// carries a POSIX mode it is returned verbatim, along with whether it
// describes a symbolic link. Otherwise a mode is synthesized from the Windows
// flags and filtered through umask.
func AttributesToMode(attrs Attributes, umask Umask) (Mode, bool) {
	if attrs.HasUnixMode() {
		mode := attrs.UnixMode()
		return mode, mode.IsSymlink()
	}

	var mode Mode
	if attrs&AttributeDirectory != 0 {
		mode = ModeTypeDirectory | defaultDirectoryPermissions
	} else {
		mode = ModeTypeFile | defaultFilePermissions
	}
	if attrs&AttributeReadOnly != 0 {
		mode &^= modeWriteMask
	}
	return mode&^ModePermissionsMask | mode&umask.Mask(), false
}

// ModeToAttributes packs a POSIX mode into an attribute word. The Windows
// flags are derived from the mode and the full mode is stored in the high
// bits, so AttributesToMode recovers it exactly.
func ModeToAttributes(mode Mode) Attributes {
	var attrs Attributes
	if mode.IsDir() {
		attrs = AttributeDirectory
	} else {
		attrs = AttributeArchive
	}
	if mode&ModePermissionUserWrite == 0 {
		attrs |= AttributeReadOnly
	}
	return attrs | AttributeUnixExtension | Attributes(mode&0xFFFF)<<unixModeShift
}
