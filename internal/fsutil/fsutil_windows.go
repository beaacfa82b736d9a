package fsutil

import (
	"github.com/pkg/errors"

	"golang.org/x/sys/windows"
)

// CurrentUmask returns zero since Windows has no file creation mask.
func CurrentUmask() Umask {
	return 0
}

// GetFileAttributes returns the native attributes of the item at path.
func GetFileAttributes(path string) (Attributes, error) {
	path16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, errors.Wrap(err, "unable to convert path encoding")
	}
	attrs, err := windows.GetFileAttributes(path16)
	if err != nil {
		return 0, errors.Wrap(err, "unable to query file attributes")
	}
	return Attributes(attrs), nil
}

// SetFileAttributes applies the Windows flags of attrs to the item at path.
// The POSIX extension has no native meaning and is dropped, as is the umask.
func SetFileAttributes(path string, attrs Attributes, _ Umask) error {
	path16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return errors.Wrap(err, "unable to convert path encoding")
	}
	native := uint32(attrs & 0xFFFF &^ AttributeUnixExtension)
	if err := windows.SetFileAttributes(path16, native); err != nil {
		return errors.Wrap(err, "unable to set file attributes")
	}
	return nil
}

// GetFileTimes returns the creation, access and modification times of the
// item at path.
func GetFileTimes(path string) (ctime, atime, mtime FileTime, err error) {
	path16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		err = errors.Wrap(err, "unable to convert path encoding")
		return
	}
	handle, err := windows.CreateFile(
		path16,
		windows.FILE_READ_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		err = errors.Wrap(err, "unable to open file")
		return
	}
	defer windows.CloseHandle(handle)

	var creation, access, write windows.Filetime
	if err = windows.GetFileTime(handle, &creation, &access, &write); err != nil {
		err = errors.Wrap(err, "unable to query file times")
		return
	}
	return JoinFileTime(creation.LowDateTime, creation.HighDateTime),
		JoinFileTime(access.LowDateTime, access.HighDateTime),
		JoinFileTime(write.LowDateTime, write.HighDateTime),
		nil
}
