//go:build !windows

package fsutil

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"golang.org/x/sys/unix"
)

// maxLinkTargetLength bounds the amount of a link placeholder that is read
// when materializing a symbolic link.
const maxLinkTargetLength = 4096

// CurrentUmask reads the process umask. Reading the umask requires briefly
// setting it, so this should be called once at startup before any goroutines
// create files.
func CurrentUmask() Umask {
	current := unix.Umask(0)
	unix.Umask(current)
	return Umask(current)
}

// GetFileAttributes returns the attributes of the item at path without
// following symbolic links. The result always carries the POSIX mode.
func GetFileAttributes(path string) (Attributes, error) {
	var metadata unix.Stat_t
	if err := unix.Lstat(path, &metadata); err != nil {
		return 0, errors.Wrap(err, "unable to query file metadata")
	}
	return ModeToAttributes(Mode(metadata.Mode)), nil
}

// SetFileAttributes applies attrs to the item at path. If attrs carries a
// POSIX mode, that mode is applied (directories always keep owner rwx), and a
// symbolic link mode turns a regular file holding the link target into a real
// symbolic link. Otherwise only the read-only flag is honored, by clearing the
// write bits of a non-directory. In both cases the permissions are filtered
// through umask.
func SetFileAttributes(path string, attrs Attributes, umask Umask) error {
	var metadata unix.Stat_t
	if err := unix.Lstat(path, &metadata); err != nil {
		return errors.Wrap(err, "unable to query file metadata")
	}
	current := Mode(metadata.Mode)

	var mode Mode
	if attrs.HasUnixMode() {
		mode = attrs.UnixMode()
		if mode.IsSymlink() {
			if current&ModeTypeMask != ModeTypeFile {
				return nil
			}
			return convertToSymlink(path)
		} else if mode.IsDir() {
			mode |= ModePermissionUserRead | ModePermissionUserWrite | ModePermissionUserExecute
		}
	} else if current.IsSymlink() {
		return nil
	} else {
		mode = current
		if !mode.IsDir() && attrs&AttributeReadOnly != 0 {
			mode &^= modeWriteMask
		}
	}

	if err := unix.Chmod(path, uint32(mode&umask.Mask())); err != nil {
		return errors.Wrap(err, "unable to set file permissions")
	}
	return nil
}

// GetFileTimes returns the change, access and modification times of the item
// at path without following symbolic links.
func GetFileTimes(path string) (ctime, atime, mtime FileTime, err error) {
	var metadata unix.Stat_t
	if err = unix.Lstat(path, &metadata); err != nil {
		err = errors.Wrap(err, "unable to query file metadata")
		return
	}
	c, a, m := extractTimes(&metadata)
	return FromTime(time.Unix(c.Unix())), FromTime(time.Unix(a.Unix())), FromTime(time.Unix(m.Unix())), nil
}

// convertToSymlink replaces the regular file at path, whose first line holds a
// link target, with a symbolic link to that target. A failure leaves the
// filesystem in whatever state the failing step produced.
func convertToSymlink(path string) error {
	target, err := readLinkTarget(path)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil {
		return errors.Wrap(err, "unable to remove link placeholder")
	}
	if err := unix.Symlink(target, path); err != nil {
		return errors.Wrap(err, "unable to create symbolic link")
	}
	return nil
}

func readLinkTarget(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to open link placeholder")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxLinkTargetLength))
	if err != nil {
		return "", errors.Wrap(err, "unable to read link placeholder")
	}
	if newline := bytes.IndexByte(content, '\n'); newline >= 0 {
		content = content[:newline]
	}
	if len(content) == 0 {
		return "", errors.New("empty link target")
	}
	return string(content), nil
}
