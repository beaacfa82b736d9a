//go:build darwin || netbsd

package fsutil

import (
	"golang.org/x/sys/unix"
)

// extractTimes pulls the change, access and modification times out of a
// Stat_t. The field names differ between POSIX platforms.
func extractTimes(metadata *unix.Stat_t) (ctime, atime, mtime *unix.Timespec) {
	return &metadata.Ctimespec, &metadata.Atimespec, &metadata.Mtimespec
}
