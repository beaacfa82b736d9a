package fsutil

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

const (
	// TicksPerSecond is the number of FILETIME ticks (100ns) in a second.
	TicksPerSecond = 10_000_000
	// EpochOffsetSeconds is the distance between the NT epoch (1601-01-01)
	// and the Unix epoch (1970-01-01) in seconds.
	EpochOffsetSeconds = 11_644_473_600
	// EpochOffset is EpochOffsetSeconds expressed in ticks.
	EpochOffset = EpochOffsetSeconds * TicksPerSecond

	nanosPerTick = 100
)

// FileTime is a count of 100ns ticks since 1601-01-01T00:00:00Z, the layout
// used by Windows file times and by archive headers. It is signed so that
// instants before the NT epoch can still be represented.
type FileTime int64

// TicksToTime converts a tick count into a UTC time.Time. The conversion is
// exact since time.Time has finer resolution than a tick.
func TicksToTime(ticks int64) time.Time {
	// Split before subtracting the offset so that extreme tick values cannot
	// overflow.
	sec := ticks / TicksPerSecond
	rem := ticks % TicksPerSecond
	if rem < 0 {
		sec--
		rem += TicksPerSecond
	}
	return time.Unix(sec-EpochOffsetSeconds, rem*nanosPerTick).UTC()
}

// TimeToTicks converts t into a tick count. Precision below 100ns is
// truncated toward the earlier tick. Instants outside the range of a FileTime
// (roughly ±29,000 years around 1601) saturate to the nearest bound.
func TimeToTicks(t time.Time) int64 {
	sec := t.Unix() + EpochOffsetSeconds
	if sec >= math.MaxInt64/TicksPerSecond {
		return math.MaxInt64
	} else if sec < math.MinInt64/TicksPerSecond {
		return math.MinInt64
	}
	return sec*TicksPerSecond + int64(t.Nanosecond()/nanosPerTick)
}

// FromTime converts t into a FileTime.
func FromTime(t time.Time) FileTime {
	return FileTime(TimeToTicks(t))
}

// Now returns the current time as a FileTime.
func Now() FileTime {
	return FromTime(time.Now())
}

// Time converts the FileTime into a UTC time.Time.
func (ft FileTime) Time() time.Time {
	return TicksToTime(int64(ft))
}

// Split returns the low and high 32-bit halves of the tick count, the form
// used by interfaces that carry a FILETIME as two DWORDs.
func (ft FileTime) Split() (low, high uint32) {
	return uint32(uint64(ft)), uint32(uint64(ft) >> 32)
}

// JoinFileTime rebuilds a FileTime from its low and high halves.
func JoinFileTime(low, high uint32) FileTime {
	return FileTime(int64(uint64(high)<<32 | uint64(low)))
}

// MarshalBinary encodes the tick count as 8 little-endian bytes.
func (ft FileTime) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(make([]byte, 0, 8), uint64(ft)), nil
}

// UnmarshalBinary decodes 8 little-endian bytes into the FileTime.
func (ft *FileTime) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return errors.Errorf("invalid file time length: %d", len(data))
	}
	*ft = FileTime(binary.LittleEndian.Uint64(data))
	return nil
}

// String formats the FileTime as an RFC 3339 timestamp.
func (ft FileTime) String() string {
	return ft.Time().Format(time.RFC3339Nano)
}
