// Package props defines the item properties exchanged between the archive
// engines and the callbacks that feed them. Only the property kinds the
// adapters actually need are modelled.
package props

import (
	"fmt"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
)

// PropID identifies an item property.
type PropID uint8

const (
	// PropPath is the item path inside the archive (String).
	PropPath PropID = iota + 1
	// PropIsDir reports whether the item is a directory (Bool).
	PropIsDir
	// PropSize is the uncompressed size in bytes (Uint64).
	PropSize
	// PropAttrib is the attribute word (Uint32, see fsutil.Attributes).
	PropAttrib
	// PropCTime is the creation time (FileTime).
	PropCTime
	// PropATime is the last access time (FileTime).
	PropATime
	// PropMTime is the last modification time (FileTime).
	PropMTime
	// PropIsAnti reports whether the item is an anti-item marking a deletion
	// (Bool).
	PropIsAnti
)

var propNames = map[PropID]string{
	PropPath:   "path",
	PropIsDir:  "is_dir",
	PropSize:   "size",
	PropAttrib: "attrib",
	PropCTime:  "ctime",
	PropATime:  "atime",
	PropMTime:  "mtime",
	PropIsAnti: "is_anti",
}

func (id PropID) String() string {
	if name, ok := propNames[id]; ok {
		return name
	}
	return fmt.Sprintf("prop(%d)", uint8(id))
}

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindBool
	KindUint32
	KindUint64
	KindFileTime
)

// Value is a tagged property value. The zero Value is empty.
type Value struct {
	kind Kind
	str  string
	num  uint64
	ft   fsutil.FileTime
}

// Empty returns a value carrying no data.
func Empty() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Uint32 returns a 32-bit unsigned value.
func Uint32(n uint32) Value { return Value{kind: KindUint32, num: uint64(n)} }

// Uint64 returns a 64-bit unsigned value.
func Uint64(n uint64) Value { return Value{kind: KindUint64, num: n} }

// FileTime returns a timestamp value.
func FileTime(ft fsutil.FileTime) Value { return Value{kind: KindFileTime, ft: ft} }

// Kind returns the type tag of the value.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value carries no data.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsBool() (bool, bool) { return v.num != 0, v.kind == KindBool }

func (v Value) AsUint32() (uint32, bool) { return uint32(v.num), v.kind == KindUint32 }

// AsUint64 returns the value as a uint64. 32-bit values are widened.
func (v Value) AsUint64() (uint64, bool) {
	return v.num, v.kind == KindUint64 || v.kind == KindUint32
}

func (v Value) AsFileTime() (fsutil.FileTime, bool) { return v.ft, v.kind == KindFileTime }

// Format renders the value for logs and listings.
func (v Value) Format() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		b, _ := v.AsBool()
		return fmt.Sprint(b)
	case KindUint32, KindUint64:
		return fmt.Sprint(v.num)
	case KindFileTime:
		return v.ft.String()
	default:
		return ""
	}
}
