package util

import (
	"fmt"
	"math"
)

func FormatFileSize(size float64, human bool) string {
	if size <= 0 {
		return "0"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	group := 0
	if human {
		group = int(math.Log10(size) / math.Log10(1024))
		if group < 0 {
			group = 0
		}
		if group >= len(units) {
			group = len(units) - 1
		}
	}
	return fmt.Sprintf("%.2f %s", size/math.Pow(1024, float64(group)), units[group])
}

// Little-endian accessors at a fixed offset. They panic on short buffers
// like any slice index; callers size buffers from the descriptor layout.

func U8(b []byte, off int) uint8 {
	return b[off]
}

func U16(b []byte, off int) uint16 {
	_ = b[off+1]
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func U32(b []byte, off int) uint32 {
	_ = b[off+3]
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func U64(b []byte, off int) uint64 {
	return uint64(U32(b, off)) | uint64(U32(b, off+4))<<32
}

func PutU8(b []byte, off int, v uint8) {
	b[off] = v
}

func PutU16(b []byte, off int, v uint16) {
	_ = b[off+1]
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func PutU32(b []byte, off int, v uint32) {
	_ = b[off+3]
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func PutU64(b []byte, off int, v uint64) {
	PutU32(b, off, uint32(v))
	PutU32(b, off+4, uint32(v>>32))
}

// Zero clears b[off:off+n].
func Zero(b []byte, off, n int) {
	clear(b[off : off+n])
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// CeilDiv returns ceil(n/d) for non-negative n and positive d.
func CeilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}
