// Package blockdev provides fixed-size block devices that UDF volumes are
// written to and read from.
package blockdev

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange   = errors.New("blockdev: block index out of range")
	ErrBlockSize    = errors.New("blockdev: invalid block size")
	ErrShortBuffer  = errors.New("blockdev: buffer does not hold one block")
	ErrDeviceClosed = errors.New("blockdev: device closed")
)

// Device is random-access storage addressed in whole blocks.
type Device interface {
	// BlockSize is the fixed size of one block in bytes, a multiple of 512.
	BlockSize() int
	// Size is the number of addressable blocks.
	Size() int64
	// ReadBlock fills p[:BlockSize()] with block index.
	ReadBlock(index int64, p []byte) error
	// WriteBlock stores p[:BlockSize()] at block index.
	WriteBlock(index int64, p []byte) error
}

// ValidBlockSize reports whether n is a usable block size.
func ValidBlockSize(n int) error {
	if n < 512 || n%512 != 0 || n > 32768 {
		return fmt.Errorf("%w: %d (want a multiple of 512 up to 32768)", ErrBlockSize, n)
	}
	return nil
}

func checkAccess(d Device, index int64, p []byte) error {
	if len(p) < d.BlockSize() {
		return fmt.Errorf("%w: have %d bytes, block is %d", ErrShortBuffer, len(p), d.BlockSize())
	}
	if index < 0 || index >= d.Size() {
		return fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, index, d.Size())
	}
	return nil
}
