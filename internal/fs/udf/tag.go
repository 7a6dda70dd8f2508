package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// Tag is the 16-byte header in front of every descriptor. The checksum and
// CRC fields are derived on write and verified on parse, so they are not
// kept here.
type Tag struct {
	Identifier TagIdentifier
	Version    uint16
	Serial     uint16
	// Location is the block the descriptor claims to occupy, relative to
	// its partition for descriptors inside one.
	Location uint32
}

// NewTag returns a version 2 tag for a descriptor at location.
func NewTag(id TagIdentifier, location uint32) Tag {
	return Tag{Identifier: id, Version: DescriptorVersion, Location: location}
}

func tagChecksum(h []byte) byte {
	var sum byte
	for i := 0; i < tagSize; i++ {
		if i != 4 {
			sum += h[i]
		}
	}
	return sum
}

// sealTag writes t at the start of d, forcing id, and fills in the CRC of
// the crcLen payload bytes that follow the header and the header checksum.
func sealTag(d []byte, t Tag, id TagIdentifier, crcLen int) {
	util.PutU16(d, 0, uint16(id))
	util.PutU16(d, 2, t.Version)
	d[4] = 0
	d[5] = 0
	util.PutU16(d, 6, t.Serial)
	util.PutU16(d, 8, CRC(d[tagSize:tagSize+crcLen]))
	util.PutU16(d, 10, uint16(crcLen))
	util.PutU32(d, 12, t.Location)
	d[4] = tagChecksum(d)
}

// parseTag validates the header at b[off:] and the payload CRC.
func parseTag(b []byte, off int) (Tag, error) {
	if off < 0 || len(b)-off < tagSize {
		return Tag{}, fmt.Errorf("%w: truncated tag", ErrBadLength)
	}
	h := b[off:]
	if sum := tagChecksum(h); sum != h[4] {
		return Tag{}, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksum, h[4], sum)
	}
	crcLen := int(util.U16(h, 10))
	if len(h)-tagSize < crcLen {
		return Tag{}, fmt.Errorf("%w: crc length %d beyond buffer", ErrBadLength, crcLen)
	}
	if got, want := CRC(h[tagSize:tagSize+crcLen]), util.U16(h, 8); got != want {
		return Tag{}, fmt.Errorf("%w: got %#04x, want %#04x", ErrCRC, got, want)
	}
	t := Tag{
		Identifier: TagIdentifier(util.U16(h, 0)),
		Version:    util.U16(h, 2),
		Serial:     util.U16(h, 6),
		Location:   util.U32(h, 12),
	}
	if t.Identifier != 0 && t.Version != 2 && t.Version != 3 {
		return Tag{}, fmt.Errorf("%w: descriptor version %d", ErrFormat, t.Version)
	}
	return t, nil
}
