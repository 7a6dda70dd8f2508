package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// SpaceBitmapDescriptor marks every block of the partition, one bit per
// block, set when the block is free. Only the 8-byte header after the tag
// is covered by the CRC.
type SpaceBitmapDescriptor struct {
	DescriptorTag Tag
	NumberOfBits  uint32
	NumberOfBytes uint32
	// Bitmap may be shorter than NumberOfBytes when the caller streams
	// the remainder separately.
	Bitmap []byte
}

const spaceBitmapCRCLen = 8

func (d *SpaceBitmapDescriptor) Header() Tag { return d.DescriptorTag }

func (d *SpaceBitmapDescriptor) Write(b []byte, off int) (int, error) {
	if uint64(len(d.Bitmap)) > uint64(d.NumberOfBytes) {
		return off, fmt.Errorf("%w: bitmap of %d bytes, header says %d", ErrBadLength, len(d.Bitmap), d.NumberOfBytes)
	}
	n := spaceBitmapHdrSize + len(d.Bitmap)
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.NumberOfBits)
	util.PutU32(p, 20, d.NumberOfBytes)
	copy(p[spaceBitmapHdrSize:], d.Bitmap)
	sealTag(p, d.DescriptorTag, TagSpaceBitmap, spaceBitmapCRCLen)
	return off + n, nil
}

func parseSpaceBitmap(b []byte, tag Tag) (*SpaceBitmapDescriptor, error) {
	p, err := region(b, 0, spaceBitmapHdrSize)
	if err != nil {
		return nil, err
	}
	d := &SpaceBitmapDescriptor{
		DescriptorTag: tag,
		NumberOfBits:  util.U32(p, 16),
		NumberOfBytes: util.U32(p, 20),
	}
	if int64(d.NumberOfBytes) != util.CeilDiv(int64(d.NumberOfBits), 8) {
		return nil, fmt.Errorf("%w: %d bitmap bytes for %d bits", ErrBadLength, d.NumberOfBytes, d.NumberOfBits)
	}
	avail := int64(len(b) - spaceBitmapHdrSize)
	if avail > int64(d.NumberOfBytes) {
		avail = int64(d.NumberOfBytes)
	}
	d.Bitmap = view(b[spaceBitmapHdrSize : spaceBitmapHdrSize+int(avail)])
	return d, nil
}

// spaceBitmapBlocks returns the number of blocks the space bitmap
// descriptor occupies when it describes fixed other blocks plus itself.
// The size function is monotonic and grows by less than one block per
// block, so its least fixed point is found by bracketing and halving.
func spaceBitmapBlocks(fixed int64, blockSize int) int64 {
	bs := int64(blockSize)
	blocksFor := func(self int64) int64 {
		return util.CeilDiv(spaceBitmapHdrSize+util.CeilDiv(fixed+self, 8), bs)
	}
	lo := blocksFor(0)
	if blocksFor(lo) == lo {
		return lo
	}
	hi := 2 * lo
	for blocksFor(hi) > hi {
		hi *= 2
	}
	// blocksFor(lo) > lo and blocksFor(hi) <= hi
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if blocksFor(mid) <= mid {
			hi = mid
		} else {
			lo = mid
		}
	}
	n := hi
	// Rounding at a block boundary can leave the bracket one short.
	for blocksFor(n) != n {
		n = blocksFor(n)
	}
	return n
}
