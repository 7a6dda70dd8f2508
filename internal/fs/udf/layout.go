package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
)

// phase is where a traversal of the volume sends its blocks. Resolve and
// Make run the same traversal, once against a counting device and once
// against the real one.
type phase interface {
	emitting() bool
	// put stores one block at an absolute block address.
	put(block uint32, data []byte) error
	// skip accounts for blocks whose content is not produced by this
	// phase.
	skip(block, count uint32)
}

type resolvePass struct {
	dev *blockdev.Null
}

func (resolvePass) emitting() bool { return false }

func (p resolvePass) put(block uint32, data []byte) error {
	return p.dev.WriteBlock(int64(block), data)
}

func (p resolvePass) skip(block, count uint32) {
	p.dev.Skip(int64(block), int64(count))
}

type emitPass struct {
	dev blockdev.Device
}

func (emitPass) emitting() bool { return true }

func (p emitPass) put(block uint32, data []byte) error {
	return p.dev.WriteBlock(int64(block), data)
}

func (emitPass) skip(uint32, uint32) {}

// layout is the accumulator threaded through one traversal. The resolve
// pass fills positions; the make pass starts from the resolved positions
// in expect and checks that every entry lands where it was resolved.
type layout struct {
	// next is the next unused partition block.
	next      uint64
	positions map[*node]uint32
	expect    map[*node]uint32
	uniqueID  uint64
	files     uint32
	dirs      uint32
}

func newLayout(expect map[*node]uint32) *layout {
	return &layout{
		positions: make(map[*node]uint32, len(expect)),
		expect:    expect,
		uniqueID:  firstUniqueID,
	}
}

// allocate reserves count partition blocks and returns the first.
func (l *layout) allocate(count int64) uint32 {
	start := l.next
	l.next += uint64(count)
	return uint32(start)
}

// place allocates the file entry block of n. A position that differs from
// the resolved one means the two passes diverged, which is a bug.
func (l *layout) place(n *node) uint32 {
	pos := l.allocate(1)
	if l.expect != nil {
		want, ok := l.expect[n]
		if !ok || want != pos {
			panic(fmt.Sprintf("udf: %s placed at partition block %d, resolved at %d", n.path, pos, want))
		}
	}
	l.positions[n] = pos
	return pos
}

// lookup returns the file entry block of n. Entries not yet placed are
// known from the resolved layout, or zero while resolving.
func (l *layout) lookup(n *node) uint32 {
	if pos, ok := l.positions[n]; ok {
		return pos
	}
	return l.expect[n]
}

// nextUniqueID hands out unique IDs; the root directory always has 0.
func (l *layout) nextUniqueID(root bool) uint64 {
	if root {
		return 0
	}
	id := l.uniqueID
	l.uniqueID++
	return id
}

// geometry is the block map of a volume, fixed once the partition
// contents are known.
type geometry struct {
	blockSize      int
	used           uint32
	free           uint32
	bitmapBlocks   uint32
	bitmapBytes    uint32
	bitmapLocation uint32
	partitionStart uint32
	partitionLen   uint32
	reserveVDS     uint32
	total          uint32
}

// computeGeometry places the space bitmap after used and free partition
// blocks and the reserve sequence and anchor after the partition.
func computeGeometry(blockSize int, used uint64, free uint32) (geometry, error) {
	bitmap := spaceBitmapBlocks(int64(used)+int64(free), blockSize)
	partLen := used + uint64(free) + uint64(bitmap)
	total := uint64(partitionStartLoc) + partLen + SequenceBlocks + 1
	if total > MaxBlocks {
		return geometry{}, limitErr(ErrTooManyBlocks, "", int64(total), MaxBlocks)
	}
	return geometry{
		blockSize:      blockSize,
		used:           uint32(used),
		free:           free,
		bitmapBlocks:   uint32(bitmap),
		bitmapBytes:    uint32((partLen + 7) / 8),
		bitmapLocation: uint32(used) + free,
		partitionStart: partitionStartLoc,
		partitionLen:   uint32(partLen),
		reserveVDS:     uint32(uint64(partitionStartLoc) + partLen),
		total:          uint32(total),
	}, nil
}

// Layout describes a resolved volume.
type Layout struct {
	BlockSize       int
	Blocks          uint32
	PartitionStart  uint32
	PartitionLength uint32
	UsedBlocks      uint32
	FreeBlocks      uint32
	BitmapLocation  uint32
	BitmapBlocks    uint32
	ReserveSequence uint32
	Files           uint32
	Directories     uint32
	NextUniqueID    uint64
	// Positions maps volume paths to the partition block of their file
	// entry.
	Positions map[string]uint32
}
