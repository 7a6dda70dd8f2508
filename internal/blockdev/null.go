package blockdev

// Null discards data and counts writes. The resolve pass of the volume
// writer runs against it to measure a volume without producing one.
type Null struct {
	blockSize int
	writes    int64
	highWater int64
}

func NewNull(blockSize int) *Null {
	return &Null{blockSize: blockSize}
}

func (n *Null) BlockSize() int { return n.blockSize }

// Size is unbounded for the null device.
func (n *Null) Size() int64 { return 1<<63 - 1 }

func (n *Null) ReadBlock(index int64, p []byte) error {
	if err := checkAccess(n, index, p); err != nil {
		return err
	}
	clear(p[:n.blockSize])
	return nil
}

func (n *Null) WriteBlock(index int64, p []byte) error {
	if index < 0 {
		return ErrOutOfRange
	}
	n.writes++
	if index+1 > n.highWater {
		n.highWater = index + 1
	}
	return nil
}

// Skip accounts for count blocks starting at index without data.
func (n *Null) Skip(index, count int64) {
	if count <= 0 {
		return
	}
	n.writes += count
	if index+count > n.highWater {
		n.highWater = index + count
	}
}

// Writes is the number of blocks written or skipped.
func (n *Null) Writes() int64 { return n.writes }

// HighWater is one past the highest block index touched.
func (n *Null) HighWater() int64 { return n.highWater }
