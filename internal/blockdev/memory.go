package blockdev

// Memory is a device backed by a byte slice. A Memory created with Grow
// extends itself on writes past the end.
type Memory struct {
	blockSize int
	buf       []byte
	grow      bool
}

// NewMemory returns a fixed-size in-memory device.
func NewMemory(blockSize int, blocks int64) (*Memory, error) {
	if err := ValidBlockSize(blockSize); err != nil {
		return nil, err
	}
	return &Memory{
		blockSize: blockSize,
		buf:       make([]byte, int64(blockSize)*blocks),
	}, nil
}

// NewGrowingMemory returns an empty in-memory device that grows on write.
func NewGrowingMemory(blockSize int) (*Memory, error) {
	m, err := NewMemory(blockSize, 0)
	if err != nil {
		return nil, err
	}
	m.grow = true
	return m, nil
}

func (m *Memory) BlockSize() int { return m.blockSize }

func (m *Memory) Size() int64 { return int64(len(m.buf) / m.blockSize) }

// Bytes exposes the device contents.
func (m *Memory) Bytes() []byte { return m.buf }

func (m *Memory) ReadBlock(index int64, p []byte) error {
	if err := checkAccess(m, index, p); err != nil {
		return err
	}
	off := index * int64(m.blockSize)
	copy(p[:m.blockSize], m.buf[off:])
	return nil
}

func (m *Memory) WriteBlock(index int64, p []byte) error {
	if m.grow && index >= m.Size() {
		need := (index + 1) * int64(m.blockSize)
		m.buf = append(m.buf, make([]byte, need-int64(len(m.buf)))...)
	}
	if err := checkAccess(m, index, p); err != nil {
		return err
	}
	off := index * int64(m.blockSize)
	copy(m.buf[off:off+int64(m.blockSize)], p)
	return nil
}
