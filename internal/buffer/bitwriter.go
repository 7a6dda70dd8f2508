package buffer

import "errors"

var errUnaligned = errors.New("buffer: byte write at unaligned bit position")

// BitWriter packs LSB-first bits into fixed-size blocks and hands every
// completed block to flush. The block slice passed to flush is reused.
type BitWriter struct {
	block   []byte
	bitPos  int64
	flush   func(block []byte) error
	flushed int64
	err     error
}

func NewBitWriter(blockSize int, flush func(block []byte) error) *BitWriter {
	return &BitWriter{
		block: make([]byte, blockSize),
		flush: flush,
	}
}

// Blocks returns the number of blocks handed to flush so far.
func (w *BitWriter) Blocks() int64 {
	return w.flushed
}

func (w *BitWriter) blockBits() int64 {
	return int64(len(w.block)) * 8
}

func (w *BitWriter) emit() error {
	if w.err != nil {
		return w.err
	}
	if err := w.flush(w.block); err != nil {
		w.err = err
		return err
	}
	w.flushed++
	clear(w.block)
	w.bitPos = 0
	return nil
}

// WriteBytes appends whole bytes. The writer must be byte aligned.
func (w *BitWriter) WriteBytes(p []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.bitPos%8 != 0 {
		return errUnaligned
	}
	for len(p) > 0 {
		off := int(w.bitPos / 8)
		n := copy(w.block[off:], p)
		p = p[n:]
		w.bitPos += int64(n) * 8
		if w.bitPos == w.blockBits() {
			if err := w.emit(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *BitWriter) WriteBit(set bool) error {
	if w.err != nil {
		return w.err
	}
	if set {
		w.block[w.bitPos/8] |= 1 << (w.bitPos % 8)
	}
	w.bitPos++
	if w.bitPos == w.blockBits() {
		return w.emit()
	}
	return nil
}

// WriteRun appends n copies of the same bit.
func (w *BitWriter) WriteRun(set bool, n int64) error {
	for n > 0 && w.bitPos%8 != 0 {
		if err := w.WriteBit(set); err != nil {
			return err
		}
		n--
	}
	fill := byte(0)
	if set {
		fill = 0xFF
	}
	for n >= 8 {
		off := w.bitPos / 8
		room := int64(len(w.block)) - off
		whole := n / 8
		if whole > room {
			whole = room
		}
		if set {
			for i := off; i < off+whole; i++ {
				w.block[i] = fill
			}
		}
		w.bitPos += whole * 8
		n -= whole * 8
		if w.bitPos == w.blockBits() {
			if err := w.emit(); err != nil {
				return err
			}
		}
	}
	for ; n > 0; n-- {
		if err := w.WriteBit(set); err != nil {
			return err
		}
	}
	return w.err
}

// Flush emits the partially filled block, zero padded. It is a no-op when
// the writer sits on a block boundary.
func (w *BitWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.bitPos == 0 {
		return nil
	}
	return w.emit()
}
