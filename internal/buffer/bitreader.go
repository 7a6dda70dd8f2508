package buffer

// BitReader reads LSB-first bits from a byte slice, the order used by
// ECMA-167 space bitmaps: bit 0 of byte 0 describes block 0.
type BitReader struct {
	data    []byte
	bytePos int
	bitPos  uint8
}

func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

func (r *BitReader) BytesLeft() int {
	if r.bytePos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.bytePos
}

// BitsLeft returns the number of unread bits.
func (r *BitReader) BitsLeft() int64 {
	if r.bytePos >= len(r.data) {
		return 0
	}
	return int64(len(r.data)-r.bytePos)*8 - int64(r.bitPos)
}

func (r *BitReader) ReadBit() (uint64, bool) {
	if r.bytePos >= len(r.data) {
		return 0, false
	}
	b := r.data[r.bytePos]
	bit := (b >> r.bitPos) & 0x01
	r.bitPos++
	if r.bitPos == 8 {
		r.bitPos = 0
		r.bytePos++
	}
	return uint64(bit), true
}

// ReadBits reads n bits; the first bit read becomes bit 0 of the result.
func (r *BitReader) ReadBits(n int) (uint64, bool) {
	if n <= 0 {
		return 0, true
	}
	if n > 64 || int64(n) > r.BitsLeft() {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit, _ := r.ReadBit()
		v |= bit << i
	}
	return v, true
}

func (r *BitReader) ReadByte() (byte, bool) {
	if r.bitPos == 0 {
		if r.bytePos >= len(r.data) {
			return 0, false
		}
		b := r.data[r.bytePos]
		r.bytePos++
		return b, true
	}
	val, ok := r.ReadBits(8)
	if !ok {
		return 0, false
	}
	return byte(val), true
}

func (r *BitReader) SkipBits(n int64) bool {
	if n > r.BitsLeft() {
		return false
	}
	total := int64(r.bitPos) + n
	r.bytePos += int(total / 8)
	r.bitPos = uint8(total % 8)
	return true
}

// CountOnes consumes n bits and returns how many of them were set.
func (r *BitReader) CountOnes(n int64) (int64, bool) {
	if n > r.BitsLeft() {
		return 0, false
	}
	var ones int64
	for n > 0 && r.bitPos != 0 {
		bit, _ := r.ReadBit()
		ones += int64(bit)
		n--
	}
	for n >= 8 {
		ones += int64(popcount8(r.data[r.bytePos]))
		r.bytePos++
		n -= 8
	}
	for ; n > 0; n-- {
		bit, _ := r.ReadBit()
		ones += int64(bit)
	}
	return ones, true
}

func popcount8(b byte) int {
	n := 0
	for b != 0 {
		b &= b - 1
		n++
	}
	return n
}
