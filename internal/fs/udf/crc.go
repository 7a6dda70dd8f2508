package udf

import "fmt"

// CRC-16/CCITT, polynomial x^16 + x^12 + x^5 + 1, initial value 0.
const crcPoly = 0x1021

var crcTable = func() (t [256]uint16) {
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC returns the descriptor CRC of data.
func CRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// CRCTestVector is the ECMA-167 check: the bytes 70 6A 77 give 3299.
var CRCTestVector = struct {
	Input []byte
	Want  uint16
}{[]byte{0x70, 0x6a, 0x77}, 0x3299}

// CRCSelfTest verifies the table against CRCTestVector.
func CRCSelfTest() error {
	if got := CRC(CRCTestVector.Input); got != CRCTestVector.Want {
		return fmt.Errorf("udf: crc self test: got %04x, want %04x", got, CRCTestVector.Want)
	}
	return nil
}
