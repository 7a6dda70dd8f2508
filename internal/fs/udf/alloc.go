package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// ExtentAD is a byte length and an absolute block location.
type ExtentAD struct {
	Length   uint32
	Location uint32
}

func putExtentAD(b []byte, off int, e ExtentAD) {
	util.PutU32(b, off, e.Length)
	util.PutU32(b, off+4, e.Location)
}

func getExtentAD(b []byte, off int) ExtentAD {
	return ExtentAD{Length: util.U32(b, off), Location: util.U32(b, off+4)}
}

// LBAddr is a block within a partition.
type LBAddr struct {
	Block     uint32
	Partition uint16
}

func putLBAddr(b []byte, off int, a LBAddr) {
	util.PutU32(b, off, a.Block)
	util.PutU16(b, off+4, a.Partition)
}

func getLBAddr(b []byte, off int) LBAddr {
	return LBAddr{Block: util.U32(b, off), Partition: util.U16(b, off+4)}
}

// ShortAD is an extent within the partition of the describing entry.
type ShortAD struct {
	Length   uint32
	Type     uint8
	Position uint32
}

// LongAD is an extent with an explicit partition reference.
type LongAD struct {
	Length            uint32
	Type              uint8
	Location          LBAddr
	ImplementationUse [6]byte
}

// packExtentLength combines a 30-bit length with the 2-bit extent type.
func packExtentLength(length uint32, typ uint8) (uint32, error) {
	if length > MaxExtentLength {
		return 0, fmt.Errorf("%w: %#x", ErrExtentTooLong, length)
	}
	if typ > ExtentNextAllocationExt {
		return 0, fmt.Errorf("%w: extent type %d", ErrBadLength, typ)
	}
	if length == 0 && typ != ExtentRecorded {
		return 0, fmt.Errorf("%w: zero length extent of type %d", ErrBadLength, typ)
	}
	return length | uint32(typ)<<30, nil
}

func unpackExtentLength(v uint32) (uint32, uint8, error) {
	length, typ := v&MaxExtentLength, uint8(v>>30)
	if length == 0 && typ != ExtentRecorded {
		return 0, 0, fmt.Errorf("%w: zero length extent of type %d", ErrBadLength, typ)
	}
	return length, typ, nil
}

func (a ShortAD) put(b []byte, off int) error {
	v, err := packExtentLength(a.Length, a.Type)
	if err != nil {
		return err
	}
	util.PutU32(b, off, v)
	util.PutU32(b, off+4, a.Position)
	return nil
}

func getShortAD(b []byte, off int) (ShortAD, error) {
	length, typ, err := unpackExtentLength(util.U32(b, off))
	if err != nil {
		return ShortAD{}, err
	}
	return ShortAD{Length: length, Type: typ, Position: util.U32(b, off+4)}, nil
}

func (a LongAD) put(b []byte, off int) error {
	v, err := packExtentLength(a.Length, a.Type)
	if err != nil {
		return err
	}
	util.PutU32(b, off, v)
	putLBAddr(b, off+4, a.Location)
	copy(b[off+10:off+16], a.ImplementationUse[:])
	return nil
}

func getLongAD(b []byte, off int) (LongAD, error) {
	length, typ, err := unpackExtentLength(util.U32(b, off))
	if err != nil {
		return LongAD{}, err
	}
	a := LongAD{Length: length, Type: typ, Location: getLBAddr(b, off+4)}
	copy(a.ImplementationUse[:], b[off+10:off+16])
	return a, nil
}

// EncodeShortADs serializes a list of short allocation descriptors.
func EncodeShortADs(ads []ShortAD) ([]byte, error) {
	out := make([]byte, len(ads)*shortADSize)
	for i, a := range ads {
		if err := a.put(out, i*shortADSize); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeShortADs parses a packed list of short allocation descriptors.
func DecodeShortADs(b []byte) ([]ShortAD, error) {
	if len(b)%shortADSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of short_ad", ErrBadLength, len(b))
	}
	ads := make([]ShortAD, 0, len(b)/shortADSize)
	for off := 0; off < len(b); off += shortADSize {
		a, err := getShortAD(b, off)
		if err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	return ads, nil
}

// EncodeLongADs serializes a list of long allocation descriptors.
func EncodeLongADs(ads []LongAD) ([]byte, error) {
	out := make([]byte, len(ads)*longADSize)
	for i, a := range ads {
		if err := a.put(out, i*longADSize); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeLongADs parses a packed list of long allocation descriptors.
func DecodeLongADs(b []byte) ([]LongAD, error) {
	if len(b)%longADSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of long_ad", ErrBadLength, len(b))
	}
	ads := make([]LongAD, 0, len(b)/longADSize)
	for off := 0; off < len(b); off += longADSize {
		a, err := getLongAD(b, off)
		if err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	return ads, nil
}
