package udf

import (
	"fmt"
	"unicode/utf16"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// Compliance selects how strictly fixed-length strings are decoded.
type Compliance int

const (
	// Strict rejects garbage after a string and inconsistent length bytes.
	Strict Compliance = iota
	// Lenient ignores trailing garbage and clamps the length byte.
	Lenient
)

func (c Compliance) String() string {
	if c == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseCompliance maps "strict" and "lenient" to a Compliance.
func ParseCompliance(s string) (Compliance, error) {
	switch s {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	}
	return Strict, fmt.Errorf("udf: unknown compliance %q", s)
}

// Compression IDs of OSTA compressed unicode.
const (
	compress8  = 8
	compress16 = 16
)

// EncodeString returns the compressed unicode form of s: a compression ID
// followed by one byte per character, or two big-endian bytes per UTF-16
// unit when any character is above U+00FF. The empty string encodes to
// nothing.
func EncodeString(s string) []byte {
	if s == "" {
		return nil
	}
	wide := false
	for _, r := range s {
		if r > 0xff {
			wide = true
			break
		}
	}
	if !wide {
		out := make([]byte, 0, len(s)+1)
		out = append(out, compress8)
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 1+2*len(units))
	out[0] = compress16
	for i, u := range units {
		out[1+2*i] = byte(u >> 8)
		out[2+2*i] = byte(u)
	}
	return out
}

// DecodeString decodes compressed unicode produced by EncodeString.
func DecodeString(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	switch b[0] {
	case compress8:
		rs := make([]rune, len(b)-1)
		for i, c := range b[1:] {
			rs[i] = rune(c)
		}
		return string(rs), nil
	case compress16:
		if (len(b)-1)%2 != 0 {
			return "", fmt.Errorf("%w: odd length %d for 16-bit characters", ErrBadDString, len(b))
		}
		units := make([]uint16, (len(b)-1)/2)
		for i := range units {
			units[i] = uint16(b[1+2*i])<<8 | uint16(b[2+2*i])
		}
		return string(utf16.Decode(units)), nil
	}
	return "", fmt.Errorf("%w: compression id %d", ErrBadDString, b[0])
}

// encodedLen is len(EncodeString(s)) without allocating.
func encodedLen(s string) int {
	if s == "" {
		return 0
	}
	n, wide := 0, false
	for _, r := range s {
		n++
		if r > 0xffff {
			n++
		}
		if r > 0xff {
			wide = true
		}
	}
	if wide {
		return 1 + 2*n
	}
	return 1 + n
}

// putDString stores s in the fixed field b, whose last byte records the
// encoded length. The empty string leaves the field zeroed.
func putDString(b []byte, s string) error {
	clear(b)
	enc := EncodeString(s)
	if len(enc) > len(b)-1 {
		return fmt.Errorf("%w: %q needs %d bytes, field holds %d", ErrBadLength, s, len(enc), len(b)-1)
	}
	copy(b, enc)
	b[len(b)-1] = byte(len(enc))
	return nil
}

// getDString decodes a fixed field written by putDString.
func getDString(b []byte, c Compliance) (string, error) {
	last := len(b) - 1
	n := int(b[last])
	if n > last {
		if c == Strict {
			return "", fmt.Errorf("%w: length byte %d exceeds field of %d", ErrBadDString, n, len(b))
		}
		n = last
	}
	if c == Strict && !util.IsZero(b[n:last]) {
		return "", fmt.Errorf("%w: non-zero bytes after declared length %d", ErrBadDString, n)
	}
	if n == 0 {
		return "", nil
	}
	if c == Lenient && b[0] == compress16 && (n-1)%2 != 0 {
		n--
	}
	return DecodeString(b[:n])
}

// truncateString cuts s to the longest prefix whose encoding fits max bytes.
func truncateString(s string, max int) string {
	for encodedLen(s) > max {
		rs := []rune(s)
		s = string(rs[:len(rs)-1])
	}
	return s
}
