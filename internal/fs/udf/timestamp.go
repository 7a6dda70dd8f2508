package udf

import (
	"time"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// Timestamp is the 12-byte ECMA-167 recording time.
type Timestamp struct {
	TypeAndTimezone        uint16
	Year                   int16
	Month                  uint8
	Day                    uint8
	Hour                   uint8
	Minute                 uint8
	Second                 uint8
	Centiseconds           uint8
	HundredsOfMicroseconds uint8
	Microseconds           uint8
}

const (
	timestampLocal = 1
	// noOffset marks a timestamp without a recorded UTC offset.
	noOffset = -2047
)

// NewTimestamp records t in its own zone.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	_, secs := t.Zone()
	offset := secs / 60
	if offset < -1440 || offset > 1440 {
		t = t.UTC()
		offset = 0
	}
	year := t.Year()
	if year < 1 || year > 9999 {
		return Timestamp{}
	}
	ns := t.Nanosecond()
	return Timestamp{
		TypeAndTimezone:        timestampLocal<<12 | uint16(offset)&0x0fff,
		Year:                   int16(year),
		Month:                  uint8(t.Month()),
		Day:                    uint8(t.Day()),
		Hour:                   uint8(t.Hour()),
		Minute:                 uint8(t.Minute()),
		Second:                 uint8(t.Second()),
		Centiseconds:           uint8(ns / 10_000_000),
		HundredsOfMicroseconds: uint8(ns / 100_000 % 100),
		Microseconds:           uint8(ns / 1000 % 100),
	}
}

// Type is the timestamp interpretation, 1 for local time.
func (ts Timestamp) Type() int {
	return int(ts.TypeAndTimezone >> 12)
}

// Offset returns the recorded UTC offset in minutes; ok is false for the
// no-offset sentinel.
func (ts Timestamp) Offset() (minutes int, ok bool) {
	raw := int(ts.TypeAndTimezone & 0x0fff)
	if raw&0x800 != 0 {
		raw -= 0x1000
	}
	if raw == noOffset {
		return 0, false
	}
	return raw, true
}

// IsZero reports an unset timestamp.
func (ts Timestamp) IsZero() bool {
	return ts == Timestamp{}
}

// Time converts the timestamp to a time.Time. A timestamp without offset
// is read as local time.
func (ts Timestamp) Time() time.Time {
	if ts.IsZero() || ts.Month == 0 || ts.Day == 0 {
		return time.Time{}
	}
	loc := time.Local
	if off, ok := ts.Offset(); ok {
		if off == 0 {
			loc = time.UTC
		} else {
			loc = time.FixedZone("", off*60)
		}
	}
	ns := int(ts.Centiseconds)*10_000_000 + int(ts.HundredsOfMicroseconds)*100_000 + int(ts.Microseconds)*1000
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day),
		int(ts.Hour), int(ts.Minute), int(ts.Second), ns, loc)
}

func putTimestamp(b []byte, off int, ts Timestamp) {
	util.PutU16(b, off, ts.TypeAndTimezone)
	util.PutU16(b, off+2, uint16(ts.Year))
	b[off+4] = ts.Month
	b[off+5] = ts.Day
	b[off+6] = ts.Hour
	b[off+7] = ts.Minute
	b[off+8] = ts.Second
	b[off+9] = ts.Centiseconds
	b[off+10] = ts.HundredsOfMicroseconds
	b[off+11] = ts.Microseconds
}

func getTimestamp(b []byte, off int) Timestamp {
	return Timestamp{
		TypeAndTimezone:        util.U16(b, off),
		Year:                   int16(util.U16(b, off+2)),
		Month:                  b[off+4],
		Day:                    b[off+5],
		Hour:                   b[off+6],
		Minute:                 b[off+7],
		Second:                 b[off+8],
		Centiseconds:           b[off+9],
		HundredsOfMicroseconds: b[off+10],
		Microseconds:           b[off+11],
	}
}
