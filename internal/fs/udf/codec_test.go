package udf

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRCVector(t *testing.T) {
	assert.Equal(t, CRCTestVector.Want, CRC(CRCTestVector.Input))
	assert.NoError(t, CRCSelfTest())
	assert.Equal(t, uint16(0), CRC(nil))
}

func TestEncodeString8Bit(t *testing.T) {
	for _, s := range []string{"a", "README.TXT", "café", strings.Repeat("x", 254)} {
		enc := EncodeString(s)
		require.NotEmpty(t, enc)
		assert.Equal(t, byte(compress8), enc[0], s)
		assert.Equal(t, encodedLen(s), len(enc), s)
		got, err := DecodeString(enc)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEncodeString16Bit(t *testing.T) {
	for _, s := range []string{"Ā", "日本語", "mixed é and €", "emoji \U0001F600"} {
		enc := EncodeString(s)
		assert.Equal(t, byte(compress16), enc[0], s)
		assert.Equal(t, encodedLen(s), len(enc), s)
		got, err := DecodeString(enc)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEncodeStringEmpty(t *testing.T) {
	assert.Nil(t, EncodeString(""))
	got, err := DecodeString(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecodeStringErrors(t *testing.T) {
	_, err := DecodeString([]byte{16, 0x00})
	assert.ErrorIs(t, err, ErrBadDString)
	assert.ErrorIs(t, err, ErrFormat)
	_, err = DecodeString([]byte{9, 'a'})
	assert.ErrorIs(t, err, ErrBadDString)
}

func TestDStringField(t *testing.T) {
	field := make([]byte, 32)
	require.NoError(t, putDString(field, "LABEL"))
	assert.Equal(t, byte(6), field[31])
	got, err := getDString(field, Strict)
	require.NoError(t, err)
	assert.Equal(t, "LABEL", got)

	longest := strings.Repeat("n", 30)
	require.NoError(t, putDString(field, longest))
	got, err = getDString(field, Strict)
	require.NoError(t, err)
	assert.Equal(t, longest, got)
	assert.ErrorIs(t, putDString(field, longest+"n"), ErrBadLength)
}

func TestDStringEmptyFieldIsZero(t *testing.T) {
	field := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, putDString(field, ""))
	assert.Equal(t, make([]byte, 8), field)
	got, err := getDString(field, Strict)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDStringCompliance(t *testing.T) {
	field := make([]byte, 16)
	require.NoError(t, putDString(field, "ABC"))
	field[10] = 'Z'
	_, err := getDString(field, Strict)
	assert.ErrorIs(t, err, ErrBadDString)
	got, err := getDString(field, Lenient)
	require.NoError(t, err)
	assert.Equal(t, "ABC", got)

	field[15] = 40
	_, err = getDString(field, Strict)
	assert.ErrorIs(t, err, ErrBadDString)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abcdef", 4))
	assert.Equal(t, "日", truncateString("日本", 4))
	assert.Equal(t, "short", truncateString("short", 30))
}

func TestParseCompliance(t *testing.T) {
	c, err := ParseCompliance("lenient")
	require.NoError(t, err)
	assert.Equal(t, Lenient, c)
	assert.Equal(t, "lenient", c.String())
	c, err = ParseCompliance("")
	require.NoError(t, err)
	assert.Equal(t, Strict, c)
	_, err = ParseCompliance("loose")
	assert.Error(t, err)
}

func TestTimestampRoundTrip(t *testing.T) {
	zone := time.FixedZone("", -5*3600)
	at := time.Date(2024, time.March, 9, 17, 4, 5, 123_456_000, zone)
	ts := NewTimestamp(at)
	assert.Equal(t, 1, ts.Type())
	off, ok := ts.Offset()
	require.True(t, ok)
	assert.Equal(t, -300, off)

	b := make([]byte, timestampSize)
	putTimestamp(b, 0, ts)
	got := getTimestamp(b, 0)
	assert.Equal(t, ts, got)
	assert.True(t, at.Equal(got.Time()), "%v != %v", at, got.Time())
}

func TestTimestampUTCAndZero(t *testing.T) {
	at := time.Date(2001, time.January, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, time.UTC, NewTimestamp(at).Time().Location())
	assert.True(t, NewTimestamp(time.Time{}).IsZero())
	assert.True(t, Timestamp{}.Time().IsZero())

	noZone := Timestamp{TypeAndTimezone: 1<<12 | 0x801, Year: 2020, Month: 1, Day: 1}
	_, ok := noZone.Offset()
	assert.False(t, ok)
	assert.Equal(t, time.Local, noZone.Time().Location())
}

func TestExtentLengthLimits(t *testing.T) {
	_, err := EncodeShortADs([]ShortAD{{Length: MaxExtentLength + 1}})
	assert.ErrorIs(t, err, ErrExtentTooLong)
	assert.ErrorIs(t, err, ErrLimit)

	_, err = EncodeLongADs([]LongAD{{Length: 0x40000000}})
	assert.ErrorIs(t, err, ErrExtentTooLong)

	in := []ShortAD{{Length: MaxExtentLength, Position: 7}, {Length: 0, Position: 9}, {Length: 512, Type: ExtentAllocated, Position: 1}}
	b, err := EncodeShortADs(in)
	require.NoError(t, err)
	out, err := DecodeShortADs(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLongADRoundTrip(t *testing.T) {
	in := []LongAD{
		{Length: MaxExtentLength, Type: ExtentNotAllocated, Location: LBAddr{Block: 1 << 31, Partition: 3}, ImplementationUse: [6]byte{1, 2, 3, 4, 5, 6}},
		{Length: 0, Location: LBAddr{Block: 0}},
	}
	b, err := EncodeLongADs(in)
	require.NoError(t, err)
	out, err := DecodeLongADs(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeLongADs(b[:17])
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestZeroLengthExtentNeedsRecordedType(t *testing.T) {
	_, err := EncodeShortADs([]ShortAD{{Length: 0, Type: ExtentAllocated}})
	assert.ErrorIs(t, err, ErrBadLength)

	b := make([]byte, shortADSize)
	b[3] = 0x40
	_, err = DecodeShortADs(b)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestEntityIDRoundTrip(t *testing.T) {
	for _, e := range []EntityID{DomainEntity(), ImplementationEntity(), UDFEntity(IdentUDFLVInfo), {Flags: 2, Identifier: IdentNSR02, Suffix: UDFSuffix{}}} {
		b := make([]byte, entityIDSize)
		require.NoError(t, putEntityID(b, 0, e))
		assert.Equal(t, e, getEntityID(b, 0))
	}
	b := make([]byte, entityIDSize)
	assert.ErrorIs(t, putEntityID(b, 0, EntityID{Identifier: strings.Repeat("x", 24)}), ErrBadLength)
}

func TestCharSpecRoundTrip(t *testing.T) {
	b := make([]byte, charSpecSize)
	require.NoError(t, putCharSpec(b, 0, OSTACharSpec()))
	assert.Equal(t, OSTACharSpec(), getCharSpec(b, 0))
	assert.Error(t, putCharSpec(b, 0, CharSpec{Info: strings.Repeat("i", 64)}))
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultLabel},
		{"   ", DefaultLabel},
		{"Backup 2024", "Backup 2024"},
		{"Crème brûlée", "Creme brulee"},
		{"tab\there", "tab_here"},
		{"日本", "__"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.in), tt.in)
	}
	assert.Len(t, NormalizeLabel(strings.Repeat("L", 300)), maxLabelChars)
}
