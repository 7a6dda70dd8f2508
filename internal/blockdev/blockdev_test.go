package blockdev

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestValidBlockSize(t *testing.T) {
	for _, n := range []int{512, 1024, 2048, 4096, 32768} {
		assert.NoError(t, ValidBlockSize(n), "size %d", n)
	}
	for _, n := range []int{0, 256, 513, 65536} {
		assert.ErrorIs(t, ValidBlockSize(n), ErrBlockSize, "size %d", n)
	}
}

func TestMemoryReadWrite(t *testing.T) {
	m, err := NewMemory(512, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Size())

	data := pattern(512, 7)
	require.NoError(t, m.WriteBlock(3, data))

	got := make([]byte, 512)
	require.NoError(t, m.ReadBlock(3, got))
	assert.Equal(t, data, got)

	assert.ErrorIs(t, m.WriteBlock(4, data), ErrOutOfRange)
	assert.ErrorIs(t, m.ReadBlock(-1, got), ErrOutOfRange)
	assert.ErrorIs(t, m.ReadBlock(0, got[:100]), ErrShortBuffer)
}

func TestGrowingMemory(t *testing.T) {
	m, err := NewGrowingMemory(1024)
	require.NoError(t, err)
	require.NoError(t, m.WriteBlock(9, pattern(1024, 1)))
	assert.Equal(t, int64(10), m.Size())
	assert.Len(t, m.Bytes(), 10*1024)
}

func TestNullCounts(t *testing.T) {
	n := NewNull(2048)
	require.NoError(t, n.WriteBlock(5, nil))
	n.Skip(6, 10)
	assert.Equal(t, int64(11), n.Writes())
	assert.Equal(t, int64(16), n.HighWater())
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	f, err := Create(path, 512, 8)
	require.NoError(t, err)

	data := pattern(512, 42)
	require.NoError(t, f.WriteBlock(7, data))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.WriteBlock(0, data), ErrDeviceClosed)

	r, err := Open(path, 512)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(8), r.Size())

	got := make([]byte, 512)
	require.NoError(t, r.ReadBlock(7, got))
	assert.Equal(t, data, got)
}

func TestXTSRoundTrip(t *testing.T) {
	inner, err := NewMemory(512, 2)
	require.NoError(t, err)
	key := bytes.Repeat([]byte{0x11, 0x22}, 16)

	x, err := NewXTS(inner, key)
	require.NoError(t, err)

	plain := make([]byte, 512)
	require.NoError(t, x.WriteBlock(0, plain))
	require.NoError(t, x.WriteBlock(1, plain))

	// Same plaintext, different tweak.
	assert.NotEqual(t, inner.Bytes()[:512], inner.Bytes()[512:])
	assert.NotEqual(t, plain, inner.Bytes()[:512])

	got := pattern(512, 9)
	require.NoError(t, x.ReadBlock(1, got))
	assert.Equal(t, plain, got)

	_, err = NewXTS(inner, key[:16])
	assert.Error(t, err)
}
