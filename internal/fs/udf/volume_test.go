package udf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
)

var testTime = time.Date(2024, time.May, 17, 10, 30, 0, 0, time.UTC)

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func newTestWriter(t testing.TB, cfg Config) *Writer {
	t.Helper()
	if cfg.RecordingTime.IsZero() {
		cfg.RecordingTime = testTime
	}
	if cfg.VolumeSetID == "" {
		cfg.VolumeSetID = "0123456789abcdef"
	}
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	return w
}

// makeVolume resolves w and writes it to a fresh device of exactly the
// resolved size.
func makeVolume(t testing.TB, w *Writer) *blockdev.Memory {
	t.Helper()
	blocks, err := w.Resolve()
	require.NoError(t, err)
	dev, err := blockdev.NewMemory(w.BlockSize(), int64(blocks))
	require.NoError(t, err)
	require.NoError(t, w.Make(dev, nil))
	return dev
}

func mount(t testing.TB, dev blockdev.Device) *Reader {
	t.Helper()
	r, err := Mount(dev, MountOptions{})
	require.NoError(t, err)
	return r
}

func readAll(t testing.TB, f *File) []byte {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func sampleTree(t testing.TB, w *Writer) map[string][]byte {
	t.Helper()
	files := map[string][]byte{
		"/empty.txt":              {},
		"/docs/small.txt":         pattern(50, 1),
		"/docs/reports/large.bin": pattern(5000, 3),
	}
	require.NoError(t, w.AddDirectory("/docs/reports", testTime))
	for _, p := range []string{"/empty.txt", "/docs/small.txt", "/docs/reports/large.bin"} {
		require.NoError(t, w.AddFile(p, BytesSource(files[p]), testTime.Add(time.Hour)))
	}
	return files
}

func TestVolumeRoundTrip(t *testing.T) {
	w := newTestWriter(t, Config{Label: "Round Trip"})
	files := sampleTree(t, w)
	dev := makeVolume(t, w)

	r := mount(t, dev)
	assert.Equal(t, "Round Trip", r.GetVolumeLabel())
	info := r.Info()
	assert.Equal(t, 512, info.BlockSize)
	assert.Equal(t, uint32(3), info.Files)
	assert.Equal(t, uint32(3), info.Directories)
	assert.Equal(t, uint32(partitionStartLoc), info.PartitionStart)
	assert.True(t, testTime.Equal(info.Recorded))

	for p, want := range files {
		f, err := r.FindFile(p)
		require.NoError(t, err, p)
		assert.Equal(t, int64(len(want)), f.Size(), p)
		assert.True(t, testTime.Add(time.Hour).Equal(f.ModTime()), p)
		assert.Equal(t, len(want) <= 512-fileEntrySize, f.Embedded(), p)
		assert.Equal(t, want, append([]byte{}, readAll(t, f)...), p)
	}

	var dirs, paths []string
	require.NoError(t, r.Root().Walk(func(d *Directory, f *File) bool {
		if d != nil {
			dirs = append(dirs, d.Path())
		} else {
			paths = append(paths, f.Path())
		}
		return true
	}))
	assert.Equal(t, []string{"/", "/docs", "/docs/reports"}, dirs)
	assert.Equal(t, []string{"/docs/reports/large.bin", "/docs/small.txt", "/empty.txt"}, paths)

	reports, err := r.ReadDirectory("/docs/reports")
	require.NoError(t, err)
	assert.True(t, testTime.Equal(reports.ModTime()))
	got, err := reports.GetFiles()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "large.bin", got[0].Name)
}

func TestVolumeLayoutOrder(t *testing.T) {
	w := newTestWriter(t, Config{})
	sampleTree(t, w)
	_, err := w.Resolve()
	require.NoError(t, err)
	l, err := w.Layout()
	require.NoError(t, err)

	// Depth first: each directory entry is followed by its stream, then
	// its subdirectories, then its files with their data.
	assert.Equal(t, map[string]uint32{
		"/":                       1,
		"/docs":                   3,
		"/docs/reports":           5,
		"/docs/reports/large.bin": 7,
		"/docs/small.txt":         18,
		"/empty.txt":              19,
	}, l.Positions)
	assert.Equal(t, uint32(20), l.UsedBlocks)
	assert.Equal(t, uint32(1), l.BitmapBlocks)
	assert.Equal(t, l.UsedBlocks, l.BitmapLocation)
	assert.Equal(t, uint32(21), l.PartitionLength)
	assert.Equal(t, uint32(partitionStartLoc+21), l.ReserveSequence)
	assert.Equal(t, uint32(partitionStartLoc+21+SequenceBlocks+1), l.Blocks)
	assert.Equal(t, uint64(firstUniqueID+5), l.NextUniqueID)
}

func TestResolveIsDeterministic(t *testing.T) {
	w := newTestWriter(t, Config{FreeBlocks: 10})
	sampleTree(t, w)
	first, err := w.Resolve()
	require.NoError(t, err)
	l1, err := w.Layout()
	require.NoError(t, err)
	second, err := w.Resolve()
	require.NoError(t, err)
	l2, err := w.Layout()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, l1, l2)

	a := makeVolume(t, w)
	b := makeVolume(t, w)
	assert.True(t, bytes.Equal(a.Bytes(), b.Bytes()))
}

func TestRegistrationInvalidatesResolve(t *testing.T) {
	w := newTestWriter(t, Config{})
	_, err := w.Resolve()
	require.NoError(t, err)
	require.NoError(t, w.AddDirectory("/late", testTime))
	dev, err := blockdev.NewGrowingMemory(512)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Make(dev, nil), ErrNotResolved)
}

func TestEmptyVolume(t *testing.T) {
	w := newTestWriter(t, Config{})
	dev := makeVolume(t, w)
	r := mount(t, dev)
	files, err := r.Root().GetFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, uint32(1), r.Info().Directories)
	assert.Equal(t, DefaultLabel, r.GetVolumeLabel())
}

func TestDirectoryStreamStraddlesBlocks(t *testing.T) {
	w := newTestWriter(t, Config{})
	want := map[string][]byte{}
	for i := range 40 {
		p := fmt.Sprintf("/many/file-with-a-longer-name-%02d.dat", i)
		want[p] = pattern(i*13, byte(i))
		require.NoError(t, w.AddFile(p, BytesSource(want[p]), testTime))
	}
	dev := makeVolume(t, w)
	r := mount(t, dev)

	d, err := r.ReadDirectory("/many")
	require.NoError(t, err)
	assert.Greater(t, d.Entry().InformationLength, uint64(2*512))
	files, err := d.GetFiles()
	require.NoError(t, err)
	require.Len(t, files, 40)
	for i, f := range files {
		assert.Equal(t, fmt.Sprintf("file-with-a-longer-name-%02d.dat", i), f.Name)
		assert.Equal(t, want[f.Path()], readAll(t, f))
	}
}

func TestFreeBlocks(t *testing.T) {
	for _, free := range []uint32{0, 1, 100, 5000} {
		t.Run(fmt.Sprint(free), func(t *testing.T) {
			w := newTestWriter(t, Config{FreeBlocks: free})
			sampleTree(t, w)
			dev := makeVolume(t, w)
			r := mount(t, dev)
			assert.Equal(t, int64(free), r.FreeBlocks())
			assert.Equal(t, free, r.Info().FreeBlocks)
		})
	}
}

func TestLargerBlockSizes(t *testing.T) {
	for _, bs := range []int{1024, 2048, 4096} {
		t.Run(fmt.Sprint(bs), func(t *testing.T) {
			w := newTestWriter(t, Config{BlockSize: bs, FreeBlocks: 3})
			files := sampleTree(t, w)
			dev := makeVolume(t, w)

			got, err := DetectBlockSize(bytes.NewReader(dev.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, bs, got)

			r := mount(t, dev)
			f, err := r.FindFile("/docs/reports/large.bin")
			require.NoError(t, err)
			assert.Equal(t, files["/docs/reports/large.bin"], readAll(t, f))
			assert.Equal(t, int64(3), r.FreeBlocks())
		})
	}
}

func TestDetectBlockSizeRejectsGarbage(t *testing.T) {
	_, err := DetectBlockSize(bytes.NewReader(make([]byte, 300*512)))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestFindFileIsCaseInsensitiveFallback(t *testing.T) {
	w := newTestWriter(t, Config{})
	require.NoError(t, w.AddFile("/Docs/ReadMe.txt", BytesSource("hi"), testTime))
	r := mount(t, makeVolume(t, w))
	f, err := r.FindFile("docs/readme.TXT")
	require.NoError(t, err)
	assert.Equal(t, "/Docs/ReadMe.txt", f.Path())

	_, err = r.FindFile("/Docs/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ReadDirectory("/Docs/ReadMe.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMountFallsBackToReserveSequence(t *testing.T) {
	w := newTestWriter(t, Config{Label: "reserve"})
	sampleTree(t, w)
	dev := makeVolume(t, w)
	zero := make([]byte, 512)
	require.NoError(t, dev.WriteBlock(mainVDSBlock, zero))

	r := mount(t, dev)
	assert.Equal(t, "reserve", r.GetVolumeLabel())
}

func TestMountFallsBackToLastAnchor(t *testing.T) {
	w := newTestWriter(t, Config{})
	dev := makeVolume(t, w)
	require.NoError(t, dev.WriteBlock(AnchorBlock, make([]byte, 512)))
	mount(t, dev)
}

func TestMountRejectsMissingRecognition(t *testing.T) {
	w := newTestWriter(t, Config{})
	dev := makeVolume(t, w)
	require.NoError(t, dev.WriteBlock(ReservedBytes/512+4, make([]byte, 512)))
	_, err := Mount(dev, MountOptions{})
	assert.ErrorIs(t, err, ErrFormat)
}

func setIntegrity(t testing.TB, dev *blockdev.Memory, typ uint32) {
	t.Helper()
	b := make([]byte, 512)
	require.NoError(t, dev.ReadBlock(integrityBlock, b))
	d, err := Parse(b, 0, ParseOptions{})
	require.NoError(t, err)
	lvid := d.(*LogicalVolumeIntegrityDescriptor)
	lvid.IntegrityType = typ
	out := make([]byte, 512)
	_, err = lvid.Write(out, 0)
	require.NoError(t, err)
	require.NoError(t, dev.WriteBlock(integrityBlock, out))
}

func TestMountOpenIntegrity(t *testing.T) {
	w := newTestWriter(t, Config{})
	sampleTree(t, w)
	dev := makeVolume(t, w)
	setIntegrity(t, dev, IntegrityOpen)

	_, err := Mount(dev, MountOptions{Compliance: Strict})
	assert.ErrorIs(t, err, ErrFormat)
	r, err := Mount(dev, MountOptions{Compliance: Lenient})
	require.NoError(t, err)
	_, err = r.FindFile("/docs/small.txt")
	assert.NoError(t, err)
}

func TestMountRejectsWrongBlockSize(t *testing.T) {
	w := newTestWriter(t, Config{BlockSize: 2048})
	dev := makeVolume(t, w)
	small, err := blockdev.NewMemory(512, dev.Size()*4)
	require.NoError(t, err)
	copy(small.Bytes(), dev.Bytes())
	_, err = Mount(small, MountOptions{})
	assert.Error(t, err)
}

func TestMakeChecksDevice(t *testing.T) {
	w := newTestWriter(t, Config{})
	dev, err := blockdev.NewGrowingMemory(512)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Make(dev, nil), ErrNotResolved)

	blocks, err := w.Resolve()
	require.NoError(t, err)
	wide, err := blockdev.NewMemory(2048, int64(blocks))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Make(wide, nil), blockdev.ErrBlockSize)

	short, err := blockdev.NewMemory(512, int64(blocks)-1)
	require.NoError(t, err)
	err = w.Make(short, nil)
	assert.ErrorIs(t, err, blockdev.ErrOutOfRange)
	var ioe *IOError
	assert.True(t, errors.As(err, &ioe))
}

func TestRegistrationErrors(t *testing.T) {
	w := newTestWriter(t, Config{MaxPathLength: 40})
	require.NoError(t, w.AddFile("/a/b.txt", BytesSource("x"), testTime))
	assert.ErrorIs(t, w.AddFile("/a/b.txt", BytesSource("y"), testTime), ErrExists)
	assert.ErrorIs(t, w.AddDirectory("/a/b.txt", testTime), ErrExists)
	assert.ErrorIs(t, w.AddFile("/a/b.txt/c", BytesSource("y"), testTime), ErrExists)
	assert.ErrorIs(t, w.AddFile("/", BytesSource("y"), testTime), ErrExists)
	assert.Error(t, w.AddFile("/nil", nil, testTime))

	err := w.AddFile("/"+strings.Repeat("p", 40), BytesSource("x"), testTime)
	assert.ErrorIs(t, err, ErrPathTooLong)
	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, int64(40), le.Max)

	w = newTestWriter(t, Config{})
	assert.ErrorIs(t, w.AddFile("/"+strings.Repeat("n", 255), BytesSource("x"), testTime), ErrNameTooLong)
	assert.NoError(t, w.AddFile("/"+strings.Repeat("n", 254), BytesSource("x"), testTime))
	assert.ErrorIs(t, w.AddDirectory("/"+strings.Repeat("日", 128), testTime), ErrNameTooLong)
}

func TestBackslashPathsAreNormalized(t *testing.T) {
	w := newTestWriter(t, Config{})
	require.NoError(t, w.AddFile(`dir\sub\file.txt`, BytesSource("x"), testTime))
	_, err := w.Resolve()
	require.NoError(t, err)
	l, err := w.Layout()
	require.NoError(t, err)
	assert.Contains(t, l.Positions, "/dir/sub/file.txt")
}

func TestDirectoryTooLarge(t *testing.T) {
	w := newTestWriter(t, Config{MaxDirectoryBlocks: 1})
	for i := range 10 {
		require.NoError(t, w.AddFile(fmt.Sprintf("/file%02d.txt", i), BytesSource("x"), testTime))
	}
	_, err := w.Resolve()
	assert.ErrorIs(t, err, ErrDirectoryTooLarge)
	assert.ErrorIs(t, err, ErrLimit)
	_, err = w.Layout()
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestTooManyBlocks(t *testing.T) {
	w := newTestWriter(t, Config{FreeBlocks: MaxBlocks - 100})
	_, err := w.Resolve()
	assert.ErrorIs(t, err, ErrTooManyBlocks)
}

type sizedSource struct {
	sizes []int64
	data  []byte
	calls int
}

func (s *sizedSource) Size() (int64, error) {
	n := s.sizes[min(s.calls, len(s.sizes)-1)]
	s.calls++
	return n, nil
}

func (s *sizedSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func TestSourceChanged(t *testing.T) {
	tests := []struct {
		name string
		src  *sizedSource
	}{
		{"size grew", &sizedSource{sizes: []int64{5000, 5001}, data: pattern(5001, 0)}},
		{"data shrank", &sizedSource{sizes: []int64{5000}, data: pattern(4000, 0)}},
		{"data grew", &sizedSource{sizes: []int64{5000}, data: pattern(6000, 0)}},
		{"embedded data grew", &sizedSource{sizes: []int64{20}, data: pattern(21, 0)}},
		{"embedded data shrank", &sizedSource{sizes: []int64{20}, data: pattern(19, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWriter(t, Config{})
			require.NoError(t, w.AddFile("/f.bin", tt.src, testTime))
			blocks, err := w.Resolve()
			require.NoError(t, err)
			dev, err := blockdev.NewMemory(512, int64(blocks))
			require.NoError(t, err)
			err = w.Make(dev, nil)
			assert.ErrorIs(t, err, ErrSourceChanged)
			assert.Contains(t, err.Error(), "/f.bin")
		})
	}
}

type failingSource struct{ err error }

func (s failingSource) Size() (int64, error)         { return 0, s.err }
func (s failingSource) Open() (io.ReadCloser, error) { return nil, s.err }

func TestSourceErrorsCarryPath(t *testing.T) {
	boom := errors.New("boom")
	w := newTestWriter(t, Config{})
	require.NoError(t, w.AddFile("/bad.bin", failingSource{boom}, testTime))
	_, err := w.Resolve()
	assert.ErrorIs(t, err, boom)
	var ioe *IOError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, "/bad.bin", ioe.Path)
}

type recordingListener struct {
	BaseListener
	events  []string
	abortAt string
	done    bool
}

func (l *recordingListener) Mounted(info VolumeInfo) Action {
	l.events = append(l.events, "mounted "+info.Label)
	return l.answer("mounted")
}

func (l *recordingListener) Directory(p string, _ time.Time) Action {
	l.events = append(l.events, "dir "+p)
	return l.answer(p)
}

func (l *recordingListener) File(p string, size int64, _ time.Time) Action {
	l.events = append(l.events, fmt.Sprintf("file %s %d", p, size))
	return l.answer(p)
}

func (l *recordingListener) Progress(p string, done, total int64) Action {
	if done > total {
		l.events = append(l.events, "overrun "+p)
	}
	return Continue
}

func (l *recordingListener) Done() { l.done = true }

func (l *recordingListener) answer(p string) Action {
	if p == l.abortAt {
		return Abort
	}
	return Continue
}

func TestMakeReportsProgress(t *testing.T) {
	w := newTestWriter(t, Config{})
	sampleTree(t, w)
	blocks, err := w.Resolve()
	require.NoError(t, err)
	dev, err := blockdev.NewMemory(512, int64(blocks))
	require.NoError(t, err)
	l := &recordingListener{}
	require.NoError(t, w.Make(dev, l))
	assert.True(t, l.done)
	assert.Equal(t, []string{
		"dir /",
		"dir /docs",
		"dir /docs/reports",
		"file /docs/reports/large.bin 5000",
		"file /docs/small.txt 50",
		"file /empty.txt 0",
	}, l.events)
}

func TestMakeAbort(t *testing.T) {
	w := newTestWriter(t, Config{})
	sampleTree(t, w)
	blocks, err := w.Resolve()
	require.NoError(t, err)
	dev, err := blockdev.NewMemory(512, int64(blocks))
	require.NoError(t, err)
	l := &recordingListener{abortAt: "/docs/small.txt"}
	assert.ErrorIs(t, w.Make(dev, l), ErrAborted)
	assert.False(t, l.done)
}

type memorySink struct {
	dirs     []string
	files    map[string]*bytes.Buffer
	modTimes map[string]time.Time
}

func newMemorySink() *memorySink {
	return &memorySink{files: map[string]*bytes.Buffer{}, modTimes: map[string]time.Time{}}
}

func (s *memorySink) MakeDirectory(p string) error {
	s.dirs = append(s.dirs, p)
	return nil
}

func (s *memorySink) CreateFile(p string, size int64) (io.WriteCloser, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	s.files[p] = buf
	return nopWriteCloser{buf}, nil
}

func (s *memorySink) SetModTime(p string, t time.Time) error {
	s.modTimes[p] = t
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestExtract(t *testing.T) {
	w := newTestWriter(t, Config{Label: "extract"})
	files := sampleTree(t, w)
	r := mount(t, makeVolume(t, w))

	sink := newMemorySink()
	l := &recordingListener{}
	require.NoError(t, r.Extract(sink, l))
	assert.True(t, l.done)
	assert.Equal(t, "mounted extract", l.events[0])
	assert.NotContains(t, l.events, "overrun /docs/reports/large.bin")
	assert.Equal(t, []string{"/", "/docs", "/docs/reports"}, sink.dirs)
	require.Len(t, sink.files, len(files))
	for p, want := range files {
		assert.Equal(t, want, append([]byte{}, sink.files[p].Bytes()...), p)
		assert.True(t, testTime.Add(time.Hour).Equal(sink.modTimes[p]), p)
	}
	assert.True(t, testTime.Equal(sink.modTimes["/docs"]))
}

type skippingListener struct {
	BaseListener
	skip string
}

func (l skippingListener) Directory(p string, _ time.Time) Action {
	if p == l.skip {
		return Skip
	}
	return Continue
}

func (l skippingListener) File(p string, _ int64, _ time.Time) Action {
	if p == l.skip {
		return Skip
	}
	return Continue
}

func TestExtractSkipAndAbort(t *testing.T) {
	w := newTestWriter(t, Config{})
	sampleTree(t, w)
	r := mount(t, makeVolume(t, w))

	sink := newMemorySink()
	require.NoError(t, r.Extract(sink, skippingListener{skip: "/docs/reports"}))
	var got []string
	for p := range sink.files {
		got = append(got, p)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"/docs/small.txt", "/empty.txt"}, got)

	sink = newMemorySink()
	require.NoError(t, r.Extract(sink, skippingListener{skip: "/empty.txt"}))
	assert.NotContains(t, sink.files, "/empty.txt")
	assert.Contains(t, sink.files, "/docs/reports/large.bin")

	err := r.Extract(newMemorySink(), &recordingListener{abortAt: "/docs/reports/large.bin"})
	assert.ErrorIs(t, err, ErrAborted)
	err = r.Extract(newMemorySink(), &recordingListener{abortAt: "mounted"})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestVolumeDescriptors(t *testing.T) {
	w := newTestWriter(t, Config{Label: "descs"})
	r := mount(t, makeVolume(t, w))
	var ids []TagIdentifier
	for _, d := range r.VolumeDescriptors() {
		ids = append(ids, d.Header().Identifier)
	}
	assert.Equal(t, []TagIdentifier{
		TagPrimaryVolume, TagLogicalVolume, TagPartition,
		TagImplementationVolume, TagLogicalVolumeInteg, TagFileSet,
	}, ids)
	assert.Contains(t, r.String(), `"descs"`)
}

// rewriteEntry applies fn to the file entry of p and reseals it in place.
func rewriteEntry(t testing.TB, w *Writer, dev *blockdev.Memory, p string, fn func(*FileEntry)) {
	t.Helper()
	layout, err := w.Layout()
	require.NoError(t, err)
	pos, ok := layout.Positions[p]
	require.True(t, ok, p)
	block := int64(layout.PartitionStart + pos)
	b := make([]byte, w.BlockSize())
	require.NoError(t, dev.ReadBlock(block, b))
	d, err := Parse(b, 0, ParseOptions{})
	require.NoError(t, err)
	fe := d.(*FileEntry)
	fn(fe)
	out := make([]byte, w.BlockSize())
	_, err = fe.Write(out, 0)
	require.NoError(t, err)
	require.NoError(t, dev.WriteBlock(block, out))
}

// renameMember rewrites the identifier of member from in the stream of dir
// without changing its encoded length.
func renameMember(t testing.TB, w *Writer, dev *blockdev.Memory, dir, from, to string) {
	t.Helper()
	require.Equal(t, len(EncodeString(from)), len(EncodeString(to)))
	layout, err := w.Layout()
	require.NoError(t, err)
	var stream uint32
	rewriteEntry(t, w, dev, dir, func(fe *FileEntry) {
		ads, err := fe.ShortADs()
		require.NoError(t, err)
		require.NotEmpty(t, ads)
		stream = ads[0].Position
	})
	block := int64(layout.PartitionStart + stream)
	b := make([]byte, w.BlockSize())
	require.NoError(t, dev.ReadBlock(block, b))
	for off := 0; off < len(b); {
		d, err := Parse(b, off, ParseOptions{})
		require.NoError(t, err)
		fid := d.(*FileIdentifierDescriptor)
		name, err := fid.Name()
		require.NoError(t, err)
		if name != from {
			off += fid.Size()
			continue
		}
		fid.FileIdentifier = EncodeString(to)
		out := bytes.Clone(b)
		_, err = fid.Write(out, off)
		require.NoError(t, err)
		require.NoError(t, dev.WriteBlock(block, out))
		return
	}
	t.Fatalf("%s not found in %s", from, dir)
}

func TestOversizedInformationLength(t *testing.T) {
	for _, p := range []string{"/docs/small.txt", "/docs/reports/large.bin", "/docs/reports"} {
		t.Run(p, func(t *testing.T) {
			w := newTestWriter(t, Config{})
			sampleTree(t, w)
			dev := makeVolume(t, w)
			rewriteEntry(t, w, dev, p, func(fe *FileEntry) {
				fe.InformationLength = 1 << 63
			})

			r := mount(t, dev)
			_, err := r.FindFile(p)
			assert.ErrorIs(t, err, ErrBadLength)
			assert.ErrorIs(t, err, ErrFormat)
			_, err = r.ReadDirectory(path.Dir(p))
			assert.ErrorIs(t, err, ErrFormat)
			// siblings outside the damaged directory stay readable
			f, err := r.FindFile("/empty.txt")
			require.NoError(t, err)
			assert.Empty(t, readAll(t, f))
		})
	}
}

func TestDirectoryStreamLimits(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
		typ    uint8
		want   error
	}{
		{name: "beyond partition", length: MaxLength(512), typ: ExtentNotAllocated, want: ErrBadLength},
		{name: "unrecorded", length: 512, typ: ExtentNotAllocated, want: ErrFormat},
		{name: "allocated only", length: 512, typ: ExtentAllocated, want: ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWriter(t, Config{})
			sampleTree(t, w)
			dev := makeVolume(t, w)
			rewriteEntry(t, w, dev, "/docs/reports", func(fe *FileEntry) {
				ads, err := EncodeShortADs([]ShortAD{{Length: tt.length, Type: tt.typ}})
				require.NoError(t, err)
				fe.AllocationDescriptors = ads
				fe.InformationLength = uint64(tt.length)
			})

			r := mount(t, dev)
			_, err := r.ReadDirectory("/docs/reports")
			assert.ErrorIs(t, err, tt.want)
			_, err = r.FindFile("/docs/small.txt")
			assert.NoError(t, err)
		})
	}
}

func TestInvalidMemberNames(t *testing.T) {
	tests := []struct {
		from, to string
	}{
		{"a", "."},
		{"ab", ".."},
		{"abc", "a/b"},
		{"abc", "a\x00b"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.to), func(t *testing.T) {
			w := newTestWriter(t, Config{})
			require.NoError(t, w.AddFile("/docs/"+tt.from, BytesSource([]byte("hidden")), testTime))
			require.NoError(t, w.AddFile("/docs/keep.txt", BytesSource([]byte("kept")), testTime))
			dev := makeVolume(t, w)
			renameMember(t, w, dev, "/docs", tt.from, tt.to)

			_, err := mount(t, dev).ReadDirectory("/docs")
			assert.ErrorIs(t, err, ErrFormat)

			r, err := Mount(dev, MountOptions{Compliance: Lenient})
			require.NoError(t, err)
			d, err := r.ReadDirectory("/docs")
			require.NoError(t, err)
			files, err := d.GetFiles()
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Equal(t, "/docs/keep.txt", files[0].Path())
			assert.Equal(t, []byte("kept"), readAll(t, files[0]))
		})
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"a", "...", "a.b", ".hidden", "naïve", "x y"} {
		assert.True(t, validName(name), name)
	}
	for _, name := range []string{"", ".", "..", "a/b", "/", "a\x00"} {
		assert.False(t, validName(name), name)
	}
}

func FuzzMount(f *testing.F) {
	w := newTestWriter(f, Config{})
	sampleTree(f, w)
	f.Add(makeVolume(f, w).Bytes())
	f.Fuzz(func(t *testing.T, b []byte) {
		if len(b) == 0 || len(b)%512 != 0 {
			return
		}
		for _, c := range []Compliance{Strict, Lenient} {
			dev, err := blockdev.NewMemory(512, int64(len(b)/512))
			require.NoError(t, err)
			copy(dev.Bytes(), b)
			r, err := Mount(dev, MountOptions{Compliance: c})
			if err != nil {
				continue
			}
			_ = r.Root().Walk(func(_ *Directory, file *File) bool {
				if file == nil {
					return true
				}
				if rc, err := file.Open(); err == nil {
					_, _ = io.CopyN(io.Discard, rc, 1<<20)
					rc.Close()
				}
				return true
			})
		}
	})
}
