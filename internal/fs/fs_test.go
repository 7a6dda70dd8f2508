package fs

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

var stamp = time.Date(2023, time.November, 3, 8, 15, 42, 0, time.UTC)

// hostTree lays out a small source tree in memory.
func hostTree(t *testing.T) (afero.Fs, map[string][]byte) {
	t.Helper()
	afs := afero.NewMemMapFs()
	files := map[string][]byte{
		"/src/readme.txt":         []byte("hello volume"),
		"/src/docs/manual.pdf":    bytes.Repeat([]byte("pdf!"), 700),
		"/src/docs/img/logo.png":  {0x89, 'P', 'N', 'G'},
		"/src/docs/img/empty.gif": {},
	}
	for p, data := range files {
		require.NoError(t, afs.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(afs, p, data, 0o644))
		require.NoError(t, afs.Chtimes(p, stamp, stamp))
	}
	for _, d := range []string{"/src/docs/img", "/src/docs", "/src"} {
		require.NoError(t, afs.Chtimes(d, stamp, stamp))
	}
	return afs, files
}

func TestDiskFileSystem(t *testing.T) {
	afs, _ := hostTree(t)
	disk := NewDiskFileSystem(afs)
	assert.False(t, disk.IsISO())

	root, err := disk.GetDirectoryInfo("/src")
	require.NoError(t, err)
	assert.True(t, root.Exists())
	assert.Equal(t, "src", root.Name())

	files, err := root.GetFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "readme.txt", files[0].Name())
	assert.Equal(t, ".txt", files[0].Extension())
	assert.Equal(t, int64(12), files[0].Length())

	docs, err := root.GetDirectory("docs")
	require.NoError(t, err)
	img, err := docs.GetDirectory("img")
	require.NoError(t, err)
	gifs, err := img.GetFilesPattern("*.gif")
	require.NoError(t, err)
	require.Len(t, gifs, 1)
	assert.Equal(t, "empty.gif", gifs[0].Name())

	all, err := img.GetFiles()
	require.NoError(t, err)
	assert.Equal(t, "empty.gif", all[0].Name())
	assert.Equal(t, "logo.png", all[1].Name())

	_, err = root.GetFile("docs")
	assert.Error(t, err)
	_, err = root.GetDirectory("readme.txt")
	assert.Error(t, err)
	_, err = disk.GetDirectoryInfo("/src/readme.txt")
	assert.Error(t, err)
	_, err = disk.GetFileInfo("/src/docs")
	assert.Error(t, err)

	f, err := disk.GetFileInfo("/src/readme.txt")
	require.NoError(t, err)
	src := SourceOf(f)
	require.NoError(t, afero.WriteFile(afs, "/src/readme.txt", []byte("changed after listing"), 0o644))
	size, err := src.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(21), size)
}

func buildFromHost(t *testing.T, afs afero.Fs, dev blockdev.Device) *udf.Writer {
	t.Helper()
	w, err := udf.NewWriter(udf.Config{BlockSize: dev.BlockSize(), Label: "host", RecordingTime: stamp})
	require.NoError(t, err)
	root, err := NewDiskFileSystem(afs).GetDirectoryInfo("/src")
	require.NoError(t, err)
	require.NoError(t, Register(w, root))
	_, err = w.Resolve()
	require.NoError(t, err)
	return w
}

func TestRegisterAndBrowse(t *testing.T) {
	afs, files := hostTree(t)
	dev, err := blockdev.NewGrowingMemory(512)
	require.NoError(t, err)
	w := buildFromHost(t, afs, dev)
	require.NoError(t, w.Make(dev, nil))

	r, err := udf.Mount(dev, udf.MountOptions{})
	require.NoError(t, err)
	image := NewReaderFileSystem(r)
	assert.True(t, image.IsISO())
	assert.Equal(t, "host", image.GetVolumeLabel())

	for p, want := range files {
		volPath := p[len("/src"):]
		f, err := image.GetFileInfo(volPath)
		require.NoError(t, err, volPath)
		assert.Equal(t, int64(len(want)), f.Length())
		assert.True(t, stamp.Equal(f.ModTime()), volPath)
		rc, err := f.OpenRead()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, got, volPath)
	}

	root, err := image.GetDirectoryInfo("")
	require.NoError(t, err)
	assert.Equal(t, "/", root.FullName())
	assert.True(t, stamp.Equal(root.ModTime()))
	docs, err := root.GetDirectory("DOCS")
	require.NoError(t, err)
	assert.Equal(t, "/docs", docs.FullName())
	img, err := image.GetDirectoryInfo("docs/img/")
	require.NoError(t, err)
	pngs, err := img.GetFilesPattern("*.png")
	require.NoError(t, err)
	require.Len(t, pngs, 1)
	assert.Equal(t, "/docs/img/logo.png", pngs[0].FullName())
	assert.Equal(t, ".png", pngs[0].Extension())

	_, err = img.GetFile("missing.png")
	assert.ErrorIs(t, err, udf.ErrNotFound)
	require.NoError(t, image.Unmount())
	_, err = image.GetDirectoryInfo("/")
	assert.Error(t, err)
}

func writeImage(t *testing.T, key []byte, blockSize int) (string, map[string][]byte) {
	t.Helper()
	afs, files := hostTree(t)
	path := filepath.Join(t.TempDir(), "volume.img")
	probe, err := blockdev.NewGrowingMemory(blockSize)
	require.NoError(t, err)
	w := buildFromHost(t, afs, probe)
	l, err := w.Layout()
	require.NoError(t, err)

	file, err := blockdev.Create(path, blockSize, int64(l.Blocks))
	require.NoError(t, err)
	var dev blockdev.Device = file
	if key != nil {
		dev, err = blockdev.NewXTS(file, key)
		require.NoError(t, err)
	}
	require.NoError(t, w.Make(dev, nil))
	require.NoError(t, file.Close())
	return path, files
}

func TestOpenImage(t *testing.T) {
	for _, bs := range []int{512, 2048} {
		path, files := writeImage(t, nil, bs)
		fsys := NewISOFileSystem(ImageOptions{})
		require.NoError(t, fsys.Mount(path))
		assert.Error(t, fsys.Mount(path))
		assert.Equal(t, bs, fsys.Reader().Info().BlockSize)
		f, err := fsys.GetFileInfo("/docs/manual.pdf")
		require.NoError(t, err)
		assert.Equal(t, int64(len(files["/src/docs/manual.pdf"])), f.Length())
		require.NoError(t, fsys.Unmount())
		assert.Nil(t, fsys.Reader())
	}
}

func TestOpenEncryptedImage(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 64)
	path, files := writeImage(t, key, 512)

	image, err := OpenImage(path, ImageOptions{Key: key})
	require.NoError(t, err)
	f, err := image.Reader.FindFile("/readme.txt")
	require.NoError(t, err)
	rc, err := f.Open()
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, files["/src/readme.txt"], got)
	require.NoError(t, image.Close())

	_, err = OpenImage(path, ImageOptions{})
	assert.ErrorIs(t, err, udf.ErrFormat)
	wrong := bytes.Repeat([]byte{0x17}, 64)
	_, err = OpenImage(path, ImageOptions{Key: wrong})
	assert.ErrorIs(t, err, udf.ErrFormat)
}
