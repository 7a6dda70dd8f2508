package udfvol

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

var stamp = time.Date(2023, 11, 2, 8, 15, 0, 0, time.UTC)

var sourceFiles = map[string][]byte{
	"/src/a.txt":          []byte("alpha"),
	"/src/docs/b.txt":     bytes.Repeat([]byte("b"), 300),
	"/src/docs/sub/c.bin": bytes.Repeat([]byte{0xc5, 0x01, 0x7e}, 4000),
}

func sourceFs(t *testing.T) afero.Fs {
	t.Helper()
	afs := afero.NewMemMapFs()
	for p, data := range sourceFiles {
		require.NoError(t, afero.WriteFile(afs, p, data, 0o644))
	}
	for _, p := range []string{"/src", "/src/docs", "/src/docs/sub", "/src/a.txt", "/src/docs/b.txt", "/src/docs/sub/c.bin"} {
		require.NoError(t, afs.Chtimes(p, stamp, stamp))
	}
	return afs
}

func testSettings() Settings {
	s := DefaultSettings()
	s.BlockSize = 512
	s.Label = "Test Volume"
	s.TimestampRetries = 2
	s.TimestampBackoff = 0
	return s
}

func build(t *testing.T, key []byte) (string, BuildResult) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.udf")
	res, err := Build(context.Background(), BuildOptions{
		Source:        "/src",
		Output:        out,
		Key:           key,
		Settings:      testSettings(),
		RecordingTime: stamp,
		SourceFs:      sourceFs(t),
	})
	require.NoError(t, err)
	return out, res
}

type chtimesFailFs struct {
	afero.Fs
	calls int
}

func (f *chtimesFailFs) Chtimes(string, time.Time, time.Time) error {
	f.calls++
	return errors.New("read-only timestamps")
}

func TestBuildAndExtract(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.udf")
	var stages []Stage
	var written []string
	res, err := Build(context.Background(), BuildOptions{
		Source:        "/src",
		Output:        out,
		Settings:      testSettings(),
		RecordingTime: stamp,
		SourceFs:      sourceFs(t),
		OnProgress: func(e ProgressEvent) {
			if e.Stage == StageWriting {
				written = append(written, e.Path)
				return
			}
			stages = append(stages, e.Stage)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageStarting, StageRegistered, StageResolved, StageDone}, stages)
	assert.Equal(t, []string{"/docs/sub/c.bin", "/docs/b.txt", "/a.txt"}, written)
	assert.Equal(t, "Test Volume", res.Label)
	assert.Equal(t, 512, res.BlockSize)
	assert.Equal(t, uint32(3), res.Files)

	st, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(res.Blocks)*512, st.Size())

	dest := afero.NewMemMapFs()
	var extractStages []Stage
	got, err := Extract(context.Background(), ExtractOptions{
		Image:       out,
		Destination: "/restore",
		Settings:    testSettings(),
		DestFs:      dest,
		OnProgress: func(e ProgressEvent) {
			if e.Stage != StageExtracting {
				extractStages = append(extractStages, e.Stage)
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageStarting, StageMounted, StageDone}, extractStages)
	assert.Equal(t, "Test Volume", got.Label)
	assert.Equal(t, res.Files, got.Files)
	assert.Equal(t, res.Directories, got.Directories)

	var total int64
	for p, want := range sourceFiles {
		target := filepath.Join("/restore", p[len("/src"):])
		data, err := afero.ReadFile(dest, target)
		require.NoError(t, err, target)
		assert.Equal(t, want, data, target)
		info, err := dest.Stat(target)
		require.NoError(t, err)
		assert.True(t, stamp.Equal(info.ModTime()), target)
		total += int64(len(want))
	}
	assert.Equal(t, total, got.Bytes)

	info, err := dest.Stat("/restore/docs/sub")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, stamp.Equal(info.ModTime()))
}

func TestBuildEncrypted(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	out, res := build(t, key)

	_, err := Inspect(out, nil, testSettings())
	assert.ErrorIs(t, err, udf.ErrFormat)

	info, err := Inspect(out, key, testSettings())
	require.NoError(t, err)
	assert.Equal(t, "Test Volume", info.Label)
	assert.Equal(t, 512, info.BlockSize)
	assert.Equal(t, int64(res.Blocks), info.Blocks)
	assert.Equal(t, uint32(3), info.Files)
	assert.True(t, stamp.Equal(info.Recorded))
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()
	_, err := Build(ctx, BuildOptions{Output: "x.udf"})
	assert.ErrorContains(t, err, "source is required")
	_, err = Build(ctx, BuildOptions{Source: "/src"})
	assert.ErrorContains(t, err, "output is required")

	bad := testSettings()
	bad.BlockSize = 1000
	_, err = Build(ctx, BuildOptions{Source: "/src", Output: "x.udf", Settings: bad, SourceFs: sourceFs(t)})
	assert.Error(t, err)

	_, err = Build(ctx, BuildOptions{
		Source:   "/missing",
		Output:   filepath.Join(t.TempDir(), "x.udf"),
		SourceFs: sourceFs(t),
	})
	assert.Error(t, err)
}

func TestBuildCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "out.udf")
	_, err := Build(ctx, BuildOptions{Source: "/src", Output: out, SourceFs: sourceFs(t)})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(out)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestBuildCanceledWhileWriting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := filepath.Join(t.TempDir(), "out.udf")
	_, err := Build(ctx, BuildOptions{
		Source:   "/src",
		Output:   out,
		Settings: testSettings(),
		SourceFs: sourceFs(t),
		OnProgress: func(e ProgressEvent) {
			if e.Stage == StageWriting {
				cancel()
			}
		},
	})
	assert.ErrorIs(t, err, udf.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(out)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestExtractTimestampFailures(t *testing.T) {
	out, _ := build(t, nil)

	failing := &chtimesFailFs{Fs: afero.NewMemMapFs()}
	_, err := Extract(context.Background(), ExtractOptions{
		Image:       out,
		Destination: "/restore",
		Settings:    testSettings(),
		DestFs:      failing,
	})
	require.NoError(t, err)
	data, err := afero.ReadFile(failing, "/restore/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), data)

	strict := testSettings()
	strict.IgnoreTimestampErrors = false
	failing = &chtimesFailFs{Fs: afero.NewMemMapFs()}
	_, err = Extract(context.Background(), ExtractOptions{
		Image:       out,
		Destination: "/restore",
		Settings:    strict,
		DestFs:      failing,
	})
	var ioErr *udf.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "chtimes", ioErr.Op)
	assert.ErrorContains(t, err, "read-only timestamps")
	assert.Equal(t, 2, failing.calls)
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract(context.Background(), ExtractOptions{Destination: "/x"})
	assert.ErrorContains(t, err, "image is required")

	garbage := filepath.Join(t.TempDir(), "garbage.img")
	require.NoError(t, os.WriteFile(garbage, bytes.Repeat([]byte{0xff}, 512*300), 0o644))
	_, err = Extract(context.Background(), ExtractOptions{
		Image:       garbage,
		Destination: "/x",
		DestFs:      afero.NewMemMapFs(),
	})
	assert.ErrorIs(t, err, udf.ErrFormat)
}

func TestList(t *testing.T) {
	out, _ := build(t, nil)

	entries, err := List(out, nil, testSettings(), "/", false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Path: "/docs", Name: "docs", Directory: true, ModTime: entries[0].ModTime}, entries[0])
	assert.Equal(t, "/a.txt", entries[1].Path)
	assert.Equal(t, int64(5), entries[1].Size)
	assert.True(t, entries[1].Embedded)

	entries, err = List(out, nil, testSettings(), "/docs", true)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/docs/sub", "/docs/sub/c.bin", "/docs/b.txt"}, paths)

	_, err = List(out, nil, testSettings(), "/nope", false)
	assert.ErrorIs(t, err, udf.ErrNotFound)
}

func TestBuildFromImage(t *testing.T) {
	key := bytes.Repeat([]byte{0x17}, 64)
	src, _ := build(t, key)
	out := filepath.Join(t.TempDir(), "copy.udf")
	settings := testSettings()
	settings.BlockSize = 2048
	settings.Label = "Copy"

	_, err := Build(context.Background(), BuildOptions{Source: src, Output: out, Settings: settings})
	assert.ErrorIs(t, err, udf.ErrFormat)
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))

	res, err := Build(context.Background(), BuildOptions{
		Source:        src,
		SourceKey:     key,
		Output:        out,
		Settings:      settings,
		RecordingTime: stamp,
	})
	require.NoError(t, err)
	assert.Equal(t, "Copy", res.Label)
	assert.Equal(t, 2048, res.BlockSize)
	assert.Equal(t, uint32(3), res.Files)

	entries, err := List(out, nil, settings, "/", true)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
		if !e.Directory {
			assert.True(t, stamp.Equal(e.ModTime), e.Path)
		}
	}
	assert.Equal(t, []string{"/docs", "/docs/sub", "/docs/sub/c.bin", "/docs/b.txt", "/a.txt"}, paths)

	dest := afero.NewMemMapFs()
	_, err = Extract(context.Background(), ExtractOptions{
		Image:       out,
		Destination: "/restore",
		Settings:    settings,
		DestFs:      dest,
	})
	require.NoError(t, err)
	for p, want := range sourceFiles {
		data, err := afero.ReadFile(dest, filepath.Join("/restore", p[len("/src"):]))
		require.NoError(t, err, p)
		assert.Equal(t, want, data, p)
	}
}
