package fs

import (
	"io"
	"path"

	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

// infoSource serves a file that cannot re-measure itself.
type infoSource struct {
	info FileInfo
}

func (s infoSource) Open() (io.ReadCloser, error) { return s.info.OpenRead() }
func (s infoSource) Size() (int64, error)         { return s.info.Length(), nil }

// SourceOf returns the volume source of a file.
func SourceOf(f FileInfo) udf.Source {
	if src, ok := f.(udf.Source); ok {
		return src
	}
	return infoSource{info: f}
}

// Register adds root and everything below it to w. root becomes the volume
// root; its own modification time stamps the root directory.
func Register(w *udf.Writer, root DirectoryInfo) error {
	return register(w, root, "/")
}

func register(w *udf.Writer, dir DirectoryInfo, volPath string) error {
	if err := w.AddDirectory(volPath, dir.ModTime()); err != nil {
		return err
	}
	dirs, err := dir.GetDirectories()
	if err != nil {
		return err
	}
	for _, sub := range dirs {
		if err := register(w, sub, path.Join(volPath, sub.Name())); err != nil {
			return err
		}
	}
	files, err := dir.GetFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := w.AddFile(path.Join(volPath, f.Name()), SourceOf(f), f.ModTime()); err != nil {
			return err
		}
	}
	return nil
}
