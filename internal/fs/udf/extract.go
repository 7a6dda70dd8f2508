package udf

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
)

// Sink receives the tree of an extracted volume. Paths are absolute volume
// paths; the root is "/".
type Sink interface {
	MakeDirectory(path string) error
	CreateFile(path string, size int64) (io.WriteCloser, error)
	// SetModTime is called after the contents of path are complete.
	SetModTime(path string, t time.Time) error
}

// Extract copies the whole volume into sink. Listener checkpoints are
// honoured: Skip on a directory or file leaves it out, Abort stops with
// ErrAborted.
func (r *Reader) Extract(sink Sink, l Listener) error {
	l = listenerOrBase(l)
	switch l.Mounted(r.info) {
	case Abort:
		return ErrAborted
	case Skip:
		l.Done()
		return nil
	}
	if err := r.extractDirectory(sink, l, r.root); err != nil {
		return err
	}
	l.Done()
	return nil
}

func (r *Reader) extractDirectory(sink Sink, l Listener, d *Directory) error {
	switch l.Directory(d.path, d.ModTime()) {
	case Abort:
		return ErrAborted
	case Skip:
		return nil
	}
	if err := sink.MakeDirectory(d.path); err != nil {
		return ioErr("mkdir", d.path, err)
	}
	dirs, err := d.GetDirectories()
	if err != nil {
		return err
	}
	for _, sub := range dirs {
		if err := r.extractDirectory(sink, l, sub); err != nil {
			return err
		}
	}
	files, err := d.GetFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := r.extractFile(sink, l, f); err != nil {
			return err
		}
	}
	if err := sink.SetModTime(d.path, d.ModTime()); err != nil {
		return ioErr("chtimes", d.path, err)
	}
	return nil
}

// extractFile copies one file a block at a time, reporting progress after
// every block.
func (r *Reader) extractFile(sink Sink, l Listener, f *File) (err error) {
	switch l.File(f.path, f.Size(), f.ModTime()) {
	case Abort:
		return ErrAborted
	case Skip:
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ioErr("close", f.path, rc.Close())) }()
	w, err := sink.CreateFile(f.path, f.Size())
	if err != nil {
		return ioErr("create", f.path, err)
	}
	if err := r.copyFile(l, f, w, rc); err != nil {
		return multierr.Append(err, ioErr("close", f.path, w.Close()))
	}
	if err := w.Close(); err != nil {
		return ioErr("close", f.path, err)
	}
	if err := sink.SetModTime(f.path, f.ModTime()); err != nil {
		return ioErr("chtimes", f.path, err)
	}
	return nil
}

func (r *Reader) copyFile(l Listener, f *File, w io.Writer, src io.Reader) error {
	buf := make([]byte, r.blockSize)
	size := f.Size()
	var done int64
	for done < size {
		n := int(min(int64(len(buf)), size-done))
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return ioErr("read", f.path, err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return ioErr("write", f.path, err)
		}
		done += int64(n)
		if l.Progress(f.path, done, size) == Abort {
			return ErrAborted
		}
	}
	return nil
}

// Walk calls fn for every directory and file below d in the order the
// writer lays them out. Returning false from fn stops the walk.
func (d *Directory) Walk(fn func(dir *Directory, file *File) bool) error {
	_, err := d.walk(fn)
	return err
}

func (d *Directory) walk(fn func(*Directory, *File) bool) (bool, error) {
	if !fn(d, nil) {
		return false, nil
	}
	dirs, err := d.GetDirectories()
	if err != nil {
		return false, err
	}
	for _, sub := range dirs {
		ok, err := sub.walk(fn)
		if err != nil || !ok {
			return ok, err
		}
	}
	files, err := d.GetFiles()
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if !fn(nil, f) {
			return false, nil
		}
	}
	return true, nil
}

// VolumeDescriptors returns the prevailing descriptors read at mount, in
// sequence order.
func (r *Reader) VolumeDescriptors() []Descriptor {
	ds := []Descriptor{r.pvd, r.lvd, r.pd}
	if r.iuvd != nil {
		ds = append(ds, r.iuvd)
	}
	if r.lvid != nil {
		ds = append(ds, r.lvid)
	}
	return append(ds, r.fsd)
}

func (r *Reader) String() string {
	return fmt.Sprintf("udf volume %q (%d blocks of %d bytes)", r.info.Label, r.info.Blocks, r.blockSize)
}
