package udf

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Source supplies the contents of a registered file. Size is called when
// the volume is resolved and again before the data is written; a change
// between the two fails Make with ErrSourceChanged.
type Source interface {
	Open() (io.ReadCloser, error)
	Size() (int64, error)
}

// BytesSource serves a file from memory.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b BytesSource) Size() (int64, error) {
	return int64(len(b)), nil
}

// node is a registered directory or file.
type node struct {
	name    string
	path    string
	dir     bool
	modTime time.Time
	ident   []byte

	parent   *node
	children map[string]*node
	dirs     []*node
	files    []*node

	src Source
	// size is the file length, or the directory stream length, as
	// measured by Resolve.
	size int64
}

func newRoot(modTime time.Time) *node {
	return &node{path: "/", dir: true, modTime: modTime, children: map[string]*node{}}
}

// splitVolumePath cleans p into an absolute volume path and its
// components.
func (w *Writer) splitVolumePath(p string) (string, []string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if len(clean) > w.cfg.MaxPathLength {
		return "", nil, limitErr(ErrPathTooLong, clean, int64(len(clean)), int64(w.cfg.MaxPathLength))
	}
	if clean == "/" {
		return clean, nil, nil
	}
	parts := strings.Split(clean[1:], "/")
	for _, name := range parts {
		if strings.IndexByte(name, 0) >= 0 {
			return "", nil, fmt.Errorf("udf: invalid name %q in %s", name, clean)
		}
		if n := encodedLen(name); n > MaxNameBytes {
			return "", nil, limitErr(ErrNameTooLong, clean, int64(n), MaxNameBytes)
		}
	}
	return clean, parts, nil
}

// walkParents returns the directory that holds the last component of
// parts, creating missing directories with modTime.
func (w *Writer) walkParents(parts []string, modTime time.Time) (*node, error) {
	dir := w.root
	for _, name := range parts[:len(parts)-1] {
		child, ok := dir.children[name]
		if !ok {
			child = w.link(dir, name, true, modTime)
		} else if !child.dir {
			return nil, fmt.Errorf("%w: %s is a file", ErrExists, child.path)
		}
		dir = child
	}
	return dir, nil
}

func (w *Writer) link(parent *node, name string, dir bool, modTime time.Time) *node {
	n := &node{
		name:    name,
		path:    path.Join(parent.path, name),
		dir:     dir,
		modTime: modTime,
		ident:   EncodeString(name),
		parent:  parent,
	}
	parent.children[name] = n
	if dir {
		n.children = map[string]*node{}
		parent.dirs = append(parent.dirs, n)
	} else {
		parent.files = append(parent.files, n)
	}
	return n
}

// AddDirectory registers a directory. Adding an existing directory updates
// its modification time; parents are created as needed.
func (w *Writer) AddDirectory(p string, modTime time.Time) error {
	clean, parts, err := w.splitVolumePath(p)
	if err != nil {
		return err
	}
	w.res = nil
	if parts == nil {
		w.root.modTime = modTime
		return nil
	}
	parent, err := w.walkParents(parts, modTime)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if existing, ok := parent.children[name]; ok {
		if !existing.dir {
			return fmt.Errorf("%w: %s is a file", ErrExists, clean)
		}
		existing.modTime = modTime
		return nil
	}
	w.link(parent, name, true, modTime)
	return nil
}

// AddFile registers a file backed by src.
func (w *Writer) AddFile(p string, src Source, modTime time.Time) error {
	if src == nil {
		return fmt.Errorf("udf: nil source for %s", p)
	}
	clean, parts, err := w.splitVolumePath(p)
	if err != nil {
		return err
	}
	if parts == nil {
		return fmt.Errorf("%w: %s", ErrExists, clean)
	}
	w.res = nil
	parent, err := w.walkParents(parts, modTime)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if _, ok := parent.children[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, clean)
	}
	n := w.link(parent, name, false, modTime)
	n.src = src
	return nil
}

// measure records file sizes and directory stream lengths and checks them
// against the format limits.
func (w *Writer) measure(n *node) error {
	if !n.dir {
		size, err := n.src.Size()
		if err != nil {
			return ioErr("measure", n.path, err)
		}
		if size < 0 {
			return ioErr("measure", n.path, fmt.Errorf("negative size %d", size))
		}
		if maxSize := w.maxFileSize(); size > maxSize {
			return limitErr(ErrFileTooLarge, n.path, size, maxSize)
		}
		n.size = size
		return nil
	}
	stream := int64(fidSize(0, 0))
	for _, c := range n.dirs {
		stream += int64(fidSize(len(c.ident), 0))
	}
	for _, c := range n.files {
		stream += int64(fidSize(len(c.ident), 0))
	}
	bs := int64(w.cfg.BlockSize)
	limit := int64(w.cfg.MaxDirectoryBlocks) * bs
	if extent := int64(MaxLength(w.cfg.BlockSize)); limit > extent {
		limit = extent
	}
	if stream > limit {
		return limitErr(ErrDirectoryTooLarge, n.path, stream, limit)
	}
	n.size = stream
	for _, c := range n.dirs {
		if err := w.measure(c); err != nil {
			return err
		}
	}
	for _, c := range n.files {
		if err := w.measure(c); err != nil {
			return err
		}
	}
	return nil
}

// embeddable reports whether a file of size bytes fits inside its entry.
func (w *Writer) embeddable(size int64) bool {
	return size <= int64(w.cfg.BlockSize-fileEntrySize)
}

// maxFileSize is the largest file whose short_ad list fits its entry.
func (w *Writer) maxFileSize() int64 {
	extents := int64((w.cfg.BlockSize - fileEntrySize) / shortADSize)
	return extents * int64(MaxLength(w.cfg.BlockSize))
}
