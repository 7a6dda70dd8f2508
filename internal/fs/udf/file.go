package udf

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// File represents a file in the UDF file system
type File struct {
	reader *Reader
	Name   string
	path   string
	icb    LongAD
	entry  *FileEntry
}

// Directory represents a directory in the UDF file system
type Directory struct {
	reader *Reader
	Name   string
	path   string
	icb    LongAD
	entry  *FileEntry
	files  []*File
	dirs   []*Directory

	entriesOnce sync.Once
	entriesErr  error
}

// Path is the absolute volume path of the file.
func (f *File) Path() string { return f.path }

// Size returns the file size in bytes.
func (f *File) Size() int64 { return int64(f.entry.InformationLength) }

// ModTime returns the modification time.
func (f *File) ModTime() time.Time { return f.entry.ModificationTime.Time() }

// Embedded reports whether the data is stored inside the file entry.
func (f *File) Embedded() bool { return f.entry.ICBTag.AllocationType() == AllocEmbedded }

// Entry returns the file entry of the file.
func (f *File) Entry() *FileEntry { return f.entry }

// Path is the absolute volume path of the directory.
func (d *Directory) Path() string { return d.path }

// ModTime returns the modification time.
func (d *Directory) ModTime() time.Time { return d.entry.ModificationTime.Time() }

// Entry returns the file entry of the directory.
func (d *Directory) Entry() *FileEntry { return d.entry }

// Root returns the root directory.
func (r *Reader) Root() *Directory { return r.root }

// readEntry reads the file entry an ICB points to.
func (r *Reader) readEntry(icb LongAD) (*FileEntry, error) {
	if icb.Location.Partition != 0 {
		return nil, fmt.Errorf("%w: entry in partition reference %d", ErrUnsupported, icb.Location.Partition)
	}
	d, err := r.readPartitionDescriptor(icb.Location.Block)
	if err != nil {
		return nil, err
	}
	fe, ok := d.(*FileEntry)
	if !ok {
		return nil, fmt.Errorf("%w: %s where a file entry was expected", ErrFormat, d.Header().Identifier)
	}
	if fe.InformationLength > math.MaxInt64 {
		return nil, fmt.Errorf("%w: information length %d", ErrBadLength, fe.InformationLength)
	}
	return fe, nil
}

func (r *Reader) newDirectory(parent *Directory, name string, icb LongAD) (*Directory, error) {
	fe, err := r.readEntry(icb)
	if err != nil {
		return nil, err
	}
	if !fe.IsDirectory() {
		return nil, fmt.Errorf("%w: file type %d is not a directory", ErrFormat, fe.ICBTag.FileType)
	}
	p := "/"
	if parent != nil {
		p = path.Join(parent.path, name)
	}
	return &Directory{reader: r, Name: name, path: p, icb: icb, entry: fe}, nil
}

func (d *Directory) ensureEntries() error {
	d.entriesOnce.Do(func() {
		d.entriesErr = d.readEntries()
	})
	return d.entriesErr
}

// readEntries decodes the identifier stream of d and reads the entry of
// every child. Children that are neither directories nor regular files
// are rejected.
func (d *Directory) readEntries() error {
	r := d.reader
	exts, data, err := r.extents(d.entry, d.path)
	if err != nil {
		return err
	}
	stream := data
	if stream == nil {
		limit := min(uint64(MaxLength(r.blockSize)), uint64(r.pd.PartitionLength)*uint64(r.blockSize))
		if d.entry.InformationLength > limit {
			return fmt.Errorf("%w: %s: directory of %d bytes exceeds %d", ErrBadLength, d.path, d.entry.InformationLength, limit)
		}
		for _, e := range exts {
			if e.sparse {
				return fmt.Errorf("%w: %s: unrecorded extent in directory", ErrFormat, d.path)
			}
		}
		stream = make([]byte, d.entry.InformationLength)
		er := &extentReader{reader: r, extents: exts, size: int64(len(stream))}
		if _, err := io.ReadFull(er, stream); err != nil {
			return ioErr("read", d.path, err)
		}
	}

	for off := 0; off < len(stream); {
		if r.compliance == Lenient && util.IsZero(stream[off:]) {
			break
		}
		opts := r.parseOptions(false, 0)
		if pos, ok := blockAt(exts, int64(off), r.blockSize); ok && r.compliance == Strict {
			opts = r.parseOptions(true, pos)
		}
		desc, err := Parse(stream, off, opts)
		if err != nil {
			return fmt.Errorf("%s: identifier at offset %d: %w", d.path, off, err)
		}
		fid, ok := desc.(*FileIdentifierDescriptor)
		if !ok {
			return fmt.Errorf("%w: %s: %s in directory stream", ErrFormat, d.path, desc.Header().Identifier)
		}
		off += fid.Size()
		if fid.IsParent() || fid.IsDeleted() {
			continue
		}
		if err := d.addChild(fid); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) addChild(fid *FileIdentifierDescriptor) error {
	r := d.reader
	name, err := fid.Name()
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	if !validName(name) {
		if r.compliance == Strict {
			return fmt.Errorf("%w: %s: invalid name %q", ErrFormat, d.path, name)
		}
		r.log.Warn("skipping directory member with invalid name", zap.String("dir", d.path), zap.String("name", name))
		return nil
	}
	child := path.Join(d.path, name)
	fe, err := r.readEntry(fid.ICB)
	if err != nil {
		return fmt.Errorf("%s: %w", child, err)
	}
	switch fe.ICBTag.FileType {
	case ICBFileTypeDirectory:
		if !fid.IsDirectory() {
			return fmt.Errorf("%w: %s: directory entry without directory identifier", ErrFormat, child)
		}
		d.dirs = append(d.dirs, &Directory{reader: r, Name: name, path: child, icb: fid.ICB, entry: fe})
	case ICBFileTypeFile:
		if fid.IsDirectory() {
			return fmt.Errorf("%w: %s: file entry behind a directory identifier", ErrFormat, child)
		}
		d.files = append(d.files, &File{reader: r, Name: name, path: child, icb: fid.ICB, entry: fe})
	default:
		return fmt.Errorf("%w: %s: file type %d", ErrUnsupported, child, fe.ICBTag.FileType)
	}
	return nil
}

// validName reports whether name can stand for a single path element.
func validName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

// GetFiles returns all files in the directory
func (d *Directory) GetFiles() ([]*File, error) {
	if err := d.ensureEntries(); err != nil {
		return nil, err
	}
	return d.files, nil
}

// GetDirectories returns all subdirectories
func (d *Directory) GetDirectories() ([]*Directory, error) {
	if err := d.ensureEntries(); err != nil {
		return nil, err
	}
	return d.dirs, nil
}

// ReadDirectory reads a directory's contents
func (r *Reader) ReadDirectory(dirPath string) (*Directory, error) {
	current := r.root
	if err := current.ensureEntries(); err != nil {
		return nil, err
	}
	for _, part := range splitPath(dirPath) {
		dirs, err := current.GetDirectories()
		if err != nil {
			return nil, err
		}
		next := findByName(dirs, part, func(d *Directory) string { return d.Name })
		if next == nil {
			return nil, fmt.Errorf("%w: directory %s", ErrNotFound, path.Join(current.path, part))
		}
		if err := next.ensureEntries(); err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// FindFile searches for a file by path
func (r *Reader) FindFile(filePath string) (*File, error) {
	parts := splitPath(filePath)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q names no file", ErrNotFound, filePath)
	}
	dir, err := r.ReadDirectory(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, err
	}
	files, err := dir.GetFiles()
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	if f := findByName(files, name, func(f *File) string { return f.Name }); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("%w: file %s", ErrNotFound, path.Join(dir.path, name))
}

func splitPath(p string) []string {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return nil
	}
	return strings.Split(clean[1:], "/")
}

// findByName prefers an exact match and falls back to a case-insensitive
// one.
func findByName[T any](items []T, name string, nameOf func(T) string) T {
	var zero T
	folded := -1
	for i, it := range items {
		n := nameOf(it)
		if n == name {
			return it
		}
		if folded < 0 && strings.EqualFold(n, name) {
			folded = i
		}
	}
	if folded >= 0 {
		return items[folded]
	}
	return zero
}

// extent maps a byte range of a file to consecutive partition blocks.
type extent struct {
	fileStart int64
	fileEnd   int64
	// block is the first partition block; unused when sparse.
	block  uint32
	sparse bool
}

// extents returns the data extents of an entry, or its embedded data.
func (r *Reader) extents(fe *FileEntry, p string) ([]extent, []byte, error) {
	size := int64(fe.InformationLength)
	type ad struct {
		length uint32
		typ    uint8
		block  uint32
	}
	var ads []ad
	switch t := fe.ICBTag.AllocationType(); t {
	case AllocEmbedded:
		if int64(len(fe.AllocationDescriptors)) < size {
			return nil, nil, fmt.Errorf("%w: %s: %d embedded bytes for %d byte file", ErrBadLength, p, len(fe.AllocationDescriptors), size)
		}
		if size == 0 {
			return nil, []byte{}, nil
		}
		return nil, fe.AllocationDescriptors[:size], nil
	case AllocShort:
		short, err := fe.ShortADs()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		for _, a := range short {
			ads = append(ads, ad{a.Length, a.Type, a.Position})
		}
	case AllocLong:
		long, err := fe.LongADs()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		for _, a := range long {
			if a.Location.Partition != 0 {
				return nil, nil, fmt.Errorf("%w: %s: extent in partition reference %d", ErrUnsupported, p, a.Location.Partition)
			}
			ads = append(ads, ad{a.Length, a.Type, a.Location.Block})
		}
	default:
		return nil, nil, fmt.Errorf("%w: %s: allocation type %d", ErrUnsupported, p, t)
	}

	var exts []extent
	var off int64
	for _, a := range ads {
		if off >= size {
			break
		}
		if a.typ == ExtentNextAllocationExt {
			return nil, nil, fmt.Errorf("%w: %s: allocation extent continuation", ErrUnsupported, p)
		}
		if a.length == 0 {
			continue
		}
		n := min(int64(a.length), size-off)
		e := extent{fileStart: off, fileEnd: off + n, block: a.block, sparse: a.typ != ExtentRecorded}
		if !e.sparse {
			blocks := (n + int64(r.blockSize) - 1) / int64(r.blockSize)
			if int64(a.block)+blocks > int64(r.pd.PartitionLength) {
				return nil, nil, fmt.Errorf("%w: %s: extent at %d runs past the partition", ErrFormat, p, a.block)
			}
		}
		exts = append(exts, e)
		off += n
	}
	if off < size {
		return nil, nil, fmt.Errorf("%w: %s: extents cover %d of %d bytes", ErrBadLength, p, off, size)
	}
	return exts, nil, nil
}

// blockAt returns the partition block holding byte off of a stream.
func blockAt(exts []extent, off int64, blockSize int) (uint32, bool) {
	for _, e := range exts {
		if off >= e.fileStart && off < e.fileEnd && !e.sparse {
			return e.block + uint32((off-e.fileStart)/int64(blockSize)), true
		}
	}
	return 0, false
}

// Open opens the file for reading
func (f *File) Open() (io.ReadCloser, error) {
	exts, data, err := f.reader.extents(f.entry, f.path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return &extentReader{reader: f.reader, extents: exts, size: f.Size()}, nil
}

// extentReader reads a file through its extents one block at a time.
type extentReader struct {
	reader  *Reader
	extents []extent
	size    int64

	pos    int64
	idx    int
	buf    []byte
	cached int64
}

func (er *extentReader) Read(p []byte) (n int, err error) {
	if er.pos >= er.size {
		return 0, io.EOF
	}
	bs := int64(er.reader.blockSize)
	if er.buf == nil {
		er.buf = make([]byte, bs)
		er.cached = -1
	}
	for n < len(p) && er.pos < er.size {
		if er.idx >= len(er.extents) {
			return n, io.ErrUnexpectedEOF
		}
		ex := er.extents[er.idx]
		if er.pos >= ex.fileEnd {
			er.idx++
			continue
		}
		rel := er.pos - ex.fileStart
		within := rel % bs
		want := min(int64(len(p)-n), bs-within, ex.fileEnd-er.pos)
		if ex.sparse {
			clear(p[n : n+int(want)])
		} else {
			abs, err := er.reader.partitionBlock(ex.block + uint32(rel/bs))
			if err != nil {
				return n, err
			}
			if int64(abs) != er.cached {
				if err := er.reader.dev.ReadBlock(int64(abs), er.buf); err != nil {
					er.cached = -1
					return n, ioErr("read", fmt.Sprintf("block %d", abs), err)
				}
				er.cached = int64(abs)
			}
			copy(p[n:], er.buf[within:within+want])
		}
		n += int(want)
		er.pos += want
	}
	if er.pos >= er.size {
		return n, io.EOF
	}
	return n, nil
}

func (er *extentReader) Close() error { return nil }
