package fs

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

// probeBlockSizes are tried in order when an image is opened.
var probeBlockSizes = []int{512, 1024, 2048, 4096}

// ImageOptions configure how an image is opened.
type ImageOptions struct {
	// Key decrypts an AES-XTS container when set.
	Key        []byte
	Compliance udf.Compliance
	Logger     *zap.Logger
}

// Image is an opened volume image.
type Image struct {
	Reader *udf.Reader
	file   *blockdev.File
}

func (i *Image) Close() error {
	if i.file == nil {
		return nil
	}
	return i.file.Close()
}

// OpenImage opens the image at imagePath read-only, detects its block
// size from the anchor pointer and mounts it.
func OpenImage(imagePath string, opts ImageOptions) (*Image, error) {
	var probed []error
	for _, bs := range probeBlockSizes {
		file, err := blockdev.Open(imagePath, bs)
		if err != nil {
			return nil, err
		}
		var dev blockdev.Device = file
		if opts.Key != nil {
			if dev, err = blockdev.NewXTS(file, opts.Key); err != nil {
				file.Close()
				return nil, err
			}
		}
		if !udf.HasAnchor(dev) {
			file.Close()
			probed = append(probed, fmt.Errorf("no anchor at %d byte blocks", bs))
			continue
		}
		r, err := udf.Mount(dev, udf.MountOptions{Compliance: opts.Compliance, Logger: opts.Logger})
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to mount %s: %w", imagePath, err)
		}
		return &Image{Reader: r, file: file}, nil
	}
	return nil, fmt.Errorf("%s: %w", imagePath, errors.Join(append([]error{udf.ErrFormat}, probed...)...))
}

// ISOFileSystemImpl implements ISOFileSystem for reading UDF images.
type ISOFileSystemImpl struct {
	opts        ImageOptions
	image       *Image
	volumeLabel string
	mounted     bool
	// Cache for directory lookups
	dirCache map[string]*udf.Directory
}

// NewISOFileSystem creates a new image file system reader.
func NewISOFileSystem(opts ImageOptions) *ISOFileSystemImpl {
	return &ISOFileSystemImpl{
		opts:     opts,
		dirCache: make(map[string]*udf.Directory),
	}
}

// NewReaderFileSystem browses an already mounted volume.
func NewReaderFileSystem(r *udf.Reader) *ISOFileSystemImpl {
	fs := NewISOFileSystem(ImageOptions{})
	fs.image = &Image{Reader: r}
	fs.volumeLabel = r.GetVolumeLabel()
	fs.mounted = true
	return fs
}

// Mount opens the image and prepares it for reading.
func (fs *ISOFileSystemImpl) Mount(imagePath string) error {
	if fs.mounted {
		return fmt.Errorf("image already mounted")
	}

	image, err := OpenImage(imagePath, fs.opts)
	if err != nil {
		return fmt.Errorf("failed to open UDF volume: %w", err)
	}

	fs.image = image
	fs.volumeLabel = image.Reader.GetVolumeLabel()
	fs.mounted = true
	return nil
}

// Unmount closes the image.
func (fs *ISOFileSystemImpl) Unmount() error {
	if !fs.mounted {
		return nil
	}

	if fs.image != nil {
		if err := fs.image.Close(); err != nil {
			return err
		}
	}
	fs.image = nil
	fs.mounted = false
	fs.dirCache = make(map[string]*udf.Directory)
	return nil
}

// Reader returns the mounted volume reader, or nil.
func (fs *ISOFileSystemImpl) Reader() *udf.Reader {
	if fs.image == nil {
		return nil
	}
	return fs.image.Reader
}

// GetVolumeLabel returns the volume label of the image.
func (fs *ISOFileSystemImpl) GetVolumeLabel() string {
	return fs.volumeLabel
}

// GetDirectoryInfo returns information about a directory in the image.
func (fs *ISOFileSystemImpl) GetDirectoryInfo(path string) (DirectoryInfo, error) {
	if !fs.mounted {
		return nil, fmt.Errorf("image not mounted")
	}

	path = fs.normalizePath(path)

	if dir, exists := fs.dirCache[path]; exists {
		return fs.directoryInfo(dir), nil
	}

	dir, err := fs.image.Reader.ReadDirectory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	fs.dirCache[path] = dir
	return fs.directoryInfo(dir), nil
}

// GetFileInfo returns information about a file in the image.
func (fs *ISOFileSystemImpl) GetFileInfo(path string) (FileInfo, error) {
	if !fs.mounted {
		return nil, fmt.Errorf("image not mounted")
	}

	path = fs.normalizePath(path)

	file, err := fs.image.Reader.FindFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return &isoFileInfo{fullPath: file.Path(), fs: fs, file: file}, nil
}

// IsISO returns true for image file system.
func (fs *ISOFileSystemImpl) IsISO() bool {
	return true
}

func (fs *ISOFileSystemImpl) directoryInfo(dir *udf.Directory) *isoDirectoryInfo {
	return &isoDirectoryInfo{fullPath: dir.Path(), fs: fs, dir: dir}
}

// normalizePath normalizes a path for UDF access
func (fs *ISOFileSystemImpl) normalizePath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// isoFileInfo implements FileInfo for files within an image.
type isoFileInfo struct {
	fullPath string
	fs       *ISOFileSystemImpl
	file     *udf.File
}

func (f *isoFileInfo) Name() string {
	return f.file.Name
}

func (f *isoFileInfo) FullName() string {
	return f.fullPath
}

func (f *isoFileInfo) Length() int64 {
	return f.file.Size()
}

func (f *isoFileInfo) Extension() string {
	return strings.ToLower(path.Ext(f.file.Name))
}

func (f *isoFileInfo) IsDirectory() bool {
	return false
}

func (f *isoFileInfo) ModTime() time.Time {
	return f.file.ModTime()
}

func (f *isoFileInfo) OpenRead() (io.ReadCloser, error) {
	return f.file.Open()
}

func (f *isoFileInfo) Open() (io.ReadCloser, error) {
	return f.file.Open()
}

func (f *isoFileInfo) Size() (int64, error) {
	return f.file.Size(), nil
}

// Embedded reports whether the data lives inside the file entry.
func (f *isoFileInfo) Embedded() bool {
	return f.file.Embedded()
}

// isoDirectoryInfo implements DirectoryInfo for directories within an
// image.
type isoDirectoryInfo struct {
	fullPath string
	fs       *ISOFileSystemImpl
	dir      *udf.Directory
}

func (d *isoDirectoryInfo) Name() string {
	if d.fullPath == "/" {
		return d.fs.volumeLabel
	}
	return d.dir.Name
}

func (d *isoDirectoryInfo) FullName() string {
	return d.fullPath
}

func (d *isoDirectoryInfo) ModTime() time.Time {
	return d.dir.ModTime()
}

func (d *isoDirectoryInfo) GetFiles() ([]FileInfo, error) {
	udfFiles, err := d.dir.GetFiles()
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, udfFile := range udfFiles {
		files = append(files, &isoFileInfo{
			fullPath: udfFile.Path(),
			fs:       d.fs,
			file:     udfFile,
		})
	}
	return files, nil
}

func (d *isoDirectoryInfo) GetDirectories() ([]DirectoryInfo, error) {
	udfDirs, err := d.dir.GetDirectories()
	if err != nil {
		return nil, err
	}

	var dirs []DirectoryInfo
	for _, udfDir := range udfDirs {
		d.fs.dirCache[udfDir.Path()] = udfDir
		dirs = append(dirs, d.fs.directoryInfo(udfDir))
	}
	return dirs, nil
}

func (d *isoDirectoryInfo) GetFilesPattern(pattern string) ([]FileInfo, error) {
	files, err := d.GetFiles()
	if err != nil {
		return nil, err
	}

	var matches []FileInfo
	for _, file := range files {
		matched, err := filepath.Match(pattern, file.Name())
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, file)
		}
	}
	return matches, nil
}

func (d *isoDirectoryInfo) GetDirectory(name string) (DirectoryInfo, error) {
	dirs, err := d.GetDirectories()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if strings.EqualFold(dir.Name(), name) {
			return dir, nil
		}
	}
	return nil, fmt.Errorf("%w: directory %s", udf.ErrNotFound, path.Join(d.fullPath, name))
}

func (d *isoDirectoryInfo) GetFile(name string) (FileInfo, error) {
	files, err := d.GetFiles()
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if strings.EqualFold(file.Name(), name) {
			return file, nil
		}
	}
	return nil, fmt.Errorf("%w: file %s", udf.ErrNotFound, path.Join(d.fullPath, name))
}

func (d *isoDirectoryInfo) Exists() bool {
	return d.dir != nil
}
