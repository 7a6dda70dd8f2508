package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DiskFileSystem implements FileSystem over an afero file system, the
// host disk by default.
type DiskFileSystem struct {
	fs afero.Fs
}

// NewDiskFileSystem creates a disk-based file system. A nil afs uses the
// operating system's.
func NewDiskFileSystem(afs afero.Fs) *DiskFileSystem {
	if afs == nil {
		afs = afero.NewOsFs()
	}
	return &DiskFileSystem{fs: afs}
}

// GetDirectoryInfo returns information about a directory on disk.
func (d *DiskFileSystem) GetDirectoryInfo(path string) (DirectoryInfo, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return &diskDirectoryInfo{fs: d.fs, path: path, info: info}, nil
}

// GetFileInfo returns information about a file on disk.
func (d *DiskFileSystem) GetFileInfo(path string) (FileInfo, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}
	return &diskFileInfo{fs: d.fs, path: path, info: info}, nil
}

// IsISO returns false for disk file system.
func (d *DiskFileSystem) IsISO() bool {
	return false
}

// diskFileInfo implements FileInfo for regular files. It also serves as
// the volume source of the file: Size stats the file again so changes
// after registration are seen.
type diskFileInfo struct {
	fs   afero.Fs
	path string
	info os.FileInfo
}

func (f *diskFileInfo) Name() string {
	return f.info.Name()
}

func (f *diskFileInfo) FullName() string {
	return f.path
}

func (f *diskFileInfo) Length() int64 {
	return f.info.Size()
}

func (f *diskFileInfo) Extension() string {
	return strings.ToLower(filepath.Ext(f.path))
}

func (f *diskFileInfo) IsDirectory() bool {
	return f.info.IsDir()
}

func (f *diskFileInfo) ModTime() time.Time {
	return f.info.ModTime()
}

func (f *diskFileInfo) OpenRead() (io.ReadCloser, error) {
	return f.fs.Open(f.path)
}

func (f *diskFileInfo) Open() (io.ReadCloser, error) {
	return f.OpenRead()
}

func (f *diskFileInfo) Size() (int64, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// diskDirectoryInfo implements DirectoryInfo for regular directories.
type diskDirectoryInfo struct {
	fs   afero.Fs
	path string
	info os.FileInfo
}

func (d *diskDirectoryInfo) Name() string {
	return filepath.Base(d.path)
}

func (d *diskDirectoryInfo) FullName() string {
	return d.path
}

func (d *diskDirectoryInfo) ModTime() time.Time {
	return d.info.ModTime()
}

// entries lists the directory sorted by name.
func (d *diskDirectoryInfo) entries() ([]os.FileInfo, error) {
	return afero.ReadDir(d.fs, d.path)
}

// GetFiles lists regular files. Symbolic links, devices and other special
// files are left out.
func (d *diskDirectoryInfo) GetFiles() ([]FileInfo, error) {
	return d.GetFilesPattern("")
}

func (d *diskDirectoryInfo) GetDirectories() ([]DirectoryInfo, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}

	var dirs []DirectoryInfo
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, &diskDirectoryInfo{
				fs:   d.fs,
				path: filepath.Join(d.path, entry.Name()),
				info: entry,
			})
		}
	}
	return dirs, nil
}

// GetFilesPattern lists regular files whose name matches pattern; an
// empty pattern matches every file.
func (d *diskDirectoryInfo) GetFilesPattern(pattern string) ([]FileInfo, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, entry.Name())
			if err != nil {
				return nil, err
			}
			if !matched {
				continue
			}
		}
		files = append(files, &diskFileInfo{
			fs:   d.fs,
			path: filepath.Join(d.path, entry.Name()),
			info: entry,
		})
	}
	return files, nil
}

func (d *diskDirectoryInfo) GetDirectory(name string) (DirectoryInfo, error) {
	path := filepath.Join(d.path, name)
	info, err := d.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", name)
	}
	return &diskDirectoryInfo{fs: d.fs, path: path, info: info}, nil
}

func (d *diskDirectoryInfo) GetFile(name string) (FileInfo, error) {
	path := filepath.Join(d.path, name)
	info, err := d.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", name)
	}
	return &diskFileInfo{fs: d.fs, path: path, info: info}, nil
}

func (d *diskDirectoryInfo) Exists() bool {
	ok, err := afero.DirExists(d.fs, d.path)
	return err == nil && ok
}
