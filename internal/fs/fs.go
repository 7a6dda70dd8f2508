// Package fs abstracts the directory trees volumes are built from and
// browsed as: a host directory on disk, or a mounted UDF image.
package fs

import (
	"io"
	"time"
)

// FileSystem resolves paths to directories and files.
type FileSystem interface {
	GetDirectoryInfo(path string) (DirectoryInfo, error)
	GetFileInfo(path string) (FileInfo, error)
	IsISO() bool
}

// ISOFileSystem is a FileSystem read from a volume image.
type ISOFileSystem interface {
	FileSystem
	Mount(imagePath string) error
	Unmount() error
	GetVolumeLabel() string
}

// FileInfo describes one regular file.
type FileInfo interface {
	Name() string
	FullName() string
	Length() int64
	Extension() string
	IsDirectory() bool
	ModTime() time.Time
	OpenRead() (io.ReadCloser, error)
}

// DirectoryInfo describes one directory and lists its children.
type DirectoryInfo interface {
	Name() string
	FullName() string
	ModTime() time.Time
	GetFiles() ([]FileInfo, error)
	GetDirectories() ([]DirectoryInfo, error)
	GetFilesPattern(pattern string) ([]FileInfo, error)
	GetDirectory(name string) (DirectoryInfo, error)
	GetFile(name string) (FileInfo, error)
	Exists() bool
}
