package blockdev

import (
	"fmt"
	"io"
	"os"
)

// File is a device backed by a regular file or a raw disk node.
type File struct {
	f         *os.File
	blockSize int
	blocks    int64
}

// Create creates (or truncates) path and sizes it to hold blocks blocks.
func Create(path string, blockSize int, blocks int64) (*File, error) {
	if err := ValidBlockSize(blockSize); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}
	if err := f.Truncate(int64(blockSize) * blocks); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size image: %w", err)
	}
	return &File{f: f, blockSize: blockSize, blocks: blocks}, nil
}

// Open opens an existing image read-only.
func Open(path string, blockSize int) (*File, error) {
	if err := ValidBlockSize(blockSize); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, blockSize: blockSize, blocks: size / int64(blockSize)}, nil
}

func (d *File) BlockSize() int { return d.blockSize }

func (d *File) Size() int64 { return d.blocks }

func (d *File) ReadBlock(index int64, p []byte) error {
	if d.f == nil {
		return ErrDeviceClosed
	}
	if err := checkAccess(d, index, p); err != nil {
		return err
	}
	sr := io.NewSectionReader(d.f, index*int64(d.blockSize), int64(d.blockSize))
	_, err := io.ReadFull(sr, p[:d.blockSize])
	return err
}

func (d *File) WriteBlock(index int64, p []byte) error {
	if d.f == nil {
		return ErrDeviceClosed
	}
	if err := checkAccess(d, index, p); err != nil {
		return err
	}
	_, err := d.f.WriteAt(p[:d.blockSize], index*int64(d.blockSize))
	return err
}

// Sync flushes written blocks to stable storage.
func (d *File) Sync() error {
	if d.f == nil {
		return ErrDeviceClosed
	}
	return d.f.Sync()
}

func (d *File) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
