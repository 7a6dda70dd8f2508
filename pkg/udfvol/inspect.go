package udfvol

import (
	"path"
	"time"

	"github.com/s0up4200/go-udfvol/internal/fs"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

// Info summarises a volume image.
type Info struct {
	Label           string    `json:"label" yaml:"label"`
	VolumeSetID     string    `json:"volume_set_id" yaml:"volume_set_id"`
	BlockSize       int       `json:"block_size" yaml:"block_size"`
	Blocks          int64     `json:"blocks" yaml:"blocks"`
	PartitionStart  uint32    `json:"partition_start" yaml:"partition_start"`
	PartitionLength uint32    `json:"partition_length" yaml:"partition_length"`
	Files           uint32    `json:"files" yaml:"files"`
	Directories     uint32    `json:"directories" yaml:"directories"`
	FreeBlocks      uint32    `json:"free_blocks" yaml:"free_blocks"`
	NextUniqueID    uint64    `json:"next_unique_id" yaml:"next_unique_id"`
	Recorded        time.Time `json:"recorded" yaml:"recorded"`
	Implementation  string    `json:"implementation" yaml:"implementation"`
}

// Entry is one directory member of a volume.
type Entry struct {
	Path      string    `json:"path" yaml:"path"`
	Name      string    `json:"name" yaml:"name"`
	Directory bool      `json:"directory" yaml:"directory"`
	Size      int64     `json:"size" yaml:"size"`
	ModTime   time.Time `json:"mod_time" yaml:"mod_time"`
	Embedded  bool      `json:"embedded,omitempty" yaml:"embedded,omitempty"`
}

// Inspect mounts image and reports its volume summary.
func Inspect(image string, key []byte, settings Settings) (Info, error) {
	cfg, err := resolveSettings(settings)
	if err != nil {
		return Info{}, err
	}
	img, err := fs.OpenImage(image, fs.ImageOptions{Key: key, Compliance: cfg.ComplianceMode()})
	if err != nil {
		return Info{}, err
	}
	defer img.Close()
	return infoOf(img.Reader.Info()), nil
}

// List returns the members of dir, directories first. With recursive set
// the whole subtree is returned in layout order.
func List(image string, key []byte, settings Settings, dir string, recursive bool) ([]Entry, error) {
	cfg, err := resolveSettings(settings)
	if err != nil {
		return nil, err
	}
	img, err := fs.OpenImage(image, fs.ImageOptions{Key: key, Compliance: cfg.ComplianceMode()})
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if dir == "" {
		dir = "/"
	}
	d, err := fs.NewReaderFileSystem(img.Reader).GetDirectoryInfo(dir)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := listInto(&entries, d, recursive); err != nil {
		return nil, err
	}
	return entries, nil
}

func listInto(entries *[]Entry, d fs.DirectoryInfo, recursive bool) error {
	dirs, err := d.GetDirectories()
	if err != nil {
		return err
	}
	for _, sub := range dirs {
		*entries = append(*entries, Entry{
			Path:      sub.FullName(),
			Name:      path.Base(sub.FullName()),
			Directory: true,
			ModTime:   sub.ModTime(),
		})
		if recursive {
			if err := listInto(entries, sub, true); err != nil {
				return err
			}
		}
	}
	files, err := d.GetFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		e := Entry{
			Path:    f.FullName(),
			Name:    path.Base(f.FullName()),
			Size:    f.Length(),
			ModTime: f.ModTime(),
		}
		if emb, ok := f.(interface{ Embedded() bool }); ok {
			e.Embedded = emb.Embedded()
		}
		*entries = append(*entries, e)
	}
	return nil
}

func infoOf(v udf.VolumeInfo) Info {
	return Info{
		Label:           v.Label,
		VolumeSetID:     v.VolumeSetID,
		BlockSize:       v.BlockSize,
		Blocks:          v.Blocks,
		PartitionStart:  v.PartitionStart,
		PartitionLength: v.PartitionLength,
		Files:           v.Files,
		Directories:     v.Directories,
		FreeBlocks:      v.FreeBlocks,
		NextUniqueID:    v.NextUniqueID,
		Recorded:        v.Recorded,
		Implementation:  v.Implementation,
	}
}
