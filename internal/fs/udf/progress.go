package udf

import "time"

// Action is a listener's answer at a checkpoint.
type Action int

const (
	Continue Action = iota
	// Skip passes over the announced entry. A volume being written cannot
	// leave out an entry, so the writer treats Skip like Continue.
	Skip
	// Abort stops the operation with ErrAborted.
	Abort
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	}
	return "unknown"
}

// VolumeInfo summarises a mounted or resolved volume.
type VolumeInfo struct {
	Label           string
	VolumeSetID     string
	BlockSize       int
	Blocks          int64
	PartitionStart  uint32
	PartitionLength uint32
	Files           uint32
	Directories     uint32
	// FreeBlocks is the free space table of the integrity descriptor.
	FreeBlocks uint32
	// BitmapFreeBlocks counts the set bits of the space bitmap, or -1
	// when the partition has none.
	BitmapFreeBlocks int64
	NextUniqueID     uint64
	Recorded         time.Time
	Implementation   string
}

// Listener receives progress from writers and readers. Paths are absolute
// volume paths such as "/docs/a.txt".
type Listener interface {
	// Mounted is called once a reader has validated the volume.
	Mounted(info VolumeInfo) Action
	// Directory is called before a directory is descended into.
	Directory(path string, modTime time.Time) Action
	// File is called before the data of a file is transferred.
	File(path string, size int64, modTime time.Time) Action
	// Progress is called after each chunk of file data.
	Progress(path string, done, total int64) Action
	// Done is called when the operation completed.
	Done()
}

// BaseListener continues at every checkpoint. Embed it to implement only
// the callbacks of interest.
type BaseListener struct{}

func (BaseListener) Mounted(VolumeInfo) Action            { return Continue }
func (BaseListener) Directory(string, time.Time) Action   { return Continue }
func (BaseListener) File(string, int64, time.Time) Action { return Continue }
func (BaseListener) Progress(string, int64, int64) Action { return Continue }
func (BaseListener) Done()                                {}

func listenerOrBase(l Listener) Listener {
	if l == nil {
		return BaseListener{}
	}
	return l
}
