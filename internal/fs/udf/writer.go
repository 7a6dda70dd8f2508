package udf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/buffer"
	"github.com/s0up4200/go-udfvol/internal/util"
)

const (
	// DefaultBlockSize is used when Config.BlockSize is zero.
	DefaultBlockSize = 512
	// DefaultMaxPathLength bounds registered volume paths in bytes.
	DefaultMaxPathLength = 1023

	streamChunkBlocks = 64

	// Read for everyone, write for the owner, and search for directories.
	permFile      = 0x1084 | 0x0800
	permDirectory = permFile | 0x0421

	strategyDirect = 4
	noID           = 0xffffffff
)

// Config describes the volume a Writer builds.
type Config struct {
	// BlockSize is a multiple of 512 up to 32768.
	BlockSize int
	// FreeBlocks is the unused space reserved after the file data.
	FreeBlocks uint32
	// Label is normalized with NormalizeLabel.
	Label string
	// VolumeSetID prefixes the volume set identifier. A random 16 digit
	// hex value is used when empty.
	VolumeSetID string
	// MaxDirectoryBlocks bounds the directory stream of one directory.
	MaxDirectoryBlocks uint32
	// MaxPathLength bounds registered paths in bytes.
	MaxPathLength int
	// RecordingTime stamps the volume descriptors; now when zero.
	RecordingTime time.Time
	Logger        *zap.Logger
}

// Writer lays out a tree of directories and files as a volume.
//
// Register the tree with AddDirectory and AddFile, call Resolve to learn
// the volume size, then Make to write it. Any registration after Resolve
// invalidates the resolution. A Writer is not safe for concurrent use.
type Writer struct {
	cfg      Config
	log      *zap.Logger
	label    string
	volSetID string
	recorded time.Time
	root     *node
	res      *resolution

	block  []byte
	stream []byte
	chunk  []byte
}

// resolution is the result of the resolve pass consumed by Make.
type resolution struct {
	geo       geometry
	positions map[*node]uint32
	files     uint32
	dirs      uint32
	uniqueID  uint64
}

func NewWriter(cfg Config) (*Writer, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if err := blockdev.ValidBlockSize(cfg.BlockSize); err != nil {
		return nil, err
	}
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = DefaultMaxPathLength
	}
	maxDir := MaxLength(cfg.BlockSize) / uint32(cfg.BlockSize)
	if cfg.MaxDirectoryBlocks == 0 || cfg.MaxDirectoryBlocks > maxDir {
		cfg.MaxDirectoryBlocks = maxDir
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	recorded := cfg.RecordingTime
	if recorded.IsZero() {
		recorded = time.Now()
	}
	volSetID := cfg.VolumeSetID
	if volSetID == "" {
		id := uuid.New()
		volSetID = hex.EncodeToString(id[:8])
	}
	return &Writer{
		cfg:      cfg,
		log:      log,
		label:    NormalizeLabel(cfg.Label),
		volSetID: volSetID,
		recorded: recorded,
		root:     newRoot(recorded),
		block:    make([]byte, cfg.BlockSize),
		stream:   make([]byte, 2*cfg.BlockSize),
		chunk:    make([]byte, streamChunkBlocks*cfg.BlockSize),
	}, nil
}

// Label is the normalized volume label.
func (w *Writer) Label() string { return w.label }

// BlockSize is the volume block size.
func (w *Writer) BlockSize() int { return w.cfg.BlockSize }

// Resolve measures every source, lays out the volume and returns its size
// in blocks. Nothing is read from the sources but their sizes.
func (w *Writer) Resolve() (uint32, error) {
	w.res = nil
	if err := w.measure(w.root); err != nil {
		return 0, err
	}
	dev := blockdev.NewNull(w.cfg.BlockSize)
	acc := newLayout(nil)
	geo, err := w.run(resolvePass{dev: dev}, acc, BaseListener{})
	if err != nil {
		return 0, err
	}
	if dev.HighWater() != int64(geo.total) {
		panic(fmt.Sprintf("udf: resolve touched %d blocks, geometry has %d", dev.HighWater(), geo.total))
	}
	w.res = &resolution{
		geo:       geo,
		positions: acc.positions,
		files:     acc.files,
		dirs:      acc.dirs,
		uniqueID:  acc.uniqueID,
	}
	w.log.Debug("resolved volume",
		zap.String("label", w.label),
		zap.Int("block_size", geo.blockSize),
		zap.Uint32("blocks", geo.total),
		zap.Uint32("partition_start", geo.partitionStart),
		zap.Uint32("partition_length", geo.partitionLen),
		zap.Uint32("used", geo.used),
		zap.Uint32("free", geo.free),
		zap.Uint32("bitmap_blocks", geo.bitmapBlocks),
		zap.Uint32("files", acc.files),
		zap.Uint32("directories", acc.dirs))
	return geo.total, nil
}

// CheckResolved verifies that Resolve completed and that every derived
// field of the layout is set.
func (w *Writer) CheckResolved() error {
	if w.res == nil {
		return ErrNotResolved
	}
	g := w.res.geo
	switch {
	case g.blockSize != w.cfg.BlockSize:
		return fmt.Errorf("%w: block size %d, writer uses %d", ErrNotResolved, g.blockSize, w.cfg.BlockSize)
	case g.used < 2 || g.bitmapBlocks == 0 || g.partitionLen == 0:
		return fmt.Errorf("%w: incomplete partition geometry", ErrNotResolved)
	case g.partitionLen != g.used+g.free+g.bitmapBlocks:
		return fmt.Errorf("%w: partition length %d does not add up", ErrNotResolved, g.partitionLen)
	case g.total != g.partitionStart+g.partitionLen+SequenceBlocks+1:
		return fmt.Errorf("%w: volume length %d does not add up", ErrNotResolved, g.total)
	}
	var missing string
	walkNodes(w.root, func(n *node) bool {
		if _, ok := w.res.positions[n]; !ok {
			missing = n.path
			return false
		}
		return true
	})
	if missing != "" {
		return fmt.Errorf("%w: no position for %s", ErrNotResolved, missing)
	}
	return nil
}

// Layout returns the resolved block map.
func (w *Writer) Layout() (Layout, error) {
	if err := w.CheckResolved(); err != nil {
		return Layout{}, err
	}
	g := w.res.geo
	pos := make(map[string]uint32, len(w.res.positions))
	for n, p := range w.res.positions {
		pos[n.path] = p
	}
	return Layout{
		BlockSize:       g.blockSize,
		Blocks:          g.total,
		PartitionStart:  g.partitionStart,
		PartitionLength: g.partitionLen,
		UsedBlocks:      g.used,
		FreeBlocks:      g.free,
		BitmapLocation:  g.bitmapLocation,
		BitmapBlocks:    g.bitmapBlocks,
		ReserveSequence: g.reserveVDS,
		Files:           w.res.files,
		Directories:     w.res.dirs,
		NextUniqueID:    w.res.uniqueID,
		Positions:       pos,
	}, nil
}

// Make writes the resolved volume to dev, which must hold at least the
// resolved number of blocks.
func (w *Writer) Make(dev blockdev.Device, l Listener) error {
	if err := w.CheckResolved(); err != nil {
		return err
	}
	if dev.BlockSize() != w.cfg.BlockSize {
		return fmt.Errorf("%w: device has %d byte blocks, volume uses %d", blockdev.ErrBlockSize, dev.BlockSize(), w.cfg.BlockSize)
	}
	if dev.Size() < int64(w.res.geo.total) {
		return ioErr("write", "", fmt.Errorf("%w: device holds %d blocks, volume needs %d", blockdev.ErrOutOfRange, dev.Size(), w.res.geo.total))
	}
	l = listenerOrBase(l)
	acc := newLayout(w.res.positions)
	geo, err := w.run(emitPass{dev: dev}, acc, l)
	if err != nil {
		return err
	}
	if geo != w.res.geo {
		panic(fmt.Sprintf("udf: make produced geometry %+v, resolved %+v", geo, w.res.geo))
	}
	l.Done()
	return nil
}

func walkNodes(n *node, fn func(*node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, d := range n.dirs {
		if !walkNodes(d, fn) {
			return false
		}
	}
	for _, f := range n.files {
		if !fn(f) {
			return false
		}
	}
	return true
}

// run is the traversal shared by Resolve and Make. The partition is laid
// out first because its length feeds every descriptor outside it.
func (w *Writer) run(ph phase, acc *layout, l Listener) (geometry, error) {
	if err := w.writeRecognition(ph); err != nil {
		return geometry{}, err
	}
	if err := w.writeFileSet(ph, acc.allocate(1)); err != nil {
		return geometry{}, err
	}
	if err := w.writeDirectory(ph, acc, l, w.root); err != nil {
		return geometry{}, err
	}
	geo, err := computeGeometry(w.cfg.BlockSize, acc.next, w.cfg.FreeBlocks)
	if err != nil {
		return geometry{}, err
	}
	ph.skip(geo.partitionStart+geo.used, geo.free)
	if err := w.writeSpaceBitmap(ph, geo); err != nil {
		return geometry{}, err
	}
	if err := w.writeIntegrity(ph, geo, acc); err != nil {
		return geometry{}, err
	}
	for _, base := range []uint32{mainVDSBlock, geo.reserveVDS} {
		if err := w.writeVolumeSequence(ph, geo, base); err != nil {
			return geometry{}, err
		}
	}
	for _, at := range []uint32{AnchorBlock, geo.total - 1} {
		if err := w.writeAnchor(ph, geo, at); err != nil {
			return geometry{}, err
		}
	}
	return geo, nil
}

// abs converts a partition block to an absolute block.
func abs(pos uint32) uint32 {
	return partitionStartLoc + pos
}

func (w *Writer) put(ph phase, block uint32, data []byte, what string) error {
	if err := ph.put(block, data); err != nil {
		return ioErr("write", what, err)
	}
	return nil
}

func (w *Writer) putDescriptor(ph phase, block uint32, d Descriptor, what string) error {
	clear(w.block)
	if _, err := d.Write(w.block, 0); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return w.put(ph, block, w.block, what)
}

// writeRecognition writes the BEA01, NSR02 and TEA01 structure
// descriptors after the reserved area, each in a unit of at least 2048
// bytes.
func (w *Writer) writeRecognition(ph phase) error {
	bs := w.cfg.BlockSize
	unit := max(vrsUnit, bs)
	for i, id := range []string{StandardIDBEA01, StandardIDNSR02, StandardIDTEA01} {
		first := uint32((ReservedBytes + i*unit) / bs)
		for j := range unit / bs {
			clear(w.block)
			if j == 0 {
				copy(w.block[1:6], id)
				w.block[6] = 1
			}
			if err := w.put(ph, first+uint32(j), w.block, "volume recognition sequence"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) writeFileSet(ph phase, pos uint32) error {
	ts := NewTimestamp(w.recorded)
	fsd := &FileSetDescriptor{
		DescriptorTag:                       NewTag(TagFileSet, pos),
		RecordingDateAndTime:                ts,
		InterchangeLevel:                    3,
		MaximumInterchangeLevel:             3,
		CharacterSetList:                    1,
		MaximumCharacterSetList:             1,
		LogicalVolumeIdentifierCharacterSet: OSTACharSpec(),
		LogicalVolumeIdentifier:             truncateString(w.label, 126),
		FileSetCharacterSet:                 OSTACharSpec(),
		FileSetIdentifier:                   truncateString(w.label, 30),
		RootDirectoryICB:                    LongAD{Length: uint32(w.cfg.BlockSize), Location: LBAddr{Block: pos + 1}},
		DomainIdentifier:                    DomainEntity(),
	}
	return w.putDescriptor(ph, abs(pos), fsd, "file set descriptor")
}

func (w *Writer) fileEntry(n *node, pos uint32, uniqueID uint64) *FileEntry {
	ts := NewTimestamp(n.modTime)
	return &FileEntry{
		DescriptorTag: NewTag(TagFile, pos),
		ICBTag: ICBTag{
			StrategyType:           strategyDirect,
			MaximumNumberOfEntries: 1,
		},
		UID:                      noID,
		GID:                      noID,
		AccessTime:               ts,
		ModificationTime:         ts,
		AttributeTime:            ts,
		Checkpoint:               1,
		ImplementationIdentifier: ImplementationEntity(),
		UniqueID:                 uniqueID,
	}
}

// writeDirectory emits the entry and stream of n, then its subdirectories
// and its files, in that order.
func (w *Writer) writeDirectory(ph phase, acc *layout, l Listener, n *node) error {
	if l.Directory(n.path, n.modTime) == Abort {
		return ErrAborted
	}
	bs := int64(w.cfg.BlockSize)
	pos := acc.place(n)
	blocks := util.CeilDiv(n.size, bs)
	stream := acc.allocate(blocks)
	acc.dirs++

	ads, err := EncodeShortADs([]ShortAD{{Length: uint32(n.size), Position: stream}})
	if err != nil {
		return fmt.Errorf("%s: %w", n.path, err)
	}
	fe := w.fileEntry(n, pos, acc.nextUniqueID(n == w.root))
	fe.ICBTag.FileType = ICBFileTypeDirectory
	fe.ICBTag.Flags = AllocShort
	fe.Permissions = permDirectory
	fe.FileLinkCount = uint16(min(1+len(n.dirs), 0xffff))
	fe.InformationLength = uint64(n.size)
	fe.LogicalBlocksRecorded = uint64(blocks)
	fe.AllocationDescriptors = ads
	if err := w.putDescriptor(ph, abs(pos), fe, n.path); err != nil {
		return err
	}
	if err := w.writeDirectoryStream(ph, acc, n, stream); err != nil {
		return err
	}
	for _, d := range n.dirs {
		if err := w.writeDirectory(ph, acc, l, d); err != nil {
			return err
		}
	}
	for _, f := range n.files {
		if err := w.writeFile(ph, acc, l, f); err != nil {
			return err
		}
	}
	return nil
}

// writeDirectoryStream packs the identifiers of n into a two block scratch
// buffer starting at partition block start. A full first block is flushed
// and the overflow moved to the front, so an identifier may straddle two
// blocks. Each identifier is tagged with the block it starts in.
func (w *Writer) writeDirectoryStream(ph phase, acc *layout, n *node, start uint32) error {
	bs := w.cfg.BlockSize
	buf := w.stream
	clear(buf)
	off := 0
	block := start
	var written int64

	add := func(chars uint8, target *node, ident []byte) error {
		fid := &FileIdentifierDescriptor{
			DescriptorTag:       NewTag(TagFileIdentifier, block),
			FileVersionNumber:   1,
			FileCharacteristics: chars,
			ICB:                 LongAD{Length: uint32(bs), Location: LBAddr{Block: acc.lookup(target)}},
			FileIdentifier:      ident,
		}
		next, err := fid.Write(buf, off)
		if err != nil {
			return fmt.Errorf("%s: %w", target.path, err)
		}
		off = next
		if off >= bs {
			if err := w.put(ph, abs(block), buf[:bs], n.path); err != nil {
				return err
			}
			copy(buf, buf[bs:off])
			off -= bs
			clear(buf[off:])
			block++
			written++
		}
		return nil
	}

	parent := n.parent
	if parent == nil {
		parent = n
	}
	if err := add(FileCharDirectory|FileCharParent, parent, nil); err != nil {
		return err
	}
	for _, d := range n.dirs {
		if err := add(FileCharDirectory, d, d.ident); err != nil {
			return err
		}
	}
	for _, f := range n.files {
		if err := add(0, f, f.ident); err != nil {
			return err
		}
	}
	if off > 0 {
		if err := w.put(ph, abs(block), buf[:bs], n.path); err != nil {
			return err
		}
		written++
	}
	if want := util.CeilDiv(n.size, int64(bs)); written != want {
		panic(fmt.Sprintf("udf: directory %s streamed %d blocks, resolved %d", n.path, written, want))
	}
	return nil
}

// extents splits size bytes starting at partition block start into short
// allocation descriptors of at most MaxLength bytes.
func (w *Writer) extents(size int64, start uint32) []ShortAD {
	maxLen := int64(MaxLength(w.cfg.BlockSize))
	step := uint32(maxLen / int64(w.cfg.BlockSize))
	var ads []ShortAD
	for pos := start; size > 0; pos += step {
		n := min(size, maxLen)
		ads = append(ads, ShortAD{Length: uint32(n), Position: pos})
		size -= n
	}
	return ads
}

func (w *Writer) writeFile(ph phase, acc *layout, l Listener, f *node) error {
	if l.File(f.path, f.size, f.modTime) == Abort {
		return ErrAborted
	}
	pos := acc.place(f)
	acc.files++
	fe := w.fileEntry(f, pos, acc.nextUniqueID(false))
	fe.ICBTag.FileType = ICBFileTypeFile
	fe.Permissions = permFile
	fe.FileLinkCount = 1
	fe.InformationLength = uint64(f.size)

	if w.embeddable(f.size) {
		fe.ICBTag.Flags = AllocEmbedded
		data := make([]byte, f.size)
		if ph.emitting() {
			if err := w.readEmbedded(f, data); err != nil {
				return err
			}
		}
		fe.AllocationDescriptors = view(data)
		if err := w.putDescriptor(ph, abs(pos), fe, f.path); err != nil {
			return err
		}
		if ph.emitting() && l.Progress(f.path, f.size, f.size) == Abort {
			return ErrAborted
		}
		return nil
	}

	blocks := util.CeilDiv(f.size, int64(w.cfg.BlockSize))
	start := acc.allocate(blocks)
	ads, err := EncodeShortADs(w.extents(f.size, start))
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	fe.ICBTag.Flags = AllocShort
	fe.LogicalBlocksRecorded = uint64(blocks)
	fe.AllocationDescriptors = ads
	if err := w.putDescriptor(ph, abs(pos), fe, f.path); err != nil {
		return err
	}
	if !ph.emitting() {
		ph.skip(abs(start), uint32(blocks))
		return nil
	}
	return w.streamFile(ph, l, f, start)
}

func sourceChanged(f *node, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSourceChanged, f.path, fmt.Sprintf(format, args...))
}

// openSource re-measures f and opens it.
func (w *Writer) openSource(f *node) (io.ReadCloser, error) {
	size, err := f.src.Size()
	if err != nil {
		return nil, ioErr("measure", f.path, err)
	}
	if size != f.size {
		return nil, sourceChanged(f, "measured %d bytes, now %d", f.size, size)
	}
	rc, err := f.src.Open()
	if err != nil {
		return nil, ioErr("open", f.path, err)
	}
	return rc, nil
}

// readFull fills p from r, reporting a short source as a change.
func readFull(r io.Reader, p []byte, f *node, done int64) error {
	n, err := io.ReadFull(r, p)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return sourceChanged(f, "ended after %d of %d bytes", done+int64(n), f.size)
	}
	return ioErr("read", f.path, err)
}

// checkExhausted fails when r still has data past the measured size.
func checkExhausted(r io.Reader, f *node) error {
	var probe [1]byte
	n, err := io.ReadFull(r, probe[:])
	if n > 0 {
		return sourceChanged(f, "grew past %d bytes", f.size)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return ioErr("read", f.path, err)
	}
	return nil
}

func (w *Writer) readEmbedded(f *node, data []byte) (err error) {
	rc, err := w.openSource(f)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ioErr("close", f.path, rc.Close())) }()
	if err := readFull(rc, data, f, 0); err != nil {
		return err
	}
	return checkExhausted(rc, f)
}

// streamFile copies the data of f to consecutive blocks from start.
func (w *Writer) streamFile(ph phase, l Listener, f *node, start uint32) (err error) {
	rc, err := w.openSource(f)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ioErr("close", f.path, rc.Close())) }()

	bs := w.cfg.BlockSize
	block := start
	var done int64
	for done < f.size {
		n := int(min(int64(len(w.chunk)), f.size-done))
		if err := readFull(rc, w.chunk[:n], f, done); err != nil {
			return err
		}
		padded := (n + bs - 1) / bs * bs
		clear(w.chunk[n:padded])
		for off := 0; off < padded; off += bs {
			if err := w.put(ph, abs(block), w.chunk[off:off+bs], f.path); err != nil {
				return err
			}
			block++
		}
		done += int64(n)
		if l.Progress(f.path, done, f.size) == Abort {
			return ErrAborted
		}
	}
	return checkExhausted(rc, f)
}

// writeSpaceBitmap streams the bitmap descriptor: used blocks clear, free
// blocks set, and the bitmap's own blocks clear.
func (w *Writer) writeSpaceBitmap(ph phase, g geometry) error {
	block := abs(g.bitmapLocation)
	bw := buffer.NewBitWriter(w.cfg.BlockSize, func(p []byte) error {
		err := w.put(ph, block, p, "space bitmap")
		block++
		return err
	})
	sbd := &SpaceBitmapDescriptor{
		DescriptorTag: NewTag(TagSpaceBitmap, g.bitmapLocation),
		NumberOfBits:  g.partitionLen,
		NumberOfBytes: g.bitmapBytes,
	}
	hdr := make([]byte, spaceBitmapHdrSize)
	if _, err := sbd.Write(hdr, 0); err != nil {
		return err
	}
	if err := bw.WriteBytes(hdr); err != nil {
		return err
	}
	for _, run := range []struct {
		set bool
		n   uint32
	}{{false, g.used}, {true, g.free}, {false, g.bitmapBlocks}} {
		if err := bw.WriteRun(run.set, int64(run.n)); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if bw.Blocks() != int64(g.bitmapBlocks) {
		panic(fmt.Sprintf("udf: space bitmap took %d blocks, resolved %d", bw.Blocks(), g.bitmapBlocks))
	}
	return nil
}

func (w *Writer) writeIntegrity(ph phase, g geometry, acc *layout) error {
	info, err := IntegrityInfo{
		ImplementationIdentifier: ImplementationEntity(),
		NumberOfFiles:            acc.files,
		NumberOfDirectories:      acc.dirs,
		MinimumUDFReadRevision:   UDFRevision,
		MinimumUDFWriteRevision:  UDFRevision,
		MaximumUDFWriteRevision:  UDFRevision,
	}.Encode()
	if err != nil {
		return err
	}
	lvid := &LogicalVolumeIntegrityDescriptor{
		DescriptorTag:        NewTag(TagLogicalVolumeInteg, integrityBlock),
		RecordingDateAndTime: NewTimestamp(w.recorded),
		IntegrityType:        IntegrityClose,
		UniqueID:             acc.uniqueID,
		FreeSpaceTable:       []uint32{g.free},
		SizeTable:            []uint32{g.partitionLen},
		ImplementationUse:    info,
	}
	if err := w.putDescriptor(ph, integrityBlock, lvid, "integrity sequence"); err != nil {
		return err
	}
	td := &TerminatingDescriptor{DescriptorTag: NewTag(TagTerminating, integrityBlock+1)}
	return w.putDescriptor(ph, integrityBlock+1, td, "integrity sequence")
}

// writeVolumeSequence writes one copy of the volume descriptor sequence
// at base.
func (w *Writer) writeVolumeSequence(ph phase, g geometry, base uint32) error {
	bs := uint32(w.cfg.BlockSize)
	ts := NewTimestamp(w.recorded)

	pvd := &PrimaryVolumeDescriptor{
		DescriptorTag:               NewTag(TagPrimaryVolume, base),
		VolumeIdentifier:            truncateString(w.label, 30),
		VolumeSequenceNumber:        1,
		MaximumVolumeSequenceNumber: 1,
		InterchangeLevel:            2,
		MaximumInterchangeLevel:     3,
		CharacterSetList:            1,
		MaximumCharacterSetList:     1,
		VolumeSetIdentifier:         truncateString(w.volSetID+w.label, 126),
		DescriptorCharacterSet:      OSTACharSpec(),
		ExplanatoryCharacterSet:     OSTACharSpec(),
		ApplicationIdentifier:       ImplementationEntity(),
		RecordingDateAndTime:        ts,
		ImplementationIdentifier:    ImplementationEntity(),
	}
	lvd := &LogicalVolumeDescriptor{
		DescriptorTag:                  NewTag(TagLogicalVolume, base+1),
		VolumeDescriptorSequenceNumber: 1,
		DescriptorCharacterSet:         OSTACharSpec(),
		LogicalVolumeIdentifier:        truncateString(w.label, 126),
		LogicalBlockSize:               bs,
		DomainIdentifier:               DomainEntity(),
		FileSetLocation:                LongAD{Length: bs},
		ImplementationIdentifier:       ImplementationEntity(),
		IntegritySequenceExtent:        ExtentAD{Length: SequenceBlocks * bs, Location: integrityBlock},
		PartitionMaps:                  []PartitionMap{{VolumeSequenceNumber: 1, PartitionNumber: 0}},
	}
	pd := &PartitionDescriptor{
		DescriptorTag:                  NewTag(TagPartition, base+2),
		VolumeDescriptorSequenceNumber: 2,
		PartitionFlags:                 1,
		PartitionContents:              EntityID{Identifier: IdentNSR02, Suffix: UDFSuffix{}},
		AccessType:                     AccessOverwritable,
		PartitionStartingLocation:      g.partitionStart,
		PartitionLength:                g.partitionLen,
		ImplementationIdentifier:       ImplementationEntity(),
	}
	err := pd.SetPartitionHeader(PartitionHeaderDescriptor{
		UnallocatedSpaceBitmap: ShortAD{Length: spaceBitmapHdrSize + g.bitmapBytes, Position: g.bitmapLocation},
	})
	if err != nil {
		return err
	}
	usd := &UnallocatedSpaceDescriptor{
		DescriptorTag:                  NewTag(TagUnallocatedSpace, base+3),
		VolumeDescriptorSequenceNumber: 3,
	}
	iuvd := &ImplementationUseVolumeDescriptor{
		DescriptorTag:                  NewTag(TagImplementationVolume, base+4),
		VolumeDescriptorSequenceNumber: 4,
		ImplementationIdentifier:       UDFEntity(IdentUDFLVInfo),
	}
	err = iuvd.SetLVInfo(LVInformation{
		Charset:                  OSTACharSpec(),
		LogicalVolumeIdentifier:  truncateString(w.label, 126),
		ImplementationIdentifier: ImplementationEntity(),
	})
	if err != nil {
		return err
	}
	td := &TerminatingDescriptor{DescriptorTag: NewTag(TagTerminating, base+5)}

	for i, d := range []Descriptor{pvd, lvd, pd, usd, iuvd, td} {
		if err := w.putDescriptor(ph, base+uint32(i), d, "volume descriptor sequence"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeAnchor(ph phase, g geometry, at uint32) error {
	length := SequenceBlocks * uint32(w.cfg.BlockSize)
	avdp := &AnchorVolumeDescriptorPointer{
		DescriptorTag:                         NewTag(TagAnchorVolume, at),
		MainVolumeDescriptorSequenceExtent:    ExtentAD{Length: length, Location: mainVDSBlock},
		ReserveVolumeDescriptorSequenceExtent: ExtentAD{Length: length, Location: g.reserveVDS},
	}
	return w.putDescriptor(ph, at, avdp, "anchor")
}
