package udf

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/buffer"
)

// maxSequenceHops bounds how many volume descriptor pointers are followed.
const maxSequenceHops = 16

// MountOptions configure a Reader.
type MountOptions struct {
	Compliance Compliance
	Logger     *zap.Logger
}

// Reader provides read access to a volume on a block device.
type Reader struct {
	dev        blockdev.Device
	compliance Compliance
	log        *zap.Logger
	blockSize  int

	pvd  *PrimaryVolumeDescriptor
	lvd  *LogicalVolumeDescriptor
	pd   *PartitionDescriptor
	iuvd *ImplementationUseVolumeDescriptor
	lvid *LogicalVolumeIntegrityDescriptor
	fsd  *FileSetDescriptor

	info VolumeInfo
	root *Directory
}

// volumeSequence collects the prevailing descriptors of one sequence.
type volumeSequence struct {
	pvd  *PrimaryVolumeDescriptor
	lvd  *LogicalVolumeDescriptor
	pd   *PartitionDescriptor
	iuvd *ImplementationUseVolumeDescriptor
}

// Mount validates the volume on dev and reads its file set.
func Mount(dev blockdev.Device, opts MountOptions) (*Reader, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reader{
		dev:        dev,
		compliance: opts.Compliance,
		log:        log,
		blockSize:  dev.BlockSize(),
	}
	if err := r.verifyRecognition(); err != nil {
		return nil, fmt.Errorf("not a valid UDF volume: %w", err)
	}
	anchor, err := r.findAnchor()
	if err != nil {
		return nil, fmt.Errorf("failed to find anchor volume descriptor: %w", err)
	}
	seq, err := r.readVolumeSequence(anchor.MainVolumeDescriptorSequenceExtent)
	if err != nil {
		r.log.Warn("main volume descriptor sequence unusable, trying reserve", zap.Error(err))
		var rerr error
		if seq, rerr = r.readVolumeSequence(anchor.ReserveVolumeDescriptorSequenceExtent); rerr != nil {
			return nil, fmt.Errorf("failed to read volume descriptor sequence: %w", errors.Join(err, rerr))
		}
	}
	r.pvd, r.lvd, r.pd, r.iuvd = seq.pvd, seq.lvd, seq.pd, seq.iuvd
	if err := r.validateVolume(); err != nil {
		return nil, err
	}
	if err := r.readIntegrity(); err != nil {
		return nil, err
	}
	if err := r.readFileSet(); err != nil {
		return nil, err
	}
	if err := r.fillInfo(); err != nil {
		return nil, err
	}
	r.log.Debug("mounted volume",
		zap.String("label", r.info.Label),
		zap.Int("block_size", r.blockSize),
		zap.Uint32("partition_start", r.info.PartitionStart),
		zap.Uint32("partition_length", r.info.PartitionLength),
		zap.Uint32("files", r.info.Files),
		zap.Uint32("directories", r.info.Directories),
		zap.Int64("bitmap_free", r.info.BitmapFreeBlocks))
	return r, nil
}

// Info describes the mounted volume.
func (r *Reader) Info() VolumeInfo { return r.info }

// GetVolumeLabel returns the logical volume identifier.
func (r *Reader) GetVolumeLabel() string { return r.info.Label }

// FreeBlocks is the number of free blocks recorded in the space bitmap,
// or -1 when the partition has none.
func (r *Reader) FreeBlocks() int64 { return r.info.BitmapFreeBlocks }

func (r *Reader) parseOptions(check bool, location uint32) ParseOptions {
	return ParseOptions{Compliance: r.compliance, CheckLocation: check, Location: location}
}

// readBlock returns a fresh copy of an absolute block. Parsed descriptors
// keep views into it.
func (r *Reader) readBlock(block uint32) ([]byte, error) {
	b := make([]byte, r.blockSize)
	if err := r.dev.ReadBlock(int64(block), b); err != nil {
		return nil, ioErr("read", fmt.Sprintf("block %d", block), err)
	}
	return b, nil
}

// readDescriptor parses the descriptor at an absolute block.
func (r *Reader) readDescriptor(block uint32) (Descriptor, error) {
	b, err := r.readBlock(block)
	if err != nil {
		return nil, err
	}
	return Parse(b, 0, r.parseOptions(true, block))
}

// verifyRecognition scans the volume recognition sequence for an NSR
// descriptor between BEA01 and TEA01.
func (r *Reader) verifyRecognition() error {
	unit := max(vrsUnit, r.blockSize)
	var seen []string
	foundNSR, inExtended := false, false
scan:
	for i := 0; i < 16; i++ {
		b, err := r.readBlock(uint32((ReservedBytes + i*unit) / r.blockSize))
		if err != nil {
			return err
		}
		id := strings.TrimRight(string(b[1:6]), "\x00")
		seen = append(seen, id)
		switch id {
		case StandardIDBEA01:
			inExtended = true
		case StandardIDNSR02, StandardIDNSR03:
			if !inExtended && r.compliance == Strict {
				return fmt.Errorf("%w: %s outside an extended area", ErrFormat, id)
			}
			foundNSR = true
		case StandardIDTEA01, "":
			break scan
		default:
			if foundNSR {
				break scan
			}
		}
	}
	if !foundNSR {
		return fmt.Errorf("%w: NSR descriptor not found, scanned %v", ErrFormat, seen)
	}
	return nil
}

// findAnchor reads the anchor pointer at block 256, falling back to the
// copies at the end of the volume.
func (r *Reader) findAnchor() (*AnchorVolumeDescriptorPointer, error) {
	last := r.dev.Size() - 1
	var errs []error
	for _, block := range []int64{AnchorBlock, last, last - AnchorBlock} {
		if block < AnchorBlock || block > last {
			continue
		}
		d, err := r.readDescriptor(uint32(block))
		if err != nil {
			errs = append(errs, fmt.Errorf("block %d: %w", block, err))
			continue
		}
		if avdp, ok := d.(*AnchorVolumeDescriptorPointer); ok {
			return avdp, nil
		}
		errs = append(errs, fmt.Errorf("block %d: %w: found %s", block, ErrFormat, d.Header().Identifier))
	}
	return nil, errors.Join(errs...)
}

// readVolumeSequence walks one copy of the volume descriptor sequence,
// keeping the descriptor with the highest sequence number of each kind.
func (r *Reader) readVolumeSequence(extent ExtentAD) (volumeSequence, error) {
	var seq volumeSequence
	for hops := 0; ; hops++ {
		if hops == maxSequenceHops {
			return seq, fmt.Errorf("%w: descriptor pointer chain too long", ErrFormat)
		}
		next, done, err := r.readSequenceExtent(extent, &seq)
		if err != nil {
			return seq, err
		}
		if done {
			break
		}
		extent = next
	}
	switch {
	case seq.pvd == nil:
		return seq, fmt.Errorf("%w: no primary volume descriptor", ErrFormat)
	case seq.lvd == nil:
		return seq, fmt.Errorf("%w: no logical volume descriptor", ErrFormat)
	case seq.pd == nil:
		return seq, fmt.Errorf("%w: no partition descriptor", ErrFormat)
	}
	return seq, nil
}

// readSequenceExtent reads descriptors until a terminator, the end of the
// extent or a pointer to the next extent.
func (r *Reader) readSequenceExtent(extent ExtentAD, seq *volumeSequence) (ExtentAD, bool, error) {
	blocks := extent.Length / uint32(r.blockSize)
	for i := uint32(0); i < blocks; i++ {
		d, err := r.readDescriptor(extent.Location + i)
		if err != nil {
			return ExtentAD{}, false, err
		}
		switch v := d.(type) {
		case *PrimaryVolumeDescriptor:
			if seq.pvd == nil || v.VolumeDescriptorSequenceNumber >= seq.pvd.VolumeDescriptorSequenceNumber {
				seq.pvd = v
			}
		case *LogicalVolumeDescriptor:
			if seq.lvd == nil || v.VolumeDescriptorSequenceNumber >= seq.lvd.VolumeDescriptorSequenceNumber {
				seq.lvd = v
			}
		case *PartitionDescriptor:
			if seq.pd != nil && seq.pd.PartitionNumber != v.PartitionNumber {
				return ExtentAD{}, false, fmt.Errorf("%w: more than one partition", ErrUnsupported)
			}
			if seq.pd == nil || v.VolumeDescriptorSequenceNumber >= seq.pd.VolumeDescriptorSequenceNumber {
				seq.pd = v
			}
		case *ImplementationUseVolumeDescriptor:
			if v.ImplementationIdentifier.Identifier == IdentUDFLVInfo {
				seq.iuvd = v
			}
		case *UnallocatedSpaceDescriptor:
		case *VolumeDescriptorPointer:
			return v.NextVolumeDescriptorSequenceExtent, false, nil
		case *TerminatingDescriptor:
			return ExtentAD{}, true, nil
		default:
			return ExtentAD{}, false, fmt.Errorf("%w: %s in volume descriptor sequence", ErrFormat, d.Header().Identifier)
		}
	}
	return ExtentAD{}, true, nil
}

// validateVolume checks that the logical volume is a single type 1
// partition of a revision this package reads.
func (r *Reader) validateVolume() error {
	lvd, pd := r.lvd, r.pd
	if int(lvd.LogicalBlockSize) != r.blockSize {
		return fmt.Errorf("%w: logical block size %d, device uses %d", ErrFormat, lvd.LogicalBlockSize, r.blockSize)
	}
	if err := r.checkDomain(lvd.DomainIdentifier); err != nil {
		return fmt.Errorf("logical volume: %w", err)
	}
	if len(lvd.PartitionMaps) != 1 {
		return fmt.Errorf("%w: %d partition maps", ErrUnsupported, len(lvd.PartitionMaps))
	}
	if m := lvd.PartitionMaps[0]; m.PartitionNumber != pd.PartitionNumber {
		return fmt.Errorf("%w: partition map refers to partition %d, descriptor is %d", ErrFormat, m.PartitionNumber, pd.PartitionNumber)
	}
	switch pd.PartitionContents.Identifier {
	case IdentNSR02:
	case IdentNSR03:
		if r.compliance == Strict {
			return fmt.Errorf("%w: partition contents %s", ErrUnsupported, IdentNSR03)
		}
	default:
		return fmt.Errorf("%w: partition contents %q", ErrFormat, pd.PartitionContents.Identifier)
	}
	if end := int64(pd.PartitionStartingLocation) + int64(pd.PartitionLength); end > r.dev.Size() {
		return fmt.Errorf("%w: partition ends at block %d, device has %d", ErrFormat, end, r.dev.Size())
	}
	return nil
}

// checkDomain requires the OSTA domain at a revision no newer than ours.
func (r *Reader) checkDomain(e EntityID) error {
	if e.Identifier != DomainOSTACompliant {
		return fmt.Errorf("%w: domain %q", ErrFormat, e.Identifier)
	}
	s, ok := e.Suffix.(DomainSuffix)
	if !ok {
		return fmt.Errorf("%w: domain suffix", ErrFormat)
	}
	if s.Revision > UDFRevision {
		return fmt.Errorf("%w: UDF revision %x.%02x", ErrUnsupported, s.Revision>>8, s.Revision&0xff)
	}
	return nil
}

// readIntegrity finds the last integrity descriptor of the integrity
// sequence. Strict mounts require it to be closed.
func (r *Reader) readIntegrity() error {
	extent := r.lvd.IntegritySequenceExtent
	for hops := 0; extent.Length > 0 && hops < maxSequenceHops; hops++ {
		var next ExtentAD
		blocks := extent.Length / uint32(r.blockSize)
	scan:
		for i := uint32(0); i < blocks; i++ {
			d, err := r.readDescriptor(extent.Location + i)
			if err != nil {
				return fmt.Errorf("integrity sequence: %w", err)
			}
			switch v := d.(type) {
			case *LogicalVolumeIntegrityDescriptor:
				r.lvid = v
				next = v.NextIntegrityExtent
			case *TerminatingDescriptor:
				break scan
			default:
				return fmt.Errorf("%w: %s in integrity sequence", ErrFormat, d.Header().Identifier)
			}
		}
		extent = next
	}
	if r.lvid == nil {
		if r.compliance == Strict {
			return fmt.Errorf("%w: no logical volume integrity descriptor", ErrFormat)
		}
		r.log.Warn("volume has no integrity descriptor")
		return nil
	}
	if r.lvid.IntegrityType != IntegrityClose {
		if r.compliance == Strict {
			return fmt.Errorf("%w: logical volume integrity is open", ErrFormat)
		}
		r.log.Warn("logical volume integrity is open")
	}
	return nil
}

func (r *Reader) readFileSet() error {
	loc := r.lvd.FileSetLocation
	if loc.Location.Partition != 0 {
		return fmt.Errorf("%w: file set in partition reference %d", ErrUnsupported, loc.Location.Partition)
	}
	d, err := r.readPartitionDescriptor(loc.Location.Block)
	if err != nil {
		return fmt.Errorf("failed to read file set descriptor: %w", err)
	}
	fsd, ok := d.(*FileSetDescriptor)
	if !ok {
		return fmt.Errorf("%w: %s at file set location", ErrFormat, d.Header().Identifier)
	}
	if err := r.checkDomain(fsd.DomainIdentifier); err != nil {
		return fmt.Errorf("file set: %w", err)
	}
	r.fsd = fsd
	root, err := r.newDirectory(nil, "", fsd.RootDirectoryICB)
	if err != nil {
		return fmt.Errorf("root directory: %w", err)
	}
	r.root = root
	return nil
}

// partitionBlock converts a partition block to an absolute one.
func (r *Reader) partitionBlock(pos uint32) (uint32, error) {
	if pos >= r.pd.PartitionLength {
		return 0, fmt.Errorf("%w: partition block %d past partition length %d", ErrFormat, pos, r.pd.PartitionLength)
	}
	return r.pd.PartitionStartingLocation + pos, nil
}

// readPartitionDescriptor parses the descriptor at a partition block.
func (r *Reader) readPartitionDescriptor(pos uint32) (Descriptor, error) {
	block, err := r.partitionBlock(pos)
	if err != nil {
		return nil, err
	}
	b, err := r.readBlock(block)
	if err != nil {
		return nil, err
	}
	return Parse(b, 0, r.parseOptions(true, pos))
}

func (r *Reader) fillInfo() error {
	r.info = VolumeInfo{
		Label:            r.lvd.LogicalVolumeIdentifier,
		VolumeSetID:      r.pvd.VolumeSetIdentifier,
		BlockSize:        r.blockSize,
		Blocks:           r.dev.Size(),
		PartitionStart:   r.pd.PartitionStartingLocation,
		PartitionLength:  r.pd.PartitionLength,
		BitmapFreeBlocks: -1,
		Recorded:         r.pvd.RecordingDateAndTime.Time(),
		Implementation:   r.pvd.ImplementationIdentifier.Identifier,
	}
	if r.info.Label == "" {
		r.info.Label = r.pvd.VolumeIdentifier
	}
	if r.lvid != nil {
		if len(r.lvid.FreeSpaceTable) > 0 {
			r.info.FreeBlocks = r.lvid.FreeSpaceTable[0]
		}
		r.info.NextUniqueID = r.lvid.UniqueID
		if ii, err := r.lvid.Info(); err == nil {
			r.info.Files = ii.NumberOfFiles
			r.info.Directories = ii.NumberOfDirectories
		} else if r.compliance == Strict {
			return fmt.Errorf("integrity implementation use: %w", err)
		}
	}
	free, err := r.countFreeBlocks()
	if err != nil {
		return fmt.Errorf("space bitmap: %w", err)
	}
	r.info.BitmapFreeBlocks = free
	return nil
}

// countFreeBlocks counts the set bits of the partition's space bitmap.
func (r *Reader) countFreeBlocks() (int64, error) {
	hdr, err := r.pd.PartitionHeader()
	if err != nil {
		return -1, err
	}
	ad := hdr.UnallocatedSpaceBitmap
	if ad.Length == 0 {
		return -1, nil
	}
	first, err := r.partitionBlock(ad.Position)
	if err != nil {
		return -1, err
	}
	blocks := (int64(ad.Length) + int64(r.blockSize) - 1) / int64(r.blockSize)
	if int64(first)+blocks > r.dev.Size() {
		return -1, fmt.Errorf("%w: space bitmap runs past the device", ErrFormat)
	}
	data := make([]byte, 0, blocks*int64(r.blockSize))
	for i := range blocks {
		b, err := r.readBlock(first + uint32(i))
		if err != nil {
			return -1, err
		}
		data = append(data, b...)
	}
	d, err := Parse(data, 0, r.parseOptions(true, ad.Position))
	if err != nil {
		return -1, err
	}
	sbd, ok := d.(*SpaceBitmapDescriptor)
	if !ok {
		return -1, fmt.Errorf("%w: %s at space bitmap location", ErrFormat, d.Header().Identifier)
	}
	if sbd.NumberOfBits != r.pd.PartitionLength && r.compliance == Strict {
		return -1, fmt.Errorf("%w: bitmap covers %d blocks, partition has %d", ErrBadLength, sbd.NumberOfBits, r.pd.PartitionLength)
	}
	br := buffer.NewBitReader(sbd.Bitmap)
	ones, ok := br.CountOnes(int64(sbd.NumberOfBits))
	if !ok {
		return -1, fmt.Errorf("%w: bitmap holds %d bytes for %d bits", ErrBadLength, len(sbd.Bitmap), sbd.NumberOfBits)
	}
	return ones, nil
}

// DetectBlockSize probes the anchor location for every supported block
// size up to 4096 and returns the first that holds a valid anchor.
func DetectBlockSize(ra io.ReaderAt) (int, error) {
	for bs := 512; bs <= 4096; bs *= 2 {
		b := make([]byte, bs)
		if _, err := ra.ReadAt(b, int64(AnchorBlock)*int64(bs)); err != nil && !errors.Is(err, io.EOF) {
			continue
		}
		if isAnchor(b) {
			return bs, nil
		}
	}
	return 0, fmt.Errorf("%w: no anchor volume descriptor pointer at block %d", ErrFormat, AnchorBlock)
}

// HasAnchor reports whether dev holds an anchor volume descriptor pointer
// at block 256 for its own block size.
func HasAnchor(dev blockdev.Device) bool {
	if dev.Size() <= AnchorBlock {
		return false
	}
	b := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(AnchorBlock, b); err != nil {
		return false
	}
	return isAnchor(b)
}

func isAnchor(b []byte) bool {
	d, err := Parse(b, 0, ParseOptions{CheckLocation: true, Location: AnchorBlock})
	if err != nil {
		return false
	}
	_, ok := d.(*AnchorVolumeDescriptorPointer)
	return ok
}
