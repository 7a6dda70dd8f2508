package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// Most volume descriptors occupy a fixed 512 bytes.
const volumeDescSize = 512

// AnchorVolumeDescriptorPointer locates both volume descriptor sequences.
type AnchorVolumeDescriptorPointer struct {
	DescriptorTag                         Tag
	MainVolumeDescriptorSequenceExtent    ExtentAD
	ReserveVolumeDescriptorSequenceExtent ExtentAD
}

func (d *AnchorVolumeDescriptorPointer) Header() Tag { return d.DescriptorTag }

func (d *AnchorVolumeDescriptorPointer) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	putExtentAD(p, 16, d.MainVolumeDescriptorSequenceExtent)
	putExtentAD(p, 24, d.ReserveVolumeDescriptorSequenceExtent)
	sealTag(p, d.DescriptorTag, TagAnchorVolume, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parseAnchor(b []byte, tag Tag) (*AnchorVolumeDescriptorPointer, error) {
	p, err := region(b, 0, 32)
	if err != nil {
		return nil, err
	}
	return &AnchorVolumeDescriptorPointer{
		DescriptorTag:                         tag,
		MainVolumeDescriptorSequenceExtent:    getExtentAD(p, 16),
		ReserveVolumeDescriptorSequenceExtent: getExtentAD(p, 24),
	}, nil
}

// VolumeDescriptorPointer continues a descriptor sequence elsewhere.
type VolumeDescriptorPointer struct {
	DescriptorTag                      Tag
	VolumeDescriptorSequenceNumber     uint32
	NextVolumeDescriptorSequenceExtent ExtentAD
}

func (d *VolumeDescriptorPointer) Header() Tag { return d.DescriptorTag }

func (d *VolumeDescriptorPointer) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	putExtentAD(p, 20, d.NextVolumeDescriptorSequenceExtent)
	sealTag(p, d.DescriptorTag, TagVolumePointer, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parseVolumePointer(b []byte, tag Tag) (*VolumeDescriptorPointer, error) {
	p, err := region(b, 0, 28)
	if err != nil {
		return nil, err
	}
	return &VolumeDescriptorPointer{
		DescriptorTag:                      tag,
		VolumeDescriptorSequenceNumber:     util.U32(p, 16),
		NextVolumeDescriptorSequenceExtent: getExtentAD(p, 20),
	}, nil
}

// PrimaryVolumeDescriptor identifies the volume and its volume set.
type PrimaryVolumeDescriptor struct {
	DescriptorTag                               Tag
	VolumeDescriptorSequenceNumber              uint32
	PrimaryVolumeDescriptorNumber               uint32
	VolumeIdentifier                            string
	VolumeSequenceNumber                        uint16
	MaximumVolumeSequenceNumber                 uint16
	InterchangeLevel                            uint16
	MaximumInterchangeLevel                     uint16
	CharacterSetList                            uint32
	MaximumCharacterSetList                     uint32
	VolumeSetIdentifier                         string
	DescriptorCharacterSet                      CharSpec
	ExplanatoryCharacterSet                     CharSpec
	VolumeAbstract                              ExtentAD
	VolumeCopyrightNotice                       ExtentAD
	ApplicationIdentifier                       EntityID
	RecordingDateAndTime                        Timestamp
	ImplementationIdentifier                    EntityID
	ImplementationUse                           [64]byte
	PredecessorVolumeDescriptorSequenceLocation uint32
	Flags                                       uint16
}

func (d *PrimaryVolumeDescriptor) Header() Tag { return d.DescriptorTag }

func (d *PrimaryVolumeDescriptor) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	util.PutU32(p, 20, d.PrimaryVolumeDescriptorNumber)
	if err := putDString(p[24:56], d.VolumeIdentifier); err != nil {
		return off, fmt.Errorf("volume identifier: %w", err)
	}
	util.PutU16(p, 56, d.VolumeSequenceNumber)
	util.PutU16(p, 58, d.MaximumVolumeSequenceNumber)
	util.PutU16(p, 60, d.InterchangeLevel)
	util.PutU16(p, 62, d.MaximumInterchangeLevel)
	util.PutU32(p, 64, d.CharacterSetList)
	util.PutU32(p, 68, d.MaximumCharacterSetList)
	if err := putDString(p[72:200], d.VolumeSetIdentifier); err != nil {
		return off, fmt.Errorf("volume set identifier: %w", err)
	}
	if err := putCharSpec(p, 200, d.DescriptorCharacterSet); err != nil {
		return off, err
	}
	if err := putCharSpec(p, 264, d.ExplanatoryCharacterSet); err != nil {
		return off, err
	}
	putExtentAD(p, 328, d.VolumeAbstract)
	putExtentAD(p, 336, d.VolumeCopyrightNotice)
	if err := putEntityID(p, 344, d.ApplicationIdentifier); err != nil {
		return off, err
	}
	putTimestamp(p, 376, d.RecordingDateAndTime)
	if err := putEntityID(p, 388, d.ImplementationIdentifier); err != nil {
		return off, err
	}
	copy(p[420:484], d.ImplementationUse[:])
	util.PutU32(p, 484, d.PredecessorVolumeDescriptorSequenceLocation)
	util.PutU16(p, 488, d.Flags)
	sealTag(p, d.DescriptorTag, TagPrimaryVolume, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parsePrimaryVolume(b []byte, tag Tag, c Compliance) (*PrimaryVolumeDescriptor, error) {
	p, err := region(b, 0, 490)
	if err != nil {
		return nil, err
	}
	d := &PrimaryVolumeDescriptor{
		DescriptorTag:                  tag,
		VolumeDescriptorSequenceNumber: util.U32(p, 16),
		PrimaryVolumeDescriptorNumber:  util.U32(p, 20),
		VolumeSequenceNumber:           util.U16(p, 56),
		MaximumVolumeSequenceNumber:    util.U16(p, 58),
		InterchangeLevel:               util.U16(p, 60),
		MaximumInterchangeLevel:        util.U16(p, 62),
		CharacterSetList:               util.U32(p, 64),
		MaximumCharacterSetList:        util.U32(p, 68),
		DescriptorCharacterSet:         getCharSpec(p, 200),
		ExplanatoryCharacterSet:        getCharSpec(p, 264),
		VolumeAbstract:                 getExtentAD(p, 328),
		VolumeCopyrightNotice:          getExtentAD(p, 336),
		ApplicationIdentifier:          getEntityID(p, 344),
		RecordingDateAndTime:           getTimestamp(p, 376),
		ImplementationIdentifier:       getEntityID(p, 388),
		Flags:                          util.U16(p, 488),
	}
	d.PredecessorVolumeDescriptorSequenceLocation = util.U32(p, 484)
	copy(d.ImplementationUse[:], p[420:484])
	if d.VolumeIdentifier, err = getDString(p[24:56], c); err != nil {
		return nil, fmt.Errorf("volume identifier: %w", err)
	}
	if d.VolumeSetIdentifier, err = getDString(p[72:200], c); err != nil {
		return nil, fmt.Errorf("volume set identifier: %w", err)
	}
	return d, nil
}

// LVInformation is the "*UDF LV Info" implementation use area.
type LVInformation struct {
	Charset                  CharSpec
	LogicalVolumeIdentifier  string
	Info                     [3]string
	ImplementationIdentifier EntityID
	ImplementationUse        [128]byte
}

// ImplementationUseVolumeDescriptor carries implementation data, for UDF
// the logical volume information.
type ImplementationUseVolumeDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	ImplementationIdentifier       EntityID
	ImplementationUse              [460]byte
}

func (d *ImplementationUseVolumeDescriptor) Header() Tag { return d.DescriptorTag }

// SetLVInfo encodes info into the implementation use area.
func (d *ImplementationUseVolumeDescriptor) SetLVInfo(info LVInformation) error {
	u := d.ImplementationUse[:]
	clear(u)
	if err := putCharSpec(u, 0, info.Charset); err != nil {
		return err
	}
	if err := putDString(u[64:192], info.LogicalVolumeIdentifier); err != nil {
		return fmt.Errorf("logical volume identifier: %w", err)
	}
	for i, s := range info.Info {
		if err := putDString(u[192+36*i:228+36*i], s); err != nil {
			return fmt.Errorf("lv info %d: %w", i+1, err)
		}
	}
	if err := putEntityID(u, 300, info.ImplementationIdentifier); err != nil {
		return err
	}
	copy(u[332:460], info.ImplementationUse[:])
	return nil
}

// LVInfo decodes the implementation use area.
func (d *ImplementationUseVolumeDescriptor) LVInfo(c Compliance) (LVInformation, error) {
	if d.ImplementationIdentifier.Identifier != IdentUDFLVInfo {
		return LVInformation{}, fmt.Errorf("%w: implementation use %q", ErrUnsupported, d.ImplementationIdentifier.Identifier)
	}
	u := d.ImplementationUse[:]
	info := LVInformation{
		Charset:                  getCharSpec(u, 0),
		ImplementationIdentifier: getEntityID(u, 300),
	}
	copy(info.ImplementationUse[:], u[332:460])
	var err error
	if info.LogicalVolumeIdentifier, err = getDString(u[64:192], c); err != nil {
		return LVInformation{}, err
	}
	for i := range info.Info {
		if info.Info[i], err = getDString(u[192+36*i:228+36*i], c); err != nil {
			return LVInformation{}, err
		}
	}
	return info, nil
}

func (d *ImplementationUseVolumeDescriptor) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	if err := putEntityID(p, 20, d.ImplementationIdentifier); err != nil {
		return off, err
	}
	copy(p[52:512], d.ImplementationUse[:])
	sealTag(p, d.DescriptorTag, TagImplementationVolume, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parseImplementationUse(b []byte, tag Tag, c Compliance) (*ImplementationUseVolumeDescriptor, error) {
	p, err := region(b, 0, volumeDescSize)
	if err != nil {
		return nil, err
	}
	d := &ImplementationUseVolumeDescriptor{
		DescriptorTag:                  tag,
		VolumeDescriptorSequenceNumber: util.U32(p, 16),
		ImplementationIdentifier:       getEntityID(p, 20),
	}
	copy(d.ImplementationUse[:], p[52:512])
	if d.ImplementationIdentifier.Identifier == IdentUDFLVInfo {
		if _, err := d.LVInfo(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Partition access types
const (
	AccessReadOnly     = 1
	AccessWriteOnce    = 2
	AccessRewritable   = 3
	AccessOverwritable = 4
)

// PartitionHeaderDescriptor is the NSR partition contents use: where the
// space tables and bitmaps of the partition live.
type PartitionHeaderDescriptor struct {
	UnallocatedSpaceTable   ShortAD
	UnallocatedSpaceBitmap  ShortAD
	PartitionIntegrityTable ShortAD
	FreedSpaceTable         ShortAD
	FreedSpaceBitmap        ShortAD
}

// PartitionDescriptor describes the single partition of the volume.
type PartitionDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	PartitionFlags                 uint16
	PartitionNumber                uint16
	PartitionContents              EntityID
	PartitionContentsUse           [128]byte
	AccessType                     uint32
	PartitionStartingLocation      uint32
	PartitionLength                uint32
	ImplementationIdentifier       EntityID
	ImplementationUse              [128]byte
}

func (d *PartitionDescriptor) Header() Tag { return d.DescriptorTag }

// SetPartitionHeader encodes h into the partition contents use.
func (d *PartitionDescriptor) SetPartitionHeader(h PartitionHeaderDescriptor) error {
	u := d.PartitionContentsUse[:]
	clear(u)
	for i, ad := range []ShortAD{h.UnallocatedSpaceTable, h.UnallocatedSpaceBitmap, h.PartitionIntegrityTable, h.FreedSpaceTable, h.FreedSpaceBitmap} {
		if err := ad.put(u, i*shortADSize); err != nil {
			return err
		}
	}
	return nil
}

// PartitionHeader decodes the partition contents use.
func (d *PartitionDescriptor) PartitionHeader() (PartitionHeaderDescriptor, error) {
	u := d.PartitionContentsUse[:]
	var ads [5]ShortAD
	for i := range ads {
		ad, err := getShortAD(u, i*shortADSize)
		if err != nil {
			return PartitionHeaderDescriptor{}, err
		}
		ads[i] = ad
	}
	return PartitionHeaderDescriptor{ads[0], ads[1], ads[2], ads[3], ads[4]}, nil
}

func (d *PartitionDescriptor) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	util.PutU16(p, 20, d.PartitionFlags)
	util.PutU16(p, 22, d.PartitionNumber)
	if err := putEntityID(p, 24, d.PartitionContents); err != nil {
		return off, err
	}
	copy(p[56:184], d.PartitionContentsUse[:])
	util.PutU32(p, 184, d.AccessType)
	util.PutU32(p, 188, d.PartitionStartingLocation)
	util.PutU32(p, 192, d.PartitionLength)
	if err := putEntityID(p, 196, d.ImplementationIdentifier); err != nil {
		return off, err
	}
	copy(p[228:356], d.ImplementationUse[:])
	sealTag(p, d.DescriptorTag, TagPartition, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parsePartition(b []byte, tag Tag) (*PartitionDescriptor, error) {
	p, err := region(b, 0, 356)
	if err != nil {
		return nil, err
	}
	d := &PartitionDescriptor{
		DescriptorTag:                  tag,
		VolumeDescriptorSequenceNumber: util.U32(p, 16),
		PartitionFlags:                 util.U16(p, 20),
		PartitionNumber:                util.U16(p, 22),
		PartitionContents:              getEntityID(p, 24),
		AccessType:                     util.U32(p, 184),
		PartitionStartingLocation:      util.U32(p, 188),
		PartitionLength:                util.U32(p, 192),
		ImplementationIdentifier:       getEntityID(p, 196),
	}
	copy(d.PartitionContentsUse[:], p[56:184])
	copy(d.ImplementationUse[:], p[228:356])
	return d, nil
}

// PartitionMap is a type 1 map binding a partition reference number to a
// partition on a volume of the volume set.
type PartitionMap struct {
	VolumeSequenceNumber uint16
	PartitionNumber      uint16
}

const (
	partitionMapType1 = 1
	partitionMap1Len  = 6
	lvdFixedSize      = 440
)

// LogicalVolumeDescriptor names the logical volume, its block size and the
// location of its file set.
type LogicalVolumeDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	DescriptorCharacterSet         CharSpec
	LogicalVolumeIdentifier        string
	LogicalBlockSize               uint32
	DomainIdentifier               EntityID
	// FileSetLocation is the logical volume contents use: the extent of
	// the file set descriptor sequence.
	FileSetLocation          LongAD
	ImplementationIdentifier EntityID
	ImplementationUse        [128]byte
	IntegritySequenceExtent  ExtentAD
	PartitionMaps            []PartitionMap
}

func (d *LogicalVolumeDescriptor) Header() Tag { return d.DescriptorTag }

func (d *LogicalVolumeDescriptor) size() int {
	return lvdFixedSize + partitionMap1Len*len(d.PartitionMaps)
}

func (d *LogicalVolumeDescriptor) Write(b []byte, off int) (int, error) {
	n := d.size()
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	if err := putCharSpec(p, 20, d.DescriptorCharacterSet); err != nil {
		return off, err
	}
	if err := putDString(p[84:212], d.LogicalVolumeIdentifier); err != nil {
		return off, fmt.Errorf("logical volume identifier: %w", err)
	}
	util.PutU32(p, 212, d.LogicalBlockSize)
	if err := putEntityID(p, 216, d.DomainIdentifier); err != nil {
		return off, err
	}
	if err := d.FileSetLocation.put(p, 248); err != nil {
		return off, err
	}
	util.PutU32(p, 264, uint32(partitionMap1Len*len(d.PartitionMaps)))
	util.PutU32(p, 268, uint32(len(d.PartitionMaps)))
	if err := putEntityID(p, 272, d.ImplementationIdentifier); err != nil {
		return off, err
	}
	copy(p[304:432], d.ImplementationUse[:])
	putExtentAD(p, 432, d.IntegritySequenceExtent)
	for i, m := range d.PartitionMaps {
		at := lvdFixedSize + i*partitionMap1Len
		p[at] = partitionMapType1
		p[at+1] = partitionMap1Len
		util.PutU16(p, at+2, m.VolumeSequenceNumber)
		util.PutU16(p, at+4, m.PartitionNumber)
	}
	sealTag(p, d.DescriptorTag, TagLogicalVolume, n-tagSize)
	return off + n, nil
}

func parseLogicalVolume(b []byte, tag Tag, c Compliance) (*LogicalVolumeDescriptor, error) {
	p, err := region(b, 0, lvdFixedSize)
	if err != nil {
		return nil, err
	}
	fsd, err := getLongAD(p, 248)
	if err != nil {
		return nil, err
	}
	d := &LogicalVolumeDescriptor{
		DescriptorTag:                  tag,
		VolumeDescriptorSequenceNumber: util.U32(p, 16),
		DescriptorCharacterSet:         getCharSpec(p, 20),
		LogicalBlockSize:               util.U32(p, 212),
		DomainIdentifier:               getEntityID(p, 216),
		FileSetLocation:                fsd,
		ImplementationIdentifier:       getEntityID(p, 272),
		IntegritySequenceExtent:        getExtentAD(p, 432),
	}
	copy(d.ImplementationUse[:], p[304:432])
	if d.LogicalVolumeIdentifier, err = getDString(p[84:212], c); err != nil {
		return nil, fmt.Errorf("logical volume identifier: %w", err)
	}
	tableLen, count := int(util.U32(p, 264)), int(util.U32(p, 268))
	maps, err := region(b, lvdFixedSize, tableLen)
	if err != nil {
		return nil, err
	}
	for off := 0; off < tableLen; {
		if tableLen-off < 2 {
			return nil, fmt.Errorf("%w: truncated partition map", ErrBadLength)
		}
		typ, n := maps[off], int(maps[off+1])
		if n < 2 || off+n > tableLen {
			return nil, fmt.Errorf("%w: partition map length %d", ErrBadLength, n)
		}
		if typ != partitionMapType1 || n != partitionMap1Len {
			return nil, fmt.Errorf("%w: partition map type %d", ErrUnsupported, typ)
		}
		d.PartitionMaps = append(d.PartitionMaps, PartitionMap{
			VolumeSequenceNumber: util.U16(maps, off+2),
			PartitionNumber:      util.U16(maps, off+4),
		})
		off += n
	}
	if len(d.PartitionMaps) != count {
		return nil, fmt.Errorf("%w: %d partition maps recorded, %d found", ErrBadLength, count, len(d.PartitionMaps))
	}
	return d, nil
}

// UnallocatedSpaceDescriptor lists volume space outside any partition.
type UnallocatedSpaceDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	AllocationDescriptors          []ExtentAD
}

func (d *UnallocatedSpaceDescriptor) Header() Tag { return d.DescriptorTag }

func (d *UnallocatedSpaceDescriptor) Write(b []byte, off int) (int, error) {
	n := 24 + extentADSize*len(d.AllocationDescriptors)
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.VolumeDescriptorSequenceNumber)
	util.PutU32(p, 20, uint32(len(d.AllocationDescriptors)))
	for i, e := range d.AllocationDescriptors {
		putExtentAD(p, 24+i*extentADSize, e)
	}
	sealTag(p, d.DescriptorTag, TagUnallocatedSpace, n-tagSize)
	return off + n, nil
}

func parseUnallocatedSpace(b []byte, tag Tag) (*UnallocatedSpaceDescriptor, error) {
	p, err := region(b, 0, 24)
	if err != nil {
		return nil, err
	}
	count := int64(util.U32(p, 20))
	if count > int64(len(b)-24)/extentADSize {
		return nil, fmt.Errorf("%w: %d unallocated extents", ErrBadLength, count)
	}
	d := &UnallocatedSpaceDescriptor{
		DescriptorTag:                  tag,
		VolumeDescriptorSequenceNumber: util.U32(p, 16),
	}
	for i := range int(count) {
		d.AllocationDescriptors = append(d.AllocationDescriptors, getExtentAD(b, 24+i*extentADSize))
	}
	return d, nil
}

// TerminatingDescriptor ends a descriptor sequence.
type TerminatingDescriptor struct {
	DescriptorTag Tag
}

func (d *TerminatingDescriptor) Header() Tag { return d.DescriptorTag }

func (d *TerminatingDescriptor) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, volumeDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	sealTag(p, d.DescriptorTag, TagTerminating, volumeDescSize-tagSize)
	return off + volumeDescSize, nil
}

func parseTerminating(_ []byte, tag Tag) (*TerminatingDescriptor, error) {
	return &TerminatingDescriptor{DescriptorTag: tag}, nil
}

// Integrity types
const (
	IntegrityOpen  = 0
	IntegrityClose = 1
)

const lvidImplUseSize = 46

// IntegrityInfo is the UDF implementation use of the integrity descriptor.
type IntegrityInfo struct {
	ImplementationIdentifier EntityID
	NumberOfFiles            uint32
	NumberOfDirectories      uint32
	MinimumUDFReadRevision   uint16
	MinimumUDFWriteRevision  uint16
	MaximumUDFWriteRevision  uint16
}

// Encode returns the 46-byte implementation use area for info.
func (info IntegrityInfo) Encode() ([]byte, error) {
	u := make([]byte, lvidImplUseSize)
	if err := putEntityID(u, 0, info.ImplementationIdentifier); err != nil {
		return nil, err
	}
	util.PutU32(u, 32, info.NumberOfFiles)
	util.PutU32(u, 36, info.NumberOfDirectories)
	util.PutU16(u, 40, info.MinimumUDFReadRevision)
	util.PutU16(u, 42, info.MinimumUDFWriteRevision)
	util.PutU16(u, 44, info.MaximumUDFWriteRevision)
	return u, nil
}

// LogicalVolumeIntegrityDescriptor records whether the volume is closed
// and its space and file accounting.
type LogicalVolumeIntegrityDescriptor struct {
	DescriptorTag        Tag
	RecordingDateAndTime Timestamp
	IntegrityType        uint32
	NextIntegrityExtent  ExtentAD
	// UniqueID is the next unique ID from the logical volume header.
	UniqueID          uint64
	FreeSpaceTable    []uint32
	SizeTable         []uint32
	ImplementationUse []byte
}

func (d *LogicalVolumeIntegrityDescriptor) Header() Tag { return d.DescriptorTag }

// Info decodes the UDF implementation use area.
func (d *LogicalVolumeIntegrityDescriptor) Info() (IntegrityInfo, error) {
	u := d.ImplementationUse
	if len(u) < lvidImplUseSize {
		return IntegrityInfo{}, fmt.Errorf("%w: integrity implementation use of %d bytes", ErrBadLength, len(u))
	}
	return IntegrityInfo{
		ImplementationIdentifier: getEntityID(u, 0),
		NumberOfFiles:            util.U32(u, 32),
		NumberOfDirectories:      util.U32(u, 36),
		MinimumUDFReadRevision:   util.U16(u, 40),
		MinimumUDFWriteRevision:  util.U16(u, 42),
		MaximumUDFWriteRevision:  util.U16(u, 44),
	}, nil
}

func (d *LogicalVolumeIntegrityDescriptor) Write(b []byte, off int) (int, error) {
	if len(d.FreeSpaceTable) != len(d.SizeTable) {
		return off, fmt.Errorf("%w: %d free entries for %d partitions", ErrBadLength, len(d.FreeSpaceTable), len(d.SizeTable))
	}
	parts := len(d.SizeTable)
	n := 80 + 8*parts + len(d.ImplementationUse)
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	putTimestamp(p, 16, d.RecordingDateAndTime)
	util.PutU32(p, 28, d.IntegrityType)
	putExtentAD(p, 32, d.NextIntegrityExtent)
	util.PutU64(p, 40, d.UniqueID)
	util.PutU32(p, 72, uint32(parts))
	util.PutU32(p, 76, uint32(len(d.ImplementationUse)))
	for i := range parts {
		util.PutU32(p, 80+4*i, d.FreeSpaceTable[i])
		util.PutU32(p, 80+4*parts+4*i, d.SizeTable[i])
	}
	copy(p[80+8*parts:], d.ImplementationUse)
	sealTag(p, d.DescriptorTag, TagLogicalVolumeInteg, n-tagSize)
	return off + n, nil
}

func parseIntegrity(b []byte, tag Tag) (*LogicalVolumeIntegrityDescriptor, error) {
	p, err := region(b, 0, 80)
	if err != nil {
		return nil, err
	}
	parts, implLen := int64(util.U32(p, 72)), int64(util.U32(p, 76))
	if 80+8*parts+implLen > int64(len(b)) {
		return nil, fmt.Errorf("%w: integrity tables of %d partitions", ErrBadLength, parts)
	}
	d := &LogicalVolumeIntegrityDescriptor{
		DescriptorTag:        tag,
		RecordingDateAndTime: getTimestamp(p, 16),
		IntegrityType:        util.U32(p, 28),
		NextIntegrityExtent:  getExtentAD(p, 32),
		UniqueID:             util.U64(p, 40),
	}
	np := int(parts)
	for i := range np {
		d.FreeSpaceTable = append(d.FreeSpaceTable, util.U32(b, 80+4*i))
		d.SizeTable = append(d.SizeTable, util.U32(b, 80+4*np+4*i))
	}
	start := 80 + 8*np
	d.ImplementationUse = view(b[start : start+int(implLen)])
	return d, nil
}
