package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// ICBTag is the information control block header of an entry.
type ICBTag struct {
	PriorRecordedNumberOfDirectEntries uint32
	StrategyType                       uint16
	StrategyParameter                  uint16
	MaximumNumberOfEntries             uint16
	FileType                           uint8
	ParentICBLocation                  LBAddr
	Flags                              uint16
}

// AllocationType is the form of the allocation descriptors, bits 0-2 of
// the flags.
func (t ICBTag) AllocationType() int {
	return int(t.Flags & 0x7)
}

func putICBTag(b []byte, off int, t ICBTag) {
	util.PutU32(b, off, t.PriorRecordedNumberOfDirectEntries)
	util.PutU16(b, off+4, t.StrategyType)
	util.PutU16(b, off+6, t.StrategyParameter)
	util.PutU16(b, off+8, t.MaximumNumberOfEntries)
	b[off+10] = 0
	b[off+11] = t.FileType
	putLBAddr(b, off+12, t.ParentICBLocation)
	util.PutU16(b, off+18, t.Flags)
}

func getICBTag(b []byte, off int) ICBTag {
	return ICBTag{
		PriorRecordedNumberOfDirectEntries: util.U32(b, off),
		StrategyType:                       util.U16(b, off+4),
		StrategyParameter:                  util.U16(b, off+6),
		MaximumNumberOfEntries:             util.U16(b, off+8),
		FileType:                           b[off+11],
		ParentICBLocation:                  getLBAddr(b, off+12),
		Flags:                              util.U16(b, off+18),
	}
}

// FileEntry is the metadata of a file or directory. AllocationDescriptors
// holds either packed short_ad or long_ad records or, for embedded files,
// the file data itself.
type FileEntry struct {
	DescriptorTag            Tag
	ICBTag                   ICBTag
	UID                      uint32
	GID                      uint32
	Permissions              uint32
	FileLinkCount            uint16
	RecordFormat             uint8
	RecordDisplayAttributes  uint8
	RecordLength             uint32
	InformationLength        uint64
	LogicalBlocksRecorded    uint64
	AccessTime               Timestamp
	ModificationTime         Timestamp
	AttributeTime            Timestamp
	Checkpoint               uint32
	ExtendedAttributeICB     LongAD
	ImplementationIdentifier EntityID
	UniqueID                 uint64
	ExtendedAttributes       []byte
	AllocationDescriptors    []byte
}

func (d *FileEntry) Header() Tag { return d.DescriptorTag }

// IsDirectory reports an ICB file type of directory.
func (d *FileEntry) IsDirectory() bool {
	return d.ICBTag.FileType == ICBFileTypeDirectory
}

// Size is the encoded length of the entry.
func (d *FileEntry) Size() int {
	return fileEntrySize + len(d.ExtendedAttributes) + len(d.AllocationDescriptors)
}

// ShortADs decodes short_ad allocation descriptors.
func (d *FileEntry) ShortADs() ([]ShortAD, error) {
	if t := d.ICBTag.AllocationType(); t != AllocShort {
		return nil, fmt.Errorf("%w: allocation type %d is not short", ErrFormat, t)
	}
	return DecodeShortADs(d.AllocationDescriptors)
}

// LongADs decodes long_ad allocation descriptors.
func (d *FileEntry) LongADs() ([]LongAD, error) {
	if t := d.ICBTag.AllocationType(); t != AllocLong {
		return nil, fmt.Errorf("%w: allocation type %d is not long", ErrFormat, t)
	}
	return DecodeLongADs(d.AllocationDescriptors)
}

func (d *FileEntry) Write(b []byte, off int) (int, error) {
	n := d.Size()
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	putICBTag(p, 16, d.ICBTag)
	util.PutU32(p, 36, d.UID)
	util.PutU32(p, 40, d.GID)
	util.PutU32(p, 44, d.Permissions)
	util.PutU16(p, 48, d.FileLinkCount)
	p[50] = d.RecordFormat
	p[51] = d.RecordDisplayAttributes
	util.PutU32(p, 52, d.RecordLength)
	util.PutU64(p, 56, d.InformationLength)
	util.PutU64(p, 64, d.LogicalBlocksRecorded)
	putTimestamp(p, 72, d.AccessTime)
	putTimestamp(p, 84, d.ModificationTime)
	putTimestamp(p, 96, d.AttributeTime)
	util.PutU32(p, 108, d.Checkpoint)
	if err := d.ExtendedAttributeICB.put(p, 112); err != nil {
		return off, err
	}
	if err := putEntityID(p, 128, d.ImplementationIdentifier); err != nil {
		return off, err
	}
	util.PutU64(p, 160, d.UniqueID)
	util.PutU32(p, 168, uint32(len(d.ExtendedAttributes)))
	util.PutU32(p, 172, uint32(len(d.AllocationDescriptors)))
	copy(p[fileEntrySize:], d.ExtendedAttributes)
	copy(p[fileEntrySize+len(d.ExtendedAttributes):], d.AllocationDescriptors)
	sealTag(p, d.DescriptorTag, TagFile, n-tagSize)
	return off + n, nil
}

func parseFileEntry(b []byte, tag Tag) (*FileEntry, error) {
	p, err := region(b, 0, fileEntrySize)
	if err != nil {
		return nil, err
	}
	lea, lad := int64(util.U32(p, 168)), int64(util.U32(p, 172))
	if fileEntrySize+lea+lad > int64(len(b)) {
		return nil, fmt.Errorf("%w: file entry tail of %d+%d bytes", ErrBadLength, lea, lad)
	}
	eaICB, err := getLongAD(p, 112)
	if err != nil {
		return nil, err
	}
	ea := int(lea)
	return &FileEntry{
		DescriptorTag:            tag,
		ICBTag:                   getICBTag(p, 16),
		UID:                      util.U32(p, 36),
		GID:                      util.U32(p, 40),
		Permissions:              util.U32(p, 44),
		FileLinkCount:            util.U16(p, 48),
		RecordFormat:             p[50],
		RecordDisplayAttributes:  p[51],
		RecordLength:             util.U32(p, 52),
		InformationLength:        util.U64(p, 56),
		LogicalBlocksRecorded:    util.U64(p, 64),
		AccessTime:               getTimestamp(p, 72),
		ModificationTime:         getTimestamp(p, 84),
		AttributeTime:            getTimestamp(p, 96),
		Checkpoint:               util.U32(p, 108),
		ExtendedAttributeICB:     eaICB,
		ImplementationIdentifier: getEntityID(p, 128),
		UniqueID:                 util.U64(p, 160),
		ExtendedAttributes:       view(b[fileEntrySize : fileEntrySize+ea]),
		AllocationDescriptors:    view(b[fileEntrySize+ea : fileEntrySize+ea+int(lad)]),
	}, nil
}

// TerminalEntry ends an ICB hierarchy.
type TerminalEntry struct {
	DescriptorTag Tag
	ICBTag        ICBTag
}

func (d *TerminalEntry) Header() Tag { return d.DescriptorTag }

func (d *TerminalEntry) Write(b []byte, off int) (int, error) {
	const n = tagSize + icbTagSize
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	putICBTag(p, 16, d.ICBTag)
	sealTag(p, d.DescriptorTag, TagTerminalEntry, n-tagSize)
	return off + n, nil
}

func parseTerminalEntry(b []byte, tag Tag) (*TerminalEntry, error) {
	p, err := region(b, 0, tagSize+icbTagSize)
	if err != nil {
		return nil, err
	}
	return &TerminalEntry{DescriptorTag: tag, ICBTag: getICBTag(p, 16)}, nil
}

// AllocationExtentDescriptor continues the allocation descriptors of an
// entry in a separate block.
type AllocationExtentDescriptor struct {
	DescriptorTag                    Tag
	PreviousAllocationExtentLocation uint32
	AllocationDescriptors            []byte
}

func (d *AllocationExtentDescriptor) Header() Tag { return d.DescriptorTag }

func (d *AllocationExtentDescriptor) Write(b []byte, off int) (int, error) {
	n := 24 + len(d.AllocationDescriptors)
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU32(p, 16, d.PreviousAllocationExtentLocation)
	util.PutU32(p, 20, uint32(len(d.AllocationDescriptors)))
	copy(p[24:], d.AllocationDescriptors)
	sealTag(p, d.DescriptorTag, TagAllocationExtent, n-tagSize)
	return off + n, nil
}

func parseAllocationExtent(b []byte, tag Tag) (*AllocationExtentDescriptor, error) {
	p, err := region(b, 0, 24)
	if err != nil {
		return nil, err
	}
	ads, err := region(b, 24, int(util.U32(p, 20)))
	if err != nil {
		return nil, err
	}
	return &AllocationExtentDescriptor{
		DescriptorTag:                    tag,
		PreviousAllocationExtentLocation: util.U32(p, 16),
		AllocationDescriptors:            view(ads),
	}, nil
}
