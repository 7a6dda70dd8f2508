// Package udf builds and reads volumes in the ECMA-167 / UDF 1.02 layout.
//
// A Writer turns a registered tree of directories and files into an exact
// sequence of blocks in two passes: Resolve measures the volume and fixes
// every position, Make emits the bytes. A Reader walks such a volume back
// into directories and files.
package udf

import (
	"math"
	"strconv"
)

// Standard identifiers of the volume recognition sequence.
const (
	StandardIDBEA01 = "BEA01"
	StandardIDNSR02 = "NSR02"
	StandardIDNSR03 = "NSR03"
	StandardIDTEA01 = "TEA01"
)

// TagIdentifier selects the descriptor variant that follows a tag.
type TagIdentifier uint16

// Descriptor tags
const (
	TagPrimaryVolume        TagIdentifier = 1
	TagAnchorVolume         TagIdentifier = 2
	TagVolumePointer        TagIdentifier = 3
	TagImplementationVolume TagIdentifier = 4
	TagPartition            TagIdentifier = 5
	TagLogicalVolume        TagIdentifier = 6
	TagUnallocatedSpace     TagIdentifier = 7
	TagTerminating          TagIdentifier = 8
	TagLogicalVolumeInteg   TagIdentifier = 9
	TagFileSet              TagIdentifier = 256
	TagFileIdentifier       TagIdentifier = 257
	TagAllocationExtent     TagIdentifier = 258
	TagIndirect             TagIdentifier = 259
	TagTerminalEntry        TagIdentifier = 260
	TagFile                 TagIdentifier = 261
	TagExtendedAttribute    TagIdentifier = 262
	TagUnallocatedEntry     TagIdentifier = 263
	TagSpaceBitmap          TagIdentifier = 264
	TagPartitionIntegrity   TagIdentifier = 265
	TagExtendedFileEntry    TagIdentifier = 266
)

var tagNames = map[TagIdentifier]string{
	TagPrimaryVolume:        "PrimaryVolumeDescriptor",
	TagAnchorVolume:         "AnchorVolumeDescriptorPointer",
	TagVolumePointer:        "VolumeDescriptorPointer",
	TagImplementationVolume: "ImplementationUseVolumeDescriptor",
	TagPartition:            "PartitionDescriptor",
	TagLogicalVolume:        "LogicalVolumeDescriptor",
	TagUnallocatedSpace:     "UnallocatedSpaceDescriptor",
	TagTerminating:          "TerminatingDescriptor",
	TagLogicalVolumeInteg:   "LogicalVolumeIntegrityDescriptor",
	TagFileSet:              "FileSetDescriptor",
	TagFileIdentifier:       "FileIdentifierDescriptor",
	TagAllocationExtent:     "AllocationExtentDescriptor",
	TagIndirect:             "IndirectEntry",
	TagTerminalEntry:        "TerminalEntry",
	TagFile:                 "FileEntry",
	TagExtendedAttribute:    "ExtendedAttributeHeaderDescriptor",
	TagUnallocatedEntry:     "UnallocatedSpaceEntry",
	TagSpaceBitmap:          "SpaceBitmapDescriptor",
	TagPartitionIntegrity:   "PartitionIntegrityEntry",
	TagExtendedFileEntry:    "ExtendedFileEntry",
}

func (t TagIdentifier) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "Tag(" + strconv.Itoa(int(t)) + ")"
}

// File characteristics
const (
	FileCharHidden    = 0x01
	FileCharDirectory = 0x02
	FileCharDeleted   = 0x04
	FileCharParent    = 0x08
	FileCharMetadata  = 0x10
)

// ICB file types
const (
	ICBFileTypeDirectory = 4
	ICBFileTypeFile      = 5
)

// ICB allocation types, bits 0-2 of the ICB tag flags.
const (
	AllocShort    = 0
	AllocLong     = 1
	AllocExtended = 2
	AllocEmbedded = 3
)

// Extent types, the top two bits of an extent length.
const (
	ExtentRecorded          = 0
	ExtentAllocated         = 1
	ExtentNotAllocated      = 2
	ExtentNextAllocationExt = 3
)

// Volume layout
const (
	// ReservedBytes precede the volume recognition sequence.
	ReservedBytes = 32768
	// vrsUnit is the minimum size of one volume structure descriptor.
	vrsUnit = 2048
	// AnchorBlock holds the first anchor volume descriptor pointer.
	AnchorBlock = 256
	// SequenceBlocks is the extent length of each descriptor sequence.
	SequenceBlocks = 16

	mainVDSBlock      = AnchorBlock + 1
	integrityBlock    = mainVDSBlock + SequenceBlocks
	partitionStartLoc = integrityBlock + SequenceBlocks

	// UDFRevision is the revision written to and accepted from volumes.
	UDFRevision = 0x0102
	// DescriptorVersion is the tag version of NSR02 descriptors.
	DescriptorVersion = 2

	// MaxExtentLength is the largest length an allocation descriptor holds.
	MaxExtentLength = 0x3fffffff
	// MaxNameBytes bounds an encoded file identifier.
	MaxNameBytes = 255
	// MaxBlocks bounds the block count of a volume addressable by 32 bits.
	MaxBlocks = math.MaxUint32

	// firstUniqueID is the first unique ID handed to non-root entries.
	firstUniqueID = 16
)

// Fixed descriptor sizes
const (
	tagSize            = 16
	fileEntrySize      = 176
	fidFixedSize       = 38
	spaceBitmapHdrSize = 24
	fileSetDescSize    = 512
	shortADSize        = 8
	longADSize         = 16
	extentADSize       = 8
	entityIDSize       = 32
	charSpecSize       = 64
	timestampSize      = 12
	icbTagSize         = 20
)

// Identifier strings
const (
	DomainOSTACompliant = "*OSTA UDF Compliant"
	IdentUDFLVInfo      = "*UDF LV Info"
	IdentNSR02          = "+NSR02"
	IdentNSR03          = "+NSR03"
	ImplementationIdent = "*go-udfvol"
	OSTACompressed      = "OSTA Compressed Unicode"
)

// MaxLength is the largest extent length that is a whole number of blocks.
func MaxLength(blockSize int) uint32 {
	return uint32(MaxExtentLength / blockSize * blockSize)
}
