package udf

import "fmt"

// Descriptor is one of the tagged records of a volume. Variable-length
// byte fields of a parsed descriptor share memory with the parse buffer.
type Descriptor interface {
	// Header returns the descriptor tag.
	Header() Tag
	// Write serializes the descriptor at b[off:] and returns the offset
	// just past it.
	Write(b []byte, off int) (int, error)
}

// ParseOptions control descriptor validation.
type ParseOptions struct {
	Compliance Compliance
	// CheckLocation requires the tag location to equal Location.
	CheckLocation bool
	Location      uint32
}

// Parse decodes the descriptor at b[off:], verifying the tag checksum and
// payload CRC before dispatching on the tag identifier.
func Parse(b []byte, off int, opts ParseOptions) (Descriptor, error) {
	tag, err := parseTag(b, off)
	if err != nil {
		return nil, err
	}
	if opts.CheckLocation && tag.Location != opts.Location {
		return nil, fmt.Errorf("%w: %s claims block %d, read from %d", ErrTagLocation, tag.Identifier, tag.Location, opts.Location)
	}
	d := b[off:]
	switch tag.Identifier {
	case TagPrimaryVolume:
		return parsePrimaryVolume(d, tag, opts.Compliance)
	case TagAnchorVolume:
		return parseAnchor(d, tag)
	case TagVolumePointer:
		return parseVolumePointer(d, tag)
	case TagImplementationVolume:
		return parseImplementationUse(d, tag, opts.Compliance)
	case TagPartition:
		return parsePartition(d, tag)
	case TagLogicalVolume:
		return parseLogicalVolume(d, tag, opts.Compliance)
	case TagUnallocatedSpace:
		return parseUnallocatedSpace(d, tag)
	case TagTerminating:
		return parseTerminating(d, tag)
	case TagLogicalVolumeInteg:
		return parseIntegrity(d, tag)
	case TagFileSet:
		return parseFileSet(d, tag, opts.Compliance)
	case TagFileIdentifier:
		return parseFileIdentifier(d, tag)
	case TagAllocationExtent:
		return parseAllocationExtent(d, tag)
	case TagTerminalEntry:
		return parseTerminalEntry(d, tag)
	case TagFile:
		return parseFileEntry(d, tag)
	case TagSpaceBitmap:
		return parseSpaceBitmap(d, tag)
	case TagIndirect, TagExtendedAttribute, TagUnallocatedEntry, TagPartitionIntegrity, TagExtendedFileEntry:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, tag.Identifier)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag.Identifier)
}

// region returns b[off:off+n] or an error when b is too short.
func region(b []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || len(b)-off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBadLength, n, off, len(b))
	}
	return b[off : off+n], nil
}

// view returns nil for an empty region so parsed and constructed
// descriptors compare equal.
func view(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
