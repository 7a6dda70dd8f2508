package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// FileIdentifierDescriptor is one entry of a directory stream. It names a
// child and points at its file entry.
type FileIdentifierDescriptor struct {
	DescriptorTag       Tag
	FileVersionNumber   uint16
	FileCharacteristics uint8
	ICB                 LongAD
	ImplementationUse   []byte
	// FileIdentifier is the compressed unicode name, empty for the parent
	// entry.
	FileIdentifier []byte
}

// fidSize is the padded length of a descriptor with the given identifier
// and implementation use lengths.
func fidSize(lfi, liu int) int {
	return (fidFixedSize + lfi + liu + 3) &^ 3
}

func (d *FileIdentifierDescriptor) Header() Tag { return d.DescriptorTag }

// Size is the encoded length including padding.
func (d *FileIdentifierDescriptor) Size() int {
	return fidSize(len(d.FileIdentifier), len(d.ImplementationUse))
}

// Name decodes the file identifier.
func (d *FileIdentifierDescriptor) Name() (string, error) {
	return DecodeString(d.FileIdentifier)
}

func (d *FileIdentifierDescriptor) IsDirectory() bool {
	return d.FileCharacteristics&FileCharDirectory != 0
}

func (d *FileIdentifierDescriptor) IsParent() bool {
	return d.FileCharacteristics&FileCharParent != 0
}

func (d *FileIdentifierDescriptor) IsDeleted() bool {
	return d.FileCharacteristics&FileCharDeleted != 0
}

func (d *FileIdentifierDescriptor) Write(b []byte, off int) (int, error) {
	if len(d.FileIdentifier) > MaxNameBytes {
		return off, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(d.FileIdentifier))
	}
	if len(d.ImplementationUse) > 0xffff {
		return off, fmt.Errorf("%w: implementation use of %d bytes", ErrBadLength, len(d.ImplementationUse))
	}
	n := d.Size()
	p, err := region(b, off, n)
	if err != nil {
		return off, err
	}
	clear(p)
	util.PutU16(p, 16, d.FileVersionNumber)
	p[18] = d.FileCharacteristics
	p[19] = byte(len(d.FileIdentifier))
	if err := d.ICB.put(p, 20); err != nil {
		return off, err
	}
	util.PutU16(p, 36, uint16(len(d.ImplementationUse)))
	copy(p[fidFixedSize:], d.ImplementationUse)
	copy(p[fidFixedSize+len(d.ImplementationUse):], d.FileIdentifier)
	sealTag(p, d.DescriptorTag, TagFileIdentifier, n-tagSize)
	return off + n, nil
}

func parseFileIdentifier(b []byte, tag Tag) (*FileIdentifierDescriptor, error) {
	p, err := region(b, 0, fidFixedSize)
	if err != nil {
		return nil, err
	}
	lfi, liu := int(p[19]), int(util.U16(p, 36))
	tail, err := region(b, fidFixedSize, liu+lfi)
	if err != nil {
		return nil, err
	}
	icb, err := getLongAD(p, 20)
	if err != nil {
		return nil, err
	}
	return &FileIdentifierDescriptor{
		DescriptorTag:       tag,
		FileVersionNumber:   util.U16(p, 16),
		FileCharacteristics: p[18],
		ICB:                 icb,
		ImplementationUse:   view(tail[:liu]),
		FileIdentifier:      view(tail[liu:]),
	}, nil
}
