package udf

import (
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// FileSetDescriptor is the root of the file hierarchy of a logical volume.
type FileSetDescriptor struct {
	DescriptorTag                       Tag
	RecordingDateAndTime                Timestamp
	InterchangeLevel                    uint16
	MaximumInterchangeLevel             uint16
	CharacterSetList                    uint32
	MaximumCharacterSetList             uint32
	FileSetNumber                       uint32
	FileSetDescriptorNumber             uint32
	LogicalVolumeIdentifierCharacterSet CharSpec
	LogicalVolumeIdentifier             string
	FileSetCharacterSet                 CharSpec
	FileSetIdentifier                   string
	CopyrightFileIdentifier             string
	AbstractFileIdentifier              string
	RootDirectoryICB                    LongAD
	DomainIdentifier                    EntityID
	NextExtent                          LongAD
}

func (d *FileSetDescriptor) Header() Tag { return d.DescriptorTag }

func (d *FileSetDescriptor) Write(b []byte, off int) (int, error) {
	p, err := region(b, off, fileSetDescSize)
	if err != nil {
		return off, err
	}
	clear(p)
	putTimestamp(p, 16, d.RecordingDateAndTime)
	util.PutU16(p, 28, d.InterchangeLevel)
	util.PutU16(p, 30, d.MaximumInterchangeLevel)
	util.PutU32(p, 32, d.CharacterSetList)
	util.PutU32(p, 36, d.MaximumCharacterSetList)
	util.PutU32(p, 40, d.FileSetNumber)
	util.PutU32(p, 44, d.FileSetDescriptorNumber)
	if err := putCharSpec(p, 48, d.LogicalVolumeIdentifierCharacterSet); err != nil {
		return off, err
	}
	if err := putCharSpec(p, 240, d.FileSetCharacterSet); err != nil {
		return off, err
	}
	for _, f := range []struct {
		name  string
		field []byte
		value string
	}{
		{"logical volume identifier", p[112:240], d.LogicalVolumeIdentifier},
		{"file set identifier", p[304:336], d.FileSetIdentifier},
		{"copyright file identifier", p[336:368], d.CopyrightFileIdentifier},
		{"abstract file identifier", p[368:400], d.AbstractFileIdentifier},
	} {
		if err := putDString(f.field, f.value); err != nil {
			return off, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if err := d.RootDirectoryICB.put(p, 400); err != nil {
		return off, err
	}
	if err := putEntityID(p, 416, d.DomainIdentifier); err != nil {
		return off, err
	}
	if err := d.NextExtent.put(p, 448); err != nil {
		return off, err
	}
	sealTag(p, d.DescriptorTag, TagFileSet, fileSetDescSize-tagSize)
	return off + fileSetDescSize, nil
}

func parseFileSet(b []byte, tag Tag, c Compliance) (*FileSetDescriptor, error) {
	p, err := region(b, 0, 464)
	if err != nil {
		return nil, err
	}
	d := &FileSetDescriptor{
		DescriptorTag:                       tag,
		RecordingDateAndTime:                getTimestamp(p, 16),
		InterchangeLevel:                    util.U16(p, 28),
		MaximumInterchangeLevel:             util.U16(p, 30),
		CharacterSetList:                    util.U32(p, 32),
		MaximumCharacterSetList:             util.U32(p, 36),
		FileSetNumber:                       util.U32(p, 40),
		FileSetDescriptorNumber:             util.U32(p, 44),
		LogicalVolumeIdentifierCharacterSet: getCharSpec(p, 48),
		FileSetCharacterSet:                 getCharSpec(p, 240),
		DomainIdentifier:                    getEntityID(p, 416),
	}
	if d.RootDirectoryICB, err = getLongAD(p, 400); err != nil {
		return nil, err
	}
	if d.NextExtent, err = getLongAD(p, 448); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		field []byte
		dst   *string
	}{
		{p[112:240], &d.LogicalVolumeIdentifier},
		{p[304:336], &d.FileSetIdentifier},
		{p[336:368], &d.CopyrightFileIdentifier},
		{p[368:400], &d.AbstractFileIdentifier},
	} {
		if *f.dst, err = getDString(f.field, c); err != nil {
			return nil, err
		}
	}
	return d, nil
}
