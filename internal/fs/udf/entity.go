package udf

import (
	"bytes"
	"fmt"

	"github.com/s0up4200/go-udfvol/internal/util"
)

// EntitySuffix is the 8-byte tail of an EntityID. Its layout depends on
// the identifier string.
type EntitySuffix interface {
	put(b []byte)
}

// DomainSuffix follows "*OSTA UDF Compliant".
type DomainSuffix struct {
	Revision uint16
	Flags    uint8
}

// UDFSuffix follows UDF identifiers such as "*UDF LV Info" and "+NSR02".
type UDFSuffix struct {
	Revision     uint16
	OSClass      uint8
	OSIdentifier uint8
}

// ImplementationSuffix follows any other identifier.
type ImplementationSuffix struct {
	OSClass           uint8
	OSIdentifier      uint8
	ImplementationUse [6]byte
}

func (s DomainSuffix) put(b []byte) {
	util.PutU16(b, 0, s.Revision)
	b[2] = s.Flags
}

func (s UDFSuffix) put(b []byte) {
	util.PutU16(b, 0, s.Revision)
	b[2] = s.OSClass
	b[3] = s.OSIdentifier
}

func (s ImplementationSuffix) put(b []byte) {
	b[0] = s.OSClass
	b[1] = s.OSIdentifier
	copy(b[2:], s.ImplementationUse[:])
}

// EntityID is the 32-byte regid: flags, a 23-byte identifier and a suffix.
type EntityID struct {
	Flags      uint8
	Identifier string
	Suffix     EntitySuffix
}

const entityIdentLen = 23

// OS class and identifier recorded in implementation suffixes.
const (
	osClassUnix = 4
	osIDLinux   = 5
)

// DomainEntity is the "*OSTA UDF Compliant" domain identifier.
func DomainEntity() EntityID {
	return EntityID{Identifier: DomainOSTACompliant, Suffix: DomainSuffix{Revision: UDFRevision}}
}

// ImplementationEntity names this implementation.
func ImplementationEntity() EntityID {
	return EntityID{
		Identifier: ImplementationIdent,
		Suffix:     ImplementationSuffix{OSClass: osClassUnix, OSIdentifier: osIDLinux},
	}
}

// UDFEntity builds an identifier with a UDF suffix.
func UDFEntity(ident string) EntityID {
	return EntityID{Identifier: ident, Suffix: UDFSuffix{Revision: UDFRevision, OSClass: osClassUnix, OSIdentifier: osIDLinux}}
}

// suffixFor decodes the suffix selected by ident. Unrecognised identifiers,
// including the empty one, carry an implementation suffix.
func suffixFor(ident string, b []byte) EntitySuffix {
	switch ident {
	case DomainOSTACompliant:
		return DomainSuffix{Revision: util.U16(b, 0), Flags: b[2]}
	case IdentUDFLVInfo, IdentNSR02, IdentNSR03:
		return UDFSuffix{Revision: util.U16(b, 0), OSClass: b[2], OSIdentifier: b[3]}
	}
	s := ImplementationSuffix{OSClass: b[0], OSIdentifier: b[1]}
	copy(s.ImplementationUse[:], b[2:8])
	return s
}

func putEntityID(b []byte, off int, e EntityID) error {
	if len(e.Identifier) > entityIdentLen {
		return fmt.Errorf("%w: entity identifier %q longer than %d bytes", ErrBadLength, e.Identifier, entityIdentLen)
	}
	clear(b[off : off+entityIDSize])
	b[off] = e.Flags
	copy(b[off+1:], e.Identifier)
	if e.Suffix != nil {
		e.Suffix.put(b[off+24 : off+32])
	}
	return nil
}

func getEntityID(b []byte, off int) EntityID {
	raw := b[off+1 : off+24]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	ident := string(raw)
	return EntityID{
		Flags:      b[off],
		Identifier: ident,
		Suffix:     suffixFor(ident, b[off+24:off+32]),
	}
}

// CharSpec is the 64-byte character set specification.
type CharSpec struct {
	Type int
	Info string
}

// OSTACharSpec is CS0 with the "OSTA Compressed Unicode" information.
func OSTACharSpec() CharSpec {
	return CharSpec{Type: 0, Info: OSTACompressed}
}

func putCharSpec(b []byte, off int, c CharSpec) error {
	if len(c.Info) > charSpecSize-1 {
		return fmt.Errorf("%w: charspec information longer than %d bytes", ErrBadLength, charSpecSize-1)
	}
	clear(b[off : off+charSpecSize])
	b[off] = byte(c.Type)
	copy(b[off+1:], c.Info)
	return nil
}

func getCharSpec(b []byte, off int) CharSpec {
	raw := b[off+1 : off+charSpecSize]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return CharSpec{Type: int(b[off]), Info: string(raw)}
}
