package sbxblock

import (
	"encoding/binary"
	"fmt"
)

// FieldID is the 3-byte ASCII tag that precedes every metadata field's
// length and payload in the data area of a Meta block.
type FieldID [3]byte

func (id FieldID) String() string { return string(id[:]) }

var (
	FieldFNM = FieldID{'F', 'N', 'M'}
	FieldSNM = FieldID{'S', 'N', 'M'}
	FieldFSZ = FieldID{'F', 'S', 'Z'}
	FieldFDT = FieldID{'F', 'D', 'T'}
	FieldSDT = FieldID{'S', 'D', 'T'}
	FieldHSH = FieldID{'H', 'S', 'H'}
	FieldRSD = FieldID{'R', 'S', 'D'}
	FieldRSP = FieldID{'R', 'S', 'P'}
	FieldPID = FieldID{'P', 'I', 'D'}
)

var recognisedFieldIDs = map[FieldID]bool{
	FieldFNM: true, FieldSNM: true, FieldFSZ: true, FieldFDT: true,
	FieldSDT: true, FieldHSH: true, FieldRSD: true, FieldRSP: true, FieldPID: true,
}

// preambleLen is the width of the ID(3B)+LEN(1B) preamble in front of every
// field's payload.
const preambleLen = 4

// paddingByte (SUB, 0x1A) fills the unused tail of a Meta block's data area.
// It can never collide with the start of a real field because every field
// ID is ASCII uppercase; existing containers depend on this exact byte, so
// it must never change.
const paddingByte = 0x1A

// HashFunction is the 1-byte tag stored in an HSH field ahead of the digest
// length and bytes.
type HashFunction byte

const (
	HashSHA1       HashFunction = 0x11
	HashSHA256     HashFunction = 0x12
	HashSHA512     HashFunction = 0x13
	HashBLAKE2B512 HashFunction = 0xB2
	HashBLAKE2B256 HashFunction = 0xB3
	HashBLAKE2S256 HashFunction = 0xB4
	HashBLAKE2S128 HashFunction = 0xB5
)

var hashDigestLens = map[HashFunction]int{
	HashSHA1:       20,
	HashSHA256:     32,
	HashSHA512:     64,
	HashBLAKE2B512: 64,
	HashBLAKE2B256: 32,
	HashBLAKE2S256: 32,
	HashBLAKE2S128: 16,
}

// Field is one metadata record: a 3-byte ID, a 1-byte length, and its
// payload, serialised as ID(3B)|LEN(1B)|VALUE(LEN B).
type Field struct {
	ID      FieldID
	Payload []byte
}

func (f Field) wireSize() int { return preambleLen + len(f.Payload) }

// FNM builds the original-file-name field.
func FNM(name string) Field { return Field{FieldFNM, []byte(name)} }

// SNM builds the container-name field.
func SNM(name string) Field { return Field{FieldSNM, []byte(name)} }

// FSZ builds the original-file-size field.
func FSZ(size uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, size)
	return Field{FieldFSZ, buf}
}

// FDT builds the file-modification-time field (seconds since epoch, signed).
func FDT(seconds int64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seconds))
	return Field{FieldFDT, buf}
}

// SDT builds the container-creation-time field.
func SDT(seconds int64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seconds))
	return Field{FieldSDT, buf}
}

// HSH builds a multihash field: hash-function-id(1) | digest-length(1) | digest.
func HSH(hf HashFunction, digest []byte) Field {
	payload := make([]byte, 2+len(digest))
	payload[0] = byte(hf)
	payload[1] = byte(len(digest))
	copy(payload[2:], digest)
	return Field{FieldHSH, payload}
}

// RSD builds the RS data-shard-count field; together with RSP it is what a
// reader rebuilds a container's RS parameters from.
func RSD(n byte) Field { return Field{FieldRSD, []byte{n}} }

// RSP builds the RS parity-shard-count field.
func RSP(n byte) Field { return Field{FieldRSP, []byte{n}} }

// PID builds the parent-container-UID field. No operation in this module
// writes it; `update` keeps the container's own UID and leaves PID alone.
func PID(parentUID [6]byte) Field { return Field{FieldPID, parentUID[:]} }

// AsString returns the payload decoded as UTF-8 text (FNM/SNM).
func (f Field) AsString() string { return string(f.Payload) }

// AsUint64 decodes an 8-byte big-endian payload (FSZ).
func (f Field) AsUint64() (uint64, error) {
	if len(f.Payload) != 8 {
		return 0, fmt.Errorf("sbxblock: field %s is not 8 bytes wide", f.ID)
	}
	return binary.BigEndian.Uint64(f.Payload), nil
}

// AsInt64 decodes an 8-byte big-endian signed payload (FDT/SDT).
func (f Field) AsInt64() (int64, error) {
	v, err := f.AsUint64()
	return int64(v), err
}

// AsHash decodes a multihash payload (HSH) into its function tag and digest.
func (f Field) AsHash() (HashFunction, []byte, error) {
	if len(f.Payload) < 2 {
		return 0, nil, fmt.Errorf("sbxblock: HSH field too short")
	}
	hf := HashFunction(f.Payload[0])
	n := int(f.Payload[1])
	if len(f.Payload) != 2+n {
		return 0, nil, fmt.Errorf("sbxblock: HSH field length mismatch")
	}
	return hf, f.Payload[2:], nil
}

// AsByte decodes a single-byte payload (RSD/RSP).
func (f Field) AsByte() (byte, error) {
	if len(f.Payload) != 1 {
		return 0, fmt.Errorf("sbxblock: field %s is not 1 byte wide", f.ID)
	}
	return f.Payload[0], nil
}

// fieldsToBytes serialises fields in order into buf, padding the remainder
// with paddingByte. Fails with ErrTooMuchMetadata if they don't fit.
func fieldsToBytes(fields []Field, buf []byte) error {
	pos := 0
	for _, f := range fields {
		sz := f.wireSize()
		if pos+sz > len(buf) {
			return ErrTooMuchMetadata
		}
		copy(buf[pos:pos+3], f.ID[:])
		buf[pos+3] = byte(len(f.Payload))
		copy(buf[pos+4:pos+sz], f.Payload)
		pos += sz
	}
	for ; pos < len(buf); pos++ {
		buf[pos] = paddingByte
	}
	return nil
}

// fieldsFromBytes parses a concatenation of ID|LEN|VALUE records until it
// hits padding (a byte that cannot start a field ID) or the buffer ends.
func fieldsFromBytes(buf []byte) ([]Field, error) {
	var fields []Field
	pos := 0
	for pos < len(buf) {
		if pos+preambleLen > len(buf) {
			// Trailing bytes too short to be a field: must be padding.
			break
		}
		var id FieldID
		copy(id[:], buf[pos:pos+3])
		if !recognisedFieldIDs[id] {
			// Not a recognised tag: treat the rest as padding.
			break
		}
		n := int(buf[pos+3])
		if pos+preambleLen+n > len(buf) {
			return nil, ErrMalformedMeta
		}
		payload := make([]byte, n)
		copy(payload, buf[pos+preambleLen:pos+preambleLen+n])
		fields = append(fields, Field{ID: id, Payload: payload})
		pos += preambleLen + n
	}
	return fields, nil
}
