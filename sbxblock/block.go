// Package sbxblock implements the SBX engine's 16-byte header, the
// version-seeded CRC-CCITT checksum, metadata field serialisation, and the
// accessors a Block exposes over a buffer lent to it by blockbuffer.
package sbxblock

import (
	"bytes"

	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// BlockType discriminates a Meta block (carries the metadata field list)
// from a Data block (carries an opaque payload). It is derived from the
// sequence number, never stored as a separate wire field: sequence numbers
// below sbxspecs.FirstDataSeqNum belong to the metadata block and its
// duplicates, everything at or above it is data/parity.
type BlockType int

const (
	BlockTypeData BlockType = iota
	BlockTypeMeta
)

func (t BlockType) String() string {
	if t == BlockTypeMeta {
		return "meta"
	}
	return "data"
}

// BlockTypeOf derives the block type a given sequence number carries under
// version v.
func BlockTypeOf(v sbxspecs.Version, seqNum uint32) BlockType {
	if seqNum < sbxspecs.FirstDataSeqNum(v) {
		return BlockTypeMeta
	}
	return BlockTypeData
}

// Block is the in-memory, owned representation of one SBX block: its
// header fields plus, for a Meta block, the parsed field list. A Data
// block's payload bytes live in the slice lent to it by block-buffer, not
// here — Block only owns header state and (for Meta) the field list.
type Block struct {
	Version sbxspecs.Version
	UID     [sbxspecs.FileUIDLen]byte
	SeqNum  uint32

	// Fields holds the parsed metadata field list. Only meaningful when
	// Type() == BlockTypeMeta.
	Fields []Field
}

// Type reports whether b is a Meta or Data block.
func (b *Block) Type() BlockType { return BlockTypeOf(b.Version, b.SeqNum) }

// NewDataBlock builds a Data block header for seqNum, which must be >=
// sbxspecs.FirstDataSeqNum(v).
func NewDataBlock(v sbxspecs.Version, uid [sbxspecs.FileUIDLen]byte, seqNum uint32) *Block {
	return &Block{Version: v, UID: uid, SeqNum: seqNum}
}

// NewMetaBlock builds a Meta block header carrying fields, at the given
// sequence number (0 for the primary copy, 1..SBX_RS_METADATA_PARITY_COUNT
// for RS duplicate copies).
func NewMetaBlock(v sbxspecs.Version, uid [sbxspecs.FileUIDLen]byte, seqNum uint32, fields []Field) *Block {
	return &Block{Version: v, UID: uid, SeqNum: seqNum, Fields: fields}
}

// SyncToBuffer serialises b into buf[0:block_size(b.Version)]. For a Meta
// block, fields are written in insertion order and the remainder of the
// data area is filled with paddingByte. The CRC is computed last, over the
// whole buffer with the CRC field itself treated as zero, seeded by the
// version tag.
func SyncToBuffer(b *Block, buf []byte) error {
	blockSize, err := sbxspecs.BlockSize(b.Version)
	if err != nil {
		return err
	}
	if len(buf) < blockSize {
		return ErrBufferTooSmall
	}
	buf = buf[:blockSize]

	copy(buf[0:3], sbxspecs.Signature)
	buf[3] = byte(b.Version)
	buf[4] = 0
	buf[5] = 0
	copy(buf[6:6+sbxspecs.FileUIDLen], b.UID[:])
	putUint32BE(buf[12:16], b.SeqNum)

	if b.Type() == BlockTypeMeta {
		if err := fieldsToBytes(b.Fields, buf[16:blockSize]); err != nil {
			return err
		}
	}

	crc := crcCCITT(b.Version, buf)
	buf[4] = byte(crc >> 8)
	buf[5] = byte(crc)

	return nil
}

// Predicate inspects a freshly parsed header (before the field list is
// populated) and may reject the block with ErrFailedPredicate; used while
// scanning to filter by expected version and UID.
type Predicate func(version sbxspecs.Version, uid [sbxspecs.FileUIDLen]byte, seqNum uint32) bool

// SyncFromBuffer validates magic, version, and CRC, then (for a Meta
// block) parses the field list. pred may be nil.
func SyncFromBuffer(buf []byte, pred Predicate) (*Block, error) {
	if len(buf) < sbxspecs.HeaderSize {
		return nil, ErrBufferTooSmall
	}
	if !bytes.Equal(buf[0:3], []byte(sbxspecs.Signature)) {
		return nil, ErrIncorrectMagic
	}

	v := sbxspecs.Version(buf[3])
	if !sbxspecs.IsValid(v) {
		return nil, ErrUnknownVersion
	}

	blockSize, err := sbxspecs.BlockSize(v)
	if err != nil {
		return nil, err
	}
	if len(buf) < blockSize {
		return nil, ErrBufferTooSmall
	}
	buf = buf[:blockSize]

	storedCRC := uint16(buf[4])<<8 | uint16(buf[5])

	check := make([]byte, blockSize)
	copy(check, buf)
	check[4] = 0
	check[5] = 0
	if crcCCITT(v, check) != storedCRC {
		return nil, ErrCRCMismatch
	}

	var uid [sbxspecs.FileUIDLen]byte
	copy(uid[:], buf[6:6+sbxspecs.FileUIDLen])
	seqNum := getUint32BE(buf[12:16])

	if pred != nil && !pred(v, uid, seqNum) {
		return nil, ErrFailedPredicate
	}

	b := &Block{Version: v, UID: uid, SeqNum: seqNum}

	if b.Type() == BlockTypeMeta {
		fields, err := fieldsFromBytes(buf[16:blockSize])
		if err != nil {
			return nil, ErrMalformedMeta
		}
		b.Fields = fields
	}

	return b, nil
}

// CandidateHeader is the cheap result of SyncFromBufferHeaderOnly: enough
// to decide whether the rest of the block is worth reading, but not yet
// CRC-validated (the CRC covers the full block, not just the header).
type CandidateHeader struct {
	Version sbxspecs.Version
	UID     [sbxspecs.FileUIDLen]byte
	SeqNum  uint32
}

// SyncFromBufferHeaderOnly performs the cheap rejection used by the rescue
// engine during scanning: it validates magic and version tag from just the
// first 16 bytes, without checking the CRC (which spans the whole block).
// Callers must read the full block and re-validate with SyncFromBuffer
// before trusting the candidate.
func SyncFromBufferHeaderOnly(header []byte) (CandidateHeader, error) {
	if len(header) < sbxspecs.HeaderSize {
		return CandidateHeader{}, ErrBufferTooSmall
	}
	if !bytes.Equal(header[0:3], []byte(sbxspecs.Signature)) {
		return CandidateHeader{}, ErrIncorrectMagic
	}
	v := sbxspecs.Version(header[3])
	if !sbxspecs.IsValid(v) {
		return CandidateHeader{}, ErrUnknownVersion
	}

	var uid [sbxspecs.FileUIDLen]byte
	copy(uid[:], header[6:6+sbxspecs.FileUIDLen])

	return CandidateHeader{
		Version: v,
		UID:     uid,
		SeqNum:  getUint32BE(header[12:16]),
	}, nil
}

// Field looks up the first field with the given ID, reporting whether one
// was found. Only meaningful for Meta blocks.
func (b *Block) Field(id FieldID) (Field, bool) {
	for _, f := range b.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
