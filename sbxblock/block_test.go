package sbxblock

import (
	"testing"

	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
	"github.com/stretchr/testify/require"
)

func TestRoundTripDataBlock(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	b := NewDataBlock(sbxspecs.V1, uid, 5)

	buf := make([]byte, 512)
	r.NoError(SyncToBuffer(b, buf))

	got, err := SyncFromBuffer(buf, nil)
	r.NoError(err)
	r.Equal(b.Version, got.Version)
	r.Equal(b.UID, got.UID)
	r.Equal(b.SeqNum, got.SeqNum)
	r.Equal(BlockTypeData, got.Type())

	buf2 := make([]byte, 512)
	r.NoError(SyncToBuffer(got, buf2))
	r.Equal(buf, buf2)
}

func TestRoundTripMetaBlock(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	fields := []Field{
		FNM("example.txt"),
		FSZ(12345),
		HSH(HashSHA256, make([]byte, 32)),
	}
	b := NewMetaBlock(sbxspecs.V17, uid, 0, fields)

	buf := make([]byte, 512)
	r.NoError(SyncToBuffer(b, buf))

	got, err := SyncFromBuffer(buf, nil)
	r.NoError(err)
	r.Equal(BlockTypeMeta, got.Type())
	r.Len(got.Fields, 3)

	fnm, ok := got.Field(FieldFNM)
	r.True(ok)
	r.Equal("example.txt", fnm.AsString())

	fsz, ok := got.Field(FieldFSZ)
	r.True(ok)
	sz, err := fsz.AsUint64()
	r.NoError(err)
	r.EqualValues(12345, sz)

	// unused tail is padded with 0x1A
	r.Equal(byte(paddingByte), buf[len(buf)-1])
}

func TestCRCDomainSeparation(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	b := NewDataBlock(sbxspecs.V1, uid, 1)
	buf := make([]byte, 512)
	r.NoError(SyncToBuffer(b, buf))

	// Spoof the tag byte to version 17's block size domain (both 512).
	spoofed := make([]byte, 512)
	copy(spoofed, buf)
	spoofed[3] = byte(sbxspecs.V17)

	_, err := SyncFromBuffer(spoofed, nil)
	r.ErrorIs(err, ErrCRCMismatch)
}

func TestIncorrectMagicAndUnknownVersion(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 512)
	_, err := SyncFromBuffer(buf, nil)
	r.ErrorIs(err, ErrIncorrectMagic)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	b := NewDataBlock(sbxspecs.V1, uid, 1)
	r.NoError(SyncToBuffer(b, buf))
	buf[3] = 99
	_, err = SyncFromBuffer(buf, nil)
	r.ErrorIs(err, ErrUnknownVersion)
}

func TestFailedPredicate(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	b := NewDataBlock(sbxspecs.V1, uid, 1)
	buf := make([]byte, 512)
	r.NoError(SyncToBuffer(b, buf))

	_, err := SyncFromBuffer(buf, func(v sbxspecs.Version, u [6]byte, seq uint32) bool {
		return false
	})
	r.ErrorIs(err, ErrFailedPredicate)
}

func TestSyncFromBufferHeaderOnly(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{9, 9, 9, 9, 9, 9}
	b := NewDataBlock(sbxspecs.V2, uid, 3)
	buf := make([]byte, 128)
	r.NoError(SyncToBuffer(b, buf))

	cand, err := SyncFromBufferHeaderOnly(buf[:16])
	r.NoError(err)
	r.Equal(sbxspecs.V2, cand.Version)
	r.Equal(uid, cand.UID)
	r.Equal(uint32(3), cand.SeqNum)
}

func TestTooMuchMetadata(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	fields := []Field{FNM(string(make([]byte, 200)))}
	b := NewMetaBlock(sbxspecs.V2, uid, 0, fields) // v2 data area is 112 bytes

	buf := make([]byte, 128)
	err := SyncToBuffer(b, buf)
	r.ErrorIs(err, ErrTooMuchMetadata)
}

// TestCRCFixtureS5 locks the exact CRC-CCITT values of the single-byte
// input "a" under the 0xFFFF and 0x1D0F seeds, and checks that version 1's
// seed gives a value different from both.
func TestCRCFixtureS5(t *testing.T) {
	r := require.New(t)

	r.Equal(uint16(0x9D77), crcCCITTGeneric([]byte("a"), 0xFFFF))
	r.Equal(uint16(0xB01B), crcCCITTGeneric([]byte("a"), 0x1D0F))

	// The engine seeds CRC by version tag (1 for V1), producing a
	// deterministic value distinct from both reference seeds above.
	v1 := crcCCITTGeneric([]byte("a"), uint16(sbxspecs.V1))
	r.NotEqual(uint16(0x9D77), v1)
	r.NotEqual(uint16(0xB01B), v1)
}

func TestMetaDuplicateSequenceNumbers(t *testing.T) {
	r := require.New(t)

	r.Equal(BlockTypeMeta, BlockTypeOf(sbxspecs.V17, 0))
	r.Equal(BlockTypeMeta, BlockTypeOf(sbxspecs.V17, 3))
	r.Equal(BlockTypeData, BlockTypeOf(sbxspecs.V17, 4))
	r.Equal(BlockTypeMeta, BlockTypeOf(sbxspecs.V1, 0))
	r.Equal(BlockTypeData, BlockTypeOf(sbxspecs.V1, 1))
}
