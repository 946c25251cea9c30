package blockbuffer

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

func fillSlot(t *testing.T, b *Buffer, content []byte) *Slot {
	t.Helper()
	slot, err := b.GetSlot()
	require.True(t, err == nil || err == ErrLastSlot)
	n := copy(slot.Data, content)
	slot.ContentLenExcHeader = n
	return slot
}

func TestGetSlotFillsInOrderAndMarksLastSlot(t *testing.T) {
	r := require.New(t)

	var uid [6]byte
	b, err := NewBuffer(Options{
		Version:  sbxspecs.V17,
		UID:      uid,
		RS:       rscodec.Params{Data: 3, Parity: 2},
		Layout:   layout.Params{Data: 3, Parity: 2, Burst: 0},
		LotCount: 1,
	})
	r.NoError(err)

	for i := 0; i < 2; i++ {
		_, err := b.GetSlot()
		r.NoError(err)
	}
	_, err = b.GetSlot()
	r.ErrorIs(err, ErrLastSlot)

	_, err = b.GetSlot()
	r.ErrorIs(err, io.EOF)
}

func TestCancelSlotRewinds(t *testing.T) {
	r := require.New(t)

	var uid [6]byte
	b, err := NewBuffer(Options{
		Version:  sbxspecs.V1,
		UID:      uid,
		LotCount: 1,
	})
	r.NoError(err)

	slot, err := b.GetSlot()
	r.NoError(err)
	copy(slot.Data, []byte("hello"))
	slot.ContentLenExcHeader = 5

	b.CancelSlot()
	r.Equal(0, b.curSlot)

	slot2, err := b.GetSlot()
	r.NoError(err)
	r.Equal(SlotFilled, slot2.State)
	r.Equal(0, slot2.ContentLenExcHeader) // cancel reset the scratch fields
}

func TestCancelSlotPanicsWhenEmpty(t *testing.T) {
	r := require.New(t)

	var uid [6]byte
	b, err := NewBuffer(Options{Version: sbxspecs.V1, UID: uid, LotCount: 1})
	r.NoError(err)

	r.Panics(func() { b.CancelSlot() })
}

func TestEncodeAndWriteRoundTrip(t *testing.T) {
	r := require.New(t)

	uid := [6]byte{1, 2, 3, 4, 5, 6}
	rs := rscodec.Params{Data: 3, Parity: 2}
	lp := layout.Params{Data: 3, Parity: 2, Burst: 0}

	b, err := NewBuffer(Options{
		Version:     sbxspecs.V17,
		UID:         uid,
		RS:          rs,
		Layout:      lp,
		MetaEnabled: true,
		LotCount:    1,
		StartSeqNum: sbxspecs.FirstDataSeqNum(sbxspecs.V17),
	})
	r.NoError(err)

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		fillSlot(t, b, p)
	}

	r.NoError(b.Encode(context.Background()))

	calc, err := layout.NewCalculator(sbxspecs.V17, lp)
	r.NoError(err)
	r.NoError(b.CalcSlotWritePos(calc))

	var out seekBuf
	r.NoError(b.Write(&out, true))

	// Parse back every written block and check the payloads round-trip.
	blockSize, _ := sbxspecs.BlockSize(sbxspecs.V17)
	r.True(len(out.buf)%blockSize == 0)

	found := map[uint32][]byte{}
	// The first MetaBlockCount() positions are reserved for metadata, which
	// this buffer does not write.
	for off := layout.MetaBlockCount() * blockSize; off+blockSize <= len(out.buf); off += blockSize {
		blk, err := sbxblock.SyncFromBuffer(out.buf[off:off+blockSize], nil)
		r.NoError(err)
		found[blk.SeqNum] = out.buf[off+sbxspecs.HeaderSize : off+blockSize]
	}
	// All 5 slots (3 data + 2 parity) are real blocks in the container and
	// each gets its own on-disk position.
	r.Len(found, 5)
}

// seekBuf is a minimal in-memory Writer that supports the Seek interface
// blockbuffer.Write needs, growing on demand like a sparse file.
type seekBuf struct {
	buf []byte
	pos int64
}

func (s *seekBuf) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuf) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	default:
		return 0, bytes.ErrTooLarge
	}
	return s.pos, nil
}
