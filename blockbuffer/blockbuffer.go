// Package blockbuffer implements the
// staging arena that batches incoming payload into lots, drives RS
// encoding across those lots in parallel, and writes the finished blocks
// out in sequence-number order.
package blockbuffer

import (
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// DefaultSingleLotSize is the lot width used for non-RS versions, which
// have no block-set structure to align to.
const DefaultSingleLotSize = 10

// SlotState tracks one slot's position in the lifecycle Empty -> Filled ->
// Encoded, with CancelSlot rewinding Filled back to Empty.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotFilled
	SlotEncoded
)

// Slot is the scratch state and owned buffer space for one block position
// within a lot.
type Slot struct {
	Block *sbxblock.Block
	State SlotState

	// Data is this slot's data-area scratch space, a sub-slice of the
	// buffer's arena; its first ContentLenExcHeader bytes hold the payload.
	Data []byte

	ReadPos             int64
	WritePos            int64 // -1 until CalcSlotWritePos assigns an on-disk position
	ContentLenExcHeader int
	IsPadding           bool
	IsParity            bool
}

// Lot is one RS block set's worth of slots.
type Lot struct {
	Slots  []Slot
	filled int
}

// ErrLastSlot is returned by GetSlot to mark that it filled the last slot
// of the current lot; the caller should trigger an encode before
// continuing.
var ErrLastSlot = fmt.Errorf("blockbuffer: lot filled, encode required before further writes")

// ErrNoLiveSlot is the panic-worthy condition CancelSlot guards: calling
// it with no slot checked out is caller misuse, not a silent no-op.
var ErrNoLiveSlot = fmt.Errorf("blockbuffer: cancel_slot called with no live slot")

// Buffer is a pool member: lot_count lots of lot_size slots, a contiguous
// byte arena, and references to the RS parameters shared by the whole
// container.
type Buffer struct {
	version     sbxspecs.Version
	uid         [sbxspecs.FileUIDLen]byte
	rsParams    rscodec.Params
	layoutP     layout.Params
	metaEnabled bool
	usesRS      bool

	blockSize int
	dataSize  int
	lotSize   int

	arena []byte
	lots  []Lot

	startSeqNum uint32
	exhausted   bool

	// curLot/curSlot track the position the next GetSlot will fill.
	curLot, curSlot int
}

// Options configures a new Buffer.
type Options struct {
	Version     sbxspecs.Version
	UID         [sbxspecs.FileUIDLen]byte
	RS          rscodec.Params
	Layout      layout.Params
	MetaEnabled bool
	LotCount    int
	// StartSeqNum is this buffer's starting sequence number within the
	// pool's round-robin assignment (see NewPool).
	StartSeqNum uint32
}

// NewBuffer allocates a buffer's arena and slot descriptors. The lot size
// is D+P for RS versions, DefaultSingleLotSize otherwise.
func NewBuffer(opts Options) (*Buffer, error) {
	blockSize, err := sbxspecs.BlockSize(opts.Version)
	if err != nil {
		return nil, err
	}
	dataSize, err := sbxspecs.DataSize(opts.Version)
	if err != nil {
		return nil, err
	}

	usesRS := sbxspecs.UsesRS(opts.Version)
	lotSize := DefaultSingleLotSize
	if usesRS {
		lotSize = opts.Layout.N()
	}
	if opts.LotCount <= 0 {
		opts.LotCount = 1
	}

	arena := make([]byte, opts.LotCount*lotSize*blockSize)
	lots := make([]Lot, opts.LotCount)
	for i := range lots {
		lots[i].Slots = make([]Slot, lotSize)
		for j := range lots[i].Slots {
			start := (i*lotSize + j) * blockSize
			lots[i].Slots[j] = Slot{
				Data:     arena[start+sbxspecs.HeaderSize : start+blockSize],
				WritePos: -1,
			}
		}
	}

	return &Buffer{
		version:     opts.Version,
		uid:         opts.UID,
		rsParams:    opts.RS,
		layoutP:     opts.Layout,
		metaEnabled: opts.MetaEnabled,
		usesRS:      usesRS,
		blockSize:   blockSize,
		dataSize:    dataSize,
		lotSize:     lotSize,
		arena:       arena,
		lots:        lots,
		startSeqNum: opts.StartSeqNum,
	}, nil
}

// Exhausted reports whether this buffer's start sequence number has
// overflowed u32 and must not be reused.
func (b *Buffer) Exhausted() bool { return b.exhausted }

// GetSlotHandle is a bare view of a slot's data area. GetSlot does not
// return it; GetSlot hands out the *Slot itself.
type GetSlotHandle struct {
	Data []byte
}

// GetSlot returns the next slot's scratch data area, or (nil, io.EOF)
// if the buffer (all lots) is already full. Slots within a lot are filled
// in monotonic order. Returns ErrLastSlot (alongside a valid handle) when
// this call fills the last slot of its lot.
func (b *Buffer) GetSlot() (*Slot, error) {
	if b.curLot >= len(b.lots) {
		return nil, io.EOF
	}
	lot := &b.lots[b.curLot]
	if b.curSlot >= dataSlotCount(b, lot) {
		return nil, io.EOF
	}

	slot := &lot.Slots[b.curSlot]
	slot.State = SlotFilled
	b.curSlot++
	lot.filled++

	last := b.curSlot >= dataSlotCount(b, lot)
	if last {
		b.curSlot = 0
		b.curLot++
	}

	if last {
		return slot, ErrLastSlot
	}
	return slot, nil
}

// dataSlotCount is the number of data (non-parity) slots in lot: lotSize
// for non-RS buffers (no parity slots exist at all), or layoutP.Data
// otherwise.
func dataSlotCount(b *Buffer, lot *Lot) int {
	if !b.usesRS {
		return len(lot.Slots)
	}
	return b.layoutP.Data
}

// CancelSlot rewinds the most recently filled slot back to Empty, undoing
// the last GetSlot. Panics if no slot is currently live: this is a
// programmer-error condition, not a recoverable one.
func (b *Buffer) CancelSlot() {
	if b.curSlot == 0 {
		if b.curLot == 0 {
			panic(ErrNoLiveSlot)
		}
		b.curLot--
		b.curSlot = dataSlotCount(b, &b.lots[b.curLot])
	}
	b.curSlot--
	lot := &b.lots[b.curLot]
	slot := &lot.Slots[b.curSlot]
	*slot = Slot{Data: slot.Data, WritePos: -1}
	lot.filled--
}

// Encode assigns sequence numbers, pads unused data-area tails, drives RS
// encoding to fill parity slots, and serialises every slot's block into its
// arena position. Lots are encoded concurrently; encoding one lot touches
// no state belonging to any other lot.
func (b *Buffer) Encode(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	for li := range b.lots {
		li := li
		g.Go(func() error {
			return b.encodeLot(li)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

func (b *Buffer) encodeLot(li int) error {
	lot := &b.lots[li]
	maxDataCount := dataSlotCount(b, lot)

	// A lot may be ragged — the final lot of the container, not fully
	// filled because the input ran out — in which case only the
	// contiguous Filled prefix is real data and the RS set is sized down
	// to match.
	dataCount := 0
	for dataCount < maxDataCount && lot.Slots[dataCount].State == SlotFilled {
		dataCount++
	}

	for i := 0; i < dataCount; i++ {
		slot := &lot.Slots[i]
		if slot.ContentLenExcHeader < len(slot.Data) {
			for k := slot.ContentLenExcHeader; k < len(slot.Data); k++ {
				slot.Data[k] = 0x1A
			}
			slot.IsPadding = true
		}
	}

	if dataCount == 0 {
		return nil
	}

	if b.usesRS {
		dataShards := make([][]byte, dataCount)
		for i := 0; i < dataCount; i++ {
			dataShards[i] = lot.Slots[i].Data
		}
		parity := make([][]byte, b.layoutP.Parity)
		for i := range parity {
			parity[i] = lot.Slots[dataCount+i].Data
			lot.Slots[dataCount+i].IsParity = true
			lot.Slots[dataCount+i].State = SlotFilled
		}
		if err := rscodec.EncodeSet(b.rsParams, dataShards, parity); err != nil {
			return fmt.Errorf("blockbuffer: lot %d: %w", li, err)
		}
	}

	for i := range lot.Slots {
		slot := &lot.Slots[i]
		if slot.State != SlotFilled {
			continue
		}

		seqNum := b.startSeqNum + uint32(li*len(lot.Slots)+i)
		if seqNum == sbxspecs.LastSeqNum {
			return fmt.Errorf("blockbuffer: sequence number exhausted at lot %d slot %d", li, i)
		}

		blk := sbxblock.NewDataBlock(b.version, b.uid, seqNum)
		slot.Block = blk

		buf := make([]byte, b.blockSize)
		copy(buf[sbxspecs.HeaderSize:], slot.Data)
		if err := sbxblock.SyncToBuffer(blk, buf); err != nil {
			return fmt.Errorf("blockbuffer: serialising lot %d slot %d: %w", li, i, err)
		}
		slot.State = SlotEncoded
	}
	return nil
}

// CalcSlotWritePos populates every filled/encoded slot's WritePos in whole
// blocks, via the layout calculator. Parity slots are real blocks in the
// container and get a whole-block position from the same formula as data
// slots — a parity slot only yields no position when mapping to the
// decoded *output file* instead of the container itself, which is what
// ops.Decode does separately and never through this method.
func (b *Buffer) CalcSlotWritePos(calc *layout.Calculator) error {
	for li := range b.lots {
		lot := &b.lots[li]
		for i := range lot.Slots {
			slot := &lot.Slots[i]
			if slot.State == SlotEmpty {
				continue
			}
			idx, err := calc.IndexOfDataSeq(slot.Block.SeqNum, b.metaEnabled)
			if err != nil {
				return err
			}
			slot.WritePos = int64(idx) * int64(b.blockSize)
		}
	}
	return nil
}

// Writer is the subset of io.Writer plus seeking that Write needs.
type Writer interface {
	io.Writer
	io.Seeker
}

// skipGoodReader is the optional extra capability Write probes for: when w
// also supports reading at an offset, Write can compare the block already
// on disk against the one it's about to write and skip the write entirely
// when they already match (an update re-encoding unchanged input touches
// none of its unchanged blocks).
type skipGoodReader interface {
	io.ReaderAt
}

// Write streams every encoded slot with a known WritePos to w in slot
// order, seeking to WritePos first when seek is true. Resets the buffer on
// success so it can be reused for the next stretch of input.
func (b *Buffer) Write(w Writer, seek bool) error {
	ra, canSkipGood := w.(skipGoodReader)
	existing := make([]byte, b.blockSize)

	for li := range b.lots {
		lot := &b.lots[li]
		for i := range lot.Slots {
			slot := &lot.Slots[i]
			if slot.State != SlotEncoded {
				continue
			}
			if slot.WritePos < 0 {
				continue
			}

			buf := make([]byte, b.blockSize)
			copy(buf[sbxspecs.HeaderSize:], slot.Data)
			if err := sbxblock.SyncToBuffer(slot.Block, buf); err != nil {
				return err
			}

			if canSkipGood && blockAlreadyPresent(ra, slot.WritePos, buf, existing) {
				continue
			}

			if seek {
				if _, err := w.Seek(slot.WritePos, io.SeekStart); err != nil {
					return fmt.Errorf("blockbuffer: seeking to slot position: %w", err)
				}
			}
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("blockbuffer: writing slot: %w", err)
			}
		}
	}
	b.reset()
	return nil
}

// blockAlreadyPresent reports whether the bytes already on disk at pos
// match buf, via a cheap xxhash64 comparison before trusting equality
// (a full byte-for-byte compare would defeat the point of skipping the
// write). A read error or short read is treated as "not present".
func blockAlreadyPresent(ra skipGoodReader, pos int64, buf, scratch []byte) bool {
	n, err := ra.ReadAt(scratch, pos)
	if err != nil && err != io.EOF {
		return false
	}
	if n != len(buf) {
		return false
	}
	return xxhash.Sum64(scratch) == xxhash.Sum64(buf)
}

func (b *Buffer) reset() {
	for li := range b.lots {
		lot := &b.lots[li]
		for i := range lot.Slots {
			lot.Slots[i] = Slot{Data: lot.Slots[i].Data, WritePos: -1}
		}
		lot.filled = 0
	}
	b.curLot, b.curSlot = 0, 0
}

// ErrUnorderedLot is the panic-worthy condition Hash guards against:
// hashing a lot whose slots are out of sequence order has no defined
// meaning.
var ErrUnorderedLot = fmt.Errorf("blockbuffer: cannot hash a lot with unordered slots")

// Hash feeds every data slot's original user-data bytes (excluding padding
// and parity) into h, in slot order.
func (b *Buffer) Hash(h hash.Hash) error {
	for li := range b.lots {
		lot := &b.lots[li]
		lastSeq := int64(-1)
		for i := range lot.Slots {
			slot := &lot.Slots[i]
			if slot.IsParity || slot.State == SlotEmpty {
				continue
			}
			if slot.Block != nil {
				seq := int64(slot.Block.SeqNum)
				if lastSeq >= 0 && seq <= lastSeq {
					panic(ErrUnorderedLot)
				}
				lastSeq = seq
			}
			if _, err := h.Write(slot.Data[:slot.ContentLenExcHeader]); err != nil {
				return err
			}
		}
	}
	return nil
}
