package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/darrenldl/blockyarchive-sub000/blockbuffer"
	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// lotsPerCycle bounds how many lots (and therefore how much memory) one
// streaming fill/encode/write cycle uses: at most 64 lots of lot-size
// blocks each, about 2.5 MiB for version 3's 10-slot lots of 4096-byte
// blocks, and proportionally more for wide RS sets.
const lotsPerCycle = 64

// EncodeOptions configures Encode beyond the shared container Params.
type EncodeOptions struct {
	InputPath  string
	OutputPath string
	// HashFunc, if non-nil, computes a digest of the input under this
	// multihash function as it streams through and rewrites the metadata
	// block with an HSH field once the digest is known.
	HashFunc *sbxblock.HashFunction
}

// EncodeResult reports what Encode produced.
type EncodeResult struct {
	TotalDataChunks int
	Hash            []byte
}

// Encode wraps input into a new SBX container at OutputPath: it emits the
// metadata block's duplicate copies at their computed positions, streams
// input through a block-buffer, and — if a hash was requested — rewrites
// the metadata block once the final digest is known.
func Encode(ctx context.Context, p Params, opts EncodeOptions) (EncodeResult, error) {
	if p.UID == ([sbxspecs.FileUIDLen]byte{}) {
		p.UID = generateUID()
	}

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return EncodeResult{}, fmt.Errorf("ops: opening input: %w", err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return EncodeResult{}, fmt.Errorf("ops: statting input: %w", err)
	}

	dataSize, err := sbxspecs.DataSize(p.Version)
	if err != nil {
		return EncodeResult{}, err
	}
	totalDataChunks := int((fi.Size() + int64(dataSize) - 1) / int64(dataSize))
	if totalDataChunks == 0 {
		totalDataChunks = 1 // an empty input still gets one (empty) data block
	}

	calc, err := p.calculator()
	if err != nil {
		return EncodeResult{}, err
	}

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return EncodeResult{}, fmt.Errorf("ops: creating output: %w", err)
	}
	defer out.Close()

	metaEnabled := p.MetaEnabled || sbxspecs.UsesRS(p.Version)
	var metaBlock *sbxblock.Block
	if metaEnabled {
		metaBlock = buildMetaBlock(p, opts.InputPath, fi)
		if err := writeMetaCopies(out, p, calc, metaBlock); err != nil {
			return EncodeResult{}, err
		}
	}

	var hasher *streamHasher
	if opts.HashFunc != nil {
		hasher, err = newStreamHasher(*opts.HashFunc)
		if err != nil {
			return EncodeResult{}, err
		}
	}

	chunksWritten := 0
	startSeq := sbxspecs.FirstDataSeqNum(p.Version)
	for chunksWritten < totalDataChunks {
		if err := checkCancelled(ctx); err != nil {
			return EncodeResult{}, err
		}

		remaining := totalDataChunks - chunksWritten
		cycleLots, dataPerLot, lotSize := lotsForCycle(p, remaining)

		buf, err := blockbuffer.NewBuffer(blockbuffer.Options{
			Version:     p.Version,
			UID:         p.UID,
			RS:          p.RS,
			Layout:      p.layoutParams(),
			MetaEnabled: metaEnabled,
			LotCount:    cycleLots,
			StartSeqNum: startSeq,
		})
		if err != nil {
			return EncodeResult{}, err
		}

		toFill := cycleLots * dataPerLot
		if toFill > remaining {
			toFill = remaining
		}

		for i := 0; i < toFill; i++ {
			slot, err := buf.GetSlot()
			if err != nil && err != blockbuffer.ErrLastSlot {
				return EncodeResult{}, fmt.Errorf("ops: filling slot: %w", err)
			}
			n, readErr := io.ReadFull(in, slot.Data)
			if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
				readErr = nil
			}
			if readErr != nil {
				return EncodeResult{}, fmt.Errorf("ops: reading input: %w", readErr)
			}
			slot.ContentLenExcHeader = n
			if hasher != nil {
				hasher.write(slot.Data[:n])
			}
		}

		if err := buf.Encode(ctx); err != nil {
			return EncodeResult{}, err
		}
		if err := buf.CalcSlotWritePos(calc); err != nil {
			return EncodeResult{}, err
		}
		if err := buf.Write(out, true); err != nil {
			return EncodeResult{}, err
		}

		chunksWritten += toFill
		startSeq += uint32(cycleLots * lotSize)
	}

	result := EncodeResult{TotalDataChunks: totalDataChunks}
	if hasher != nil {
		result.Hash = hasher.sum()
		metaBlock.Fields = append(metaBlock.Fields, sbxblock.HSH(hasher.hf, result.Hash))
		if err := writeMetaCopies(out, p, calc, metaBlock); err != nil {
			return EncodeResult{}, err
		}
	}

	return result, nil
}

// generateUID mints a fresh container UID when the caller doesn't supply
// one: the first FileUIDLen bytes of a random UUIDv4.
func generateUID() [sbxspecs.FileUIDLen]byte {
	id := uuid.New()
	var uid [sbxspecs.FileUIDLen]byte
	copy(uid[:], id[:])
	return uid
}

func lotsForCycle(p Params, remainingChunks int) (lots int, dataPerLot int, lotSize int) {
	dataPerLot = blockbuffer.DefaultSingleLotSize
	lotSize = blockbuffer.DefaultSingleLotSize
	if sbxspecs.UsesRS(p.Version) {
		dataPerLot = p.RS.Data
		lotSize = p.RS.Data + p.RS.Parity
	}
	needed := (remainingChunks + dataPerLot - 1) / dataPerLot
	if needed > lotsPerCycle {
		needed = lotsPerCycle
	}
	if needed < 1 {
		needed = 1
	}
	return needed, dataPerLot, lotSize
}

func buildMetaBlock(p Params, inputPath string, fi os.FileInfo) *sbxblock.Block {
	fields := []sbxblock.Field{
		sbxblock.FNM(filepath.Base(inputPath)),
		sbxblock.FSZ(uint64(fi.Size())),
		sbxblock.FDT(fi.ModTime().Unix()),
		sbxblock.SDT(nowUnix()),
	}
	if sbxspecs.UsesRS(p.Version) {
		fields = append(fields, sbxblock.RSD(byte(p.RS.Data)), sbxblock.RSP(byte(p.RS.Parity)))
	}
	return sbxblock.NewMetaBlock(p.Version, p.UID, 0, fields)
}

// writeMetaCopies serialises metaBlock once per duplicate slot
// (layout.MetaBlockCount() copies for RS versions, a single copy
// otherwise), seeking each to its computed position.
func writeMetaCopies(out *os.File, p Params, calc *layout.Calculator, metaBlock *sbxblock.Block) error {
	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return err
	}
	count := layout.MetaBlockCount()
	if !sbxspecs.UsesRS(p.Version) {
		count = 1
	}
	for i := 0; i < count; i++ {
		metaBlock.SeqNum = uint32(i)
		buf := make([]byte, blockSize)
		if err := sbxblock.SyncToBuffer(metaBlock, buf); err != nil {
			return fmt.Errorf("ops: serialising metadata copy %d: %w", i, err)
		}
		pos := calc.MetaSlotIndex(i) * uint64(blockSize)
		if _, err := out.Seek(int64(pos), io.SeekStart); err != nil {
			return fmt.Errorf("ops: seeking to metadata copy %d: %w", i, err)
		}
		if _, err := out.Write(buf); err != nil {
			return fmt.Errorf("ops: writing metadata copy %d: %w", i, err)
		}
	}
	return nil
}
