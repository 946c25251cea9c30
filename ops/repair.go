package ops

import (
	"fmt"
	"io"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/internal/multierror"
	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// RepairResult reports how many blocks were rewritten.
type RepairResult struct {
	MetaRepaired int
	DataRepaired int
}

// Repair locates the reference block, re-emits any metadata duplicate
// whose CRC fails from the reference copy, then walks each RS block set in
// turn: reads all N (or ragged-last) slots, marks each missing whose CRC
// fails or whose header diverges from the reference, and invokes
// rscodec.ReconstructSet when at least one slot is missing. A set with
// more missing shards than parity can recover doesn't stop the walk — its
// failure is collected and every other set is still attempted, with the
// aggregated failures returned together at the end.
//
// burst carries the container's original interleaving depth, the same
// caller-supplied value Decode and Update accept, needed for the same
// reason: nothing in the metadata block records it.
func Repair(containerPath string, burst ...int) (RepairResult, error) {
	f, err := os.OpenFile(containerPath, os.O_RDWR, 0o644)
	if err != nil {
		return RepairResult{}, fmt.Errorf("ops: opening container: %w", err)
	}
	defer f.Close()

	ref, err := findReferenceBlock(f)
	if err != nil {
		return RepairResult{}, err
	}

	p, calc, err := paramsFromReference(ref)
	if err != nil {
		return RepairResult{}, err
	}
	if b := firstBurst(burst); b != p.Burst {
		p.Burst = b
		calc, err = p.calculator()
		if err != nil {
			return RepairResult{}, err
		}
	}

	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return RepairResult{}, err
	}

	var result RepairResult

	if sbxspecs.UsesRS(p.Version) {
		refBuf := make([]byte, blockSize)
		if err := sbxblock.SyncToBuffer(ref, refBuf); err != nil {
			return result, err
		}
		count := layout.MetaBlockCount()
		for i := 0; i < count; i++ {
			pos := calc.MetaSlotIndex(i) * uint64(blockSize)
			buf := make([]byte, blockSize)
			if _, err := f.ReadAt(buf, int64(pos)); err != nil && err != io.EOF {
				return result, err
			}
			if _, err := sbxblock.SyncFromBuffer(buf, refPredicate(ref)); err == nil {
				continue
			}
			dup := *ref
			dup.SeqNum = uint32(i)
			out := make([]byte, blockSize)
			if err := sbxblock.SyncToBuffer(&dup, out); err != nil {
				return result, err
			}
			if _, err := f.WriteAt(out, int64(pos)); err != nil {
				return result, fmt.Errorf("ops: rewriting metadata copy %d: %w", i, err)
			}
			result.MetaRepaired++
		}
	}

	if !sbxspecs.UsesRS(p.Version) {
		return result, nil
	}

	n := p.RS.Data + p.RS.Parity
	first := sbxspecs.FirstDataSeqNum(p.Version)

	fi, err := f.Stat()
	if err != nil {
		return result, err
	}

	var repairErr error
	for setStart := first; ; setStart += uint32(n) {
		shards := make([][]byte, n)
		present := make([]bool, n)
		anyPresent := false
		missing := 0

		for col := 0; col < n; col++ {
			seq := setStart + uint32(col)
			idx, err := calc.IndexOfDataSeq(seq, p.MetaEnabled)
			if err != nil {
				continue
			}
			pos := int64(idx) * int64(blockSize)
			if pos+int64(blockSize) > fi.Size() {
				continue
			}

			buf := make([]byte, blockSize)
			if _, err := f.ReadAt(buf, pos); err != nil && err != io.EOF {
				return result, err
			}

			blk, err := sbxblock.SyncFromBuffer(buf, refPredicate(ref))
			if err != nil || blk.SeqNum != seq {
				missing++
				shards[col] = make([]byte, blockSize-sbxspecs.HeaderSize)
				continue
			}
			shards[col] = buf[sbxspecs.HeaderSize:]
			present[col] = true
			anyPresent = true
		}

		if !anyPresent {
			break
		}
		if missing == 0 {
			continue
		}
		if missing > p.RS.Parity {
			repairErr = multierror.Append(repairErr, fmt.Errorf("ops: set at seq %d: %w", setStart, rscodec.ErrRepairInfeasible))
			continue
		}

		if err := rscodec.ReconstructSet(p.RS, p.RS.Data, shards, present, false); err != nil {
			repairErr = multierror.Append(repairErr, fmt.Errorf("ops: set at seq %d: %w", setStart, err))
			continue
		}

		for col := 0; col < n; col++ {
			if present[col] {
				continue
			}
			seq := setStart + uint32(col)
			idx, err := calc.IndexOfDataSeq(seq, p.MetaEnabled)
			if err != nil {
				continue
			}
			pos := int64(idx) * int64(blockSize)

			blk := sbxblock.NewDataBlock(p.Version, p.UID, seq)
			out := make([]byte, blockSize)
			copy(out[sbxspecs.HeaderSize:], shards[col])
			if err := sbxblock.SyncToBuffer(blk, out); err != nil {
				return result, err
			}
			if _, err := f.WriteAt(out, pos); err != nil {
				return result, fmt.Errorf("ops: rewriting data block: %w", err)
			}
			result.DataRepaired++
		}
	}

	return result, repairErr
}
