package ops

import (
	"fmt"
	"io"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// SortResult reports how many blocks were relocated to their canonical
// position.
type SortResult struct {
	BlocksWritten int
}

// Sort scans inPath for every block belonging to the first UID it
// encounters, then writes a new container at outPath with each block
// placed at the position its own header's (version, UID, sequence number)
// implies — useful after a rescue run leaves blocks packed contiguously
// rather than at their canonical offsets.
func Sort(inPath, outPath string) (SortResult, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return SortResult{}, fmt.Errorf("ops: opening input: %w", err)
	}
	defer in.Close()

	ref, err := findReferenceBlock(in)
	if err != nil {
		return SortResult{}, err
	}

	p, calc, err := paramsFromReference(ref)
	if err != nil {
		return SortResult{}, err
	}

	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return SortResult{}, err
	}

	fi, err := in.Stat()
	if err != nil {
		return SortResult{}, err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return SortResult{}, fmt.Errorf("ops: creating output: %w", err)
	}
	defer out.Close()

	var result SortResult
	stride := int64(sbxspecs.ScanBlockSize)

	pos := int64(0)
	for pos+int64(blockSize) <= fi.Size() {
		header := make([]byte, sbxspecs.HeaderSize)
		if _, err := in.ReadAt(header, pos); err != nil && err != io.EOF {
			return result, err
		}
		cand, err := sbxblock.SyncFromBufferHeaderOnly(header)
		if err != nil || cand.UID != ref.UID {
			pos += stride
			continue
		}

		buf := make([]byte, blockSize)
		if _, err := in.ReadAt(buf, pos); err != nil && err != io.EOF {
			return result, err
		}
		blk, err := sbxblock.SyncFromBuffer(buf, refPredicate(ref))
		if err != nil {
			pos += stride
			continue
		}

		var destIdx uint64
		if blk.Type() == sbxblock.BlockTypeMeta {
			destIdx = calc.MetaSlotIndex(int(blk.SeqNum))
		} else {
			destIdx, err = calc.IndexOfDataSeq(blk.SeqNum, p.MetaEnabled)
			if err != nil {
				pos += stride
				continue
			}
		}

		destPos := int64(destIdx) * int64(blockSize)
		if _, err := out.WriteAt(buf, destPos); err != nil {
			return result, fmt.Errorf("ops: writing sorted block: %w", err)
		}
		result.BlocksWritten++

		// A confirmed block occupies a whole block's worth of bytes;
		// resume scanning immediately after it.
		pos += int64(blockSize)
	}

	return result, nil
}
