package ops

import (
	"fmt"
	"io"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// CheckResult tallies blocks passing CRC per type; Check never mutates the
// container.
type CheckResult struct {
	MetaOK, MetaFailed int
	DataOK, DataFailed int
}

// Check walks containerPath at offsets aligned to the reference block's
// version block size —
// not a full rescue scan, just a pass over the positions a well-formed
// container of the reference block's version would place blocks at — and
// tallies CRC pass/fail per block type.
func Check(containerPath string) (CheckResult, error) {
	f, err := os.Open(containerPath)
	if err != nil {
		return CheckResult{}, fmt.Errorf("ops: opening container: %w", err)
	}
	defer f.Close()

	ref, err := findReferenceBlock(f)
	if err != nil {
		return CheckResult{}, err
	}

	blockSize, err := sbxspecs.BlockSize(ref.Version)
	if err != nil {
		return CheckResult{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		return CheckResult{}, err
	}

	var res CheckResult
	for pos := int64(0); pos+int64(blockSize) <= fi.Size(); pos += int64(blockSize) {
		buf := make([]byte, blockSize)
		if _, err := f.ReadAt(buf, pos); err != nil && err != io.EOF {
			return res, fmt.Errorf("ops: reading block at %d: %w", pos, err)
		}

		cand, err := sbxblock.SyncFromBufferHeaderOnly(buf[:sbxspecs.HeaderSize])
		if err != nil || cand.Version != ref.Version || cand.UID != ref.UID {
			continue
		}

		blk, err := sbxblock.SyncFromBuffer(buf, nil)
		ok := err == nil
		isMeta := false
		if ok {
			isMeta = blk.Type() == sbxblock.BlockTypeMeta
		} else {
			isMeta = sbxblock.BlockTypeOf(cand.Version, cand.SeqNum) == sbxblock.BlockTypeMeta
		}

		switch {
		case isMeta && ok:
			res.MetaOK++
		case isMeta && !ok:
			res.MetaFailed++
		case !isMeta && ok:
			res.DataOK++
		case !isMeta && !ok:
			res.DataFailed++
		}
	}

	return res, nil
}
