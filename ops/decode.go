package ops

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// ErrHashMismatch reports that the reconstructed output's digest disagrees
// with the HSH field stored in the container's metadata.
var ErrHashMismatch = fmt.Errorf("ops: decoded output does not match stored hash")

// DecodeResult reports what Decode observed.
type DecodeResult struct {
	BytesWritten int64
	HashChecked  bool
	HashOK       bool
}

// Decode locates a reference block (preferring metadata, else the first
// data-looking block), derives layout parameters from it, and writes every
// data block's payload to its position in the output file. If the
// container carries a stored hash, it recomputes the digest over the
// output and compares.
//
// burst names the interleaving depth the container was originally encoded
// with, exactly like UpdateOptions.Burst: a metadata block carries no RSD/
// RSP-style field recording it, so a burst-encoded container needs it
// supplied by the caller or Decode will read data blocks out of sequence.
// Omitting burst (or passing 0) is correct for the common non-interleaved
// case and every existing caller.
func Decode(ctx context.Context, containerPath, outputPath string, burst ...int) (DecodeResult, error) {
	in, err := os.Open(containerPath)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("ops: opening container: %w", err)
	}
	defer in.Close()

	ref, err := findReferenceBlock(in)
	if err != nil {
		return DecodeResult{}, err
	}

	fi, err := in.Stat()
	if err != nil {
		return DecodeResult{}, fmt.Errorf("ops: statting container: %w", err)
	}

	p, calc, err := paramsFromReference(ref)
	if err != nil {
		return DecodeResult{}, err
	}
	if b := firstBurst(burst); b != p.Burst {
		p.Burst = b
		calc, err = p.calculator()
		if err != nil {
			return DecodeResult{}, err
		}
	}

	var storedSize uint64
	var haveSize bool
	var storedHashFunc sbxblock.HashFunction
	var storedHash []byte
	if ref.Type() == sbxblock.BlockTypeMeta {
		if f, ok := ref.Field(sbxblock.FieldFSZ); ok {
			if sz, err := f.AsUint64(); err == nil {
				storedSize, haveSize = sz, true
			}
		}
		if f, ok := ref.Field(sbxblock.FieldHSH); ok {
			if hf, digest, err := f.AsHash(); err == nil {
				storedHashFunc, storedHash = hf, digest
			}
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("ops: creating output: %w", err)
	}
	defer out.Close()

	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return DecodeResult{}, err
	}
	dataSize, err := sbxspecs.DataSize(p.Version)
	if err != nil {
		return DecodeResult{}, err
	}
	first := sbxspecs.FirstDataSeqNum(p.Version)

	var maxWritten int64
	seq := first
	for {
		if err := checkCancelled(ctx); err != nil {
			return DecodeResult{}, err
		}

		idx, err := calc.IndexOfDataSeq(seq, p.MetaEnabled)
		if err != nil {
			break
		}
		pos := int64(idx) * int64(blockSize)
		if pos+int64(blockSize) > fi.Size() {
			break
		}

		buf := make([]byte, blockSize)
		if _, err := in.ReadAt(buf, pos); err != nil && err != io.EOF {
			return DecodeResult{}, fmt.Errorf("ops: reading block at %d: %w", pos, err)
		}

		blk, err := sbxblock.SyncFromBuffer(buf, refPredicate(ref))
		if err != nil {
			// A data slot that fails CRC or predicate here means the
			// container is damaged beyond what decode alone can fix;
			// ops.Repair should be run first.
			seq++
			continue
		}
		if blk.Type() != sbxblock.BlockTypeData {
			seq++
			continue
		}

		// Under RS each block set spans D+P consecutive sequence numbers,
		// data first and parity after; parity payloads are not output, so
		// the output index counts data blocks only.
		dataIdx := int64(seq - first)
		if sbxspecs.UsesRS(p.Version) {
			setWidth := int64(p.RS.Data + p.RS.Parity)
			col := dataIdx % setWidth
			if col >= int64(p.RS.Data) {
				seq++
				continue
			}
			dataIdx = (dataIdx/setWidth)*int64(p.RS.Data) + col
		}

		payload := buf[sbxspecs.HeaderSize:]
		outPos := dataIdx * int64(dataSize)

		n := len(payload)
		if haveSize {
			remain := int64(storedSize) - outPos
			if remain <= 0 {
				break
			}
			if remain < int64(n) {
				n = int(remain)
			}
		}

		if _, err := out.WriteAt(payload[:n], outPos); err != nil {
			return DecodeResult{}, fmt.Errorf("ops: writing output: %w", err)
		}
		if outPos+int64(n) > maxWritten {
			maxWritten = outPos + int64(n)
		}

		seq++
		if haveSize && maxWritten >= int64(storedSize) {
			break
		}
	}

	result := DecodeResult{BytesWritten: maxWritten}

	if storedHash != nil {
		result.HashChecked = true
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return result, err
		}
		h, err := newHasher(storedHashFunc)
		if err != nil {
			return result, err
		}
		if _, err := io.Copy(h, out); err != nil {
			return result, fmt.Errorf("ops: hashing output: %w", err)
		}
		result.HashOK = sumEqual(h.Sum(nil), storedHash)
		if !result.HashOK {
			return result, ErrHashMismatch
		}
	}

	return result, nil
}

func sumEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// refPredicate builds a sbxblock.Predicate that requires a candidate to
// share the reference block's version and UID.
func refPredicate(ref *sbxblock.Block) sbxblock.Predicate {
	return func(version sbxspecs.Version, uid [sbxspecs.FileUIDLen]byte, seqNum uint32) bool {
		return version == ref.Version && uid == ref.UID
	}
}

// paramsFromReference rebuilds container Params and a layout.Calculator
// from a parsed reference block's metadata fields (RSD/RSP), defaulting to
// no-RS/no-burst when the version doesn't use RS.
func paramsFromReference(ref *sbxblock.Block) (Params, *layout.Calculator, error) {
	p := Params{Version: ref.Version, UID: ref.UID, MetaEnabled: ref.Type() == sbxblock.BlockTypeMeta}

	if sbxspecs.UsesRS(ref.Version) {
		p.MetaEnabled = true
		if ref.Type() == sbxblock.BlockTypeMeta {
			if f, ok := ref.Field(sbxblock.FieldRSD); ok {
				if n, err := f.AsByte(); err == nil {
					p.RS.Data = int(n)
				}
			}
			if f, ok := ref.Field(sbxblock.FieldRSP); ok {
				if n, err := f.AsByte(); err == nil {
					p.RS.Parity = int(n)
				}
			}
		}
	}

	calc, err := p.calculator()
	if err != nil {
		return p, nil, err
	}
	return p, calc, nil
}
