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

// UpdateOptions names the metadata field changes Update applies to an
// existing container's metadata block(s). A nil Set* pointer and a false
// Remove* flag together mean "leave that field alone".
type UpdateOptions struct {
	SetFNM    *string
	RemoveFNM bool

	SetSNM    *string
	RemoveSNM bool

	SetFSZ *uint64
	SetFDT *int64

	// Rehash, if non-nil, rereads every data block's stored payload (no
	// data block is modified) and replaces the HSH field with a fresh
	// digest under this function.
	Rehash    *sbxblock.HashFunction
	RemoveHSH bool

	// Burst is the interleaving depth the container was originally
	// encoded with. It cannot be recovered from the metadata block
	// itself (layout.Calculator needs it up front to find that very
	// block), so the caller must supply it for a burst-encoded
	// container, the same way Decode and Repair take it.
	Burst int
}

// UpdateResult reports what Update changed.
type UpdateResult struct {
	// Hash is the freshly computed digest, populated when Rehash was set.
	Hash []byte
}

// ErrNoMetadataBlock reports that containerPath has no metadata block to
// update (it was encoded with MetaEnabled false and no RS).
var ErrNoMetadataBlock = fmt.Errorf("ops: container has no metadata block")

// Update patches the requested metadata fields of an existing container's
// metadata block in place: it loads the stored field list, applies the
// requested set/remove changes, recomputes every duplicate copy's CRC, and
// rewrites each copy at its existing on-disk position. No data block is
// read (beyond what Rehash needs) or written, and the container keeps its
// original UID; there is no new-container or lineage concept here.
func Update(ctx context.Context, containerPath string, opts UpdateOptions) (UpdateResult, error) {
	f, err := os.OpenFile(containerPath, os.O_RDWR, 0o644)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ops: opening container: %w", err)
	}
	defer f.Close()

	ref, err := findReferenceBlock(f)
	if err != nil {
		return UpdateResult{}, err
	}
	if ref.Type() != sbxblock.BlockTypeMeta {
		return UpdateResult{}, ErrNoMetadataBlock
	}

	p, calc, err := paramsFromReference(ref)
	if err != nil {
		return UpdateResult{}, err
	}
	if p.Burst != opts.Burst {
		p.Burst = opts.Burst
		calc, err = p.calculator()
		if err != nil {
			return UpdateResult{}, err
		}
	}

	var result UpdateResult
	if opts.Rehash != nil {
		fi, err := f.Stat()
		if err != nil {
			return UpdateResult{}, fmt.Errorf("ops: statting container: %w", err)
		}
		digest, err := hashStoredData(ctx, f, fi.Size(), ref, p, calc, *opts.Rehash)
		if err != nil {
			return UpdateResult{}, err
		}
		result.Hash = digest
	}

	applyFieldUpdates(ref, opts, result.Hash)

	if err := writeMetaCopies(f, p, calc, ref); err != nil {
		return UpdateResult{}, err
	}
	return result, nil
}

// applyFieldUpdates rewrites ref.Fields in place according to opts,
// dropping any field named for removal before appending its replacement.
func applyFieldUpdates(ref *sbxblock.Block, opts UpdateOptions, freshHash []byte) {
	drop := map[sbxblock.FieldID]bool{}
	if opts.SetFNM != nil || opts.RemoveFNM {
		drop[sbxblock.FieldFNM] = true
	}
	if opts.SetSNM != nil || opts.RemoveSNM {
		drop[sbxblock.FieldSNM] = true
	}
	if opts.SetFSZ != nil {
		drop[sbxblock.FieldFSZ] = true
	}
	if opts.SetFDT != nil {
		drop[sbxblock.FieldFDT] = true
	}
	if opts.Rehash != nil || opts.RemoveHSH {
		drop[sbxblock.FieldHSH] = true
	}

	kept := ref.Fields[:0]
	for _, f := range ref.Fields {
		if !drop[f.ID] {
			kept = append(kept, f)
		}
	}
	ref.Fields = kept

	if opts.SetFNM != nil {
		ref.Fields = append(ref.Fields, sbxblock.FNM(*opts.SetFNM))
	}
	if opts.SetSNM != nil {
		ref.Fields = append(ref.Fields, sbxblock.SNM(*opts.SetSNM))
	}
	if opts.SetFSZ != nil {
		ref.Fields = append(ref.Fields, sbxblock.FSZ(*opts.SetFSZ))
	}
	if opts.SetFDT != nil {
		ref.Fields = append(ref.Fields, sbxblock.FDT(*opts.SetFDT))
	}
	if opts.Rehash != nil {
		ref.Fields = append(ref.Fields, sbxblock.HSH(*opts.Rehash, freshHash))
	}
}

// hashStoredData walks the container's data blocks in sequence-number
// order, the same traversal Decode uses, feeding each payload straight
// into a digest context instead of an output file.
func hashStoredData(ctx context.Context, in io.ReaderAt, containerSize int64, ref *sbxblock.Block, p Params, calc *layout.Calculator, hf sbxblock.HashFunction) ([]byte, error) {
	h, err := newHasher(hf)
	if err != nil {
		return nil, err
	}

	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return nil, err
	}
	first := sbxspecs.FirstDataSeqNum(p.Version)

	var storedSize uint64
	var haveSize bool
	if f, ok := ref.Field(sbxblock.FieldFSZ); ok {
		if sz, err := f.AsUint64(); err == nil {
			storedSize, haveSize = sz, true
		}
	}

	var hashed int64
	seq := first
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		idx, err := calc.IndexOfDataSeq(seq, p.MetaEnabled)
		if err != nil {
			break
		}
		pos := int64(idx) * int64(blockSize)
		if pos+int64(blockSize) > containerSize {
			break
		}

		buf := make([]byte, blockSize)
		if _, err := in.ReadAt(buf, pos); err != nil && err != io.EOF {
			return nil, fmt.Errorf("ops: reading block at %d: %w", pos, err)
		}

		blk, err := sbxblock.SyncFromBuffer(buf, refPredicate(ref))
		if err != nil || blk.Type() != sbxblock.BlockTypeData {
			seq++
			continue
		}
		if sbxspecs.UsesRS(p.Version) && int(seq-first)%(p.RS.Data+p.RS.Parity) >= p.RS.Data {
			seq++
			continue
		}

		payload := buf[sbxspecs.HeaderSize:]
		n := len(payload)
		if haveSize {
			remain := int64(storedSize) - hashed
			if remain <= 0 {
				break
			}
			if remain < int64(n) {
				n = int(remain)
			}
		}

		if _, err := h.Write(payload[:n]); err != nil {
			return nil, fmt.Errorf("ops: hashing block at %d: %w", pos, err)
		}
		hashed += int64(n)

		seq++
		if haveSize && hashed >= int64(storedSize) {
			break
		}
	}

	return h.Sum(nil), nil
}
