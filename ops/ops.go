// Package ops implements the top-level operations (encode, decode, check,
// repair, sort, show, calc, guess-burst, update, rescue) that compose the
// lower-level codec, layout, RS, buffer, and rescue packages into
// whole-container behaviour.
package ops

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// Params fixes the container-wide configuration shared by every operation
// in this package: the SBX version, RS shard counts, burst depth, and
// whether a metadata block is present.
type Params struct {
	Version     sbxspecs.Version
	UID         [sbxspecs.FileUIDLen]byte
	RS          rscodec.Params
	Burst       int
	MetaEnabled bool
}

func (p Params) layoutParams() layout.Params {
	return layout.Params{Data: p.RS.Data, Parity: p.RS.Parity, Burst: p.Burst}
}

func (p Params) calculator() (*layout.Calculator, error) {
	lp := p.layoutParams()
	if !sbxspecs.UsesRS(p.Version) {
		lp = layout.Params{Data: 1, Parity: 0, Burst: 0}
	}
	return layout.NewCalculator(p.Version, lp)
}

// ErrReferenceBlockNotFound reports that no metadata or data block in the
// container could be located to seed layout parameters from.
var ErrReferenceBlockNotFound = fmt.Errorf("ops: no reference block found in container")

// findReferenceBlock parses the block at offset 0: the metadata block when
// one is present, otherwise the first data block. No other position is
// searched; if that block does not parse, ErrReferenceBlockNotFound is
// returned.
func findReferenceBlock(f *os.File) (*sbxblock.Block, error) {
	header := make([]byte, sbxspecs.HeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ops: reading reference header: %w", err)
	}
	cand, err := sbxblock.SyncFromBufferHeaderOnly(header)
	if err != nil {
		return nil, ErrReferenceBlockNotFound
	}
	blockSize, err := sbxspecs.BlockSize(cand.Version)
	if err != nil {
		return nil, ErrReferenceBlockNotFound
	}
	buf := make([]byte, blockSize)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ops: reading reference block: %w", err)
	}
	blk, err := sbxblock.SyncFromBuffer(buf, nil)
	if err != nil {
		return nil, ErrReferenceBlockNotFound
	}
	return blk, nil
}

// nowUnix is the container-creation timestamp source; factored out so
// callers that need determinism (tests) can avoid depending on wall clock
// behaviour through this package's public surface.
var nowUnix = func() int64 { return time.Now().Unix() }

// firstBurst extracts the optional burst argument Decode/Repair accept,
// defaulting to 0 (no interleaving) when the caller omits it.
func firstBurst(burst []int) int {
	if len(burst) == 0 {
		return 0
	}
	return burst[0]
}
