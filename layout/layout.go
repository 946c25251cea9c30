// Package layout implements the bijection
// between a block's logical sequence number and its on-disk position under
// Reed-Solomon block-set grouping plus optional burst interleaving.
package layout

import (
	"fmt"

	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// Params fixes the (data, parity, burst) triple a container was encoded
// with. Burst 0 and 1 are both treated as "no interleaving" (identity
// mapping); Validate rejects a non-positive data count, a negative parity
// count, and values that make D+P exceed 256 shards, the ceiling
// github.com/klauspost/reedsolomon imposes on one RS set.
type Params struct {
	Data   int
	Parity int
	Burst  int
}

// N is the RS shard width D+P.
func (p Params) N() int { return p.Data + p.Parity }

// ErrInvalidParams reports an (D, P, B) triple the layout calculator cannot
// work with.
var ErrInvalidParams = fmt.Errorf("layout: invalid (data, parity, burst) parameters")

// Validate checks the bound klauspost/reedsolomon imposes (shard count in
// [1, 256]) and rejects a non-positive data count.
func (p Params) Validate() error {
	if p.Data <= 0 {
		return ErrInvalidParams
	}
	if p.Parity < 0 {
		return ErrInvalidParams
	}
	if p.N() > 256 {
		return ErrInvalidParams
	}
	return nil
}

// burstStride normalises burst 0 to 1: both mean "no interleaving".
func (p Params) burstStride() int {
	if p.Burst <= 0 {
		return 1
	}
	return p.Burst
}

// MetaBlockCount is the number of metadata-duplicate copies an RS container
// carries: 1 + sbxspecs.RSMetadataParityCount, a fixed constant that does
// not depend on the data block-set's own RS width or parity count P.
func MetaBlockCount() int {
	return 1 + sbxspecs.RSMetadataParityCount
}

// Calculator computes the sequence-number <-> on-disk-index bijection for a
// fixed (D, P, B) and SBX version. Positions are expressed in whole blocks;
// multiply by sbxspecs.BlockSize(v) for a byte offset.
type Calculator struct {
	version sbxspecs.Version
	params  Params
}

// NewCalculator builds a layout calculator for v under params. Returns
// ErrInvalidParams if params is not usable.
func NewCalculator(v sbxspecs.Version, params Params) (*Calculator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{version: v, params: params}, nil
}

// Params reports the (data, parity, burst) this calculator was built with.
func (c *Calculator) Params() Params { return c.params }

// metaBlockCount is the number of block slots reserved ahead of the data
// region: MetaBlockCount for RS versions, 1 for a non-RS version carrying a
// metadata block, and 0 when metadata was turned off (the only config
// where the first data block can sit at index 0).
func (c *Calculator) metaBlockCount(metaEnabled bool) int {
	if !metaEnabled {
		return 0
	}
	if !sbxspecs.UsesRS(c.version) {
		return 1
	}
	return MetaBlockCount()
}

// IndexOfDataSeq maps a data/parity sequence number s (s >=
// first_data_seq_num(v)) to its on-disk block index, given whether metadata
// is present ahead of the data region.
func (c *Calculator) IndexOfDataSeq(s uint32, metaEnabled bool) (uint64, error) {
	first := sbxspecs.FirstDataSeqNum(c.version)
	if s < first {
		return 0, fmt.Errorf("layout: sequence number %d precedes first data sequence number %d", s, first)
	}

	n := uint64(c.params.N())
	b := uint64(c.burstStride())
	superStride := n * b

	s0 := uint64(s - first)
	superIndex := s0 / superStride
	withinSuper := s0 % superStride
	blockSetIndex := withinSuper / n
	col := withinSuper % n

	onDiskWithinSuper := col*b + blockSetIndex
	global := uint64(c.metaBlockCount(metaEnabled)) + superIndex*superStride + onDiskWithinSuper
	return global, nil
}

// SeqOfDataIndex is the inverse of IndexOfDataSeq: given an on-disk block
// index in the data region (index already has the metadata-block prefix
// subtracted), recover the sequence number.
func (c *Calculator) SeqOfDataIndex(index uint64) uint32 {
	first := sbxspecs.FirstDataSeqNum(c.version)

	n := uint64(c.params.N())
	b := uint64(c.burstStride())
	superStride := n * b

	superIndex := index / superStride
	onDiskWithinSuper := index % superStride

	blockSetIndex := onDiskWithinSuper % b
	col := onDiskWithinSuper / b

	withinSuper := blockSetIndex*n + col
	s0 := superIndex*superStride + withinSuper
	return first + uint32(s0)
}

// MetaSlotIndex returns the on-disk block index of metadata duplicate copy
// i (0-based, i in [0, MetaBlockCount())), interleaved using the same
// formula as data blocks with a virtual sequence-zero column.
func (c *Calculator) MetaSlotIndex(i int) uint64 {
	n := uint64(c.params.N())
	b := uint64(c.burstStride())
	superStride := n * b
	// Metadata duplicate i occupies logical super-set i, column 0.
	return uint64(i) * superStride
}

// GuessBurstOptions parameterises burst guessing against a raw container
// file: a decode function the caller supplies to confirm a candidate burst
// value reconstructs the expected metadata-duplicate slots correctly.
type GuessBurstOptions struct {
	// MaxBurst bounds the search.
	MaxBurst int
	// Confirm is called with a candidate burst value and the
	// MetaBlockCount() metadata-duplicate slot positions it implies (copy
	// 0's slot included); it must report whether all of them decode and match
	// the reference block's UID/version.
	Confirm func(burst int, metaSlotIndices []uint64) bool
}

// DefaultMaxBurst is the default upper bound for a burst-guessing sweep.
const DefaultMaxBurst = 1000

// ErrBurstGuessFailed reports that no burst value in [0, MaxBurst] produced
// a layout whose metadata-duplicate slots all confirm against the
// reference block.
var ErrBurstGuessFailed = fmt.Errorf("layout: burst guessing exhausted candidate range without a match")

// GuessBurst tries each burst in [0, opts.MaxBurst], building a calculator
// for (data, parity, candidate-burst) and asking opts.Confirm whether the
// resulting metadata-duplicate slots are consistent with the reference
// block, returning the smallest matching burst.
func GuessBurst(v sbxspecs.Version, dataParity Params, opts GuessBurstOptions) (int, error) {
	maxBurst := opts.MaxBurst
	if maxBurst <= 0 {
		maxBurst = DefaultMaxBurst
	}

	for burst := 0; burst <= maxBurst; burst++ {
		p := dataParity
		p.Burst = burst
		c, err := NewCalculator(v, p)
		if err != nil {
			continue
		}

		count := MetaBlockCount()
		slots := make([]uint64, count)
		for i := 0; i < count; i++ {
			slots[i] = c.MetaSlotIndex(i)
		}

		if opts.Confirm(burst, slots) {
			return burst, nil
		}
	}
	return 0, ErrBurstGuessFailed
}

// LastSetSize reports the size of the final, possibly-ragged block set for
// totalDataChunks data shards under a block-set width of D: the normal set
// size D, or the remainder when totalDataChunks is not a multiple of D.
func LastSetSize(totalDataChunks, d int) int {
	if d <= 0 {
		return 0
	}
	rem := totalDataChunks % d
	if rem == 0 {
		return d
	}
	return rem
}
