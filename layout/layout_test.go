package layout

import (
	"testing"

	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
	"github.com/stretchr/testify/require"
)

func TestBijectionNoBurst(t *testing.T) {
	r := require.New(t)

	c, err := NewCalculator(sbxspecs.V17, Params{Data: 10, Parity: 2, Burst: 0})
	r.NoError(err)

	first := sbxspecs.FirstDataSeqNum(sbxspecs.V17)
	for s := first; s < first+500; s++ {
		idx, err := c.IndexOfDataSeq(s, true)
		r.NoError(err)

		dataIdx := idx - uint64(MetaBlockCount())
		got := c.SeqOfDataIndex(dataIdx)
		r.Equal(s, got, "sequence number %d did not round-trip", s)
	}
}

func TestBijectionWithBurst(t *testing.T) {
	r := require.New(t)

	c, err := NewCalculator(sbxspecs.V17, Params{Data: 10, Parity: 2, Burst: 5})
	r.NoError(err)

	first := sbxspecs.FirstDataSeqNum(sbxspecs.V17)
	seen := map[uint64]uint32{}
	for s := first; s < first+2000; s++ {
		idx, err := c.IndexOfDataSeq(s, true)
		r.NoError(err)

		dataIdx := idx - uint64(MetaBlockCount())

		// Bijectivity: no two distinct sequence numbers may collide on
		// the same on-disk index.
		if prior, ok := seen[dataIdx]; ok {
			r.Failf("collision", "seq %d and %d both map to index %d", prior, s, dataIdx)
		}
		seen[dataIdx] = s

		got := c.SeqOfDataIndex(dataIdx)
		r.Equal(s, got)
	}
}

func TestBurstResistance(t *testing.T) {
	r := require.New(t)

	// With interleave depth B, any contiguous run of P on-disk blocks
	// within one super-set must land in P distinct block sets, so a
	// burst erasure no wider than P leaves every block set missing at
	// most one member.
	data, parity, burst := 10, 2, 4
	c, err := NewCalculator(sbxspecs.V17, Params{Data: data, Parity: parity, Burst: burst})
	r.NoError(err)

	first := sbxspecs.FirstDataSeqNum(sbxspecs.V17)
	n := data + parity

	// Collect on-disk indices for one full super-set.
	setOf := map[uint64]int{}
	for s := first; s < first+uint32(n*burst); s++ {
		idx, err := c.IndexOfDataSeq(s, true)
		r.NoError(err)
		dataIdx := idx - uint64(MetaBlockCount())
		withinSuper := dataIdx % uint64(n*burst)
		blockSet := int(withinSuper % uint64(burst))
		setOf[withinSuper] = blockSet
	}

	// A contiguous run of `parity` on-disk positions must touch exactly
	// `parity` distinct block sets (so each loses at most one member).
	for start := uint64(0); start < uint64(n*burst)-uint64(parity); start++ {
		touched := map[int]bool{}
		for i := uint64(0); i < uint64(parity); i++ {
			touched[setOf[start+i]] = true
		}
		r.Equal(parity, len(touched))
	}
}

func TestMetaSlotsDisjointFromData(t *testing.T) {
	r := require.New(t)

	c, err := NewCalculator(sbxspecs.V17, Params{Data: 10, Parity: 2, Burst: 3})
	r.NoError(err)

	metaSlots := map[uint64]bool{}
	for i := 0; i < MetaBlockCount(); i++ {
		// Metadata occupies the reserved global prefix [0, MetaBlockCount()).
		metaSlots[c.MetaSlotIndex(i)] = true
		r.Less(c.MetaSlotIndex(i), uint64(MetaBlockCount())*uint64(c.Params().N())*uint64(maxInt(c.Params().Burst, 1)))
	}

	first := sbxspecs.FirstDataSeqNum(sbxspecs.V17)
	for s := first; s < first+200; s++ {
		idx, err := c.IndexOfDataSeq(s, true)
		r.NoError(err)
		// The data region's global index always carries the
		// metadata-block-count prefix, so it can never land below it.
		r.GreaterOrEqual(idx, uint64(MetaBlockCount()))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func TestInvalidParams(t *testing.T) {
	r := require.New(t)

	_, err := NewCalculator(sbxspecs.V17, Params{Data: 0, Parity: 2})
	r.ErrorIs(err, ErrInvalidParams)

	_, err = NewCalculator(sbxspecs.V17, Params{Data: 200, Parity: 100})
	r.ErrorIs(err, ErrInvalidParams)
}

func TestGuessBurst(t *testing.T) {
	r := require.New(t)

	actualBurst := 7
	found, err := GuessBurst(sbxspecs.V17, Params{Data: 10, Parity: 2}, GuessBurstOptions{
		MaxBurst: 20,
		Confirm: func(burst int, metaSlotIndices []uint64) bool {
			return burst == actualBurst
		},
	})
	r.NoError(err)
	r.Equal(actualBurst, found)
}

func TestGuessBurstFails(t *testing.T) {
	r := require.New(t)

	_, err := GuessBurst(sbxspecs.V17, Params{Data: 10, Parity: 2}, GuessBurstOptions{
		MaxBurst: 5,
		Confirm:  func(burst int, metaSlotIndices []uint64) bool { return false },
	})
	r.ErrorIs(err, ErrBurstGuessFailed)
}

func TestLastSetSize(t *testing.T) {
	r := require.New(t)

	r.Equal(10, LastSetSize(100, 10))
	r.Equal(3, LastSetSize(103, 10))
	r.Equal(10, LastSetSize(10, 10))
}
