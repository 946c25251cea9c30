package ops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

func TestCalcNoRSExactMultiple(t *testing.T) {
	r := require.New(t)
	p := Params{Version: sbxspecs.V1, MetaEnabled: true}
	dataSize, err := sbxspecs.DataSize(sbxspecs.V1)
	r.NoError(err)

	res, err := Calc(p, int64(dataSize*10))
	r.NoError(err)
	r.Equal(1, res.MetaBlockCount)
	r.Equal(11, res.TotalBlocks) // 1 meta + 10 data
}

func TestCalcRSExactMultiple(t *testing.T) {
	r := require.New(t)
	p := Params{Version: sbxspecs.V17, RS: rscodec.Params{Data: 4, Parity: 2}}
	dataSize, err := sbxspecs.DataSize(sbxspecs.V17)
	r.NoError(err)

	res, err := Calc(p, int64(dataSize*8)) // exactly two full sets
	r.NoError(err)
	r.Equal(layout.MetaBlockCount(), res.MetaBlockCount)
	r.Equal(layout.MetaBlockCount()+2*6, res.TotalBlocks)
}

func TestCalcRSRaggedLast(t *testing.T) {
	r := require.New(t)
	p := Params{Version: sbxspecs.V17, RS: rscodec.Params{Data: 4, Parity: 2}}
	dataSize, err := sbxspecs.DataSize(sbxspecs.V17)
	r.NoError(err)

	res, err := Calc(p, int64(dataSize*5)) // one full set + 1 ragged chunk
	r.NoError(err)
	// First set: 4 data + 2 parity = 6. Last set: 1 data + 2 parity = 3.
	r.Equal(layout.MetaBlockCount()+6+3, res.TotalBlocks)
}

func TestCalcEmptyInputStillGetsOneChunk(t *testing.T) {
	r := require.New(t)
	p := Params{Version: sbxspecs.V1, MetaEnabled: true}
	res, err := Calc(p, 0)
	r.NoError(err)
	r.Equal(2, res.TotalBlocks) // 1 meta + 1 (empty) data block
}
