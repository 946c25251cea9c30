package ops

import (
	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// CalcResult reports the container shape a given set of parameters implies,
// without reading or writing any file — the numbers a caller needs before
// committing to an encode.
type CalcResult struct {
	BlockSize       int
	DataSize        int
	MetaBlockCount  int
	FirstDataSeqNum uint32
	TotalBlocks     int
}

// Calc computes the block layout implied by p for an input of size
// inputSize bytes, without touching disk.
func Calc(p Params, inputSize int64) (CalcResult, error) {
	blockSize, err := sbxspecs.BlockSize(p.Version)
	if err != nil {
		return CalcResult{}, err
	}
	dataSize, err := sbxspecs.DataSize(p.Version)
	if err != nil {
		return CalcResult{}, err
	}

	totalDataChunks := int((inputSize + int64(dataSize) - 1) / int64(dataSize))
	if totalDataChunks == 0 {
		totalDataChunks = 1
	}

	res := CalcResult{
		BlockSize:       blockSize,
		DataSize:        dataSize,
		FirstDataSeqNum: sbxspecs.FirstDataSeqNum(p.Version),
	}

	if sbxspecs.UsesRS(p.Version) {
		res.MetaBlockCount = layout.MetaBlockCount()
		n := p.RS.Data + p.RS.Parity
		fullSets := totalDataChunks / p.RS.Data
		rem := totalDataChunks % p.RS.Data
		totalRSBlocks := fullSets * n
		if rem > 0 {
			totalRSBlocks += layout.LastSetSize(totalDataChunks, p.RS.Data) + p.RS.Parity
		}
		res.TotalBlocks = res.MetaBlockCount + totalRSBlocks
	} else {
		res.MetaBlockCount = 0
		if p.MetaEnabled {
			res.MetaBlockCount = 1
		}
		res.TotalBlocks = res.MetaBlockCount + totalDataChunks
	}

	return res, nil
}

// GuessBurst re-exports layout.GuessBurst under container Params, sweeping
// candidate burst depths against confirm, which should attempt to parse a
// metadata duplicate at the offered slot indices and report whether it
// looks valid.
func GuessBurst(p Params, opts layout.GuessBurstOptions) (int, error) {
	dataParity := layout.Params{Data: p.RS.Data, Parity: p.RS.Parity}
	return layout.GuessBurst(p.Version, dataParity, opts)
}
