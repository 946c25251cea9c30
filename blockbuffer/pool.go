package blockbuffer

import (
	"fmt"

	"github.com/darrenldl/blockyarchive-sub000/layout"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// Pool is a fixed-size ring of Buffers. Buffer i starts at sequence number
// sbxspecs.FirstDataSeqNum(v) + i*lotCount*lotSize; once a buffer's encode/write cycle completes,
// its start advances by len(pool)*lotCount*lotSize so the ring as a whole
// covers the sequence space without gaps or overlaps.
type Pool struct {
	buffers []*Buffer
	stride  uint32
}

// PoolOptions configures NewPool.
type PoolOptions struct {
	Version     sbxspecs.Version
	UID         [sbxspecs.FileUIDLen]byte
	RS          rscodec.Params
	Layout      layout.Params
	MetaEnabled bool
	LotCount    int
	// Size is the number of buffers K in the ring.
	Size int
}

// NewPool builds a ring of Size buffers, each seeded with its starting
// sequence number per the FirstDataSeqNum(v) + i*lotCount*lotSize rule.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Size <= 0 {
		opts.Size = 1
	}

	lotSize := DefaultSingleLotSize
	if sbxspecs.UsesRS(opts.Version) {
		lotSize = opts.Layout.N()
	}
	stride := uint32(opts.LotCount * lotSize)

	buffers := make([]*Buffer, opts.Size)
	for i := range buffers {
		buf, err := NewBuffer(Options{
			Version:     opts.Version,
			UID:         opts.UID,
			RS:          opts.RS,
			Layout:      opts.Layout,
			MetaEnabled: opts.MetaEnabled,
			LotCount:    opts.LotCount,
			StartSeqNum: sbxspecs.FirstDataSeqNum(opts.Version) + uint32(i)*stride,
		})
		if err != nil {
			return nil, fmt.Errorf("blockbuffer: building pool member %d: %w", i, err)
		}
		buffers[i] = buf
	}

	return &Pool{buffers: buffers, stride: stride * uint32(opts.Size)}, nil
}

// Buffers returns the pool's members in ring order.
func (p *Pool) Buffers() []*Buffer { return p.buffers }

// Advance moves buffer i's start sequence number forward by the full ring
// stride, marking it exhausted if that would overflow u32.
func (p *Pool) Advance(i int) error {
	buf := p.buffers[i]
	next := uint64(buf.startSeqNum) + uint64(p.stride)
	if next >= uint64(sbxspecs.LastSeqNum) {
		buf.exhausted = true
		return fmt.Errorf("blockbuffer: pool member %d exhausted the sequence number space", i)
	}
	buf.startSeqNum = uint32(next)
	return nil
}
