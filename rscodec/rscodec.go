// Package rscodec implements Reed-Solomon erasure coding: a
// encoder and repairer over github.com/klauspost/reedsolomon, each aware of
// the ragged last block set that appears when the data shard count is not a
// multiple of D.
package rscodec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// ErrRepairInfeasible reports that more shards are missing from a block set
// than the parity budget can reconstruct.
var ErrRepairInfeasible = fmt.Errorf("rscodec: missing shard count exceeds parity budget")

// ErrVerifyMismatch reports that a verification pass recomputed parity that
// disagrees with the parity shards on disk.
var ErrVerifyMismatch = fmt.Errorf("rscodec: recomputed parity does not match stored parity")

// Params fixes the RS shard width for a container: D data shards, P parity
// shards per block set.
type Params struct {
	Data   int
	Parity int
}

// codecPair holds the "normal" full-width RS codec plus a second one sized
// for the ragged last set, lazily built the first time it's needed (it may
// never be needed if totalDataChunks is an exact multiple of D).
type codecPair struct {
	params Params

	normal reedsolomon.Encoder

	lastSize int
	last     reedsolomon.Encoder
}

func newCodecPair(params Params, totalDataChunks int) (*codecPair, error) {
	normal, err := reedsolomon.New(params.Data, params.Parity)
	if err != nil {
		return nil, fmt.Errorf("rscodec: building normal codec: %w", err)
	}

	cp := &codecPair{params: params, normal: normal}

	if rem := totalDataChunks % params.Data; rem != 0 {
		last, err := reedsolomon.New(rem, params.Parity)
		if err != nil {
			return nil, fmt.Errorf("rscodec: building ragged-last codec: %w", err)
		}
		cp.lastSize = rem
		cp.last = last
	}

	return cp, nil
}

// codecFor returns the codec and set size (D, or the ragged remainder) that
// applies to the block set starting at data-shard index setStart, given the
// total data shard count.
func (cp *codecPair) codecFor(setStart, totalDataChunks int) (reedsolomon.Encoder, int) {
	remaining := totalDataChunks - setStart
	if cp.last != nil && remaining == cp.lastSize {
		return cp.last, cp.lastSize
	}
	return cp.normal, cp.params.Data
}

// Encoder drives data shards through RS encoding one at a time, tracking
// which slot of the current block set it's on and emitting parity shards
// only once a full set (ragged or not) has been filled.
type Encoder struct {
	params          Params
	totalDataChunks int
	codecs          *codecPair

	curDataIndex int // index within [0, totalDataChunks)
	setStart     int // data-shard index the current in-progress set began at
	pending      [][]byte
}

// NewEncoder builds an encoder for totalDataChunks data shards under
// params. totalDataChunks must be known up front, since it determines
// how many shards the final (possibly ragged) set holds.
func NewEncoder(params Params, totalDataChunks int) (*Encoder, error) {
	codecs, err := newCodecPair(params, totalDataChunks)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		params:          params,
		totalDataChunks: totalDataChunks,
		codecs:          codecs,
	}, nil
}

// ErrNotReady is returned by Encode when the current block set is not yet
// full; the caller should keep feeding shards.
var ErrNotReady = fmt.Errorf("rscodec: block set not yet full")

// Encode appends shard into the current set's slot. Once the set is full it
// runs RS encoding and returns the parity shards; otherwise it returns
// ErrNotReady. shard is retained (not copied) — the caller must not mutate
// it after this call until the set's parity has been produced.
func (e *Encoder) Encode(shard []byte) ([][]byte, error) {
	if len(e.pending) == 0 {
		e.setStart = e.curDataIndex
	}
	e.pending = append(e.pending, shard)

	codec, setSize := e.codecs.codecFor(e.setStart, e.totalDataChunks)
	isLastInSet := len(e.pending) == setSize

	e.curDataIndex = (e.curDataIndex + 1) % e.totalDataChunks

	if !isLastInSet {
		return nil, ErrNotReady
	}

	shards := make([][]byte, setSize+e.params.Parity)
	copy(shards, e.pending)
	for i := setSize; i < len(shards); i++ {
		shards[i] = make([]byte, len(shard))
	}
	if err := codec.Encode(shards); err != nil {
		return nil, fmt.Errorf("rscodec: encoding set: %w", err)
	}

	parity := shards[setSize:]
	e.pending = nil
	return parity, nil
}

// Repairer reconstructs missing shards of one block set at a time. Callers
// mark each slot present or missing as they read it, then call Repair once
// a full set's worth of slots has been examined.
type Repairer struct {
	params Params
	codecs *codecPair

	totalDataChunks int
}

// NewRepairer builds a repairer for totalDataChunks data shards under
// params.
func NewRepairer(params Params, totalDataChunks int) (*Repairer, error) {
	codecs, err := newCodecPair(params, totalDataChunks)
	if err != nil {
		return nil, err
	}
	return &Repairer{params: params, codecs: codecs, totalDataChunks: totalDataChunks}, nil
}

// EncodeSet runs a one-shot RS encode over a single already-complete block
// set (used by block-buffer, where one lot already holds an entire set's
// data shards rather than shards trickling in one at a time). parity must
// be pre-sized to params.Parity slices, each the same length as the data
// shards.
func EncodeSet(params Params, dataShards [][]byte, parity [][]byte) error {
	codec, err := reedsolomon.New(len(dataShards), params.Parity)
	if err != nil {
		return fmt.Errorf("rscodec: building set codec: %w", err)
	}

	shards := make([][]byte, 0, len(dataShards)+len(parity))
	shards = append(shards, dataShards...)
	shards = append(shards, parity...)
	if err := codec.Encode(shards); err != nil {
		return fmt.Errorf("rscodec: encoding set: %w", err)
	}
	return nil
}

// Set is one block set's worth of shard buffers (data followed by parity)
// plus which ones are present, built up by the caller via mark_present /
// mark_missing semantics before calling Repair.
type Set struct {
	// SetStart is the data-shard index this set begins at.
	SetStart int
	// Shards holds setSize+parity slots; a nil entry or a false in
	// Present at the same index means that shard is missing.
	Shards  [][]byte
	Present []bool
}

// missingCount reports how many of s's slots are absent.
func (s *Set) missingCount() int {
	n := 0
	for _, p := range s.Present {
		if !p {
			n++
		}
	}
	return n
}

// Repair reconstructs every missing shard in s in place. Data shards are
// always reconstructed; verify additionally asks the RS library to confirm
// the parity shards are internally consistent once reconstruction
// completes.
func (r *Repairer) Repair(s *Set, verify bool) error {
	if s.missingCount() > r.params.Parity {
		return ErrRepairInfeasible
	}

	codec, setSize := r.codecs.codecFor(s.SetStart, r.totalDataChunks)
	_ = setSize

	shards := make([][]byte, len(s.Shards))
	for i, sh := range s.Shards {
		if s.Present[i] {
			shards[i] = sh
		}
	}

	if err := codec.Reconstruct(shards); err != nil {
		return fmt.Errorf("rscodec: reconstruct: %w", err)
	}

	if verify {
		ok, err := codec.Verify(shards)
		if err != nil {
			return fmt.Errorf("rscodec: verify: %w", err)
		}
		if !ok {
			return ErrVerifyMismatch
		}
	}

	for i, sh := range shards {
		if !s.Present[i] {
			s.Shards[i] = sh
		}
	}
	return nil
}

// ReconstructSet is the one-shot counterpart to EncodeSet: given one
// already-assembled block set's shards (data followed by parity, nil
// entries for missing slots) and a parallel present flag array, it repairs
// the set in place.
func ReconstructSet(params Params, dataShardCount int, shards [][]byte, present []bool, verify bool) error {
	rep, err := NewRepairer(params, dataShardCount)
	if err != nil {
		return err
	}
	s := &Set{SetStart: 0, Shards: shards, Present: present}
	return rep.Repair(s, verify)
}
