package rscodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeShard(n int, fill byte) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = fill
	}
	return s
}

func TestEncoderExactMultiple(t *testing.T) {
	r := require.New(t)

	params := Params{Data: 4, Parity: 2}
	enc, err := NewEncoder(params, 8) // two full sets of 4
	r.NoError(err)

	var allParity [][][]byte
	for i := 0; i < 8; i++ {
		parity, err := enc.Encode(makeShard(16, byte(i)))
		if (i+1)%4 != 0 {
			r.ErrorIs(err, ErrNotReady)
			r.Nil(parity)
			continue
		}
		r.NoError(err)
		r.Len(parity, 2)
		allParity = append(allParity, parity)
	}
	r.Len(allParity, 2)
}

func TestEncoderRaggedLast(t *testing.T) {
	r := require.New(t)

	params := Params{Data: 4, Parity: 2}
	enc, err := NewEncoder(params, 10) // one full set of 4, one ragged set of 2

	r.NoError(err)

	var lastParity [][]byte
	for i := 0; i < 10; i++ {
		parity, err := enc.Encode(makeShard(16, byte(i)))
		if err == nil {
			lastParity = parity
		}
	}
	r.NotNil(lastParity)
	r.Len(lastParity, 2)
}

func TestRepairReconstructsMissingDataShard(t *testing.T) {
	r := require.New(t)

	params := Params{Data: 4, Parity: 2}
	enc, err := NewEncoder(params, 4)
	r.NoError(err)

	data := [][]byte{
		makeShard(16, 1),
		makeShard(16, 2),
		makeShard(16, 3),
		makeShard(16, 4),
	}

	var parity [][]byte
	for i, d := range data {
		p, err := enc.Encode(d)
		if i == 3 {
			r.NoError(err)
			parity = p
		} else {
			r.ErrorIs(err, ErrNotReady)
		}
	}

	rep, err := NewRepairer(params, 4)
	r.NoError(err)

	// Drop shard index 1 (a data shard).
	shards := make([][]byte, 6)
	copy(shards[0:4], data)
	copy(shards[4:6], parity)
	present := []bool{true, true, true, true, true, true}

	lost := bytes.Clone(shards[1])
	shards[1] = nil
	present[1] = false

	set := &Set{SetStart: 0, Shards: shards, Present: present}
	r.NoError(rep.Repair(set, true))
	r.Equal(lost, set.Shards[1])
}

func TestRepairInfeasibleWhenTooManyMissing(t *testing.T) {
	r := require.New(t)

	params := Params{Data: 4, Parity: 2}
	rep, err := NewRepairer(params, 4)
	r.NoError(err)

	set := &Set{
		SetStart: 0,
		Shards:   make([][]byte, 6),
		Present:  []bool{true, false, false, false, true, true},
	}
	err = rep.Repair(set, false)
	r.ErrorIs(err, ErrRepairInfeasible)
}
