package sbxspecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockSize(t *testing.T) {
	r := require.New(t)

	cases := []struct {
		v        Version
		wantSize int
		wantData int
		rs       bool
	}{
		{V1, 512, 496, false},
		{V2, 128, 112, false},
		{V3, 4096, 4080, false},
		{V17, 512, 496, true},
		{V18, 128, 112, true},
		{V19, 4096, 4080, true},
	}

	for _, c := range cases {
		sz, err := BlockSize(c.v)
		r.NoError(err)
		r.Equal(c.wantSize, sz)

		ds, err := DataSize(c.v)
		r.NoError(err)
		r.Equal(c.wantData, ds)

		r.Equal(c.rs, UsesRS(c.v))
		r.Equal(c.rs, ForcesMeta(c.v))
	}
}

func TestFirstDataSeqNum(t *testing.T) {
	r := require.New(t)

	r.Equal(uint32(1), FirstDataSeqNum(V1))
	r.Equal(uint32(1), FirstDataSeqNum(V2))
	r.Equal(uint32(4), FirstDataSeqNum(V17))
	r.Equal(uint32(4), FirstDataSeqNum(V19))
}

func TestUnknownVersion(t *testing.T) {
	r := require.New(t)

	r.False(IsValid(Version(4)))

	_, err := BlockSize(Version(99))
	r.Error(err)
}

func TestStringToVersion(t *testing.T) {
	r := require.New(t)

	v, err := StringToVersion("17")
	r.NoError(err)
	r.Equal(V17, v)

	_, err = StringToVersion("4")
	r.Error(err)

	_, err = StringToVersion("not-a-number")
	r.Error(err)
}
