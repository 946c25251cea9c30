package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"

	"github.com/darrenldl/blockyarchive-sub000/ops"
	"github.com/darrenldl/blockyarchive-sub000/rscodec"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// commonFlags is embedded by the subcommands that build an ops.Params from
// flags, encode and calc: the container shape they share.
type commonFlags struct {
	SBXVersion string `long:"sbx-version" description:"SBX version: 1, 2, 3, 17, 18, 19" default:"1"`
	UID        string `long:"uid" description:"container UID as hex (generated if omitted, for encode)"`
	RSData     int    `long:"rs-data" description:"RS data shard count (RS versions only)"`
	RSParity   int    `long:"rs-parity" description:"RS parity shard count (RS versions only)"`
	Burst      int    `long:"burst" description:"burst interleaving depth (0 or 1 disables it)"`
	NoMeta     bool   `long:"no-meta" description:"disable the metadata block (non-RS versions only)"`
}

func (f commonFlags) toParams() (ops.Params, error) {
	v, err := sbxspecs.StringToVersion(f.SBXVersion)
	if err != nil {
		return ops.Params{}, errors.Wrap(err, "parsing --sbx-version")
	}

	p := ops.Params{
		Version:     v,
		RS:          rscodec.Params{Data: f.RSData, Parity: f.RSParity},
		Burst:       f.Burst,
		MetaEnabled: !f.NoMeta,
	}

	if sbxspecs.UsesRS(v) && (f.RSData <= 0 || f.RSParity < 0) {
		return ops.Params{}, errors.New("--rs-data and --rs-parity are required for an RS version")
	}

	if f.UID != "" {
		uid, err := parseUID(f.UID)
		if err != nil {
			return ops.Params{}, errors.Wrap(err, "parsing --uid")
		}
		p.UID = uid
	}

	return p, nil
}

func parseUID(s string) ([sbxspecs.FileUIDLen]byte, error) {
	var uid [sbxspecs.FileUIDLen]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return uid, fmt.Errorf("not valid hex: %w", err)
	}
	if len(b) != sbxspecs.FileUIDLen {
		return uid, fmt.Errorf("uid must be %d bytes (%d hex chars), got %d bytes", sbxspecs.FileUIDLen, sbxspecs.FileUIDLen*2, len(b))
	}
	copy(uid[:], b)
	return uid, nil
}
