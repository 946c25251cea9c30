package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"

	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
	"github.com/darrenldl/blockyarchive-sub000/sbxspecs"
)

// Info is the human-facing view of a container's metadata block, assembled
// from whichever fields the reference block happens to carry.
type Info struct {
	Version       sbxspecs.Version
	UID           [sbxspecs.FileUIDLen]byte
	FileName      string
	FileSize      uint64
	HaveFileSize  bool
	FileModTime   time.Time
	HaveModTime   bool
	CreatedAt     time.Time
	HaveCreatedAt bool
	HashFunc      sbxblock.HashFunction
	HashDigest    []byte
	HaveHash      bool
	RSData        int
	RSParity      int
	UsesRS        bool
	ParentUID     [sbxspecs.FileUIDLen]byte
	HaveParentUID bool
}

// HashBase58 renders the stored digest in the compact, punctuation-free
// form the non-JSON CLI surface prints it in. Returns "" when Show found
// no HSH field.
func (i Info) HashBase58() string {
	if !i.HaveHash {
		return ""
	}
	return base58.Encode(i.HashDigest)
}

// UIDBase58 renders a container UID the same way.
func UIDBase58(uid [sbxspecs.FileUIDLen]byte) string {
	return base58.Encode(uid[:])
}

// Show reads the reference block of containerPath and reports whatever
// metadata fields it carries. A container with no metadata (MetaEnabled
// false and no RS) yields an Info with only Version and UID populated.
func Show(containerPath string) (Info, error) {
	f, err := os.Open(containerPath)
	if err != nil {
		return Info{}, fmt.Errorf("ops: opening container: %w", err)
	}
	defer f.Close()

	ref, err := findReferenceBlock(f)
	if err != nil {
		return Info{}, err
	}

	info := Info{Version: ref.Version, UID: ref.UID, UsesRS: sbxspecs.UsesRS(ref.Version)}
	if ref.Type() != sbxblock.BlockTypeMeta {
		return info, nil
	}

	if fld, ok := ref.Field(sbxblock.FieldFNM); ok {
		info.FileName = fld.AsString()
	}
	if fld, ok := ref.Field(sbxblock.FieldFSZ); ok {
		if sz, err := fld.AsUint64(); err == nil {
			info.FileSize, info.HaveFileSize = sz, true
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldFDT); ok {
		if sec, err := fld.AsInt64(); err == nil {
			info.FileModTime, info.HaveModTime = time.Unix(sec, 0).UTC(), true
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldSDT); ok {
		if sec, err := fld.AsInt64(); err == nil {
			info.CreatedAt, info.HaveCreatedAt = time.Unix(sec, 0).UTC(), true
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldHSH); ok {
		if hf, digest, err := fld.AsHash(); err == nil {
			info.HashFunc, info.HashDigest, info.HaveHash = hf, digest, true
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldRSD); ok {
		if n, err := fld.AsByte(); err == nil {
			info.RSData = int(n)
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldRSP); ok {
		if n, err := fld.AsByte(); err == nil {
			info.RSParity = int(n)
		}
	}
	if fld, ok := ref.Field(sbxblock.FieldPID); ok && len(fld.Payload) == sbxspecs.FileUIDLen {
		copy(info.ParentUID[:], fld.Payload)
		info.HaveParentUID = true
	}

	return info, nil
}
