package ops

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
)

// ErrUnknownHashFunc reports a --hash value that doesn't name one of the
// recognised multihash functions.
var ErrUnknownHashFunc = fmt.Errorf("ops: unrecognised hash function")

// HashFuncFromString parses a --hash flag value against the recognised
// multihash function names (case-insensitive), matching the original
// CLI's sha1/sha256/sha512/blake2b-256/blake2b-512/blake2s-128/blake2s-256
// vocabulary.
func HashFuncFromString(s string) (sbxblock.HashFunction, error) {
	switch strings.ToLower(s) {
	case "sha1":
		return sbxblock.HashSHA1, nil
	case "sha256":
		return sbxblock.HashSHA256, nil
	case "sha512":
		return sbxblock.HashSHA512, nil
	case "blake2b-512":
		return sbxblock.HashBLAKE2B512, nil
	case "blake2b-256":
		return sbxblock.HashBLAKE2B256, nil
	case "blake2s-256":
		return sbxblock.HashBLAKE2S256, nil
	case "blake2s-128":
		return sbxblock.HashBLAKE2S128, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHashFunc, s)
	}
}

// newHasher builds the digest context a multihash function tag names.
func newHasher(hf sbxblock.HashFunction) (hash.Hash, error) {
	switch hf {
	case sbxblock.HashSHA1:
		return sha1.New(), nil
	case sbxblock.HashSHA256:
		return sha256.New(), nil
	case sbxblock.HashSHA512:
		return sha512.New(), nil
	case sbxblock.HashBLAKE2B512:
		return blake2b.New512(nil)
	case sbxblock.HashBLAKE2B256:
		return blake2b.New256(nil)
	case sbxblock.HashBLAKE2S256:
		return blake2s.New256(nil)
	case sbxblock.HashBLAKE2S128:
		return blake2s.New128(nil)
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrUnknownHashFunc, byte(hf))
	}
}

// streamHasher feeds original user-data bytes into a hash context as they
// pass through encode, matching the ordering guarantee that hashing must
// see data in ascending sequence number (naturally satisfied here since
// Encode hashes each slot the moment it's filled, before parity
// generation ever touches the lot).
type streamHasher struct {
	hf sbxblock.HashFunction
	h  hash.Hash
}

func newStreamHasher(hf sbxblock.HashFunction) (*streamHasher, error) {
	h, err := newHasher(hf)
	if err != nil {
		return nil, err
	}
	return &streamHasher{hf: hf, h: h}, nil
}

func (s *streamHasher) write(b []byte) {
	_, _ = s.h.Write(b)
}

func (s *streamHasher) sum() []byte {
	return s.h.Sum(nil)
}
