// Package sbxspecs holds the closed set of SBX wire-format versions and the
// constants every other component derives its sizing from.
package sbxspecs

import "fmt"

// Version identifies the wire format of a block. The zero value is not a
// valid version; callers must go through IsValid before trusting one that
// came off the wire.
type Version uint8

const (
	V1  Version = 1
	V2  Version = 2
	V3  Version = 3
	V17 Version = 17
	V18 Version = 18
	V19 Version = 19
)

const (
	// FileUIDLen is the width of a container UID in bytes.
	FileUIDLen = 6

	// LargestBlockSize bounds every version's block size; callers may use
	// it to size fixed scratch buffers once for any version.
	LargestBlockSize = 4096

	// ScanBlockSize is the granularity the rescue engine advances by
	// while resynchronising to block boundaries in an unaligned stream.
	ScanBlockSize = 128

	// RSMetadataParityCount is the number of duplicate metadata blocks
	// kept for RS-capable versions, regardless of the data/parity counts
	// chosen for the data portion of the container.
	RSMetadataParityCount = 3

	// HeaderSize is the fixed wire size of every block's header.
	HeaderSize = 16

	// Signature is the 3-byte magic every block begins with.
	Signature = "SBx"

	// LastSeqNum is the largest sequence number a block may carry; it is
	// reserved so sequence arithmetic can detect wraparound before it
	// happens.
	LastSeqNum uint32 = 1<<32 - 1
)

var blockSizes = map[Version]int{
	V1:  512,
	V2:  128,
	V3:  4096,
	V17: 512,
	V18: 128,
	V19: 4096,
}

var rsVersions = map[Version]bool{
	V17: true,
	V18: true,
	V19: true,
}

// IsValid reports whether v is one of the six recognised versions.
func IsValid(v Version) bool {
	_, ok := blockSizes[v]
	return ok
}

// BlockSize returns the on-disk size of a block of version v, header
// included.
func BlockSize(v Version) (int, error) {
	sz, ok := blockSizes[v]
	if !ok {
		return 0, fmt.Errorf("sbxspecs: unknown version %d", v)
	}
	return sz, nil
}

// DataSize returns the size of the data area of a block of version v, i.e.
// BlockSize(v) - HeaderSize.
func DataSize(v Version) (int, error) {
	sz, err := BlockSize(v)
	if err != nil {
		return 0, err
	}
	return sz - HeaderSize, nil
}

// UsesRS reports whether version v carries Reed-Solomon parity.
func UsesRS(v Version) bool {
	return rsVersions[v]
}

// ForcesMeta reports whether version v requires the metadata block to be
// present; true for every RS version.
func ForcesMeta(v Version) bool {
	return rsVersions[v]
}

// FirstDataSeqNum returns the first sequence number assigned to a data (or
// parity) block for version v: 1 for non-RS versions, 1+RSMetadataParityCount
// for RS versions (skipping over the metadata-block duplicate slots).
func FirstDataSeqNum(v Version) uint32 {
	if UsesRS(v) {
		return 1 + RSMetadataParityCount
	}
	return 1
}

// StringToVersion parses the decimal version tags accepted on the CLI
// surface ("1", "2", "3", "17", "18", "19").
func StringToVersion(s string) (Version, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("sbxspecs: invalid version %q: %w", s, err)
	}
	v := Version(n)
	if !IsValid(v) {
		return 0, fmt.Errorf("sbxspecs: unrecognised version %q", s)
	}
	return v, nil
}

// VersionToString renders v the way it appears on the CLI surface.
func VersionToString(v Version) string {
	return fmt.Sprintf("%d", uint8(v))
}

// AllVersions lists the six recognised versions in ascending tag order.
func AllVersions() []Version {
	return []Version{V1, V2, V3, V17, V18, V19}
}
