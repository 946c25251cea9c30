package sbxblock

import "github.com/darrenldl/blockyarchive-sub000/sbxspecs"

// crcTable is the standard CRC-CCITT (XMODEM variant: poly 0x1021, no input
// reflection, no final XOR) lookup table, generated once at package init.
var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// crcCCITTGeneric runs the table-driven CRC-CCITT over input starting from
// startVal, matching the reference implementation's crc_ccitt_generic.
func crcCCITTGeneric(input []byte, startVal uint16) uint16 {
	crc := startVal
	for _, c := range input {
		crc = (crc << 8) ^ crcTable[((crc>>8)^uint16(c))&0x00FF]
	}
	return crc
}

// crcCCITT computes the SBX variant of CRC-CCITT: the seed is the version
// tag widened to 16 bits, so each version gets its own CRC domain and a
// block cannot be mistaken for a different version's even if the tag byte
// were spoofed (see SyncFromBuffer's ErrCRCMismatch rejection).
func crcCCITT(v sbxspecs.Version, buf []byte) uint16 {
	return crcCCITTGeneric(buf, uint16(v))
}
