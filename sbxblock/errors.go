package sbxblock

import "errors"

// Decode-time rejection reasons, one per distinct way a candidate block
// can fail to parse.
var (
	ErrIncorrectMagic   = errors.New("sbxblock: incorrect magic bytes")
	ErrUnknownVersion   = errors.New("sbxblock: unknown version tag")
	ErrCRCMismatch      = errors.New("sbxblock: CRC mismatch")
	ErrMalformedMeta    = errors.New("sbxblock: malformed metadata")
	ErrFailedPredicate  = errors.New("sbxblock: block rejected by predicate")
	ErrTooMuchMetadata  = errors.New("sbxblock: metadata does not fit in data area")
	ErrBufferTooSmall   = errors.New("sbxblock: destination buffer smaller than block size")
	ErrNotMetaBlock     = errors.New("sbxblock: field access requires a metadata block")
	ErrUnknownHashFunc  = errors.New("sbxblock: unrecognised hash function id")
)
