package hyperloglog

import (
	"encoding/binary"
	"errors"
)

// Error kinds surfaced by this package. Backend errors pass through wrapped;
// everything else is one of these two sentinels.
var (
	// ErrWrongType reports a value that is not a valid HyperLogLog sketch:
	// bad magic, unknown encoding byte, or a dense payload of the wrong
	// length.
	ErrWrongType = errors.New("not a valid HyperLogLog string value")

	// ErrCorrupted reports a sketch whose sparse opcodes do not cover
	// exactly the full register set. It indicates data corruption and
	// should never occur on sketches produced by this package.
	ErrCorrupted = errors.New("corrupted HLL object detected")
)

// HasValidMagic reports whether data starts with the HLL magic bytes.
// It is a cheap type check for callers that do not need full validation.
func HasValidMagic(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 'H' && data[1] == 'Y' && data[2] == 'L' && data[3] == 'L'
}

// Validate checks that buf holds a well-formed sketch header: the HYLL
// magic, a known encoding, and for the dense encoding an exact payload
// length. Sparse payloads have variable length and are validated lazily by
// the opcode scans that consume them.
func Validate(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrWrongType
	}
	if !HasValidMagic(buf) {
		return ErrWrongType
	}
	if buf[4] > encSparse {
		return ErrWrongType
	}
	if buf[4] == encDense && len(buf) != DenseSize {
		return ErrWrongType
	}
	return nil
}

// CacheValid reports whether the cached cardinality in the header can be
// used as-is. The dirty flag lives in the most significant bit of the last
// cardinality byte (byte 15, since the value is little-endian).
func CacheValid(buf []byte) bool {
	return buf[15]&0x80 == 0
}

// InvalidateCache marks the cached cardinality as stale. Every write path
// that changes a register must call this before the sketch is persisted.
func InvalidateCache(buf []byte) {
	buf[15] |= 0x80
}

// cachedCardinality decodes the cached value, masking off the dirty flag.
func cachedCardinality(buf []byte) uint64 {
	raw := binary.LittleEndian.Uint64(buf[8:16])
	return raw &^ (1 << 63)
}

// setCachedCardinality stores card in the header. Writing the value also
// clears the dirty flag, since a real cardinality never reaches 2^63.
func setCachedCardinality(buf []byte, card uint64) {
	binary.LittleEndian.PutUint64(buf[8:16], card)
}
