package hyperloglog

import "encoding/binary"

// hashSeed is the fixed MurmurHash64A seed. Changing it would silently break
// compatibility with every existing sketch, so it is not configurable.
const hashSeed = 0xadc83b19

// murmurHash64A computes the 64-bit MurmurHash2 (variant "64A") of data.
//
// The reference implementation loads each 8-byte block with a plain pointer
// cast, which yields different results on big-endian hosts. Redis fixed this
// by assembling the block byte-by-byte in little-endian order on such hosts;
// here binary.LittleEndian.Uint64 gives the same guarantee on every
// architecture, so a sketch written on one machine hashes identically on any
// other. This is a hard compatibility contract: the register an element maps
// to is derived from this hash.
func murmurHash64A(data []byte, seed uint64) uint64 {
	const m = 0xc6a4a7935bd1e995
	const r = 47

	h := seed ^ (uint64(len(data)) * m)

	n := len(data) &^ 7
	for i := 0; i < n; i += 8 {
		k := binary.LittleEndian.Uint64(data[i:])

		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m
	}

	// Fold the 1..7 byte tail in descending offset order.
	tail := data[n:]
	switch len(tail) {
	case 7:
		h ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(tail[0])
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r
	return h
}

// patLen hashes ele and splits the result into the register index (the low
// 14 bits) and the length of the 000...1 bit pattern that starts right above
// them.
//
// The count includes the terminating 1 bit, so the minimum is 1 (a 1 bit in
// the first position) and, with bit 63 forced on so that the scan always
// terminates, the maximum is 64-14 = 50 (bits 14 through 63).
func patLen(ele []byte) (index int, count uint8) {
	hash := murmurHash64A(ele, hashSeed)
	index = int(hash & pMask)

	hash |= 1 << 63
	bit := uint64(registers) // first bit not used as register index
	count = 1
	for hash&bit == 0 {
		count++
		bit <<= 1
	}
	return index, count
}
