package hyperloglog

import (
	"encoding/binary"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed sketches", func(t *testing.T) {
		if err := Validate(CreateSketch()); err != nil {
			t.Errorf("sparse: %v", err)
		}

		dense, err := sparseToDense(CreateSketch())
		if err != nil {
			t.Fatal(err)
		}
		if err := Validate(persistable(dense)); err != nil {
			t.Errorf("dense: %v", err)
		}
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		dense, _ := sparseToDense(CreateSketch())

		cases := map[string][]byte{
			"too short":          []byte("HYLL"),
			"bad magic":          append([]byte("HYLX"), CreateSketch()[4:]...),
			"unknown encoding":   func() []byte { b := CreateSketch(); b[4] = 2; return b }(),
			"raw never persists": func() []byte { b := CreateSketch(); b[4] = encRaw; return b }(),
			"dense wrong length": persistable(dense)[:DenseSize-1],
			"plain string":       []byte("just a value"),
		}
		for name, buf := range cases {
			if err := Validate(buf); err != ErrWrongType {
				t.Errorf("%s: err=%v, want ErrWrongType", name, err)
			}
		}
	})
}

func TestCardinalityCache(t *testing.T) {
	buf := CreateSketch()

	if !CacheValid(buf) {
		t.Fatal("fresh sketch must have a valid (zero) cache")
	}

	setCachedCardinality(buf, 12345)
	if !CacheValid(buf) {
		t.Error("storing a cardinality must leave the cache valid")
	}
	if got := cachedCardinality(buf); got != 12345 {
		t.Errorf("cached = %d, want 12345", got)
	}

	InvalidateCache(buf)
	if CacheValid(buf) {
		t.Error("invalidate must set the dirty flag")
	}
	if buf[15]&0x80 == 0 {
		t.Error("the dirty flag must live in the MSB of byte 15")
	}
	// The low 63 bits still decode to the stored value.
	if got := cachedCardinality(buf); got != 12345 {
		t.Errorf("cached after invalidate = %d, want 12345", got)
	}

	// Re-storing clears the flag: the wire layout is little-endian with
	// the flag overlaid on the top bit.
	setCachedCardinality(buf, 99)
	if !CacheValid(buf) {
		t.Error("storing a cardinality must clear the dirty flag")
	}
	if got := binary.LittleEndian.Uint64(buf[8:16]); got != 99 {
		t.Errorf("raw card field = %d, want 99", got)
	}
}
