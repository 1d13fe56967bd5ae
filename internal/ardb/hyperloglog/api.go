package hyperloglog

import (
	"fmt"
	"sort"
)

// Backend is the storage contract the HLL commands run against. A missing
// key is reported through the boolean, not the error: absent sketches are a
// normal case for every command here.
//
// Implementations own the bytes they return; this package never mutates a
// slice obtained from Get and always hands Set a buffer it allocated
// itself.
type Backend interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
}

// KeyLocker provides per-key mutual exclusion. Each command acquires the
// lock for every key it touches for the whole operation, so no sketch is
// ever read or written concurrently.
type KeyLocker interface {
	Lock(key string)
	Unlock(key string)
}

// DB exposes the three HyperLogLog commands over a Backend. It holds no
// sketch state of its own; every operation is read-modify-write against the
// backend under the per-key lock.
type DB struct {
	backend        Backend
	locker         KeyLocker
	sparseMaxBytes int
}

// NewDB returns a DB operating on the given backend and lock manager.
// sparseMaxBytes bounds the serialized size of sparse sketches before they
// are promoted to dense; pass DefaultSparseMaxBytes unless tuned otherwise.
func NewDB(backend Backend, locker KeyLocker, sparseMaxBytes int) *DB {
	return &DB{
		backend:        backend,
		locker:         locker,
		sparseMaxBytes: sparseMaxBytes,
	}
}

// lockKeys acquires the locks for all given keys in sorted order, so that
// two multi-key commands touching overlapping key sets cannot deadlock.
// Duplicates are locked once. The returned function releases everything.
func (db *DB) lockKeys(keys []string) func() {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	locked := sorted[:0]
	for i, key := range sorted {
		if i > 0 && key == locked[len(locked)-1] {
			continue
		}
		db.locker.Lock(key)
		locked = append(locked, key)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			db.locker.Unlock(locked[i])
		}
	}
}

// mutableCopy clones a stored sketch into a buffer this call owns. Sparse
// sketches get the worst-case growth headroom; dense sketches get the
// trailing sentinel byte the register accessors rely on.
func mutableCopy(value []byte) []byte {
	extra := 3
	if value[4] == encDense {
		extra = 1
	}
	buf := make([]byte, len(value), len(value)+extra)
	copy(buf, value)
	if value[4] == encDense {
		return buf[:len(buf)+1] // sentinel, zero by construction
	}
	return buf
}

// persistable trims internal-only bytes off a working buffer before it is
// handed to the backend: the dense sentinel must not be stored.
func persistable(buf []byte) []byte {
	if buf[4] == encDense {
		return buf[:DenseSize]
	}
	return buf
}

// PFAdd adds the members to the sketch stored at key, creating an empty
// sketch if the key does not exist. Returns 1 if the stored value changed
// (any register grew, or the sketch was created), 0 otherwise.
func (db *DB) PFAdd(key string, members ...[]byte) (int, error) {
	db.locker.Lock(key)
	defer db.locker.Unlock(key)

	value, found, err := db.backend.Get(key)
	if err != nil {
		return 0, fmt.Errorf("pfadd %q: %w", key, err)
	}

	var buf []byte
	created := false
	if !found {
		buf = CreateSketch()
		created = true
	} else {
		if err := Validate(value); err != nil {
			return 0, err
		}
		buf = mutableCopy(value)
	}

	changed := 0
	for _, member := range members {
		var updated bool
		buf, updated, err = Add(buf, member, db.sparseMaxBytes)
		if err != nil {
			return 0, err
		}
		if updated {
			changed++
		}
	}

	if changed > 0 {
		InvalidateCache(buf)
	}
	if created || changed > 0 {
		if err := db.backend.Set(key, persistable(buf)); err != nil {
			return 0, fmt.Errorf("pfadd %q: %w", key, err)
		}
		return 1, nil
	}
	return 0, nil
}

// PFCount returns the approximated cardinality of the sketch at key, or of
// the union of sketches when several keys are given. Missing keys count as
// empty. With no keys the count is zero.
func (db *DB) PFCount(keys ...string) (uint64, error) {
	if len(keys) == 1 {
		return db.countKey(keys[0])
	}
	if len(keys) == 0 {
		return 0, nil
	}

	unlock := db.lockKeys(keys)
	defer unlock()

	// Union the sketches into a transient flat register array and count
	// that. Nothing is persisted on this path; the per-key caches stay
	// untouched.
	max := make([]byte, HeaderSize+registers)
	max[4] = encRaw
	regs := max[HeaderSize:]

	for _, key := range keys {
		value, found, err := db.backend.Get(key)
		if err != nil {
			return 0, fmt.Errorf("pfcount %q: %w", key, err)
		}
		if !found {
			continue
		}
		if err := Validate(value); err != nil {
			return 0, err
		}
		if err := mergeMax(regs, value); err != nil {
			return 0, err
		}
	}

	return Count(max)
}

// countKey serves the single-key count: return the cached cardinality when
// it is still valid, otherwise recompute it and write the refreshed cache
// back so later counts are cheap again.
func (db *DB) countKey(key string) (uint64, error) {
	db.locker.Lock(key)
	defer db.locker.Unlock(key)

	value, found, err := db.backend.Get(key)
	if err != nil {
		return 0, fmt.Errorf("pfcount %q: %w", key, err)
	}
	if !found {
		return 0, nil
	}
	if err := Validate(value); err != nil {
		return 0, err
	}

	if CacheValid(value) {
		return cachedCardinality(value), nil
	}

	buf := mutableCopy(value)
	card, err := Count(buf)
	if err != nil {
		return 0, err
	}

	// Refreshing the cache modifies the stored value even though the
	// registers did not change, so the write-back must go through Set.
	setCachedCardinality(buf, card)
	if err := db.backend.Set(key, persistable(buf)); err != nil {
		return 0, fmt.Errorf("pfcount %q: %w", key, err)
	}
	return card, nil
}

// PFMerge replaces the sketch at dest with the union of the source
// sketches, written in the dense encoding. Missing sources count as empty.
// Every source key is treated uniformly, including the first.
//
// Note that dest itself is not an implicit source: its previous registers
// are overwritten by the union. Callers wanting Redis's accumulate-into
// behavior include dest in sources.
func (db *DB) PFMerge(dest string, sources ...string) error {
	keys := append([]string{dest}, sources...)
	unlock := db.lockKeys(keys)
	defer unlock()

	max := make([]byte, registers)
	for _, key := range sources {
		value, found, err := db.backend.Get(key)
		if err != nil {
			return fmt.Errorf("pfmerge %q: %w", key, err)
		}
		if !found {
			continue
		}
		if err := Validate(value); err != nil {
			return err
		}
		if err := mergeMax(max, value); err != nil {
			return err
		}
	}

	value, found, err := db.backend.Get(dest)
	if err != nil {
		return fmt.Errorf("pfmerge %q: %w", dest, err)
	}

	var buf []byte
	if !found {
		buf = CreateSketch()
	} else {
		if err := Validate(value); err != nil {
			return err
		}
		buf = mutableCopy(value)
	}

	// The destination is always written dense; a register-wise write of
	// the union into the sparse form would almost always overflow it
	// anyway.
	if buf[4] == encSparse {
		buf, err = sparseToDense(buf)
		if err != nil {
			return err
		}
	}

	regs := buf[HeaderSize:]
	for i := 0; i < registers; i++ {
		denseSetRegister(regs, i, max[i])
	}
	InvalidateCache(buf)

	if err := db.backend.Set(dest, persistable(buf)); err != nil {
		return fmt.Errorf("pfmerge %q: %w", dest, err)
	}
	return nil
}
