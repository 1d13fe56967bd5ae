// store.go implements the sharded in-memory key-value store and its binary
// snapshot format.
//
// The store partitions data across 256 independent shards, each guarded by
// its own RWMutex, so concurrent commands on different keys rarely contend.
// Keys are routed to shards with xxhash; the hash only needs speed and
// spread, nothing cryptographic.
//
// Values are opaque byte slices. The HyperLogLog layer stores its sketches
// here as plain values; the store neither knows nor cares.
//
// Snapshot format (ARD1)
// ======================
//
// Snapshots are written as a custom binary stream built for fast loading:
//
//	+--------+-----------+-----------+     +-----+----------+
//	| "ARD1" | Shard 0   | Shard 1   | ... | EOF | Checksum |
//	+--------+-----------+-----------+     +-----+----------+
//	 4 bytes   variable    variable         1 B    8 bytes
//
// Each non-empty shard is one block: a 0xFE opcode, the shard index, an
// entry count, then length-prefixed key/value pairs with the expiry
// timestamp (Unix milliseconds, 0 for none) between them. A 0xFF byte ends
// the data section, followed by a CRC-64 (ISO) of everything before it.
//
// Because blocks carry their shard index, the loader inserts entries
// directly into the destination shard without rehashing any key.

package main

import (
	"bufio"
	"encoding/binary"
	"hash/crc64"
	"io"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const snapshotMagic = "ARD1"

const shardCount = 256

// Snapshot stream opcodes.
const (
	opShardBlock = 0xFE
	opEOF        = 0xFF
)

// Shard is one slice of the keyspace with its own lock.
type Shard struct {
	mu      sync.RWMutex
	data    map[string][]byte
	expires map[string]int64 // Unix ms deadline; absent = no expiry
}

// Store routes keys to shards.
type Store struct {
	shards [shardCount]*Shard
}

// NewStore creates an empty sharded store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &Shard{
			data:    make(map[string][]byte),
			expires: make(map[string]int64),
		}
	}
	return s
}

func (s *Store) shardFor(key string) *Shard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

// isExpired reports whether key has lapsed. Callers hold the shard lock.
func (sh *Shard) isExpired(key string, now int64) bool {
	deadline, ok := sh.expires[key]
	return ok && deadline <= now
}

// Set stores a value and clears any existing expiry, the way SET does.
func (s *Store) Set(key string, value []byte) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = value
	delete(sh.expires, key)
	sh.mu.Unlock()
}

// Update stores a value while preserving the key's expiry. Used by
// read-modify-write callers (the HLL commands) where touching a sketch must
// not make it permanent. Returns whether the key already existed.
func (s *Store) Update(key string, value []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, existed := sh.data[key]
	sh.data[key] = value
	return existed
}

// Get returns the value for key, or false if it is absent or expired.
// Expiry is checked lazily here; the reaper deletes the bytes later.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if sh.isExpired(key, time.Now().UnixMilli()) {
		return nil, false
	}
	value, ok := sh.data[key]
	return value, ok
}

// Delete removes key. Returns whether it existed (and was not expired).
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.isExpired(key, time.Now().UnixMilli()) {
		delete(sh.data, key)
		delete(sh.expires, key)
		return false
	}
	_, ok := sh.data[key]
	delete(sh.data, key)
	delete(sh.expires, key)
	return ok
}

// Exists reports whether key is present and not expired.
func (s *Store) Exists(key string) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if sh.isExpired(key, time.Now().UnixMilli()) {
		return false
	}
	_, ok := sh.data[key]
	return ok
}

// SetExpiry sets the deadline (Unix ms) for an existing key. Returns false
// if the key does not exist.
func (s *Store) SetExpiry(key string, deadline int64) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.isExpired(key, time.Now().UnixMilli()) {
		return false
	}
	if _, ok := sh.data[key]; !ok {
		return false
	}
	sh.expires[key] = deadline
	return true
}

// GetExpiry returns the deadline for key. The second result is false when
// the key is missing; a zero deadline means the key is permanent.
func (s *Store) GetExpiry(key string) (int64, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	now := time.Now().UnixMilli()
	if sh.isExpired(key, now) {
		return 0, false
	}
	if _, ok := sh.data[key]; !ok {
		return 0, false
	}
	return sh.expires[key], true
}

// Persist clears the deadline for key. Returns whether a deadline existed.
func (s *Store) Persist(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.isExpired(key, time.Now().UnixMilli()) {
		return false
	}
	if _, ok := sh.expires[key]; !ok {
		return false
	}
	delete(sh.expires, key)
	return true
}

// Range calls fn for every live key with its expiry deadline (0 for none).
// Shards are visited one at a time under a read lock; fn must not call back
// into the store.
func (s *Store) Range(fn func(key string, deadline int64)) {
	now := time.Now().UnixMilli()
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key := range sh.data {
			if sh.isExpired(key, now) {
				continue
			}
			fn(key, sh.expires[key])
		}
		sh.mu.RUnlock()
	}
}

// Len returns the number of keys, including not-yet-reaped expired ones.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total
}

// SaveSnapshot streams the full dataset to w in the ARD1 format.
//
// To avoid stalling writers for the whole save, each shard is copied into a
// scratch buffer under its read lock and the lock is dropped before the
// slow I/O happens. A snapshot is therefore consistent per shard, not
// globally; for a cache-flavored store that trade is fine.
func (s *Store) SaveSnapshot(w io.Writer) error {
	crc := crc64.New(crc64.MakeTable(crc64.ISO))
	out := io.MultiWriter(w, crc)

	if _, err := out.Write([]byte(snapshotMagic)); err != nil {
		return errors.Wrap(err, "snapshot: write header")
	}

	scratch := make([]byte, 8)
	for i, sh := range s.shards {
		type entry struct {
			key      string
			value    []byte
			deadline int64
		}

		sh.mu.RLock()
		now := time.Now().UnixMilli()
		entries := make([]entry, 0, len(sh.data))
		for key, value := range sh.data {
			if sh.isExpired(key, now) {
				continue
			}
			entries = append(entries, entry{key: key, value: value, deadline: sh.expires[key]})
		}
		sh.mu.RUnlock()

		if len(entries) == 0 {
			continue
		}

		header := []byte{opShardBlock, byte(i)}
		if _, err := out.Write(header); err != nil {
			return errors.Wrapf(err, "snapshot: shard %d header", i)
		}
		binary.LittleEndian.PutUint32(scratch, uint32(len(entries)))
		if _, err := out.Write(scratch[:4]); err != nil {
			return errors.Wrapf(err, "snapshot: shard %d count", i)
		}

		for _, e := range entries {
			binary.LittleEndian.PutUint32(scratch, uint32(len(e.key)))
			if _, err := out.Write(scratch[:4]); err != nil {
				return errors.Wrap(err, "snapshot: key length")
			}
			if _, err := io.WriteString(out, e.key); err != nil {
				return errors.Wrap(err, "snapshot: key")
			}
			binary.LittleEndian.PutUint64(scratch, uint64(e.deadline))
			if _, err := out.Write(scratch[:8]); err != nil {
				return errors.Wrap(err, "snapshot: expiry")
			}
			binary.LittleEndian.PutUint32(scratch, uint32(len(e.value)))
			if _, err := out.Write(scratch[:4]); err != nil {
				return errors.Wrap(err, "snapshot: value length")
			}
			if _, err := out.Write(e.value); err != nil {
				return errors.Wrap(err, "snapshot: value")
			}
		}
	}

	if _, err := out.Write([]byte{opEOF}); err != nil {
		return errors.Wrap(err, "snapshot: write EOF marker")
	}

	// The checksum is written after (and excluded from) the checksummed
	// region.
	binary.LittleEndian.PutUint64(scratch, crc.Sum64())
	if _, err := w.Write(scratch[:8]); err != nil {
		return errors.Wrap(err, "snapshot: write checksum")
	}
	return nil
}

// LoadSnapshot restores a dataset previously written by SaveSnapshot. The
// stream is verified against its checksum while being read; a mismatch
// leaves the store partially loaded and the caller should discard it.
func (s *Store) LoadSnapshot(r *bufio.Reader) error {
	crc := crc64.New(crc64.MakeTable(crc64.ISO))
	in := io.TeeReader(r, crc)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(in, magic); err != nil {
		return errors.Wrap(err, "snapshot: read header")
	}
	if string(magic) != snapshotMagic {
		return errors.Errorf("snapshot: bad magic %q", magic)
	}

	scratch := make([]byte, 8)
	for {
		if _, err := io.ReadFull(in, scratch[:1]); err != nil {
			return errors.Wrap(err, "snapshot: read opcode")
		}
		if scratch[0] == opEOF {
			break
		}
		if scratch[0] != opShardBlock {
			return errors.Errorf("snapshot: unexpected opcode 0x%02x", scratch[0])
		}

		if _, err := io.ReadFull(in, scratch[:1]); err != nil {
			return errors.Wrap(err, "snapshot: read shard index")
		}
		sh := s.shards[scratch[0]]

		if _, err := io.ReadFull(in, scratch[:4]); err != nil {
			return errors.Wrap(err, "snapshot: read entry count")
		}
		count := binary.LittleEndian.Uint32(scratch)

		// Direct insertion into the recorded shard; no key is rehashed.
		sh.mu.Lock()
		for j := uint32(0); j < count; j++ {
			key, deadline, value, err := readSnapshotEntry(in, scratch)
			if err != nil {
				sh.mu.Unlock()
				return err
			}
			sh.data[key] = value
			if deadline != 0 {
				sh.expires[key] = deadline
			}
		}
		sh.mu.Unlock()
	}

	// Everything up to and including the EOF marker is covered by the
	// checksum; the stored sum follows it raw.
	sum := crc.Sum64()
	if _, err := io.ReadFull(r, scratch[:8]); err != nil {
		return errors.Wrap(err, "snapshot: read checksum")
	}
	if stored := binary.LittleEndian.Uint64(scratch); stored != sum {
		return errors.Errorf("snapshot: checksum mismatch (stored %x, computed %x)", stored, sum)
	}
	return nil
}

func readSnapshotEntry(in io.Reader, scratch []byte) (string, int64, []byte, error) {
	if _, err := io.ReadFull(in, scratch[:4]); err != nil {
		return "", 0, nil, errors.Wrap(err, "snapshot: read key length")
	}
	keyBuf := make([]byte, binary.LittleEndian.Uint32(scratch))
	if _, err := io.ReadFull(in, keyBuf); err != nil {
		return "", 0, nil, errors.Wrap(err, "snapshot: read key")
	}

	if _, err := io.ReadFull(in, scratch[:8]); err != nil {
		return "", 0, nil, errors.Wrap(err, "snapshot: read expiry")
	}
	deadline := int64(binary.LittleEndian.Uint64(scratch))

	if _, err := io.ReadFull(in, scratch[:4]); err != nil {
		return "", 0, nil, errors.Wrap(err, "snapshot: read value length")
	}
	value := make([]byte, binary.LittleEndian.Uint32(scratch))
	if _, err := io.ReadFull(in, value); err != nil {
		return "", 0, nil, errors.Wrap(err, "snapshot: read value")
	}

	return string(keyBuf), deadline, value, nil
}
