// handlers_hll.go implements the HyperLogLog commands: PFADD, PFCOUNT and
// PFMERGE.
//
// All sketch logic lives in internal/ardb/hyperloglog; these handlers only
// shuttle arguments in and map the outcome onto RESP replies. The HLL layer
// runs against the store through a thin Backend adapter and serializes work
// per key through the lock manager, so the handlers themselves hold no
// locks.

package main

import (
	"errors"
	"io"

	"github.com/Zarmi/ardb/internal/ardb/hyperloglog"
)

// storeBackend adapts the sharded store to the hyperloglog.Backend
// contract. Writes go through Update rather than Set so that touching a
// sketch does not strip its TTL; newly created sketches are entered into
// the keyspace index.
type storeBackend struct {
	store *Store
	keys  *keyIndex
}

func (b *storeBackend) Get(key string) ([]byte, bool, error) {
	value, ok := b.store.Get(key)
	return value, ok, nil
}

func (b *storeBackend) Set(key string, value []byte) error {
	if existed := b.store.Update(key, value); !existed {
		b.keys.Put(key)
	}
	return nil
}

// writeHLLError translates the core error kinds onto the wire.
func (app *application) writeHLLError(w io.Writer, err error) {
	switch {
	case errors.Is(err, hyperloglog.ErrWrongType):
		app.wrongTypeResponse(w)
	case errors.Is(err, hyperloglog.ErrCorrupted):
		app.corruptedHLLResponse(w)
	default:
		_ = app.writeErrorResponse(w, "ERR "+err.Error())
	}
}

// handlePFAdd handles the PFADD command.
// Syntax: PFADD key [element ...]
//
// Returns 1 if the stored sketch changed (including creation of a missing
// key), 0 otherwise.
func (app *application) handlePFAdd(w io.Writer, args []string) {
	if len(args) < 1 {
		app.wrongNumberOfArgsResponse(w, "PFADD")
		return
	}

	members := make([][]byte, len(args)-1)
	for i, arg := range args[1:] {
		members[i] = []byte(arg)
	}

	changed, err := app.hll.PFAdd(args[0], members...)
	if err != nil {
		app.writeHLLError(w, err)
		return
	}
	_ = app.writeIntegerResponse(w, int64(changed))
}

// handlePFCount handles the PFCOUNT command.
// Syntax: PFCOUNT key [key ...]
//
// With one key, the cached cardinality is served when still valid; a stale
// cache is recomputed and written back, so the next count is O(1) again.
// With several keys the reply is the cardinality of their union, computed
// on a throwaway accumulator and never persisted.
func (app *application) handlePFCount(w io.Writer, args []string) {
	if len(args) < 1 {
		app.wrongNumberOfArgsResponse(w, "PFCOUNT")
		return
	}

	card, err := app.hll.PFCount(args...)
	if err != nil {
		app.writeHLLError(w, err)
		return
	}
	_ = app.writeIntegerResponse(w, int64(card))
}

// handlePFMerge handles the PFMERGE command.
// Syntax: PFMERGE destkey [sourcekey ...]
//
// The destination is written in the dense encoding holding the union of
// all sources. Missing sources are treated as empty sketches.
func (app *application) handlePFMerge(w io.Writer, args []string) {
	if len(args) < 1 {
		app.wrongNumberOfArgsResponse(w, "PFMERGE")
		return
	}

	if err := app.hll.PFMerge(args[0], args[1:]...); err != nil {
		app.writeHLLError(w, err)
		return
	}
	_ = app.writeSimpleStringResponse(w, "OK")
}
