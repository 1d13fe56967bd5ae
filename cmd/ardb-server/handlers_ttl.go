// handlers_ttl.go implements key expiration. All times are in milliseconds.
//
// Expiry state is held twice on purpose: the store owns the authoritative
// deadline (checked lazily on every read), while the keyspace index keeps
// the same deadline in an expiry heap so the background sweep can find
// lapsed keys without scanning. Both are updated together here.

package main

import (
	"io"
	"strconv"
	"time"
)

// handlePExpire handles the PEXPIRE command.
// Syntax: PEXPIRE key milliseconds
//
// A non-positive duration deletes the key immediately, as Redis does.
func (app *application) handlePExpire(w io.Writer, args []string) {
	if len(args) != 2 {
		app.wrongNumberOfArgsResponse(w, "PEXPIRE")
		return
	}

	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		app.notAnIntegerResponse(w)
		return
	}

	key := args[0]
	now := time.Now().UnixMilli()

	if ms <= 0 {
		existed := app.store.Delete(key)
		app.keys.Delete(key)
		if existed {
			_ = app.writeIntegerResponse(w, 1)
		} else {
			_ = app.writeIntegerResponse(w, 0)
		}
		return
	}

	deadline := now + ms
	if !app.store.SetExpiry(key, deadline) {
		_ = app.writeIntegerResponse(w, 0)
		return
	}
	app.keys.Expire(key, deadline, now)
	_ = app.writeIntegerResponse(w, 1)
}

// handlePTTL handles the PTTL command.
// Syntax: PTTL key
//
// Returns the remaining lifetime in milliseconds, -1 for a key without a
// deadline, -2 for a missing key.
func (app *application) handlePTTL(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "PTTL")
		return
	}

	deadline, ok := app.store.GetExpiry(args[0])
	if !ok {
		_ = app.writeIntegerResponse(w, -2)
		return
	}
	if deadline == 0 {
		_ = app.writeIntegerResponse(w, -1)
		return
	}

	remaining := deadline - time.Now().UnixMilli()
	if remaining < 0 {
		remaining = 0
	}
	_ = app.writeIntegerResponse(w, remaining)
}

// handlePersist handles the PERSIST command.
// Syntax: PERSIST key
func (app *application) handlePersist(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "PERSIST")
		return
	}

	key := args[0]
	if !app.store.Persist(key) {
		_ = app.writeIntegerResponse(w, 0)
		return
	}
	app.keys.Persist(key, time.Now().UnixMilli())
	_ = app.writeIntegerResponse(w, 1)
}
