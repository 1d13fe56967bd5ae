// handlers.go implements the generic commands: PING, ECHO, DEL, EXISTS,
// KEYS, INFO and SAVE.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Zarmi/ardb/internal/ardb/keycache"
)

// handlePing handles the PING command.
// Syntax: PING [message]
func (app *application) handlePing(w io.Writer, args []string) {
	switch len(args) {
	case 0:
		_ = app.writeSimpleStringResponse(w, "PONG")
	case 1:
		_ = app.writeBulkStringResponse(w, args[0])
	default:
		app.wrongNumberOfArgsResponse(w, "PING")
	}
}

// handleEcho handles the ECHO command.
// Syntax: ECHO message
func (app *application) handleEcho(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "ECHO")
		return
	}
	_ = app.writeBulkStringResponse(w, args[0])
}

// handleDel handles the DEL command.
// Syntax: DEL key [key ...]
//
// Returns the number of keys that actually existed.
func (app *application) handleDel(w io.Writer, args []string) {
	if len(args) == 0 {
		app.wrongNumberOfArgsResponse(w, "DEL")
		return
	}

	deleted := 0
	for _, key := range args {
		if app.store.Delete(key) {
			deleted++
		}
		app.keys.Delete(key)
	}
	_ = app.writeIntegerResponse(w, int64(deleted))
}

// handleExists handles the EXISTS command.
// Syntax: EXISTS key [key ...]
func (app *application) handleExists(w io.Writer, args []string) {
	if len(args) == 0 {
		app.wrongNumberOfArgsResponse(w, "EXISTS")
		return
	}

	found := 0
	for _, key := range args {
		if app.store.Exists(key) {
			found++
		}
	}
	_ = app.writeIntegerResponse(w, int64(found))
}

// handleKeys handles the KEYS command.
// Syntax: KEYS pattern
//
// Served entirely from the keyspace index; the store's shards are never
// walked, so a KEYS over a large dataset does not stall writers.
func (app *application) handleKeys(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "KEYS")
		return
	}

	pattern := keycache.ParsePattern(args[0])
	matched := app.keys.Keys(pattern, time.Now().UnixMilli())
	_ = app.writeArrayResponse(w, matched)
}

// handleInfo handles the INFO command.
// Syntax: INFO
func (app *application) handleInfo(w io.Writer, args []string) {
	if len(args) > 0 {
		app.wrongNumberOfArgsResponse(w, "INFO")
		return
	}

	var b strings.Builder
	b.WriteString("# Server\r\n")
	fmt.Fprintf(&b, "connections_total:%d\r\n", app.metrics.TotalConnections.Load())
	fmt.Fprintf(&b, "connections_active:%d\r\n", len(app.connLimiter))
	fmt.Fprintf(&b, "commands_processed_total:%d\r\n", app.metrics.TotalCommands.Load())
	b.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&b, "keys:%d\r\n", app.store.Len())
	fmt.Fprintf(&b, "expired_keys_total:%d\r\n", app.metrics.ExpiredKeys.Load())
	b.WriteString("# Persistence\r\n")
	fmt.Fprintf(&b, "snapshots_total:%d\r\n", app.metrics.Snapshots.Load())

	_ = app.writeBulkStringResponse(w, b.String())
}

// handleSave handles the SAVE command.
// Syntax: SAVE
//
// Writes a snapshot synchronously. The per-shard copy inside SaveSnapshot
// keeps the stall per shard short even though the command itself blocks
// until the file is durable.
func (app *application) handleSave(w io.Writer, args []string) {
	if len(args) != 0 {
		app.wrongNumberOfArgsResponse(w, "SAVE")
		return
	}
	if app.config.snapshotPath == "" {
		_ = app.writeErrorResponse(w, "ERR persistence is disabled")
		return
	}

	if err := app.saveSnapshotFile(); err != nil {
		app.logger.Error("snapshot failed", "error", err)
		_ = app.writeErrorResponse(w, "ERR snapshot failed")
		return
	}
	_ = app.writeSimpleStringResponse(w, "OK")
}
