// handlers_string.go implements the plain string commands. The HyperLogLog
// sketches live in the same keyspace as ordinary strings (a sketch IS an
// ordinary string, type-tagged only by its magic bytes), so GET on a sketch
// returns its raw serialized form just like Redis does.

package main

import "io"

// handleSet handles the SET command.
// Syntax: SET key value
//
// SET overwrites unconditionally and clears any TTL on the key.
func (app *application) handleSet(w io.Writer, args []string) {
	if len(args) != 2 {
		app.wrongNumberOfArgsResponse(w, "SET")
		return
	}

	key := args[0]
	app.store.Set(key, []byte(args[1]))
	app.keys.Put(key)
	_ = app.writeSimpleStringResponse(w, "OK")
}

// handleGet handles the GET command.
// Syntax: GET key
func (app *application) handleGet(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "GET")
		return
	}

	value, ok := app.store.Get(args[0])
	if !ok {
		_ = app.writeNilResponse(w)
		return
	}
	_ = app.writeBulkStringResponse(w, string(value))
}

// handleStrlen handles the STRLEN command.
// Syntax: STRLEN key
func (app *application) handleStrlen(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "STRLEN")
		return
	}

	value, ok := app.store.Get(args[0])
	if !ok {
		_ = app.writeIntegerResponse(w, 0)
		return
	}
	_ = app.writeIntegerResponse(w, int64(len(value)))
}
