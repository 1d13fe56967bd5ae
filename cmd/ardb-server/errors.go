// errors.go holds the canned RESP error replies shared by the handlers.

package main

import (
	"fmt"
	"io"
)

func (app *application) wrongTypeResponse(w io.Writer) {
	_ = app.writeErrorResponse(w, "WRONGTYPE Operation against a key holding the wrong kind of value")
}

func (app *application) corruptedHLLResponse(w io.Writer) {
	_ = app.writeErrorResponse(w, "INVALIDOBJ Corrupted HLL object detected")
}

func (app *application) unknownCommandResponse(w io.Writer, name string) {
	_ = app.writeErrorResponse(w, fmt.Sprintf("ERR unknown command '%s'", name))
}

func (app *application) wrongNumberOfArgsResponse(w io.Writer, name string) {
	_ = app.writeErrorResponse(w, fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}

func (app *application) notAnIntegerResponse(w io.Writer) {
	_ = app.writeErrorResponse(w, "ERR value is not an integer or out of range")
}
