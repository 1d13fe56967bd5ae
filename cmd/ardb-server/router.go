package main

import (
	"io"
	"strings"
)

// CommandHandler is the signature every command handler implements. The
// writer is the connection's buffered writer; handlers write their own
// reply and never return errors upward.
type CommandHandler func(w io.Writer, args []string)

// Router maps command names to handlers.
type Router struct {
	handlers map[string]CommandHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]CommandHandler)}
}

// Handle registers a handler. Names are case-insensitive.
func (r *Router) Handle(name string, handler CommandHandler) {
	r.handlers[strings.ToUpper(name)] = handler
}

// Dispatch routes one parsed command to its handler.
func (r *Router) Dispatch(app *application, w io.Writer, parts []string) {
	if len(parts) == 0 {
		return
	}

	app.metrics.TotalCommands.Add(1)

	name := strings.ToUpper(parts[0])
	handler, ok := r.handlers[name]
	if !ok {
		app.unknownCommandResponse(w, name)
		return
	}
	handler(w, parts[1:])
}
