package main

// commands builds the router with every command the server supports. This
// is the single source of truth for the command surface.
func (app *application) commands() *Router {
	router := NewRouter()

	// Generic
	router.Handle("PING", app.handlePing)
	router.Handle("ECHO", app.handleEcho)
	router.Handle("DEL", app.handleDel)
	router.Handle("EXISTS", app.handleExists)
	router.Handle("KEYS", app.handleKeys)
	router.Handle("INFO", app.handleInfo)

	// Strings
	router.Handle("SET", app.handleSet)
	router.Handle("GET", app.handleGet)
	router.Handle("STRLEN", app.handleStrlen)

	// Expiration
	router.Handle("PEXPIRE", app.handlePExpire)
	router.Handle("PTTL", app.handlePTTL)
	router.Handle("PERSIST", app.handlePersist)

	// HyperLogLog
	router.Handle("PFADD", app.handlePFAdd)
	router.Handle("PFCOUNT", app.handlePFCount)
	router.Handle("PFMERGE", app.handlePFMerge)

	// Persistence
	router.Handle("SAVE", app.handleSave)

	return router
}
