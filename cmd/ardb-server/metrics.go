package main

import "sync/atomic"

// Metrics holds the server's monitoring counters. All fields are atomics so
// handlers can bump them without coordination; INFO reads them with plain
// loads.
type Metrics struct {
	TotalConnections atomic.Uint64 // connections ever accepted
	TotalCommands    atomic.Uint64 // commands ever dispatched
	ExpiredKeys      atomic.Uint64 // keys reaped by the expiry sweep
	Snapshots        atomic.Uint64 // snapshots written successfully
}

func NewMetrics() *Metrics {
	return &Metrics{}
}
