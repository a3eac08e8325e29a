// Package id mints the opaque identifiers used to correlate connections,
// processes, and searches. All three are process-lifetime counters with no
// reuse; see DESIGN.md's "process id exhaustion" note for why that's enough.
package id

import "sync/atomic"

// Connection identifies one client connection for the server's lifetime.
type Connection uint32

// Process identifies one spawned child process on a connection's table.
type Process uint32

// Search identifies one in-flight or completed search on a connection.
type Search uint32

// ConnectionGenerator mints unique, increasing Connection ids.
//
// The zero value is ready to use.
type ConnectionGenerator struct {
	next atomic.Uint32
}

// Next returns the next unused Connection id.
func (g *ConnectionGenerator) Next() Connection {
	return Connection(g.next.Add(1))
}

// ProcessGenerator mints unique, increasing Process ids.
//
// The zero value is ready to use.
type ProcessGenerator struct {
	next atomic.Uint32
}

// Next returns the next unused Process id.
func (g *ProcessGenerator) Next() Process {
	return Process(g.next.Add(1))
}

// SearchGenerator mints unique, increasing Search ids.
//
// The zero value is ready to use.
type SearchGenerator struct {
	next atomic.Uint32
}

// Next returns the next unused Search id.
func (g *SearchGenerator) Next() Search {
	return Search(g.next.Add(1))
}
