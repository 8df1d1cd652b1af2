// Package netpoll wraps the OS readiness facility behind a small poller
// interface. Client sockets are registered one-shot: a registration fires at
// most once and must be explicitly re-armed after its event is handled, so
// the reactor never observes two concurrent events for one connection.
package netpoll

// EventSet is a set of readiness events, watched or reported, for one
// registered descriptor
type EventSet uint32

const (
	// Readable fires when the descriptor has data to read
	Readable EventSet = 1 << iota
	// Writable fires when the descriptor accepts writes
	Writable
	// Closed reports a peer hangup or descriptor error. It is only ever
	// reported, never requested.
	Closed
)

// All is the initial interest of a fresh connection
const All = Readable | Writable

// IsReadable reports whether the set contains Readable
func (s EventSet) IsReadable() bool {
	return s&Readable != 0
}

// IsWritable reports whether the set contains Writable
func (s EventSet) IsWritable() bool {
	return s&Writable != 0
}

// IsClosed reports whether the set contains Closed
func (s EventSet) IsClosed() bool {
	return s&Closed != 0
}

// Event is one readiness notification, tagged with the token supplied at
// registration time
type Event struct {
	Token  int
	Events EventSet
}
