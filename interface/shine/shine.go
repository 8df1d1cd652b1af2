package shine

import "github.com/shine-emu/fiesta/shine/protocol"

// Connection is the processor-facing view of one client connection
type Connection interface {
	// ID returns the registry token assigned on accept, unique for the
	// connection's lifetime
	ID() int
	// Send queues b for delivery. It never blocks, the reactor drains the
	// outbound buffer on the next writable event.
	Send(b []byte)
	// Alive reports whether the connection is still usable, false is terminal
	Alive() bool
	// Close shuts the connection down, the reactor removes it afterwards
	Close() error
	// RemoteAddr returns the peer address
	RemoteAddr() string
}

// Job pairs one decoded packet with its originating connection. Each Job is
// consumed by exactly one worker.
type Job struct {
	Packet *protocol.Packet
	Conn   Connection
}

// Processor is the pluggable packet-processing logic. The dispatch pool is
// itself a Processor, so processors compose.
type Processor interface {
	// Process handles one job, side effects only. Responses go back through
	// job.Conn.Send.
	Process(job *Job)
	// Clone returns an independent handle to the same underlying logic, one
	// per worker
	Clone() Processor
}
