package connection

import (
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sys/unix"

	shine "github.com/shine-emu/fiesta/interface/shine"
	"github.com/shine-emu/fiesta/lib/buffer"
	"github.com/shine-emu/fiesta/lib/logger"
	"github.com/shine-emu/fiesta/lib/sync/atomic"
	"github.com/shine-emu/fiesta/netpoll"
	"github.com/shine-emu/fiesta/shine/parser"
	"github.com/shine-emu/fiesta/shine/protocol"
)

var _ shine.Connection = (*Connection)(nil)

// chunkSize is the most bytes moved per readable or writable event
const chunkSize = 1024

var (
	bytesReadTotal    = metrics.GetOrCreateCounter("fiesta_bytes_read_total")
	bytesWrittenTotal = metrics.GetOrCreateCounter("fiesta_bytes_written_total")
)

// Connection owns one accepted socket and its buffered state.
//
// The reactor goroutine alone drives Readable, Writable and DrainPackets.
// Worker goroutines may call Send and the accessors concurrently. Every
// mutable field has its own guard and no guard is held while acquiring
// another, so the reactor and workers never contend beyond the write buffer
// and the interest set.
type Connection struct {
	fd         int
	token      int
	remoteAddr string

	readMu  sync.Mutex
	readBuf *buffer.Buffer

	writeMu  sync.Mutex
	writeBuf *buffer.Buffer

	queueMu sync.Mutex
	inbound []*protocol.Packet

	interestMu sync.Mutex
	interest   netpoll.EventSet

	alive atomic.Boolean
}

// New wraps an accepted nonblocking socket
func New(fd int, token int, remoteAddr string) *Connection {
	c := &Connection{
		fd:         fd,
		token:      token,
		remoteAddr: remoteAddr,
		readBuf:    buffer.New(),
		writeBuf:   buffer.New(),
		interest:   netpoll.All,
	}
	c.alive.Set(true)
	return c
}

// ID returns the registry token assigned on accept
func (c *Connection) ID() int {
	return c.token
}

// FD returns the underlying socket descriptor
func (c *Connection) FD() int {
	return c.fd
}

// RemoteAddr returns the peer address
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Alive reports whether the connection is still usable
func (c *Connection) Alive() bool {
	return c.alive.Get()
}

// Interest returns the event set the reactor should watch next
func (c *Connection) Interest() netpoll.EventSet {
	c.interestMu.Lock()
	defer c.interestMu.Unlock()
	return c.interest
}

// Readable performs one nonblocking read of up to chunkSize bytes, appends
// whatever arrived to the read buffer and reassembles every complete frame.
// It reports whether the connection must be torn down.
func (c *Connection) Readable() (disconnect bool) {
	var chunk [chunkSize]byte
	n, err := unix.Read(c.fd, chunk[:])
	switch {
	case n > 0:
		bytesReadTotal.Add(n)
		c.readMu.Lock()
		c.readBuf.Append(chunk[:n])
		pkts := parser.Drain(c.readBuf)
		c.readMu.Unlock()
		if len(pkts) > 0 {
			c.queueMu.Lock()
			c.inbound = append(c.inbound, pkts...)
			c.queueMu.Unlock()
		}
		return false
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		// spurious wakeup, wait for the next event
		return false
	case n == 0 && err == nil:
		logger.Debugf("connection %d: peer closed", c.token)
		return c.kill()
	default:
		logger.Warnf("connection %d: read: %v", c.token, err)
		return c.kill()
	}
}

// DrainPackets removes and returns the queued inbound packets in arrival
// order
func (c *Connection) DrainPackets() []*protocol.Packet {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	pkts := c.inbound
	c.inbound = nil
	return pkts
}

// Writable peeks up to chunkSize bytes from the write buffer and attempts
// one nonblocking write. Partial writes are normal, the remainder stays
// buffered for the next writable event. It reports whether the connection
// must be torn down.
func (c *Connection) Writable() (disconnect bool) {
	var chunk [chunkSize]byte
	c.writeMu.Lock()
	n, err := c.writeBuf.PeekMax(0, chunkSize, chunk[:])
	c.writeMu.Unlock()
	if err != nil {
		logger.Warnf("connection %d: peek write buffer: %v", c.token, err)
		return c.kill()
	}
	if n == 0 {
		// nothing queued
		return false
	}
	w, err := unix.Write(c.fd, chunk[:n])
	if w > 0 {
		bytesWrittenTotal.Add(w)
		c.writeMu.Lock()
		_ = c.writeBuf.AdvanceRead(w)
		c.writeMu.Unlock()
		return false
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return false
	}
	logger.Warnf("connection %d: write: %v", c.token, err)
	return c.kill()
}

// Send queues b for delivery and raises writable interest so the reactor
// flushes on the next writable event. Safe to call from worker goroutines;
// this is the only write-side path shared with the reactor. Bytes queued
// after the connection died are silently discarded with it.
func (c *Connection) Send(b []byte) {
	if len(b) == 0 {
		return
	}
	c.writeMu.Lock()
	c.writeBuf.Append(b)
	c.writeMu.Unlock()

	c.interestMu.Lock()
	if c.interest&netpoll.Writable == 0 {
		c.interest |= netpoll.Writable
	}
	c.interestMu.Unlock()
}

// Close marks the connection dead and shuts the socket down. The reactor
// removes it from the registry on its next pass.
func (c *Connection) Close() error {
	c.kill()
	return nil
}

// kill shuts the socket down for both directions exactly once. It always
// reports disconnect so callers can propagate the teardown.
func (c *Connection) kill() bool {
	if c.alive.CompareAndSet(true, false) {
		_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
	}
	return true
}

// Release closes the socket descriptor. Only the reactor calls this, after
// the registry entry is gone.
func (c *Connection) Release() {
	_ = unix.Close(c.fd)
}
