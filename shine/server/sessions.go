package server

import (
	"github.com/puzpuzpuz/xsync/v3"

	shine "github.com/shine-emu/fiesta/interface/shine"
	"github.com/shine-emu/fiesta/shine/connection"
)

// Sessions is the worker-visible view of live connections. The reactor owns
// the authoritative registry and mirrors inserts and removals here, so
// processing logic can reach connections other than a job's own, for
// broadcasts and kicks.
type Sessions struct {
	m *xsync.MapOf[int, *connection.Connection]
}

func newSessions() *Sessions {
	return &Sessions{m: xsync.NewMapOf[int, *connection.Connection]()}
}

func (s *Sessions) put(conn *connection.Connection) {
	s.m.Store(conn.ID(), conn)
}

func (s *Sessions) drop(id int) {
	s.m.Delete(id)
}

// Get returns the live connection with the given id
func (s *Sessions) Get(id int) (shine.Connection, bool) {
	conn, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}
	return conn, true
}

// Len returns the number of live connections
func (s *Sessions) Len() int {
	return s.m.Size()
}

// Broadcast queues b on every live connection
func (s *Sessions) Broadcast(b []byte) {
	s.m.Range(func(_ int, conn *connection.Connection) bool {
		conn.Send(b)
		return true
	})
}

// Kick shuts down the connection with the given id and reports whether it
// was live
func (s *Sessions) Kick(id int) bool {
	conn, ok := s.m.Load(id)
	if !ok {
		return false
	}
	_ = conn.Close()
	return true
}
