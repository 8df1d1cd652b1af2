//go:build linux

package server

/*
 * The reactor: a single goroutine multiplexing every socket with one-shot
 * readiness registrations, feeding decoded packets to the processing logic.
 */

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	shine "github.com/shine-emu/fiesta/interface/shine"
	"github.com/shine-emu/fiesta/lib/logger"
	"github.com/shine-emu/fiesta/lib/sync/atomic"
	"github.com/shine-emu/fiesta/netpoll"
	"github.com/shine-emu/fiesta/shine/connection"
)

// listenerToken is the reserved registration token of the accept socket.
// Connection tokens start above it and are never reused while registered.
const listenerToken = 0

// maxEventsPerWait bounds how many readiness events one reactor turn handles
const maxEventsPerWait = 128

// Config stores reactor properties
type Config struct {
	Address    string
	MaxClients int
	// AcceptFatal escalates unexpected accept errors to a reactor abort,
	// reproducing classic fail-fast behavior. Off, the reactor logs and
	// keeps accepting.
	AcceptFatal bool
}

// Server accepts connections and multiplexes their I/O on one goroutine.
// The registry of live connections belongs to that goroutine alone, workers
// reach connections only through jobs and the session view.
type Server struct {
	cfg       Config
	processor shine.Processor

	listenFD int
	addr     string
	poller   *netpoll.Poller

	clients   map[int]*connection.Connection // registry, reactor only
	nextToken int

	sessions *Sessions
	closing  atomic.Boolean
}

// New creates an unstarted Server
func New(cfg Config, processor shine.Processor) *Server {
	return &Server{
		cfg:       cfg,
		processor: processor,
		listenFD:  -1,
		clients:   make(map[int]*connection.Connection),
		nextToken: listenerToken,
		sessions:  newSessions(),
	}
}

// Sessions returns the worker-visible view of live connections
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Addr returns the bound listen address, valid after Listen
func (s *Server) Addr() string {
	return s.addr
}

// Listen opens the poller and binds the nonblocking listening socket
func (s *Server) Listen() error {
	poller, err := netpoll.Open()
	if err != nil {
		return err
	}
	fd, err := listenSocket(s.cfg.Address)
	if err != nil {
		_ = poller.Close()
		return err
	}
	s.poller = poller
	s.listenFD = fd
	s.addr = sockaddrString(mustGetsockname(fd))
	logger.Infof("bind: %s, start listening...", s.addr)
	return nil
}

// listenSocket creates a bound and listening nonblocking TCP socket
func listenSocket(address string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return -1, fmt.Errorf("resolve %s: %w", address, err)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", address, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", address, err)
	}
	return fd, nil
}

// Serve runs the event loop until Close. Each turn waits for readiness,
// handles every event, then submits the collected jobs in extraction order.
func (s *Server) Serve() error {
	if s.poller == nil || s.listenFD < 0 {
		return fmt.Errorf("server: Serve before Listen")
	}
	defer s.teardown()

	if err := s.poller.AddListener(s.listenFD, listenerToken); err != nil {
		return err
	}

	events := make([]netpoll.Event, maxEventsPerWait)
	for {
		n, err := s.poller.Wait(events)
		if err != nil {
			return err
		}
		if s.closing.Get() {
			return nil
		}
		var jobs []*shine.Job
		for _, ev := range events[:n] {
			if ev.Token == listenerToken {
				if err := s.accept(); err != nil {
					return err
				}
				continue
			}
			jobs = s.handleClient(ev, jobs)
		}
		for _, job := range jobs {
			s.processor.Process(job)
		}
	}
}

// accept takes at most one pending connection. The listener registration is
// level-triggered, further pending connections fire again on the next turn.
// The returned error is non-nil only under the fail-fast accept policy.
func (s *Server) accept() error {
	nfd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			// no connection pending
			return nil
		}
		if s.cfg.AcceptFatal {
			return fmt.Errorf("accept: %w", err)
		}
		logger.Errorf("accept: %v", err)
		return nil
	}
	if s.cfg.MaxClients > 0 && len(s.clients) >= s.cfg.MaxClients {
		logger.Warnf("max clients (%d) reached, rejecting connection", s.cfg.MaxClients)
		rejectedTotal.Inc()
		_ = unix.Close(nfd)
		return nil
	}

	s.nextToken++
	token := s.nextToken
	conn := connection.New(nfd, token, sockaddrString(sa))
	if err := s.poller.AddOneShot(nfd, token, netpoll.All); err != nil {
		logger.Errorf("register connection %d: %v", token, err)
		_ = unix.Close(nfd)
		return nil
	}
	s.clients[token] = conn
	s.sessions.put(conn)
	acceptedTotal.Inc()
	activeAdd(1)
	logger.Infof("accepted connection %d from %s", token, conn.RemoteAddr())
	return nil
}

// handleClient dispatches one readiness event to its connection and either
// removes the connection or re-arms its one-shot registration. Skipping the
// re-arm would silently starve the connection of events.
func (s *Server) handleClient(ev netpoll.Event, jobs []*shine.Job) []*shine.Job {
	conn, ok := s.clients[ev.Token]
	if !ok {
		return jobs
	}
	disconnect := false
	if ev.Events.IsReadable() {
		disconnect = conn.Readable()
		for _, pkt := range conn.DrainPackets() {
			packetsTotal.Inc()
			jobs = append(jobs, &shine.Job{Packet: pkt, Conn: conn})
		}
	}
	if !disconnect && ev.Events.IsWritable() {
		disconnect = conn.Writable()
	}
	if disconnect || !conn.Alive() {
		s.remove(conn)
		return jobs
	}
	if err := s.poller.Rearm(conn.FD(), ev.Token, conn.Interest()); err != nil {
		logger.Errorf("rearm connection %d: %v", ev.Token, err)
		_ = conn.Close()
		s.remove(conn)
	}
	return jobs
}

// remove drops a connection from the registry, terminal for its token
func (s *Server) remove(conn *connection.Connection) {
	delete(s.clients, conn.ID())
	s.sessions.drop(conn.ID())
	_ = s.poller.Delete(conn.FD())
	conn.Release()
	closedTotal.Inc()
	activeAdd(-1)
	logger.Infof("connection %d disconnected", conn.ID())
}

// teardown releases every socket when the event loop exits
func (s *Server) teardown() {
	for _, conn := range s.clients {
		_ = conn.Close()
		s.remove(conn)
	}
	if s.listenFD >= 0 {
		_ = unix.Close(s.listenFD)
		s.listenFD = -1
	}
	_ = s.poller.Close()
}

// Close stops the event loop. Safe to call from any goroutine.
func (s *Server) Close() error {
	s.closing.Set(true)
	if s.poller != nil {
		return s.poller.Wake()
	}
	return nil
}

// ListenAndServeWithSignal binds the port and serves, blocking until a stop
// signal arrives
func ListenAndServeWithSignal(cfg Config, processor shine.Processor) error {
	srv := New(cfg, processor)
	if err := srv.Listen(); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, shutting down...", sig)
		_ = srv.Close()
	}()
	return srv.Serve()
}

func mustGetsockname(fd int) unix.Sockaddr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sa
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%v]:%d", net.IP(a.Addr[:]), a.Port)
	default:
		return "unknown"
	}
}
