//go:build linux

package netpoll

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeToken tags events from the internal eventfd used by Wake. It never
// collides with registration tokens, which are non-negative.
const wakeToken = -1

// Poller is an epoll instance. The registration token travels through the
// epoll data field, so events come back tagged with the token rather than
// the descriptor.
type Poller struct {
	epfd   int
	wakeFD int
	raw    []unix.EpollEvent // scratch for Wait
}

// Open creates a Poller with its wakeup eventfd already registered
func Open() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeToken)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, ev); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl add wakeup: %w", err)
	}
	return &Poller{epfd: epfd, wakeFD: wakeFD}, nil
}

func toEpollEvents(events EventSet) uint32 {
	var ep uint32
	if events.IsReadable() {
		ep |= unix.EPOLLIN
	}
	if events.IsWritable() {
		ep |= unix.EPOLLOUT
	}
	return ep
}

func fromEpollEvents(ep uint32) EventSet {
	var events EventSet
	if ep&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		events |= Readable
	}
	if ep&unix.EPOLLOUT != 0 {
		events |= Writable
	}
	if ep&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		// surface hangups as readable too, the read path turns the
		// zero-byte read or error into a disconnect
		events |= Closed | Readable
	}
	return events
}

// AddListener registers a listening socket level-triggered and read-only.
// Pending connections keep the event firing until they are accepted.
func (p *Poller) AddListener(fd int, token int) error {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(token)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("epoll_ctl add listener: %w", err)
	}
	return nil
}

// AddOneShot registers fd for the given events. The registration fires at
// most once, Rearm renews it.
func (p *Poller) AddOneShot(fd int, token int, events EventSet) error {
	ev := &unix.EpollEvent{
		Events: toEpollEvents(events) | unix.EPOLLONESHOT,
		Fd:     int32(token),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	return nil
}

// Rearm renews a one-shot registration with a possibly changed event set.
// A connection whose event was handled without a Rearm never fires again.
func (p *Poller) Rearm(fd int, token int, events EventSet) error {
	ev := &unix.EpollEvent{
		Events: toEpollEvents(events) | unix.EPOLLONESHOT,
		Fd:     int32(token),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	return nil
}

// Delete removes fd from the interest list
func (p *Poller) Delete(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del: %w", err)
	}
	return nil
}

// Wait blocks until at least one registered descriptor is ready and fills
// evs. It may return 0 events after a signal or a Wake call, callers just
// poll again.
func (p *Poller) Wait(evs []Event) (int, error) {
	if len(p.raw) < len(evs) {
		p.raw = make([]unix.EpollEvent, len(evs))
	}
	raw := p.raw[:len(evs)]
	n, err := unix.EpollWait(p.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		token := int(raw[i].Fd)
		if token == wakeToken {
			var buf [8]byte
			_, _ = unix.Read(p.wakeFD, buf[:])
			continue
		}
		evs[out] = Event{Token: token, Events: fromEpollEvents(raw[i].Events)}
		out++
	}
	return out, nil
}

// Wake makes a blocked Wait return so the caller can observe state changes
// such as shutdown
func (p *Poller) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakeFD, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("wake: %w", err)
	}
	return nil
}

// Close releases the epoll instance and the wakeup descriptor
func (p *Poller) Close() error {
	_ = unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}
