package connection

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/shine-emu/fiesta/netpoll"
	"github.com/shine-emu/fiesta/shine/protocol"
)

// newPair returns a Connection wrapping one end of a socketpair and the raw
// peer descriptor standing in for the remote client
func newPair(t *testing.T) (*Connection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}
	conn := New(fds[0], 1, "test")
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return conn, fds[1]
}

// readAllPackets drives Readable until want packets arrived or the deadline
// passes
func readAllPackets(t *testing.T, conn *Connection, want int) []*protocol.Packet {
	t.Helper()
	var pkts []*protocol.Packet
	deadline := time.Now().Add(5 * time.Second)
	for len(pkts) < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d packets, got %d", want, len(pkts))
		}
		if disconnect := conn.Readable(); disconnect {
			t.Fatal("unexpected disconnect")
		}
		pkts = append(pkts, conn.DrainPackets()...)
	}
	return pkts
}

func TestReadableExtractsPackets(t *testing.T) {
	conn, peer := newPair(t)
	first := protocol.New(0x0104, []byte("login"))
	second := protocol.New(0x0207, bytes.Repeat([]byte{7}, 300))
	if _, err := unix.Write(peer, append(first.ToBytes(), second.ToBytes()...)); err != nil {
		t.Fatal(err)
	}

	pkts := readAllPackets(t, conn, 2)
	if pkts[0].Opcode != first.Opcode || !bytes.Equal(pkts[0].Body, first.Body) {
		t.Error("first packet mismatch")
	}
	if pkts[1].Opcode != second.Opcode || !bytes.Equal(pkts[1].Body, second.Body) {
		t.Error("second packet mismatch")
	}
}

func TestPartialFrameAcrossReads(t *testing.T) {
	conn, peer := newPair(t)
	frame := protocol.New(0x1234, []byte("abcdefgh")).ToBytes()

	if _, err := unix.Write(peer, frame[:3]); err != nil {
		t.Fatal(err)
	}
	if conn.Readable() {
		t.Fatal("unexpected disconnect")
	}
	if got := conn.DrainPackets(); len(got) != 0 {
		t.Fatalf("packet extracted from partial frame")
	}

	if _, err := unix.Write(peer, frame[3:]); err != nil {
		t.Fatal(err)
	}
	pkts := readAllPackets(t, conn, 1)
	if pkts[0].Opcode != 0x1234 || string(pkts[0].Body) != "abcdefgh" {
		t.Error("completed frame mismatch")
	}
}

func TestPeerCloseDisconnects(t *testing.T) {
	conn, peer := newPair(t)
	_ = unix.Close(peer)

	if disconnect := conn.Readable(); !disconnect {
		t.Error("empty read did not disconnect")
	}
	if conn.Alive() {
		t.Error("connection still alive after empty read")
	}
	if got := conn.DrainPackets(); len(got) != 0 {
		t.Error("packet produced from empty read")
	}
}

func TestSpuriousReadableIsHarmless(t *testing.T) {
	conn, _ := newPair(t)
	// no data pending, the nonblocking read hits EAGAIN
	if disconnect := conn.Readable(); disconnect {
		t.Error("would-block read disconnected")
	}
	if !conn.Alive() {
		t.Error("would-block read killed the connection")
	}
}

func TestWritableDrainsInOrder(t *testing.T) {
	conn, peer := newPair(t)
	payload := make([]byte, 8000)
	rand.Read(payload)
	conn.Send(payload)

	var received []byte
	chunk := make([]byte, 4096)
	events := 0
	deadline := time.Now().Add(5 * time.Second)
	for len(received) < len(payload) {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d bytes drained", len(received), len(payload))
		}
		if disconnect := conn.Writable(); disconnect {
			t.Fatal("unexpected disconnect while flushing")
		}
		events++
		for {
			n, err := unix.Read(peer, chunk)
			if n > 0 {
				received = append(received, chunk[:n]...)
			}
			if err != nil || n < len(chunk) {
				break
			}
		}
	}
	if !bytes.Equal(received, payload) {
		t.Error("drained bytes differ from queued bytes")
	}
	// each event moves at most 1024 bytes, draining 8000 takes several
	if events < 8 {
		t.Errorf("expected at least 8 writable events, got %d", events)
	}
	// buffer must now be empty, another event is a no-op
	if disconnect := conn.Writable(); disconnect {
		t.Error("no-op flush disconnected")
	}
}

func TestWritableWithEmptyBufferIsNoop(t *testing.T) {
	conn, _ := newPair(t)
	if disconnect := conn.Writable(); disconnect {
		t.Error("flush of empty buffer disconnected")
	}
	if !conn.Alive() {
		t.Error("flush of empty buffer killed the connection")
	}
}

func TestWriteToClosedPeerDisconnects(t *testing.T) {
	conn, peer := newPair(t)
	_ = unix.Close(peer)

	conn.Send([]byte("doomed"))
	disconnect := false
	deadline := time.Now().Add(5 * time.Second)
	for !disconnect {
		if time.Now().After(deadline) {
			t.Fatal("write to closed peer never disconnected")
		}
		disconnect = conn.Writable()
	}
	if conn.Alive() {
		t.Error("connection still alive after write failure")
	}
}

func TestInterestAlwaysContainsReadable(t *testing.T) {
	conn, _ := newPair(t)
	if !conn.Interest().IsReadable() {
		t.Error("fresh connection does not watch readable")
	}
	conn.Send([]byte{1})
	interest := conn.Interest()
	if !interest.IsReadable() || !interest.IsWritable() {
		t.Errorf("interest after Send = %b", interest)
	}
}

func TestSendEmptyIsNoop(t *testing.T) {
	conn, _ := newPair(t)
	conn.Send(nil)
	if disconnect := conn.Writable(); disconnect {
		t.Error("empty send broke the connection")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, _ := newPair(t)
	if err := conn.Close(); err != nil {
		t.Error(err)
	}
	if conn.Alive() {
		t.Error("connection alive after Close")
	}
	// second close must not panic or resurrect
	if err := conn.Close(); err != nil {
		t.Error(err)
	}
	if conn.Alive() {
		t.Error("connection alive after double Close")
	}
}

func TestInterestConstants(t *testing.T) {
	if !netpoll.All.IsReadable() || !netpoll.All.IsWritable() {
		t.Error("All must contain Readable and Writable")
	}
}
