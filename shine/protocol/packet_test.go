package protocol

import (
	"bytes"
	"testing"
)

func TestToBytesSmallForm(t *testing.T) {
	pkt := New(0x1d04, []byte{0xaa, 0xbb, 0xcc})
	got := pkt.ToBytes()
	want := []byte{3, 0x04, 0x1d, 0xaa, 0xbb, 0xcc}
	if !bytes.Equal(got, want) {
		t.Errorf("expected % x, got % x", want, got)
	}
}

func TestToBytesExtendedForm(t *testing.T) {
	body := bytes.Repeat([]byte{0x5a}, 300)
	pkt := New(0x0801, body)
	got := pkt.ToBytes()
	if len(got) != 5+300 {
		t.Errorf("expected %d bytes, got %d", 5+300, len(got))
	}
	// marker, length 300 = 0x012c LE, opcode 0x0801 LE
	want := []byte{0, 0x2c, 0x01, 0x01, 0x08}
	if !bytes.Equal(got[:5], want) {
		t.Errorf("expected prefix % x, got % x", want, got[:5])
	}
	if !bytes.Equal(got[5:], body) {
		t.Error("body corrupted")
	}
}

func TestToBytesEmptyBody(t *testing.T) {
	pkt := New(0xffff, nil)
	got := pkt.ToBytes()
	// an empty body cannot use the small form, 0 is the extended marker
	want := []byte{0, 0, 0, 0xff, 0xff}
	if !bytes.Equal(got, want) {
		t.Errorf("expected % x, got % x", want, got)
	}
}

func TestToBytesBoundaries(t *testing.T) {
	for _, n := range []int{1, 255, 256, MaxBodyLen} {
		pkt := New(0x1234, make([]byte, n))
		got := pkt.ToBytes()
		wantLen := 3 + n
		if n == 0 || n > 255 {
			wantLen = 5 + n
		}
		if len(got) != wantLen {
			t.Errorf("body %d: expected frame of %d bytes, got %d", n, wantLen, len(got))
		}
	}
}
