package buffer

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientData is returned by peek and read operations when the buffer
// does not hold enough unread bytes to satisfy the request
var ErrInsufficientData = errors.New("buffer: insufficient data")

// compactThreshold is the number of consumed bytes tolerated at the front of
// the backing slice before Append slides pending data down
const compactThreshold = 4096

// Buffer is an append-only byte accumulator with peek and advance semantics.
// Appended bytes stay invisible to peeks only after AdvanceRead consumed them.
// Buffer is not safe for concurrent use, callers provide their own locking.
type Buffer struct {
	data []byte
	read int // offset of the first unread byte
}

// New creates an empty Buffer
func New() *Buffer {
	return &Buffer{}
}

// Append adds p to the end of the buffer
func (b *Buffer) Append(p []byte) {
	if b.read == len(b.data) {
		// everything consumed, restart at the front
		b.data = b.data[:0]
		b.read = 0
	} else if b.read > compactThreshold {
		n := copy(b.data, b.data[b.read:])
		b.data = b.data[:n]
		b.read = 0
	}
	b.data = append(b.data, p...)
}

// BytesRemaining returns the number of unread bytes
func (b *Buffer) BytesRemaining() int {
	return len(b.data) - b.read
}

// PeekUint8 returns the byte at the given offset without consuming it
func (b *Buffer) PeekUint8(offset int) (byte, error) {
	if b.BytesRemaining() < offset+1 {
		return 0, ErrInsufficientData
	}
	return b.data[b.read+offset], nil
}

// PeekUint16 returns the little-endian uint16 at the given offset without
// consuming it
func (b *Buffer) PeekUint16(offset int) (uint16, error) {
	if b.BytesRemaining() < offset+2 {
		return 0, ErrInsufficientData
	}
	return binary.LittleEndian.Uint16(b.data[b.read+offset:]), nil
}

// PeekMax copies up to limit unread bytes starting at offset into out and
// returns the number copied. Nothing is consumed. Copying fewer bytes than
// limit is not an error, an offset beyond the unread region is.
func (b *Buffer) PeekMax(offset int, limit int, out []byte) (int, error) {
	remaining := b.BytesRemaining()
	if offset > remaining {
		return 0, ErrInsufficientData
	}
	n := remaining - offset
	if n > limit {
		n = limit
	}
	if n > len(out) {
		n = len(out)
	}
	copy(out, b.data[b.read+offset:b.read+offset+n])
	return n, nil
}

// AdvanceRead consumes and discards n bytes from the front
func (b *Buffer) AdvanceRead(n int) error {
	if b.BytesRemaining() < n {
		return ErrInsufficientData
	}
	b.read += n
	return nil
}

// ReadUint16 consumes and returns the little-endian uint16 at the front
func (b *Buffer) ReadUint16() (uint16, error) {
	v, err := b.PeekUint16(0)
	if err != nil {
		return 0, err
	}
	b.read += 2
	return v, nil
}

// ReadBytes consumes and returns the next n bytes. The returned slice is a
// copy and stays valid after later Append calls.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.BytesRemaining() < n {
		return nil, ErrInsufficientData
	}
	out := make([]byte, n)
	copy(out, b.data[b.read:])
	b.read += n
	return out, nil
}
