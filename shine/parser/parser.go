package parser

/*
 * Reassembles frames from a connection's read buffer.
 */

import (
	"github.com/shine-emu/fiesta/lib/buffer"
	"github.com/shine-emu/fiesta/shine/protocol"
)

// nextSize peeks the length field at the front of buf and returns the body
// length and the width of the length field (1 or 3 bytes). ok is false while
// the buffer cannot even supply the length field.
func nextSize(buf *buffer.Buffer) (size int, width int, ok bool) {
	small, err := buf.PeekUint8(0)
	if err != nil {
		return 0, 0, false
	}
	if small > 0 {
		return int(small), 1, true
	}
	big, err := buf.PeekUint16(1)
	if err != nil {
		return 0, 0, false
	}
	return int(big), 3, true
}

// Next extracts one complete frame from buf. ok is false when no full frame
// is buffered yet, which is the normal wait-for-more-data case and not an
// error. The buffer is only mutated once the whole frame is present.
func Next(buf *buffer.Buffer) (pkt *protocol.Packet, ok bool) {
	size, width, ok := nextSize(buf)
	if !ok {
		return nil, false
	}
	if buf.BytesRemaining() < width+2+size {
		return nil, false
	}
	// the full frame is buffered, the reads below cannot fail
	_ = buf.AdvanceRead(width)
	opcode, _ := buf.ReadUint16()
	body, _ := buf.ReadBytes(size)
	return &protocol.Packet{Opcode: opcode, Body: body}, true
}

// Drain extracts frames until no complete frame remains, preserving arrival
// order
func Drain(buf *buffer.Buffer) []*protocol.Packet {
	var pkts []*protocol.Packet
	for {
		pkt, ok := Next(buf)
		if !ok {
			return pkts
		}
		pkts = append(pkts, pkt)
	}
}
