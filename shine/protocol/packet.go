package protocol

import "encoding/binary"

// A frame on the wire is a length field, a 16-bit opcode and the body.
// Bodies of 1..255 bytes use a single length byte holding the body length.
// A zero length byte switches to the extended form where the true body
// length follows as a little-endian uint16, used for empty bodies and for
// bodies of 256..65535 bytes. All multi-byte fields are little-endian.

// MaxBodyLen is the largest body a single frame can carry
const MaxBodyLen = 0xffff

// maxSmallBody is the largest body representable by the one-byte length form
const maxSmallBody = 0xff

// Packet is one decoded frame: a 16-bit opcode and an opaque body
type Packet struct {
	Opcode uint16
	Body   []byte
}

// New creates a Packet with the given opcode and body
func New(opcode uint16, body []byte) *Packet {
	return &Packet{Opcode: opcode, Body: body}
}

// ToBytes serializes the packet into its wire frame
func (p *Packet) ToBytes() []byte {
	n := len(p.Body)
	if n >= 1 && n <= maxSmallBody {
		out := make([]byte, 0, 3+n)
		out = append(out, byte(n))
		out = binary.LittleEndian.AppendUint16(out, p.Opcode)
		return append(out, p.Body...)
	}
	out := make([]byte, 0, 5+n)
	out = append(out, 0)
	out = binary.LittleEndian.AppendUint16(out, uint16(n))
	out = binary.LittleEndian.AppendUint16(out, p.Opcode)
	return append(out, p.Body...)
}
