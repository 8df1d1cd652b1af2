package server

import (
	shine "github.com/shine-emu/fiesta/interface/shine"
)

// EchoProcessor sends every packet back to its sender unchanged. Useful for
// wire-level testing and as the default logic of the bare binary.
type EchoProcessor struct{}

// MakeEchoProcessor creates EchoProcessor
func MakeEchoProcessor() *EchoProcessor {
	return &EchoProcessor{}
}

// Process re-encodes the packet and queues it on the originating connection
func (e *EchoProcessor) Process(job *shine.Job) {
	job.Conn.Send(job.Packet.ToBytes())
}

// Clone returns the processor itself, it is stateless
func (e *EchoProcessor) Clone() shine.Processor {
	return e
}
