package transport

import "github.com/cscode-eu/weatherstation/pkg/wire"

// PacketSource reads packets. Implemented by PacketReader.
type PacketSource interface {
	ReadPacket() (wire.Packet, error)
}

// PacketSink writes packets. Implemented by PacketWriter.
type PacketSink interface {
	WritePacket(p wire.Packet) error
}

// Compile-time interface satisfaction checks.
var (
	_ PacketSource = (*PacketReader)(nil)
	_ PacketSink   = (*PacketWriter)(nil)
)
