package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Framing errors.
var (
	// ErrInvalidLength indicates a header announced an impossible length.
	ErrInvalidLength = errors.New("invalid packet length")

	// ErrFrameTruncated indicates the stream ended inside a packet.
	ErrFrameTruncated = errors.New("frame truncated")
)

// frameLogger emits capture events for packets crossing the socket.
type frameLogger struct {
	logger log.Logger
	connID string
}

func (fl *frameLogger) log(data []byte, h wire.Header, direction log.Direction) {
	if fl.logger == nil {
		return
	}
	now := time.Now()
	category := log.CategoryPacket
	if h.FunctionID == wire.FunctionDisconnectProbe {
		category = log.CategoryProbe
	}
	uid := ""
	if h.UID != wire.BroadcastUID {
		uid = wire.EncodeUID(h.UID)
	}

	fl.logger.Log(log.Event{
		Timestamp:    now,
		ConnectionID: fl.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     category,
		UID:          uid,
		Frame:        &log.FrameEvent{Size: len(data), Data: append([]byte(nil), data...)},
	})
	fl.logger.Log(log.Event{
		Timestamp:    now,
		ConnectionID: fl.connID,
		Direction:    direction,
		Layer:        log.LayerWire,
		Category:     category,
		UID:          uid,
		Packet: &log.PacketEvent{
			FunctionID:       h.FunctionID,
			Sequence:         h.Sequence,
			ResponseExpected: h.ResponseExpected,
			ErrorCode:        uint8(h.ErrorCode),
			PayloadSize:      len(data) - wire.HeaderSize,
		},
	})
}

// PacketWriter writes packets to an underlying writer.
type PacketWriter struct {
	w  io.Writer
	mu sync.Mutex
	frameLogger
}

// NewPacketWriter creates a packet writer.
func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: w}
}

// SetLogger configures capture for this writer. Pass nil to disable.
func (pw *PacketWriter) SetLogger(logger log.Logger, connID string) {
	pw.logger = logger
	pw.connID = connID
}

// WritePacket encodes and writes p in a single write.
// Safe for concurrent use.
func (pw *PacketWriter) WritePacket(p wire.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, err := pw.w.Write(data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	h := p.Header
	h.Length = uint8(len(data))
	pw.log(data, h, log.DirectionOut)
	return nil
}

// PacketReader reads packets from an underlying reader.
type PacketReader struct {
	r      io.Reader
	header [wire.HeaderSize]byte
	frameLogger
}

// NewPacketReader creates a packet reader.
func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{r: r}
}

// SetLogger configures capture for this reader. Pass nil to disable.
func (pr *PacketReader) SetLogger(logger log.Logger, connID string) {
	pr.logger = logger
	pr.connID = connID
}

// ReadPacket reads the next packet. It returns io.EOF if the stream ended
// cleanly between packets.
func (pr *PacketReader) ReadPacket() (wire.Packet, error) {
	if _, err := io.ReadFull(pr.r, pr.header[:]); err != nil {
		if err == io.EOF {
			return wire.Packet{}, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return wire.Packet{}, ErrFrameTruncated
		}
		return wire.Packet{}, fmt.Errorf("read header: %w", err)
	}

	h, err := wire.DecodeHeader(pr.header[:])
	if err != nil {
		return wire.Packet{}, err
	}
	if h.Length < wire.HeaderSize || h.Length > wire.MaxPacketSize {
		return wire.Packet{}, fmt.Errorf("%w: %d", ErrInvalidLength, h.Length)
	}

	data := make([]byte, h.Length)
	copy(data, pr.header[:])
	if _, err := io.ReadFull(pr.r, data[wire.HeaderSize:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return wire.Packet{}, ErrFrameTruncated
		}
		return wire.Packet{}, fmt.Errorf("read payload: %w", err)
	}

	pr.log(data, h, log.DirectionIn)
	return wire.Packet{Header: h, Payload: data[wire.HeaderSize:]}, nil
}
