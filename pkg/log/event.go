package log

import (
	"time"

	"github.com/google/uuid"
)

// Event is a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the TCP connection to the daemon.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// SessionID identifies the connection epoch the event belongs to.
	SessionID string `cbor:"3,keyasint,omitempty"`

	Direction Direction `cbor:"4,keyasint"`
	Layer     Layer     `cbor:"5,keyasint"`
	Category  Category  `cbor:"6,keyasint"`

	// RemoteAddr is the daemon address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// UID is the base58 UID of the module involved, if any.
	UID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Enumeration *EnumerationEvent `cbor:"13,keyasint,omitempty"`
	Sample      *SampleEvent      `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Direction indicates the direction of traffic.
type Direction uint8

const (
	// DirectionIn indicates data received from the bus.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the bus.
	DirectionOut Direction = 1
	// DirectionNone is used for local events.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the packet layer (decoded headers).
	LayerWire Layer = 1
	// LayerApplication covers the supervisor, registry and handlers.
	LayerApplication Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket is request, response or callback traffic.
	CategoryPacket Category = 0
	// CategoryProbe is a disconnect probe.
	CategoryProbe Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error event.
	CategoryError Category = 3
	// CategoryEnumeration is a module announcing itself.
	CategoryEnumeration Category = 4
	// CategoryTelemetry is a rendered sensor reading.
	CategoryTelemetry Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryProbe:
		return "PROBE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryEnumeration:
		return "ENUMERATION"
	case CategoryTelemetry:
		return "TELEMETRY"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw packet bytes at the transport layer.
type FrameEvent struct {
	Size int    `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint,omitempty"`
}

// PacketEvent captures a decoded packet header.
type PacketEvent struct {
	FunctionID       uint8 `cbor:"1,keyasint"`
	Sequence         uint8 `cbor:"2,keyasint"`
	ResponseExpected bool  `cbor:"3,keyasint,omitempty"`
	ErrorCode        uint8 `cbor:"4,keyasint,omitempty"`
	PayloadSize      int   `cbor:"5,keyasint"`
}

// IsCallback reports whether the packet was pushed by a module.
func (p *PacketEvent) IsCallback() bool {
	return p.Sequence == 0
}

// StateChangeEvent captures connection and supervisor lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the TCP connection to the daemon.
	StateEntityConnection StateEntity = 0
	// StateEntitySupervisor is the connection supervisor.
	StateEntitySupervisor StateEntity = 1
	// StateEntityDisplay is the display sink.
	StateEntityDisplay StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySupervisor:
		return "SUPERVISOR"
	case StateEntityDisplay:
		return "DISPLAY"
	default:
		return "UNKNOWN"
	}
}

// EnumerationEvent captures a module identity reported by the bus.
type EnumerationEvent struct {
	ConnectedUID     string `cbor:"1,keyasint,omitempty"`
	Position         string `cbor:"2,keyasint,omitempty"`
	DeviceIdentifier uint16 `cbor:"3,keyasint"`
	Kind             string `cbor:"4,keyasint,omitempty"`
	Type             string `cbor:"5,keyasint"`
	Hardware         string `cbor:"6,keyasint,omitempty"`
	Firmware         string `cbor:"7,keyasint,omitempty"`
}

// SampleEvent captures one telemetry reading and the text rendered for it.
type SampleEvent struct {
	Kind  string  `cbor:"1,keyasint"`
	Row   uint8   `cbor:"2,keyasint"`
	Raw   int64   `cbor:"3,keyasint"`
	Value float64 `cbor:"4,keyasint"`
	Text  string  `cbor:"5,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the bus error code, if applicable.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
