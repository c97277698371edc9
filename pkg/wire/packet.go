package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet layout constants.
const (
	// HeaderSize is the size of the packet header in bytes.
	HeaderSize = 8

	// MaxPacketSize is the largest packet the daemon will accept or send.
	MaxPacketSize = 80

	// MaxPayloadSize is the largest payload that fits in a packet.
	MaxPayloadSize = MaxPacketSize - HeaderSize

	// BroadcastUID addresses every device on the bus.
	BroadcastUID uint32 = 0

	// MaxSequence is the highest request sequence number.
	MaxSequence uint8 = 15
)

// Function identifiers handled by the connection itself rather than a device.
const (
	// FunctionDisconnectProbe keeps an idle connection from being dropped.
	FunctionDisconnectProbe uint8 = 128

	// CallbackEnumerate is the function id of enumeration callbacks.
	CallbackEnumerate uint8 = 253

	// FunctionEnumerate asks every device to report itself.
	FunctionEnumerate uint8 = 254
)

// Packet errors.
var (
	// ErrPacketTooShort indicates fewer bytes than a header were supplied.
	ErrPacketTooShort = errors.New("packet shorter than header")

	// ErrPayloadTooLarge indicates a payload does not fit into a packet.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrLengthMismatch indicates the header length does not match the data.
	ErrLengthMismatch = errors.New("packet length mismatch")
)

// ErrorCode is the status a device reports in a response header.
type ErrorCode uint8

const (
	// ErrorCodeOK indicates success.
	ErrorCodeOK ErrorCode = 0

	// ErrorCodeInvalidParameter indicates a parameter was out of range.
	ErrorCodeInvalidParameter ErrorCode = 1

	// ErrorCodeFunctionNotSupported indicates the device lacks the function.
	ErrorCodeFunctionNotSupported ErrorCode = 2

	// ErrorCodeUnknown is any other device-side failure.
	ErrorCodeUnknown ErrorCode = 3
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeOK:
		return "OK"
	case ErrorCodeInvalidParameter:
		return "INVALID_PARAMETER"
	case ErrorCodeFunctionNotSupported:
		return "FUNCTION_NOT_SUPPORTED"
	case ErrorCodeUnknown:
		return "UNKNOWN_ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeviceError is returned when a device answers a request with a non-zero
// error code.
type DeviceError struct {
	UID        uint32
	FunctionID uint8
	Code       ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s function %d: %s", EncodeUID(e.UID), e.FunctionID, e.Code)
}

// Header is the fixed 8 byte packet header.
type Header struct {
	UID              uint32
	Length           uint8
	FunctionID       uint8
	Sequence         uint8
	ResponseExpected bool
	ErrorCode        ErrorCode
}

// IsCallback reports whether the packet was pushed by a device rather than
// sent in reply to a request.
func (h Header) IsCallback() bool {
	return h.Sequence == 0
}

// Encode writes the header into b, which must be at least HeaderSize long.
func (h Header) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.UID)
	b[4] = h.Length
	b[5] = h.FunctionID

	opts := (h.Sequence & 0x0F) << 4
	if h.ResponseExpected {
		opts |= 1 << 3
	}
	b[6] = opts
	b[7] = uint8(h.ErrorCode&0x03) << 6
}

// DecodeHeader parses the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrPacketTooShort
	}
	return Header{
		UID:              binary.LittleEndian.Uint32(b[0:4]),
		Length:           b[4],
		FunctionID:       b[5],
		Sequence:         (b[6] >> 4) & 0x0F,
		ResponseExpected: b[6]&(1<<3) != 0,
		ErrorCode:        ErrorCode((b[7] >> 6) & 0x03),
	}, nil
}

// Packet is a decoded header plus its payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewRequest builds a request packet. The header length is filled in by
// Encode.
func NewRequest(uid uint32, functionID, sequence uint8, responseExpected bool, payload []byte) Packet {
	return Packet{
		Header: Header{
			UID:              uid,
			FunctionID:       functionID,
			Sequence:         sequence,
			ResponseExpected: responseExpected,
		},
		Payload: payload,
	}
}

// Encode serializes the packet, setting the header length.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(p.Payload), MaxPayloadSize)
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	h := p.Header
	h.Length = uint8(len(buf))
	h.Encode(buf)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// DecodePacket parses a complete packet.
func DecodePacket(data []byte) (Packet, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Packet{}, err
	}
	if int(h.Length) != len(data) {
		return Packet{}, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, h.Length, len(data))
	}
	payload := make([]byte, len(data)-HeaderSize)
	copy(payload, data[HeaderSize:])
	return Packet{Header: h, Payload: payload}, nil
}

// Err converts the header error code into an error, nil on success.
func (p Packet) Err() error {
	if p.Header.ErrorCode == ErrorCodeOK {
		return nil
	}
	return &DeviceError{
		UID:        p.Header.UID,
		FunctionID: p.Header.FunctionID,
		Code:       p.Header.ErrorCode,
	}
}
