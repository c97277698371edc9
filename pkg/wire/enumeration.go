package wire

import "fmt"

// EnumerationPayloadSize is the size of an enumerate callback payload.
const EnumerationPayloadSize = 26

// EnumerationType tells why a device reported itself.
type EnumerationType uint8

const (
	// EnumerationAvailable is the answer to an explicit enumerate request.
	EnumerationAvailable EnumerationType = 0

	// EnumerationConnected is sent when a device was newly attached or the
	// daemon restarted.
	EnumerationConnected EnumerationType = 1

	// EnumerationDisconnected is sent when a device was removed.
	EnumerationDisconnected EnumerationType = 2
)

// String returns the enumeration type name.
func (t EnumerationType) String() string {
	switch t {
	case EnumerationAvailable:
		return "AVAILABLE"
	case EnumerationConnected:
		return "CONNECTED"
	case EnumerationDisconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("EnumerationType(%d)", uint8(t))
	}
}

// Version is a major.minor.revision triple.
type Version [3]uint8

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// Enumeration is the identity a device reports during enumeration.
// It is a value type; a reconnect produces fresh values.
type Enumeration struct {
	UID              string
	ConnectedUID     string
	Position         byte
	HardwareVersion  Version
	FirmwareVersion  Version
	DeviceIdentifier uint16
	EnumerationType  EnumerationType
}

// NumericUID decodes the base58 UID.
func (e Enumeration) NumericUID() (uint32, error) {
	return DecodeUID(e.UID)
}

// DecodeEnumeration parses an enumerate callback payload.
func DecodeEnumeration(payload []byte) (Enumeration, error) {
	d := NewDecoder(payload)

	var e Enumeration
	e.UID = d.String(8)
	e.ConnectedUID = d.String(8)
	e.Position = d.Char()
	for i := range e.HardwareVersion {
		e.HardwareVersion[i] = d.Uint8()
	}
	for i := range e.FirmwareVersion {
		e.FirmwareVersion[i] = d.Uint8()
	}
	e.DeviceIdentifier = d.Uint16()
	e.EnumerationType = EnumerationType(d.Uint8())

	if err := d.Err(); err != nil {
		return Enumeration{}, fmt.Errorf("decode enumeration: %w", err)
	}
	return e, nil
}

// Encode serializes the enumeration into a callback payload.
func (e Enumeration) Encode() []byte {
	enc := NewEncoder(EnumerationPayloadSize)
	enc.PutString(e.UID, 8)
	enc.PutString(e.ConnectedUID, 8)
	enc.PutChar(e.Position)
	for _, b := range e.HardwareVersion {
		enc.PutUint8(b)
	}
	for _, b := range e.FirmwareVersion {
		enc.PutUint8(b)
	}
	enc.PutUint16(e.DeviceIdentifier)
	enc.PutUint8(uint8(e.EnumerationType))
	return enc.Bytes()
}
