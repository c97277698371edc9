package device

import (
	"context"
	"fmt"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Caller is the request side of the bus connection.
type Caller interface {
	// Call sends a request and, if expectResponse is set, waits for the
	// response payload.
	Call(ctx context.Context, uid uint32, fid uint8, payload []byte, expectResponse bool) ([]byte, error)

	// RegisterCallback installs fn for callbacks fid pushed by uid.
	RegisterCallback(uid uint32, fid uint8, fn func([]byte))

	// DeregisterCallbacks removes every callback registered for uid.
	DeregisterCallbacks(uid uint32)
}

// Threshold options for callback configurations.
const (
	ThresholdOff     byte = 'x'
	ThresholdOutside byte = 'o'
	ThresholdInside  byte = 'i'
	ThresholdSmaller byte = '<'
	ThresholdGreater byte = '>'
)

// Device is the part every typed module shares.
type Device struct {
	caller Caller
	uid    uint32
	kind   Kind
}

func newDevice(caller Caller, uid uint32, kind Kind) Device {
	return Device{caller: caller, uid: uid, kind: kind}
}

// UID returns the numeric module UID.
func (d *Device) UID() uint32 {
	return d.uid
}

// Kind returns the module kind.
func (d *Device) Kind() Kind {
	return d.kind
}

// String returns "<kind> <base58 uid>".
func (d *Device) String() string {
	return fmt.Sprintf("%s %s", d.kind, wire.EncodeUID(d.uid))
}

// Release removes every callback the module registered.
func (d *Device) Release() {
	d.caller.DeregisterCallbacks(d.uid)
}

// call sends a request that always expects a response, so that setters
// surface module errors too.
func (d *Device) call(ctx context.Context, fid uint8, payload []byte) ([]byte, error) {
	resp, err := d.caller.Call(ctx, d.uid, fid, payload, true)
	if err != nil {
		return nil, fmt.Errorf("%s function %d: %w", d, fid, err)
	}
	return resp, nil
}

func (d *Device) on(fid uint8, fn func(*wire.Decoder)) {
	d.caller.RegisterCallback(d.uid, fid, func(payload []byte) {
		fn(wire.NewDecoder(payload))
	})
}

func periodMillis(period time.Duration) uint32 {
	if period <= 0 {
		return 0
	}
	return uint32(period / time.Millisecond)
}

func decodeErr(d *Device, what string, dec *wire.Decoder) error {
	if err := dec.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", d, what, err)
	}
	return nil
}
