package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	captureEncMode cbor.EncMode
	captureDecMode cbor.DecMode
)

func init() {
	var err error

	captureEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture cbor encoder mode: %v", err))
	}

	captureDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture cbor decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEncMode.Marshal(event)
}

// DecodeEvent decodes a single CBOR encoded Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := captureDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder creates a streaming event encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEncMode.NewEncoder(w)
}

// NewDecoder creates a streaming event decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDecMode.NewDecoder(r)
}
