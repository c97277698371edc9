package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload indicates a payload ended before all fields were read.
var ErrShortPayload = errors.New("payload too short")

// Encoder builds a little-endian payload field by field.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with room for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// PutUint8 appends an unsigned byte.
func (e *Encoder) PutUint8(v uint8) {
	e.buf = append(e.buf, v)
}

// PutBool appends a boolean as a single byte.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// PutChar appends a single character byte.
func (e *Encoder) PutChar(c byte) {
	e.buf = append(e.buf, c)
}

// PutUint16 appends a little-endian uint16.
func (e *Encoder) PutUint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

// PutInt16 appends a little-endian int16.
func (e *Encoder) PutInt16(v int16) {
	e.PutUint16(uint16(v))
}

// PutUint32 appends a little-endian uint32.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutInt32 appends a little-endian int32.
func (e *Encoder) PutInt32(v int32) {
	e.PutUint32(uint32(v))
}

// PutString appends s as a fixed-size field of n bytes, truncating or
// padding with NUL bytes as needed.
func (e *Encoder) PutString(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	e.buf = append(e.buf, field...)
}

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Decoder reads little-endian fields from a payload. The first short read
// is remembered and every later read returns a zero value, so callers can
// check Err once after reading all fields.
type Decoder struct {
	data []byte
	off  int
	err  error
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.data) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortPayload, n, d.off, len(d.data))
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

// Uint8 reads an unsigned byte.
func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a single byte boolean.
func (d *Decoder) Bool() bool {
	return d.Uint8() != 0
}

// Char reads a single character byte.
func (d *Decoder) Char() byte {
	return d.Uint8()
}

// Uint16 reads a little-endian uint16.
func (d *Decoder) Uint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Int16 reads a little-endian int16.
func (d *Decoder) Int16() int16 {
	return int16(d.Uint16())
}

// Uint32 reads a little-endian uint32.
func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads a little-endian int32.
func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

// String reads a fixed-size NUL padded string field of n bytes.
func (d *Decoder) String(n int) string {
	b := d.take(n)
	if b == nil {
		return ""
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Err returns the first decoding error, if any.
func (d *Decoder) Err() error {
	return d.err
}
