// Package wire defines the binary packet format spoken by the Brick Daemon.
//
// Every packet starts with an 8 byte little-endian header followed by a
// fixed-size payload whose layout depends on the function being called:
//
//	┌──────────┬────────┬─────────────┬──────────────┬───────────┐
//	│ UID (4B) │ Len 1B │ Function 1B │ Seq|Opts 1B  │ Flags 1B  │
//	└──────────┴────────┴─────────────┴──────────────┴───────────┘
//
// # Sequence Numbers
//
// Requests carry a sequence number in 1..15 in the upper nibble of byte 6.
// Bit 3 of that byte requests a response. Callbacks pushed by a device
// always carry sequence number 0.
//
// # Error Codes
//
// Responses report success or failure in the upper two bits of byte 7.
// Non-zero codes are surfaced as *DeviceError.
//
// # UIDs
//
// Devices are addressed by a 32 bit UID that is presented to users in a
// base58 encoding (see EncodeUID and DecodeUID).
package wire
