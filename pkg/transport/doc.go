// Package transport implements the Brick Daemon TCP connection used to talk
// to the weather station modules.
//
// The transport handles:
//   - Packet framing (the header carries its own length)
//   - Request/response correlation by sequence number
//   - Callback dispatch on a sharded worker pool
//   - Disconnect probes for liveness
//   - Automatic reconnect after an unrequested loss
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Function payloads (LE)       │
//	├────────────────────────────────┤
//	│   8 byte packet header         │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Dispatch
//
// The read loop never runs user code. Responses go straight to the waiting
// caller; callbacks are queued to one of a fixed number of workers chosen
// by module UID, so callbacks of one module run in order while different
// modules run concurrently. A callback may issue synchronous requests: the
// response is delivered by the read loop, not by the worker.
//
// # Liveness
//
// A disconnect probe is sent every 5 seconds. A failed send marks the
// connection as lost. The daemon itself closes idle connections, which the
// read loop reports as a shutdown.
package transport
