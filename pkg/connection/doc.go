// Package connection supervises the bus connection lifecycle.
//
// The Supervisor owns a single control goroutine (the caller of Run) and
// drives it through these states:
//
//	Disconnected -> Connecting -> Enumerating -> Running
//	                                 ^              |
//	                                 +- Reconnecting+
//
// # Retry
//
// Failed connect and enumerate attempts are retried after a fixed delay
// (1 second by default) for as long as the context lives. The bus is local,
// so there is no backoff and no attempt limit.
//
// # Reconnect
//
// The transport re-establishes a lost link by itself and reports it with a
// connected callback whose reason is auto-reconnect. The callback only
// signals the control goroutine, which starts a new registry epoch and
// enumerates again.
//
// # Shutdown
//
// Cancelling the context makes Run disconnect the bus. Disconnecting an
// already disconnected bus is not an error.
package connection
