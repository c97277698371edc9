package connection

// State is the supervisor state.
type State uint8

const (
	// StateDisconnected is the initial state.
	StateDisconnected State = iota

	// StateConnecting indicates connect attempts are in progress.
	StateConnecting

	// StateEnumerating indicates the bus is connected and enumerate
	// requests are being issued.
	StateEnumerating

	// StateRunning indicates enumeration was requested; modules report in
	// asynchronously.
	StateRunning

	// StateReconnecting indicates the transport re-established the link
	// and a fresh enumeration is pending.
	StateReconnecting

	// StateClosed indicates Run has returned.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateEnumerating:
		return "ENUMERATING"
	case StateRunning:
		return "RUNNING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
