package transport

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrTimeout          = errors.New("request timed out")
	ErrConnectionLost   = errors.New("connection lost")
	ErrSequenceBusy     = errors.New("no free sequence number")
)

// ConnectionError is returned when the daemon endpoint cannot be reached.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
