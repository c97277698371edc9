package mock

import "errors"

// Mock package errors.
var (
	// ErrNotConnected is returned while the mock bus is disconnected.
	ErrNotConnected = errors.New("mock bus not connected")

	// ErrNoResponse is returned for a request nobody scripted a response for.
	ErrNoResponse = errors.New("no scripted response")

	// ErrRefused is the default error for scripted connect failures.
	ErrRefused = errors.New("connection refused")
)
