package telemetry

import "errors"

var (
	// ErrConstruction wraps any failure while binding or configuring a
	// sensor. The module stays absent for the epoch.
	ErrConstruction = errors.New("telemetry construction failed")

	// ErrSecondaryRead wraps a failed temperature read inside a sample
	// callback.
	ErrSecondaryRead = errors.New("secondary read failed")

	// ErrUnsupportedKind is wrapped into ErrConstruction for kinds that
	// produce no telemetry.
	ErrUnsupportedKind = errors.New("kind produces no telemetry")
)
