// Package log provides protocol capture for the weather station.
//
// This package defines the Logger interface and Event types for recording
// bus traffic and controller lifecycle events. It is separate from
// operational logging (slog): a capture is a complete machine-readable
// trace that can be replayed with ws-log after the fact.
//
// # Basic Usage
//
//	// Development: mirror events to the console
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: write a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/weatherstation/bus.wslog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(adapter, fileLogger)
//
// # Event Types
//
//   - Transport: raw packet bytes (FrameEvent)
//   - Wire: decoded packet headers (PacketEvent)
//   - Application: supervisor state changes (StateChangeEvent), module
//     enumeration (EnumerationEvent) and rendered telemetry (SampleEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR encoded events with integer keys,
// conventionally using the .wslog extension.
package log
