package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

var fixtureStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const (
	sessionA = "3f2a9c1e-0000-4000-8000-000000000001"
	sessionB = "7d41b0aa-0000-4000-8000-000000000002"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wslog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// stationEvents is a short capture: a connect, one barometer enumerated
// and sampled, an error, and a second epoch after a reconnect.
func stationEvents() []log.Event {
	code := 1
	return []log.Event{
		{
			Timestamp: fixtureStart,
			Direction: log.DirectionNone,
			Layer:     log.LayerApplication,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySupervisor,
				OldState: "DISCONNECTED",
				NewState: "CONNECTING",
				Reason:   "start",
			},
		},
		{
			Timestamp: fixtureStart.Add(10 * time.Millisecond),
			SessionID: sessionA,
			Direction: log.DirectionOut,
			Layer:     log.LayerWire,
			Category:  log.CategoryPacket,
			Packet:    &log.PacketEvent{FunctionID: 254, Sequence: 1, PayloadSize: 0},
		},
		{
			Timestamp: fixtureStart.Add(20 * time.Millisecond),
			SessionID: sessionA,
			Direction: log.DirectionIn,
			Layer:     log.LayerApplication,
			Category:  log.CategoryEnumeration,
			UID:       "bAr",
			Enumeration: &log.EnumerationEvent{
				ConnectedUID:     "6qCLmv",
				Position:         "c",
				DeviceIdentifier: 221,
				Kind:             "Barometer",
				Type:             "AVAILABLE",
				Hardware:         "1.0.0",
				Firmware:         "2.0.3",
			},
		},
		{
			Timestamp: fixtureStart.Add(time.Second),
			SessionID: sessionA,
			Direction: log.DirectionIn,
			Layer:     log.LayerWire,
			Category:  log.CategoryPacket,
			UID:       "bAr",
			Packet:    &log.PacketEvent{FunctionID: 15, Sequence: 0, PayloadSize: 4},
		},
		{
			Timestamp: fixtureStart.Add(time.Second + 5*time.Millisecond),
			SessionID: sessionA,
			Direction: log.DirectionNone,
			Layer:     log.LayerApplication,
			Category:  log.CategoryTelemetry,
			UID:       "bAr",
			Sample: &log.SampleEvent{
				Kind:  "Barometer",
				Row:   2,
				Raw:   1013250,
				Value: 1013.25,
				Text:  "Pressure  1013.25 mb",
			},
		},
		{
			Timestamp: fixtureStart.Add(time.Second + 8*time.Millisecond),
			SessionID: sessionA,
			Direction: log.DirectionNone,
			Layer:     log.LayerApplication,
			Category:  log.CategoryError,
			UID:       "bAr",
			Error: &log.ErrorEventData{
				Layer:   log.LayerApplication,
				Message: "chip temperature read failed",
				Code:    &code,
				Context: "Barometer",
			},
		},
		{
			Timestamp: fixtureStart.Add(5 * time.Second),
			SessionID: sessionB,
			Direction: log.DirectionIn,
			Layer:     log.LayerApplication,
			Category:  log.CategoryEnumeration,
			UID:       "bAr",
			Enumeration: &log.EnumerationEvent{
				DeviceIdentifier: 221,
				Kind:             "Barometer",
				Type:             "CONNECTED",
			},
		},
	}
}
