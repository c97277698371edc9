package commands

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, e)
	}
}

func TestFilterBySession(t *testing.T) {
	path := createTestLogFile(t, stationEvents())
	output := filepath.Join(t.TempDir(), "epoch.wslog")

	n, err := RunFilter(path, FilterOptions{Output: output, SessionID: sessionB})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	events := readAll(t, output)
	if len(events) != 1 || events[0].Enumeration == nil || events[0].Enumeration.Type != "CONNECTED" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestFilterByUIDAndCategory(t *testing.T) {
	path := createTestLogFile(t, stationEvents())
	output := filepath.Join(t.TempDir(), "samples.wslog")

	n, err := RunFilter(path, FilterOptions{Output: output, UID: "bAr", Category: "telemetry"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}

	events := readAll(t, output)
	if events[0].Sample == nil || events[0].Sample.Value != 1013.25 {
		t.Errorf("expected the barometer sample, got %+v", events[0])
	}
}

func TestFilterByTimeRange(t *testing.T) {
	path := createTestLogFile(t, stationEvents())
	output := filepath.Join(t.TempDir(), "range.wslog")

	n, err := RunFilter(path, FilterOptions{
		Output:    output,
		TimeStart: "2026-03-14T09:30:01Z",
		TimeEnd:   "2026-03-14T09:30:02Z",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	// callback, sample and error fall inside the second after the start
	if n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}
}

func TestFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, stationEvents())
	output := filepath.Join(t.TempDir(), "out.wslog")

	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"no output", FilterOptions{}},
		{"bad start", FilterOptions{Output: output, TimeStart: "yesterday"}},
		{"bad end", FilterOptions{Output: output, TimeEnd: "tomorrow"}},
		{"bad layer", FilterOptions{Output: output, Layer: "session"}},
		{"bad direction", FilterOptions{Output: output, Direction: "up"}},
		{"bad category", FilterOptions{Output: output, Category: "control"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunFilter(path, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}
