// Package commands implements the ws-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	UID       string
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Layer != nil && e.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.UID != "" && e.UID != f.UID {
		return false
	}
	return true
}

// eventLabel names the payload an event carries.
func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Packet != nil:
		if event.Packet.IsCallback() {
			return "Callback"
		}
		if event.Direction == log.DirectionOut {
			return "Request"
		}
		return "Response"
	case event.StateChange != nil:
		return "State"
	case event.Enumeration != nil:
		return "Enumerate"
	case event.Sample != nil:
		return "Sample"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] DIRECTION LAYER Type [uid]
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	session := shortenID(event.SessionID)
	if session == "" {
		session = "-"
	}

	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s", ts, session, event.Direction.String(), event.Layer.String(), eventLabel(event))
	if event.UID != "" {
		fmt.Fprintf(w, " uid=%s", event.UID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Enumeration != nil:
		formatEnumerationDetails(w, event.Enumeration)
	case event.Sample != nil:
		formatSampleDetails(w, event.Sample)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenID returns the first 8 characters of a session or connection id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(frame.Data))
	}
}

func formatPacketDetails(w io.Writer, pkt *log.PacketEvent) {
	fmt.Fprintf(w, "  Function: %d  Seq: %d  Payload: %d bytes\n", pkt.FunctionID, pkt.Sequence, pkt.PayloadSize)
	if pkt.ResponseExpected {
		fmt.Fprintln(w, "  Response expected")
	}
	if pkt.ErrorCode != 0 {
		fmt.Fprintf(w, "  Error code: %d\n", pkt.ErrorCode)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatEnumerationDetails(w io.Writer, e *log.EnumerationEvent) {
	kind := e.Kind
	if kind == "" {
		kind = "unknown"
	}
	fmt.Fprintf(w, "  %s: %s (identifier %d)\n", e.Type, kind, e.DeviceIdentifier)
	if e.ConnectedUID != "" || e.Position != "" {
		fmt.Fprintf(w, "  Attached to %s at %s\n", e.ConnectedUID, e.Position)
	}
	if e.Hardware != "" || e.Firmware != "" {
		fmt.Fprintf(w, "  Hardware %s  Firmware %s\n", e.Hardware, e.Firmware)
	}
}

func formatSampleDetails(w io.Writer, s *log.SampleEvent) {
	fmt.Fprintf(w, "  %s row %d: raw %d -> %g\n", s.Kind, s.Row, s.Raw, s.Value)
	if s.Text != "" {
		fmt.Fprintf(w, "  |%s|\n", s.Text)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "application", "app":
		return log.LayerApplication, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or application)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none", "-":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out or none)", s)
	}
}

// categoryNames maps flag values to categories.
var categoryNames = map[string]log.Category{
	"packet":      log.CategoryPacket,
	"probe":       log.CategoryProbe,
	"state":       log.CategoryState,
	"error":       log.CategoryError,
	"enumeration": log.CategoryEnumeration,
	"telemetry":   log.CategoryTelemetry,
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	c, ok := categoryNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be packet, probe, state, error, enumeration, or telemetry)", s)
	}
	return c, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if !filter.matches(event) {
			continue
		}
		formatEvent(output, event)
	}

	return nil
}
