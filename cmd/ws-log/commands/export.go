package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

// RunExport exports the capture file to the specified format. An empty
// output writes to stdout.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

// csvHeader lists the exported columns. Sample columns stay empty for
// other events.
var csvHeader = []string{"timestamp", "session_id", "direction", "layer", "category", "uid", "type", "function_id", "kind", "value", "text"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var fid, kind, value, text string
		switch {
		case event.Packet != nil:
			fid = strconv.Itoa(int(event.Packet.FunctionID))
		case event.Enumeration != nil:
			kind = event.Enumeration.Kind
		case event.Sample != nil:
			kind = event.Sample.Kind
			value = strconv.FormatFloat(event.Sample.Value, 'f', 2, 64)
			text = event.Sample.Text
		case event.Error != nil:
			text = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.UID,
			eventLabel(event),
			fid,
			kind,
			value,
			text,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}
