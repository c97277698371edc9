// Command ws-log views and analyzes weather station capture files.
//
// Capture files are written by weatherstation with the -capture flag or the
// logging.capture_file setting.
//
// Usage:
//
//	ws-log <command> [flags] <file.wslog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSON lines or CSV
//	filter   Filter capture and write to new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View all events
//	ws-log view station.wslog
//
//	# View only telemetry samples
//	ws-log view -category telemetry station.wslog
//
//	# View traffic of one module
//	ws-log view -uid 62eUEf station.wslog
//
//	# Export to CSV
//	ws-log export -format csv -o station.csv station.wslog
//
//	# Keep one connection epoch
//	ws-log filter -session 3f2a9c1e-... -o epoch.wslog station.wslog
//
//	# Show statistics
//	ws-log stats station.wslog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cscode-eu/weatherstation/cmd/ws-log/commands"
)

const usage = `ws-log - Weather Station Capture Analyzer

Usage:
  ws-log <command> [flags] <file.wslog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSON lines or CSV
  filter   Filter capture and write to new file
  stats    Show statistics about the capture

Use "ws-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// capturePath returns the single positional argument or exits.
func capturePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ws-log view - View capture in human-readable format

Usage:
  ws-log view [flags] <file.wslog>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (transport, wire, application)")
	direction := fs.String("direction", "", "Filter by direction (in, out, none)")
	category := fs.String("category", "", "Filter by category (packet, probe, state, error, enumeration, telemetry)")
	uid := fs.String("uid", "", "Filter by module UID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := capturePath(fs)

	filter := commands.ViewFilter{UID: *uid}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ws-log export - Export capture to JSON lines or CSV

Usage:
  ws-log export [flags] <file.wslog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := capturePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ws-log filter - Filter capture and write to new file

Usage:
  ws-log filter [flags] <file.wslog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	session := fs.String("session", "", "Filter by session ID")
	uid := fs.String("uid", "", "Filter by module UID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, application)")
	direction := fs.String("direction", "", "Filter by direction (in, out, none)")
	category := fs.String("category", "", "Filter by category (packet, probe, state, error, enumeration, telemetry)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := capturePath(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		SessionID: *session,
		UID:       *uid,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ws-log stats - Show statistics about the capture

Usage:
  ws-log stats <file.wslog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := capturePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
