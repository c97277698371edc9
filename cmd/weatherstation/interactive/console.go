// Package interactive provides the interactive command-line interface
// for the weather station.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/cscode-eu/weatherstation/pkg/connection"
	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/registry"
)

// Supervisor is the part of the connection supervisor the console reports
// on.
type Supervisor interface {
	State() connection.State
	Epoch() registry.Epoch
	Stats() connection.Stats
}

// Registry is the part of the module registry the console reports on.
type Registry interface {
	SessionID() string
	Modules() []registry.Module
	Display() *device.LCD20x4
}

// Link describes the daemon connection.
type Link interface {
	RemoteAddr() string
	DroppedCallbacks() uint64
}

// Console handles interactive mode for weatherstation.
type Console struct {
	supervisor Supervisor
	registry   Registry
	link       Link

	rl  *readline.Instance
	out io.Writer

	// timeout bounds module I/O started from the console.
	timeout time.Duration
}

// New creates a console reading from the terminal. Call Bind before Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "station> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(nil, nil, nil, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(sup Supervisor, reg Registry, link Link, out io.Writer) *Console {
	return &Console{
		supervisor: sup,
		registry:   reg,
		link:       link,
		out:        out,
		timeout:    5 * time.Second,
	}
}

// Bind connects the console to the running station.
func (c *Console) Bind(sup Supervisor, reg Registry, link Link) {
	c.supervisor = sup
	c.registry = reg
	c.link = link
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop. It calls cancel when the user
// quits or closes input.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console should
// exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "modules", "m":
		c.cmdModules()

	case "backlight", "bl":
		c.cmdBacklight(ctx)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Weather Station Commands:
  status     - Show connection state and counters
  modules    - List modules bound in the current epoch
  backlight  - Toggle the LCD backlight

  help       - Show this help
  quit       - Exit`)
}

func (c *Console) cmdStatus() {
	stats := c.supervisor.Stats()

	fmt.Fprintf(c.out, "State:       %s\n", c.supervisor.State())
	fmt.Fprintf(c.out, "Epoch:       %d\n", c.supervisor.Epoch())
	if id := c.registry.SessionID(); id != "" {
		fmt.Fprintf(c.out, "Session:     %s\n", id)
	}
	if c.link != nil {
		addr := c.link.RemoteAddr()
		if addr == "" {
			addr = "-"
		}
		fmt.Fprintf(c.out, "Daemon:      %s\n", addr)
		fmt.Fprintf(c.out, "Dropped:     %d callbacks\n", c.link.DroppedCallbacks())
	}
	fmt.Fprintf(c.out, "Connect failures:   %d\n", stats.ConnectFailures)
	fmt.Fprintf(c.out, "Enumerate failures: %d\n", stats.EnumerateFailures)
	fmt.Fprintf(c.out, "Enumerations:       %d\n", stats.Enumerations)
	fmt.Fprintf(c.out, "Reconnects:         %d\n", stats.Reconnects)
}

func (c *Console) cmdModules() {
	modules := c.registry.Modules()
	if len(modules) == 0 {
		fmt.Fprintln(c.out, "No modules bound")
		return
	}

	fmt.Fprintf(c.out, "\nModules (%d):\n", len(modules))
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, m := range modules {
		fmt.Fprintf(c.out, "  %-18s uid=%-8s at %s/%c  fw %s\n",
			m.Kind, m.Identity.UID, m.Identity.ConnectedUID, position(m.Identity.Position), m.Identity.FirmwareVersion)
	}
}

func (c *Console) cmdBacklight(ctx context.Context) {
	lcd := c.registry.Display()
	if lcd == nil {
		fmt.Fprintln(c.out, "No display bound")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	on, err := lcd.ToggleBacklight(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Backlight toggle failed: %v\n", err)
		return
	}
	if on {
		fmt.Fprintln(c.out, "Backlight on")
	} else {
		fmt.Fprintln(c.out, "Backlight off")
	}
}

func position(p byte) byte {
	if p == 0 {
		return '-'
	}
	return p
}
