// Command weatherstation drives a Tinkerforge weather station.
//
// It connects to a Brick Daemon, binds whatever ambient light, humidity,
// barometer and LCD 20x4 modules the daemon announces, and keeps the four
// LCD rows updated with illuminance, humidity, air pressure and
// temperature. Lost connections are re-established and the modules bound
// again.
//
// Usage:
//
//	weatherstation [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-host string        Brick Daemon host, or "auto" for mDNS (default "localhost")
//	-port int           Brick Daemon port (default 4223)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-capture string     Write protocol events to this capture file
//	-interactive        Start an interactive console
//
// Examples:
//
//	# Station next to the daemon
//	weatherstation
//
//	# Find the daemon on the local network and record the session
//	weatherstation -host auto -capture station.wslog
//
//	# Remote daemon with a config file and a console
//	weatherstation -config /etc/weatherstation.yaml -interactive
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cscode-eu/weatherstation/cmd/weatherstation/interactive"
	"github.com/cscode-eu/weatherstation/pkg/config"
	"github.com/cscode-eu/weatherstation/pkg/connection"
	"github.com/cscode-eu/weatherstation/pkg/discovery"
	"github.com/cscode-eu/weatherstation/pkg/display"
	stationlog "github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/registry"
	"github.com/cscode-eu/weatherstation/pkg/transport"
)

// Flags holds the command-line settings. Flags that were not given leave
// the configuration file and environment untouched.
type Flags struct {
	ConfigFile  string
	Host        string
	Port        int
	LogLevel    string
	Capture     string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Host, "host", "localhost", `Brick Daemon host, or "auto" for mDNS`)
	flag.IntVar(&flags.Port, "port", transport.DefaultPort, "Brick Daemon port")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.Capture, "capture", "", "Write protocol events to this capture file")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start an interactive console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags, setFlags(), os.LookupEnv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		out = console.Stdout()
		log.SetOutput(out)
	}

	logger, err := setupLogging(cfg, out)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	slog.SetDefault(logger)

	log.Println("Weather Station")
	log.Println("===============")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, port := cfg.Bus.Host, cfg.Bus.Port
	if cfg.Discover() {
		log.Printf("Looking for a Brick Daemon (%s)...", cfg.Bus.DiscoveryService)
		resolver := discovery.NewResolver(discovery.Config{
			Service: cfg.Bus.DiscoveryService,
			Timeout: cfg.Bus.DiscoveryTimeout,
			Logger:  logger.With("component", "discovery"),
		})
		ep, err := resolver.Lookup(ctx)
		if err != nil {
			log.Fatalf("Daemon discovery failed: %v", err)
		}
		host, port = ep.Address(), ep.Port
	}
	log.Printf("Brick Daemon: %s:%d", host, port)

	protocolLogger, closeCapture, err := setupCapture(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open capture file: %v", err)
	}
	defer closeCapture()

	tc := cfg.Transport()
	tc.Logger = logger.With("component", "transport")
	tc.ProtocolLogger = protocolLogger
	conn := transport.New(tc)

	router := display.NewRouter(display.Config{
		Logger:         logger.With("component", "display"),
		ProtocolLogger: protocolLogger,
	})

	policy, _ := cfg.DisconnectPolicy()
	reg := registry.New(registry.Config{
		Caller:           conn,
		Router:           router,
		Period:           cfg.Telemetry.Period,
		DisconnectPolicy: policy,
		DisableStatusLED: !cfg.Registry.MasterStatusLED,
		ButtonBacklight:  cfg.Registry.LCDButtonBacklight,
		Context:          ctx,
		Logger:           logger.With("component", "registry"),
		ProtocolLogger:   protocolLogger,
	})

	sup := connection.NewSupervisor(connection.Config{
		Host:           host,
		Port:           port,
		RetryDelay:     cfg.Bus.RetryDelay,
		Logger:         logger.With("component", "supervisor"),
		ProtocolLogger: protocolLogger,
	}, conn, reg)

	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx)
	}()

	if console != nil {
		console.Bind(sup, reg, conn)
		go console.Run(ctx, cancel)
	} else {
		log.Println("Press Enter to exit")
		go waitForEnter(os.Stdin, cancel)
	}

	// Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	stopped := false
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	case runErr = <-done:
		stopped = true
	}

	log.Println("Shutting down...")
	cancel()
	if !stopped {
		runErr = <-done
	}
	if runErr != nil {
		log.Printf("Error stopping station: %v", runErr)
	}

	log.Println("Goodbye!")
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// loadConfig layers defaults, the config file, the environment and the
// flags in set, then validates the result.
func loadConfig(f Flags, set map[string]bool, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Config{}, err
	}

	if set["host"] {
		cfg.Bus.Host = f.Host
	}
	if set["port"] {
		cfg.Bus.Port = f.Port
	}
	if set["log-level"] {
		cfg.Logging.Level = f.LogLevel
	}
	if set["capture"] {
		cfg.Logging.CaptureFile = f.Capture
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(cfg config.Config, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if level <= slog.LevelDebug {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Logging.Format {
	case config.FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

// setupCapture builds the protocol logger: the capture file if one is
// configured, plus an slog mirror at debug level. It returns a nil logger
// when neither applies.
func setupCapture(cfg config.Config, logger *slog.Logger) (stationlog.Logger, func(), error) {
	var loggers []stationlog.Logger
	closeFn := func() {}

	if cfg.Logging.CaptureFile != "" {
		fileLogger, err := stationlog.NewFileLogger(cfg.Logging.CaptureFile)
		if err != nil {
			return nil, closeFn, err
		}
		log.Printf("Capturing protocol events to %s", cfg.Logging.CaptureFile)
		loggers = append(loggers, fileLogger)
		closeFn = func() {
			if err := fileLogger.Close(); err != nil {
				log.Printf("Error closing capture file: %v", err)
			}
			if n := fileLogger.Dropped(); n > 0 {
				log.Printf("Capture dropped %d events", n)
			}
		}
	}

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, stationlog.NewSlogAdapter(logger.With("component", "protocol")))
	}

	switch len(loggers) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return stationlog.NewMultiLogger(loggers...), closeFn, nil
	}
}

// waitForEnter cancels once a line is read from r. End of input is not a
// request to stop: the station may run without a terminal.
func waitForEnter(r io.Reader, cancel context.CancelFunc) {
	if _, err := bufio.NewReader(r).ReadString('\n'); err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Exiting...")
	cancel()
}
