package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/registry"
	"github.com/cscode-eu/weatherstation/pkg/transport"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// DefaultRetryDelay is the fixed delay between failed attempts.
const DefaultRetryDelay = time.Second

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.New("supervisor already running")

// Bus is the connection side of the transport.
type Bus interface {
	// Connect dials the daemon. Failures are *transport.ConnectionError.
	Connect(ctx context.Context, host string, port int) error

	// Disconnect closes the link. transport.ErrNotConnected if it is
	// already closed.
	Disconnect() error

	// Enumerate broadcasts an enumerate request. transport.ErrNotConnected
	// while the link is down.
	Enumerate(ctx context.Context) error

	OnEnumerate(fn func(wire.Enumeration))
	OnConnected(fn func(transport.ConnectReason))
}

// Registry receives the enumerations of each epoch.
type Registry interface {
	BeginEpoch() registry.Epoch
	Epoch() registry.Epoch
	HandleEnumerate(e wire.Enumeration)
}

// Config configures a Supervisor.
type Config struct {
	Host string
	Port int

	// RetryDelay between failed connect or enumerate attempts
	// (default DefaultRetryDelay).
	RetryDelay time.Duration

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Stats counts supervisor activity.
type Stats struct {
	ConnectFailures   uint64
	EnumerateFailures uint64
	Enumerations      uint64
	Reconnects        uint64
}

// Supervisor runs the connect, enumerate and reconnect lifecycle.
type Supervisor struct {
	config   Config
	bus      Bus
	registry Registry

	mu    sync.RWMutex
	state State

	running     atomic.Bool
	reconnectCh chan struct{}

	onStateChange func(old, new State)

	connectFailures   atomic.Uint64
	enumerateFailures atomic.Uint64
	enumerations      atomic.Uint64
	reconnects        atomic.Uint64
}

// NewSupervisor creates a supervisor for bus feeding reg.
func NewSupervisor(config Config, bus Bus, reg Registry) *Supervisor {
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	return &Supervisor{
		config:      config,
		bus:         bus,
		registry:    reg,
		state:       StateDisconnected,
		reconnectCh: make(chan struct{}, 1),
	}
}

// OnStateChange sets a callback for state changes. Set it before Run.
func (s *Supervisor) OnStateChange(fn func(old, new State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Epoch returns the registry's current epoch.
func (s *Supervisor) Epoch() registry.Epoch {
	return s.registry.Epoch()
}

// Stats returns activity counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		ConnectFailures:   s.connectFailures.Load(),
		EnumerateFailures: s.enumerateFailures.Load(),
		Enumerations:      s.enumerations.Load(),
		Reconnects:        s.reconnects.Load(),
	}
}

// Run connects, enumerates and then services reconnect notifications until
// ctx is cancelled. It returns nil after an orderly shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.setState(StateConnecting, "start")
	if !s.connectLoop(ctx) {
		return s.shutdown()
	}

	s.bus.OnEnumerate(s.registry.HandleEnumerate)
	s.bus.OnConnected(s.handleConnected)

	s.setState(StateEnumerating, "connected")
	if !s.enumerate(ctx) {
		return s.shutdown()
	}
	s.setState(StateRunning, "enumerated")

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-s.reconnectCh:
			s.reconnects.Add(1)
			s.setState(StateReconnecting, transport.ConnectReasonAutoReconnect.String())
			if !s.enumerate(ctx) {
				return s.shutdown()
			}
			s.setState(StateRunning, "enumerated")
		}
	}
}

// handleConnected runs on a transport dispatch goroutine. It must not
// block.
func (s *Supervisor) handleConnected(reason transport.ConnectReason) {
	if reason != transport.ConnectReasonAutoReconnect {
		return
	}
	select {
	case s.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

// connectLoop retries Connect until it succeeds. It returns false if ctx
// ended first.
func (s *Supervisor) connectLoop(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		err := s.bus.Connect(ctx, s.config.Host, s.config.Port)
		if err == nil {
			s.infoLog("connected", "host", s.config.Host, "port", s.config.Port, "attempts", attempt)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.connectFailures.Add(1)
		s.warnLog("connect failed", "attempt", attempt, "retry_in", s.config.RetryDelay, "error", err)
		if !s.wait(ctx) {
			return false
		}
	}
}

// enumerate begins a new epoch and retries Enumerate until one request
// succeeds.
func (s *Supervisor) enumerate(ctx context.Context) bool {
	epoch := s.registry.BeginEpoch()
	for attempt := 1; ; attempt++ {
		err := s.bus.Enumerate(ctx)
		if err == nil {
			s.enumerations.Add(1)
			s.infoLog("enumeration requested", "epoch", epoch, "attempts", attempt)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.enumerateFailures.Add(1)
		s.warnLog("enumerate failed", "attempt", attempt, "retry_in", s.config.RetryDelay, "error", err)
		if !s.wait(ctx) {
			return false
		}
	}
}

// wait sleeps for the retry delay. It returns false if ctx ended first.
func (s *Supervisor) wait(ctx context.Context) bool {
	t := time.NewTimer(s.config.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Supervisor) shutdown() error {
	err := s.bus.Disconnect()
	switch {
	case err == nil:
		s.infoLog("disconnected")
	case errors.Is(err, transport.ErrNotConnected):
	default:
		s.warnLog("disconnect failed", "error", err)
	}
	s.setState(StateClosed, "shutdown")
	return nil
}

func (s *Supervisor) setState(next State, reason string) {
	s.mu.Lock()
	old := s.state
	s.state = next
	fn := s.onStateChange
	s.mu.Unlock()

	if old == next {
		return
	}
	s.debugLog("state change", "from", old, "to", next, "reason", reason)
	log.Emit(s.config.ProtocolLogger, log.Event{
		Direction: log.DirectionNone,
		Layer:     log.LayerApplication,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySupervisor,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	if fn != nil {
		fn(old, next)
	}
}

func (s *Supervisor) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *Supervisor) infoLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

func (s *Supervisor) warnLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}

var _ Bus = (*transport.Conn)(nil)
