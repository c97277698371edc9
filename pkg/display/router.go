package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

// ErrNoSink is returned by Router.WriteLine while no display is attached.
var ErrNoSink = errors.New("no display attached")

// ErrInvalidRow is returned for a row outside the display.
var ErrInvalidRow = errors.New("invalid display row")

// Sink is a line-addressed text display.
type Sink interface {
	WriteLine(ctx context.Context, row, col uint8, text string) error
	ClearDisplay(ctx context.Context) error
	BacklightOn(ctx context.Context) error
}

// binding wraps the sink so it can live in an atomic.Pointer.
type binding struct {
	sink Sink
	name string
}

// Config configures a Router.
type Config struct {
	// Logger for attach/detach lifecycle (optional).
	Logger *slog.Logger

	// ProtocolLogger receives display state changes (optional).
	ProtocolLogger log.Logger
}

// Router forwards rows to the attached Sink.
type Router struct {
	current atomic.Pointer[binding]

	logger         *slog.Logger
	protocolLogger log.Logger
}

// NewRouter creates a router with no sink attached.
func NewRouter(cfg Config) *Router {
	return &Router{
		logger:         cfg.Logger,
		protocolLogger: cfg.ProtocolLogger,
	}
}

// Attach publishes sink. Any previously attached sink is replaced.
func (r *Router) Attach(sink Sink) {
	if sink == nil {
		r.Detach()
		return
	}
	b := &binding{sink: sink, name: sinkName(sink)}
	old := r.current.Swap(b)
	r.infoLog("display attached", "sink", b.name)
	r.emitState(old, b, "attach")
}

// Detach removes the current sink, if any.
func (r *Router) Detach() {
	old := r.current.Swap(nil)
	if old != nil {
		r.infoLog("display detached", "sink", old.name)
		r.emitState(old, nil, "detach")
	}
}

// DetachSink removes sink only if it is still the attached one. It reports
// whether it did.
func (r *Router) DetachSink(sink Sink) bool {
	for {
		cur := r.current.Load()
		if cur == nil || cur.sink != sink {
			return false
		}
		if r.current.CompareAndSwap(cur, nil) {
			r.infoLog("display detached", "sink", cur.name)
			r.emitState(cur, nil, "invalidate")
			return true
		}
	}
}

// Sink returns the attached sink or nil.
func (r *Router) Sink() Sink {
	if b := r.current.Load(); b != nil {
		return b.sink
	}
	return nil
}

// Attached reports whether a sink is attached.
func (r *Router) Attached() bool {
	return r.current.Load() != nil
}

// WriteLine writes text, fitted to the display width, at row and col.
func (r *Router) WriteLine(ctx context.Context, row Row, col uint8, text string) error {
	if row >= Rows {
		return fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	b := r.current.Load()
	if b == nil {
		return ErrNoSink
	}
	return b.sink.WriteLine(ctx, uint8(row), col, Fit(text))
}

func (r *Router) emitState(old, cur *binding, reason string) {
	oldState, newState := "detached", "detached"
	if old != nil {
		oldState = old.name
	}
	if cur != nil {
		newState = cur.name
	}
	log.Emit(r.protocolLogger, log.Event{
		Direction: log.DirectionNone,
		Layer:     log.LayerApplication,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDisplay,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func sinkName(sink Sink) string {
	if s, ok := sink.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", sink)
}

func (r *Router) infoLog(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}
