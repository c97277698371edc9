package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/display"
	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// DefaultPeriod is the push period configured on every sensor.
const DefaultPeriod = time.Second

// Display is the part of the display router the handlers use.
type Display interface {
	Attached() bool
	WriteLine(ctx context.Context, row display.Row, col uint8, text string) error
}

// Env carries what a handler needs from its surroundings.
type Env struct {
	// Caller is the bus the module is bound to.
	Caller device.Caller

	// Display receives the rendered rows.
	Display Display

	// Epoch is the connection epoch the handler is created in.
	Epoch uint64

	// CurrentEpoch reports the registry's current epoch. A handler whose
	// Epoch differs ignores its samples. Nil disables the check.
	CurrentEpoch func() uint64

	// Live reports whether a handler of kind is live in the current epoch.
	// Used for the humidity generation tie-break.
	Live func(kind device.Kind) bool

	// Period is the push period; zero means DefaultPeriod.
	Period time.Duration

	// Context bounds the I/O of sample callbacks. Defaults to
	// context.Background().
	Context context.Context

	// SessionID tags captured sample events.
	SessionID string

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// releaser is implemented by every typed device.
type releaser interface {
	Release()
	String() string
}

// Handler is a live binding of one sensor module to its display rows.
type Handler struct {
	kind     device.Kind
	identity wire.Enumeration
	uid      uint32
	epoch    uint64
	dev      releaser
	env      Env
	ctx      context.Context
}

// New binds the sensor described by identity, applies its fixed
// configuration and registers its sample callback. Errors wrap
// ErrConstruction and leave no callback registered.
func New(ctx context.Context, kind device.Kind, identity wire.Enumeration, env Env) (*Handler, error) {
	if !kind.IsSensor() {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, kind, ErrUnsupportedKind)
	}
	uid, err := identity.NumericUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, kind, err)
	}
	if env.Period <= 0 {
		env.Period = DefaultPeriod
	}
	h := &Handler{
		kind:     kind,
		identity: identity,
		uid:      uid,
		epoch:    env.Epoch,
		env:      env,
		ctx:      env.Context,
	}
	if h.ctx == nil {
		h.ctx = context.Background()
	}

	bind := binders[kind]
	dev, err := bind(ctx, h)
	if err != nil {
		if dev != nil {
			dev.Release()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConstruction, kind, identity.UID, err)
	}
	h.dev = dev
	h.infoLog("sensor configured", "period", env.Period)
	return h, nil
}

// Kind returns the sensor kind.
func (h *Handler) Kind() device.Kind {
	return h.kind
}

// Identity returns the enumeration the handler was created from.
func (h *Handler) Identity() wire.Enumeration {
	return h.identity
}

// UID returns the numeric module UID.
func (h *Handler) UID() uint32 {
	return h.uid
}

// Epoch returns the epoch the handler belongs to.
func (h *Handler) Epoch() uint64 {
	return h.epoch
}

// Stale reports whether the handler belongs to an earlier epoch.
func (h *Handler) Stale() bool {
	return h.env.CurrentEpoch != nil && h.env.CurrentEpoch() != h.epoch
}

// Release deregisters the sample callback.
func (h *Handler) Release() {
	h.dev.Release()
}

// String describes the handler for logs and the console.
func (h *Handler) String() string {
	return h.dev.String()
}

// ready applies the first two steps of the sample policy.
func (h *Handler) ready() bool {
	if h.env.Display == nil || !h.env.Display.Attached() {
		return false
	}
	return !h.Stale()
}

// publish writes one row. Display failures are logged and swallowed.
func (h *Handler) publish(row display.Row, raw int64, value float64, text string) {
	if err := h.env.Display.WriteLine(h.ctx, row, 0, text); err != nil {
		h.debugLog("display write failed", "row", row, "error", err)
		return
	}
	h.debugLog("sample", "row", row, "raw", raw, "value", value)
	log.Emit(h.env.ProtocolLogger, log.Event{
		SessionID: h.env.SessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerApplication,
		Category:  log.CategoryTelemetry,
		UID:       h.identity.UID,
		Sample: &log.SampleEvent{
			Kind:  h.kind.String(),
			Row:   uint8(row),
			Raw:   raw,
			Value: value,
			Text:  text,
		},
	})
}

// secondaryFailed logs a failed temperature read.
func (h *Handler) secondaryFailed(err error) {
	err = fmt.Errorf("%w: %w", ErrSecondaryRead, err)
	h.errorLog("temperature read failed", "error", err)

	var code *int
	var devErr *wire.DeviceError
	if errors.As(err, &devErr) {
		c := int(devErr.Code)
		code = &c
	}
	log.Emit(h.env.ProtocolLogger, log.Event{
		SessionID: h.env.SessionID,
		Direction: log.DirectionNone,
		Layer:     log.LayerApplication,
		Category:  log.CategoryError,
		UID:       h.identity.UID,
		Error: &log.ErrorEventData{
			Layer:   log.LayerApplication,
			Message: err.Error(),
			Code:    code,
			Context: "secondary read",
		},
	})
}

func (h *Handler) logArgs(args []any) []any {
	return append([]any{"kind", h.kind, "uid", h.identity.UID, "epoch", h.epoch}, args...)
}

func (h *Handler) debugLog(msg string, args ...any) {
	if h.env.Logger != nil {
		h.env.Logger.Debug(msg, h.logArgs(args)...)
	}
}

func (h *Handler) infoLog(msg string, args ...any) {
	if h.env.Logger != nil {
		h.env.Logger.Info(msg, h.logArgs(args)...)
	}
}

func (h *Handler) errorLog(msg string, args ...any) {
	if h.env.Logger != nil {
		h.env.Logger.Error(msg, h.logArgs(args)...)
	}
}
