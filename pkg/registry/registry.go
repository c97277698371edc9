package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/display"
	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/telemetry"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Epoch numbers connection lifetimes. Zero means no epoch has begun.
type Epoch uint64

// Config configures a Registry.
type Config struct {
	// Caller is the bus modules are bound to.
	Caller device.Caller

	// Router receives the display module once it is initialized.
	Router *display.Router

	// Period is the telemetry push period (default telemetry.DefaultPeriod).
	Period time.Duration

	// DisconnectPolicy handles disconnected enumerations.
	DisconnectPolicy DisconnectPolicy

	// DisableStatusLED turns the master brick's status LED off when the
	// brick is enumerated.
	DisableStatusLED bool

	// ButtonBacklight makes LCD button 0 toggle the backlight.
	ButtonBacklight bool

	// Context bounds module I/O. Defaults to context.Background().
	Context context.Context

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// slot is one kind's binding within an epoch.
type slot struct {
	epoch    Epoch
	identity wire.Enumeration

	// Exactly one of these is set.
	handler *telemetry.Handler
	lcd     *device.LCD20x4
	master  *device.Master
}

func (s *slot) release() {
	switch {
	case s.handler != nil:
		s.handler.Release()
	case s.lcd != nil:
		s.lcd.Release()
	case s.master != nil:
		s.master.Release()
	}
}

// Module describes a live slot.
type Module struct {
	Kind     device.Kind
	Identity wire.Enumeration
	Epoch    Epoch
}

// Registry dispatches enumerations to per-kind constructors.
type Registry struct {
	config Config
	ctx    context.Context

	epoch     atomic.Uint64
	sessionID atomic.Pointer[string]

	// handleMu serializes enumeration handling so replacing a slot never
	// races with constructing its successor.
	handleMu sync.Mutex

	mu    sync.RWMutex
	slots map[device.Kind]*slot
}

// New creates a registry. No epoch has begun until BeginEpoch is called.
func New(config Config) *Registry {
	r := &Registry{
		config: config,
		ctx:    config.Context,
		slots:  make(map[device.Kind]*slot),
	}
	if r.ctx == nil {
		r.ctx = context.Background()
	}
	empty := ""
	r.sessionID.Store(&empty)
	return r
}

// BeginEpoch starts a new connection epoch. Every existing slot becomes
// stale and the display is detached until the display module enumerates
// again.
func (r *Registry) BeginEpoch() Epoch {
	r.mu.Lock()
	next := Epoch(r.epoch.Add(1))
	id := log.NewSessionID()
	r.sessionID.Store(&id)
	clear(r.slots)
	if r.config.Router != nil {
		r.config.Router.Detach()
	}
	r.mu.Unlock()

	r.infoLog("epoch started", "epoch", next, "session_id", id)
	return next
}

// Epoch returns the current epoch.
func (r *Registry) Epoch() Epoch {
	return Epoch(r.epoch.Load())
}

// SessionID returns the capture session id of the current epoch.
func (r *Registry) SessionID() string {
	return *r.sessionID.Load()
}

// Live reports whether kind has a slot in the current epoch.
func (r *Registry) Live(kind device.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[kind]
	return ok && s.epoch == r.Epoch()
}

// Modules returns the live slots of the current epoch ordered by kind.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := r.Epoch()
	out := make([]Module, 0, len(r.slots))
	for kind, s := range r.slots {
		if s.epoch != current {
			continue
		}
		out = append(out, Module{Kind: kind, Identity: s.identity, Epoch: s.epoch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Display returns the display module of the current epoch, or nil.
func (r *Registry) Display() *device.LCD20x4 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.slots[device.KindLCD20x4]; ok && s.epoch == r.Epoch() {
		return s.lcd
	}
	return nil
}

// HandleEnumerate processes one enumeration. It is registered with the bus
// and runs on a dispatch goroutine. It never fails: errors are logged and
// leave the module's slot absent.
func (r *Registry) HandleEnumerate(e wire.Enumeration) {
	r.handleMu.Lock()
	defer r.handleMu.Unlock()

	kind, known := device.KindOf(e.DeviceIdentifier)
	r.emitEnumeration(e, kind)

	if !known {
		r.debugLog("unknown module ignored", "uid", e.UID, "device_identifier", e.DeviceIdentifier)
		return
	}

	epoch := r.Epoch()
	if epoch == 0 {
		r.debugLog("enumeration before first epoch ignored", "uid", e.UID, "kind", kind)
		return
	}

	switch e.EnumerationType {
	case wire.EnumerationConnected, wire.EnumerationAvailable:
	case wire.EnumerationDisconnected:
		r.handleDisconnected(e, kind, epoch)
		return
	default:
		r.debugLog("unknown enumeration type", "uid", e.UID, "type", e.EnumerationType)
		return
	}

	r.vacate(kind, epoch)

	var s *slot
	var err error
	switch {
	case kind.IsDisplay():
		s, err = r.initDisplay(e, epoch)
	case kind == device.KindMaster:
		s, err = r.initMaster(e, epoch)
	default:
		s, err = r.initSensor(e, kind, epoch)
	}
	if err != nil {
		r.errorLog("module construction failed", "uid", e.UID, "kind", kind, "epoch", epoch, "error", err)
		return
	}

	if !r.store(kind, s) {
		// A new epoch began while the module was being configured. The slot
		// is stale already and its callbacks are inert.
		r.debugLog("construction outlived its epoch", "uid", e.UID, "kind", kind, "epoch", epoch)
		return
	}
	r.infoLog("module ready", "uid", e.UID, "kind", kind, "epoch", epoch)
}

// vacate releases kind's slot if it belongs to epoch. Slots from earlier
// epochs are left alone: their UID may already be bound again.
func (r *Registry) vacate(kind device.Kind, epoch Epoch) {
	r.mu.Lock()
	old, ok := r.slots[kind]
	if ok && old.epoch == epoch {
		delete(r.slots, kind)
	} else {
		old = nil
	}
	r.mu.Unlock()

	if old == nil {
		return
	}
	old.release()
	if old.lcd != nil && r.config.Router != nil {
		r.config.Router.DetachSink(old.lcd)
	}
	r.debugLog("slot replaced", "kind", kind, "uid", old.identity.UID, "epoch", epoch)
}

// store publishes s if its epoch is still current. A display slot is
// attached to the router under the same lock, so BeginEpoch either sees
// it and detaches it or the epoch check rejects it.
func (r *Registry) store(kind device.Kind, s *slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.epoch != r.Epoch() {
		return false
	}
	r.slots[kind] = s
	if s.lcd != nil && r.config.Router != nil {
		r.config.Router.Attach(s.lcd)
	}
	return true
}

func (r *Registry) handleDisconnected(e wire.Enumeration, kind device.Kind, epoch Epoch) {
	if r.config.DisconnectPolicy != DisconnectInvalidate {
		r.debugLog("module disconnected", "uid", e.UID, "kind", kind, "policy", r.config.DisconnectPolicy)
		return
	}

	r.mu.Lock()
	s, ok := r.slots[kind]
	if !ok || s.epoch != epoch || s.identity.UID != e.UID {
		r.mu.Unlock()
		r.debugLog("disconnected module has no slot", "uid", e.UID, "kind", kind)
		return
	}
	delete(r.slots, kind)
	r.mu.Unlock()

	s.release()
	if s.lcd != nil && r.config.Router != nil {
		r.config.Router.DetachSink(s.lcd)
	}
	r.infoLog("module invalidated", "uid", e.UID, "kind", kind, "epoch", epoch)
}

func (r *Registry) initSensor(e wire.Enumeration, kind device.Kind, epoch Epoch) (*slot, error) {
	var disp telemetry.Display
	if r.config.Router != nil {
		disp = r.config.Router
	}
	h, err := telemetry.New(r.ctx, kind, e, telemetry.Env{
		Caller:         r.config.Caller,
		Display:        disp,
		Epoch:          uint64(epoch),
		CurrentEpoch:   r.epoch.Load,
		Live:           r.Live,
		Period:         r.config.Period,
		Context:        r.ctx,
		SessionID:      r.SessionID(),
		Logger:         r.config.Logger,
		ProtocolLogger: r.config.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	return &slot{epoch: epoch, identity: e, handler: h}, nil
}
