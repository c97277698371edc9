package registry

import (
	"fmt"

	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/telemetry"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// toggleButton is the LCD button that toggles the backlight.
const toggleButton uint8 = 0

// initDisplay clears the LCD and switches its backlight on. The caller
// attaches it to the router once the slot is stored.
func (r *Registry) initDisplay(e wire.Enumeration, epoch Epoch) (*slot, error) {
	uid, err := e.NumericUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConstruction, err)
	}
	lcd := device.NewLCD20x4(r.config.Caller, uid)

	if err := lcd.ClearDisplay(r.ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConstruction, err)
	}
	if err := lcd.BacklightOn(r.ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConstruction, err)
	}

	if r.config.ButtonBacklight {
		lcd.OnButtonPressed(func(button uint8) {
			if button != toggleButton || r.Epoch() != epoch {
				return
			}
			on, err := lcd.ToggleBacklight(r.ctx)
			if err != nil {
				r.debugLog("backlight toggle failed", "uid", e.UID, "error", err)
				return
			}
			r.debugLog("backlight toggled", "uid", e.UID, "on", on)
		})
	}
	return &slot{epoch: epoch, identity: e, lcd: lcd}, nil
}

// initMaster binds the master brick. A failing status LED command is
// logged only: the brick has no telemetry to lose.
func (r *Registry) initMaster(e wire.Enumeration, epoch Epoch) (*slot, error) {
	uid, err := e.NumericUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConstruction, err)
	}
	m := device.NewMaster(r.config.Caller, uid)
	if r.config.DisableStatusLED {
		if err := m.DisableStatusLED(r.ctx); err != nil {
			r.errorLog("status led", "uid", e.UID, "error", err)
		}
	}
	return &slot{epoch: epoch, identity: e, master: m}, nil
}

func (r *Registry) emitEnumeration(e wire.Enumeration, kind device.Kind) {
	log.Emit(r.config.ProtocolLogger, log.Event{
		SessionID: r.SessionID(),
		Direction: log.DirectionIn,
		Layer:     log.LayerApplication,
		Category:  log.CategoryEnumeration,
		UID:       e.UID,
		Enumeration: &log.EnumerationEvent{
			ConnectedUID:     e.ConnectedUID,
			Position:         string(rune(e.Position)),
			DeviceIdentifier: e.DeviceIdentifier,
			Kind:             kind.String(),
			Type:             e.EnumerationType.String(),
			Hardware:         e.HardwareVersion.String(),
			Firmware:         e.FirmwareVersion.String(),
		},
	})
}

func (r *Registry) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}

func (r *Registry) infoLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Info(msg, args...)
	}
}

func (r *Registry) errorLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Error(msg, args...)
	}
}
