package device

import (
	"context"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Illuminance range and integration time settings shared by the V2 and V3
// ambient light modules.
const (
	IlluminanceRange64000Lux  uint8 = 0
	IlluminanceRange32000Lux  uint8 = 1
	IlluminanceRange16000Lux  uint8 = 2
	IlluminanceRange8000Lux   uint8 = 3
	IlluminanceRange1300Lux   uint8 = 4
	IlluminanceRange600Lux    uint8 = 5
	IlluminanceRangeUnlimited uint8 = 6

	IntegrationTime50ms  uint8 = 0
	IntegrationTime100ms uint8 = 1
	IntegrationTime150ms uint8 = 2
	IntegrationTime200ms uint8 = 3
	IntegrationTime250ms uint8 = 4
	IntegrationTime300ms uint8 = 5
	IntegrationTime350ms uint8 = 6
	IntegrationTime400ms uint8 = 7
)

// AmbientLight is the first generation ambient light module. Illuminance
// is reported in 1/10 lx.
type AmbientLight struct {
	Device
}

// NewAmbientLight binds an ambient light module at uid.
func NewAmbientLight(caller Caller, uid uint32) *AmbientLight {
	return &AmbientLight{Device: newDevice(caller, uid, KindAmbientLight)}
}

// SetIlluminanceCallbackPeriod sets how often the illuminance callback
// fires. The callback only fires when the value changed.
func (a *AmbientLight) SetIlluminanceCallbackPeriod(ctx context.Context, period time.Duration) error {
	enc := wire.NewEncoder(4)
	enc.PutUint32(periodMillis(period))
	_, err := a.call(ctx, 3, enc.Bytes())
	return err
}

// OnIlluminance registers fn for illuminance callbacks.
func (a *AmbientLight) OnIlluminance(fn func(illuminance uint16)) {
	a.on(13, func(dec *wire.Decoder) {
		v := dec.Uint16()
		if dec.Err() == nil {
			fn(v)
		}
	})
}

// AmbientLightV2 reports illuminance in 1/100 lx.
type AmbientLightV2 struct {
	Device
}

// NewAmbientLightV2 binds an ambient light 2.0 module at uid.
func NewAmbientLightV2(caller Caller, uid uint32) *AmbientLightV2 {
	return &AmbientLightV2{Device: newDevice(caller, uid, KindAmbientLightV2)}
}

// SetConfiguration sets the measurement range and integration time.
func (a *AmbientLightV2) SetConfiguration(ctx context.Context, illuminanceRange, integrationTime uint8) error {
	enc := wire.NewEncoder(2)
	enc.PutUint8(illuminanceRange)
	enc.PutUint8(integrationTime)
	_, err := a.call(ctx, 8, enc.Bytes())
	return err
}

// SetIlluminanceCallbackPeriod sets how often the illuminance callback
// fires.
func (a *AmbientLightV2) SetIlluminanceCallbackPeriod(ctx context.Context, period time.Duration) error {
	enc := wire.NewEncoder(4)
	enc.PutUint32(periodMillis(period))
	_, err := a.call(ctx, 2, enc.Bytes())
	return err
}

// OnIlluminance registers fn for illuminance callbacks.
func (a *AmbientLightV2) OnIlluminance(fn func(illuminance uint32)) {
	a.on(10, func(dec *wire.Decoder) {
		v := dec.Uint32()
		if dec.Err() == nil {
			fn(v)
		}
	})
}

// AmbientLightV3 reports illuminance in 1/100 lx.
type AmbientLightV3 struct {
	Device
}

// NewAmbientLightV3 binds an ambient light 3.0 module at uid.
func NewAmbientLightV3(caller Caller, uid uint32) *AmbientLightV3 {
	return &AmbientLightV3{Device: newDevice(caller, uid, KindAmbientLightV3)}
}

// SetConfiguration sets the measurement range and integration time.
func (a *AmbientLightV3) SetConfiguration(ctx context.Context, illuminanceRange, integrationTime uint8) error {
	enc := wire.NewEncoder(2)
	enc.PutUint8(illuminanceRange)
	enc.PutUint8(integrationTime)
	_, err := a.call(ctx, 5, enc.Bytes())
	return err
}

// SetIlluminanceCallbackConfiguration sets the callback period and the
// threshold that gates it. With valueHasToChange the callback is skipped
// while the reading stays the same.
func (a *AmbientLightV3) SetIlluminanceCallbackConfiguration(ctx context.Context, period time.Duration, valueHasToChange bool, option byte, min, max uint32) error {
	enc := wire.NewEncoder(14)
	enc.PutUint32(periodMillis(period))
	enc.PutBool(valueHasToChange)
	enc.PutChar(option)
	enc.PutUint32(min)
	enc.PutUint32(max)
	_, err := a.call(ctx, 2, enc.Bytes())
	return err
}

// OnIlluminance registers fn for illuminance callbacks.
func (a *AmbientLightV3) OnIlluminance(fn func(illuminance uint32)) {
	a.on(4, func(dec *wire.Decoder) {
		v := dec.Uint32()
		if dec.Err() == nil {
			fn(v)
		}
	})
}
