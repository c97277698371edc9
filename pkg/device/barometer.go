package device

import (
	"context"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Barometer is the first generation barometer. Air pressure is reported in
// 1/1000 mbar, chip temperature in 1/100 °C.
type Barometer struct {
	Device
}

// NewBarometer binds a barometer at uid.
func NewBarometer(caller Caller, uid uint32) *Barometer {
	return &Barometer{Device: newDevice(caller, uid, KindBarometer)}
}

// SetAirPressureCallbackPeriod sets how often the air pressure callback
// fires.
func (b *Barometer) SetAirPressureCallbackPeriod(ctx context.Context, period time.Duration) error {
	enc := wire.NewEncoder(4)
	enc.PutUint32(periodMillis(period))
	_, err := b.call(ctx, 3, enc.Bytes())
	return err
}

// GetChipTemperature reads the temperature of the pressure sensor chip.
func (b *Barometer) GetChipTemperature(ctx context.Context) (int16, error) {
	resp, err := b.call(ctx, 14, nil)
	if err != nil {
		return 0, err
	}
	dec := wire.NewDecoder(resp)
	v := dec.Int16()
	return v, decodeErr(&b.Device, "chip temperature", dec)
}

// OnAirPressure registers fn for air pressure callbacks.
func (b *Barometer) OnAirPressure(fn func(airPressure int32)) {
	b.on(15, func(dec *wire.Decoder) {
		v := dec.Int32()
		if dec.Err() == nil {
			fn(v)
		}
	})
}

// BarometerV2 reports air pressure in 1/1000 mbar and temperature in
// 1/100 °C.
type BarometerV2 struct {
	Device
}

// NewBarometerV2 binds a barometer 2.0 at uid.
func NewBarometerV2(caller Caller, uid uint32) *BarometerV2 {
	return &BarometerV2{Device: newDevice(caller, uid, KindBarometerV2)}
}

// SetAirPressureCallbackConfiguration sets the callback period and
// threshold.
func (b *BarometerV2) SetAirPressureCallbackConfiguration(ctx context.Context, period time.Duration, valueHasToChange bool, option byte, min, max int32) error {
	enc := wire.NewEncoder(14)
	enc.PutUint32(periodMillis(period))
	enc.PutBool(valueHasToChange)
	enc.PutChar(option)
	enc.PutInt32(min)
	enc.PutInt32(max)
	_, err := b.call(ctx, 2, enc.Bytes())
	return err
}

// GetTemperature reads the sensor temperature.
func (b *BarometerV2) GetTemperature(ctx context.Context) (int32, error) {
	resp, err := b.call(ctx, 9, nil)
	if err != nil {
		return 0, err
	}
	dec := wire.NewDecoder(resp)
	v := dec.Int32()
	return v, decodeErr(&b.Device, "temperature", dec)
}

// OnAirPressure registers fn for air pressure callbacks.
func (b *BarometerV2) OnAirPressure(fn func(airPressure int32)) {
	b.on(4, func(dec *wire.Decoder) {
		v := dec.Int32()
		if dec.Err() == nil {
			fn(v)
		}
	})
}
