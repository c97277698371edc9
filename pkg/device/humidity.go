package device

import (
	"context"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Humidity is the first generation humidity module. Humidity is reported
// in 1/10 %RH.
type Humidity struct {
	Device
}

// NewHumidity binds a humidity module at uid.
func NewHumidity(caller Caller, uid uint32) *Humidity {
	return &Humidity{Device: newDevice(caller, uid, KindHumidity)}
}

// SetHumidityCallbackPeriod sets how often the humidity callback fires.
func (h *Humidity) SetHumidityCallbackPeriod(ctx context.Context, period time.Duration) error {
	enc := wire.NewEncoder(4)
	enc.PutUint32(periodMillis(period))
	_, err := h.call(ctx, 3, enc.Bytes())
	return err
}

// OnHumidity registers fn for humidity callbacks.
func (h *Humidity) OnHumidity(fn func(humidity uint16)) {
	h.on(13, func(dec *wire.Decoder) {
		v := dec.Uint16()
		if dec.Err() == nil {
			fn(v)
		}
	})
}

// HumidityV2 reports humidity in 1/100 %RH and temperature in 1/100 °C.
type HumidityV2 struct {
	Device
}

// NewHumidityV2 binds a humidity 2.0 module at uid.
func NewHumidityV2(caller Caller, uid uint32) *HumidityV2 {
	return &HumidityV2{Device: newDevice(caller, uid, KindHumidityV2)}
}

// SetHumidityCallbackConfiguration sets the callback period and threshold.
func (h *HumidityV2) SetHumidityCallbackConfiguration(ctx context.Context, period time.Duration, valueHasToChange bool, option byte, min, max uint16) error {
	enc := wire.NewEncoder(10)
	enc.PutUint32(periodMillis(period))
	enc.PutBool(valueHasToChange)
	enc.PutChar(option)
	enc.PutUint16(min)
	enc.PutUint16(max)
	_, err := h.call(ctx, 2, enc.Bytes())
	return err
}

// GetTemperature reads the sensor temperature.
func (h *HumidityV2) GetTemperature(ctx context.Context) (int16, error) {
	resp, err := h.call(ctx, 5, nil)
	if err != nil {
		return 0, err
	}
	dec := wire.NewDecoder(resp)
	v := dec.Int16()
	return v, decodeErr(&h.Device, "temperature", dec)
}

// OnHumidity registers fn for humidity callbacks.
func (h *HumidityV2) OnHumidity(fn func(humidity uint16)) {
	h.on(4, func(dec *wire.Decoder) {
		v := dec.Uint16()
		if dec.Err() == nil {
			fn(v)
		}
	})
}
