package telemetry

import (
	"context"

	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/display"
)

// binder constructs and configures the typed device for h and registers
// its sample callback last. On error it returns whatever it managed to
// bind so the caller can release it.
type binder func(ctx context.Context, h *Handler) (releaser, error)

var binders = map[device.Kind]binder{
	device.KindAmbientLight:   bindAmbientLight,
	device.KindAmbientLightV2: bindAmbientLightV2,
	device.KindAmbientLightV3: bindAmbientLightV3,
	device.KindHumidity:       bindHumidity,
	device.KindHumidityV2:     bindHumidityV2,
	device.KindBarometer:      bindBarometer,
	device.KindBarometerV2:    bindBarometerV2,
}

func bindAmbientLight(ctx context.Context, h *Handler) (releaser, error) {
	a := device.NewAmbientLight(h.env.Caller, h.uid)
	if err := a.SetIlluminanceCallbackPeriod(ctx, h.env.Period); err != nil {
		return a, err
	}
	a.OnIlluminance(func(raw uint16) {
		h.illuminance(int64(raw), ScaleTenths)
	})
	return a, nil
}

func bindAmbientLightV2(ctx context.Context, h *Handler) (releaser, error) {
	a := device.NewAmbientLightV2(h.env.Caller, h.uid)
	if err := a.SetConfiguration(ctx, device.IlluminanceRange64000Lux, device.IntegrationTime200ms); err != nil {
		return a, err
	}
	if err := a.SetIlluminanceCallbackPeriod(ctx, h.env.Period); err != nil {
		return a, err
	}
	a.OnIlluminance(func(raw uint32) {
		h.illuminance(int64(raw), ScaleHundredths)
	})
	return a, nil
}

func bindAmbientLightV3(ctx context.Context, h *Handler) (releaser, error) {
	a := device.NewAmbientLightV3(h.env.Caller, h.uid)
	if err := a.SetConfiguration(ctx, device.IlluminanceRange64000Lux, device.IntegrationTime200ms); err != nil {
		return a, err
	}
	if err := a.SetIlluminanceCallbackConfiguration(ctx, h.env.Period, false, device.ThresholdOff, 0, 0); err != nil {
		return a, err
	}
	a.OnIlluminance(func(raw uint32) {
		h.illuminance(int64(raw), ScaleHundredths)
	})
	return a, nil
}

func bindHumidity(ctx context.Context, h *Handler) (releaser, error) {
	s := device.NewHumidity(h.env.Caller, h.uid)
	if err := s.SetHumidityCallbackPeriod(ctx, h.env.Period); err != nil {
		return s, err
	}
	s.OnHumidity(func(raw uint16) {
		v2Live := h.env.Live != nil && h.env.Live(device.KindHumidityV2)
		h.humidity(int64(raw), humidityScale(v2Live))
	})
	return s, nil
}

func bindHumidityV2(ctx context.Context, h *Handler) (releaser, error) {
	s := device.NewHumidityV2(h.env.Caller, h.uid)
	if err := s.SetHumidityCallbackConfiguration(ctx, h.env.Period, false, device.ThresholdOff, 0, 0); err != nil {
		return s, err
	}
	s.OnHumidity(func(raw uint16) {
		h.humidity(int64(raw), ScaleHundredths)
	})
	return s, nil
}

func bindBarometer(ctx context.Context, h *Handler) (releaser, error) {
	b := device.NewBarometer(h.env.Caller, h.uid)
	if err := b.SetAirPressureCallbackPeriod(ctx, h.env.Period); err != nil {
		return b, err
	}
	b.OnAirPressure(func(raw int32) {
		h.airPressure(int64(raw), func() (int64, error) {
			t, err := b.GetChipTemperature(h.ctx)
			return int64(t), err
		})
	})
	return b, nil
}

func bindBarometerV2(ctx context.Context, h *Handler) (releaser, error) {
	b := device.NewBarometerV2(h.env.Caller, h.uid)
	if err := b.SetAirPressureCallbackConfiguration(ctx, h.env.Period, false, device.ThresholdOff, 0, 0); err != nil {
		return b, err
	}
	b.OnAirPressure(func(raw int32) {
		h.airPressure(int64(raw), func() (int64, error) {
			t, err := b.GetTemperature(h.ctx)
			return int64(t), err
		})
	})
	return b, nil
}

func (h *Handler) illuminance(raw int64, scale float64) {
	if !h.ready() {
		return
	}
	lux := float64(raw) / scale
	h.publish(display.RowIlluminance, raw, lux, FormatIlluminance(lux))
}

func (h *Handler) humidity(raw int64, scale float64) {
	if !h.ready() {
		return
	}
	percent := float64(raw) / scale
	h.publish(display.RowHumidity, raw, percent, FormatHumidity(percent))
}

// airPressure writes the pressure row, then reads the temperature
// synchronously and writes the temperature row.
func (h *Handler) airPressure(raw int64, readTemperature func() (int64, error)) {
	if !h.ready() {
		return
	}
	mbar := float64(raw) / ScaleThousandth
	h.publish(display.RowAirPressure, raw, mbar, FormatAirPressure(mbar))

	t, err := readTemperature()
	if err != nil {
		h.secondaryFailed(err)
		return
	}
	celsius := float64(t) / ScaleHundredths
	h.publish(display.RowTemperature, t, celsius, FormatTemperature(celsius))
}
