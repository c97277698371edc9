package telemetry

import (
	"fmt"

	"github.com/cscode-eu/weatherstation/pkg/device"
)

// Row formats. Each renders exactly 20 display columns for values within
// the sensors' range.
const (
	illuminanceFormat = "Light %11.2f lx"
	humidityFormat    = "Humidity %9.2f %%"
	airPressureFormat = "Pressure %8.2f mb"
	temperatureFormat = "Temp. %11.2f °C"
)

// Fixed-point divisors of the raw sample encodings.
const (
	ScaleTenths     = 10.0
	ScaleHundredths = 100.0
	ScaleThousandth = 1000.0
)

// FormatIlluminance renders the illuminance row.
func FormatIlluminance(lux float64) string {
	return fmt.Sprintf(illuminanceFormat, lux)
}

// FormatHumidity renders the humidity row.
func FormatHumidity(percent float64) string {
	return fmt.Sprintf(humidityFormat, percent)
}

// FormatAirPressure renders the air pressure row.
func FormatAirPressure(mbar float64) string {
	return fmt.Sprintf(airPressureFormat, mbar)
}

// FormatTemperature renders the temperature row.
func FormatTemperature(celsius float64) string {
	return fmt.Sprintf(temperatureFormat, celsius)
}

// PrimaryScale returns the divisor for the primary sample of kind. For
// Humidity the divisor also depends on whether a HumidityV2 is live; see
// humidityScale.
func PrimaryScale(kind device.Kind) (float64, bool) {
	switch kind {
	case device.KindAmbientLight, device.KindHumidity:
		return ScaleTenths, true
	case device.KindAmbientLightV2, device.KindAmbientLightV3, device.KindHumidityV2:
		return ScaleHundredths, true
	case device.KindBarometer, device.KindBarometerV2:
		return ScaleThousandth, true
	default:
		return 0, false
	}
}

// humidityScale applies the generation tie-break: with a HumidityV2 live in
// the epoch, first generation samples are read in hundredths too. Only one
// humidity module is expected at a time.
func humidityScale(v2Live bool) float64 {
	if v2Live {
		return ScaleHundredths
	}
	return ScaleTenths
}
