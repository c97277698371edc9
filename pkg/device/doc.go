// Package device provides typed access to the modules of the weather
// station bus.
//
// Each module type gets a thin wrapper over a Caller that encodes request
// payloads, decodes responses and registers typed callback handlers. The
// wrappers hold no state beyond their UID; everything else lives on the
// module itself.
//
// # Supported Modules
//
//	Kind             Identifier  Role
//	LCD20x4          212         display sink (4 rows, 20 columns)
//	AmbientLight     21          illuminance, 1/10 lx
//	AmbientLightV2   259         illuminance, 1/100 lx
//	AmbientLightV3   2131        illuminance, 1/100 lx
//	Humidity         27          relative humidity, 1/10 %RH
//	HumidityV2       283         relative humidity, 1/100 %RH
//	Barometer        221         air pressure, 1/1000 mbar
//	BarometerV2      2117        air pressure, 1/1000 mbar
//	Master           13          status LED only
package device
