// Package display routes formatted telemetry rows to the character display.
//
// The layout is static: every sensor category owns one row of the 20x4
// display and writes to it from column 0.
//
//	Row 0  Light       123.40 lx
//	Row 1  Humidity     45.10 %
//	Row 2  Pressure   1013.25 mb
//	Row 3  Temp.        21.50 °C
//
// The Router holds the current Sink behind an atomic pointer. Sample
// callbacks running on different dispatch goroutines see a sink only after
// it has been fully initialized and attached.
package display
