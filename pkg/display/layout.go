package display

import (
	"strings"
	"unicode/utf8"
)

// Display geometry.
const (
	Rows    = 4
	Columns = 20
)

// Row is a display row.
type Row uint8

// Row assignment by sensor category.
const (
	RowIlluminance Row = 0
	RowHumidity    Row = 1
	RowAirPressure Row = 2
	RowTemperature Row = 3
)

// String returns the row's category name.
func (r Row) String() string {
	switch r {
	case RowIlluminance:
		return "illuminance"
	case RowHumidity:
		return "humidity"
	case RowAirPressure:
		return "air-pressure"
	case RowTemperature:
		return "temperature"
	default:
		return "unknown"
	}
}

// Fit pads or truncates text to exactly Columns characters. Width is
// counted in runes since the display shows one glyph per character.
func Fit(text string) string {
	n := utf8.RuneCountInString(text)
	if n == Columns {
		return text
	}
	if n < Columns {
		return text + strings.Repeat(" ", Columns-n)
	}
	i := 0
	for pos := range text {
		if i == Columns {
			return text[:pos]
		}
		i++
	}
	return text
}
