package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// LCD 20x4 geometry.
const (
	LCDRows    = 4
	LCDColumns = 20
)

// LCD 20x4 function ids.
const (
	lcdFunctionWriteLine      uint8 = 1
	lcdFunctionClearDisplay   uint8 = 2
	lcdFunctionBacklightOn    uint8 = 3
	lcdFunctionBacklightOff   uint8 = 4
	lcdFunctionIsBacklightOn  uint8 = 5
	lcdCallbackButtonPressed  uint8 = 9
	lcdCallbackButtonReleased uint8 = 10
)

// ErrInvalidPosition is returned for a row or column outside the display.
var ErrInvalidPosition = errors.New("position outside display")

// LCD20x4 is the 20x4 character display.
type LCD20x4 struct {
	Device
}

// NewLCD20x4 binds an LCD 20x4 at uid.
func NewLCD20x4(caller Caller, uid uint32) *LCD20x4 {
	return &LCD20x4{Device: newDevice(caller, uid, KindLCD20x4)}
}

// WriteLine writes text at row, col. Text is converted to the display
// charset and cut at the right edge.
func (l *LCD20x4) WriteLine(ctx context.Context, row, col uint8, text string) error {
	if row >= LCDRows || col >= LCDColumns {
		return fmt.Errorf("%w: row %d column %d", ErrInvalidPosition, row, col)
	}
	enc := wire.NewEncoder(2 + LCDColumns)
	enc.PutUint8(row)
	enc.PutUint8(col)
	enc.PutString(string(EncodeText(text)), LCDColumns)
	_, err := l.call(ctx, lcdFunctionWriteLine, enc.Bytes())
	return err
}

// ClearDisplay blanks every row.
func (l *LCD20x4) ClearDisplay(ctx context.Context) error {
	_, err := l.call(ctx, lcdFunctionClearDisplay, nil)
	return err
}

// BacklightOn switches the backlight on.
func (l *LCD20x4) BacklightOn(ctx context.Context) error {
	_, err := l.call(ctx, lcdFunctionBacklightOn, nil)
	return err
}

// BacklightOff switches the backlight off.
func (l *LCD20x4) BacklightOff(ctx context.Context) error {
	_, err := l.call(ctx, lcdFunctionBacklightOff, nil)
	return err
}

// IsBacklightOn reads the backlight state.
func (l *LCD20x4) IsBacklightOn(ctx context.Context) (bool, error) {
	resp, err := l.call(ctx, lcdFunctionIsBacklightOn, nil)
	if err != nil {
		return false, err
	}
	dec := wire.NewDecoder(resp)
	on := dec.Bool()
	return on, decodeErr(&l.Device, "is backlight on", dec)
}

// ToggleBacklight flips the backlight and returns the new state.
func (l *LCD20x4) ToggleBacklight(ctx context.Context) (bool, error) {
	on, err := l.IsBacklightOn(ctx)
	if err != nil {
		return false, err
	}
	if on {
		return false, l.BacklightOff(ctx)
	}
	return true, l.BacklightOn(ctx)
}

// OnButtonPressed registers fn for button presses (buttons 0 to 3).
func (l *LCD20x4) OnButtonPressed(fn func(button uint8)) {
	l.on(lcdCallbackButtonPressed, func(dec *wire.Decoder) {
		b := dec.Uint8()
		if dec.Err() == nil {
			fn(b)
		}
	})
}

// OnButtonReleased registers fn for button releases.
func (l *LCD20x4) OnButtonReleased(fn func(button uint8)) {
	l.on(lcdCallbackButtonReleased, func(dec *wire.Decoder) {
		b := dec.Uint8()
		if dec.Err() == nil {
			fn(b)
		}
	})
}

// lcdCharset maps the non-ASCII characters the display ROM provides.
var lcdCharset = map[rune]byte{
	'°': 0xDF,
	'ä': 0xE1,
	'ß': 0xE2,
	'µ': 0xE4,
	'ö': 0xEF,
	'Ω': 0xF4,
	'ü': 0xF5,
	'÷': 0xFD,
	'¥': 0x5C,
	'→': 0x7E,
	'←': 0x7F,
}

// EncodeText converts text to the display character set. Characters the
// display cannot show become a blank block (0xFF).
func EncodeText(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		switch {
		case r == '\\':
			// the ROM has a yen sign at 0x5C
			out = append(out, 0xA4)
		case r == '~':
			out = append(out, 0x2D)
		case r >= 0x20 && r < 0x7E:
			out = append(out, byte(r))
		default:
			if b, ok := lcdCharset[r]; ok {
				out = append(out, b)
			} else {
				out = append(out, 0xFF)
			}
		}
	}
	return out
}
