package interactive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cscode-eu/weatherstation/internal/testharness/mock"
	"github.com/cscode-eu/weatherstation/pkg/connection"
	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/registry"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

type fakeSupervisor struct {
	state connection.State
	epoch registry.Epoch
	stats connection.Stats
}

func (f *fakeSupervisor) State() connection.State { return f.state }
func (f *fakeSupervisor) Epoch() registry.Epoch   { return f.epoch }
func (f *fakeSupervisor) Stats() connection.Stats { return f.stats }

type fakeRegistry struct {
	session string
	modules []registry.Module
	lcd     *device.LCD20x4
}

func (f *fakeRegistry) SessionID() string           { return f.session }
func (f *fakeRegistry) Modules() []registry.Module { return f.modules }
func (f *fakeRegistry) Display() *device.LCD20x4   { return f.lcd }

type fakeLink struct {
	addr    string
	dropped uint64
}

func (f *fakeLink) RemoteAddr() string       { return f.addr }
func (f *fakeLink) DroppedCallbacks() uint64 { return f.dropped }

const lcdUID = 0x1F2E

func newTestConsole(reg *fakeRegistry) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	sup := &fakeSupervisor{
		state: connection.StateRunning,
		epoch: 3,
		stats: connection.Stats{ConnectFailures: 2, Enumerations: 3, Reconnects: 1},
	}
	link := &fakeLink{addr: "192.168.1.20:4223", dropped: 7}
	return newConsole(sup, reg, link, &out), &out
}

func TestExecuteStatus(t *testing.T) {
	c, out := newTestConsole(&fakeRegistry{session: "b1c2"})

	assert.True(t, c.Execute(context.Background(), "status"))

	s := out.String()
	assert.Contains(t, s, "RUNNING")
	assert.Contains(t, s, "Epoch:       3")
	assert.Contains(t, s, "b1c2")
	assert.Contains(t, s, "192.168.1.20:4223")
	assert.Contains(t, s, "Dropped:     7 callbacks")
	assert.Contains(t, s, "Connect failures:   2")
	assert.Contains(t, s, "Reconnects:         1")
}

func TestExecuteModules(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		c, out := newTestConsole(&fakeRegistry{})
		c.Execute(context.Background(), "modules")
		assert.Contains(t, out.String(), "No modules bound")
	})

	t.Run("listed", func(t *testing.T) {
		reg := &fakeRegistry{modules: []registry.Module{
			{
				Kind:     device.KindBarometer,
				Identity: wire.Enumeration{UID: "bAr", ConnectedUID: "6qCLmv", Position: 'c', FirmwareVersion: wire.Version{2, 0, 3}},
				Epoch:    3,
			},
			{
				Kind:     device.KindMaster,
				Identity: wire.Enumeration{UID: "6qCLmv", ConnectedUID: "0", Position: '0'},
				Epoch:    3,
			},
		}}
		c, out := newTestConsole(reg)
		c.Execute(context.Background(), "m")

		s := out.String()
		assert.Contains(t, s, "Modules (2)")
		assert.Contains(t, s, "uid=bAr")
		assert.Contains(t, s, "6qCLmv/c")
		assert.Contains(t, s, "fw 2.0.3")
		assert.Contains(t, s, device.KindMaster.String())
	})
}

func TestExecuteBacklight(t *testing.T) {
	t.Run("no display", func(t *testing.T) {
		c, out := newTestConsole(&fakeRegistry{})
		c.Execute(context.Background(), "backlight")
		assert.Contains(t, out.String(), "No display bound")
	})

	t.Run("toggles off", func(t *testing.T) {
		bus := mock.NewBus()
		bus.SetResponse(lcdUID, 5, []byte{1})
		c, out := newTestConsole(&fakeRegistry{lcd: device.NewLCD20x4(bus, lcdUID)})

		c.Execute(context.Background(), "backlight")

		assert.Contains(t, out.String(), "Backlight off")
		reqs := bus.RequestsFor(lcdUID)
		require.Len(t, reqs, 2)
		assert.Equal(t, uint8(5), reqs[0].FunctionID)
		assert.Equal(t, uint8(4), reqs[1].FunctionID)
	})

	t.Run("toggles on", func(t *testing.T) {
		bus := mock.NewBus()
		bus.SetResponse(lcdUID, 5, []byte{0})
		c, out := newTestConsole(&fakeRegistry{lcd: device.NewLCD20x4(bus, lcdUID)})

		c.Execute(context.Background(), "bl")

		assert.Contains(t, out.String(), "Backlight on")
		reqs := bus.RequestsFor(lcdUID)
		require.Len(t, reqs, 2)
		assert.Equal(t, uint8(3), reqs[1].FunctionID)
	})

	t.Run("error", func(t *testing.T) {
		bus := mock.NewBus()
		bus.SetError(lcdUID, 5, errors.New("bus gone"))
		c, out := newTestConsole(&fakeRegistry{lcd: device.NewLCD20x4(bus, lcdUID)})

		c.Execute(context.Background(), "backlight")
		assert.Contains(t, out.String(), "Backlight toggle failed")
		assert.Contains(t, out.String(), "bus gone")
	})
}

func TestExecuteQuitAndUnknown(t *testing.T) {
	c, out := newTestConsole(&fakeRegistry{})

	assert.True(t, c.Execute(context.Background(), ""))
	assert.True(t, c.Execute(context.Background(), "reboot now"))
	assert.Contains(t, out.String(), "Unknown command: reboot")

	assert.True(t, c.Execute(context.Background(), "help"))
	assert.Contains(t, out.String(), "Weather Station Commands")

	assert.False(t, c.Execute(context.Background(), "QUIT"))
	assert.Contains(t, out.String(), "Exiting...")
}
