package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cscode-eu/weatherstation/internal/testharness/mock"
	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/display"
	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

type line struct {
	row  uint8
	text string
}

type recordingSink struct {
	mu    sync.Mutex
	lines []line
	err   error
}

func (s *recordingSink) WriteLine(_ context.Context, row, _ uint8, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, line{row, text})
	return nil
}

func (s *recordingSink) ClearDisplay(context.Context) error { return nil }
func (s *recordingSink) BacklightOn(context.Context) error  { return nil }

func (s *recordingSink) written() []line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]line(nil), s.lines...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *eventRecorder) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) byCategory(c log.Category) []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []log.Event
	for _, e := range r.events {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	bus    *mock.Bus
	router *display.Router
	sink   *recordingSink
	epoch  atomic.Uint64
	v2Live atomic.Bool
	events *eventRecorder
	logs   *bytes.Buffer
}

func newFixture() *fixture {
	f := &fixture{
		bus:    mock.NewBus(),
		router: display.NewRouter(display.Config{}),
		sink:   &recordingSink{},
		events: &eventRecorder{},
		logs:   &bytes.Buffer{},
	}
	f.epoch.Store(1)
	f.router.Attach(f.sink)
	return f
}

func (f *fixture) env() Env {
	return Env{
		Caller:       f.bus,
		Display:      f.router,
		Epoch:        f.epoch.Load(),
		CurrentEpoch: f.epoch.Load,
		Live: func(k device.Kind) bool {
			return k == device.KindHumidityV2 && f.v2Live.Load()
		},
		SessionID:      "session-1",
		Logger:         slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		ProtocolLogger: f.events,
	}
}

func identity(uid uint32, kind device.Kind) wire.Enumeration {
	return wire.Enumeration{
		UID:              wire.EncodeUID(uid),
		ConnectedUID:     "6qzRzc",
		Position:         'a',
		DeviceIdentifier: kind.DeviceIdentifier(),
		EnumerationType:  wire.EnumerationConnected,
	}
}

func mustNew(t *testing.T, f *fixture, uid uint32, kind device.Kind) *Handler {
	t.Helper()
	h, err := New(context.Background(), kind, identity(uid, kind), f.env())
	require.NoError(t, err)
	return h
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func TestSamplesPerKind(t *testing.T) {
	tests := []struct {
		kind    device.Kind
		fid     uint8
		payload []byte
		row     uint8
		want    string
	}{
		{device.KindAmbientLight, 13, le16(1234), 0, "Light      123.40 lx"},
		{device.KindAmbientLightV2, 10, le32(1234), 0, "Light       12.34 lx"},
		{device.KindAmbientLightV3, 4, le32(1234), 0, "Light       12.34 lx"},
		{device.KindHumidity, 13, le16(451), 1, "Humidity     45.10 %"},
		{device.KindHumidityV2, 4, le16(4636), 1, "Humidity     46.36 %"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFixture()
			h := mustNew(t, f, 100, tt.kind)
			assert.Equal(t, tt.kind, h.Kind())
			assert.Equal(t, uint64(1), h.Epoch())

			require.True(t, f.bus.Fire(100, tt.fid, tt.payload))
			assert.Equal(t, []line{{tt.row, tt.want}}, f.sink.written())
		})
	}
}

func TestBarometerWritesPressureAndTemperature(t *testing.T) {
	tests := []struct {
		kind    device.Kind
		fid     uint8
		tempFID uint8
		temp    []byte
	}{
		{device.KindBarometer, 15, 14, le16(2150)},
		{device.KindBarometerV2, 4, 9, le32(2150)},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFixture()
			mustNew(t, f, 7, tt.kind)
			f.bus.SetResponse(7, tt.tempFID, tt.temp)

			require.True(t, f.bus.Fire(7, tt.fid, le32(1013250)))
			assert.Equal(t, []line{
				{2, "Pressure  1013.25 mb"},
				{3, "Temp.       21.50 °C"},
			}, f.sink.written())
		})
	}
}

func TestConfigurationRequests(t *testing.T) {
	f := newFixture()
	mustNew(t, f, 1, device.KindAmbientLightV2)

	reqs := f.bus.RequestsFor(1)
	require.Len(t, reqs, 2)
	assert.Equal(t, uint8(8), reqs[0].FunctionID)
	assert.Equal(t, []byte{device.IlluminanceRange64000Lux, device.IntegrationTime200ms}, reqs[0].Payload)
	assert.Equal(t, uint8(2), reqs[1].FunctionID)
	assert.Equal(t, le32(1000), reqs[1].Payload)
}

func TestCallbackConfigurationReportsUnchangedValues(t *testing.T) {
	kinds := []device.Kind{device.KindAmbientLightV3, device.KindHumidityV2, device.KindBarometerV2}
	for i, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			f := newFixture()
			uid := uint32(i + 1)
			mustNew(t, f, uid, kind)

			var cfg []byte
			for _, req := range f.bus.RequestsFor(uid) {
				if req.FunctionID == 2 {
					cfg = req.Payload
				}
			}
			require.GreaterOrEqual(t, len(cfg), 6)
			assert.Equal(t, le32(1000), cfg[:4])
			assert.Equal(t, byte(0), cfg[4], "value-has-to-change must be off")
			assert.Equal(t, device.ThresholdOff, cfg[5])
		})
	}
}

func TestConstructionFailure(t *testing.T) {
	f := newFixture()
	f.bus.SetError(5, 2, &wire.DeviceError{UID: 5, FunctionID: 2, Code: wire.ErrorCodeFunctionNotSupported})

	_, err := New(context.Background(), device.KindHumidityV2, identity(5, device.KindHumidityV2), f.env())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstruction)

	var devErr *wire.DeviceError
	assert.True(t, errors.As(err, &devErr))
	assert.False(t, f.bus.HasCallback(5, 4), "no callback may survive a failed construction")
}

func TestConstructionPartialConfiguration(t *testing.T) {
	f := newFixture()
	f.bus.SetError(5, 2, transportTimeout)

	_, err := New(context.Background(), device.KindAmbientLightV2, identity(5, device.KindAmbientLightV2), f.env())
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, transportTimeout)
	assert.False(t, f.bus.HasCallback(5, 10))
}

var transportTimeout = errors.New("request timed out")

func TestConstructionRejectsNonSensor(t *testing.T) {
	f := newFixture()
	for _, k := range []device.Kind{device.KindLCD20x4, device.KindMaster, device.KindUnknown} {
		_, err := New(context.Background(), k, identity(1, k), f.env())
		assert.ErrorIs(t, err, ErrConstruction)
		assert.ErrorIs(t, err, ErrUnsupportedKind)
	}
	assert.Empty(t, f.bus.Requests())
}

func TestConstructionInvalidUID(t *testing.T) {
	f := newFixture()
	id := identity(1, device.KindHumidity)
	id.UID = "0OIl"
	_, err := New(context.Background(), device.KindHumidity, id, f.env())
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, wire.ErrInvalidUID)
}

func TestSampleWithoutDisplayIsNoop(t *testing.T) {
	f := newFixture()
	f.router.Detach()
	mustNew(t, f, 3, device.KindHumidity)

	assert.NotPanics(t, func() { f.bus.Fire(3, 13, le16(500)) })
	assert.Empty(t, f.sink.written())

	// The display shows up late; the next sample lands.
	f.router.Attach(f.sink)
	f.bus.Fire(3, 13, le16(500))
	assert.Equal(t, []line{{1, "Humidity     50.00 %"}}, f.sink.written())
}

func TestBarometerWithoutDisplaySkipsTemperatureRead(t *testing.T) {
	f := newFixture()
	f.router.Detach()
	mustNew(t, f, 3, device.KindBarometerV2)
	f.bus.Reset()

	f.bus.Fire(3, 4, le32(1000000))
	assert.Empty(t, f.bus.Requests())
}

func TestStaleEpochIsNoop(t *testing.T) {
	f := newFixture()
	h := mustNew(t, f, 3, device.KindAmbientLight)
	f.epoch.Store(2)

	assert.True(t, h.Stale())
	f.bus.Fire(3, 13, le16(10))
	assert.Empty(t, f.sink.written())
}

func TestIdenticalSamplesIdenticalRows(t *testing.T) {
	f := newFixture()
	mustNew(t, f, 3, device.KindAmbientLightV3)

	for i := 0; i < 3; i++ {
		f.bus.Fire(3, 4, le32(98765))
	}
	got := f.sink.written()
	require.Len(t, got, 3)
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[1], got[2])
}

func TestHumidityTieBreak(t *testing.T) {
	f := newFixture()
	mustNew(t, f, 3, device.KindHumidity)

	f.bus.Fire(3, 13, le16(4500))
	f.v2Live.Store(true)
	f.bus.Fire(3, 13, le16(4500))

	assert.Equal(t, []line{
		{1, "Humidity    450.00 %"},
		{1, "Humidity     45.00 %"},
	}, f.sink.written())
}

func TestDisplayWriteFailureContinues(t *testing.T) {
	f := newFixture()
	f.sink.err = errors.New("i2c nack")
	mustNew(t, f, 9, device.KindBarometer)
	f.bus.SetResponse(9, 14, le16(2000))
	f.bus.Reset()

	assert.NotPanics(t, func() { f.bus.Fire(9, 15, le32(1000000)) })

	// The temperature is still read after the failed pressure write.
	reqs := f.bus.RequestsFor(9)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint8(14), reqs[0].FunctionID)
	assert.Contains(t, f.logs.String(), "level=DEBUG msg=\"display write failed\"")
	assert.Empty(t, f.events.byCategory(log.CategoryTelemetry))
}

func TestSecondaryReadFailureAborts(t *testing.T) {
	f := newFixture()
	mustNew(t, f, 9, device.KindBarometerV2)
	f.bus.SetError(9, 9, &wire.DeviceError{UID: 9, FunctionID: 9, Code: wire.ErrorCodeUnknown})

	f.bus.Fire(9, 4, le32(1000000))

	assert.Equal(t, []line{{2, "Pressure  1000.00 mb"}}, f.sink.written())
	assert.Contains(t, f.logs.String(), "level=ERROR msg=\"temperature read failed\"")
	assert.Contains(t, f.logs.String(), ErrSecondaryRead.Error())

	errs := f.events.byCategory(log.CategoryError)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].Error.Code)
	assert.Equal(t, int(wire.ErrorCodeUnknown), *errs[0].Error.Code)
}

func TestSampleEventsCaptured(t *testing.T) {
	f := newFixture()
	mustNew(t, f, 58, device.KindHumidityV2)
	f.bus.Fire(58, 4, le16(4636))

	samples := f.events.byCategory(log.CategoryTelemetry)
	require.Len(t, samples, 1)
	e := samples[0]
	assert.Equal(t, "session-1", e.SessionID)
	assert.Equal(t, "21", e.UID)
	assert.Equal(t, log.DirectionIn, e.Direction)
	assert.Equal(t, "HumidityV2", e.Sample.Kind)
	assert.Equal(t, uint8(1), e.Sample.Row)
	assert.Equal(t, int64(4636), e.Sample.Raw)
	assert.InDelta(t, 46.36, e.Sample.Value, 1e-9)
	assert.Equal(t, "Humidity     46.36 %", e.Sample.Text)
}

func TestRelease(t *testing.T) {
	f := newFixture()
	h := mustNew(t, f, 3, device.KindBarometer)
	require.True(t, f.bus.HasCallback(3, 15))
	h.Release()
	assert.False(t, f.bus.HasCallback(3, 15))
	assert.Equal(t, "Barometer "+wire.EncodeUID(3), h.String())
}

func TestDefaultPeriod(t *testing.T) {
	f := newFixture()
	env := f.env()
	env.Period = 0
	_, err := New(context.Background(), device.KindHumidity, identity(3, device.KindHumidity), env)
	require.NoError(t, err)
	assert.Equal(t, le32(uint32(DefaultPeriod.Milliseconds())), f.bus.Requests()[0].Payload)
}
