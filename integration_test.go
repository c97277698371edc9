package weatherstation_test

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cscode-eu/weatherstation/pkg/connection"
	"github.com/cscode-eu/weatherstation/pkg/device"
	"github.com/cscode-eu/weatherstation/pkg/display"
	"github.com/cscode-eu/weatherstation/pkg/registry"
	"github.com/cscode-eu/weatherstation/pkg/transport"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

const (
	lcdUID  uint32 = 0x1001
	baroUID uint32 = 0x2002
)

// brickd is a minimal Brick Daemon on a loopback listener. It announces an
// LCD and a barometer on every enumerate and records LCD writes.
type brickd struct {
	t        *testing.T
	listener net.Listener

	mu      sync.Mutex
	conns   []net.Conn
	writers []*transport.PacketWriter
	wmu     sync.Mutex

	lines chan []byte
}

func startBrickd(t *testing.T) *brickd {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &brickd{t: t, listener: ln, lines: make(chan []byte, 64)}
	go d.accept()
	t.Cleanup(func() {
		ln.Close()
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, c := range d.conns {
			c.Close()
		}
	})
	return d
}

func (d *brickd) port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

func (d *brickd) accept() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		w := transport.NewPacketWriter(conn)
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.writers = append(d.writers, w)
		d.mu.Unlock()
		go d.serve(conn, w)
	}
}

func (d *brickd) write(w *transport.PacketWriter, p wire.Packet) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_ = w.WritePacket(p)
}

func (d *brickd) serve(conn net.Conn, w *transport.PacketWriter) {
	r := transport.NewPacketReader(conn)
	for {
		req, err := r.ReadPacket()
		if err != nil {
			return
		}
		h := req.Header

		if h.UID == wire.BroadcastUID && h.FunctionID == wire.FunctionEnumerate {
			d.write(w, enumerateCallback(lcdUID, device.IdentifierLCD20x4, 'a'))
			d.write(w, enumerateCallback(baroUID, device.IdentifierBarometer, 'b'))
			continue
		}

		if h.UID == lcdUID && h.FunctionID == 1 {
			d.lines <- append([]byte(nil), req.Payload...)
		}

		if !h.ResponseExpected {
			continue
		}
		var payload []byte
		if h.UID == baroUID && h.FunctionID == 14 {
			payload = binary.LittleEndian.AppendUint16(nil, uint16(2150))
		}
		d.write(w, wire.Packet{
			Header: wire.Header{
				UID:              h.UID,
				FunctionID:       h.FunctionID,
				Sequence:         h.Sequence,
				ResponseExpected: true,
			},
			Payload: payload,
		})
	}
}

// push sends a callback over the most recent connection.
func (d *brickd) push(uid uint32, fid uint8, payload []byte) {
	d.mu.Lock()
	w := d.writers[len(d.writers)-1]
	d.mu.Unlock()
	d.write(w, wire.Packet{Header: wire.Header{UID: uid, FunctionID: fid}, Payload: payload})
}

// drop closes the most recent connection.
func (d *brickd) drop() {
	d.mu.Lock()
	c := d.conns[len(d.conns)-1]
	d.mu.Unlock()
	c.Close()
}

func enumerateCallback(uid uint32, identifier uint16, position byte) wire.Packet {
	e := wire.Enumeration{
		UID:              wire.EncodeUID(uid),
		ConnectedUID:     "6qCLmv",
		Position:         position,
		HardwareVersion:  wire.Version{1, 0, 0},
		FirmwareVersion:  wire.Version{2, 0, 1},
		DeviceIdentifier: identifier,
		EnumerationType:  wire.EnumerationAvailable,
	}
	return wire.Packet{
		Header:  wire.Header{UID: uid, FunctionID: wire.CallbackEnumerate},
		Payload: e.Encode(),
	}
}

func lcdLine(row uint8, text string) []byte {
	enc := wire.NewEncoder(22)
	enc.PutUint8(row)
	enc.PutUint8(0)
	enc.PutString(string(device.EncodeText(text)), device.LCDColumns)
	return enc.Bytes()
}

// awaitLine waits for the LCD write of row, skipping other rows.
func (d *brickd) awaitLine(t *testing.T, row uint8) []byte {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line := <-d.lines:
			if len(line) > 0 && line[0] == row {
				return line
			}
		case <-deadline:
			t.Fatalf("no LCD write for row %d", row)
			return nil
		}
	}
}

type station struct {
	conn       *transport.Conn
	router     *display.Router
	registry   *registry.Registry
	supervisor *connection.Supervisor
	cancel     context.CancelFunc
	done       chan error
}

func startStation(t *testing.T, d *brickd) *station {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	conn := transport.New(transport.Config{
		RequestTimeout: 2 * time.Second,
		ProbeInterval:  time.Hour,
		RetryDelay:     20 * time.Millisecond,
	})
	router := display.NewRouter(display.Config{})
	reg := registry.New(registry.Config{
		Caller:  conn,
		Router:  router,
		Context: ctx,
	})
	sup := connection.NewSupervisor(connection.Config{
		Host:       "127.0.0.1",
		Port:       d.port(),
		RetryDelay: 20 * time.Millisecond,
	}, conn, reg)

	s := &station{conn: conn, router: router, registry: reg, supervisor: sup, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- sup.Run(ctx) }()
	t.Cleanup(s.stop)
	return s
}

func (s *station) stop() {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
}

func (s *station) awaitModules(t *testing.T, epoch registry.Epoch) {
	t.Helper()
	require.Eventually(t, func() bool {
		mods := s.registry.Modules()
		return s.registry.Epoch() == epoch && len(mods) == 2 && s.router.Attached()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStationRendersBarometer(t *testing.T) {
	d := startBrickd(t)
	s := startStation(t, d)

	s.awaitModules(t, 1)
	assert.Equal(t, connection.StateRunning, s.supervisor.State())

	d.push(baroUID, 15, binary.LittleEndian.AppendUint32(nil, uint32(1013250)))

	assert.Equal(t, lcdLine(2, "Pressure  1013.25 mb"), d.awaitLine(t, 2))
	assert.Equal(t, lcdLine(3, "Temp.       21.50 °C"), d.awaitLine(t, 3))
}

func TestStationRebindsAfterReconnect(t *testing.T) {
	d := startBrickd(t)
	s := startStation(t, d)

	s.awaitModules(t, 1)

	d.drop()
	s.awaitModules(t, 2)

	for _, m := range s.registry.Modules() {
		assert.Equal(t, registry.Epoch(2), m.Epoch)
	}
	assert.Equal(t, uint64(1), s.supervisor.Stats().Reconnects)

	d.push(baroUID, 15, binary.LittleEndian.AppendUint32(nil, uint32(998700)))
	assert.Equal(t, lcdLine(2, "Pressure   998.70 mb"), d.awaitLine(t, 2))
}

func TestStationShutdown(t *testing.T) {
	d := startBrickd(t)
	s := startStation(t, d)
	s.awaitModules(t, 1)

	s.cancel()
	select {
	case err := <-s.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(t, connection.StateClosed, s.supervisor.State())
	assert.Equal(t, transport.StateDisconnected, s.conn.State())
}
