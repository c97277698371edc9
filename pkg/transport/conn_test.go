package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// fakeDaemon serves packets over net.Pipe connections handed out by dial.
type fakeDaemon struct {
	handler func(p wire.Packet) []wire.Packet

	mu        sync.Mutex
	conns     []net.Conn
	dials     int
	failDials int
	received  []wire.Packet
}

func (d *fakeDaemon) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failDials {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.conns = append(d.conns, server)
	go d.serve(server)
	return client, nil
}

func (d *fakeDaemon) serve(conn net.Conn) {
	r := NewPacketReader(conn)
	w := NewPacketWriter(conn)
	for {
		p, err := r.ReadPacket()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.received = append(d.received, p)
		handler := d.handler
		d.mu.Unlock()

		if handler == nil {
			continue
		}
		for _, out := range handler(p) {
			if err := w.WritePacket(out); err != nil {
				return
			}
		}
	}
}

func (d *fakeDaemon) push(t *testing.T, idx int, p wire.Packet) {
	t.Helper()
	d.mu.Lock()
	conn := d.conns[idx]
	d.mu.Unlock()
	require.NoError(t, NewPacketWriter(conn).WritePacket(p))
}

func (d *fakeDaemon) closeConn(idx int) {
	d.mu.Lock()
	conn := d.conns[idx]
	d.mu.Unlock()
	conn.Close()
}

func (d *fakeDaemon) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func reply(req wire.Packet, payload []byte) wire.Packet {
	return wire.Packet{
		Header: wire.Header{
			UID:              req.Header.UID,
			FunctionID:       req.Header.FunctionID,
			Sequence:         req.Header.Sequence,
			ResponseExpected: true,
		},
		Payload: payload,
	}
}

func callback(uid uint32, fid uint8, payload []byte) wire.Packet {
	return wire.Packet{Header: wire.Header{UID: uid, FunctionID: fid}, Payload: payload}
}

func newTestConn(d *fakeDaemon, mutate func(*Config)) *Conn {
	cfg := Config{
		Dial:           d.dial,
		ProbeInterval:  time.Hour,
		RetryDelay:     10 * time.Millisecond,
		RequestTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func connect(t *testing.T, c *Conn) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background(), "localhost", DefaultPort))
	t.Cleanup(func() { _ = c.Disconnect() })
}

func TestConnCallReturnsResponsePayload(t *testing.T) {
	d := &fakeDaemon{handler: func(p wire.Packet) []wire.Packet {
		if p.Header.FunctionID == 14 {
			return []wire.Packet{reply(p, []byte{0xD2, 0x04})}
		}
		return nil
	}}
	c := newTestConn(d, nil)
	connect(t, c)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "localhost:4223", c.RemoteAddr())

	payload, err := c.Call(context.Background(), 100, 14, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD2, 0x04}, payload)
}

func TestConnCallDeviceError(t *testing.T) {
	d := &fakeDaemon{handler: func(p wire.Packet) []wire.Packet {
		r := reply(p, nil)
		r.Header.ErrorCode = wire.ErrorCodeFunctionNotSupported
		return []wire.Packet{r}
	}}
	c := newTestConn(d, nil)
	connect(t, c)

	_, err := c.Call(context.Background(), 100, 8, []byte{0, 3}, true)

	var devErr *wire.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, wire.ErrorCodeFunctionNotSupported, devErr.Code)
	assert.Equal(t, uint8(8), devErr.FunctionID)
}

func TestConnCallTimeout(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, func(cfg *Config) { cfg.RequestTimeout = 30 * time.Millisecond })
	connect(t, c)

	_, err := c.Call(context.Background(), 1, 5, nil, true)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConnCallContextCanceled(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)
	connect(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Call(ctx, 1, 5, nil, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnCallWithoutResponse(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)
	connect(t, c)

	payload, err := c.Call(context.Background(), 7, 3, nil, false)
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.received) == 1 && !d.received[0].Header.ResponseExpected
	}, time.Second, 5*time.Millisecond)
}

func TestConnNotConnected(t *testing.T) {
	c := New(Config{})

	_, err := c.Call(context.Background(), 1, 1, nil, true)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Enumerate(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnConnectTwice(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)
	connect(t, c)

	err := c.Connect(context.Background(), "localhost", DefaultPort)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnConnectFailure(t *testing.T) {
	d := &fakeDaemon{failDials: 1}
	c := newTestConn(d, nil)

	err := c.Connect(context.Background(), "daemon.local", 4223)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "daemon.local:4223", connErr.Addr)
	assert.Equal(t, StateDisconnected, c.State())

	// the next attempt succeeds
	connect(t, c)
}

func TestConnEnumerateDeliversIdentities(t *testing.T) {
	ident := wire.Enumeration{
		UID:              "abc",
		ConnectedUID:     "6qzRzc",
		Position:         'a',
		DeviceIdentifier: 212,
		EnumerationType:  wire.EnumerationAvailable,
	}
	d := &fakeDaemon{handler: func(p wire.Packet) []wire.Packet {
		if p.Header.FunctionID != wire.FunctionEnumerate {
			return nil
		}
		return []wire.Packet{callback(9, wire.CallbackEnumerate, ident.Encode())}
	}}
	c := newTestConn(d, nil)

	got := make(chan wire.Enumeration, 1)
	c.OnEnumerate(func(e wire.Enumeration) { got <- e })
	connect(t, c)

	require.NoError(t, c.Enumerate(context.Background()))

	select {
	case e := <-got:
		assert.Equal(t, ident, e)
	case <-time.After(time.Second):
		t.Fatal("enumeration not delivered")
	}

	d.mu.Lock()
	req := d.received[0]
	d.mu.Unlock()
	assert.Equal(t, wire.BroadcastUID, req.Header.UID)
	assert.NotZero(t, req.Header.Sequence)
}

func TestConnCallbacksKeepOrderPerModule(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)

	var mu sync.Mutex
	var seen []byte
	c.RegisterCallback(7, 13, func(payload []byte) {
		mu.Lock()
		seen = append(seen, payload[0])
		mu.Unlock()
	})
	connect(t, c)

	for i := 0; i < 50; i++ {
		d.push(t, 0, callback(7, 13, []byte{byte(i)}))
	}
	// unknown function and unknown module are ignored
	d.push(t, 0, callback(7, 99, []byte{0xFF}))
	d.push(t, 0, callback(8, 13, []byte{0xFF}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 50
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		assert.Equal(t, byte(i), v)
	}
}

func TestConnDeregisterCallbacks(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)

	calls := make(chan struct{}, 4)
	c.RegisterCallback(7, 13, func([]byte) { calls <- struct{}{} })
	connect(t, c)

	d.push(t, 0, callback(7, 13, []byte{1}))
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("callback not delivered")
	}

	c.DeregisterCallbacks(7)
	d.push(t, 0, callback(7, 13, []byte{2}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, calls, 0)
}

func TestConnSynchronousCallInsideCallback(t *testing.T) {
	d := &fakeDaemon{handler: func(p wire.Packet) []wire.Packet {
		if p.Header.FunctionID == 14 {
			return []wire.Packet{reply(p, []byte{0x10, 0x27})}
		}
		return nil
	}}
	c := newTestConn(d, func(cfg *Config) { cfg.DispatchWorkers = 1 })

	result := make(chan []byte, 1)
	c.RegisterCallback(5, 15, func([]byte) {
		payload, err := c.Call(context.Background(), 5, 14, nil, true)
		if err != nil {
			t.Errorf("Call inside callback: %v", err)
			return
		}
		result <- payload
	})
	connect(t, c)

	d.push(t, 0, callback(5, 15, []byte{0, 0, 0, 0}))

	select {
	case p := <-result:
		assert.Equal(t, []byte{0x10, 0x27}, p)
	case <-time.After(time.Second):
		t.Fatal("synchronous call inside callback deadlocked")
	}
}

func TestConnAutoReconnect(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, nil)

	connected := make(chan ConnectReason, 4)
	disconnected := make(chan DisconnectReason, 4)
	c.OnConnected(func(r ConnectReason) { connected <- r })
	c.OnDisconnected(func(r DisconnectReason) { disconnected <- r })
	connect(t, c)

	assert.Equal(t, ConnectReasonRequest, <-connected)

	d.closeConn(0)

	select {
	case r := <-disconnected:
		assert.Equal(t, DisconnectReasonShutdown, r)
	case <-time.After(time.Second):
		t.Fatal("disconnect not reported")
	}
	select {
	case r := <-connected:
		assert.Equal(t, ConnectReasonAutoReconnect, r)
	case <-time.After(time.Second):
		t.Fatal("reconnect not reported")
	}

	assert.Equal(t, 2, d.dialCount())
	assert.Equal(t, StateConnected, c.State())
}

func TestConnLossFailsPendingCalls(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, func(cfg *Config) { cfg.DisableAutoReconnect = true })
	connect(t, c)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), 1, 5, nil, true)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.received) == 1
	}, time.Second, 5*time.Millisecond)
	d.closeConn(0)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("pending call not failed")
	}

	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
}

func TestConnDisconnectStopsReconnect(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, func(cfg *Config) { cfg.RetryDelay = time.Hour })
	require.NoError(t, c.Connect(context.Background(), "localhost", DefaultPort))

	d.closeConn(0)
	require.Eventually(t, func() bool { return c.State() == StateReconnecting }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
}

func TestConnProbeSent(t *testing.T) {
	d := &fakeDaemon{}
	c := newTestConn(d, func(cfg *Config) { cfg.ProbeInterval = 10 * time.Millisecond })
	connect(t, c)

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, p := range d.received {
			if p.Header.FunctionID == wire.FunctionDisconnectProbe {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestReasonStrings(t *testing.T) {
	assert.Equal(t, "request", ConnectReasonRequest.String())
	assert.Equal(t, "auto-reconnect", ConnectReasonAutoReconnect.String())
	assert.Equal(t, "error", DisconnectReasonError.String())
	assert.Equal(t, "shutdown", DisconnectReasonShutdown.String())
	assert.Equal(t, "RECONNECTING", StateReconnecting.String())
}
