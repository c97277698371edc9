package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cscode-eu/weatherstation/pkg/log"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Connection defaults.
const (
	DefaultPort           = 4223
	DefaultRequestTimeout = 2500 * time.Millisecond
	DefaultRetryDelay     = time.Second
)

// State is the state of the daemon connection.
type State int32

const (
	// StateDisconnected indicates no connection and no reconnect attempts.
	StateDisconnected State = iota

	// StateConnected indicates an open socket.
	StateConnected

	// StateReconnecting indicates the socket was lost and is being redialed.
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// ConnectReason tells why a connected callback fired.
type ConnectReason uint8

const (
	ConnectReasonRequest       ConnectReason = 0
	ConnectReasonAutoReconnect ConnectReason = 1
)

func (r ConnectReason) String() string {
	switch r {
	case ConnectReasonRequest:
		return "request"
	case ConnectReasonAutoReconnect:
		return "auto-reconnect"
	default:
		return "unknown"
	}
}

// DisconnectReason tells why a disconnected callback fired.
type DisconnectReason uint8

const (
	DisconnectReasonRequest  DisconnectReason = 0
	DisconnectReasonError    DisconnectReason = 1
	DisconnectReasonShutdown DisconnectReason = 2
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectReasonRequest:
		return "request"
	case DisconnectReasonError:
		return "error"
	case DisconnectReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// DialFunc opens the network connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a Conn.
type Config struct {
	// RequestTimeout bounds the wait for a response (default: 2.5s).
	RequestTimeout time.Duration

	// ProbeInterval is the disconnect probe interval (default: 5s).
	ProbeInterval time.Duration

	// RetryDelay is the delay between automatic reconnect attempts (default: 1s).
	RetryDelay time.Duration

	// DispatchWorkers is the number of callback workers (default: 4).
	DispatchWorkers int

	// DispatchQueue is the per-worker queue length (default: 256).
	DispatchQueue int

	// DisableAutoReconnect turns off redialing after an unrequested loss.
	DisableAutoReconnect bool

	// Dial overrides how the socket is opened.
	Dial DialFunc

	// Logger for operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger captures every packet and state change (optional).
	ProtocolLogger log.Logger
}

type pendingKey struct {
	uid uint32
	fid uint8
	seq uint8
}

type result struct {
	pkt wire.Packet
	err error
}

// Conn is a connection to a Brick Daemon.
type Conn struct {
	config Config

	mu         sync.Mutex
	state      State
	connecting bool
	addr       string
	connID     string
	sock       net.Conn
	writer     *PacketWriter
	prober     *Prober
	disp       *dispatcher
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[pendingKey]chan result
	nextSeq   uint8

	cbMu           sync.RWMutex
	callbacks      map[uint32]map[uint8]func([]byte)
	onEnumerate    func(wire.Enumeration)
	onConnected    func(ConnectReason)
	onDisconnected func(DisconnectReason)
}

// New creates a Conn (not yet connected).
func New(config Config) *Conn {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultProbeInterval
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.DispatchWorkers <= 0 {
		config.DispatchWorkers = DefaultDispatchWorkers
	}
	if config.DispatchQueue <= 0 {
		config.DispatchQueue = DefaultDispatchQueue
	}
	if config.Dial == nil {
		d := &net.Dialer{}
		config.Dial = d.DialContext
	}

	return &Conn{
		config:    config,
		pending:   make(map[pendingKey]chan result),
		callbacks: make(map[uint32]map[uint8]func([]byte)),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteAddr returns the daemon address of the last Connect.
func (c *Conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// DroppedCallbacks returns how many callbacks were dropped because a
// worker queue was full.
func (c *Conn) DroppedCallbacks() uint64 {
	c.mu.Lock()
	d := c.disp
	c.mu.Unlock()
	if d == nil {
		return 0
	}
	return d.droppedCount()
}

// Connect dials the daemon at host:port.
func (c *Conn) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	if c.state != StateDisconnected || c.connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	sock, err := c.config.Dial(ctx, "tcp", addr)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		return &ConnectionError{Addr: addr, Err: err}
	}
	c.addr = addr
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.disp = newDispatcher(c.config.DispatchWorkers, c.config.DispatchQueue, c.config.Logger)
	c.attachLocked(sock)
	c.mu.Unlock()

	c.infoLog("connected", "addr", addr)
	c.emitState(StateDisconnected, StateConnected, ConnectReasonRequest.String())
	c.notifyConnected(ConnectReasonRequest)
	return nil
}

// attachLocked wires a freshly dialed socket. c.mu must be held.
func (c *Conn) attachLocked(sock net.Conn) {
	connID := uuid.NewString()

	reader := NewPacketReader(sock)
	reader.SetLogger(c.config.ProtocolLogger, connID)
	writer := NewPacketWriter(sock)
	writer.SetLogger(c.config.ProtocolLogger, connID)

	c.sock = sock
	c.writer = writer
	c.connID = connID
	c.state = StateConnected
	c.prober = NewProber(c.config.ProbeInterval,
		func() error {
			return writer.WritePacket(wire.NewRequest(wire.BroadcastUID, wire.FunctionDisconnectProbe, c.sequence(), false, nil))
		},
		func(err error) {
			c.handleLoss(sock, fmt.Errorf("disconnect probe: %w", err))
		},
	)

	c.wg.Add(1)
	go c.readLoop(sock, reader)
	c.prober.Start(c.lifeCtx)
}

// Disconnect closes the connection and stops automatic reconnects.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	old := c.state
	sock, prober, cancel, disp := c.sock, c.prober, c.lifeCancel, c.disp
	c.sock = nil
	c.writer = nil
	c.prober = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	cancel()
	if prober != nil {
		prober.Stop()
	}
	if sock != nil {
		sock.Close()
	}
	c.wg.Wait()
	c.failPending(ErrNotConnected)

	c.infoLog("disconnected", "reason", DisconnectReasonRequest.String())
	c.emitState(old, StateDisconnected, DisconnectReasonRequest.String())
	c.notifyDisconnected(DisconnectReasonRequest)
	disp.stop()
	return nil
}

// Enumerate broadcasts an enumerate request. Answers arrive through the
// OnEnumerate callback.
func (c *Conn) Enumerate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := c.currentWriter()
	if w == nil {
		return ErrNotConnected
	}
	return w.WritePacket(wire.NewRequest(wire.BroadcastUID, wire.FunctionEnumerate, c.sequence(), false, nil))
}

// Call sends a request to a module. With expectResponse it waits for the
// matching response and returns its payload, or a *wire.DeviceError if the
// module reported one.
func (c *Conn) Call(ctx context.Context, uid uint32, fid uint8, payload []byte, expectResponse bool) ([]byte, error) {
	w := c.currentWriter()
	if w == nil {
		return nil, ErrNotConnected
	}

	if !expectResponse {
		return nil, w.WritePacket(wire.NewRequest(uid, fid, c.sequence(), false, payload))
	}

	key, ch, err := c.addPending(uid, fid)
	if err != nil {
		return nil, err
	}
	defer c.removePending(key, ch)

	if err := w.WritePacket(wire.NewRequest(uid, fid, key.seq, true, payload)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if err := res.pkt.Err(); err != nil {
			return nil, err
		}
		return res.pkt.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: uid %s function %d", ErrTimeout, wire.EncodeUID(uid), fid)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterCallback installs fn for callbacks with function id fid from uid,
// replacing any previous registration.
func (c *Conn) RegisterCallback(uid uint32, fid uint8, fn func([]byte)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	m, ok := c.callbacks[uid]
	if !ok {
		m = make(map[uint8]func([]byte))
		c.callbacks[uid] = m
	}
	m[fid] = fn
}

// DeregisterCallbacks removes every callback registered for uid.
func (c *Conn) DeregisterCallbacks(uid uint32) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	delete(c.callbacks, uid)
}

// OnEnumerate sets the enumeration callback.
func (c *Conn) OnEnumerate(fn func(wire.Enumeration)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onEnumerate = fn
}

// OnConnected sets the connected callback.
func (c *Conn) OnConnected(fn func(ConnectReason)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnected = fn
}

// OnDisconnected sets the disconnected callback.
func (c *Conn) OnDisconnected(fn func(DisconnectReason)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnected = fn
}

func (c *Conn) currentWriter() *PacketWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer
}

func (c *Conn) sequence() uint8 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.nextSeq = c.nextSeq%wire.MaxSequence + 1
	return c.nextSeq
}

func (c *Conn) addPending(uid uint32, fid uint8) (pendingKey, chan result, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for i := 0; i < int(wire.MaxSequence); i++ {
		c.nextSeq = c.nextSeq%wire.MaxSequence + 1
		key := pendingKey{uid: uid, fid: fid, seq: c.nextSeq}
		if _, busy := c.pending[key]; !busy {
			ch := make(chan result, 1)
			c.pending[key] = ch
			return key, ch, nil
		}
	}
	return pendingKey{}, nil, ErrSequenceBusy
}

func (c *Conn) removePending(key pendingKey, ch chan result) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending[key] == ch {
		delete(c.pending, key)
	}
}

func (c *Conn) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for key, ch := range c.pending {
		ch <- result{err: err}
		delete(c.pending, key)
	}
}

func (c *Conn) readLoop(sock net.Conn, reader *PacketReader) {
	defer c.wg.Done()

	for {
		pkt, err := reader.ReadPacket()
		if err != nil {
			c.handleLoss(sock, err)
			return
		}
		c.route(pkt)
	}
}

// route delivers a packet. Responses go to the waiting caller directly;
// callbacks are queued on the dispatcher.
func (c *Conn) route(pkt wire.Packet) {
	h := pkt.Header

	if !h.IsCallback() {
		key := pendingKey{uid: h.UID, fid: h.FunctionID, seq: h.Sequence}
		c.pendingMu.Lock()
		ch, ok := c.pending[key]
		if ok {
			delete(c.pending, key)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.debugLog("unexpected response", "uid", wire.EncodeUID(h.UID), "fid", h.FunctionID, "seq", h.Sequence)
			return
		}
		ch <- result{pkt: pkt}
		return
	}

	if h.FunctionID == wire.CallbackEnumerate {
		c.cbMu.RLock()
		fn := c.onEnumerate
		c.cbMu.RUnlock()
		if fn == nil {
			return
		}
		e, err := wire.DecodeEnumeration(pkt.Payload)
		if err != nil {
			c.errorLog("malformed enumeration", "uid", wire.EncodeUID(h.UID), "error", err)
			return
		}
		c.submit(h.UID, func() { fn(e) })
		return
	}

	c.cbMu.RLock()
	fn := c.callbacks[h.UID][h.FunctionID]
	c.cbMu.RUnlock()
	if fn == nil {
		return
	}
	payload := pkt.Payload
	c.submit(h.UID, func() { fn(payload) })
}

func (c *Conn) submit(key uint32, fn func()) {
	c.mu.Lock()
	d := c.disp
	c.mu.Unlock()
	if d != nil {
		d.submit(key, fn)
	}
}

// handleLoss tears down sock after an unrequested failure. It is a no-op if
// sock is no longer the active socket.
func (c *Conn) handleLoss(sock net.Conn, cause error) {
	c.mu.Lock()
	if c.sock != sock || sock == nil {
		c.mu.Unlock()
		return
	}
	prober := c.prober
	c.sock = nil
	c.writer = nil
	c.prober = nil

	reconnect := !c.config.DisableAutoReconnect
	next := StateDisconnected
	if reconnect {
		next = StateReconnecting
		c.wg.Add(1)
		go c.reconnectLoop(c.lifeCtx)
	}
	c.state = next
	disp, cancel := c.disp, c.lifeCancel
	c.mu.Unlock()

	sock.Close()
	if prober != nil {
		prober.Stop()
	}
	c.failPending(ErrConnectionLost)

	reason := DisconnectReasonError
	if errors.Is(cause, io.EOF) {
		reason = DisconnectReasonShutdown
	}
	c.errorLog("connection lost", "reason", reason.String(), "error", cause)
	c.emitState(StateConnected, next, reason.String())
	c.notifyDisconnected(reason)

	if !reconnect {
		cancel()
		disp.stop()
	}
}

func (c *Conn) reconnectLoop(ctx context.Context) {
	defer c.wg.Done()

	timer := time.NewTimer(c.config.RetryDelay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		c.mu.Lock()
		addr := c.addr
		c.mu.Unlock()

		sock, err := c.config.Dial(ctx, "tcp", addr)
		if err != nil {
			c.debugLog("reconnect failed", "addr", addr, "attempt", attempt, "error", err)
			timer.Reset(c.config.RetryDelay)
			continue
		}

		c.mu.Lock()
		if ctx.Err() != nil || c.state != StateReconnecting {
			c.mu.Unlock()
			sock.Close()
			return
		}
		c.attachLocked(sock)
		c.mu.Unlock()

		c.infoLog("reconnected", "addr", addr, "attempts", attempt)
		c.emitState(StateReconnecting, StateConnected, ConnectReasonAutoReconnect.String())
		c.notifyConnected(ConnectReasonAutoReconnect)
		return
	}
}

func (c *Conn) notifyConnected(reason ConnectReason) {
	c.cbMu.RLock()
	fn := c.onConnected
	c.cbMu.RUnlock()
	if fn != nil {
		c.submit(0, func() { fn(reason) })
	}
}

func (c *Conn) notifyDisconnected(reason DisconnectReason) {
	c.cbMu.RLock()
	fn := c.onDisconnected
	c.cbMu.RUnlock()
	if fn != nil {
		c.submit(0, func() { fn(reason) })
	}
}

func (c *Conn) emitState(from, to State, reason string) {
	c.mu.Lock()
	connID, addr := c.connID, c.addr
	c.mu.Unlock()

	log.Emit(c.config.ProtocolLogger, log.Event{
		ConnectionID: connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (c *Conn) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}

func (c *Conn) infoLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, args...)
	}
}

func (c *Conn) errorLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, args...)
	}
}
