// Package mock provides an in-memory bus for testing code that talks to
// modules through device.Caller or drives a connection through
// connection.Bus.
package mock

import (
	"context"
	"sync"

	"github.com/cscode-eu/weatherstation/pkg/transport"
	"github.com/cscode-eu/weatherstation/pkg/wire"
)

// Request is a request the mock bus received.
type Request struct {
	UID            uint32
	FunctionID     uint8
	Payload        []byte
	ExpectResponse bool
}

type fnKey struct {
	uid uint32
	fid uint8
}

// Bus is a scripted bus. Responses and errors are keyed by UID and function
// id; unscripted requests that expect a response get an empty payload
// unless Strict is set.
type Bus struct {
	// Strict makes unscripted requests fail with ErrNoResponse.
	Strict bool

	mu        sync.Mutex
	requests  []Request
	responses map[fnKey][]byte
	errs      map[fnKey]error
	callbacks map[uint32]map[uint8]func([]byte)

	onEnumerate func(wire.Enumeration)
	onConnected func(transport.ConnectReason)

	connected     bool
	connectErrs   []error
	enumerateErrs []error
	connects      int
	enumerates    int
	disconnects   int
	onConnect     func(n int)
}

// NewBus creates an empty mock bus.
func NewBus() *Bus {
	return &Bus{
		responses: make(map[fnKey][]byte),
		errs:      make(map[fnKey]error),
		callbacks: make(map[uint32]map[uint8]func([]byte)),
	}
}

// SetResponse scripts the payload returned for uid/fid.
func (b *Bus) SetResponse(uid uint32, fid uint8, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[fnKey{uid, fid}] = payload
}

// SetError scripts an error for uid/fid. A nil err clears it.
func (b *Bus) SetError(uid uint32, fid uint8, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, fnKey{uid, fid})
		return
	}
	b.errs[fnKey{uid, fid}] = err
}

// Call records the request and returns the scripted answer.
func (b *Bus) Call(ctx context.Context, uid uint32, fid uint8, payload []byte, expectResponse bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, Request{
		UID:            uid,
		FunctionID:     fid,
		Payload:        append([]byte(nil), payload...),
		ExpectResponse: expectResponse,
	})

	key := fnKey{uid, fid}
	if err, ok := b.errs[key]; ok {
		return nil, err
	}
	if !expectResponse {
		return nil, nil
	}
	if resp, ok := b.responses[key]; ok {
		return resp, nil
	}
	if b.Strict {
		return nil, ErrNoResponse
	}
	return []byte{}, nil
}

// RegisterCallback implements device.Caller.
func (b *Bus) RegisterCallback(uid uint32, fid uint8, fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.callbacks[uid]
	if !ok {
		m = make(map[uint8]func([]byte))
		b.callbacks[uid] = m
	}
	m[fid] = fn
}

// DeregisterCallbacks implements device.Caller.
func (b *Bus) DeregisterCallbacks(uid uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.callbacks, uid)
}

// HasCallback reports whether a callback is registered for uid/fid.
func (b *Bus) HasCallback(uid uint32, fid uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.callbacks[uid][fid]
	return ok
}

// Fire invokes the callback registered for uid/fid synchronously. It
// returns false if none is registered.
func (b *Bus) Fire(uid uint32, fid uint8, payload []byte) bool {
	b.mu.Lock()
	fn := b.callbacks[uid][fid]
	b.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(payload)
	return true
}

// Requests returns a copy of every request received.
func (b *Bus) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// RequestsFor returns the requests sent to uid.
func (b *Bus) RequestsFor(uid uint32) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Request
	for _, r := range b.requests {
		if r.UID == uid {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

// FailConnects makes the next n Connect calls fail with ErrRefused.
func (b *Bus) FailConnects(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.connectErrs = append(b.connectErrs, &transport.ConnectionError{Addr: "mock", Err: ErrRefused})
	}
}

// FailEnumerates makes the next n Enumerate calls fail with
// transport.ErrNotConnected.
func (b *Bus) FailEnumerates(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.enumerateErrs = append(b.enumerateErrs, transport.ErrNotConnected)
	}
}

// OnConnect registers a hook run after each successful Connect with the
// connect count.
func (b *Bus) OnConnect(fn func(n int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = fn
}

// Connect implements connection.Bus.
func (b *Bus) Connect(ctx context.Context, host string, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if len(b.connectErrs) > 0 {
		err := b.connectErrs[0]
		b.connectErrs = b.connectErrs[1:]
		b.mu.Unlock()
		return err
	}
	if b.connected {
		b.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	b.connected = true
	b.connects++
	n, hook := b.connects, b.onConnect
	b.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Disconnect implements connection.Bus.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return transport.ErrNotConnected
	}
	b.connected = false
	b.disconnects++
	return nil
}

// Enumerate implements connection.Bus.
func (b *Bus) Enumerate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.enumerateErrs) > 0 {
		err := b.enumerateErrs[0]
		b.enumerateErrs = b.enumerateErrs[1:]
		return err
	}
	if !b.connected {
		return transport.ErrNotConnected
	}
	b.enumerates++
	return nil
}

// OnEnumerate implements connection.Bus.
func (b *Bus) OnEnumerate(fn func(wire.Enumeration)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEnumerate = fn
}

// OnConnected implements connection.Bus.
func (b *Bus) OnConnected(fn func(transport.ConnectReason)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnected = fn
}

// Announce delivers an enumeration to the registered handler. It returns
// false if none is registered.
func (b *Bus) Announce(e wire.Enumeration) bool {
	b.mu.Lock()
	fn := b.onEnumerate
	b.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(e)
	return true
}

// SignalConnected delivers a connected callback with reason.
func (b *Bus) SignalConnected(reason transport.ConnectReason) bool {
	b.mu.Lock()
	fn := b.onConnected
	b.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(reason)
	return true
}

// Counts returns how often Connect, Enumerate and Disconnect succeeded.
func (b *Bus) Counts() (connects, enumerates, disconnects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects, b.enumerates, b.disconnects
}

// Connected reports whether the mock is connected.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}
