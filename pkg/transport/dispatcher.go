package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Dispatch defaults.
const (
	DefaultDispatchWorkers = 4
	DefaultDispatchQueue   = 256
)

// dispatcher runs callbacks on a fixed set of workers. Work is sharded by
// key so that work for one key is executed in submission order.
type dispatcher struct {
	queues []chan func()
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func newDispatcher(workers, queueSize int, logger *slog.Logger) *dispatcher {
	if workers <= 0 {
		workers = DefaultDispatchWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultDispatchQueue
	}

	d := &dispatcher{
		queues: make([]chan func(), workers),
		logger: logger,
	}
	for i := range d.queues {
		q := make(chan func(), queueSize)
		d.queues[i] = q
		d.wg.Add(1)
		go d.worker(q)
	}
	return d
}

func (d *dispatcher) worker(q <-chan func()) {
	defer d.wg.Done()
	for fn := range q {
		d.run(fn)
	}
}

func (d *dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}

// submit queues fn on the worker owning key. It returns false if the
// dispatcher is stopped or the queue is full.
func (d *dispatcher) submit(key uint32, fn func()) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return false
	}
	select {
	case d.queues[int(key%uint32(len(d.queues)))] <- fn:
		return true
	default:
	}

	d.dropped.Add(1)
	if d.logger != nil {
		d.logger.Error("callback queue full, dropping callback", "shard", key%uint32(len(d.queues)))
	}
	return false
}

// stop closes the queues. Queued work still runs; stop does not wait for
// it so it may be called from a callback.
func (d *dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q)
	}
}

// wait blocks until every worker exited. Only valid after stop.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) droppedCount() uint64 {
	return d.dropped.Load()
}
