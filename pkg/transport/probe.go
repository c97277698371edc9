package transport

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeInterval is the interval between disconnect probes.
const DefaultProbeInterval = 5 * time.Second

// Prober sends disconnect probes at a fixed interval and reports the first
// failed send. It never waits for an answer: the daemon does not reply to
// probes, a dead socket shows up as a write error instead.
type Prober struct {
	interval  time.Duration
	sendProbe func() error
	onFailure func(error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	sent    uint64
}

// NewProber creates a prober. onFailure is called at most once per Start.
func NewProber(interval time.Duration, sendProbe func() error, onFailure func(error)) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{
		interval:  interval,
		sendProbe: sendProbe,
		onFailure: onFailure,
	}
}

// Start begins probing until ctx is done or Stop is called.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.loop(ctx, stopCh, done)
}

// Stop stops probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	<-done
}

// IsRunning returns true while probing is active.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Sent returns the number of probes sent successfully.
func (p *Prober) Sent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Prober) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.sendProbe(); err != nil {
				p.mu.Lock()
				p.running = false
				p.mu.Unlock()
				if p.onFailure != nil {
					p.onFailure(err)
				}
				return
			}
			p.mu.Lock()
			p.sent++
			p.mu.Unlock()
		}
	}
}
