package notify

import (
	"context"
	"sync"
	"time"

	"github.com/tabguard-ai/tabguard/internal/logredact"
)

// Sink consumes escalation events (log, file, webhook).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics counts emitter activity per sink.
type Metrics struct {
	enqueued uint64
	dropped  uint64
	success  map[string]uint64
	failure  map[string]uint64
}

func (m Metrics) Enqueued() uint64            { return m.enqueued }
func (m Metrics) Dropped() uint64             { return m.dropped }
func (m Metrics) Success(name string) uint64  { return m.success[name] }
func (m Metrics) Failures(name string) uint64 { return m.failure[name] }

// Emitter buffers events and delivers them to every sink from
// background workers. A full queue drops instead of blocking.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	metrics Metrics
	wg      sync.WaitGroup
}

// EmitterConfig sizes the emitter. Zero values take defaults.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts the delivery workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	e := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		shutdownTimeout: cfg.ShutdownTimeout,
		metrics: Metrics{
			success: make(map[string]uint64, len(sinks)),
			failure: make(map[string]uint64, len(sinks)),
		},
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues without blocking; a full queue counts a drop.
func (e *Emitter) Emit(_ context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.metrics.dropped++
		e.mu.Unlock()
		return
	}
	select {
	case e.queue <- ev:
		e.metrics.enqueued++
	default:
		e.metrics.dropped++
	}
	e.mu.Unlock()
}

// Close stops intake and waits up to the shutdown timeout for the
// queue to drain, then closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			logredact.Logf("notify: sink %s close error: %v", s.Name(), err)
		}
	}
}

// MetricsSnapshot copies the current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Metrics{
		enqueued: e.metrics.enqueued,
		dropped:  e.metrics.dropped,
		success:  make(map[string]uint64, len(e.metrics.success)),
		failure:  make(map[string]uint64, len(e.metrics.failure)),
	}
	for k, v := range e.metrics.success {
		out.success[k] = v
	}
	for k, v := range e.metrics.failure {
		out.failure[k] = v
	}
	return out
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		err := s.Deliver(context.Background(), ev)
		e.mu.Lock()
		if err != nil {
			e.metrics.failure[s.Name()]++
		} else {
			e.metrics.success[s.Name()]++
		}
		e.mu.Unlock()
		if err != nil {
			logredact.Logf("notify: sink %s failed: %v", s.Name(), err)
		}
	}
}
