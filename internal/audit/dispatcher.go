package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls buffering. With DropIfFull unset, Emit waits for room
// until ctx is done. DrainTimeout bounds how long Close keeps delivering
// queued events; zero waits for the whole queue.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
}

// Dispatcher relays events to a sink on one goroutine. Events it has to
// discard, either because the buffer is full or because Close ran out of
// time, are counted per event type.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event

	// mu orders Emit against Close: once closed is set under the write
	// lock, nothing else enters queue.
	mu     sync.RWMutex
	closed bool

	stop     chan struct{}
	expired  chan struct{}
	finished chan struct{}

	dropped atomic.Uint64
	dropMu  sync.Mutex
	byType  map[string]uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when auditing is
// disabled; every method is safe on a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		expired:  make(chan struct{}),
		finished: make(chan struct{}),
		byType:   make(map[string]uint64),
	}
	go d.run()
	return d
}

// Emit queues event. After Close it is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

// Close stops intake and delivers what is queued, for at most
// DrainTimeout. Events still queued at the deadline count as dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if d.cfg.DrainTimeout > 0 {
			time.AfterFunc(d.cfg.DrainTimeout, func() { close(d.expired) })
		}
		close(d.stop)
	}
	d.mu.Unlock()

	<-d.finished
}

// Dropped reports every discarded event.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType reports discarded events keyed by Event.EventType.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()

	out := make(map[string]uint64, len(d.byType))
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.byType[eventType]++
	d.dropMu.Unlock()
}

func (d *Dispatcher) run() {
	defer close(d.finished)

	for {
		// Once stopped, only drain decides what is still delivered.
		select {
		case <-d.stop:
			d.drain()
			return
		default:
		}

		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers queued events until the queue is empty or the deadline
// set by Close passes. An event already inside the sink is not interrupted.
func (d *Dispatcher) drain() {
	for {
		select {
		case <-d.expired:
			d.abandon()
			return
		default:
		}

		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// abandon counts whatever is left in the queue as dropped.
func (d *Dispatcher) abandon() {
	for {
		select {
		case event := <-d.queue:
			d.drop(event.EventType)
		default:
			return
		}
	}
}
