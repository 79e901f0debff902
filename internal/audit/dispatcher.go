package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
//
// Critical lists event types that are never dropped. With DropIfFull they
// bypass the shared buffer: they go to a reserved queue and, when that is
// also full, Emit waits for room the way it does without DropIfFull.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Critical   []string
}

// Dispatcher forwards audit events to a sink from one goroutine. Critical
// events are delivered ahead of queued routine events.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	critical  map[string]struct{}
	events    chan Event
	priority  chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when auditing is disabled; a nil Dispatcher
// accepts and ignores every call.
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

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, t := range cfg.Critical {
		critical[t] = struct{}{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		critical: critical,
		events:   make(chan Event, cfg.BufferSize),
		priority: make(chan Event, max(cfg.BufferSize/4, 1)),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.priority:
			d.deliver(event)
			continue
		default:
		}

		select {
		case event := <-d.priority:
			d.deliver(event)
		case event := <-d.events:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.priority:
			d.deliver(event)
		case event := <-d.events:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
}

// IsCritical reports whether eventType is exempt from dropping.
func (d *Dispatcher) IsCritical(eventType string) bool {
	if d == nil {
		return false
	}
	_, ok := d.critical[eventType]
	return ok
}

// Emit queues event. Routine events are dropped and counted when the
// buffer is full and DropIfFull is set. Otherwise Emit waits for room until
// ctx ends or the dispatcher closes; a critical event lost that way is
// counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.IsCritical(event.EventType) {
		select {
		case d.priority <- event:
		case <-ctx.Done():
			d.dropped.Add(1)
		case <-d.done:
		}
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.events <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events and waits until everything queued has
// reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped counts events discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
