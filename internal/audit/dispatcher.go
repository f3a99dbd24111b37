package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how the dispatcher buffers events on their way to the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events when the buffer is full instead of making the auth
	// operation wait for the sink.
	DropIfFull bool
}

// Stats is a point-in-time view of what happened to emitted events.
type Stats struct {
	Delivered uint64
	// Shed counts events refused because the buffer was full.
	Shed uint64
	// Failed counts events whose delivery panicked inside the sink.
	Failed uint64
	// LostByType breaks Shed+Failed down by Event.EventType, e.g. "otp_issue".
	LostByType map[string]uint64
}

// Dispatcher hands events to a sink from a single background goroutine so that
// Register, Login and the recovery operations never wait on audit I/O unless asked to.
type Dispatcher struct {
	sink Sink
	shed bool

	queue   chan Event
	stop    chan struct{}
	worker  sync.WaitGroup
	stopped atomic.Bool
	once    sync.Once

	delivered atomic.Uint64
	shedCount atomic.Uint64
	failed    atomic.Uint64

	mu         sync.Mutex
	lostByType map[string]uint64
}

// NewDispatcher returns nil when auditing is disabled. Every method is safe on a nil
// *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		shed:       cfg.DropIfFull,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		lostByType: make(map[string]uint64),
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()

	for {
		select {
		case ev := <-d.queue:
			d.forward(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain forwards whatever is still queued once Close has been called.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.forward(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) forward(ev Event) {
	defer func() {
		if recover() != nil {
			d.failed.Add(1)
			d.noteLost(ev.EventType)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

func (d *Dispatcher) noteLost(eventType string) {
	d.mu.Lock()
	d.lostByType[eventType]++
	d.mu.Unlock()
}

// Emit queues ev. An event without a timestamp is stamped with the current UTC time.
//
// When the buffer is full, DropIfFull sheds the event. Otherwise Emit waits for room,
// for ctx to end, or for Close. Events emitted after Close are ignored and not counted.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if d.shed {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.shedCount.Add(1)
			d.noteLost(ev.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops intake and blocks until queued events have reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Pending reports how many events are queued but not yet forwarded.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
}

// Dropped is the number of events that never reached the sink, shed or failed.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.shedCount.Load() + d.failed.Load()
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{LostByType: map[string]uint64{}}
	}

	d.mu.Lock()
	lost := make(map[string]uint64, len(d.lostByType))
	for k, v := range d.lostByType {
		lost[k] = v
	}
	d.mu.Unlock()

	return Stats{
		Delivered:  d.delivered.Load(),
		Shed:       d.shedCount.Load(),
		Failed:     d.failed.Load(),
		LostByType: lost,
	}
}
