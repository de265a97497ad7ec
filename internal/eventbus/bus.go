package eventbus

import (
	"sync"
	"sync/atomic"
)

// SendOutcome reports what Emit did with an event.
type SendOutcome int

const (
	// Accepted means the event was enqueued for the dispatcher.
	Accepted SendOutcome = iota
	// Dropped means the bus was at capacity (or closed) and the event
	// was discarded.
	Dropped
)

func (o SendOutcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "dropped"
}

// Policy controls what happens when Emit is called against a full bus.
type Policy int

const (
	// DropNew discards the event being emitted, leaving the queue
	// contents unchanged. This is the default: it preserves whatever
	// ordering already made it into the queue.
	DropNew Policy = iota
	// DropOldest discards the single oldest queued event to make room,
	// then enqueues the new one. Use when freshness matters more than
	// completeness (e.g., TimerTick floods).
	DropOldest
)

// DropCounter receives notification of a dropped event. Telemetry
// implements this; a nil DropCounter is valid and simply means drops
// are not observable via metrics (they are still reflected in
// Stats().Dropped).
type DropCounter interface {
	IncDropped(source string)
}

// Bus is a bounded multi-producer, single-consumer FIFO queue of
// Event. Producers call Emit from any goroutine — including goroutines
// driven by OS callbacks — and it never blocks: a full bus drops
// rather than stalls the caller. There is exactly one logical
// consumer, Recv, though nothing prevents multiple goroutines from
// calling it (doing so would just split the stream between them,
// which is not what the dispatcher wants).
type Bus struct {
	policy  Policy
	drops   DropCounter
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// New creates a Bus with the given capacity (spec default 1000) and
// overflow policy. drops may be nil.
func New(capacity int, policy Policy, drops DropCounter) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		policy: policy,
		drops:  drops,
		ch:     make(chan Event, capacity),
	}
}

// Emit attempts to enqueue an event. It never blocks the caller. On a
// full bus it either drops the incoming event (DropNew) or evicts the
// single oldest queued event to make room (DropOldest). Safe to call
// concurrently from any number of goroutines and from OS callback
// threads.
func (b *Bus) Emit(e Event) SendOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.recordDrop(e.Source)
		return Dropped
	}

	select {
	case b.ch <- e:
		return Accepted
	default:
	}

	if b.policy == DropOldest {
		select {
		case <-b.ch:
		default:
		}
		select {
		case b.ch <- e:
			// The oldest event was evicted to make room; that eviction
			// itself counts as the drop the caller should see reflected
			// in telemetry, even though this particular Emit succeeded.
			b.recordDrop(e.Source)
			return Accepted
		default:
			// Another producer raced us for the freed slot.
		}
	}

	b.recordDrop(e.Source)
	return Dropped
}

func (b *Bus) recordDrop(source string) {
	b.dropped.Add(1)
	if b.drops != nil {
		b.drops.IncDropped(source)
	}
}

// Recv blocks until an event is available or the bus is closed and
// drained, in which case it returns the zero Event and ok=false.
func (b *Bus) Recv() (Event, bool) {
	e, ok := <-b.ch
	return e, ok
}

// Close is idempotent. After Close, Emit always returns Dropped and
// Recv returns remaining queued events before finally returning
// ok=false once drained. Close never discards already-queued events —
// the dispatcher still drains them, per the supervisor's "the bus
// never closes across a reload" invariant not applying here (this is
// final shutdown, not a reload).
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// DroppedTotal returns the cumulative number of events dropped by this
// bus across all sources, for tests and the CLI status command.
func (b *Bus) DroppedTotal() int64 {
	return b.dropped.Load()
}

// Len reports the number of events currently queued. Intended for
// tests and diagnostics; do not use it to make scheduling decisions
// since it is stale the instant it is read.
func (b *Bus) Len() int {
	return len(b.ch)
}

// Cap reports the configured capacity.
func (b *Bus) Cap() int {
	return cap(b.ch)
}
