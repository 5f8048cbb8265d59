package dbg

import (
	"sync"
	"time"
)

// EventType is a bitmask flag identifying the kind of an Event. Listeners
// register interest in a subset of these bits.
type EventType uint32

const (
	// EventStateChanged is broadcast on the public broadcaster whenever a
	// stop, crash, exit, or detach is surfaced to clients.
	EventStateChanged EventType = 1 << iota
	// EventInterrupt is broadcast alongside EventStateChanged when a stop
	// was caused by an explicit Halt.
	EventInterrupt
	// EventStdout carries captured inferior standard-output bytes.
	EventStdout
	// EventStderr carries captured inferior standard-error bytes.
	EventStderr

	// eventExit is a reserved bit outside the public client mask. No
	// event of this type is broadcast: destruction wakes waiters by
	// closing their channels (Broadcaster.shutdown), which Listener.Wait
	// treats as "stop waiting, return none".
	eventExit EventType = 1 << 31
)

// StateChangedPayload is the payload of an EventStateChanged event.
type StateChangedPayload struct {
	Process    *Process
	NewState   State
	Restarted  bool
	Interrupted bool
}

// BytesPayload is the payload of stdout/stderr events.
type BytesPayload struct {
	Data []byte
}

// Event carries a typed, tagged payload broadcast by a Broadcaster.
type Event struct {
	BroadcasterName string
	Type            EventType
	StateChanged    *StateChangedPayload
	Bytes           *BytesPayload
}

// Broadcaster fans typed events out to every currently registered
// Listener whose mask intersects the event's type. It plays the role of
// the teacher's Connection dispatch loop (connection.go): one mutex
// guards a small registry, and delivery is a non-blocking send into
// each listener's buffered channel, made while that mutex is held, so a
// slow listener cannot stall the broadcaster.
type Broadcaster struct {
	name string

	mu        sync.Mutex
	listeners map[*Listener]EventType
	closed    bool
}

// NewBroadcaster creates a Broadcaster with a stable name, used only for
// diagnostics.
func NewBroadcaster(name string) *Broadcaster {
	return &Broadcaster{
		name:      name,
		listeners: make(map[*Listener]EventType),
	}
}

// Name returns the broadcaster's stable name.
func (b *Broadcaster) Name() string { return b.name }

// NewListener creates a Listener registered with b for the given mask.
func (b *Broadcaster) NewListener(mask EventType) *Listener {
	l := &Listener{
		mask: mask,
		ch:   make(chan Event, 64),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l] = mask
	if b.closed {
		close(l.ch)
	}
	return l
}

// RemoveListener unregisters l from b. Further events broadcast by b will
// not be delivered to l.
func (b *Broadcaster) RemoveListener(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, l)
}

// Broadcast enqueues event to every listener whose mask includes
// event.Type. If unique is true and an equal-typed event is already
// queued for a listener, no duplicate is enqueued for that listener.
//
// Ordering guarantee: events from a single Broadcaster are delivered to
// a single Listener in the order Broadcast was called (each listener has
// its own FIFO channel).
func (b *Broadcaster) Broadcast(event Event, unique bool) {
	event.BroadcasterName = b.name

	b.mu.Lock()
	defer b.mu.Unlock()

	for l, mask := range b.listeners {
		if mask&event.Type == 0 {
			continue
		}
		l.enqueue(event, unique)
	}
}

// shutdown wakes every registered listener exactly once with the
// internal exit event, then marks the broadcaster closed so that new
// listeners are handed an already-closed channel (per spec §4.1
// cancellation: "a destroyed Process must be usable by no caller").
func (b *Broadcaster) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		l.mu.Lock()
		if !l.exited {
			l.exited = true
			close(l.ch)
		}
		l.mu.Unlock()
	}
}

// Listener receives events matching its mask from one Broadcaster in
// FIFO order.
type Listener struct {
	mask EventType

	mu       sync.Mutex
	exited   bool
	pendingUnique map[EventType]bool
	ch       chan Event
}

func (l *Listener) enqueue(event Event, unique bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exited {
		return
	}
	if unique {
		if l.pendingUnique == nil {
			l.pendingUnique = make(map[EventType]bool)
		}
		if l.pendingUnique[event.Type] {
			return
		}
		l.pendingUnique[event.Type] = true
	}

	select {
	case l.ch <- event:
	default:
		// A listener that never drains is a programming error in the
		// client, not the core's problem to solve by blocking the
		// broadcaster; drop the oldest pending event to make room rather
		// than stalling every other listener.
		select {
		case <-l.ch:
		default:
		}
		l.ch <- event
	}
}

// Wait blocks up to timeout for the next matching event. It returns
// (event, true) if one arrived, or (Event{}, false) on timeout or if the
// owning process was destroyed while waiting.
func (l *Listener) Wait(timeout time.Duration) (Event, bool) {
	var timer *time.Timer
	var after <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		after = timer.C
	}

	select {
	case e, ok := <-l.ch:
		if !ok {
			return Event{}, false
		}
		l.clearUnique(e.Type)
		return e, true
	case <-after:
		return Event{}, false
	}
}

func (l *Listener) clearUnique(t EventType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingUnique != nil {
		delete(l.pendingUnique, t)
	}
}
