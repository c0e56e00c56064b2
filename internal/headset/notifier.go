package headset

import (
	"sync"
)

// defaultNotifyBuffer is the number of events queued for listeners before
// new events are dropped.
const defaultNotifyBuffer = 256

// Listener observes transition events. Listeners run on the notifier's
// delivery goroutine; a slow listener delays later events but never the
// transition that produced them.
type Listener func(ev TransitionEvent)

type namedListener struct {
	id   uint64
	name string
	fn   Listener
}

// Notifier fans transition events out to registered listeners.
//
// Notify never blocks: events go onto a bounded queue drained by a single
// delivery goroutine, so listeners see events in the order they were applied.
// A panicking listener is recovered and logged and the remaining listeners
// still receive the event.
type Notifier struct {
	mu        sync.RWMutex
	listeners []namedListener
	nextID    uint64

	queue   chan TransitionEvent
	running bool
	stopped bool
	wg      sync.WaitGroup

	logger Logger
}

// NewNotifier creates a notifier with the given queue size (0 selects the default).
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = defaultNotifyBuffer
	}
	return &Notifier{
		queue:  make(chan TransitionEvent, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for dropped events and listener failures.
func (n *Notifier) SetLogger(logger Logger) {
	n.mu.Lock()
	n.logger = logger
	n.mu.Unlock()
}

// Subscribe registers a listener and returns a function that removes it.
func (n *Notifier) Subscribe(name string, fn Listener) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, namedListener{id: id, name: name, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (n *Notifier) ListenerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Start launches the delivery goroutine. Calling Start twice is a no-op.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running || n.stopped {
		return
	}
	n.running = true
	n.wg.Add(1)
	go n.deliverLoop()
}

// Stop closes the queue, delivers what is already queued and waits for the
// delivery goroutine to exit. Events notified after Stop are discarded.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

// Notify queues ev for delivery without blocking.
func (n *Notifier) Notify(ev TransitionEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.stopped {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("notifier queue full, dropping event",
			"device", ev.Device,
			"axis", ev.Axis,
			"to", ev.ToName(),
		)
	}
}

func (n *Notifier) deliverLoop() {
	defer n.wg.Done()
	for ev := range n.queue {
		n.deliver(ev)
	}
}

func (n *Notifier) deliver(ev TransitionEvent) {
	n.mu.RLock()
	listeners := make([]namedListener, len(n.listeners))
	copy(listeners, n.listeners)
	logger := n.logger
	n.mu.RUnlock()

	for _, l := range listeners {
		n.invoke(logger, l, ev)
	}
}

func (n *Notifier) invoke(logger Logger, l namedListener, ev TransitionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panic recovered",
				"listener", l.name,
				"device", ev.Device,
				"panic", r,
			)
		}
	}()
	l.fn(ev)
}
