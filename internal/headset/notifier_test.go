package headset

import (
	"sync"
	"testing"
	"time"
)

// collector gathers events delivered to a listener.
type collector struct {
	mu     sync.Mutex
	events []TransitionEvent
	signal chan struct{}
}

func newCollector() *collector {
	return &collector{signal: make(chan struct{}, 64)}
}

func (c *collector) listen(ev TransitionEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *collector) snapshot() []TransitionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransitionEvent, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor blocks until at least n events were collected.
func (c *collector) waitFor(t *testing.T, n int) []TransitionEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(c.snapshot()))
		}
	}
}

func TestNotifierDeliversInOrder(t *testing.T) {
	n := NewNotifier(0)
	c := newCollector()
	n.Subscribe("collector", c.listen)
	n.Start()
	defer n.Stop()

	n.Notify(ConnectionTransition(devA, StateDisconnected, StateConnecting))
	n.Notify(ConnectionTransition(devA, StateConnecting, StateConnected))
	n.Notify(AudioTransition(devA, AudioDisconnected, AudioConnecting))

	got := c.waitFor(t, 3)
	if got[0].To != int(StateConnecting) || got[1].To != int(StateConnected) || got[2].Axis != AxisAudio {
		t.Errorf("events out of order: %+v", got)
	}
}

func TestNotifierRecoversListenerPanic(t *testing.T) {
	n := NewNotifier(0)
	n.Subscribe("broken", func(TransitionEvent) { panic("boom") })
	c := newCollector()
	n.Subscribe("collector", c.listen)
	n.Start()
	defer n.Stop()

	n.Notify(ConnectionTransition(devA, StateDisconnected, StateConnecting))
	n.Notify(ConnectionTransition(devA, StateConnecting, StateConnected))

	if got := c.waitFor(t, 2); len(got) != 2 {
		t.Errorf("collector got %d events, want 2", len(got))
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier(0)
	c := newCollector()
	unsubscribe := n.Subscribe("collector", c.listen)
	if n.ListenerCount() != 1 {
		t.Fatalf("ListenerCount() = %d, want 1", n.ListenerCount())
	}

	unsubscribe()
	if n.ListenerCount() != 0 {
		t.Fatalf("ListenerCount() after unsubscribe = %d, want 0", n.ListenerCount())
	}

	n.Start()
	n.Notify(ConnectionTransition(devA, StateDisconnected, StateConnecting))
	n.Stop()

	if got := c.snapshot(); len(got) != 0 {
		t.Errorf("unsubscribed listener got %d events", len(got))
	}
}

func TestNotifierNeverBlocks(t *testing.T) {
	n := NewNotifier(1)
	// Not started: the queue fills and further events are dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Notify(ConnectionTransition(devA, StateDisconnected, StateConnecting))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}

func TestNotifierStopDrainsQueue(t *testing.T) {
	n := NewNotifier(0)
	c := newCollector()
	n.Subscribe("collector", c.listen)

	n.Notify(ConnectionTransition(devA, StateDisconnected, StateConnecting))
	n.Notify(ConnectionTransition(devA, StateConnecting, StateConnected))
	n.Start()
	n.Stop()

	if got := c.snapshot(); len(got) != 2 {
		t.Errorf("delivered %d events before stop returned, want 2", len(got))
	}

	// Notify after Stop is a no-op rather than a panic on the closed queue.
	n.Notify(ConnectionTransition(devA, StateConnected, StateDisconnecting))
	n.Stop()
}
