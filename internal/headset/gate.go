package headset

import (
	"context"
	"errors"
)

// Gate decides whether an inbound command is legal right now.
//
// A legal command becomes exactly one TransitionRequest handed to the
// Dispatcher. An illegal one returns false and changes nothing. Evaluate is
// safe to call from any number of goroutines; races between callers are
// settled by the dispatcher's prior-state check, not here.
type Gate struct {
	registry   *Registry
	priorities PriorityStore
	dispatcher *Dispatcher
	logger     Logger
}

// NewGate creates a gate reading from registry and priorities and submitting
// to dispatcher.
func NewGate(registry *Registry, priorities PriorityStore, dispatcher *Dispatcher) *Gate {
	return &Gate{
		registry:   registry,
		priorities: priorities,
		dispatcher: dispatcher,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// Evaluate checks req against the current registry state and priority and,
// if legal, submits the resulting transition request.
//
// The result is true once the request was accepted, even if the dispatcher
// later drops it because a concurrent transition got there first.
func (g *Gate) Evaluate(ctx context.Context, req CommandRequest) bool {
	tr, ok := g.admit(ctx, req)
	if !ok {
		g.logger.Debug("command rejected", "command", req.Kind, "device", deviceAttr(req.Device))
		return false
	}

	err := g.dispatcher.Submit(ctx, tr)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrStaleTransition):
		// Lost a race after admission. The dispatcher logged it.
		return true
	default:
		g.logger.Warn("command not dispatched", "command", req.Kind, "device", deviceAttr(req.Device), "error", err)
		return false
	}
}

// admit applies the legality table and builds the transition request.
func (g *Gate) admit(ctx context.Context, req CommandRequest) (TransitionRequest, bool) {
	if req.Kind.SessionGlobal() {
		return TransitionRequest{Kind: req.Kind, Payload: req.Payload}, true
	}

	switch req.Kind {
	case CommandStartAudio:
		return g.admitStartAudio()
	case CommandStopAudio:
		return g.admitStopAudio()
	}

	if req.Device == nil {
		return TransitionRequest{}, false
	}
	id := *req.Device
	tr := TransitionRequest{Kind: req.Kind, Device: id, Payload: req.Payload}

	switch req.Kind {
	case CommandConnect:
		// Priority is checked first: Off refuses regardless of state.
		p, err := g.priorities.Get(ctx, id)
		if err != nil {
			g.logger.Error("reading priority", "device", id, "error", err)
			return TransitionRequest{}, false
		}
		if p == PriorityOff {
			return TransitionRequest{}, false
		}
		rec := g.current(id)
		if linkUp(rec.Connection) {
			return TransitionRequest{}, false
		}
		ev := ConnectionTransition(id, rec.Connection, StateConnecting)
		tr.Event = &ev
		return tr, true

	case CommandDisconnect:
		rec := g.current(id)
		if !linkUp(rec.Connection) {
			return TransitionRequest{}, false
		}
		ev := ConnectionTransition(id, rec.Connection, StateDisconnecting)
		tr.Event = &ev
		return tr, true

	case CommandStartVoiceRec, CommandStopVoiceRec:
		// Stop succeeds even if recognition was never started.
		rec := g.current(id)
		return tr, linkUp(rec.Connection)

	case CommandVirtualCallStart, CommandVirtualCallStop:
		// Always forwarded; the dispatcher only raises the flag on a
		// connected device.
		return tr, true
	}

	return TransitionRequest{}, false
}

func (g *Gate) admitStartAudio() (TransitionRequest, bool) {
	if _, busy := g.registry.AudioDevice(); busy {
		return TransitionRequest{}, false
	}
	// A virtual voice call already holds the audio channel.
	if g.registry.VirtualCallActive() {
		return TransitionRequest{}, false
	}
	rec, ok := g.registry.ActiveDevice()
	if !ok {
		return TransitionRequest{}, false
	}
	ev := AudioTransition(rec.ID, rec.Audio, AudioConnecting)
	return TransitionRequest{Kind: CommandStartAudio, Device: rec.ID, Event: &ev}, true
}

func (g *Gate) admitStopAudio() (TransitionRequest, bool) {
	rec, ok := g.registry.AudioDevice()
	if !ok {
		return TransitionRequest{}, false
	}
	ev := AudioTransition(rec.ID, rec.Audio, AudioDisconnecting)
	return TransitionRequest{Kind: CommandStopAudio, Device: rec.ID, Event: &ev}, true
}

// current returns id's record without creating one for an unknown device.
func (g *Gate) current(id DeviceID) DeviceRecord {
	if rec, ok := g.registry.Lookup(id); ok {
		return rec
	}
	return DeviceRecord{ID: id, Connection: StateDisconnected, Audio: AudioDisconnected}
}

// linkUp reports whether s is Connected or Connecting.
func linkUp(s ConnectionState) bool {
	return s == StateConnected || s == StateConnecting
}

func deviceAttr(id *DeviceID) string {
	if id == nil {
		return ""
	}
	return string(*id)
}
