package headset

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry tracks every known device and its connection/audio snapshot.
//
// Reads are safe from any goroutine. Apply, SetVoiceRecognition and
// SetVirtualCall are only called from the Dispatcher's worker, which is what
// keeps transitions for a device totally ordered.
type Registry struct {
	mu      sync.RWMutex
	records map[DeviceID]*DeviceRecord
	seq     uint64 // increments each time a device reaches StateConnected
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[DeviceID]*DeviceRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the record for id, creating a Disconnected/AudioDisconnected
// record on first reference.
func (r *Registry) Get(id DeviceID) DeviceRecord {
	r.mu.RLock()
	rec, ok := r.records[id]
	if ok {
		out := *rec
		r.mu.RUnlock()
		return out
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.touchLocked(id)
}

// Lookup returns the record for id without creating one.
func (r *Registry) Lookup(id DeviceID) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return DeviceRecord{}, false
	}
	return *rec, true
}

// touchLocked returns the live record for id, creating it if needed.
// Caller must hold the write lock.
func (r *Registry) touchLocked(id DeviceID) *DeviceRecord {
	rec, ok := r.records[id]
	if !ok {
		rec = &DeviceRecord{
			ID:         id,
			Connection: StateDisconnected,
			Audio:      AudioDisconnected,
			UpdatedAt:  r.now(),
		}
		r.records[id] = rec
	}
	return rec
}

// Apply mutates the record named by ev after checking that ev.From still
// matches the live state.
//
// Returns:
//   - ErrStaleTransition if the live state moved on since ev was built
//   - ErrInvalidTransition if ev is malformed or breaks the audio-axis rule
//     (audio may only move toward AudioConnected while StateConnected; moves
//     toward AudioDisconnected are always allowed)
func (r *Registry) Apply(ev TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.touchLocked(ev.Device)

	switch ev.Axis {
	case AxisConnection:
		to := ConnectionState(ev.To)
		if !to.Valid() || !ConnectionState(ev.From).Valid() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.FromName(), ev.ToName())
		}
		if int(rec.Connection) != ev.From {
			return fmt.Errorf("%w: %s expected %s, is %s",
				ErrStaleTransition, ev.Device, ev.FromName(), rec.Connection)
		}
		if ev.From == ev.To {
			return fmt.Errorf("%w: %s already %s", ErrInvalidTransition, ev.Device, to)
		}
		rec.Connection = to
		if to == StateConnected {
			r.seq++
			rec.connectedSeq = r.seq
		}
		if to == StateDisconnected {
			rec.VoiceRecognition = false
		}
		if to == StateDisconnected || to == StateConnecting {
			rec.VirtualCall = false
		}

	case AxisAudio:
		to := AudioState(ev.To)
		if !to.Valid() || !AudioState(ev.From).Valid() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.FromName(), ev.ToName())
		}
		if int(rec.Audio) != ev.From {
			return fmt.Errorf("%w: %s expected %s, is %s",
				ErrStaleTransition, ev.Device, ev.FromName(), rec.Audio)
		}
		if ev.From == ev.To {
			return fmt.Errorf("%w: %s already %s", ErrInvalidTransition, ev.Device, to)
		}
		if to.On() && rec.Connection != StateConnected {
			return fmt.Errorf("%w: audio %s while %s", ErrInvalidTransition, to, rec.Connection)
		}
		rec.Audio = to
		if to == AudioDisconnected {
			rec.VirtualCall = false
		}

	default:
		return fmt.Errorf("%w: unknown axis %q", ErrInvalidTransition, ev.Axis)
	}

	rec.UpdatedAt = r.now()
	return nil
}

// SetVoiceRecognition records the voice-recognition flag for id.
func (r *Registry) SetVoiceRecognition(id DeviceID, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.touchLocked(id)
	rec.VoiceRecognition = on
	rec.UpdatedAt = r.now()
}

// SetVirtualCall records whether a virtual voice call holds audio for id.
// The flag is only raised on a device in StateConnected; it reports whether
// the record changed.
func (r *Registry) SetVirtualCall(id DeviceID, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.VirtualCall == on {
		return false
	}
	if on && rec.Connection != StateConnected {
		return false
	}
	rec.VirtualCall = on
	rec.UpdatedAt = r.now()
	return true
}

// VirtualCallActive reports whether any device holds a virtual voice call.
func (r *Registry) VirtualCallActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.VirtualCall {
			return true
		}
	}
	return false
}

// Evict removes a fully disconnected record. Priority is unaffected since it
// lives in the PriorityStore.
func (r *Registry) Evict(id DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	if rec.Connection != StateDisconnected || rec.Audio != AudioDisconnected {
		return fmt.Errorf("%w: cannot evict %s while %s", ErrInvalidTransition, id, rec.Connection)
	}
	delete(r.records, id)
	return nil
}

// Snapshot returns copies of all records ordered by address.
func (r *Registry) Snapshot() []DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MatchingStates returns the devices whose connection state is one of states,
// ordered by address.
func (r *Registry) MatchingStates(states ...ConnectionState) []DeviceID {
	want := make(map[ConnectionState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]DeviceID, 0)
	for id, rec := range r.records {
		if want[rec.Connection] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectedDevices returns the devices in StateConnected.
func (r *Registry) ConnectedDevices() []DeviceID {
	return r.MatchingStates(StateConnected)
}

// ActiveDevice returns the most recently connected device still in
// StateConnected.
func (r *Registry) ActiveDevice() (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *DeviceRecord
	for _, rec := range r.records {
		if rec.Connection != StateConnected {
			continue
		}
		if best == nil || rec.connectedSeq > best.connectedSeq {
			best = rec
		}
	}
	if best == nil {
		return DeviceRecord{}, false
	}
	return *best, true
}

// AudioDevice returns a device whose audio is connected or connecting.
func (r *Registry) AudioDevice() (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *DeviceRecord
	for _, rec := range r.records {
		if !rec.Audio.On() {
			continue
		}
		// Deterministic pick if the link ever reports two.
		if found == nil || rec.ID < found.ID {
			found = rec
		}
	}
	if found == nil {
		return DeviceRecord{}, false
	}
	return *found, true
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
