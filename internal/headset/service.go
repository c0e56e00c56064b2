package headset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Options tunes the runtime created by Service.Start.
type Options struct {
	// QueueSize bounds requests waiting for the dispatcher.
	QueueSize int

	// OutboxSize bounds commands waiting to be sent to the link.
	OutboxSize int

	// NotifyBuffer bounds events waiting for listeners.
	NotifyBuffer int

	// LinkTimeout bounds a single Link.Send.
	LinkTimeout time.Duration
}

// Service is the hands-free gatekeeper facade.
//
// Each inbound call is checked by the Gate and, if legal, applied by the
// Dispatcher. The registry, dispatcher and notifier live only between Start
// and Stop; while stopped every call returns its unavailable default (false,
// empty list, Disconnected, AudioDisconnected, PriorityUndefined) and commands
// have no effect.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	priorities PriorityStore
	link       Link
	opts       Options

	mu        sync.RWMutex
	rt        *runtime
	listeners map[uint64]namedListener
	nextSub   uint64
	logger    Logger
}

// runtime is everything created on Start and torn down on Stop.
type runtime struct {
	registry   *Registry
	notifier   *Notifier
	dispatcher *Dispatcher
	gate       *Gate

	unsubscribe map[uint64]func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewService creates a stopped service. link may be nil.
func NewService(priorities PriorityStore, link Link, opts Options) *Service {
	if priorities == nil {
		priorities = NewMemoryPriorityStore()
	}
	return &Service{
		priorities: priorities,
		link:       link,
		opts:       opts,
		listeners:  make(map[uint64]namedListener),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger. It applies to runtimes created by later Starts.
func (s *Service) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Start creates a fresh registry, notifier and dispatcher and begins
// processing. Starting a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rt != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("starting headset service: %w", err)
	}

	registry := NewRegistry()

	notifier := NewNotifier(s.opts.NotifyBuffer)
	notifier.SetLogger(s.logger)

	dispatcher := NewDispatcher(registry, notifier, s.link, DispatcherOptions{
		QueueSize:   s.opts.QueueSize,
		OutboxSize:  s.opts.OutboxSize,
		LinkTimeout: s.opts.LinkTimeout,
	})
	dispatcher.SetLogger(s.logger)

	gate := NewGate(registry, s.priorities, dispatcher)
	gate.SetLogger(s.logger)

	rt := &runtime{
		registry:    registry,
		notifier:    notifier,
		dispatcher:  dispatcher,
		gate:        gate,
		unsubscribe: make(map[uint64]func(), len(s.listeners)),
		done:        make(chan struct{}),
	}
	for id, l := range s.listeners {
		rt.unsubscribe[id] = notifier.Subscribe(l.name, l.fn)
	}
	notifier.Start()

	// The runtime outlives the Start call, so it gets its own context.
	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	logger := s.logger
	go func() {
		defer close(rt.done)
		if err := dispatcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher exited", "error", err)
		}
	}()

	s.rt = rt
	logger.Info("headset service started", "listeners", len(s.listeners))
	return nil
}

// Stop halts the dispatcher, delivers queued events and drops all device
// state. Stored priorities are kept. Stopping a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	rt := s.rt
	s.rt = nil
	logger := s.logger
	s.mu.Unlock()

	if rt == nil {
		return
	}
	rt.cancel()
	<-rt.done
	rt.notifier.Stop()
	logger.Info("headset service stopped", "devices", rt.registry.Count())
}

// Running reports whether the service is started.
func (s *Service) Running() bool {
	return s.runtime() != nil
}

func (s *Service) runtime() *runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

func (s *Service) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Subscribe registers a transition listener. It stays registered across
// Stop/Start until the returned function is called.
func (s *Service) Subscribe(name string, fn Listener) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.listeners[id] = namedListener{id: id, name: name, fn: fn}
	if s.rt != nil {
		s.rt.unsubscribe[id] = s.rt.notifier.Subscribe(name, fn)
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		if s.rt != nil {
			if unsub, ok := s.rt.unsubscribe[id]; ok {
				unsub()
				delete(s.rt.unsubscribe, id)
			}
		}
	}
}

func (s *Service) evaluate(ctx context.Context, req CommandRequest) bool {
	rt := s.runtime()
	if rt == nil {
		return false
	}
	return rt.gate.Evaluate(ctx, req)
}

func (s *Service) deviceCommand(ctx context.Context, kind CommandKind, id DeviceID) bool {
	return s.evaluate(ctx, CommandRequest{Kind: kind, Device: &id})
}

func (s *Service) sessionCommand(ctx context.Context, kind CommandKind, payload any) {
	if !s.evaluate(ctx, CommandRequest{Kind: kind, Payload: payload}) && s.Running() {
		s.log().Warn("session update not forwarded", "command", kind)
	}
}

// Connect requests a connection to id. It returns false if the device's
// priority is Off or it is already connected or connecting.
func (s *Service) Connect(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandConnect, id)
}

// Disconnect requests disconnection of a connected or connecting device.
func (s *Service) Disconnect(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandDisconnect, id)
}

// StartVoiceRecognition asks id to start voice recognition.
func (s *Service) StartVoiceRecognition(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandStartVoiceRec, id)
}

// StopVoiceRecognition asks id to stop voice recognition. It succeeds
// whenever the device is connected or connecting, started or not.
func (s *Service) StopVoiceRecognition(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandStopVoiceRec, id)
}

// ConnectAudio opens audio to the most recently connected device.
func (s *Service) ConnectAudio(ctx context.Context) bool {
	return s.evaluate(ctx, CommandRequest{Kind: CommandStartAudio})
}

// DisconnectAudio closes the open or opening audio link.
func (s *Service) DisconnectAudio(ctx context.Context) bool {
	return s.evaluate(ctx, CommandRequest{Kind: CommandStopAudio})
}

// StartVirtualVoiceCall routes audio to id through a virtual call. It is
// forwarded without any state check.
func (s *Service) StartVirtualVoiceCall(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandVirtualCallStart, id)
}

// StopVirtualVoiceCall ends a virtual call on id.
func (s *Service) StopVirtualVoiceCall(ctx context.Context, id DeviceID) bool {
	return s.deviceCommand(ctx, CommandVirtualCallStop, id)
}

// PhoneStateChanged forwards the telephony call state to the link.
func (s *Service) PhoneStateChanged(ctx context.Context, cs CallState) {
	s.sessionCommand(ctx, CommandCallStateChanged, cs)
}

// RoamChanged forwards the roaming indicator to the link.
func (s *Service) RoamChanged(ctx context.Context, roaming bool) {
	s.sessionCommand(ctx, CommandRoamChanged, roaming)
}

// ClccResponse forwards one current-call-list entry to the link.
func (s *Service) ClccResponse(ctx context.Context, entry ClccEntry) {
	s.sessionCommand(ctx, CommandClccResponse, entry)
}

// BatteryChanged forwards the phone battery level to the link.
func (s *Service) BatteryChanged(ctx context.Context, level BatteryLevel) {
	s.sessionCommand(ctx, CommandBatteryChanged, level)
}

// ScoVolumeChanged forwards the audio link volume to the link.
func (s *Service) ScoVolumeChanged(ctx context.Context, volume int) {
	s.sessionCommand(ctx, CommandVolumeChanged, volume)
}

// SetPriority stores the connection priority for id. It returns false for an
// unknown priority value, a store failure, or a stopped service.
func (s *Service) SetPriority(ctx context.Context, id DeviceID, p Priority) bool {
	if s.runtime() == nil {
		return false
	}
	if !p.Valid() {
		s.log().Warn("rejecting priority", "device", id, "priority", int(p), "error", ErrInvalidPriority)
		return false
	}
	if err := s.priorities.Set(ctx, id, p); err != nil {
		s.log().Error("setting priority", "device", id, "priority", p, "error", err)
		return false
	}
	return true
}

// Priority returns the stored priority for id, PriorityUndefined if none is
// stored, the store fails, or the service is stopped.
func (s *Service) Priority(ctx context.Context, id DeviceID) Priority {
	if s.runtime() == nil {
		return PriorityUndefined
	}
	p, err := s.priorities.Get(ctx, id)
	if err != nil {
		s.log().Error("reading priority", "device", id, "error", err)
		return PriorityUndefined
	}
	return p
}

// ConnectedDevices returns the devices in StateConnected.
func (s *Service) ConnectedDevices() []DeviceID {
	rt := s.runtime()
	if rt == nil {
		return []DeviceID{}
	}
	return rt.registry.ConnectedDevices()
}

// DevicesMatchingStates returns the devices whose connection state is one of
// states.
func (s *Service) DevicesMatchingStates(states ...ConnectionState) []DeviceID {
	rt := s.runtime()
	if rt == nil {
		return []DeviceID{}
	}
	return rt.registry.MatchingStates(states...)
}

// ConnectionState returns id's connection state.
func (s *Service) ConnectionState(id DeviceID) ConnectionState {
	rec, ok := s.Device(id)
	if !ok {
		return StateDisconnected
	}
	return rec.Connection
}

// AudioState returns id's audio state.
func (s *Service) AudioState(id DeviceID) AudioState {
	rec, ok := s.Device(id)
	if !ok {
		return AudioDisconnected
	}
	return rec.Audio
}

// Device returns the registry record for id without creating one.
func (s *Service) Device(id DeviceID) (DeviceRecord, bool) {
	rt := s.runtime()
	if rt == nil {
		return DeviceRecord{}, false
	}
	return rt.registry.Lookup(id)
}

// Devices returns every tracked record ordered by address.
func (s *Service) Devices() []DeviceRecord {
	rt := s.runtime()
	if rt == nil {
		return []DeviceRecord{}
	}
	return rt.registry.Snapshot()
}

// Evict forgets a fully disconnected device. Its priority is kept.
func (s *Service) Evict(id DeviceID) error {
	rt := s.runtime()
	if rt == nil {
		return ErrServiceUnavailable
	}
	return rt.registry.Evict(id)
}

// IsAudioOn reports whether any device has audio connected or is in a
// virtual call.
func (s *Service) IsAudioOn() bool {
	for _, rec := range s.Devices() {
		if rec.Audio == AudioConnected || rec.VirtualCall {
			return true
		}
	}
	return false
}

// IsAudioConnected reports whether id's audio is connected.
func (s *Service) IsAudioConnected(id DeviceID) bool {
	return s.AudioState(id) == AudioConnected
}

// BatteryUsageHint is always 0; battery usage is not tracked.
func (s *Service) BatteryUsageHint(DeviceID) int {
	return 0
}

// AcceptIncomingConnect is not supported and always returns false.
func (s *Service) AcceptIncomingConnect(DeviceID) bool {
	return false
}

// RejectIncomingConnect is not supported and always returns false.
func (s *Service) RejectIncomingConnect(DeviceID) bool {
	return false
}

// Session returns the last session-global state forwarded to the link.
func (s *Service) Session() SessionState {
	rt := s.runtime()
	if rt == nil {
		return SessionState{}
	}
	return rt.dispatcher.Session()
}

// Confirm applies a state the link layer reports as reached.
func (s *Service) Confirm(ctx context.Context, c Confirmation) error {
	rt := s.runtime()
	if rt == nil {
		return ErrServiceUnavailable
	}
	return rt.dispatcher.Confirm(ctx, c)
}
