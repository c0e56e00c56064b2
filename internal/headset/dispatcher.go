package headset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Dispatcher defaults.
const (
	defaultQueueSize   = 64
	defaultOutboxSize  = 256
	defaultLinkTimeout = 5 * time.Second
)

// TransitionRequest is what the Gate hands to the Dispatcher for an accepted
// command.
type TransitionRequest struct {
	Kind CommandKind

	// Device is empty for session-global commands.
	Device DeviceID

	// Event is the optimistic state move, built from the state the gate
	// observed. Nil for commands that only toggle a flag or are session-global.
	Event *TransitionEvent

	Payload any
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// QueueSize bounds pending requests; Submit blocks when it is full.
	QueueSize int

	// OutboxSize bounds link commands waiting to be sent.
	OutboxSize int

	// LinkTimeout bounds a single Link.Send.
	LinkTimeout time.Duration
}

// job is one unit of work for the apply loop.
type job struct {
	request      *TransitionRequest
	confirmation *Confirmation
	result       chan error
}

// Dispatcher is the single writer for the Registry.
//
// All requests and confirmations go through one FIFO queue consumed by one
// goroutine, so transitions for a device are totally ordered and the
// registry is never mutated concurrently. Accepted commands are then
// forwarded to the Link from a second goroutine so link I/O never stalls
// the apply loop.
//
// Thread Safety: Submit, Confirm and Session are safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	notifier *Notifier
	link     Link

	inbox       chan job
	outbox      chan LinkCommand
	linkTimeout time.Duration

	sessionMu sync.RWMutex
	session   SessionState

	startOnce sync.Once
	done      chan struct{}

	logger Logger
}

// NewDispatcher creates a dispatcher. link may be nil, in which case accepted
// commands only update the local mirror.
func NewDispatcher(registry *Registry, notifier *Notifier, link Link, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	if opts.LinkTimeout <= 0 {
		opts.LinkTimeout = defaultLinkTimeout
	}
	return &Dispatcher{
		registry:    registry,
		notifier:    notifier,
		link:        link,
		inbox:       make(chan job, opts.QueueSize),
		outbox:      make(chan LinkCommand, opts.OutboxSize),
		linkTimeout: opts.LinkTimeout,
		done:        make(chan struct{}),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Run processes requests until ctx is cancelled. It must be called once;
// later calls return immediately.
func (d *Dispatcher) Run(ctx context.Context) error {
	started := false
	d.startOnce.Do(func() { started = true })
	if !started {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(d.done)
		d.applyLoop(gctx)
		return nil
	})
	g.Go(func() error {
		d.forwardLoop(gctx)
		return nil
	})
	return g.Wait()
}

// Done is closed once the apply loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Submit queues req and waits until the worker has processed it.
//
// Returns:
//   - nil when the request was applied and forwarded
//   - ErrStaleTransition when another transition won the race (dropped)
//   - ErrInvalidTransition when the registry refused the event
//   - ErrDispatcherStopped or the context error if it could not be processed
func (d *Dispatcher) Submit(ctx context.Context, req TransitionRequest) error {
	return d.enqueue(ctx, job{request: &req, result: make(chan error, 1)})
}

// Confirm queues a link-layer confirmation and waits for it to be applied.
func (d *Dispatcher) Confirm(ctx context.Context, c Confirmation) error {
	return d.enqueue(ctx, job{confirmation: &c, result: make(chan error, 1)})
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.inbox <- j:
	case <-d.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return fmt.Errorf("submitting transition: %w", ctx.Err())
	}

	select {
	case err := <-j.result:
		return err
	case <-d.done:
		// The loop may have answered just before exiting.
		select {
		case err := <-j.result:
			return err
		default:
			return ErrDispatcherStopped
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for transition: %w", ctx.Err())
	}
}

// Session returns the last session-global state forwarded to the link.
func (d *Dispatcher) Session() SessionState {
	d.sessionMu.RLock()
	defer d.sessionMu.RUnlock()
	return d.session
}

func (d *Dispatcher) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.inbox:
			var err error
			if j.request != nil {
				err = d.handleRequest(*j.request)
			} else {
				err = d.handleConfirmation(*j.confirmation)
			}
			j.result <- err
		}
	}
}

// handleRequest applies one accepted command.
func (d *Dispatcher) handleRequest(req TransitionRequest) error {
	if req.Event != nil {
		ev := *req.Event
		if err := d.registry.Apply(ev); err != nil {
			if errors.Is(err, ErrStaleTransition) {
				d.logger.Info("stale transition dropped",
					"device", ev.Device,
					"command", req.Kind,
					"error", err,
				)
			} else {
				d.logger.Warn("transition refused",
					"device", ev.Device,
					"command", req.Kind,
					"error", err,
				)
			}
			return err
		}
		d.emit(ev)
	}

	switch req.Kind {
	case CommandStartVoiceRec:
		d.registry.SetVoiceRecognition(req.Device, true)
	case CommandStopVoiceRec:
		d.registry.SetVoiceRecognition(req.Device, false)
	case CommandVirtualCallStart:
		if !d.registry.SetVirtualCall(req.Device, true) {
			d.logger.Debug("virtual call not tracked", "device", req.Device)
		}
	case CommandVirtualCallStop:
		d.registry.SetVirtualCall(req.Device, false)
	default:
		if req.Kind.SessionGlobal() {
			d.updateSession(req)
		}
	}

	d.forward(LinkCommand{
		ID:       uuid.NewString(),
		Kind:     req.Kind,
		Device:   req.Device,
		Payload:  req.Payload,
		IssuedAt: time.Now().UTC(),
	})
	return nil
}

// handleConfirmation applies a state the link layer reports as reached.
func (d *Dispatcher) handleConfirmation(c Confirmation) error {
	rec := d.registry.Get(c.Device)

	var ev TransitionEvent
	switch c.Axis {
	case AxisConnection:
		if int(rec.Connection) == c.State {
			return nil
		}
		ev = ConnectionTransition(c.Device, rec.Connection, ConnectionState(c.State))
	case AxisAudio:
		if int(rec.Audio) == c.State {
			return nil
		}
		ev = AudioTransition(c.Device, rec.Audio, AudioState(c.State))
	default:
		return fmt.Errorf("%w: unknown axis %q", ErrInvalidTransition, c.Axis)
	}

	// Audio only survives in Connected, or in Disconnecting while it winds
	// down. Anywhere else the link takes the audio with it. Audio is cleared
	// first so no reader sees a dropped link with audio still on.
	if ev.Axis == AxisConnection && ConnectionState(ev.To).Valid() && dropsAudio(ConnectionState(ev.To)) && rec.Audio != AudioDisconnected {
		reset := AudioTransition(c.Device, rec.Audio, AudioDisconnected)
		if err := d.registry.Apply(reset); err != nil {
			d.logger.Error("audio reset failed", "device", c.Device, "error", err)
			return err
		}
		d.emit(reset)
	}

	if err := d.registry.Apply(ev); err != nil {
		d.logger.Warn("confirmation refused",
			"device", c.Device,
			"axis", c.Axis,
			"state", ev.ToName(),
			"error", err,
		)
		return err
	}
	d.emit(ev)
	return nil
}

func (d *Dispatcher) emit(ev TransitionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	d.logger.Debug("transition applied",
		"device", ev.Device,
		"axis", ev.Axis,
		"from", ev.FromName(),
		"to", ev.ToName(),
	)
	if d.notifier != nil {
		d.notifier.Notify(ev)
	}
}

func (d *Dispatcher) updateSession(req TransitionRequest) {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	switch p := req.Payload.(type) {
	case CallState:
		cs := p
		d.session.Call = &cs
	case bool:
		if req.Kind == CommandRoamChanged {
			d.session.Roaming = p
		}
	case BatteryLevel:
		b := p
		d.session.Battery = &b
	case int:
		if req.Kind == CommandVolumeChanged {
			d.session.Volume = p
		}
	}
	d.session.UpdatedAt = time.Now().UTC()
}

// forward queues cmd for the link without blocking the apply loop.
func (d *Dispatcher) forward(cmd LinkCommand) {
	if d.link == nil {
		return
	}
	select {
	case d.outbox <- cmd:
	default:
		d.logger.Warn("link outbox full, dropping command",
			"command", cmd.Kind,
			"device", cmd.Device,
			"id", cmd.ID,
		)
	}
}

func (d *Dispatcher) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.outbox); n > 0 {
				d.logger.Warn("dispatcher stopped with unsent link commands", "count", n)
			}
			return
		case cmd := <-d.outbox:
			d.send(ctx, cmd)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, cmd LinkCommand) {
	sendCtx, cancel := context.WithTimeout(ctx, d.linkTimeout)
	defer cancel()

	if err := d.link.Send(sendCtx, cmd); err != nil {
		d.logger.Error("link command failed",
			"command", cmd.Kind,
			"device", cmd.Device,
			"id", cmd.ID,
			"error", err,
		)
		return
	}
	d.logger.Debug("link command sent", "command", cmd.Kind, "device", cmd.Device, "id", cmd.ID)
}

// dropsAudio reports whether entering s ends any audio on the device.
func dropsAudio(s ConnectionState) bool {
	return s != StateConnected && s != StateDisconnecting
}
