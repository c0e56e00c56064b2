package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbus "github.com/godbus/dbus/v5"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

const (
	bluezService    = "org.bluez"
	deviceIface     = "org.bluez.Device1"
	transportIface  = "org.bluez.MediaTransport1"
	propsIface      = "org.freedesktop.DBus.Properties"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"

	propertiesChanged = propsIface + ".PropertiesChanged"

	signalBuffer   = 64
	confirmTimeout = 5 * time.Second
)

// ErrBusClosed is returned by Run when the D-Bus connection goes away.
var ErrBusClosed = errors.New("bluez: system bus connection closed")

// Confirmer accepts confirmations. *headset.Service satisfies it.
type Confirmer interface {
	Confirm(ctx context.Context, c headset.Confirmation) error
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Watcher turns BlueZ property changes into confirmations.
type Watcher struct {
	adapter   string
	prefix    string
	confirmer Confirmer
	logger    Logger
}

// NewWatcher creates a watcher for one adapter, e.g. "hci0".
func NewWatcher(adapter string, confirmer Confirmer) *Watcher {
	return &Watcher{
		adapter:   adapter,
		prefix:    "/org/bluez/" + adapter + "/dev_",
		confirmer: confirmer,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Run connects to the system bus and reports changes until ctx ends.
//
// Returns:
//   - error: nil when ctx ends, otherwise the bus error that stopped it
func (w *Watcher) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect system bus: %w", err)
	}
	defer conn.Close()

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err := w.prime(ctx, conn); err != nil {
		// Not fatal; signals still arrive.
		w.logger.Warn("reading bluez managed objects failed", "error", err)
	}

	w.logger.Info("bluez watcher started", "adapter", w.adapter)
	return w.consume(ctx, signals)
}

// prime reports the current state of every known device and transport.
func (w *Watcher) prime(ctx context.Context, conn *dbus.Conn) error {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := conn.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return fmt.Errorf("decode GetManagedObjects: %w", err)
	}

	for path, ifaces := range objs {
		for iface, props := range ifaces {
			w.apply(ctx, w.confirmations(path, iface, props))
		}
	}
	return nil
}

// consume handles signals until ctx ends or the channel closes.
func (w *Watcher) consume(ctx context.Context, signals <-chan *dbus.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return ErrBusClosed
			}
			w.handleSignal(ctx, sig)
		}
	}
}

func (w *Watcher) handleSignal(ctx context.Context, sig *dbus.Signal) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	if changed == nil {
		return
	}
	w.apply(ctx, w.confirmations(sig.Path, iface, changed))
}

func (w *Watcher) apply(ctx context.Context, confirmations []headset.Confirmation) {
	for _, c := range confirmations {
		cctx, cancel := context.WithTimeout(ctx, confirmTimeout)
		err := w.confirmer.Confirm(cctx, c)
		cancel()
		if err != nil {
			w.logger.Warn("bluez confirmation rejected", "device", c.Device, "axis", c.Axis, "error", err)
		}
	}
}

// confirmations maps one interface's properties to confirmations. Paths
// outside the adapter and unrelated properties yield nothing.
func (w *Watcher) confirmations(path dbus.ObjectPath, iface string, props map[string]dbus.Variant) []headset.Confirmation {
	id, ok := w.deviceFromPath(path)
	if !ok {
		return nil
	}

	switch iface {
	case deviceIface:
		v, ok := props["Connected"]
		if !ok {
			return nil
		}
		connected, ok := v.Value().(bool)
		if !ok {
			return nil
		}
		state := headset.StateDisconnected
		if connected {
			state = headset.StateConnected
		}
		return []headset.Confirmation{headset.ConnectionConfirmation(id, state)}

	case transportIface:
		v, ok := props["State"]
		if !ok {
			return nil
		}
		name, _ := v.Value().(string)
		state, ok := TransportAudioState(name)
		if !ok {
			return nil
		}
		return []headset.Confirmation{headset.AudioConfirmation(id, state)}
	}
	return nil
}

// deviceFromPath extracts the address from a device or transport path
// under the watcher's adapter.
func (w *Watcher) deviceFromPath(path dbus.ObjectPath) (headset.DeviceID, bool) {
	rest, ok := strings.CutPrefix(string(path), w.prefix)
	if !ok {
		return "", false
	}
	segment, _, _ := strings.Cut(rest, "/")
	id, err := headset.ParseDeviceID(segment)
	if err != nil {
		return "", false
	}
	return id, true
}

// TransportAudioState maps a MediaTransport1.State value to an audio state.
func TransportAudioState(state string) (headset.AudioState, bool) {
	switch state {
	case "active":
		return headset.AudioConnected, true
	case "pending":
		return headset.AudioConnecting, true
	case "idle":
		return headset.AudioDisconnected, true
	default:
		return 0, false
	}
}
