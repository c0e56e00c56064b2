package headset

import (
	"context"
	"time"
)

// LinkCommand is a request forwarded to the link-layer session state
// machine after the dispatcher accepted it.
type LinkCommand struct {
	// ID correlates the command with link-layer logs.
	ID string `json:"id"`

	Kind CommandKind `json:"command"`

	// Device is empty for session-global commands.
	Device DeviceID `json:"device,omitempty"`

	// Payload carries CallState, ClccEntry, BatteryLevel, a bool (roam) or an
	// int (volume) depending on Kind.
	Payload any `json:"payload,omitempty"`

	IssuedAt time.Time `json:"issued_at"`
}

// Link delivers accepted commands to the real per-device protocol state
// machine (SCO/RFCOMM establishment, AT commands). Implementations may block
// on I/O; the dispatcher calls Send from its forwarding goroutine only.
type Link interface {
	Send(ctx context.Context, cmd LinkCommand) error
}

// LinkFunc adapts a function to the Link interface.
type LinkFunc func(ctx context.Context, cmd LinkCommand) error

// Send implements Link.
func (f LinkFunc) Send(ctx context.Context, cmd LinkCommand) error {
	return f(ctx, cmd)
}

// Confirmation reports a state the link layer actually reached.
//
// Confirmations are authoritative: they are applied against whatever state
// the registry currently holds, not against an expected prior state.
type Confirmation struct {
	Device DeviceID
	Axis   Axis
	// State is a ConnectionState or AudioState value depending on Axis.
	State int
}

// ConnectionConfirmation builds a connection-axis confirmation.
func ConnectionConfirmation(id DeviceID, s ConnectionState) Confirmation {
	return Confirmation{Device: id, Axis: AxisConnection, State: int(s)}
}

// AudioConfirmation builds an audio-axis confirmation.
func AudioConfirmation(id DeviceID, s AudioState) Confirmation {
	return Confirmation{Device: id, Axis: AxisAudio, State: int(s)}
}
