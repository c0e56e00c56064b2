package headset

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DeviceID identifies a remote hands-free peer by its Bluetooth address.
//
// Values are normalised to upper-case colon-separated form
// (e.g. "00:1A:7D:DA:71:13"). Construct with ParseDeviceID.
type DeviceID string

// addressPattern matches a Bluetooth address in either colon or underscore form.
var addressPattern = regexp.MustCompile(`^[0-9A-F]{2}([:_][0-9A-F]{2}){5}$`)

// ParseDeviceID validates and normalises a Bluetooth address.
//
// Both "aa:bb:cc:dd:ee:ff" and the BlueZ object-path form "AA_BB_CC_DD_EE_FF"
// are accepted.
func ParseDeviceID(s string) (DeviceID, error) {
	addr := strings.ToUpper(strings.TrimSpace(s))
	if !addressPattern.MatchString(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, s)
	}
	return DeviceID(strings.ReplaceAll(addr, "_", ":")), nil
}

// String returns the address.
func (d DeviceID) String() string {
	return string(d)
}

// ConnectionState is the profile-level connection state of a device.
type ConnectionState int

// Connection states. Values match the Bluetooth profile constants.
const (
	StateDisconnected  ConnectionState = 0
	StateConnecting    ConnectionState = 1
	StateConnected     ConnectionState = 2
	StateDisconnecting ConnectionState = 3
)

// AllConnectionStates lists every connection state in numeric order.
var AllConnectionStates = []ConnectionState{
	StateDisconnected,
	StateConnecting,
	StateConnected,
	StateDisconnecting,
}

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("connection_state(%d)", int(s))
	}
}

// Valid reports whether s is a known connection state.
func (s ConnectionState) Valid() bool {
	return s >= StateDisconnected && s <= StateDisconnecting
}

// ParseConnectionState parses the lower-case name of a connection state.
func ParseConnectionState(name string) (ConnectionState, error) {
	for _, s := range AllConnectionStates {
		if s.String() == strings.ToLower(name) {
			return s, nil
		}
	}
	return StateDisconnected, fmt.Errorf("unknown connection state %q", name)
}

// AudioState is the SCO audio state of a device.
type AudioState int

// Audio states. Values match the headset profile constants.
const (
	AudioDisconnected  AudioState = 10
	AudioConnecting    AudioState = 11
	AudioConnected     AudioState = 12
	AudioDisconnecting AudioState = 13
)

// AllAudioStates lists every audio state in numeric order.
var AllAudioStates = []AudioState{
	AudioDisconnected,
	AudioConnecting,
	AudioConnected,
	AudioDisconnecting,
}

func (s AudioState) String() string {
	switch s {
	case AudioDisconnected:
		return "audio_disconnected"
	case AudioConnecting:
		return "audio_connecting"
	case AudioConnected:
		return "audio_connected"
	case AudioDisconnecting:
		return "audio_disconnecting"
	default:
		return fmt.Sprintf("audio_state(%d)", int(s))
	}
}

// Valid reports whether s is a known audio state.
func (s AudioState) Valid() bool {
	return s >= AudioDisconnected && s <= AudioDisconnecting
}

// On reports whether audio is established or being established.
func (s AudioState) On() bool {
	return s == AudioConnected || s == AudioConnecting
}

// ParseAudioState parses an audio state name. The "audio_" prefix is optional.
func ParseAudioState(name string) (AudioState, error) {
	n := strings.ToLower(name)
	if !strings.HasPrefix(n, "audio_") {
		n = "audio_" + n
	}
	for _, s := range AllAudioStates {
		if s.String() == n {
			return s, nil
		}
	}
	return AudioDisconnected, fmt.Errorf("unknown audio state %q", name)
}

// Priority is the persisted connection policy for a device.
type Priority int

// Priority values. These match the profile priority constants.
const (
	PriorityUndefined Priority = -1
	PriorityOff       Priority = 0
	PriorityOn        Priority = 100
	PriorityAuto      Priority = 1000
)

func (p Priority) String() string {
	switch p {
	case PriorityUndefined:
		return "undefined"
	case PriorityOff:
		return "off"
	case PriorityOn:
		return "on"
	case PriorityAuto:
		return "auto"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUndefined, PriorityOff, PriorityOn, PriorityAuto:
		return true
	default:
		return false
	}
}

// ParsePriority parses a priority name ("off", "on", "auto", "undefined").
func ParsePriority(name string) (Priority, error) {
	for _, p := range []Priority{PriorityUndefined, PriorityOff, PriorityOn, PriorityAuto} {
		if p.String() == strings.ToLower(name) {
			return p, nil
		}
	}
	return PriorityUndefined, fmt.Errorf("%w: %q", ErrInvalidPriority, name)
}

// DeviceRecord is the registry's snapshot of one device.
type DeviceRecord struct {
	ID         DeviceID        `json:"address"`
	Connection ConnectionState `json:"connection_state"`
	Audio      AudioState      `json:"audio_state"`

	// VoiceRecognition is set by an accepted StartVoiceRec and cleared by StopVoiceRec.
	VoiceRecognition bool `json:"voice_recognition"`

	// VirtualCall is set while a virtual voice call holds the audio link.
	VirtualCall bool `json:"virtual_call"`

	// connectedSeq orders devices by the time they reached StateConnected.
	connectedSeq uint64

	UpdatedAt time.Time `json:"updated_at"`
}

// Axis names which state dimension a transition moves along.
type Axis string

// Transition axes.
const (
	AxisConnection Axis = "connection"
	AxisAudio      Axis = "audio"
)

// TransitionEvent records one state change of one device.
//
// From and To hold the raw value of the axis state (ConnectionState or
// AudioState). Events are values and are never mutated once emitted.
type TransitionEvent struct {
	Device DeviceID  `json:"device"`
	Axis   Axis      `json:"axis"`
	From   int       `json:"from"`
	To     int       `json:"to"`
	At     time.Time `json:"at"`
}

// ConnectionTransition builds a connection-axis event.
func ConnectionTransition(id DeviceID, from, to ConnectionState) TransitionEvent {
	return TransitionEvent{Device: id, Axis: AxisConnection, From: int(from), To: int(to)}
}

// AudioTransition builds an audio-axis event.
func AudioTransition(id DeviceID, from, to AudioState) TransitionEvent {
	return TransitionEvent{Device: id, Axis: AxisAudio, From: int(from), To: int(to)}
}

// FromName returns the state name of the event's prior state.
func (e TransitionEvent) FromName() string {
	return e.stateName(e.From)
}

// ToName returns the state name of the event's new state.
func (e TransitionEvent) ToName() string {
	return e.stateName(e.To)
}

func (e TransitionEvent) stateName(v int) string {
	if e.Axis == AxisAudio {
		return AudioState(v).String()
	}
	return ConnectionState(v).String()
}

// CommandKind enumerates inbound commands.
type CommandKind string

// Command kinds. The last group is session-global and carries no device.
const (
	CommandConnect          CommandKind = "connect"
	CommandDisconnect       CommandKind = "disconnect"
	CommandStartVoiceRec    CommandKind = "start_voice_recognition"
	CommandStopVoiceRec     CommandKind = "stop_voice_recognition"
	CommandStartAudio       CommandKind = "connect_audio"
	CommandStopAudio        CommandKind = "disconnect_audio"
	CommandVirtualCallStart CommandKind = "virtual_call_start"
	CommandVirtualCallStop  CommandKind = "virtual_call_stop"

	CommandCallStateChanged CommandKind = "call_state_changed"
	CommandRoamChanged      CommandKind = "roam_changed"
	CommandClccResponse     CommandKind = "clcc_response"
	CommandBatteryChanged   CommandKind = "battery_changed"
	CommandVolumeChanged    CommandKind = "volume_changed"
)

// SessionGlobal reports whether the command applies to the whole session
// rather than to one device.
func (k CommandKind) SessionGlobal() bool {
	switch k {
	case CommandCallStateChanged, CommandRoamChanged, CommandClccResponse,
		CommandBatteryChanged, CommandVolumeChanged:
		return true
	default:
		return false
	}
}

// CommandRequest is an inbound command as seen by the gate.
type CommandRequest struct {
	Kind    CommandKind
	Device  *DeviceID
	Payload any
}

// CallState is the payload of a CallStateChanged command.
type CallState struct {
	NumActive int    `json:"num_active"`
	NumHeld   int    `json:"num_held"`
	CallState int    `json:"call_state"`
	Number    string `json:"number"`
	Type      int    `json:"type"`
}

// ClccEntry is one current-call-list response line.
type ClccEntry struct {
	Index      int    `json:"index"`
	Direction  int    `json:"direction"`
	Status     int    `json:"status"`
	Mode       int    `json:"mode"`
	Multiparty bool   `json:"multiparty"`
	Number     string `json:"number"`
	Type       int    `json:"type"`
}

// BatteryLevel is the payload of a BatteryChanged update.
type BatteryLevel struct {
	Level int `json:"level"`
	Scale int `json:"scale"`
}

// SessionState is the last session-global information forwarded to the link.
type SessionState struct {
	Call      *CallState    `json:"call,omitempty"`
	Roaming   bool          `json:"roaming"`
	Battery   *BatteryLevel `json:"battery,omitempty"`
	Volume    int           `json:"volume"`
	UpdatedAt time.Time     `json:"updated_at"`
}
