package headset

import (
	"errors"
	"testing"
)

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DeviceID
		wantErr bool
	}{
		{name: "colon form", input: "00:1A:7D:DA:71:13", want: "00:1A:7D:DA:71:13"},
		{name: "lower case", input: "00:1a:7d:da:71:13", want: "00:1A:7D:DA:71:13"},
		{name: "object path form", input: "00_1A_7D_DA_71_13", want: "00:1A:7D:DA:71:13"},
		{name: "surrounding space", input: "  00:1A:7D:DA:71:13 ", want: "00:1A:7D:DA:71:13"},
		{name: "too short", input: "00:1A:7D:DA:71", wantErr: true},
		{name: "not hex", input: "00:1A:7D:DA:71:ZZ", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeviceID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDevice) {
					t.Fatalf("ParseDeviceID(%q) error = %v, want ErrInvalidDevice", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeviceID(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDeviceID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConnectionStateNames(t *testing.T) {
	for _, s := range AllConnectionStates {
		got, err := ParseConnectionState(s.String())
		if err != nil {
			t.Fatalf("ParseConnectionState(%q) error = %v", s, err)
		}
		if got != s {
			t.Errorf("ParseConnectionState(%q) = %v", s, got)
		}
	}
	if _, err := ParseConnectionState("linked"); err == nil {
		t.Error("ParseConnectionState(linked) should fail")
	}
	if ConnectionState(7).Valid() {
		t.Error("ConnectionState(7).Valid() = true")
	}
}

func TestParseAudioState(t *testing.T) {
	tests := []struct {
		input string
		want  AudioState
	}{
		{"audio_connected", AudioConnected},
		{"connected", AudioConnected},
		{"CONNECTING", AudioConnecting},
		{"audio_disconnecting", AudioDisconnecting},
	}
	for _, tt := range tests {
		got, err := ParseAudioState(tt.input)
		if err != nil {
			t.Fatalf("ParseAudioState(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseAudioState(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAudioStateOn(t *testing.T) {
	on := map[AudioState]bool{
		AudioDisconnected:  false,
		AudioConnecting:    true,
		AudioConnected:     true,
		AudioDisconnecting: false,
	}
	for s, want := range on {
		if s.On() != want {
			t.Errorf("%v.On() = %v, want %v", s, s.On(), want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{PriorityUndefined, PriorityOff, PriorityOn, PriorityAuto} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p, got, err)
		}
	}
	if _, err := ParsePriority("sometimes"); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("ParsePriority(sometimes) error = %v, want ErrInvalidPriority", err)
	}
	if Priority(42).Valid() {
		t.Error("Priority(42).Valid() = true")
	}
}

func TestTransitionEventNames(t *testing.T) {
	ev := AudioTransition("00:1A:7D:DA:71:13", AudioDisconnected, AudioConnecting)
	if ev.FromName() != "audio_disconnected" || ev.ToName() != "audio_connecting" {
		t.Errorf("audio names = %s -> %s", ev.FromName(), ev.ToName())
	}

	ev = ConnectionTransition("00:1A:7D:DA:71:13", StateConnected, StateDisconnecting)
	if ev.FromName() != "connected" || ev.ToName() != "disconnecting" {
		t.Errorf("connection names = %s -> %s", ev.FromName(), ev.ToName())
	}
}

func TestCommandKindSessionGlobal(t *testing.T) {
	global := []CommandKind{
		CommandCallStateChanged, CommandRoamChanged, CommandClccResponse,
		CommandBatteryChanged, CommandVolumeChanged,
	}
	for _, k := range global {
		if !k.SessionGlobal() {
			t.Errorf("%s.SessionGlobal() = false", k)
		}
	}
	for _, k := range []CommandKind{CommandConnect, CommandStartAudio, CommandVirtualCallStart} {
		if k.SessionGlobal() {
			t.Errorf("%s.SessionGlobal() = true", k)
		}
	}
}
