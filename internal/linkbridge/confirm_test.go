package linkbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
)

type fakeConfirmer struct {
	mu  sync.Mutex
	got []headset.Confirmation
	err error
}

func (f *fakeConfirmer) Confirm(_ context.Context, c headset.Confirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, c)
	return f.err
}

type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if s.err != nil {
		return s.err
	}
	if s.handlers == nil {
		s.handlers = make(map[string]mqtt.MessageHandler)
	}
	s.handlers[topic] = handler
	return nil
}

func (s *fakeSubscriber) Unsubscribe(topic string) error {
	delete(s.handlers, topic)
	return nil
}

func newHandler(t *testing.T, c Confirmer) *ConfirmHandler {
	t.Helper()
	h, err := NewConfirmHandler(c, nil)
	if err != nil {
		t.Fatalf("NewConfirmHandler() error = %v", err)
	}
	return h
}

func TestConfirmHandler_Parse(t *testing.T) {
	h := newHandler(t, &fakeConfirmer{})
	topicA := mqtt.Topics{}.LinkConfirmation(string(devA))

	tests := []struct {
		name    string
		topic   string
		payload string
		want    headset.Confirmation
		wantErr error
	}{
		{
			name:    "connection connected",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"connected"}`,
			want:    headset.ConnectionConfirmation(devA, headset.StateConnected),
		},
		{
			name:    "audio without prefix",
			topic:   topicA,
			payload: `{"device":"00:1a:7d:da:71:13","axis":"audio","state":"connecting"}`,
			want:    headset.AudioConfirmation(devA, headset.AudioConnecting),
		},
		{
			name:    "audio with prefix and underscore address",
			topic:   topicA,
			payload: `{"device":"00_1A_7D_DA_71_13","axis":"audio","state":"audio_disconnected"}`,
			want:    headset.AudioConfirmation(devA, headset.AudioDisconnected),
		},
		{
			name:    "not JSON",
			topic:   topicA,
			payload: `{"device":`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "missing state",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "unknown axis",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"battery","state":"connected"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "unknown state",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"paired"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "audio state on connection axis",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"audio_connected"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "extra property",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"connected","rssi":-40}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "bad address",
			topic:   topicA,
			payload: `{"device":"not-an-address","axis":"connection","state":"connected"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "device does not match topic",
			topic:   topicA,
			payload: `{"device":"00:1A:7D:DA:71:14","axis":"connection","state":"connected"}`,
			wantErr: ErrInvalidConfirmation,
		},
		{
			name:    "wrong topic",
			topic:   "handsfree/state/00:1A:7D:DA:71:13",
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"connected"}`,
			wantErr: mqtt.ErrInvalidTopic,
		},
		{
			name:    "bad address in topic",
			topic:   "handsfree/link/kitchen/confirm",
			payload: `{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"connected"}`,
			wantErr: headset.ErrInvalidDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Parse(tt.topic, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfirmHandler_Handle(t *testing.T) {
	confirmer := &fakeConfirmer{}
	h := newHandler(t, confirmer)

	err := h.Handle(mqtt.Topics{}.LinkConfirmation(string(devA)),
		[]byte(`{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"disconnected"}`))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(confirmer.got) != 1 || confirmer.got[0] != headset.ConnectionConfirmation(devA, headset.StateDisconnected) {
		t.Errorf("confirmations = %+v", confirmer.got)
	}

	// Invalid payloads never reach the confirmer.
	if err := h.Handle(mqtt.Topics{}.LinkConfirmation(string(devA)), []byte(`{}`)); err == nil {
		t.Error("Handle() with empty object should fail")
	}
	if len(confirmer.got) != 1 {
		t.Errorf("invalid payload reached confirmer")
	}

	confirmer.err = headset.ErrServiceUnavailable
	err = h.Handle(mqtt.Topics{}.LinkConfirmation(string(devA)),
		[]byte(`{"device":"00:1A:7D:DA:71:13","axis":"audio","state":"connected"}`))
	if !errors.Is(err, headset.ErrServiceUnavailable) {
		t.Errorf("Handle() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestConfirmHandler_Subscribe(t *testing.T) {
	h := newHandler(t, &fakeConfirmer{})
	sub := &fakeSubscriber{}

	if err := h.Subscribe(sub, 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, ok := sub.handlers["handsfree/link/+/confirm"]; !ok {
		t.Fatalf("handlers = %v, want confirmation wildcard", sub.handlers)
	}
	if err := h.Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(sub.handlers) != 0 {
		t.Error("handler still registered after Unsubscribe")
	}

	sub.err = mqtt.ErrNotConnected
	if err := h.Subscribe(sub, 1); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

// TestRoundTrip drives a real service: Connect publishes a command, the
// link layer's confirmation comes back through the handler, and the state
// listener publishes the result.
func TestRoundTrip(t *testing.T) {
	pub := newFakePublisher()
	svc := headset.NewService(nil, NewMQTTLink(pub, 1), headset.Options{})
	svc.Subscribe("mqtt-state", StateListener(pub, svc, 1, nil))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(svc.Stop)

	h := newHandler(t, svc)
	sub := &fakeSubscriber{}
	if err := h.Subscribe(sub, 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	deliver := sub.handlers[mqtt.Topics{}.AllLinkConfirmations()]

	ctx := context.Background()
	if !svc.Connect(ctx, devA) {
		t.Fatal("Connect() = false")
	}
	pub.next(t, mqtt.Topics{}.DeviceCommand(string(devA)))

	err := deliver(mqtt.Topics{}.LinkConfirmation(string(devA)),
		[]byte(`{"device":"00:1A:7D:DA:71:13","axis":"connection","state":"connected"}`))
	if err != nil {
		t.Fatalf("confirmation error = %v", err)
	}
	if got := svc.ConnectionState(devA); got != headset.StateConnected {
		t.Fatalf("ConnectionState() = %v, want connected", got)
	}

	// Earlier snapshots may still be queued; wait for the connected one.
	for {
		msg := pub.next(t, mqtt.Topics{}.DeviceState(string(devA)))
		if !msg.retained {
			t.Fatal("state publish not retained")
		}
		var state stateMessage
		if err := json.Unmarshal(msg.payload, &state); err != nil {
			t.Fatalf("state payload not JSON: %v", err)
		}
		if state.ConnectionState == "connected" {
			return
		}
	}
}
